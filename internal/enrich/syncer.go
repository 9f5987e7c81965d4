package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-import/internal/resilience"
)

// ProfileRequest asks the profile sync service for a directory profile.
type ProfileRequest struct {
	ChatID      string `json:"chatId"`
	SessionName string `json:"sessionName"`
	CompanyID   string `json:"companyId"`
	PushName    string `json:"pushName,omitempty"`
}

// ProfileContact is the profile returned by the sync service.
type ProfileContact struct {
	Phone     string `json:"phone"`
	AvatarURL string `json:"avatar_url"`
	Nickname  string `json:"nickname"`
	LID       string `json:"lid"`
}

// ProfileResult is the sync service response.
type ProfileResult struct {
	Success bool            `json:"success"`
	Contact *ProfileContact `json:"contact"`
}

// ProfileSyncer fetches the full directory profile of a chat.
type ProfileSyncer interface {
	SyncProfile(ctx context.Context, req ProfileRequest) (*ProfileResult, error)
}

type httpSyncer struct {
	url   string
	token string
	http  *http.Client
}

// SyncerOption configures the HTTP profile syncer.
type SyncerOption func(*httpSyncer)

// WithSyncerHTTPClient sets a custom *http.Client.
func WithSyncerHTTPClient(hc *http.Client) SyncerOption {
	return func(s *httpSyncer) { s.http = hc }
}

// NewHTTPSyncer creates a ProfileSyncer that POSTs to url with a bearer token.
func NewHTTPSyncer(url, token string, opts ...SyncerOption) ProfileSyncer {
	s := &httpSyncer{
		url:   url,
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *httpSyncer) SyncProfile(ctx context.Context, pr ProfileRequest) (*ProfileResult, error) {
	body, err := json.Marshal(pr)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: marshal profile request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create profile request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: sync profile")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: read profile response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resilience.NewStatusError("profile-sync", resp.StatusCode, data)
	}

	var out ProfileResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrap(err, "enrich: decode profile response")
	}
	return &out, nil
}
