package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// EventTypeImportProgress is the push event type of import snapshots.
const EventTypeImportProgress = "import_progress"

// Event is the body posted to the push endpoint.
type Event struct {
	Type      string    `json:"type"`
	CompanyID string    `json:"company_id"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// PushResult is the outcome of a best-effort push. It is deliberately not an
// error: a failed push never fails the import.
type PushResult struct {
	Delivered  bool
	Skipped    bool
	StatusCode int
	Reason     string
}

// Failed reports whether a push was attempted and not delivered.
func (r PushResult) Failed() bool {
	return !r.Delivered && !r.Skipped
}

// Pusher posts events to {baseURL}/realtime/{companyID}.
type Pusher struct {
	baseURL string
	token   string
	client  *http.Client
}

// PusherOption configures a Pusher.
type PusherOption func(*Pusher)

// WithPushHTTPClient sets a custom *http.Client.
func WithPushHTTPClient(hc *http.Client) PusherOption {
	return func(p *Pusher) { p.client = hc }
}

// NewPusher creates a Pusher. An empty baseURL disables pushing.
func NewPusher(baseURL, token string, opts ...PusherOption) *Pusher {
	p := &Pusher{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push delivers ev to the company channel. Failures are logged and returned
// in the result.
func (p *Pusher) Push(ctx context.Context, ev Event) PushResult {
	if p == nil || p.baseURL == "" {
		return PushResult{Skipped: true}
	}

	status, err := p.send(ctx, ev)
	if err != nil {
		zap.L().Warn("progress: push failed",
			zap.String("company_id", ev.CompanyID),
			zap.String("type", ev.Type),
			zap.Int("status", status),
			zap.Error(err),
		)
		return PushResult{StatusCode: status, Reason: err.Error()}
	}
	return PushResult{Delivered: true, StatusCode: status}
}

func (p *Pusher) send(ctx context.Context, ev Event) (int, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return 0, eris.Wrap(err, "progress: marshal event")
	}

	endpoint := p.baseURL + "/realtime/" + url.PathEscape(ev.CompanyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, eris.Wrap(err, "progress: create push request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "progress: push request")
	}
	defer resp.Body.Close()               //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, eris.Errorf("progress: push returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
