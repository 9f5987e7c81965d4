// Package waha is a client for the WAHA WhatsApp HTTP API contact endpoints.
package waha

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-import/internal/resilience"
)

const serviceName = "waha"

// Client defines the directory operations used by the import pipeline.
type Client interface {
	CheckExists(ctx context.Context, phone, session string) (*CheckExistsResponse, error)
	ProfilePicture(ctx context.Context, contactID, session string) (*ProfilePictureResponse, error)
}

// CheckExistsResponse is the response from GET /api/contacts/check-exists.
type CheckExistsResponse struct {
	NumberExists bool   `json:"numberExists"`
	ChatID       string `json:"chatId"`
}

// ProfilePictureResponse is the response from GET /api/contacts/profile-picture.
type ProfilePictureResponse struct {
	ProfilePictureURL string `json:"profilePictureURL"`
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout overrides the request timeout of the default transport.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a WAHA client rooted at baseURL.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) CheckExists(ctx context.Context, phone, session string) (*CheckExistsResponse, error) {
	q := url.Values{}
	q.Set("phone", phone)
	q.Set("session", session)

	var resp CheckExistsResponse
	if err := c.get(ctx, "/api/contacts/check-exists", q, &resp); err != nil {
		return nil, eris.Wrapf(err, "waha: check exists %s", phone)
	}
	return &resp, nil
}

func (c *httpClient) ProfilePicture(ctx context.Context, contactID, session string) (*ProfilePictureResponse, error) {
	q := url.Values{}
	q.Set("contactId", contactID)
	q.Set("session", session)

	var resp ProfilePictureResponse
	if err := c.get(ctx, "/api/contacts/profile-picture", q, &resp); err != nil {
		return nil, eris.Wrapf(err, "waha: profile picture %s", contactID)
	}
	return &resp, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resilience.NewStatusError(serviceName, resp.StatusCode, data)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
