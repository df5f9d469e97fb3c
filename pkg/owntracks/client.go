// Package owntracks fetches location history from an Owntracks Recorder.
package owntracks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/tripsense/pkg/track"
)

// timeLayout is the Recorder's from/to parameter format; instants are UTC.
const timeLayout = "2006-01-02T15:04:05"

// HTTPClient interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option configures a Client.
type Option func(*Client)

// WithBasicAuth sets HTTP basic auth credentials, as used by Recorders behind a reverse proxy.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// Client reads point history from the Recorder HTTP API. It performs a single
// attempt per call; retrying is the caller's decision.
type Client struct {
	httpClient HTTPClient
	logger     *slog.Logger
	baseURL    string
	username   string
	password   string
}

// NewClient creates a client for the Recorder at baseURL.
func NewClient(baseURL string, httpClient HTTPClient, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type locationsResponse struct {
	Data  []track.RawPoint `json:"data"`
	Count int              `json:"count"`
}

// FetchPoints implements track.Source.
func (c *Client) FetchPoints(ctx context.Context, q track.Query) ([]track.RawPoint, error) {
	const op = "owntracks: fetch locations"
	if q.User == "" || q.Device == "" {
		return nil, &track.SourceError{Op: op, Err: errors.New("user and device are required")}
	}

	params := url.Values{}
	params.Set("user", q.User)
	params.Set("device", q.Device)
	params.Set("from", q.From.UTC().Format(timeLayout))
	params.Set("to", q.To.UTC().Format(timeLayout))
	params.Set("format", "json")
	apiURL := c.baseURL + "/api/0/locations?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return nil, &track.SourceError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	c.logger.Debug("fetching points", "user", q.User, "device", q.Device, "from", q.From, "to", q.To)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// A cancelled context is not worth retrying.
		return nil, &track.SourceError{Op: op, Err: err, Transient: ctx.Err() == nil}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &track.SourceError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err), Transient: true}
	}

	if resp.StatusCode != http.StatusOK {
		preview := body
		if len(preview) > 200 {
			preview = preview[:200]
		}
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		c.logger.Warn("recorder returned an error",
			"status", resp.StatusCode,
			"transient", transient,
			"body_preview", string(preview))
		return nil, &track.SourceError{
			Op:        op,
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(preview))),
			Transient: transient,
		}
	}

	var result locationsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &track.SourceError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	c.logger.Debug("fetched points",
		"user", q.User,
		"device", q.Device,
		"count", result.Count,
		"points", len(result.Data),
		"duration", time.Since(start))
	return result.Data, nil
}
