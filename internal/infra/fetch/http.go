// Package fetch provides the metadata fetchers used by the updater: a plain
// HTTP JSON fetcher and a router that picks a fetcher by URL.
package fetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

const defaultMaxBody = 256 << 10

// HTTPConfig represents HTTP fetcher configuration.
type HTTPConfig struct {
	Timeout   time.Duration
	MaxBody   int64 // bytes
	UserAgent string
}

// HTTP fetches JSON objects over HTTP(S).
type HTTP struct {
	client    *http.Client
	maxBody   int64
	userAgent string
}

// NewHTTP creates an HTTP fetcher.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = defaultMaxBody
	}
	return &HTTP{
		client:    &http.Client{Timeout: cfg.Timeout},
		maxBody:   cfg.MaxBody,
		userAgent: cfg.UserAgent,
	}
}

// FetchJSON performs a GET with Accept: application/json. A non-2xx status or a
// body that is not a JSON object is an error.
func (h *HTTP) FetchJSON(ctx context.Context, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, h.maxBody))
		return nil, errors.Newf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBody+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	if int64(len(body)) > h.maxBody {
		return nil, errors.Newf("response body exceeds %d bytes", h.maxBody)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}
	if payload == nil {
		return nil, errors.New("response is not a JSON object")
	}
	return payload, nil
}
