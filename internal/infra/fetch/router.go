package fetch

import (
	"context"
	"net/url"

	"github.com/cockroachdb/errors"
)

// Fetcher retrieves a JSON object from a remote endpoint.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string) (map[string]any, error)
}

// Route sends the URLs accepted by Match to Fetcher.
type Route struct {
	Name    string
	Match   func(rawURL string) bool
	Fetcher Fetcher
}

// Router dispatches a URL to the first matching route and falls back to
// HTTP(S) for everything else.
type Router struct {
	routes   []Route
	fallback Fetcher
}

// NewRouter creates a router with fallback for http and https URLs.
func NewRouter(fallback Fetcher, routes ...Route) *Router {
	return &Router{routes: routes, fallback: fallback}
}

// FetchJSON implements Fetcher.
func (r *Router) FetchJSON(ctx context.Context, rawURL string) (map[string]any, error) {
	for _, route := range r.routes {
		if route.Match(rawURL) {
			if route.Fetcher == nil {
				return nil, errors.Newf("%s metadata urls are not configured", route.Name)
			}
			return route.Fetcher.FetchJSON(ctx, rawURL)
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid metadata url %s", rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Newf("unsupported metadata url scheme %q", u.Scheme)
	}
	return r.fallback.FetchJSON(ctx, rawURL)
}
