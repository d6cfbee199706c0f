// Package lastfm provides a client for the Last.fm API, used to find artwork
// for remote metadata that does not carry any.
package lastfm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// preferred image sizes, largest first
var imageSizes = []string{"mega", "extralarge", "large", "medium", "small"}

// artworkCacheEntry represents a cached artwork lookup. An empty url records a miss.
type artworkCacheEntry struct {
	url string
}

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// Cache for artwork lookups
	artworkCache map[string]*artworkCacheEntry
	cacheMu      sync.RWMutex
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey  string
	BaseURL string // defaults to the public endpoint
	Timeout time.Duration
}

// GetInfoResponse represents the response from track.getInfo API.
type GetInfoResponse struct {
	Track struct {
		Name   string `json:"name"`
		Artist struct {
			Name string `json:"name"`
		} `json:"artist"`
		Album struct {
			Title string  `json:"title"`
			Image []Image `json:"image"`
		} `json:"album"`
	} `json:"track"`
}

// Image represents a sized Last.fm image.
type Image struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

// LastFMError represents an error response from Last.fm API.
type LastFMError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		artworkCache: make(map[string]*artworkCacheEntry),
	}, nil
}

// ArtworkURL returns the largest album image for a track, or an empty string
// when Last.fm has none. Results, misses included, are cached.
// Reference: https://www.last.fm/api/show/track.getInfo
func (c *Client) ArtworkURL(ctx context.Context, artist, title string) (string, error) {
	if artist == "" || title == "" {
		return "", errors.New("track name and artist name are required")
	}

	cacheKey := strings.ToLower(artist + "\x00" + title)
	c.cacheMu.RLock()
	entry, found := c.artworkCache[cacheKey]
	c.cacheMu.RUnlock()
	if found {
		zlog.Debug().Msgf("artwork cache hit: artist=%s title=%s", artist, title)
		return entry.url, nil
	}

	params := url.Values{}
	params.Set("method", "track.getInfo")
	params.Set("api_key", c.apiKey)
	params.Set("artist", artist)
	params.Set("track", title)
	params.Set("format", "json")
	params.Set("autocorrect", "1")

	var response GetInfoResponse
	if err := c.get(ctx, params, &response); err != nil {
		return "", err
	}

	art := pickImage(response.Track.Album.Image)
	c.cacheMu.Lock()
	c.artworkCache[cacheKey] = &artworkCacheEntry{url: art}
	c.cacheMu.Unlock()

	zlog.Debug().Msgf("artwork looked up: artist=%s title=%s found=%t", artist, title, art != "")
	return art, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// Check for Last.fm API errors
	var apiError LastFMError
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != 0 {
		return errors.Errorf("last.fm API error %d: %s", apiError.Error, apiError.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("last.fm API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func pickImage(images []Image) string {
	bySize := make(map[string]string, len(images))
	for _, img := range images {
		if img.URL != "" {
			bySize[img.Size] = img.URL
		}
	}
	for _, size := range imageSizes {
		if u, ok := bySize[size]; ok {
			return u
		}
	}
	for _, img := range images {
		if img.URL != "" {
			return img.URL
		}
	}
	return ""
}
