// Package spotify provides a metadata fetcher backed by the Spotify Web API.
// Update URLs of the form spotify:track:ID or open.spotify.com/track/ID are
// resolved to the metadata JSON keys used by remote metadata endpoints.
package spotify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// ErrNotTrack is returned for Spotify URLs that do not name a track.
var ErrNotTrack = errors.New("not a spotify track url")

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Market       string
	BaseURL      string // API base, defaults to the public endpoint
	TokenURL     string // token endpoint, defaults to the accounts service
}

// New creates a new Spotify client authenticated with client credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
	}

	// Token is fetched lazily and refreshed by the transport
	var opts []spotify.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(cfg.BaseURL))
	}
	client := spotify.New(cc.Client(ctx), opts...)

	market := cfg.Market
	if market == "" {
		market = "JP"
	}

	return &Client{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// Handles reports whether rawURL is a Spotify URL.
func Handles(rawURL string) bool {
	rawURL = strings.TrimSpace(rawURL)
	return strings.HasPrefix(rawURL, "spotify:") || strings.Contains(rawURL, "open.spotify.com/")
}

// FetchJSON resolves a Spotify track URL to a metadata payload.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) (map[string]any, error) {
	id := extractTrackID(rawURL)
	if id == "" {
		return nil, errors.Wrapf(ErrNotTrack, "url %s", rawURL)
	}

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}

	zlog.Debug().Msgf("spotify track resolved: id=%s name=%s", id, result.Name)
	return trackPayload(result), nil
}

// trackPayload converts a Spotify FullTrack to a metadata payload.
func trackPayload(t *spotify.FullTrack) map[string]any {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var albumArt string
	if len(t.Album.Images) > 0 {
		albumArt = t.Album.Images[0].URL
	}

	payload := map[string]any{
		audio.KeySongTitle:  t.Name,
		audio.KeyArtistName: strings.Join(artists, ", "),
		audio.KeyAlbumTitle: t.Album.Name,
		"spotify_id":        string(t.ID),
		"duration_ms":       float64(t.Duration),
		"external_url":      GetTrackURL(string(t.ID)),
	}
	// Missing artwork is left for the enricher
	if albumArt != "" {
		payload[audio.KeyArtworkSource] = albumArt
	}
	return payload
}

// GetTrackURL returns the Spotify URL for a track.
func GetTrackURL(trackID string) string {
	return "https://open.spotify.com/track/" + trackID
}

// retry retries an operation with linear backoff until ctx is done.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), lastErr.Error())
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractTrackID extracts the track ID from a Spotify track URL or URI.
// It returns an empty string when the input does not name a track.
func extractTrackID(input string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:track:TRACK_ID
	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	// Handle URL format: https://open.spotify.com/track/TRACK_ID or https://open.spotify.com/intl-XX/track/TRACK_ID
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/track/") {
		parts := strings.Split(input, "/track/")
		if len(parts) >= 2 {
			// Remove query parameters and trailing slashes
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	return ""
}
