package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/nativeaudio/internal/domain/audio"
)

func TestExtractTrackID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Spotify URI format",
			input:    "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
			expected: "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "Spotify URL format",
			input:    "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC",
			expected: "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "Localized URL with query params",
			input:    "https://open.spotify.com/intl-ja/track/4uLU6hMCjMI75M1A2tKUQC?si=abc123",
			expected: "4uLU6hMCjMI75M1A2tKUQC",
		},
		{
			name:     "Playlist URI",
			input:    "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M",
			expected: "",
		},
		{
			name:     "Plain HTTP URL",
			input:    "https://radio.example.com/now-playing.json",
			expected: "",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractTrackID(tt.input)
			assert.Equal(t, tt.expected, result,
				"extractTrackID(%s) should return %s", tt.input, tt.expected)
		})
	}
}

func TestHandles(t *testing.T) {
	assert.True(t, Handles("spotify:track:abc"))
	assert.True(t, Handles("https://open.spotify.com/track/abc"))
	assert.False(t, Handles("https://radio.example.com/meta"))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"rate limit error with 429", errors.New("Error 429: rate limit exceeded"), true},
		{"server error 503", errors.New("503 Service Unavailable"), true},
		{"client error 400", errors.New("400 Bad Request"), false},
		{"not found error", errors.New("404 not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}

func newTestServer(t *testing.T, track http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"test-token","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/v1/tracks/", track)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetchJSON(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tracks/track123", r.URL.Path)
		assert.Equal(t, "JP", r.URL.Query().Get("market"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "track123",
			"name": "Test Song",
			"duration_ms": 215000,
			"artists": [{"name": "Artist A"}, {"name": "Artist B"}],
			"album": {
				"name": "Test Album",
				"images": [{"url": "https://i.scdn.co/image/large", "height": 640, "width": 640}]
			}
		}`)
	})

	client, err := New(context.Background(), Config{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      server.URL + "/v1/",
		TokenURL:     server.URL + "/token",
	})
	require.NoError(t, err)

	payload, err := client.FetchJSON(context.Background(), "spotify:track:track123")
	require.NoError(t, err)
	assert.Equal(t, "Test Song", payload[audio.KeySongTitle])
	assert.Equal(t, "Artist A, Artist B", payload[audio.KeyArtistName])
	assert.Equal(t, "Test Album", payload[audio.KeyAlbumTitle])
	assert.Equal(t, "https://i.scdn.co/image/large", payload[audio.KeyArtworkSource])
	assert.Equal(t, "https://open.spotify.com/track/track123", payload["external_url"])
}

func TestFetchJSON_NotTrack(t *testing.T) {
	client, err := New(context.Background(), Config{ClientID: "id", ClientSecret: "secret"})
	require.NoError(t, err)

	_, err = client.FetchJSON(context.Background(), "spotify:playlist:abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotTrack))
}

func TestFetchJSON_NotFound(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error": {"status": 404, "message": "Non existing id"}}`)
	})

	client, err := New(context.Background(), Config{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      server.URL + "/v1/",
		TokenURL:     server.URL + "/token",
	})
	require.NoError(t, err)
	client.retryDelay = time.Millisecond

	_, err = client.FetchJSON(context.Background(), "https://open.spotify.com/track/missing")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to get track"))
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{ClientID: "id"})
	assert.Error(t, err)
}
