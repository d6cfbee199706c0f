// Package audio provides the audio source domain types shared by the coordinator layers.
package audio

import (
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultUpdateInterval is used when a source configures an update URL without an interval.
const DefaultUpdateInterval = 15 * time.Second

// Remote metadata payload keys.
const (
	KeyAlbumTitle    = "album_title"
	KeyArtistName    = "artist_name"
	KeySongTitle     = "song_title"
	KeyArtworkSource = "artwork_source"
)

// Metadata describes what a source is playing.
type Metadata struct {
	Title          string        // Song title
	Artist         string        // Artist name
	Album          string        // Album title
	ArtworkSource  string        // Remote URL or local path, never loaded here
	UpdateURL      string        // Remote JSON endpoint, empty disables refresh
	UpdateInterval time.Duration // Delay between the end of one fetch and the next
}

// MetadataPatch carries a partial metadata change. Nil fields are left untouched.
type MetadataPatch struct {
	Title          *string
	Artist         *string
	Album          *string
	ArtworkSource  *string
	UpdateURL      *string
	UpdateInterval *time.Duration
}

// IsEmpty reports whether the patch changes nothing.
func (p MetadataPatch) IsEmpty() bool {
	return p.Title == nil && p.Artist == nil && p.Album == nil &&
		p.ArtworkSource == nil && p.UpdateURL == nil && p.UpdateInterval == nil
}

// Merge returns a copy of m with every non-nil field of p applied.
func (m Metadata) Merge(p MetadataPatch) Metadata {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Artist != nil {
		m.Artist = *p.Artist
	}
	if p.Album != nil {
		m.Album = *p.Album
	}
	if p.ArtworkSource != nil {
		m.ArtworkSource = *p.ArtworkSource
	}
	if p.UpdateURL != nil {
		m.UpdateURL = *p.UpdateURL
	}
	if p.UpdateInterval != nil {
		m.UpdateInterval = *p.UpdateInterval
	}
	return m
}

// Interval returns the refresh interval, falling back to DefaultUpdateInterval.
func (m Metadata) Interval() time.Duration {
	if m.UpdateInterval <= 0 {
		return DefaultUpdateInterval
	}
	return m.UpdateInterval
}

// WithRemote returns a copy of m whose four display fields are replaced from a
// remote payload. Missing keys become empty strings; non-string values are rejected.
func (m Metadata) WithRemote(payload map[string]any) (Metadata, error) {
	fields := []struct {
		key string
		dst *string
	}{
		{KeyAlbumTitle, &m.Album},
		{KeyArtistName, &m.Artist},
		{KeySongTitle, &m.Title},
		{KeyArtworkSource, &m.ArtworkSource},
	}
	for _, f := range fields {
		v, ok := payload[f.key]
		if !ok || v == nil {
			*f.dst = ""
			continue
		}
		s, ok := v.(string)
		if !ok {
			return Metadata{}, errors.Mark(
				errors.Newf("metadata field %s has type %T", f.key, v),
				ErrInvalidArgument,
			)
		}
		*f.dst = s
	}
	return m, nil
}

// Payload returns the metadata as delivered to metadata update callbacks.
func (m Metadata) Payload() map[string]any {
	return map[string]any{
		KeyAlbumTitle:    m.Album,
		KeyArtistName:    m.Artist,
		KeySongTitle:     m.Title,
		KeyArtworkSource: m.ArtworkSource,
	}
}
