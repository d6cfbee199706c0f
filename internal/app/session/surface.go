package session

import (
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// SurfaceState is what the persistent playback surface displays.
type SurfaceState struct {
	SourceID         string
	Metadata         audio.Metadata
	Playing          bool
	ShowSeekBackward bool
	ShowSeekForward  bool
}

// Surface is the system-level playback surface driven by the shared session.
// Calls may arrive from player goroutines.
type Surface interface {
	Show(state SurfaceState)
	Clear()
}

// LogSurface renders the surface to the log.
type LogSurface struct{}

// Show implements Surface.
func (LogSurface) Show(s SurfaceState) {
	zlog.Info().Msgf("surface: source=%s title=%q artist=%q album=%q artwork=%q playing=%t seek_backward=%t seek_forward=%t",
		s.SourceID, s.Metadata.Title, s.Metadata.Artist, s.Metadata.Album, s.Metadata.ArtworkSource,
		s.Playing, s.ShowSeekBackward, s.ShowSeekForward)
}

// Clear implements Surface.
func (LogSurface) Clear() {
	zlog.Info().Msg("surface: cleared")
}
