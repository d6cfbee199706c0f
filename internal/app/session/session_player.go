package session

import (
	"sync"

	"github.com/osa030/nativeaudio/internal/app/player"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// SurfaceOptions configures the controls shown on the surface.
type SurfaceOptions struct {
	ShowSeekBackward bool
	ShowSeekForward  bool
}

// SessionPlayer is the shared player behind the persistent surface. It forwards
// transport calls to the wrapped player and mirrors what is playing onto the surface.
type SessionPlayer struct {
	player.Player

	surface Surface
	opts    SurfaceOptions

	mu             sync.Mutex
	state          SurfaceState
	removeListener func()
}

func newSessionPlayer(p player.Player, surface Surface, opts SurfaceOptions) *SessionPlayer {
	sp := &SessionPlayer{
		Player:  p,
		surface: surface,
		opts:    opts,
		state: SurfaceState{
			ShowSeekBackward: opts.ShowSeekBackward,
			ShowSeekForward:  opts.ShowSeekForward,
		},
	}
	sp.removeListener = p.AddListener(sp)
	return sp
}

// SetOwner records the source the surface currently represents and its controls.
func (sp *SessionPlayer) SetOwner(sourceID string, opts SurfaceOptions) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.state.SourceID = sourceID
	sp.state.ShowSeekBackward = opts.ShowSeekBackward
	sp.state.ShowSeekForward = opts.ShowSeekForward
}

// SetMediaItem implements player.Player.
func (sp *SessionPlayer) SetMediaItem(item player.MediaItem) error {
	if err := sp.Player.SetMediaItem(item); err != nil {
		return err
	}
	sp.show(func(s *SurfaceState) {
		s.Metadata = item.Metadata
		s.Playing = false
	})
	return nil
}

// ReplaceMetadata implements player.Player.
func (sp *SessionPlayer) ReplaceMetadata(md audio.Metadata) error {
	if err := sp.Player.ReplaceMetadata(md); err != nil {
		return err
	}
	sp.show(func(s *SurfaceState) { s.Metadata = md })
	return nil
}

// Release implements player.Player. The surface is cleared first.
func (sp *SessionPlayer) Release() error {
	sp.mu.Lock()
	remove := sp.removeListener
	sp.removeListener = nil
	sp.mu.Unlock()

	if remove != nil {
		remove()
	}
	sp.surface.Clear()
	return sp.Player.Release()
}

// Surface returns the last state shown.
func (sp *SessionPlayer) Surface() SurfaceState {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.state
}

// OnIsPlayingChanged implements player.Listener.
func (sp *SessionPlayer) OnIsPlayingChanged(isPlaying bool) {
	sp.show(func(s *SurfaceState) { s.Playing = isPlaying })
}

// OnPlaybackStateChanged implements player.Listener.
func (sp *SessionPlayer) OnPlaybackStateChanged(player.TransportState) {}

func (sp *SessionPlayer) show(update func(*SurfaceState)) {
	sp.mu.Lock()
	update(&sp.state)
	st := sp.state
	sp.mu.Unlock()
	sp.surface.Show(st)
}
