// Package player defines the transport capability every audio source drives.
package player

import (
	"time"

	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// DurationUnknown is returned by Duration when the media length is not known yet.
const DurationUnknown time.Duration = -1

// TransportState represents the state of the underlying transport.
type TransportState int

const (
	TransportIdle      TransportState = iota // Nothing prepared
	TransportBuffering                       // Preparing media
	TransportReady                           // Able to play immediately
	TransportEnded                           // Reached the end of the media
)

// String returns the string representation of the transport state.
func (s TransportState) String() string {
	switch s {
	case TransportIdle:
		return "idle"
	case TransportBuffering:
		return "buffering"
	case TransportReady:
		return "ready"
	case TransportEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// RepeatMode controls what happens at the end of the media.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatOne
)

// MediaItem is the unit a player prepares.
type MediaItem struct {
	Locator  string
	Metadata audio.Metadata
}

// Listener receives transport events. Calls arrive on player goroutines.
type Listener interface {
	OnIsPlayingChanged(isPlaying bool)
	OnPlaybackStateChanged(state TransportState)
}

// Player is the transport capability. Exclusive players and the shared session
// player both implement it.
type Player interface {
	SetMediaItem(item MediaItem) error
	// ReplaceMetadata rebuilds the current item's metadata without interrupting playback.
	ReplaceMetadata(md audio.Metadata) error
	SetRepeatMode(mode RepeatMode) error
	SetPlayWhenReady(playWhenReady bool)
	PlayWhenReady() bool

	Prepare() error
	Play() error
	Pause() error
	SeekTo(position time.Duration) error
	SeekToDefaultPosition() error
	SetVolume(volume float64) error
	SetRate(rate float64) error

	Duration() time.Duration
	Position() time.Duration
	State() TransportState
	IsPlaying() bool

	// AddListener registers l and returns a function that removes it.
	AddListener(l Listener) func()
	Release() error
}

// Factory creates exclusive players.
type Factory interface {
	NewPlayer() (Player, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func() (Player, error)

// NewPlayer calls f.
func (f FactoryFunc) NewPlayer() (Player, error) {
	return f()
}
