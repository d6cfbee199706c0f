// Package source provides the audio source: one media item bound to one player.
package source

import (
	"math"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nativeaudio/internal/app/callback"
	"github.com/osa030/nativeaudio/internal/app/metadata"
	"github.com/osa030/nativeaudio/internal/app/player"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// Notifier resolves persistent callbacks. A missing registration is ignored.
type Notifier interface {
	Resolve(kind callback.Kind, sourceID string, payload map[string]any) bool
}

// Env holds the dependencies shared by every source.
type Env struct {
	Factory  player.Factory
	Loop     metadata.Poster
	Pool     metadata.Submitter
	Fetcher  metadata.Fetcher
	Enricher metadata.Enricher // optional
	Notifier Notifier

	FetchTimeout  time.Duration
	DefaultVolume float64
	DefaultRate   float64

	// Optional hooks, called on the coordination loop.
	OnStateChange    func(id string, state audio.State)
	OnMetadataChange func(id string, md audio.Metadata)
}

// Source is a single audio source. Every method must be called on the
// coordination loop.
type Source struct {
	def audio.Definition
	env *Env

	state   audio.State
	updater *metadata.Updater

	player         player.Player
	exclusive      bool // player is owned and released by this source
	removeListener func()
	readyPending   bool
	released       bool
}

// New creates a stopped, uninitialized source.
func New(def audio.Definition, env *Env) *Source {
	s := &Source{
		def:   def,
		env:   env,
		state: audio.StateStopped,
	}
	s.updater = metadata.NewUpdater(metadata.Config{
		SourceID: def.ID,
		Fetcher:  env.Fetcher,
		Enricher: env.Enricher,
		Loop:     env.Loop,
		Pool:     env.Pool,
		Timeout:  env.FetchTimeout,
		OnUpdate: s.onRemoteMetadata,
	}, def.Metadata)
	return s
}

// ID returns the source ID.
func (s *Source) ID() string { return s.def.ID }

// UseForNotification reports whether the source drives the session surface.
func (s *Source) UseForNotification() bool { return s.def.UseForNotification }

// IsBackgroundMusic reports the background music flag.
func (s *Source) IsBackgroundMusic() bool { return s.def.IsBackgroundMusic }

// Definition returns the creation attributes with the current locator and metadata.
func (s *Source) Definition() audio.Definition {
	def := s.def
	def.Metadata = s.updater.Metadata()
	return def
}

// Metadata returns the current metadata snapshot.
func (s *Source) Metadata() audio.Metadata { return s.updater.Metadata() }

// State returns the playback state.
func (s *Source) State() audio.State { return s.state }

// IsPlaying reports whether the source is attached and playing.
func (s *Source) IsPlaying() bool {
	return s.player != nil && s.state == audio.StatePlaying
}

// Initialized reports whether a player is attached.
func (s *Source) Initialized() bool { return s.player != nil }

// Released reports whether Release was called.
func (s *Source) Released() bool { return s.released }

// Player returns the attached player, or nil.
func (s *Source) Player() player.Player { return s.player }

// MetadataRunning reports whether the metadata refresh cycle is active.
func (s *Source) MetadataRunning() bool { return s.updater.Running() }

// Initialize allocates an exclusive player. Notification sources receive the
// shared player through Attach instead, so this is a no-op for them.
func (s *Source) Initialize() error {
	if s.released {
		return audio.ErrNotFound
	}
	if s.def.UseForNotification || s.player != nil {
		return nil
	}

	p, err := s.env.Factory.NewPlayer()
	if err != nil {
		return audio.Transport(err, "create")
	}
	if err := s.attach(p, true); err != nil {
		_ = p.Release()
		return err
	}
	zlog.Info().Msgf("audio source initialized: id=%s locator=%s", s.def.ID, s.def.Locator)
	return nil
}

// Attach binds a player owned by someone else, the shared session player.
func (s *Source) Attach(p player.Player) error {
	if s.released {
		return audio.ErrNotFound
	}
	if s.player == p {
		return nil
	}
	s.Detach()
	return s.attach(p, false)
}

// Detach unbinds the player without releasing it.
func (s *Source) Detach() {
	if s.removeListener != nil {
		s.removeListener()
		s.removeListener = nil
	}
	s.player = nil
	s.exclusive = false
}

func (s *Source) attach(p player.Player, exclusive bool) error {
	s.state = audio.StateStopped
	s.player = p
	s.exclusive = exclusive
	s.removeListener = p.AddListener(&bridge{s: s, p: p})

	repeat := player.RepeatOff
	if s.def.Loop {
		repeat = player.RepeatOne
	}
	if err := p.SetMediaItem(s.mediaItem()); err != nil {
		s.Detach()
		return audio.Transport(err, "set media item")
	}
	if err := p.SetRepeatMode(repeat); err != nil {
		s.Detach()
		return audio.Transport(err, "set repeat mode")
	}
	if s.env.DefaultVolume > 0 {
		if err := p.SetVolume(s.env.DefaultVolume); err != nil {
			s.Detach()
			return audio.Transport(err, "set volume")
		}
	}
	if s.env.DefaultRate > 0 {
		if err := p.SetRate(s.env.DefaultRate); err != nil {
			s.Detach()
			return audio.Transport(err, "set rate")
		}
	}
	p.SetPlayWhenReady(false)
	if err := s.prepare(); err != nil {
		s.Detach()
		return err
	}
	return nil
}

func (s *Source) prepare() error {
	s.readyPending = true
	return audio.Transport(s.player.Prepare(), "prepare")
}

func (s *Source) mediaItem() player.MediaItem {
	return player.MediaItem{Locator: s.def.Locator, Metadata: s.updater.Metadata()}
}

func (s *Source) requirePlayer() (player.Player, error) {
	if s.released {
		return nil, audio.ErrNotFound
	}
	if s.player == nil {
		return nil, audio.ErrNotInitialized
	}
	return s.player, nil
}

// ChangeSource switches the media locator and prepares it without playing.
func (s *Source) ChangeSource(locator string) error {
	p, err := s.requirePlayer()
	if err != nil {
		return err
	}

	s.def.Locator = locator
	if err := p.SetMediaItem(s.mediaItem()); err != nil {
		return audio.Transport(err, "set media item")
	}
	p.SetPlayWhenReady(false)
	return s.prepare()
}

// ChangeMetadata merges the non-nil fields of patch. Playback is not interrupted.
func (s *Source) ChangeMetadata(patch audio.MetadataPatch) error {
	if s.released {
		return audio.ErrNotFound
	}

	md := s.updater.Metadata().Merge(patch)
	s.updater.Set(md)
	// a URL added while playing starts the cycle; Start is a no-op when already running
	if s.state == audio.StatePlaying {
		s.updater.Start()
	}
	if s.env.OnMetadataChange != nil {
		s.env.OnMetadataChange(s.def.ID, md)
	}
	if s.player == nil {
		return nil
	}
	return audio.Transport(s.player.ReplaceMetadata(md), "replace metadata")
}

// RefreshMetadata fetches remote metadata once, outside the refresh cycle.
func (s *Source) RefreshMetadata() error {
	if s.released {
		return audio.ErrNotFound
	}
	return s.updater.RefreshNow()
}

// Play starts playback, preparing again when the transport went idle.
func (s *Source) Play() error {
	p, err := s.requirePlayer()
	if err != nil {
		return err
	}

	s.state = audio.StatePlaying
	if p.State() == player.TransportIdle {
		if err := s.prepare(); err != nil {
			return err
		}
	}
	return audio.Transport(p.Play(), "play")
}

// Pause pauses playback and keeps the position.
func (s *Source) Pause() error {
	p, err := s.requirePlayer()
	if err != nil {
		return err
	}

	s.state = audio.StatePaused
	s.updater.Stop()
	return audio.Transport(p.Pause(), "pause")
}

// Stop pauses playback and rewinds to the start.
func (s *Source) Stop() error {
	p, err := s.requirePlayer()
	if err != nil {
		return err
	}

	s.state = audio.StateStopped
	s.updater.Stop()
	if err := p.Pause(); err != nil {
		return audio.Transport(err, "pause")
	}
	return audio.Transport(p.SeekToDefaultPosition(), "seek to start")
}

// Seek moves the playback position.
func (s *Source) Seek(seconds float64) error {
	p, err := s.requirePlayer()
	if err != nil {
		return err
	}
	return audio.Transport(p.SeekTo(fromSeconds(seconds)), "seek")
}

// SetVolume sets the volume in the range 0..1.
func (s *Source) SetVolume(volume float64) error {
	p, err := s.requirePlayer()
	if err != nil {
		return err
	}
	return audio.Transport(p.SetVolume(volume), "set volume")
}

// SetRate sets the playback speed.
func (s *Source) SetRate(rate float64) error {
	p, err := s.requirePlayer()
	if err != nil {
		return err
	}
	return audio.Transport(p.SetRate(rate), "set rate")
}

// Duration returns the media length in whole seconds, or -1 when unknown.
func (s *Source) Duration() (float64, error) {
	p, err := s.requirePlayer()
	if err != nil {
		return 0, err
	}
	d := p.Duration()
	if d < 0 {
		return -1, nil
	}
	return math.Floor(d.Seconds()), nil
}

// CurrentTime returns the playback position in whole seconds.
func (s *Source) CurrentTime() (float64, error) {
	p, err := s.requirePlayer()
	if err != nil {
		return 0, err
	}
	return math.Floor(p.Position().Seconds()), nil
}

// Release detaches the player, releasing it when owned, and stops the
// metadata updater. It is idempotent.
func (s *Source) Release() error {
	if s.released {
		return nil
	}
	s.released = true
	s.updater.Release()

	p, exclusive := s.player, s.exclusive
	s.Detach()
	if p != nil && exclusive {
		if err := p.Release(); err != nil {
			return audio.Transport(err, "release")
		}
	}
	zlog.Info().Msgf("audio source released: id=%s", s.def.ID)
	return nil
}

func (s *Source) setState(state audio.State) {
	s.state = state
	if s.env.OnStateChange != nil {
		s.env.OnStateChange(s.def.ID, state)
	}
}

func (s *Source) resolve(kind callback.Kind, payload map[string]any) {
	if s.env.Notifier == nil {
		return
	}
	s.env.Notifier.Resolve(kind, s.def.ID, payload)
}

func (s *Source) onRemoteMetadata(md audio.Metadata, payload map[string]any) {
	if s.released {
		return
	}
	if s.player != nil {
		if err := s.player.ReplaceMetadata(md); err != nil {
			zlog.Warn().Msgf("failed to apply remote metadata: id=%s error=%v", s.def.ID, err)
		}
	}
	if s.env.OnMetadataChange != nil {
		s.env.OnMetadataChange(s.def.ID, md)
	}
	s.resolve(callback.KindMetadataUpdate, payload)
}

func fromSeconds(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
