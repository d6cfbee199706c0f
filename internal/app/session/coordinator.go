// Package session provides the session coordinator: it owns the coordination
// loop, the source registry and the single shared session player.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nativeaudio/internal/app/callback"
	"github.com/osa030/nativeaudio/internal/app/coord"
	"github.com/osa030/nativeaudio/internal/app/metadata"
	"github.com/osa030/nativeaudio/internal/app/player"
	"github.com/osa030/nativeaudio/internal/app/session/registry"
	"github.com/osa030/nativeaudio/internal/app/session/state"
	"github.com/osa030/nativeaudio/internal/app/source"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// ErrTerminated is returned for commands sent after the coordinator closed.
var ErrTerminated = errors.New("session coordinator is terminated")

// Options configures a Coordinator.
type Options struct {
	HostID     string // generated when empty
	HostOrigin string // origin that owns the players; empty accepts every origin

	PlayerFactory player.Factory // exclusive players
	SharedFactory player.Factory // shared session player, defaults to PlayerFactory
	Fetcher       metadata.Fetcher
	Enricher      metadata.Enricher
	Surface       Surface
	Store         SnapshotStore // optional
	Callbacks     *callback.Table

	Pool            coord.PoolConfig
	FetchTimeout    time.Duration
	SnapshotTimeout time.Duration
	DefaultVolume   float64
	DefaultRate     float64
	UpdateInterval  time.Duration  // refresh interval for sources created without one
	SurfaceOptions  SurfaceOptions // defaults for sources that do not set their own
}

// Coordinator manages every audio source of the process.
//
// Methods documented as loop-only must run on Loop(); the façade marshals
// commands there. Dispatch, Status and Close are safe from any goroutine.
type Coordinator struct {
	opts Options

	loop      *coord.Loop
	pool      *coord.Pool
	env       *source.Env
	registry  *registry.SourceRegistry
	callbacks *callback.Table
	stateMgr  *state.Manager

	shared    *SessionPlayer
	snapshots *snapshotWriter // nil without a store

	commands chan commandRequest

	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewCoordinator creates a coordinator and starts its loop, pool and command handler.
func NewCoordinator(opts Options) *Coordinator {
	if opts.HostID == "" {
		opts.HostID = uuid.New().String()
	}
	if opts.SharedFactory == nil {
		opts.SharedFactory = opts.PlayerFactory
	}
	if opts.Surface == nil {
		opts.Surface = LogSurface{}
	}
	if opts.Callbacks == nil {
		opts.Callbacks = callback.NewTable()
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		opts:      opts,
		loop:      coord.NewLoop(),
		pool:      coord.NewPool(opts.Pool),
		registry:  registry.NewSourceRegistry(),
		callbacks: opts.Callbacks,
		stateMgr:  state.New(opts.HostID),
		commands:  make(chan commandRequest),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	if opts.Store != nil {
		c.snapshots = newSnapshotWriter(opts.Store, opts.SnapshotTimeout)
	}
	c.env = &source.Env{
		Factory:       opts.PlayerFactory,
		Loop:          c.loop,
		Pool:          c.pool,
		Fetcher:       opts.Fetcher,
		Enricher:      opts.Enricher,
		Notifier:      opts.Callbacks,
		FetchTimeout:  opts.FetchTimeout,
		DefaultVolume: opts.DefaultVolume,
		DefaultRate:   opts.DefaultRate,
	}

	go c.commandLoop()
	return c
}

// Loop returns the coordination loop.
func (c *Coordinator) Loop() *coord.Loop { return c.loop }

// Callbacks returns the callback registration table.
func (c *Coordinator) Callbacks() *callback.Table { return c.callbacks }

// Registry returns the source registry. Mutate it on the loop only.
func (c *Coordinator) Registry() *registry.SourceRegistry { return c.registry }

// Status returns the hosting context state.
func (c *Coordinator) Status() state.Status { return c.stateMgr.Status() }

// Done is closed after Close completes.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// SurfaceDefaults returns the default surface controls.
func (c *Coordinator) SurfaceDefaults() SurfaceOptions { return c.opts.SurfaceOptions }

// UpdateInterval returns the refresh interval applied to new sources that do not set one.
func (c *Coordinator) UpdateInterval() time.Duration {
	if c.opts.UpdateInterval <= 0 {
		return audio.DefaultUpdateInterval
	}
	return c.opts.UpdateInterval
}

// HostOrigin returns the origin that owns the players.
func (c *Coordinator) HostOrigin() string { return c.opts.HostOrigin }

// IsHostOrigin reports whether origin may drive players directly.
func (c *Coordinator) IsHostOrigin(origin string) bool {
	return c.opts.HostOrigin == "" || origin == "" || origin == c.opts.HostOrigin
}

// Create registers a new source. Loop-only.
func (c *Coordinator) Create(def audio.Definition) (*source.Source, error) {
	if c.stateMgr.GetPhase() == state.PhaseTerminated {
		return nil, ErrTerminated
	}

	s := source.New(def, c.env)
	if err := c.registry.Add(s); err != nil {
		return nil, err
	}
	zlog.Info().Msgf("audio source created: id=%s notification=%t background=%t loop=%t", def.ID, def.UseForNotification, def.IsBackgroundMusic, def.Loop)
	c.sourcesChanged()
	return s, nil
}

// Initialize attaches a player to the source. Notification sources receive the
// shared session player. Loop-only.
func (c *Coordinator) Initialize(s *source.Source) error {
	if !s.UseForNotification() {
		return s.Initialize()
	}
	if s.Initialized() {
		return nil
	}

	shared, err := c.sharedPlayer()
	if err != nil {
		return err
	}
	def := s.Definition()
	shared.SetOwner(s.ID(), SurfaceOptions{
		ShowSeekBackward: def.ShowSeekBackward,
		ShowSeekForward:  def.ShowSeekForward,
	})
	if err := s.Attach(shared); err != nil {
		return err
	}
	zlog.Info().Msgf("notification source attached to session: id=%s host_id=%s", s.ID(), c.opts.HostID)
	c.publishSnapshot()
	return nil
}

// sharedPlayer lazily builds the shared session player.
func (c *Coordinator) sharedPlayer() (*SessionPlayer, error) {
	if c.shared != nil {
		return c.shared, nil
	}
	p, err := c.opts.SharedFactory.NewPlayer()
	if err != nil {
		return nil, audio.Transport(err, "create session player")
	}
	c.shared = newSessionPlayer(p, c.opts.Surface, c.opts.SurfaceOptions)
	zlog.Info().Msgf("session player created: host_id=%s", c.opts.HostID)
	return c.shared, nil
}

// Play plays the source and marks the hosting context running. Loop-only.
func (c *Coordinator) Play(s *source.Source) error {
	if err := s.Play(); err != nil {
		return err
	}
	c.stateMgr.Transition(state.PhaseRunning)
	return nil
}

// Destroy releases and removes a source. The notification source cannot be
// destroyed while other sources exist. Loop-only.
func (c *Coordinator) Destroy(id string) error {
	s, err := c.registry.Get(id)
	if err != nil {
		return err
	}
	if c.registry.DestroyNotAllowed(id) {
		return audio.ErrDestroyNotAllowed
	}

	var releaseErr error
	if s.UseForNotification() {
		releaseErr = c.releaseSession(s)
	} else {
		releaseErr = s.Release()
	}

	_ = c.registry.Remove(id)
	c.callbacks.RemoveSource(id)
	zlog.Info().Msgf("audio source destroyed: id=%s remaining=%d", id, c.registry.Count())
	c.sourcesChanged()
	return releaseErr
}

// releaseSession stops and releases the shared player and clears the session.
func (c *Coordinator) releaseSession(s *source.Source) error {
	if s.Initialized() {
		if err := s.Stop(); err != nil {
			zlog.Warn().Msgf("failed to stop notification source: id=%s error=%v", s.ID(), err)
		}
	}
	if err := s.Release(); err != nil {
		zlog.Warn().Msgf("failed to release notification source: id=%s error=%v", s.ID(), err)
	}

	var err error
	if c.shared != nil {
		err = audio.Transport(c.shared.Release(), "release session player")
		c.shared = nil
		zlog.Info().Msgf("session player released: host_id=%s", c.opts.HostID)
	}
	c.deleteSnapshot()
	return err
}

// TaskRemoved handles removal of the hosting task: other sources are destroyed,
// the shared player is paused when play was requested, and the hosting context
// stops. Loop-only.
func (c *Coordinator) TaskRemoved() {
	for _, id := range c.registry.DestroyAllNonNotification() {
		c.callbacks.RemoveSource(id)
	}

	if n := c.registry.ForNotification(); n != nil && c.shared != nil && c.shared.PlayWhenReady() {
		if err := n.Pause(); err != nil {
			zlog.Warn().Msgf("failed to pause session player: error=%v", err)
		}
	}

	c.stateMgr.Transition(state.PhaseStopped)
	c.sourcesChanged()
}

// AppStateChanged resolves the app focus callbacks.
func (c *Coordinator) AppStateChanged(foreground bool) {
	kind := callback.KindAppLosesFocus
	if foreground {
		kind = callback.KindAppGainsFocus
	}
	c.callbacks.Resolve(kind, "", nil)
}

// Close runs the forced-shutdown path and stops the loop, the pool and the
// command handler. Fetches still in flight are abandoned.
func (c *Coordinator) Close(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		err = c.close(ctx)
	})
	return err
}

func (c *Coordinator) close(ctx context.Context) error {
	err := coord.Do(ctx, c.loop, func() error {
		c.TaskRemoved()
		if n := c.registry.ForNotification(); n != nil {
			_ = c.releaseSession(n)
			_ = c.registry.Remove(n.ID())
			c.callbacks.RemoveSource(n.ID())
		}
		c.stateMgr.Transition(state.PhaseTerminated)
		return nil
	})

	c.cancel()
	c.pool.Shutdown()
	c.loop.Close()
	c.callbacks.Close()
	close(c.done)
	zlog.Info().Msgf("session coordinator closed: host_id=%s", c.opts.HostID)
	return err
}

func (c *Coordinator) sourcesChanged() {
	notificationID := ""
	if n := c.registry.ForNotification(); n != nil {
		notificationID = n.ID()
	}
	c.stateMgr.SetSources(notificationID, c.registry.Count())
	c.publishSnapshot()
}

// snapshot builds the session snapshot. Loop-only.
func (c *Coordinator) snapshot() audio.SessionSnapshot {
	snap := audio.SessionSnapshot{
		HostID:    c.opts.HostID,
		UpdatedAt: time.Now(),
	}
	for _, s := range c.registry.All() {
		def := s.Definition()
		if def.UseForNotification {
			snap.NotificationID = def.ID
		}
		snap.Sources = append(snap.Sources, audio.SnapshotEntry{
			ID:                 def.ID,
			Locator:            def.Locator,
			UseForNotification: def.UseForNotification,
			IsBackgroundMusic:  def.IsBackgroundMusic,
			Loop:               def.Loop,
		})
	}
	return snap
}

// publishSnapshot saves the snapshot off the loop while a session exists.
func (c *Coordinator) publishSnapshot() {
	if c.snapshots == nil || c.shared == nil {
		return
	}
	c.pool.Submit(c.snapshots.save(c.snapshot()))
}

func (c *Coordinator) deleteSnapshot() {
	if c.snapshots == nil {
		return
	}
	c.pool.Submit(c.snapshots.remove(c.opts.HostID))
}
