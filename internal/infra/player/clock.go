// Package player provides the clock player: a wall-clock transport that tracks
// position and end of media without decoding audio.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nativeaudio/internal/app/coord"
	"github.com/osa030/nativeaudio/internal/app/player"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// ErrReleased is returned by every operation on a released player.
var ErrReleased = errors.New("player is released")

// Prober returns the duration of the media at locator, or player.DurationUnknown.
type Prober func(ctx context.Context, locator string) (time.Duration, error)

// Config represents clock player configuration.
type Config struct {
	Tick         time.Duration // end-of-media check period
	Probe        Prober        // defaults to ProbeMP3
	ProbeTimeout time.Duration
}

// Clock implements player.Player against the wall clock. Listeners are
// notified in order on a goroutine owned by the player.
type Clock struct {
	cfg    Config
	events *coord.Loop

	mu            sync.Mutex
	item          player.MediaItem
	repeat        player.RepeatMode
	playWhenReady bool
	state         player.TransportState
	playing       bool
	duration      time.Duration
	volume        float64
	rate          float64
	released      bool

	// position is basePos plus the wall time elapsed since anchor, scaled by rate
	basePos time.Duration
	anchor  time.Time

	gen         uint64 // media generation, bumped by SetMediaItem
	timerGen    uint64
	cancelTimer func()

	listeners map[int]player.Listener
	nextID    int
}

// NewFactory returns a factory of clock players.
func NewFactory(cfg Config) player.Factory {
	return player.FactoryFunc(func() (player.Player, error) {
		return New(cfg), nil
	})
}

// New creates an idle clock player.
func New(cfg Config) *Clock {
	if cfg.Tick <= 0 {
		cfg.Tick = 250 * time.Millisecond
	}
	if cfg.Probe == nil {
		cfg.Probe = ProbeMP3
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &Clock{
		cfg:       cfg,
		events:    coord.NewLoop(),
		state:     player.TransportIdle,
		duration:  player.DurationUnknown,
		volume:    1,
		rate:      1,
		listeners: make(map[int]player.Listener),
	}
}

// notifyLocked queues fn for every current listener.
func (c *Clock) notifyLocked(fn func(l player.Listener)) {
	ls := make([]player.Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.events.Post(func() {
		for _, l := range ls {
			fn(l)
		}
	})
}

func (c *Clock) setStateLocked(state player.TransportState) {
	if c.state == state {
		return
	}
	c.state = state
	c.notifyLocked(func(l player.Listener) { l.OnPlaybackStateChanged(state) })
}

func (c *Clock) positionLocked() time.Duration {
	pos := c.basePos
	if c.playing {
		elapsed := toWallTime(time.Now()).Sub(c.anchor)
		pos += time.Duration(float64(elapsed) * c.rate)
	}
	if c.duration >= 0 && pos > c.duration {
		pos = c.duration
	}
	return pos
}

func (c *Clock) startPlayingLocked() {
	if c.playing || c.state != player.TransportReady {
		return
	}
	c.playing = true
	c.anchor = toWallTime(time.Now())
	c.notifyLocked(func(l player.Listener) { l.OnIsPlayingChanged(true) })
	c.armLocked()
}

func (c *Clock) stopPlayingLocked() {
	if !c.playing {
		return
	}
	c.basePos = c.positionLocked()
	c.playing = false
	c.disarmLocked()
	c.notifyLocked(func(l player.Listener) { l.OnIsPlayingChanged(false) })
}

// armLocked schedules the end of media for the current position and rate.
func (c *Clock) armLocked() {
	c.disarmLocked()
	if c.duration < 0 {
		return
	}
	remaining := time.Duration(float64(c.duration-c.basePos) / c.rate)
	if remaining < 0 {
		remaining = 0
	}
	c.timerGen++
	gen := c.timerGen
	c.cancelTimer = startWallClockTimer(remaining, c.cfg.Tick, func() {
		c.onEnd(gen)
	})
}

func (c *Clock) disarmLocked() {
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
}

func (c *Clock) onEnd(timerGen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released || timerGen != c.timerGen || !c.playing {
		return
	}
	c.cancelTimer = nil
	if c.repeat == player.RepeatOne {
		c.basePos = 0
		c.anchor = toWallTime(time.Now())
		c.armLocked()
		return
	}

	c.basePos = c.duration
	c.stopPlayingLocked()
	c.setStateLocked(player.TransportEnded)
	zlog.Debug().Msgf("clock player ended: locator=%s", c.item.Locator)
}

// SetMediaItem implements player.Player.
func (c *Clock) SetMediaItem(item player.MediaItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}

	c.stopPlayingLocked()
	c.gen++
	c.item = item
	c.basePos = 0
	c.duration = player.DurationUnknown
	c.setStateLocked(player.TransportIdle)
	return nil
}

// ReplaceMetadata implements player.Player.
func (c *Clock) ReplaceMetadata(md audio.Metadata) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}
	c.item.Metadata = md
	return nil
}

// SetRepeatMode implements player.Player.
func (c *Clock) SetRepeatMode(mode player.RepeatMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}
	c.repeat = mode
	return nil
}

// SetPlayWhenReady implements player.Player.
func (c *Clock) SetPlayWhenReady(playWhenReady bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return
	}
	c.playWhenReady = playWhenReady
	if playWhenReady {
		c.startPlayingLocked()
	} else {
		c.stopPlayingLocked()
	}
}

// PlayWhenReady implements player.Player.
func (c *Clock) PlayWhenReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playWhenReady
}

// Prepare moves an idle player to buffering and probes the media in the
// background. The player becomes ready once the probe returns.
func (c *Clock) Prepare() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}
	if c.state != player.TransportIdle {
		return nil
	}

	c.setStateLocked(player.TransportBuffering)
	go c.load(c.gen, c.item.Locator)
	return nil
}

func (c *Clock) load(gen uint64, locator string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ProbeTimeout)
	defer cancel()

	d, err := c.cfg.Probe(ctx, locator)
	if err != nil {
		zlog.Warn().Msgf("failed to probe media duration: locator=%s error=%v", locator, err)
		d = player.DurationUnknown
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released || gen != c.gen || c.state != player.TransportBuffering {
		return
	}
	c.duration = d
	c.setStateLocked(player.TransportReady)
	if c.playWhenReady {
		c.startPlayingLocked()
	}
}

// Play implements player.Player.
func (c *Clock) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}
	c.playWhenReady = true
	c.startPlayingLocked()
	return nil
}

// Pause implements player.Player.
func (c *Clock) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}
	c.playWhenReady = false
	c.stopPlayingLocked()
	return nil
}

// SeekTo implements player.Player. Seeking an ended player makes it ready again.
func (c *Clock) SeekTo(position time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}

	if position < 0 {
		position = 0
	}
	if c.duration >= 0 && position > c.duration {
		position = c.duration
	}
	c.basePos = position
	c.anchor = toWallTime(time.Now())
	if c.playing {
		c.armLocked()
	}
	if c.state == player.TransportEnded {
		c.setStateLocked(player.TransportReady)
		if c.playWhenReady {
			c.startPlayingLocked()
		}
	}
	return nil
}

// SeekToDefaultPosition implements player.Player.
func (c *Clock) SeekToDefaultPosition() error {
	return c.SeekTo(0)
}

// SetVolume implements player.Player. The clock player has no output, the
// value is only recorded.
func (c *Clock) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return errors.Newf("volume %v out of range", volume)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}
	c.volume = volume
	return nil
}

// Volume returns the recorded volume.
func (c *Clock) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// SetRate implements player.Player.
func (c *Clock) SetRate(rate float64) error {
	if rate <= 0 {
		return errors.Newf("rate %v must be positive", rate)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return ErrReleased
	}

	if c.playing {
		c.basePos = c.positionLocked()
		c.anchor = toWallTime(time.Now())
	}
	c.rate = rate
	if c.playing {
		c.armLocked()
	}
	return nil
}

// Duration implements player.Player.
func (c *Clock) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// Position implements player.Player.
func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

// State implements player.Player.
func (c *Clock) State() player.TransportState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsPlaying implements player.Player.
func (c *Clock) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// AddListener implements player.Player.
func (c *Clock) AddListener(l player.Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Release implements player.Player. No events are delivered afterwards.
func (c *Clock) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return nil
	}
	c.released = true
	c.gen++
	c.playing = false
	c.disarmLocked()
	c.listeners = make(map[int]player.Listener)
	c.events.Close()
	return nil
}

// startWallClockTimer calls callback once duration has passed on the wall
// clock. It returns a cancel function.
func startWallClockTimer(duration, tick time.Duration, callback func()) func() {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		endTime := toWallTime(time.Now()).Add(duration)
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !toWallTime(time.Now()).Before(endTime) {
					callback()
					return
				}
			}
		}
	}()

	return cancel
}

// toWallTime returns the time with the monotonic clock reading stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
