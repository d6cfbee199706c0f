// Package playertest provides an in-memory player for tests.
package playertest

import (
	"sync"
	"time"

	"github.com/osa030/nativeaudio/internal/app/player"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// Fake is a scripted player. Transport events are only produced by Emit calls.
type Fake struct {
	mu sync.Mutex

	item          player.MediaItem
	repeat        player.RepeatMode
	playWhenReady bool
	state         player.TransportState
	playing       bool
	position      time.Duration
	duration      time.Duration
	volume        float64
	rate          float64
	released      bool

	listeners map[int]player.Listener
	nextID    int

	calls []string
	errs  map[string]error
}

// New returns an idle fake with an unknown duration.
func New() *Fake {
	return &Fake{
		duration:  player.DurationUnknown,
		volume:    1,
		rate:      1,
		listeners: make(map[int]player.Listener),
		errs:      make(map[string]error),
	}
}

// Factory returns a factory that records every player it creates.
func Factory(created *[]*Fake, mu *sync.Mutex) player.Factory {
	return player.FactoryFunc(func() (player.Player, error) {
		f := New()
		mu.Lock()
		*created = append(*created, f)
		mu.Unlock()
		return f, nil
	})
}

// FailOn makes the named method return err.
func (f *Fake) FailOn(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

// SetDuration sets the reported duration.
func (f *Fake) SetDuration(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.duration = d
}

// SetPosition sets the reported position.
func (f *Fake) SetPosition(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = d
}

// Calls returns the recorded method names in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many times method was called.
func (f *Fake) Count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

// Item returns the current media item.
func (f *Fake) Item() player.MediaItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.item
}

// Repeat returns the repeat mode.
func (f *Fake) Repeat() player.RepeatMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repeat
}

// Volume returns the volume.
func (f *Fake) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

// Rate returns the playback rate.
func (f *Fake) Rate() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate
}

// Released reports whether Release was called.
func (f *Fake) Released() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.released
}

// ListenerCount returns the number of registered listeners.
func (f *Fake) ListenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// EmitState sets the transport state and notifies listeners on the calling goroutine.
func (f *Fake) EmitState(state player.TransportState) {
	f.mu.Lock()
	f.state = state
	ls := f.snapshotLocked()
	f.mu.Unlock()
	for _, l := range ls {
		l.OnPlaybackStateChanged(state)
	}
}

// EmitIsPlaying sets the playing flag and notifies listeners on the calling goroutine.
func (f *Fake) EmitIsPlaying(playing bool) {
	f.mu.Lock()
	f.playing = playing
	ls := f.snapshotLocked()
	f.mu.Unlock()
	for _, l := range ls {
		l.OnIsPlayingChanged(playing)
	}
}

func (f *Fake) snapshotLocked() []player.Listener {
	ls := make([]player.Listener, 0, len(f.listeners))
	for _, l := range f.listeners {
		ls = append(ls, l)
	}
	return ls
}

func (f *Fake) record(method string) error {
	f.calls = append(f.calls, method)
	return f.errs[method]
}

func (f *Fake) SetMediaItem(item player.MediaItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetMediaItem"); err != nil {
		return err
	}
	f.item = item
	f.state = player.TransportIdle
	return nil
}

func (f *Fake) ReplaceMetadata(md audio.Metadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ReplaceMetadata"); err != nil {
		return err
	}
	f.item.Metadata = md
	return nil
}

func (f *Fake) SetRepeatMode(mode player.RepeatMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetRepeatMode"); err != nil {
		return err
	}
	f.repeat = mode
	return nil
}

func (f *Fake) SetPlayWhenReady(playWhenReady bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "SetPlayWhenReady")
	f.playWhenReady = playWhenReady
}

func (f *Fake) PlayWhenReady() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playWhenReady
}

func (f *Fake) Prepare() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Prepare"); err != nil {
		return err
	}
	if f.state == player.TransportIdle {
		f.state = player.TransportBuffering
	}
	return nil
}

func (f *Fake) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Play"); err != nil {
		return err
	}
	f.playWhenReady = true
	return nil
}

func (f *Fake) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Pause"); err != nil {
		return err
	}
	f.playWhenReady = false
	return nil
}

func (f *Fake) SeekTo(position time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SeekTo"); err != nil {
		return err
	}
	f.position = position
	return nil
}

func (f *Fake) SeekToDefaultPosition() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SeekToDefaultPosition"); err != nil {
		return err
	}
	f.position = 0
	return nil
}

func (f *Fake) SetVolume(volume float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetVolume"); err != nil {
		return err
	}
	f.volume = volume
	return nil
}

func (f *Fake) SetRate(rate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SetRate"); err != nil {
		return err
	}
	f.rate = rate
	return nil
}

func (f *Fake) Duration() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration
}

func (f *Fake) Position() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *Fake) State() player.TransportState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Fake) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *Fake) AddListener(l player.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *Fake) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Release"); err != nil {
		return err
	}
	f.released = true
	f.listeners = make(map[int]player.Listener)
	return nil
}
