package player

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/nativeaudio/internal/app/player"
)

type recorder struct {
	mu      sync.Mutex
	states  []player.TransportState
	playing []bool
}

func (r *recorder) OnIsPlayingChanged(isPlaying bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playing = append(r.playing, isPlaying)
}

func (r *recorder) OnPlaybackStateChanged(state player.TransportState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recorder) States() []player.TransportState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]player.TransportState(nil), r.states...)
}

func (r *recorder) Playing() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.playing...)
}

func fixedProbe(d time.Duration) Prober {
	return func(context.Context, string) (time.Duration, error) { return d, nil }
}

func newClock(t *testing.T, d time.Duration) (*Clock, *recorder) {
	t.Helper()
	c := New(Config{Tick: 2 * time.Millisecond, Probe: fixedProbe(d)})
	rec := &recorder{}
	c.AddListener(rec)
	t.Cleanup(func() { _ = c.Release() })
	return c, rec
}

func prepare(t *testing.T, c *Clock) {
	t.Helper()
	require.NoError(t, c.SetMediaItem(player.MediaItem{Locator: "file:///music/a.mp3"}))
	require.NoError(t, c.Prepare())
	require.Eventually(t, func() bool { return c.State() == player.TransportReady }, time.Second, time.Millisecond)
}

func TestClock_PrepareReachesReady(t *testing.T) {
	c, rec := newClock(t, time.Minute)
	prepare(t, c)

	assert.Equal(t, time.Minute, c.Duration())
	assert.False(t, c.IsPlaying())
	require.Eventually(t, func() bool { return len(rec.States()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []player.TransportState{player.TransportBuffering, player.TransportReady}, rec.States())
}

func TestClock_PlayWhenReadyBeforePrepare(t *testing.T) {
	c, rec := newClock(t, time.Minute)
	c.SetPlayWhenReady(true)
	prepare(t, c)

	require.Eventually(t, c.IsPlaying, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.Playing()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []bool{true}, rec.Playing())
}

func TestClock_PlaysToEnd(t *testing.T) {
	c, rec := newClock(t, 20*time.Millisecond)
	prepare(t, c)
	require.NoError(t, c.Play())

	require.Eventually(t, func() bool { return c.State() == player.TransportEnded }, time.Second, time.Millisecond)
	assert.False(t, c.IsPlaying())
	assert.Equal(t, 20*time.Millisecond, c.Position())

	require.Eventually(t, func() bool { return len(rec.Playing()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []bool{true, false}, rec.Playing())
	states := rec.States()
	assert.Equal(t, player.TransportEnded, states[len(states)-1])

	// Rewinding an ended player makes it ready without playing
	c.SetPlayWhenReady(false)
	require.NoError(t, c.SeekToDefaultPosition())
	assert.Equal(t, player.TransportReady, c.State())
	assert.Equal(t, time.Duration(0), c.Position())
	assert.False(t, c.IsPlaying())
}

func TestClock_RepeatOneLoops(t *testing.T) {
	c, _ := newClock(t, 10*time.Millisecond)
	require.NoError(t, c.SetRepeatMode(player.RepeatOne))
	prepare(t, c)
	require.NoError(t, c.Play())

	time.Sleep(50 * time.Millisecond)
	assert.True(t, c.IsPlaying())
	assert.Equal(t, player.TransportReady, c.State())
}

func TestClock_PausePreservesPosition(t *testing.T) {
	c, _ := newClock(t, time.Minute)
	prepare(t, c)
	require.NoError(t, c.SeekTo(10*time.Second))
	require.NoError(t, c.Play())
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, c.Pause())

	pos := c.Position()
	assert.GreaterOrEqual(t, pos, 10*time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, pos, c.Position())
	assert.False(t, c.PlayWhenReady())
}

func TestClock_SeekClampsToDuration(t *testing.T) {
	c, _ := newClock(t, time.Minute)
	prepare(t, c)

	require.NoError(t, c.SeekTo(2*time.Minute))
	assert.Equal(t, time.Minute, c.Position())
	require.NoError(t, c.SeekTo(-time.Second))
	assert.Equal(t, time.Duration(0), c.Position())
}

func TestClock_UnknownDurationNeverEnds(t *testing.T) {
	c, _ := newClock(t, player.DurationUnknown)
	prepare(t, c)
	require.NoError(t, c.Play())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, c.IsPlaying())
	assert.Equal(t, player.DurationUnknown, c.Duration())
	assert.Greater(t, c.Position(), time.Duration(0))
}

func TestClock_SetMediaItemResets(t *testing.T) {
	c, _ := newClock(t, time.Minute)
	prepare(t, c)
	require.NoError(t, c.Play())

	require.NoError(t, c.SetMediaItem(player.MediaItem{Locator: "file:///music/b.mp3"}))
	assert.Equal(t, player.TransportIdle, c.State())
	assert.False(t, c.IsPlaying())
	assert.Equal(t, player.DurationUnknown, c.Duration())
	assert.Equal(t, time.Duration(0), c.Position())
}

func TestClock_Validation(t *testing.T) {
	c, _ := newClock(t, time.Minute)
	assert.Error(t, c.SetVolume(1.5))
	assert.Error(t, c.SetRate(0))
	require.NoError(t, c.SetVolume(0.3))
	assert.Equal(t, 0.3, c.Volume())
}

func TestClock_ReleasedRejectsCalls(t *testing.T) {
	c, rec := newClock(t, time.Minute)
	require.NoError(t, c.Release())
	require.NoError(t, c.Release())

	assert.ErrorIs(t, c.Play(), ErrReleased)
	assert.ErrorIs(t, c.Prepare(), ErrReleased)
	assert.ErrorIs(t, c.SetMediaItem(player.MediaItem{}), ErrReleased)
	time.Sleep(5 * time.Millisecond)
	assert.Empty(t, rec.States())
}

func TestProbeMP3(t *testing.T) {
	d, err := ProbeMP3(context.Background(), "https://radio.example.com/stream")
	require.NoError(t, err)
	assert.Equal(t, player.DurationUnknown, d)

	d, err = ProbeMP3(context.Background(), "file:///music/a.ogg")
	require.NoError(t, err)
	assert.Equal(t, player.DurationUnknown, d)

	_, err = ProbeMP3(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))
	assert.Error(t, err)

	bogus := filepath.Join(t.TempDir(), "bogus.mp3")
	require.NoError(t, os.WriteFile(bogus, []byte("not an mp3"), 0o600))
	_, err = ProbeMP3(context.Background(), "file://"+bogus)
	assert.Error(t, err)
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"file:///music/a.mp3", "/music/a.mp3", true},
		{"/music/a.mp3", "/music/a.mp3", true},
		{"https://example.com/a.mp3", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := localPath(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
