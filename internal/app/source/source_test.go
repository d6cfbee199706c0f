package source

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/nativeaudio/internal/app/callback"
	"github.com/osa030/nativeaudio/internal/app/coord"
	"github.com/osa030/nativeaudio/internal/app/player"
	"github.com/osa030/nativeaudio/internal/app/player/playertest"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// inlineLoop runs posted functions immediately on the caller's goroutine.
type inlineLoop struct{}

func (inlineLoop) Post(fn func()) bool {
	fn()
	return true
}

type manualPool struct {
	jobs []coord.Job
}

func (p *manualPool) Submit(job coord.Job) bool {
	p.jobs = append(p.jobs, job)
	return true
}

type staticFetcher struct {
	payload map[string]any
}

func (f staticFetcher) FetchJSON(ctx context.Context, url string) (map[string]any, error) {
	return f.payload, nil
}

type resolved struct {
	kind     callback.Kind
	sourceID string
	payload  map[string]any
}

type recordingNotifier struct {
	events []resolved
}

func (n *recordingNotifier) Resolve(kind callback.Kind, sourceID string, payload map[string]any) bool {
	n.events = append(n.events, resolved{kind: kind, sourceID: sourceID, payload: payload})
	return true
}

func (n *recordingNotifier) count(kind callback.Kind) int {
	c := 0
	for _, e := range n.events {
		if e.kind == kind {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) statuses() []string {
	var out []string
	for _, e := range n.events {
		if e.kind == callback.KindPlaybackStatusChange {
			out = append(out, e.payload["status"].(string))
		}
	}
	return out
}

type fixture struct {
	env      *Env
	pool     *manualPool
	notifier *recordingNotifier
	players  []*playertest.Fake
	mu       sync.Mutex
}

func newFixture() *fixture {
	f := &fixture{pool: &manualPool{}, notifier: &recordingNotifier{}}
	f.env = &Env{
		Factory:  playertest.Factory(&f.players, &f.mu),
		Loop:     inlineLoop{},
		Pool:     f.pool,
		Fetcher:  staticFetcher{payload: map[string]any{audio.KeySongTitle: "remote"}},
		Notifier: f.notifier,
	}
	return f
}

func (f *fixture) lastPlayer(t *testing.T) *playertest.Fake {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.players)
	return f.players[len(f.players)-1]
}

func background(id string) audio.Definition {
	return audio.Definition{ID: id, Locator: "file:///music/" + id + ".mp3", Metadata: audio.Metadata{Title: id}}
}

func TestSource_InitializeExclusive(t *testing.T) {
	f := newFixture()
	def := background("b")
	def.Loop = true
	s := New(def, f.env)

	require.NoError(t, s.Initialize())
	require.NoError(t, s.Initialize())

	require.Len(t, f.players, 1)
	p := f.lastPlayer(t)
	assert.True(t, s.Initialized())
	assert.Equal(t, def.Locator, p.Item().Locator)
	assert.Equal(t, "b", p.Item().Metadata.Title)
	assert.Equal(t, player.RepeatOne, p.Repeat())
	assert.False(t, p.PlayWhenReady())
	assert.Equal(t, 1, p.Count("Prepare"))
	assert.Equal(t, 1, p.ListenerCount())
	assert.Equal(t, audio.StateStopped, s.State())
}

func TestSource_InitializeNotificationIsNoop(t *testing.T) {
	f := newFixture()
	s := New(audio.Definition{ID: "a", UseForNotification: true}, f.env)

	require.NoError(t, s.Initialize())
	assert.False(t, s.Initialized())
	assert.Empty(t, f.players)
}

func TestSource_InitializeFactoryFailure(t *testing.T) {
	f := newFixture()
	f.env.Factory = player.FactoryFunc(func() (player.Player, error) {
		return nil, errors.New("no audio device")
	})
	s := New(background("b"), f.env)

	err := s.Initialize()
	assert.True(t, errors.Is(err, audio.ErrTransportFailure))
	assert.False(t, s.Initialized())
}

func TestSource_OperationsRequirePlayer(t *testing.T) {
	f := newFixture()
	s := New(background("b"), f.env)

	ops := map[string]func() error{
		"play":   s.Play,
		"pause":  s.Pause,
		"stop":   s.Stop,
		"seek":   func() error { return s.Seek(3) },
		"volume": func() error { return s.SetVolume(0.5) },
		"rate":   func() error { return s.SetRate(1.5) },
		"change": func() error { return s.ChangeSource("file:///other.mp3") },
		"duration": func() error {
			_, err := s.Duration()
			return err
		},
		"current_time": func() error {
			_, err := s.CurrentTime()
			return err
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.True(t, errors.Is(op(), audio.ErrNotInitialized))
		})
	}
}

func TestSource_PlayPrepareWhenIdle(t *testing.T) {
	f := newFixture()
	s := New(background("b"), f.env)
	require.NoError(t, s.Initialize())
	p := f.lastPlayer(t)

	p.EmitState(player.TransportIdle)
	require.NoError(t, s.Play())

	assert.Equal(t, 2, p.Count("Prepare"))
	assert.Equal(t, 1, p.Count("Play"))
	assert.Equal(t, audio.StatePlaying, s.State())
	assert.True(t, s.IsPlaying())
}

func TestSource_PlayTwiceStartsUpdaterOnce(t *testing.T) {
	f := newFixture()
	def := background("b")
	def.Metadata.UpdateURL = "https://radio.example.com/now.json"
	s := New(def, f.env)
	require.NoError(t, s.Initialize())
	p := f.lastPlayer(t)
	p.EmitState(player.TransportReady)

	require.NoError(t, s.Play())
	p.EmitIsPlaying(true)
	require.NoError(t, s.Play())
	p.EmitIsPlaying(true)

	assert.Equal(t, audio.StatePlaying, s.State())
	assert.True(t, s.MetadataRunning())
	assert.Len(t, f.pool.jobs, 1)
	assert.Equal(t, []string{"playing", "playing"}, f.notifier.statuses())
}

func TestSource_StopTwice(t *testing.T) {
	f := newFixture()
	def := background("b")
	def.Metadata.UpdateURL = "https://radio.example.com/now.json"
	s := New(def, f.env)
	require.NoError(t, s.Initialize())
	p := f.lastPlayer(t)
	p.EmitState(player.TransportReady)
	require.NoError(t, s.Play())
	p.EmitIsPlaying(true)
	require.Len(t, f.pool.jobs, 1)

	require.NoError(t, s.Stop())
	p.EmitIsPlaying(false)
	require.NoError(t, s.Stop())
	p.EmitIsPlaying(false)

	assert.Equal(t, audio.StateStopped, s.State())
	assert.False(t, s.MetadataRunning())
	assert.Len(t, f.pool.jobs, 1)
	assert.Equal(t, 2, p.Count("SeekToDefaultPosition"))
	assert.Equal(t, []string{"playing", "stopped", "stopped"}, f.notifier.statuses())
}

func TestSource_ReadyWithoutPlayRequestPauses(t *testing.T) {
	f := newFixture()
	s := New(background("b"), f.env)
	require.NoError(t, s.Initialize())
	p := f.lastPlayer(t)
	p.EmitState(player.TransportReady)
	require.NoError(t, s.Play())
	p.EmitIsPlaying(true)

	require.NoError(t, s.Pause())
	p.EmitIsPlaying(false)

	assert.Equal(t, audio.StatePaused, s.State())
	assert.Equal(t, []string{"playing", "paused"}, f.notifier.statuses())
}

func TestSource_ReadyCallbackOncePerPrepare(t *testing.T) {
	f := newFixture()
	s := New(background("b"), f.env)
	require.NoError(t, s.Initialize())
	p := f.lastPlayer(t)

	p.EmitState(player.TransportReady)
	p.EmitState(player.TransportBuffering)
	p.EmitState(player.TransportReady)
	assert.Equal(t, 1, f.notifier.count(callback.KindAudioReady))

	require.NoError(t, s.ChangeSource("file:///music/next.mp3"))
	assert.Equal(t, "file:///music/next.mp3", p.Item().Locator)
	assert.False(t, p.PlayWhenReady())
	p.EmitState(player.TransportReady)
	assert.Equal(t, 2, f.notifier.count(callback.KindAudioReady))
}

func TestSource_EndOfMedia(t *testing.T) {
	f := newFixture()
	def := background("b")
	def.Metadata.UpdateURL = "https://radio.example.com/now.json"
	s := New(def, f.env)
	require.NoError(t, s.Initialize())
	p := f.lastPlayer(t)
	p.EmitState(player.TransportReady)
	require.NoError(t, s.Play())
	p.EmitIsPlaying(true)
	require.True(t, s.MetadataRunning())

	p.EmitState(player.TransportEnded)
	p.EmitIsPlaying(false)

	assert.Equal(t, audio.StateStopped, s.State())
	assert.Equal(t, 1, f.notifier.count(callback.KindAudioEnd))
	assert.False(t, s.MetadataRunning())
	assert.Equal(t, 1, p.Count("SeekToDefaultPosition"))
}

func TestSource_DurationAndPosition(t *testing.T) {
	f := newFixture()
	s := New(background("b"), f.env)
	require.NoError(t, s.Initialize())
	p := f.lastPlayer(t)

	d, err := s.Duration()
	require.NoError(t, err)
	assert.Equal(t, -1.0, d)

	p.SetDuration(183*time.Second + 700*time.Millisecond)
	p.SetPosition(42*time.Second + 900*time.Millisecond)
	d, err = s.Duration()
	require.NoError(t, err)
	assert.Equal(t, 183.0, d)
	pos, err := s.CurrentTime()
	require.NoError(t, err)
	assert.Equal(t, 42.0, pos)

	require.NoError(t, s.Seek(12.5))
	assert.Equal(t, 12500*time.Millisecond, p.Position())
}

func TestSource_TransportFailure(t *testing.T) {
	f := newFixture()
	s := New(background("b"), f.env)
	require.NoError(t, s.Initialize())
	p := f.lastPlayer(t)
	p.FailOn("Play", errors.New("decoder crashed"))

	err := s.Play()
	assert.True(t, errors.Is(err, audio.ErrTransportFailure))
}

func TestSource_ChangeMetadata(t *testing.T) {
	f := newFixture()
	s := New(background("b"), f.env)

	artist := "New Artist"
	require.NoError(t, s.ChangeMetadata(audio.MetadataPatch{Artist: &artist}))
	assert.Equal(t, "New Artist", s.Metadata().Artist)
	assert.Equal(t, "b", s.Metadata().Title)

	require.NoError(t, s.Initialize())
	p := f.lastPlayer(t)
	title := "New Title"
	require.NoError(t, s.ChangeMetadata(audio.MetadataPatch{Title: &title}))
	assert.Equal(t, 1, p.Count("ReplaceMetadata"))
	assert.Equal(t, "New Title", p.Item().Metadata.Title)
	assert.Equal(t, "New Artist", p.Item().Metadata.Artist)
}

func TestSource_ChangeMetadataAddsUpdateURLWhilePlaying(t *testing.T) {
	f := newFixture()
	s := New(background("b"), f.env)
	require.NoError(t, s.Initialize())
	p := f.lastPlayer(t)
	p.EmitState(player.TransportReady)
	require.NoError(t, s.Play())
	p.EmitIsPlaying(true)

	require.Equal(t, audio.StatePlaying, s.State())
	assert.False(t, s.MetadataRunning())
	assert.Empty(t, f.pool.jobs)

	url := "https://radio.example.com/now.json"
	require.NoError(t, s.ChangeMetadata(audio.MetadataPatch{UpdateURL: &url}))

	assert.True(t, s.MetadataRunning())
	assert.Len(t, f.pool.jobs, 1)

	// a second patch keeps the running cycle
	title := "New Title"
	require.NoError(t, s.ChangeMetadata(audio.MetadataPatch{Title: &title}))
	assert.True(t, s.MetadataRunning())
	assert.Len(t, f.pool.jobs, 1)
}

func TestSource_ChangeMetadataAddsUpdateURLWhilePaused(t *testing.T) {
	f := newFixture()
	s := New(background("b"), f.env)
	require.NoError(t, s.Initialize())
	f.lastPlayer(t).EmitState(player.TransportReady)

	url := "https://radio.example.com/now.json"
	require.NoError(t, s.ChangeMetadata(audio.MetadataPatch{UpdateURL: &url}))

	assert.False(t, s.MetadataRunning())
	assert.Empty(t, f.pool.jobs)
}

func TestSource_RemoteMetadataReachesPlayerAndCallback(t *testing.T) {
	f := newFixture()
	def := background("b")
	def.Metadata.UpdateURL = "https://radio.example.com/now.json"
	s := New(def, f.env)
	require.NoError(t, s.Initialize())
	p := f.lastPlayer(t)

	require.NoError(t, s.RefreshMetadata())
	require.Len(t, f.pool.jobs, 1)
	f.pool.jobs[0](context.Background())

	assert.Equal(t, "remote", s.Metadata().Title)
	assert.Equal(t, "remote", p.Item().Metadata.Title)
	assert.Equal(t, 1, f.notifier.count(callback.KindMetadataUpdate))
}

func TestSource_ReleaseExclusive(t *testing.T) {
	f := newFixture()
	s := New(background("b"), f.env)
	require.NoError(t, s.Initialize())
	p := f.lastPlayer(t)

	require.NoError(t, s.Release())
	require.NoError(t, s.Release())

	assert.True(t, p.Released())
	assert.Equal(t, 1, p.Count("Release"))
	assert.True(t, s.Released())
	assert.True(t, errors.Is(s.Play(), audio.ErrNotFound))

	// Late events are dropped.
	p.EmitState(player.TransportEnded)
	assert.Zero(t, f.notifier.count(callback.KindAudioEnd))
}

func TestSource_AttachSharedPlayer(t *testing.T) {
	f := newFixture()
	s := New(audio.Definition{ID: "a", Locator: "https://radio.example.com/live", UseForNotification: true}, f.env)
	shared := playertest.New()

	require.NoError(t, s.Attach(shared))
	assert.True(t, s.Initialized())
	assert.Equal(t, "https://radio.example.com/live", shared.Item().Locator)
	assert.Equal(t, 1, shared.Count("Prepare"))

	require.NoError(t, s.Release())
	assert.False(t, shared.Released())
	assert.Equal(t, 0, shared.ListenerCount())
}
