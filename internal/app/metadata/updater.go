// Package metadata provides the per-source remote metadata updater.
package metadata

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nativeaudio/internal/app/coord"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

var errMetadataBusy = errors.New("metadata fetch queue is full")

// Fetcher retrieves a JSON object from a remote endpoint.
type Fetcher interface {
	FetchJSON(ctx context.Context, url string) (map[string]any, error)
}

// Enricher looks up artwork when a remote payload does not carry any.
type Enricher interface {
	ArtworkURL(ctx context.Context, artist, title string) (string, error)
}

// Poster marshals a function onto the coordination loop.
type Poster interface {
	Post(fn func()) bool
}

// Submitter runs jobs off the coordination loop.
type Submitter interface {
	Submit(job coord.Job) bool
}

// UpdateFunc receives the refreshed metadata and the full remote payload.
type UpdateFunc func(md audio.Metadata, payload map[string]any)

// Config holds updater dependencies.
type Config struct {
	SourceID string
	Fetcher  Fetcher
	Enricher Enricher // optional
	Loop     Poster
	Pool     Submitter
	Timeout  time.Duration // per fetch, 0 means no extra deadline
	OnUpdate UpdateFunc

	// AfterFunc schedules f after d and returns a stop function.
	// Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) func() bool
}

// Updater periodically refreshes a source's metadata from its update URL.
// Every method must be called on the coordination loop.
type Updater struct {
	cfg Config
	md  audio.Metadata

	running        bool
	inFlight       bool
	inFlightGen    uint64
	refreshPending bool // fetch again once a stale in-flight fetch completes
	released       bool

	// gen changes on every Start and Stop. Ticks and fetch results carrying an
	// older generation are discarded.
	gen       uint64
	stopTimer func() bool
}

// NewUpdater creates a stopped updater holding md.
func NewUpdater(cfg Config, md audio.Metadata) *Updater {
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		}
	}
	return &Updater{cfg: cfg, md: md}
}

// Metadata returns the current snapshot.
func (u *Updater) Metadata() audio.Metadata {
	return u.md
}

// Running reports whether the refresh cycle is active.
func (u *Updater) Running() bool {
	return u.running
}

// Set replaces the snapshot. A running cycle restarts when the URL or interval
// changed, and stops when the URL was removed.
func (u *Updater) Set(md audio.Metadata) {
	prev := u.md
	u.md = md
	if !u.running {
		return
	}
	if md.UpdateURL == prev.UpdateURL && md.Interval() == prev.Interval() {
		return
	}
	u.Stop()
	u.Start()
}

// Start begins the refresh cycle. The first fetch is issued immediately.
func (u *Updater) Start() {
	if u.released || u.running || u.md.UpdateURL == "" {
		return
	}
	zlog.Info().Msgf("starting metadata updater: source=%s url=%s interval=%v", u.cfg.SourceID, u.md.UpdateURL, u.md.Interval())

	u.running = true
	u.gen++
	u.fetch(u.gen)
}

// Stop cancels the pending timer. A fetch already in flight is discarded on completion.
func (u *Updater) Stop() {
	if !u.running {
		return
	}
	zlog.Info().Msgf("stopping metadata updater: source=%s", u.cfg.SourceID)

	u.running = false
	u.gen++
	u.cancelTimer()
}

// RefreshNow issues one fetch outside the cycle. It is coalesced with a fetch
// of the current generation already in flight, and queued behind a stale one.
// It fails when the pool rejects the fetch.
func (u *Updater) RefreshNow() error {
	if u.released {
		return audio.ErrNotFound
	}
	if u.md.UpdateURL == "" {
		return errors.Wrap(audio.ErrInvalidArgument, "no metadata update url configured")
	}
	if u.inFlight {
		if u.inFlightGen != u.gen {
			u.refreshPending = true
		}
		return nil
	}
	if !u.fetch(u.gen) {
		return audio.Network(errMetadataBusy)
	}
	return nil
}

// Release stops the updater permanently.
func (u *Updater) Release() {
	u.Stop()
	u.released = true
}

func (u *Updater) cancelTimer() {
	if u.stopTimer != nil {
		u.stopTimer()
		u.stopTimer = nil
	}
}

// fetch submits a fetch for gen and reports whether one is in flight afterwards.
func (u *Updater) fetch(gen uint64) bool {
	if u.inFlight {
		return true
	}
	u.inFlight = true
	u.inFlightGen = gen

	url := u.md.UpdateURL
	sourceID := u.cfg.SourceID
	fetcher := u.cfg.Fetcher
	enricher := u.cfg.Enricher
	timeout := u.cfg.Timeout
	loop := u.cfg.Loop

	submitted := u.cfg.Pool.Submit(func(ctx context.Context) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		payload, err := fetcher.FetchJSON(ctx, url)
		if err == nil && enricher != nil {
			enrich(ctx, enricher, sourceID, payload)
		}

		// Dropped silently once the loop is gone.
		loop.Post(func() { u.complete(gen, payload, err) })
	})
	if !submitted {
		u.inFlight = false
		zlog.Warn().Msgf("metadata fetch not submitted: source=%s", sourceID)
		u.scheduleNext(gen)
	}
	return submitted
}

func enrich(ctx context.Context, e Enricher, sourceID string, payload map[string]any) {
	if art, _ := payload[audio.KeyArtworkSource].(string); art != "" {
		return
	}
	artist, _ := payload[audio.KeyArtistName].(string)
	title, _ := payload[audio.KeySongTitle].(string)
	if artist == "" || title == "" {
		return
	}

	art, err := e.ArtworkURL(ctx, artist, title)
	if err != nil {
		zlog.Debug().Msgf("artwork lookup failed: source=%s artist=%s title=%s error=%v", sourceID, artist, title, err)
		return
	}
	if art != "" {
		payload[audio.KeyArtworkSource] = art
	}
}

func (u *Updater) complete(gen uint64, payload map[string]any, err error) {
	u.inFlight = false
	if u.released {
		return
	}
	if gen != u.gen {
		// A cycle started while this fetch was in flight skipped its first fetch.
		if u.refreshPending || (u.running && u.stopTimer == nil) {
			u.refreshPending = false
			u.fetch(u.gen)
		}
		return
	}

	if err != nil {
		zlog.Warn().Msgf("metadata fetch failed: source=%s url=%s error=%v", u.cfg.SourceID, u.md.UpdateURL, audio.Network(err))
	} else if md, perr := u.md.WithRemote(payload); perr != nil {
		zlog.Warn().Msgf("metadata payload rejected: source=%s error=%v", u.cfg.SourceID, audio.Network(perr))
	} else {
		u.md = md
		if u.cfg.OnUpdate != nil {
			u.cfg.OnUpdate(md, payload)
		}
	}

	u.scheduleNext(gen)
}

func (u *Updater) scheduleNext(gen uint64) {
	if !u.running || gen != u.gen || u.stopTimer != nil {
		return
	}
	loop := u.cfg.Loop
	u.stopTimer = u.cfg.AfterFunc(u.md.Interval(), func() {
		loop.Post(func() { u.tick(gen) })
	})
}

func (u *Updater) tick(gen uint64) {
	if !u.running || gen != u.gen {
		return
	}
	u.stopTimer = nil
	u.fetch(gen)
}
