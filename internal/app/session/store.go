package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// SnapshotStore persists the session snapshot outside the process.
type SnapshotStore interface {
	Save(ctx context.Context, snap audio.SessionSnapshot) error
	Load(ctx context.Context, hostID string) (*audio.SessionSnapshot, error)
	Delete(ctx context.Context, hostID string) error
}

// snapshotWriter orders snapshot writes running on pool workers. Each write is
// numbered when it is queued; a write that starts after a newer one has been
// applied is skipped, so the store always ends with the latest state.
type snapshotWriter struct {
	store   SnapshotStore
	timeout time.Duration

	seq atomic.Uint64

	mu      sync.Mutex
	applied uint64
}

func newSnapshotWriter(store SnapshotStore, timeout time.Duration) *snapshotWriter {
	return &snapshotWriter{store: store, timeout: timeout}
}

// save returns a job writing snap.
func (w *snapshotWriter) save(snap audio.SessionSnapshot) func(ctx context.Context) {
	seq := w.seq.Add(1)
	return func(ctx context.Context) {
		w.apply(ctx, seq, func(ctx context.Context) error {
			return w.store.Save(ctx, snap)
		}, "save", snap.HostID)
	}
}

// remove returns a job deleting the snapshot of hostID.
func (w *snapshotWriter) remove(hostID string) func(ctx context.Context) {
	seq := w.seq.Add(1)
	return func(ctx context.Context) {
		w.apply(ctx, seq, func(ctx context.Context) error {
			return w.store.Delete(ctx, hostID)
		}, "delete", hostID)
	}
}

func (w *snapshotWriter) apply(ctx context.Context, seq uint64, write func(ctx context.Context) error, op, hostID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if seq <= w.applied {
		zlog.Debug().Msgf("stale session snapshot write skipped: op=%s host_id=%s seq=%d applied=%d", op, hostID, seq, w.applied)
		return
	}
	w.applied = seq

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := write(ctx); err != nil {
		zlog.Warn().Msgf("failed to %s session snapshot: host_id=%s error=%v", op, hostID, err)
	}
}
