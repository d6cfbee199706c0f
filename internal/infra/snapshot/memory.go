// Package snapshot provides session snapshot stores: an in-process map and Redis.
package snapshot

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// Memory keeps snapshots in process memory.
type Memory struct {
	mu    sync.RWMutex
	snaps map[string]audio.SessionSnapshot
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{snaps: make(map[string]audio.SessionSnapshot)}
}

// Save stores snap under its host ID.
func (m *Memory) Save(_ context.Context, snap audio.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.Sources = append([]audio.SnapshotEntry(nil), snap.Sources...)
	m.snaps[snap.HostID] = snap
	return nil
}

// Load returns the snapshot of hostID.
func (m *Memory) Load(_ context.Context, hostID string) (*audio.SessionSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snaps[hostID]
	if !ok {
		return nil, errors.Wrapf(audio.ErrNotFound, "snapshot for host %s", hostID)
	}
	snap.Sources = append([]audio.SnapshotEntry(nil), snap.Sources...)
	return &snap, nil
}

// Delete removes the snapshot of hostID. Missing snapshots are ignored.
func (m *Memory) Delete(_ context.Context, hostID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, hostID)
	return nil
}
