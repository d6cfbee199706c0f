// Package registry provides the registry of live audio sources.
package registry

import (
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nativeaudio/internal/app/source"
	"github.com/osa030/nativeaudio/internal/domain/audio"
)

// SourceRegistry holds the live sources keyed by ID. At most one of them is
// used for the notification, and it must be the first one added.
type SourceRegistry struct {
	mu      sync.RWMutex
	sources map[string]*source.Source
	order   []string
}

// NewSourceRegistry creates an empty registry.
func NewSourceRegistry() *SourceRegistry {
	return &SourceRegistry{
		sources: make(map[string]*source.Source),
	}
}

// Add registers s. A rejected add leaves the registry unchanged.
func (r *SourceRegistry) Add(s *source.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[s.ID()]; ok {
		return audio.ErrDuplicateID
	}
	if len(r.sources) == 0 && !s.UseForNotification() {
		return audio.ErrNotificationRequiredFirst
	}
	if s.UseForNotification() && r.notificationLocked() != nil {
		return audio.ErrNotificationAlreadyExists
	}

	r.sources[s.ID()] = s
	r.order = append(r.order, s.ID())
	return nil
}

// Get retrieves a source by ID.
func (r *SourceRegistry) Get(id string) (*source.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[id]
	if !ok {
		return nil, audio.ErrNotFound
	}
	return s, nil
}

// Remove drops a source without releasing it.
func (r *SourceRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[id]; !ok {
		return audio.ErrNotFound
	}
	delete(r.sources, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// DestroyNotAllowed reports whether removing id would orphan other sources
// from the notification source.
func (r *SourceRegistry) DestroyNotAllowed(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sources[id]
	return ok && s.UseForNotification() && len(r.sources) > 1
}

// DestroyAllNonNotification releases and removes every other source.
// It never fails; release errors are logged.
func (r *SourceRegistry) DestroyAllNonNotification() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	kept := r.order[:0]
	for _, id := range r.order {
		s := r.sources[id]
		if s.UseForNotification() {
			kept = append(kept, id)
			continue
		}
		if err := s.Release(); err != nil {
			zlog.Warn().Msgf("failed to release audio source: id=%s error=%v", id, err)
		}
		delete(r.sources, id)
		removed = append(removed, id)
	}
	r.order = kept
	return removed
}

// ForNotification returns the notification source, or nil.
func (r *SourceRegistry) ForNotification() *source.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notificationLocked()
}

func (r *SourceRegistry) notificationLocked() *source.Source {
	for _, s := range r.sources {
		if s.UseForNotification() {
			return s
		}
	}
	return nil
}

// All returns the sources in insertion order.
func (r *SourceRegistry) All() []*source.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*source.Source, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.sources[id])
	}
	return result
}

// IDs returns the source IDs in insertion order.
func (r *SourceRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Count returns the number of sources.
func (r *SourceRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}
