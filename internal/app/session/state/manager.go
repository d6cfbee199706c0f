package state

import (
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"
)

// Status is a point-in-time view of the hosting context.
type Status struct {
	HostID         string
	Phase          Phase
	NotificationID string
	SourceCount    int
	StartedAt      *time.Time
}

// Manager tracks the hosting context lifecycle with thread-safe access.
// It is written on the coordination loop and read from anywhere.
type Manager struct {
	mu sync.RWMutex

	hostID         string
	phase          Phase
	notificationID string
	sourceCount    int
	startedAt      *time.Time
}

// New creates a manager in PhaseIdle.
func New(hostID string) *Manager {
	return &Manager{
		hostID: hostID,
		phase:  PhaseIdle,
	}
}

// GetHostID returns the host ID.
func (m *Manager) GetHostID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hostID
}

// GetPhase returns the current phase.
func (m *Manager) GetPhase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Transition moves to next when allowed and reports whether the phase changed.
func (m *Manager) Transition(next Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == next || !m.phase.CanTransition(next) {
		return false
	}
	zlog.Info().Msgf("phase changed: host_id=%s from=%s to=%s", m.hostID, m.phase, next)
	m.phase = next
	if next == PhaseRunning {
		now := time.Now()
		m.startedAt = &now
	}
	return true
}

// SetSources records the notification source ID and the number of sources.
func (m *Manager) SetSources(notificationID string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notificationID = notificationID
	m.sourceCount = count
}

// Status returns a copy of the current state.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		HostID:         m.hostID,
		Phase:          m.phase,
		NotificationID: m.notificationID,
		SourceCount:    m.sourceCount,
		StartedAt:      m.startedAt,
	}
}
