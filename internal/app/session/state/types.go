// Package state provides the hosting context lifecycle state.
package state

// Phase represents the lifecycle phase of the hosting context.
type Phase int

const (
	PhaseIdle       Phase = iota // No playback requested yet
	PhaseRunning                 // Hosting playback
	PhaseStopped                 // Stopped after task removal, restartable by play
	PhaseTerminated              // Shut down, no further commands
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseStopped:
		return "stopped"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from p to next is allowed.
func (p Phase) CanTransition(next Phase) bool {
	switch p {
	case PhaseIdle:
		return next == PhaseRunning || next == PhaseTerminated
	case PhaseRunning:
		return next == PhaseStopped || next == PhaseTerminated
	case PhaseStopped:
		return next == PhaseRunning || next == PhaseTerminated
	default:
		return false
	}
}
