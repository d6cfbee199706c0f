package audio

// State represents the playback state of a source.
type State int

const (
	StateStopped State = iota // Not playing, positioned at the start
	StatePaused               // Not playing, position kept
	StatePlaying              // Playing
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Definition holds the caller supplied attributes of a source at creation time.
type Definition struct {
	ID                 string
	Locator            string
	Metadata           Metadata
	UseForNotification bool
	IsBackgroundMusic  bool
	Loop               bool
	ShowSeekBackward   bool
	ShowSeekForward    bool
}
