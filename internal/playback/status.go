package playback

// Status is the controller's lifecycle state.
type Status int

const (
	StatusEmpty Status = iota
	StatusLoading
	StatusPaused
	StatusPlaying
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "EMPTY"
	case StatusLoading:
		return "LOADING"
	case StatusPaused:
		return "READY_PAUSED"
	case StatusPlaying:
		return "READY_PLAYING"
	case StatusEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Ready reports whether the player accepts commands directly.
func (s Status) Ready() bool {
	return s == StatusPaused || s == StatusPlaying || s == StatusEnded
}
