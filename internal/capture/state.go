package capture

// State is the lifecycle state of an Engine.
type State int

const (
	Idle State = iota
	Starting
	Capturing
	Stopping
	// Failed is held while a session that hit a fatal error is torn down.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Capturing:
		return "capturing"
	case Stopping:
		return "stopping"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
