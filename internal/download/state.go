package download

// State is the lifecycle state of a Download.
type State uint8

const (
	// StateIdle is the state before Start.
	StateIdle State = iota
	// StateStarted means the transport has the request but no response yet.
	StateStarted
	// StateConnected means the response arrived and the body is streaming.
	StateConnected
	// StateFinished is the terminal success state.
	StateFinished
	// StateFailed is the terminal failure state; Download.Err is set.
	StateFailed
	// StateCanceled is the terminal state reached through Cancel.
	StateCanceled
)

// transitions lists the valid successor states for each state.
var transitions = map[State][]State{
	StateIdle:      {StateStarted},
	StateStarted:   {StateConnected, StateFailed, StateCanceled},
	StateConnected: {StateFinished, StateFailed, StateCanceled},
}

// IsTerminal returns true for Finished, Failed and Canceled.
func (s State) IsTerminal() bool {
	return s == StateFinished || s == StateFailed || s == StateCanceled
}

// IsActive returns true while a transfer is in flight.
func (s State) IsActive() bool {
	return s == StateStarted || s == StateConnected
}

func (s State) canTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarted:
		return "Started"
	case StateConnected:
		return "Connected"
	case StateFinished:
		return "Finished"
	case StateFailed:
		return "Failed"
	case StateCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}
