package stream

// State represents the lifecycle state of one direction's stream.
type State string

// Stream states. The only legal cycle is
// idle → opening → active → closing → idle, with error_retrying reachable
// from opening while transient open failures are being retried.
const (
	StateIdle          State = "idle"
	StateOpening       State = "opening"
	StateActive        State = "active"
	StateClosing       State = "closing"
	StateErrorRetrying State = "error_retrying"
)

// validTransitions encodes the state machine. Transitions not listed are
// bugs, not recoverable conditions.
var validTransitions = map[State][]State{
	StateIdle:          {StateOpening},
	StateOpening:       {StateActive, StateErrorRetrying, StateClosing, StateIdle},
	StateErrorRetrying: {StateOpening, StateIdle},
	StateActive:        {StateClosing},
	StateClosing:       {StateIdle},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
