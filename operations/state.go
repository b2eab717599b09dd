package operations

import "fmt"

// RunState is the state of a run: Pending, Running, then Completed or Aborted.
type RunState int

const (
	StatePending RunState = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s RunState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// MarshalText renders the state by name in reports.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// transition returns to if moving from s to it is allowed.
func (s RunState) transition(to RunState) (RunState, error) {
	ok := false
	switch s {
	case StatePending:
		ok = to == StateRunning
	case StateRunning:
		ok = to == StateCompleted || to == StateAborted
	}
	if !ok {
		return s, fmt.Errorf("illegal run state transition %s -> %s", s, to)
	}

	return to, nil
}
