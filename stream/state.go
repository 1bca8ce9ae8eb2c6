package stream

import (
	"fmt"
	"sync"

	"github.com/c360/bridgekit/errors"
)

// State is a session lifecycle state.
type State int

// Session lifecycle: CLOSED -> NEGOTIATING -> OPEN -> {ERROR, PAUSED} -> CLOSED.
const (
	StateClosed State = iota
	StateNegotiating
	StateOpen
	StatePaused
	StateError
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateOpen:
		return "OPEN"
	case StatePaused:
		return "PAUSED"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// validTransitions encodes the session state machine. ERROR -> NEGOTIATING
// covers reconnect recovery; any state may close.
var validTransitions = map[State][]State{
	StateClosed:      {StateNegotiating},
	StateNegotiating: {StateOpen, StateError, StateClosed},
	StateOpen:        {StatePaused, StateError, StateClosed},
	StatePaused:      {StateOpen, StateError, StateClosed},
	StateError:       {StateNegotiating, StateClosed},
}

// stateMachine guards session state with typed transitions. Invalid
// transitions are programming errors and are rejected, never applied.
type stateMachine struct {
	mu      sync.RWMutex
	current State
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateClosed}
}

// Current returns the current state.
func (m *stateMachine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// transition moves to the target state if the transition is legal.
func (m *stateMachine) transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range validTransitions[m.current] {
		if allowed == to {
			m.current = to
			return nil
		}
	}
	return errors.WrapInvalid(errors.ErrInvalidData, "Session", "transition",
		fmt.Sprintf("illegal transition %s -> %s", m.current, to))
}

// compareAndTransition moves to the target state only when currently in from.
// Returns false without error when the precondition does not hold.
func (m *stateMachine) compareAndTransition(from, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != from {
		return false
	}
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			m.current = to
			return true
		}
	}
	return false
}
