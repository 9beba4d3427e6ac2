// Package fsm defines pipeline states and the legal transition table between them.
package fsm

import "fmt"

type State string

const (
	StateIdle         State = "idle"
	StateCapturing    State = "capturing"
	StateTransforming State = "transforming"
	StateDelivering   State = "delivering"
	StateWarmup       State = "warmup"
	StateError        State = "error"
	StateNote         State = "note"
)

var edges = map[State]map[State]struct{}{
	StateIdle: {
		StateCapturing: {},
		StateNote:      {},
		StateWarmup:    {},
	},
	StateError: {
		StateCapturing: {},
		StateNote:      {},
		StateIdle:      {},
	},
	StateCapturing: {
		StateTransforming: {},
		StateIdle:         {},
	},
	StateNote: {
		StateTransforming: {},
		StateIdle:         {},
	},
	StateTransforming: {
		StateDelivering: {},
		StateIdle:       {},
	},
	StateDelivering: {
		StateIdle: {},
	},
	StateWarmup: {
		StateIdle: {},
	},
}

// CanStart reports whether a new session may begin from state.
func CanStart(state State) bool {
	return state == StateIdle || state == StateError
}

// IsCapturing reports whether state is one of the audio capture states.
func IsCapturing(state State) bool {
	return state == StateCapturing || state == StateNote
}

// IsBusy reports whether state holds an in-flight session or warmup.
func IsBusy(state State) bool {
	return !CanStart(state)
}

// Valid reports whether state is a known pipeline state.
func Valid(state State) bool {
	_, ok := edges[state]
	return ok
}

// Transition validates one edge and returns the destination state.
func Transition(current State, next State) (State, error) {
	allowed, ok := edges[current]
	if !ok {
		return current, fmt.Errorf("unknown state %q", current)
	}
	if next == StateError && current != StateError {
		return next, nil
	}
	if _, ok := allowed[next]; !ok {
		return current, invalidTransition(current, next)
	}
	return next, nil
}

func invalidTransition(from State, to State) error {
	return fmt.Errorf("invalid transition: %s --> %s", from, to)
}
