package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfOrder indicates an action timestamp would regress within a page.
	ErrOutOfOrder = errors.New("action timestamp out of order")
	// ErrPageNotFound indicates the page index is not part of the recording.
	ErrPageNotFound = errors.New("page not found")
	// ErrPageExists indicates a page index was registered twice.
	ErrPageExists = errors.New("page already exists")
	// ErrInvalidTransition indicates a session state machine was driven out of order.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrEditInProgress indicates the operation is refused while an edit is active.
	ErrEditInProgress = errors.New("edit in progress")
)

// TransitionError describes a rejected state machine transition. Sessions panic
// with it because the caller and the session state have desynchronized.
type TransitionError struct {
	Machine string
	State   string
	Call    string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s called in state %s", e.Machine, e.Call, e.State)
}

// Unwrap exposes ErrInvalidTransition to errors.Is.
func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// PanicTransition panics with a TransitionError.
func PanicTransition(machine, state, call string) {
	panic(&TransitionError{Machine: machine, State: state, Call: call})
}
