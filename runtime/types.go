package runtime

import (
	"context"
	"fmt"
)

// Transition is what a handler returns: the state to move to, and
// whether that state is terminal (the instance stops after entering it
// and resolves its JoinFuture with the final context). Only a terminal
// Transition stops the instance: entering a state with no further bound
// handlers leaves the loop running and waiting for events.
type Transition struct {
	To       string
	Terminal bool
}

// To builds a non-terminal Transition.
func To(state string) Transition { return Transition{To: state} }

// Stop builds a terminal Transition: the instance enters state and then
// terminates cleanly, resolving its JoinFuture with the final context.
func Stop(state string) Transition { return Transition{To: state, Terminal: true} }

// HandlerFunc is a user-supplied handler bound to one or more (state,
// event) pairs. It receives exclusive, mutable access to the instance's
// context for its duration, handed off serially so no two handlers for
// the same instance ever run concurrently. event reports which binding
// fired, letting a multi-state handler tell events apart without needing
// to know its entry state.
type HandlerFunc[C any] func(ctx context.Context, c *C, event string, payload any) (Transition, error)

// TaskErrorKind distinguishes why a JoinFuture resolved to an error
// instead of a final context.
type TaskErrorKind int

const (
	// FsmErrorKind wraps a handler-returned user error.
	FsmErrorKind TaskErrorKind = iota
	// RuntimePanicKind means a handler or the loop itself panicked.
	RuntimePanicKind
	// CancelledKind means the host task was cancelled from outside.
	CancelledKind
)

func (k TaskErrorKind) String() string {
	switch k {
	case FsmErrorKind:
		return "FsmError"
	case RuntimePanicKind:
		return "RuntimePanic"
	case CancelledKind:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// TaskError is the error side of a JoinFuture's result. Context is never
// attached to a TaskError: on FsmError/RuntimePanic/Cancelled the
// instance's context is considered lost.
type TaskError struct {
	Kind TaskErrorKind
	// Err holds the user-declared error for FsmErrorKind; nil otherwise.
	Err error
}

func (e *TaskError) Error() string {
	if e.Kind == FsmErrorKind && e.Err != nil {
		return fmt.Sprintf("fsm error: %v", e.Err)
	}
	return e.Kind.String()
}

func (e *TaskError) Unwrap() error { return e.Err }

// SendErrorKind distinguishes the two ways Send/TrySend can fail.
type SendErrorKind int

const (
	Full SendErrorKind = iota
	ClosedKind
)

// SendError is returned by Handle.Send / Handle.TrySend.
type SendError struct {
	Kind SendErrorKind
}

func (e *SendError) Error() string {
	switch e.Kind {
	case Full:
		return "inbox full"
	case ClosedKind:
		return "inbox closed"
	default:
		return "send error"
	}
}

// Observer receives after-the-fact notifications of instance lifecycle
// events. It can never block or veto a transition: guards are always
// evaluated internally by the bound handler, never by an external
// callback, and an Observer callback runs synchronously on the dispatch
// loop's goroutine, so it must not block or call back into the same
// instance's Handle.
type Observer interface {
	// OnTransition fires after a handler returns a non-error transition.
	OnTransition(from, to, event string)
	// OnUnexpectedEvent fires when no handler is bound for (state, event):
	// the event is dropped and the loop continues.
	OnUnexpectedEvent(state, event string)
	// OnTerminate fires exactly once, when the instance stops, with nil
	// on clean termination.
	OnTerminate(err error)
}

// NopObserver implements Observer by doing nothing.
type NopObserver struct{}

func (NopObserver) OnTransition(from, to, event string)   {}
func (NopObserver) OnUnexpectedEvent(state, event string) {}
func (NopObserver) OnTerminate(err error)                 {}
