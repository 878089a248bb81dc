package reactor

import (
	"errors"
	"fmt"

	"github.com/reactorlib/reactor/internal/graph"
	"github.com/reactorlib/reactor/internal/scheduler"
)

// ErrIllegalEdge is returned when the graph's Link is attempted with a
// signal as the observing side — signals never have dependencies. Signal
// and Computed construction never triggers it; it can only come from
// internal bookkeeping that misattributes an edge direction.
var ErrIllegalEdge = graph.ErrIllegalEdge

// ErrCycleDetected is returned when a computed's recompute re-enters
// itself, directly or transitively.
var ErrCycleDetected = errors.New("reactor: cycle detected")

// ErrInfiniteUpdateLoop is returned when a flush exceeds the scheduler's
// iteration guard without draining the queue.
var ErrInfiniteUpdateLoop = scheduler.ErrInfiniteUpdateLoop

// ErrWrongThread is returned when a Runtime created with thread pinning
// enabled has one of its checked methods (see WithStrictThread) called
// from a goroutine other than the one that created it.
var ErrWrongThread = errors.New("reactor: runtime accessed from the wrong goroutine")

// UserError wraps a panic or error raised by user code running inside a
// computed, effect or atomic scope, identifying which kind of node it
// came from.
type UserError struct {
	Node string
	Err  error
}

func (e *UserError) Error() string {
	return fmt.Sprintf("reactor: user error in %s: %v", e.Node, e.Err)
}

func (e *UserError) Unwrap() error { return e.Err }

func newUserError(node string, cause any) *UserError {
	if err, ok := cause.(error); ok {
		return &UserError{Node: node, Err: err}
	}
	return &UserError{Node: node, Err: fmt.Errorf("%v", cause)}
}
