package scheduler

import "errors"

// ErrInfiniteUpdateLoop is returned when flushJobs exceeds the guard
// iteration count without draining the queue.
var ErrInfiniteUpdateLoop = errors.New("scheduler: infinite update loop detected")

const maxFlushIterationsDefault = 10_000
