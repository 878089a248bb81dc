// Package scheduler implements job-queue coalescing, batch/transaction/
// atomic scopes and write-log rollback for the reactor runtime.
//
// The scheduler carries its own mutex, scoped narrowly to its bookkeeping
// fields (queue, depths, logs). It is never held while calling into job
// code or into a Batch/Atomic callback: both can reenter the scheduler
// (an effect body is free to write another signal, which schedules
// another job), and a plain sync.Mutex is not reentrant, so the lock is
// always released before a callback and reacquired immediately after.
package scheduler

import (
	"sync"

	"github.com/petermattis/goid"
)

// MicrotaskFunc abstracts "enqueue a microtask": tests can supply a
// synchronous stand-in to drive flushes deterministically, and hosts
// with their own run loop can defer to it instead of flushing inline.
type MicrotaskFunc func(cb func())

// Restorer applies one write-log entry during atomic rollback: it must
// write node.value = prev and, if the node is a signal, mark every
// downstream computed in its subs stale. Effects are intentionally not
// scheduled during rollback.
type Restorer interface {
	Restore(id uint64, prev any)
}

type Scheduler struct {
	mu sync.Mutex

	queue     *jobQueue
	scheduled bool
	running   bool

	batchDepth int

	// atomicLogs is keyed by the id of the goroutine that opened the scope,
	// not a single process-wide stack: a write only lands in a scope's log
	// if it happens on the same goroutine that is running that scope's fn,
	// so unrelated concurrent writes (e.g. during an AtomicAsync scope's
	// awaits) are never captured by a scope they didn't flow through.
	atomicLogs map[int64][]*WriteLog

	muted int

	postMicrotask      MicrotaskFunc
	maxFlushIterations int
	restorer           Restorer
	onFlushError       func(error)

	// runJob invokes a job outside of mu. Overridable for tests that want
	// to observe each run; defaults to the job's own Run method.
	runJob func(Job)
}

type Option func(*Scheduler)

func WithMicrotask(fn MicrotaskFunc) Option {
	return func(s *Scheduler) { s.postMicrotask = fn }
}

func WithMaxFlushIterations(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxFlushIterations = n
		}
	}
}

func WithFlushErrorHandler(fn func(error)) Option {
	return func(s *Scheduler) { s.onFlushError = fn }
}

func New(restorer Restorer, opts ...Option) *Scheduler {
	s := &Scheduler{
		queue:              newJobQueue(),
		atomicLogs:         make(map[int64][]*WriteLog),
		maxFlushIterations: maxFlushIterationsDefault,
		restorer:           restorer,
		onFlushError:       func(error) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.postMicrotask == nil {
		// Default: run immediately. Go has no implicit microtask queue;
		// hosts with a real event loop should inject one via
		// WithMicrotask to get burst coalescing across multiple writes
		// issued outside an explicit Batch/Atomic scope.
		s.postMicrotask = func(cb func()) { cb() }
	}
	s.runJob = func(j Job) { j.Run() }
	return s
}

// ScheduleJob enqueues job unless it is disposed or the scheduler is
// muted (during rollback). Coalesces a pending microtask flush. Safe to
// call reentrantly from inside a running job.
func (s *Scheduler) ScheduleJob(job Job) {
	s.mu.Lock()
	if job.Disposed() || s.muted > 0 {
		s.mu.Unlock()
		return
	}
	s.queue.push(job)
	trigger := !s.scheduled && !s.running && s.batchDepth == 0
	if trigger {
		s.scheduled = true
	}
	s.mu.Unlock()

	if trigger {
		s.postMicrotask(func() {
			s.mu.Lock()
			s.scheduled = false
			s.mu.Unlock()
			if err := s.flushJobs(); err != nil {
				s.onFlushError(err)
			}
		})
	}
}

// Batch defers flushing until fn (and any nested batch/atomic scopes)
// complete. Depth is balanced even if fn panics; the flush still runs.
// fn is called with the scheduler's mutex free.
func (s *Scheduler) Batch(fn func()) error {
	s.mu.Lock()
	s.batchDepth++
	s.mu.Unlock()

	var flushErr error
	func() {
		defer func() {
			s.mu.Lock()
			s.batchDepth--
			flush := s.batchDepth == 0
			s.mu.Unlock()
			if flush {
				flushErr = s.FlushSync()
			}
		}()
		fn()
	}()
	return flushErr
}

// Atomic runs fn inside an atomic scope: a batch that additionally
// records first-seen previous values and rolls back on error or panic.
// Transaction is defined as exactly this operation.
func (s *Scheduler) Atomic(fn func() error) (err error) {
	gid := goid.Get()
	s.mu.Lock()
	s.batchDepth++
	s.pushAtomicLogLocked(gid)
	s.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			s.exitRollback(gid)
			panic(p)
		}
	}()

	if ferr := fn(); ferr != nil {
		s.exitRollback(gid)
		return ferr
	}

	s.exitCommit(gid)
	return nil
}

// AtomicScope is an explicit handle for an atomic rollback scope that
// outlives one synchronous call frame: BeginAtomic opens the scope and
// returns immediately, and the caller commits or rolls back later —
// typically from the same goroutine once an async fn body completes —
// rather than from inside a callback. It is the channel/goroutine analogue
// of Atomic for a fn that spans awaits instead of returning synchronously.
// Calling Commit or Rollback more than once on the same scope is a no-op
// after the first call.
//
// The scope's log is keyed by the goroutine that called BeginAtomic, so
// Commit/Rollback always unwind that same goroutine's log regardless of
// which goroutine actually calls them. Only writes made by that goroutine
// land in the log; a signal written by unrelated code on another
// goroutine while this scope is still open is never captured by it (see
// RecordAtomicWrite), matching how an async atomic scope must let writes
// made on other tasks during its awaits pass through untouched.
type AtomicScope struct {
	s    *Scheduler
	gid  int64
	once sync.Once
}

// BeginAtomic opens an atomic scope and returns a handle to commit or roll
// it back later. Must be called from the same goroutine that will run the
// scope's body, since the log it opens is keyed to that goroutine.
func (s *Scheduler) BeginAtomic() *AtomicScope {
	gid := goid.Get()
	s.mu.Lock()
	s.batchDepth++
	s.pushAtomicLogLocked(gid)
	s.mu.Unlock()
	return &AtomicScope{s: s, gid: gid}
}

// Commit closes the scope, merging its log into the parent scope's (if
// nested on the same goroutine) and flushing any jobs queued while it was
// open.
func (sc *AtomicScope) Commit() {
	sc.once.Do(func() { sc.s.exitCommit(sc.gid) })
}

// Rollback closes the scope, restoring every value it recorded and
// discarding any jobs queued while it was open, without flushing.
func (sc *AtomicScope) Rollback() {
	sc.once.Do(func() { sc.s.exitRollback(sc.gid) })
}

func (s *Scheduler) pushAtomicLogLocked(gid int64) {
	s.atomicLogs[gid] = append(s.atomicLogs[gid], newWriteLog())
}

// RecordAtomicWrite is a no-op unless the calling goroutine itself has an
// open atomic scope; otherwise first-write-wins into that goroutine's
// innermost (top) log. A write made by a goroutine with no scope of its
// own is never captured by some other goroutine's open scope.
func (s *Scheduler) RecordAtomicWrite(id uint64, prev any) {
	gid := goid.Get()
	s.mu.Lock()
	defer s.mu.Unlock()
	stack := s.atomicLogs[gid]
	if len(stack) == 0 {
		return
	}
	stack[len(stack)-1].Record(id, prev)
}

// InAtomic reports whether the calling goroutine is currently inside an
// Atomic/AtomicAsync scope it itself opened.
func (s *Scheduler) InAtomic() bool {
	gid := goid.Get()
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.atomicLogs[gid]) > 0
}

func (s *Scheduler) exitCommit(gid int64) {
	s.mu.Lock()
	log := s.popLogLocked(gid)
	if parent := s.topLogLocked(gid); parent != nil {
		log.MergeInto(parent)
	}
	s.batchDepth--
	flush := s.batchDepth == 0
	s.mu.Unlock()

	if flush {
		if err := s.FlushSync(); err != nil {
			s.onFlushError(err)
		}
	}
}

func (s *Scheduler) exitRollback(gid int64) {
	s.mu.Lock()
	log := s.popLogLocked(gid)
	s.muted++
	s.mu.Unlock()

	for _, entry := range log.Entries() {
		if s.restorer != nil {
			s.restorer.Restore(entry.ID, entry.Prev)
		}
	}

	s.mu.Lock()
	s.queue.clear()
	s.scheduled = false
	s.muted--
	s.batchDepth--
	s.mu.Unlock()
	// Rollback never flushes.
}

// popLogLocked must be called with mu held.
func (s *Scheduler) popLogLocked(gid int64) *WriteLog {
	stack := s.atomicLogs[gid]
	n := len(stack)
	log := stack[n-1]
	if n == 1 {
		delete(s.atomicLogs, gid)
	} else {
		s.atomicLogs[gid] = stack[:n-1]
	}
	return log
}

// topLogLocked must be called with mu held.
func (s *Scheduler) topLogLocked(gid int64) *WriteLog {
	stack := s.atomicLogs[gid]
	if len(stack) == 0 {
		return nil
	}
	return stack[len(stack)-1]
}

// FlushSync runs flushJobs if anything is scheduled or queued.
func (s *Scheduler) FlushSync() error {
	s.mu.Lock()
	if !s.scheduled && s.queue.empty() {
		s.mu.Unlock()
		return nil
	}
	s.scheduled = false
	s.mu.Unlock()
	return s.flushJobs()
}

// flushJobs repeatedly snapshots and drains the queue, running every job
// in the snapshot with mu released; jobs may enqueue further work via
// ScheduleJob, which lands in the next round. Reentrant calls (a job
// writing a signal that triggers another flush attempt) are absorbed by
// the running guard — the active loop will pick up the newly queued job
// itself, so the nested attempt is a no-op.
func (s *Scheduler) flushJobs() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	guard := 0
	for {
		s.mu.Lock()
		if s.queue.empty() {
			s.mu.Unlock()
			return nil
		}
		snapshot := s.queue.drain()
		s.mu.Unlock()

		for _, job := range snapshot {
			if job.Disposed() {
				continue
			}
			s.runJob(job)
		}

		guard++
		if guard > s.maxFlushIterations {
			return ErrInfiniteUpdateLoop
		}
	}
}
