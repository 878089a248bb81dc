// Package reactor is a fine-grained reactivity runtime: signals, computed
// memoized derivations, and effects over a dependency graph with
// glitch-free, minimal-work propagation. See the Graph, Registry,
// Scheduler, Signal, Computed and Effect types for the modules that make
// up the core.
package reactor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/petermattis/goid"

	"github.com/reactorlib/reactor/devtoolshooks"
	"github.com/reactorlib/reactor/internal/graph"
	"github.com/reactorlib/reactor/internal/registry"
	"github.com/reactorlib/reactor/internal/scheduler"
)

// Runtime owns one dependency graph and its scheduler. The package-level
// functions (NewSignal, NewComputed, NewEffect, Batch, ...) operate against
// Current(), the ambient runtime bound to the calling goroutine, with an
// explicit Runtime type available for callers that want one graph shared
// safely across goroutines instead (see WithStrictThread).
type Runtime struct {
	mu sync.Mutex

	graph     *graph.Graph
	registry  *registry.Registry
	scheduler *scheduler.Scheduler

	signals   map[graph.ID]*signalBox
	computeds map[graph.ID]*computedBox
	effects   map[graph.ID]*effectBox
	owners    map[graph.ID]*Owner

	currentOwner *Owner

	logger *slog.Logger
	hooks  devtoolshooks.Hooks

	errorSink func(error)

	creatorGID   int64
	strictThread bool

	pendingMicrotask          scheduler.MicrotaskFunc
	pendingMaxFlushIterations int
}

// Option configures a Runtime constructed with New.
type Option func(*Runtime)

func WithLogger(logger *slog.Logger) Option {
	return func(rt *Runtime) { rt.logger = logger }
}

func WithHooks(hooks devtoolshooks.Hooks) Option {
	return func(rt *Runtime) { rt.hooks = hooks }
}

func WithErrorSink(fn func(error)) Option {
	return func(rt *Runtime) { rt.errorSink = fn }
}

// WithMicrotask injects the "enqueue a microtask" primitive the scheduler
// uses to coalesce a burst of writes into one flush. The default runs the
// callback immediately (Go has no implicit microtask queue); hosts with
// their own run loop can defer to it here for true cross-write coalescing
// outside of an explicit Batch/Atomic scope.
func WithMicrotask(fn func(func())) Option {
	return func(rt *Runtime) { rt.pendingMicrotask = scheduler.MicrotaskFunc(fn) }
}

func WithMaxFlushIterations(n int) Option {
	return func(rt *Runtime) { rt.pendingMaxFlushIterations = n }
}

// WithStrictThread makes Batch, Atomic/Transaction, AtomicAsync and
// FlushSync return ErrWrongThread when called from a goroutine other than
// the one that created the Runtime. Signal, Computed and Effect methods
// are not checked. Off by default: the
// Runtime's mutex already makes concurrent access from multiple
// goroutines safe; this is for callers who want hard thread-affinity
// guarantees instead.
func WithStrictThread(strict bool) Option {
	return func(rt *Runtime) { rt.strictThread = strict }
}

func New(opts ...Option) *Runtime {
	rt := &Runtime{
		graph:     graph.New(),
		registry:  registry.New(),
		signals:   make(map[graph.ID]*signalBox),
		computeds: make(map[graph.ID]*computedBox),
		effects:   make(map[graph.ID]*effectBox),
		owners:    make(map[graph.ID]*Owner),
		logger:    slog.Default(),
		hooks:     devtoolshooks.Noop{},
		errorSink: func(error) {},
		creatorGID: goid.Get(),
	}

	for _, opt := range opts {
		opt(rt)
	}

	var schedOpts []scheduler.Option
	if rt.pendingMicrotask != nil {
		schedOpts = append(schedOpts, scheduler.WithMicrotask(rt.pendingMicrotask))
	}
	if rt.pendingMaxFlushIterations > 0 {
		schedOpts = append(schedOpts, scheduler.WithMaxFlushIterations(rt.pendingMaxFlushIterations))
	}
	schedOpts = append(schedOpts, scheduler.WithFlushErrorHandler(func(err error) {
		rt.logger.Error("reactor: flush failed", "error", err)
		rt.errorSink(err)
	}))

	rt.scheduler = scheduler.New(rt, schedOpts...)
	rt.currentOwner = rt.newOwner(nil)

	return rt
}

var ambientRuntimes sync.Map // goroutine id (int64) -> *Runtime

// Current returns the ambient Runtime bound to the calling goroutine,
// lazily creating one on first use.
func Current() *Runtime {
	gid := goid.Get()
	if v, ok := ambientRuntimes.Load(gid); ok {
		return v.(*Runtime)
	}
	rt := New()
	ambientRuntimes.Store(gid, rt)
	return rt
}

// checkThread enforces WithStrictThread when enabled.
func (rt *Runtime) checkThread() error {
	if rt.strictThread && goid.Get() != rt.creatorGID {
		return ErrWrongThread
	}
	return nil
}

// Batch defers flushing downstream effects until fn returns (or, for
// nested batches, until the outermost batch returns).
func Batch(fn func()) error { return Current().Batch(fn) }

// Batch holds no Runtime lock across fn: the scheduler keeps its own
// bookkeeping mutex, and fn is arbitrary user code that will call back
// into Signal/Computed/Effect methods expecting rt.mu to be free.
func (rt *Runtime) Batch(fn func()) error {
	if err := rt.checkThread(); err != nil {
		return err
	}
	return rt.scheduler.Batch(fn)
}

// Transaction is an alias for Atomic.
func Transaction(fn func() error) error { return Current().Atomic(fn) }

func (rt *Runtime) Transaction(fn func() error) error { return rt.Atomic(fn) }

// Atomic runs fn inside an atomic scope: a batch that additionally
// records the first-seen previous value of every signal written within
// it and rolls every one of them back if fn returns an error or panics.
func Atomic(fn func() error) error { return Current().Atomic(fn) }

func (rt *Runtime) Atomic(fn func() error) error {
	if err := rt.checkThread(); err != nil {
		return err
	}
	return rt.scheduler.Atomic(fn)
}

// AtomicAsync is Atomic's async analogue: fn runs on its own goroutine
// instead of the caller's, so the scope can span an arbitrary number of
// awaits (channel receives, further goroutines, I/O) instead of returning
// before Atomic itself returns. The scope opens on that goroutine just
// before fn starts and closes — committing or rolling back every write fn
// made — only once fn returns or panics; the returned channel receives
// exactly one value (nil on success) and is then closed.
//
// The scope's write log is keyed to the goroutine running fn, so a signal
// write made by unrelated code on another goroutine while fn is still
// running is never captured by this scope. A write made inside fn updates
// the signal and marks downstream computeds stale at once, but the effects
// it schedules stay queued until Commit flushes them, after fn has
// already returned (Rollback drops them). Atomic calls made from within fn
// nest inside this scope as a LIFO stack on fn's goroutine, same as
// nested Atomic; an AtomicAsync call made from within fn runs on a
// goroutine of its own, so it opens an independent scope that does not
// merge into this one. Calling AtomicAsync again for an
// unrelated scope while this one is still open is safe; the two scopes
// simply don't see each other's writes.
func AtomicAsync(fn func(context.Context) error) <-chan error {
	return Current().AtomicAsync(fn)
}

func (rt *Runtime) AtomicAsync(fn func(context.Context) error) <-chan error {
	result := make(chan error, 1)

	if err := rt.checkThread(); err != nil {
		result <- err
		close(result)
		return result
	}

	go func() {
		defer close(result)

		scope := rt.scheduler.BeginAtomic()

		var err error
		var p any
		var panicked bool
		func() {
			defer func() {
				if r := recover(); r != nil {
					panicked = true
					p = r
				}
			}()
			err = fn(context.Background())
		}()

		if panicked {
			scope.Rollback()
			result <- newUserError("atomic", p)
			return
		}
		if err != nil {
			scope.Rollback()
			result <- err
			return
		}
		scope.Commit()
		result <- nil
	}()

	return result
}

// FlushSync synchronously runs any pending flush.
func FlushSync() error { return Current().FlushSync() }

func (rt *Runtime) FlushSync() error {
	if err := rt.checkThread(); err != nil {
		return err
	}
	return rt.scheduler.FlushSync()
}

// InAtomic reports whether the calling goroutine's ambient runtime is
// currently inside an Atomic/Transaction scope.
func InAtomic() bool { return Current().InAtomic() }

func (rt *Runtime) InAtomic() bool {
	return rt.scheduler.InAtomic()
}

// Untrack runs fn without establishing reactive dependencies on any signal
// or computed it reads.
func Untrack[T any](fn func() T) T {
	rt := Current()
	var result T
	rt.RunUntracked(func() { result = fn() })
	return result
}

// RunUntracked is the non-generic building block Untrack wraps (Go methods
// cannot carry their own type parameters).
func (rt *Runtime) RunUntracked(fn func()) {
	rt.mu.Lock()
	g := rt.graph
	rt.mu.Unlock()
	g.RunUntracked(fn)
}

// Restore implements scheduler.Restorer: applies one atomic-rollback log
// entry by writing the node's value back and, if it is a signal, marking
// every downstream computed stale. Effects are never scheduled here —
// rolling back a signal's value is not itself an observable write, so
// nothing downstream should rerun because of it. Called from the
// scheduler's rollback path, which may run on a different goroutine than
// the one that opened the atomic scope (AtomicAsync); it touches the same
// rt.signals/rt.computeds/rt.graph fields every other Runtime method
// locks rt.mu around, so it does too.
func (rt *Runtime) Restore(id uint64, prev any) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	nodeID := graph.ID(id)
	if sig, ok := rt.signals[nodeID]; ok {
		sig.value = prev
		node, ok := rt.graph.Arena.Get(nodeID)
		if !ok {
			return
		}
		var discardedEffectIDs []graph.ID
		for _, subID := range node.Subs.ToSlice() {
			graph.MarkStale(rt.graph.Arena, subID, &discardedEffectIDs)
		}
		return
	}
	if c, ok := rt.computeds[nodeID]; ok {
		c.value = prev
	}
}
