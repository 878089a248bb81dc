package reactor

import (
	"github.com/reactorlib/reactor/internal/graph"
)

// computedBox holds a computed's untyped state inside the Runtime.
type computedBox struct {
	value     any
	hasValue  bool
	stale     bool
	computing bool

	equals func(a, b any) bool
	fn     func() any
	owner  *Owner
}

// Computed is a lazily-memoized derivation over other signals and
// computeds. It recomputes on the next Read/TryRead after any dependency
// changes, never eagerly, and caches its result until then.
type Computed[T comparable] struct {
	rt     *Runtime
	nodeID graph.ID
	owner  *Owner
}

// NewComputed creates a computed on the calling goroutine's ambient
// runtime. See NewSignal/NewSignalIn for why the generic constructor is
// a free function rather than a method.
func NewComputed[T comparable](fn func() T, equals ...func(a, b T) bool) *Computed[T] {
	return NewComputedIn(Current(), fn, equals...)
}

// NewComputedIn creates a computed owned by rt.
func NewComputedIn[T comparable](rt *Runtime, fn func() T, equals ...func(a, b T) bool) *Computed[T] {
	var eq func(a, b any) bool
	if len(equals) > 0 {
		userEq := equals[0]
		eq = func(a, b any) bool { return userEq(a.(T), b.(T)) }
	} else {
		eq = func(a, b any) bool { return a.(T) == b.(T) }
	}

	wrapped := func() any { return fn() }

	rt.mu.Lock()
	node := rt.graph.Arena.New(graph.KindComputed)
	owner := rt.newOwner(rt.currentOwner)
	box := &computedBox{equals: eq, fn: wrapped, stale: true, owner: owner}
	rt.computeds[node.ID] = box
	rt.owners[node.ID] = owner
	node.Invalidate = func() bool {
		wasStale := box.stale
		box.stale = true
		return wasStale
	}
	rt.mu.Unlock()

	owner.OnCleanup(func() {
		rt.mu.Lock()
		delete(rt.computeds, node.ID)
		delete(rt.owners, node.ID)
		rt.graph.UnlinkAllEdges(node.ID)
		rt.mu.Unlock()

		rt.hooks.UnregisterNode(devtoolsID(node.ID))
	})

	rt.hooks.RegisterNode(devtoolsID(node.ID), "computed")

	return &Computed[T]{rt: rt, nodeID: node.ID, owner: owner}
}

// Read returns the current (possibly freshly recomputed) value, tracking
// a dependency on the calling observer if one is active. A panic or
// cycle from the underlying derivation propagates out of Read as a panic
// since T-only signatures leave no room for an error return; use TryRead
// for the non-panicking form. Named to match Signal.Read so both types
// satisfy the same Readable interface.
func (c *Computed[T]) Read() T {
	v, err := c.TryRead()
	if err != nil {
		panic(err)
	}
	return v
}

// TryRead is Read's non-panicking form: it surfaces a cycle or a panic
// from the underlying derivation as an error instead.
func (c *Computed[T]) TryRead() (T, error) {
	rt := c.rt

	rt.mu.Lock()
	rt.graph.Track(c.nodeID)
	box, ok := rt.computeds[c.nodeID]
	if !ok {
		rt.mu.Unlock()
		var zero T
		return zero, nil
	}
	needsRecompute := box.stale || !box.hasValue
	rt.mu.Unlock()

	if needsRecompute {
		if err := rt.recomputeComputed(c.nodeID); err != nil {
			var zero T
			return zero, err
		}
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	box, ok = rt.computeds[c.nodeID]
	if !ok {
		var zero T
		return zero, nil
	}
	return box.value.(T), nil
}

// Peek returns the last computed value without tracking a dependency and
// without forcing a stale recompute. Mirrors Signal.Peek so both types
// satisfy the same Readable interface.
func (c *Computed[T]) Peek() T {
	c.rt.mu.Lock()
	defer c.rt.mu.Unlock()
	box, ok := c.rt.computeds[c.nodeID]
	if !ok {
		var zero T
		return zero
	}
	return box.value.(T)
}

// NodeID exposes the underlying graph node id for devtools/framework
// adapters.
func (c *Computed[T]) NodeID() uint64 { return uint64(c.nodeID) }

// Disposed reports whether the computed has been torn down.
func (c *Computed[T]) Disposed() bool { return c.owner.Disposed() }

// Dispose tears down the computed: drains its owner's cleanups, disposes
// any nested resources created by its last run, and removes it from the
// graph.
func (c *Computed[T]) Dispose() { c.owner.Dispose() }

// recomputeComputed reruns a computed's derivation with fresh dependency
// tracking. Cycle detection, dep unlinking and the computing flag are
// bookkeeping done under rt.mu; disposing the computed's previous-run
// children and calling its derivation function are user code and run
// with rt.mu released so they can freely read/write signals.
func (rt *Runtime) recomputeComputed(nodeID graph.ID) error {
	rt.mu.Lock()
	box, ok := rt.computeds[nodeID]
	if !ok {
		rt.mu.Unlock()
		return nil
	}
	if box.computing {
		rt.mu.Unlock()
		return ErrCycleDetected
	}
	box.computing = true
	rt.graph.UnlinkAllDeps(nodeID)
	owner := box.owner
	fn := box.fn
	rt.mu.Unlock()

	owner.DisposeChildren()

	var next any
	var p any
	var panicked bool
	rt.hooks.WithTiming(devtoolsID(nodeID), func() {
		p, panicked = owner.runTracked(nodeID, func() { next = fn() })
	})

	rt.mu.Lock()
	defer rt.mu.Unlock()
	box, ok = rt.computeds[nodeID]
	if !ok {
		return nil
	}
	if panicked {
		box.computing = false
		box.stale = true
		owner.dispatchPanic(p)
		return newUserError("computed", p)
	}

	if !box.hasValue || !box.equals(box.value, next) {
		box.value = next
		box.hasValue = true
	}
	box.stale = false
	box.computing = false
	return nil
}
