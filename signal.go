package reactor

import "github.com/reactorlib/reactor/internal/graph"

// signalBox holds a signal's untyped state inside the Runtime. Kept
// separate from graph.Node so the graph package stays free of value
// semantics.
type signalBox struct {
	value  any
	equals func(a, b any) bool
}

// Signal is a leaf cell of reactive state with equality-gated writes. T
// is constrained to comparable so the default equality can use Go's
// native == (NaN != NaN and 0 == -0 under ==; see DESIGN.md for why
// that's the chosen default rather than emulating Object.is).
type Signal[T comparable] struct {
	rt     *Runtime
	nodeID graph.ID
}

// NewSignal creates a signal on the calling goroutine's ambient runtime.
// Go methods cannot carry their own type parameters, so generic
// constructors are free functions; NewSignalIn is the explicit-Runtime
// form for callers managing their own Runtime.
func NewSignal[T comparable](initial T, equals ...func(a, b T) bool) *Signal[T] {
	return NewSignalIn(Current(), initial, equals...)
}

// NewSignalIn creates a signal owned by rt.
func NewSignalIn[T comparable](rt *Runtime, initial T, equals ...func(a, b T) bool) *Signal[T] {
	var eq func(a, b any) bool
	if len(equals) > 0 {
		userEq := equals[0]
		eq = func(a, b any) bool { return userEq(a.(T), b.(T)) }
	} else {
		eq = func(a, b any) bool { return a.(T) == b.(T) }
	}

	rt.mu.Lock()
	node := rt.graph.Arena.New(graph.KindSignal)
	rt.signals[node.ID] = &signalBox{value: initial, equals: eq}
	rt.mu.Unlock()

	rt.hooks.RegisterNode(devtoolsID(node.ID), "signal")

	return &Signal[T]{rt: rt, nodeID: node.ID}
}

// Read returns the current value, tracking a dependency on the calling
// observer (effect/computed) if one is active.
func (s *Signal[T]) Read() T {
	s.rt.mu.Lock()
	defer s.rt.mu.Unlock()

	s.rt.graph.Track(s.nodeID)
	return s.rt.signals[s.nodeID].value.(T)
}

// Peek returns the current value without tracking a dependency.
func (s *Signal[T]) Peek() T {
	s.rt.mu.Lock()
	defer s.rt.mu.Unlock()
	return s.rt.signals[s.nodeID].value.(T)
}

// Set writes next, gated by the signal's equality function. A no-op
// write never touches the atomic write log, the scheduler queue, or
// downstream nodes.
func (s *Signal[T]) Set(next T) {
	s.rt.mu.Lock()
	effectIDs, changed := s.rt.writeSignalLocked(s.nodeID, next)
	s.rt.mu.Unlock()
	if changed {
		s.rt.scheduleEffects(effectIDs)
	}
}

// Update applies fn to the current value and writes the result.
func (s *Signal[T]) Update(fn func(T) T) {
	s.rt.mu.Lock()
	box := s.rt.signals[s.nodeID]
	next := fn(box.value.(T))
	effectIDs, changed := s.rt.writeSignalLocked(s.nodeID, next)
	s.rt.mu.Unlock()
	if changed {
		s.rt.scheduleEffects(effectIDs)
	}
}

// NodeID exposes the underlying graph node id for devtools/framework
// adapters.
func (s *Signal[T]) NodeID() uint64 { return uint64(s.nodeID) }

// writeSignalLocked applies an equality-gated write and propagates
// staleness to downstream computeds, collecting the IDs of downstream
// effects that need scheduling rather than scheduling them itself.
// Scheduling a job can run it synchronously (the default microtask is
// immediate), which in turn runs arbitrary user code that may call back
// into Read/Set/TryRead — code that must find rt.mu free. Caller holds
// rt.mu and must release it before passing the returned IDs to
// scheduleEffects.
func (rt *Runtime) writeSignalLocked(nodeID graph.ID, next any) (effectIDs []graph.ID, changed bool) {
	box := rt.signals[nodeID]
	current := box.value

	if box.equals(current, next) {
		return nil, false
	}

	if rt.scheduler.InAtomic() {
		rt.scheduler.RecordAtomicWrite(uint64(nodeID), current)
	}

	box.value = next
	rt.hooks.RecordUpdate(devtoolsID(nodeID))

	node, ok := rt.graph.Arena.Get(nodeID)
	if !ok {
		return nil, true
	}
	for _, subID := range node.Subs.ToSlice() {
		sub, ok := rt.graph.Arena.Get(subID)
		if !ok {
			continue
		}
		switch sub.Kind {
		case graph.KindComputed:
			graph.MarkStale(rt.graph.Arena, subID, &effectIDs)
		case graph.KindEffect:
			effectIDs = append(effectIDs, subID)
		}
	}
	return effectIDs, true
}

// scheduleEffects hands each effect node id's registered job to the
// scheduler, once per id even if ids repeats it (a diamond reports its
// sink once per branch). Must be called with rt.mu free.
func (rt *Runtime) scheduleEffects(ids []graph.ID) {
	seen := make(map[graph.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		rt.mu.Lock()
		job, ok := rt.registry.Get(uint64(id))
		rt.mu.Unlock()
		if ok {
			rt.scheduler.ScheduleJob(job)
		}
	}
}

// Watch registers fn to run with the signal's new value every time it
// changes, via a dedicated effect. fn is not called for the signal's
// value at registration time, only on subsequent changes. Returns a
// disposer. This is sugar over NewEffectIn, not the graph's link-based
// observer attachment (see ErrIllegalEdge) — it always succeeds, because
// the hidden effect it creates is never itself a signal.
func (s *Signal[T]) Watch(fn func(T)) Disposer {
	first := true
	return NewEffectIn(s.rt, func() {
		v := s.Read()
		if first {
			first = false
			return
		}
		fn(v)
	})
}

func devtoolsID(id graph.ID) uint64 { return uint64(id) }
