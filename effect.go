package reactor

import "github.com/reactorlib/reactor/internal/graph"

// effectBox holds an effect's untyped state inside the Runtime.
type effectBox struct {
	fn    func()
	owner *Owner
}

// Disposer is anything that can be torn down once. *Effect and *Owner
// both satisfy it.
type Disposer interface {
	Dispose()
}

// Effect is a re-runnable side effect: it runs immediately when created,
// tracking every signal and computed it reads, and reruns whenever one
// of those changes. Each run starts by disposing whatever the previous
// run registered via OnCleanup, so cleanup is always scoped to exactly
// one run.
type Effect struct {
	rt     *Runtime
	nodeID graph.ID
	owner  *Owner
}

// NewEffect creates an effect on the calling goroutine's ambient
// runtime.
func NewEffect(fn func()) *Effect {
	return NewEffectIn(Current(), fn)
}

// NewEffectIn creates an effect owned by rt and runs it once synchronously.
func NewEffectIn(rt *Runtime, fn func()) *Effect {
	rt.mu.Lock()
	node := rt.graph.Arena.New(graph.KindEffect)
	owner := rt.newOwner(rt.currentOwner)
	rt.effects[node.ID] = &effectBox{fn: fn, owner: owner}
	rt.owners[node.ID] = owner
	rt.mu.Unlock()

	e := &Effect{rt: rt, nodeID: node.ID, owner: owner}

	rt.mu.Lock()
	rt.registry.Set(uint64(node.ID), e)
	rt.mu.Unlock()

	// Tearing down this owner tears down the effect, whether that happens
	// through an explicit Dispose call or because an ancestor scope
	// (a parent effect rerunning, say) disposed it as a child.
	owner.OnCleanup(func() {
		rt.mu.Lock()
		delete(rt.effects, node.ID)
		delete(rt.owners, node.ID)
		rt.graph.UnlinkAllEdges(node.ID)
		rt.mu.Unlock()

		rt.registry.Delete(uint64(node.ID))
		rt.hooks.UnregisterNode(devtoolsID(node.ID))
	})

	rt.hooks.RegisterNode(devtoolsID(node.ID), "effect")

	e.Run()
	return e
}

// Run reruns the effect's body with fresh dependency tracking. Exported
// so the effect satisfies the scheduler's Job interface; callers
// normally never invoke it directly — a dependency change does, via the
// scheduler.
func (e *Effect) Run() {
	if e.owner.Disposed() {
		return
	}

	rt := e.rt
	rt.mu.Lock()
	box, ok := rt.effects[e.nodeID]
	if !ok {
		rt.mu.Unlock()
		return
	}
	rt.graph.UnlinkAllDeps(e.nodeID)
	fn := box.fn
	rt.mu.Unlock()

	e.owner.resetForRerun()

	var p any
	var panicked bool
	rt.hooks.WithTiming(devtoolsID(e.nodeID), func() {
		p, panicked = e.owner.runTracked(e.nodeID, fn)
	})
	if panicked {
		e.owner.dispatchPanic(p)
		err := newUserError("effect", p)
		rt.logger.Error("reactor: effect failed", "error", err)
		rt.errorSink(err)
	}

	rt.hooks.RecordUpdate(devtoolsID(e.nodeID))
}

// Disposed reports whether the effect has been torn down.
func (e *Effect) Disposed() bool { return e.owner.Disposed() }

// Dispose severs the effect's edges, drains its owner (running the last
// cleanup and disposing any nested resources), and removes it from the
// registry so a stale subs traversal can never schedule it again.
func (e *Effect) Dispose() { e.owner.Dispose() }

// NodeID exposes the underlying graph node id for devtools/framework
// adapters.
func (e *Effect) NodeID() uint64 { return uint64(e.nodeID) }
