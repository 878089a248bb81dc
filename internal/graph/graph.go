// Package graph implements the dependency graph underlying the reactor
// runtime: node identity, bidirectional deps/subs edges, and the
// current-observer tracking context.
//
// Nodes are kept in a dense arena keyed by ID rather than linked through
// pointers that would form reference cycles between signals, computeds
// and effects. Kind-specific state (a signal's value, a computed's
// cached result, an effect's cleanup stack) is owned by the reactor
// package, not by this one; Node only carries what the graph invariants
// need.
package graph

import mapset "github.com/deckarep/golang-set/v2"

// Kind tags a Node's role. Immutable once a node is created.
type Kind int

const (
	KindSignal Kind = iota
	KindComputed
	KindEffect
)

func (k Kind) String() string {
	switch k {
	case KindSignal:
		return "signal"
	case KindComputed:
		return "computed"
	case KindEffect:
		return "effect"
	default:
		return "unknown"
	}
}

// ID is a dense, process-local node identifier.
type ID uint64

// Node is the shared graph vertex. Signal.Deps is always empty, enforced
// by Link rejecting a signal source; Effect.Subs stays empty because
// nothing tracks an effect as a dependency (Link does not check it).
type Node struct {
	ID   ID
	Kind Kind

	Deps mapset.Set[ID]
	Subs mapset.Set[ID]

	// Invalidate is set only on Computed nodes. It must flip the node's
	// stale flag to true and report whether it was already stale, so
	// MarkStale can short-circuit propagation. Nil for Signal/Effect.
	Invalidate func() (alreadyStale bool)
}

func newNode(id ID, kind Kind) *Node {
	return &Node{
		ID:   id,
		Kind: kind,
		Deps: mapset.NewThreadUnsafeSet[ID](),
		Subs: mapset.NewThreadUnsafeSet[ID](),
	}
}

// Arena owns every live node, keyed by a dense counter.
type Arena struct {
	nodes map[ID]*Node
	next  ID
}

func NewArena() *Arena {
	return &Arena{nodes: make(map[ID]*Node)}
}

func (a *Arena) New(kind Kind) *Node {
	a.next++
	n := newNode(a.next, kind)
	a.nodes[n.ID] = n
	return n
}

func (a *Arena) Get(id ID) (*Node, bool) {
	n, ok := a.nodes[id]
	return n, ok
}

// Remove drops the arena entry. Callers must sever incident edges first.
func (a *Arena) Remove(id ID) {
	delete(a.nodes, id)
}

// Graph bundles the node arena with the current-observer tracking stack.
type Graph struct {
	Arena *Arena

	// observers is the LIFO stack of WithObserver acquisitions.
	observers []ID

	// untrackDepth > 0 suspends Track regardless of the observer stack.
	untrackDepth int
}

func New() *Graph {
	return &Graph{Arena: NewArena()}
}

// Link inserts the to-node into from's deps and from into to's subs.
// Idempotent: linking an already-linked pair is a no-op.
func (g *Graph) Link(fromID, toID ID) error {
	from, ok := g.Arena.Get(fromID)
	if !ok {
		return nil
	}
	if from.Kind == KindSignal {
		return ErrIllegalEdge
	}
	to, ok := g.Arena.Get(toID)
	if !ok {
		return nil
	}

	from.Deps.Add(toID)
	to.Subs.Add(fromID)
	return nil
}

// Unlink removes the bidirectional edge if present; no-op otherwise.
func (g *Graph) Unlink(fromID, toID ID) {
	if from, ok := g.Arena.Get(fromID); ok {
		from.Deps.Remove(toID)
	}
	if to, ok := g.Arena.Get(toID); ok {
		to.Subs.Remove(fromID)
	}
}

// UnlinkAllDeps severs every edge from -> dep currently recorded on from,
// snapshotting first so it is safe against mutation during iteration.
func (g *Graph) UnlinkAllDeps(fromID ID) {
	from, ok := g.Arena.Get(fromID)
	if !ok {
		return
	}
	deps := from.Deps.ToSlice()
	for _, depID := range deps {
		g.Unlink(fromID, depID)
	}
}

// UnlinkAllEdges severs every edge incident to id, in both directions.
func (g *Graph) UnlinkAllEdges(id ID) {
	n, ok := g.Arena.Get(id)
	if !ok {
		return
	}
	for _, depID := range n.Deps.ToSlice() {
		g.Unlink(id, depID)
	}
	for _, subID := range n.Subs.ToSlice() {
		g.Unlink(subID, id)
	}
}

// WithObserver scopes the current-observer slot for the duration of fn,
// restoring the previous value on every exit path including panics.
func (g *Graph) WithObserver(id ID, fn func()) {
	g.observers = append(g.observers, id)
	defer func() {
		g.observers = g.observers[:len(g.observers)-1]
	}()
	fn()
}

// CurrentObserver returns the top of the observer stack, if any.
func (g *Graph) CurrentObserver() (ID, bool) {
	if len(g.observers) == 0 {
		return 0, false
	}
	return g.observers[len(g.observers)-1], true
}

// RunUntracked suspends Track for the duration of fn regardless of nesting.
func (g *Graph) RunUntracked(fn func()) {
	g.untrackDepth++
	defer func() { g.untrackDepth-- }()
	fn()
}

// Track links the current observer (if any) to dep, unless tracking has
// been suspended by RunUntracked.
func (g *Graph) Track(dep ID) {
	if g.untrackDepth > 0 {
		return
	}
	if cur, ok := g.CurrentObserver(); ok {
		_ = g.Link(cur, dep)
	}
}

// MarkStale flips a computed node's stale flag (via its Invalidate hook)
// and, unless it was already stale, recurses into downstream computeds
// and appends downstream effect node IDs to effectIDs. Scheduling those
// effects is left to the caller: this function only ever touches the
// arena, never a scheduler, so it stays safe to call from inside a
// locked bookkeeping section regardless of what running an effect job
// would need to reenter.
func MarkStale(a *Arena, id ID, effectIDs *[]ID) {
	n, ok := a.Get(id)
	if !ok || n.Kind != KindComputed || n.Invalidate == nil {
		return
	}

	alreadyStale := n.Invalidate()
	if alreadyStale {
		return
	}

	for _, subID := range n.Subs.ToSlice() {
		sub, ok := a.Get(subID)
		if !ok {
			continue
		}
		switch sub.Kind {
		case KindComputed:
			MarkStale(a, subID, effectIDs)
		case KindEffect:
			*effectIDs = append(*effectIDs, subID)
		}
	}
}
