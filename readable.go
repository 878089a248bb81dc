package reactor

// Readable is the read surface shared by Signal and Computed: a tracked
// Read and an untracked Peek. A framework adapter that only needs to
// subscribe to "something with get()/peek()" can depend on this instead
// of on Signal or Computed specifically.
type Readable[T any] interface {
	Read() T
	Peek() T
}

var (
	_ Readable[int] = (*Signal[int])(nil)
	_ Readable[int] = (*Computed[int])(nil)
)
