package graph

import "errors"

// ErrIllegalEdge is returned by Link when the edge's source
// (the observer side) is a signal node — signals never have dependencies.
var ErrIllegalEdge = errors.New("graph: illegal edge: signal cannot observe a dependency")
