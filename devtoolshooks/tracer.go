package devtoolshooks

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is a Hooks implementation that wraps every timed recompute or
// effect run in an OpenTelemetry span named by node kind. A second,
// heavier alternative to TimingSink for hosts that already ship an OTel
// pipeline and want recompute/effect work to show up alongside their
// other spans.
type Tracer struct {
	tracer trace.Tracer

	mu    sync.Mutex
	kinds map[uint64]string
}

// NewTracer builds a Tracer using the named OTel tracer provider.
func NewTracer(instrumentationName string) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(instrumentationName),
		kinds:  make(map[uint64]string),
	}
}

func (t *Tracer) RegisterNode(id uint64, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kinds[id] = kind
}

func (t *Tracer) UnregisterNode(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.kinds, id)
}

func (t *Tracer) RecordUpdate(uint64) {}

func (t *Tracer) WithTiming(id uint64, fn func()) {
	t.mu.Lock()
	kind := t.kinds[id]
	t.mu.Unlock()

	_, span := t.tracer.Start(context.Background(), "reactor."+kind)
	defer span.End()
	fn()
}
