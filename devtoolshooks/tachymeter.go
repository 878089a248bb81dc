package devtoolshooks

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/jamiealquiza/tachymeter"
)

// TimingSink is a Hooks implementation that buckets recompute/effect
// timings per node kind using tachymeter, giving a host a p50/p99 view
// of runtime work without wiring a full metrics backend. Node kinds are
// hashed with xxhash into the bucket map key rather than compared as
// strings on every WithTiming call.
type TimingSink struct {
	mu     sync.Mutex
	kinds  map[uint64]string
	timers map[uint64]*tachymeter.Tachymeter
	sample int
}

// NewTimingSink creates a TimingSink retaining up to sampleSize timings
// per node kind for percentile calculation.
func NewTimingSink(sampleSize int) *TimingSink {
	if sampleSize <= 0 {
		sampleSize = 2000
	}
	return &TimingSink{
		kinds:  make(map[uint64]string),
		timers: make(map[uint64]*tachymeter.Tachymeter),
		sample: sampleSize,
	}
}

func (t *TimingSink) bucket(kind string) *tachymeter.Tachymeter {
	key := xxhash.Sum64String(kind)
	tm, ok := t.timers[key]
	if !ok {
		tm = tachymeter.New(&tachymeter.Config{Size: t.sample})
		t.timers[key] = tm
	}
	return tm
}

func (t *TimingSink) RegisterNode(id uint64, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kinds[id] = kind
	t.bucket(kind)
}

func (t *TimingSink) UnregisterNode(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.kinds, id)
}

func (t *TimingSink) RecordUpdate(uint64) {}

func (t *TimingSink) WithTiming(id uint64, fn func()) {
	start := clock()
	fn()
	elapsed := clock().Sub(start)

	t.mu.Lock()
	kind, ok := t.kinds[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	tm := t.bucket(kind)
	t.mu.Unlock()

	tm.AddTime(elapsed)
}

// Report snapshots each tracked node kind's tachymeter calculation,
// suitable for the reactorctl demo CLI's table renderer.
func (t *TimingSink) Report() map[string]*tachymeter.Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()

	seen := make(map[uint64]string)
	for _, kind := range t.kinds {
		seen[xxhash.Sum64String(kind)] = kind
	}

	out := make(map[string]*tachymeter.Metrics, len(seen))
	for key, kind := range seen {
		out[kind] = t.timers[key].Calc()
	}
	return out
}
