package devtoolshooks

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a Hooks implementation exposing node lifecycle and update
// activity as Prometheus collectors: a gauge of live nodes by kind, a
// counter of RecordUpdate calls by kind (value-changing signal writes and
// finished effect runs), and a histogram of recompute/effect run
// durations.
type Metrics struct {
	mu    sync.Mutex
	kinds map[uint64]string

	nodesAlive  *prometheus.GaugeVec
	updates     *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

// NewMetrics registers its collectors against registry under namespace
// and returns the ready-to-use Metrics hook.
func NewMetrics(registry prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		kinds: make(map[uint64]string),
		nodesAlive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_alive",
			Help:      "Number of live reactive nodes by kind.",
		}, []string{"kind"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Number of value-changing updates by node kind.",
		}, []string{"kind"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a computed recompute or effect run.",
		}, []string{"kind"}),
	}
	registry.MustRegister(m.nodesAlive, m.updates, m.runDuration)
	return m
}

func (m *Metrics) RegisterNode(id uint64, kind string) {
	m.mu.Lock()
	m.kinds[id] = kind
	m.mu.Unlock()
	m.nodesAlive.WithLabelValues(kind).Inc()
}

func (m *Metrics) UnregisterNode(id uint64) {
	m.mu.Lock()
	kind, ok := m.kinds[id]
	delete(m.kinds, id)
	m.mu.Unlock()
	if ok {
		m.nodesAlive.WithLabelValues(kind).Dec()
	}
}

func (m *Metrics) RecordUpdate(id uint64) {
	m.mu.Lock()
	kind := m.kinds[id]
	m.mu.Unlock()
	m.updates.WithLabelValues(kind).Inc()
}

func (m *Metrics) WithTiming(id uint64, fn func()) {
	start := clock()
	fn()
	elapsed := clock().Sub(start)

	m.mu.Lock()
	kind := m.kinds[id]
	m.mu.Unlock()
	m.runDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
