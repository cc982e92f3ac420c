package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionMetrics counts orchestrator and decoder events. It implements the
// orchestrator Observer and the decoder CacheObserver.
type SessionMetrics struct {
	staleResults   prometheus.Counter
	decodeCacheHit prometheus.Counter
}

// NewSessionMetrics creates and registers session metrics
func NewSessionMetrics(registry prometheus.Registerer) (*SessionMetrics, error) {
	m := &SessionMetrics{
		staleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "orchestrator",
			Name:      "stale_results_total",
			Help:      "Worker results discarded because a newer load superseded them",
		}),
		decodeCacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "decoder",
			Name:      "cache_hits_total",
			Help:      "Decode requests served from the decode cache",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.staleResults.Describe(ch)
	m.decodeCacheHit.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.staleResults.Collect(ch)
	m.decodeCacheHit.Collect(ch)
}

// StaleResultDiscarded records one discarded worker result
func (m *SessionMetrics) StaleResultDiscarded() { m.staleResults.Inc() }

// DecodeCacheHit records one decode cache hit
func (m *SessionMetrics) DecodeCacheHit() { m.decodeCacheHit.Inc() }
