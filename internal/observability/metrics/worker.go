package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkerMetrics counts processing worker commands. It implements the
// worker's Observer interface.
type WorkerMetrics struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	coalescedTotal  prometheus.Counter
}

// NewWorkerMetrics creates and registers worker metrics
func NewWorkerMetrics(registry prometheus.Registerer) (*WorkerMetrics, error) {
	m := &WorkerMetrics{
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "worker",
				Name:      "commands_total",
				Help:      "Worker commands handled, by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "worker",
				Name:      "command_duration_seconds",
				Help:      "Time spent handling a worker command",
				Buckets:   commandDurationBuckets,
			},
			[]string{"command"},
		),
		coalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "worker",
			Name:      "coalesced_total",
			Help:      "Render commands superseded by a newer queued command",
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *WorkerMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.commandsTotal.Describe(ch)
	m.commandDuration.Describe(ch)
	m.coalescedTotal.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *WorkerMetrics) Collect(ch chan<- prometheus.Metric) {
	m.commandsTotal.Collect(ch)
	m.commandDuration.Collect(ch)
	m.coalescedTotal.Collect(ch)
}

// CommandHandled records one handled command
func (m *WorkerMetrics) CommandHandled(command, outcome string, d time.Duration) {
	m.commandsTotal.WithLabelValues(command, outcome).Inc()
	m.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// CommandsCoalesced records n commands dropped in favour of a newer one
func (m *WorkerMetrics) CommandsCoalesced(n int) {
	if n > 0 {
		m.coalescedTotal.Add(float64(n))
	}
}
