// Package observability exposes VoiceForge metrics over a Prometheus
// compatible HTTP endpoint.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/voiceforge/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Worker   *metrics.WorkerMetrics
	Session  *metrics.SessionMetrics
	Errors   *metrics.ErrorMetrics
	Playback *metrics.PlaybackMetrics
}

// NewMetrics creates a dedicated registry and registers every collector.
// A nil playback source leaves the playback counters out.
func NewMetrics(playback metrics.StatsSource) (*Metrics, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register Go collector: %w", err)
	}

	workerMetrics, err := metrics.NewWorkerMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker metrics: %w", err)
	}

	sessionMetrics, err := metrics.NewSessionMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create session metrics: %w", err)
	}

	errorMetrics, err := metrics.NewErrorMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create error metrics: %w", err)
	}

	m := &Metrics{
		registry: registry,
		Worker:   workerMetrics,
		Session:  sessionMetrics,
		Errors:   errorMetrics,
	}

	if playback != nil {
		if m.Playback, err = metrics.NewPlaybackMetrics(registry, playback); err != nil {
			return nil, fmt.Errorf("failed to create playback metrics: %w", err)
		}
	}
	return m, nil
}

// Registry returns the dedicated registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}
