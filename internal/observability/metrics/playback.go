package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/voiceforge/internal/playback"
)

// StatsSource exposes the playback callback counters
type StatsSource interface {
	Stats() playback.Stats
}

// PlaybackMetrics samples the callback counters at scrape time. The audio
// callback only bumps atomics and never calls into prometheus.
type PlaybackMetrics struct {
	source StatsSource

	slotContention *prometheus.Desc
	tapMisses      *prometheus.Desc
	callbackPanics *prometheus.Desc
}

// NewPlaybackMetrics creates and registers a collector for source
func NewPlaybackMetrics(registry prometheus.Registerer, source StatsSource) (*PlaybackMetrics, error) {
	m := &PlaybackMetrics{
		source: source,
		slotContention: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "playback", "slot_contention_total"),
			"Callbacks that rendered silence because the buffer slot was being swapped",
			nil, nil),
		tapMisses: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "playback", "tap_miss_total"),
			"Callback blocks not copied into the spectrum tap",
			nil, nil),
		callbackPanics: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "playback", "callback_panics_total"),
			"Panics recovered inside the audio callback",
			nil, nil),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *PlaybackMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.slotContention
	ch <- m.tapMisses
	ch <- m.callbackPanics
}

// Collect implements prometheus.Collector
func (m *PlaybackMetrics) Collect(ch chan<- prometheus.Metric) {
	s := m.source.Stats()
	ch <- prometheus.MustNewConstMetric(m.slotContention, prometheus.CounterValue, float64(s.SlotContention))
	ch <- prometheus.MustNewConstMetric(m.tapMisses, prometheus.CounterValue, float64(s.TapMisses))
	ch <- prometheus.MustNewConstMetric(m.callbackPanics, prometheus.CounterValue, float64(s.CallbackPanics))
}
