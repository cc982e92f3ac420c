package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/voiceforge/internal/errors"
)

// ErrorMetrics counts built errors by component and category. It implements
// errors.Reporter.
type ErrorMetrics struct {
	errorsTotal *prometheus.CounterVec
}

// NewErrorMetrics creates and registers error metrics
func NewErrorMetrics(registry prometheus.Registerer) (*ErrorMetrics, error) {
	m := &ErrorMetrics{
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Errors raised by component and category",
		}, []string{"component", "category"}),
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *ErrorMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.errorsTotal.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *ErrorMetrics) Collect(ch chan<- prometheus.Metric) {
	m.errorsTotal.Collect(ch)
}

// ReportError implements errors.Reporter
func (m *ErrorMetrics) ReportError(ee *errors.EnhancedError) {
	m.errorsTotal.WithLabelValues(ee.GetComponent(), ee.GetCategory()).Inc()
}
