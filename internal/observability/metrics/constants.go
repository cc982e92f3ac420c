// Package metrics defines the Prometheus collectors for VoiceForge sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name
const Namespace = "voiceforge"

// ShutdownTimeout bounds the metrics HTTP server shutdown
const ShutdownTimeout = 5 * time.Second

// commandDurationBuckets spans 1 ms to about 65 s; analysis of long files
// sits at the top end.
var commandDurationBuckets = prometheus.ExponentialBuckets(0.001, 2, 17)
