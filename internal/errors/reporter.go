package errors

import (
	"sync/atomic"
)

// Reporter receives every error produced by the builder.
// Implementations must be cheap and non-blocking.
type Reporter interface {
	ReportError(ee *EnhancedError)
}

var (
	globalReporter     atomic.Pointer[Reporter]
	hasActiveReporting atomic.Bool
)

// SetReporter installs the global reporter. Passing nil disables reporting.
func SetReporter(reporter Reporter) {
	if reporter == nil {
		globalReporter.Store(nil)
		hasActiveReporting.Store(false)
		return
	}
	globalReporter.Store(&reporter)
	hasActiveReporting.Store(true)
}

// report forwards an error to the installed reporter, if any
func report(ee *EnhancedError) {
	if !hasActiveReporting.Load() {
		return
	}

	reporterPtr := globalReporter.Load()
	if reporterPtr == nil || *reporterPtr == nil {
		return
	}

	(*reporterPtr).ReportError(ee)
}
