package conf

import (
	"fmt"
	"net"
	"time"

	"github.com/tphakala/voiceforge/internal/errors"
	"github.com/tphakala/voiceforge/internal/logging"
	"github.com/tphakala/voiceforge/internal/vocoder"
)

// MinDebounce is the shortest accepted render debounce
const MinDebounce = 10 * time.Millisecond

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}
	add := func(format string, args ...any) {
		ve.Errors = append(ve.Errors, fmt.Sprintf(format, args...))
	}

	if _, err := logging.ParseLevel(settings.Main.Log.Level); err != nil {
		add("main.log.level: %v", err)
	}

	a := settings.Audio
	if a.Channels != 1 && a.Channels != 2 {
		add("audio.channels must be 1 or 2, got %d", a.Channels)
	}
	if a.SampleRate < 0 {
		add("audio.samplerate must not be negative, got %d", a.SampleRate)
	}
	if a.TapSize <= 0 || a.TapSize&(a.TapSize-1) != 0 {
		add("audio.tapsize must be a power of two, got %d", a.TapSize)
	}

	p := settings.Processing
	switch p.Backend {
	case vocoder.BackendReference, vocoder.BackendWorld:
	default:
		add("processing.backend must be %q or %q, got %q", vocoder.BackendReference, vocoder.BackendWorld, p.Backend)
	}
	if p.Debounce < MinDebounce {
		add("processing.debounce must be at least %s, got %s", MinDebounce, p.Debounce)
	}
	if p.QueueSize <= 0 {
		add("processing.queuesize must be positive, got %d", p.QueueSize)
	}

	if settings.Decoder.CacheTTL < 0 {
		add("decoder.cachettl must not be negative, got %s", settings.Decoder.CacheTTL)
	}

	if m := settings.Metrics; m.Enabled {
		if _, _, err := net.SplitHostPort(m.Listen); err != nil {
			add("metrics.listen: %v", err)
		}
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component(ComponentConf).
			Category(errors.CategoryValidation).
			Context("error_count", len(ve.Errors)).
			Build()
	}
	return nil
}
