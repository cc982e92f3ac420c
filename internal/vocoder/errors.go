package vocoder

import (
	"fmt"

	"github.com/tphakala/voiceforge/internal/errors"
)

// ComponentVocoder identifies errors raised by the analysis engine
const ComponentVocoder = "vocoder"

var (
	// ErrInvalidInput is returned for empty, mismatched or non-finite input
	// before anything reaches the backend.
	ErrInvalidInput = errors.New(errors.NewStd("invalid vocoder input")).
		Component(ComponentVocoder).
		Category(errors.CategoryValidation).
		Build()

	// ErrOutputTooLarge is returned when synthesis would exceed the output limit.
	ErrOutputTooLarge = errors.New(errors.NewStd("synthesis output too large")).
		Component(ComponentVocoder).
		Category(errors.CategoryLimit).
		Build()

	// ErrNativeFailure is returned when the backend fails or produces malformed output.
	ErrNativeFailure = errors.New(errors.NewStd("vocoder backend failure")).
		Component(ComponentVocoder).
		Category(errors.CategoryNative).
		Build()
)

func invalidInput(format string, args ...any) error {
	return errors.New(fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))).
		Component(ComponentVocoder).
		Category(errors.CategoryValidation).
		Build()
}

func nativeFailure(op string, cause error) error {
	return errors.New(fmt.Errorf("%w: %s: %w", ErrNativeFailure, op, cause)).
		Component(ComponentVocoder).
		Category(errors.CategoryNative).
		Context("operation", op).
		Build()
}

func errorOutputTooLarge(samples float64, limit int) error {
	return errors.New(fmt.Errorf("%w: %.0f samples exceeds limit of %d", ErrOutputTooLarge, samples, limit)).
		Component(ComponentVocoder).
		Category(errors.CategoryLimit).
		Context("samples", samples).
		Context("limit", limit).
		Build()
}
