package decoder

import (
	"context"
	"fmt"

	"github.com/tphakala/voiceforge/internal/errors"
)

// ComponentDecoder identifies errors raised while decoding audio files
const ComponentDecoder = "decoder"

var (
	// ErrDecode wraps every failure to turn a file into PCM
	ErrDecode = errors.New(errors.NewStd("decode failed")).
		Component(ComponentDecoder).
		Category(errors.CategoryFileParsing).
		Build()

	// ErrUnsupportedFormat is returned for encodings no decoder handles
	ErrUnsupportedFormat = errors.New(errors.NewStd("unsupported audio format")).
		Component(ComponentDecoder).
		Category(errors.CategoryValidation).
		Build()
)

func decodeError(path, format string, err error) error {
	category := errors.CategoryFileParsing
	switch {
	case errors.Is(err, context.Canceled):
		category = errors.CategoryCancellation
	case errors.Is(err, context.DeadlineExceeded):
		category = errors.CategoryTimeout
	case errors.Is(err, errCommand):
		category = errors.CategoryCommandExecution
	}
	return errors.New(fmt.Errorf("%w: %s: %w", ErrDecode, format, err)).
		Component(ComponentDecoder).
		Category(category).
		Context("path", path).
		Context("format", format).
		Build()
}

func unsupported(path, detail string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrUnsupportedFormat, detail)).
		Component(ComponentDecoder).
		Category(errors.CategoryValidation).
		Context("path", path).
		Build()
}
