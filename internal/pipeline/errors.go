package pipeline

import (
	"fmt"

	"github.com/tphakala/voiceforge/internal/errors"
)

// ComponentPipeline identifies errors raised by parameter handling
const ComponentPipeline = "pipeline"

// ErrUnknownSlider is returned for a slider ID that is not defined
var ErrUnknownSlider = errors.New(errors.NewStd("unknown slider")).
	Component(ComponentPipeline).
	Category(errors.CategoryValidation).
	Build()

func unknownSlider(id SliderID) error {
	return errors.New(fmt.Errorf("%w: %q", ErrUnknownSlider, id)).
		Component(ComponentPipeline).
		Category(errors.CategoryValidation).
		Context("slider", string(id)).
		Build()
}
