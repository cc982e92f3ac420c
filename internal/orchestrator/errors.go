package orchestrator

import "github.com/tphakala/voiceforge/internal/errors"

// ComponentOrchestrator identifies errors raised by the control loop
const ComponentOrchestrator = "orchestrator"

var (
	// ErrNoAudio is returned by actions that need a loaded buffer
	ErrNoAudio = errors.New(errors.NewStd("no audio loaded")).
		Component(ComponentOrchestrator).
		Category(errors.CategoryState).
		Build()

	// ErrNothingToCompare is returned by ToggleAB before a processed buffer exists
	ErrNothingToCompare = errors.New(errors.NewStd("no processed audio to compare")).
		Component(ComponentOrchestrator).
		Category(errors.CategoryState).
		Build()
)
