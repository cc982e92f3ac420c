package worker

import "github.com/tphakala/voiceforge/internal/errors"

// ComponentWorker identifies errors raised by the processing worker
const ComponentWorker = "worker"

var (
	// ErrQueueFull is returned by Submit when the command queue has no room
	ErrQueueFull = errors.New(errors.NewStd("worker command queue full")).
		Component(ComponentWorker).
		Category(errors.CategoryWorker).
		Build()

	// ErrClosed is returned by Submit after Shutdown
	ErrClosed = errors.New(errors.NewStd("worker closed")).
		Component(ComponentWorker).
		Category(errors.CategoryState).
		Build()

	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New(errors.NewStd("worker already started")).
		Component(ComponentWorker).
		Category(errors.CategoryState).
		Build()
)
