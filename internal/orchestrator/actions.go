package orchestrator

import (
	"github.com/tphakala/voiceforge/internal/audio"
	"github.com/tphakala/voiceforge/internal/pipeline"
)

// Action is an input event handled by Dispatch
type Action interface {
	action() string
}

// PlayPause toggles playback. Playing from the end restarts at the beginning.
type PlayPause struct{}

// Seek moves the position by DeltaSeconds, clamped to the buffer
type Seek struct {
	DeltaSeconds float64
}

// Rewind moves the position to the start
type Rewind struct{}

// SetSlider changes one slider value
type SetSlider struct {
	ID    pipeline.SliderID
	Value float64
}

// AdjustSlider moves a slider by a number of steps
type AdjustSlider struct {
	ID    pipeline.SliderID
	Steps float64
}

// ResetSliders returns every slider to its default
type ResetSliders struct{}

// ToggleBypass switches the vocoder stage on or off
type ToggleBypass struct{}

// ToggleAB switches between the original and the processed buffer
type ToggleAB struct{}

// ToggleLoop switches looping playback
type ToggleLoop struct{}

// LoadFile decodes and analyzes a file on the worker
type LoadFile struct {
	Path string
}

// SetAudio loads an in-memory buffer and analyzes it
type SetAudio struct {
	Buffer *audio.Buffer
	Name   string
}

// Export asks the front end to write the current selection. Dispatch only
// records it in the status line; the caller performs the write.
type Export struct {
	Path string
}

// Shutdown requests the control loop to exit
type Shutdown struct{}

func (PlayPause) action() string    { return "play_pause" }
func (Seek) action() string         { return "seek" }
func (Rewind) action() string       { return "rewind" }
func (SetSlider) action() string    { return "set_slider" }
func (AdjustSlider) action() string { return "adjust_slider" }
func (ResetSliders) action() string { return "reset_sliders" }
func (ToggleBypass) action() string { return "toggle_bypass" }
func (ToggleAB) action() string     { return "toggle_ab" }
func (ToggleLoop) action() string   { return "toggle_loop" }
func (LoadFile) action() string     { return "load_file" }
func (SetAudio) action() string     { return "set_audio" }
func (Export) action() string       { return "export" }
func (Shutdown) action() string     { return "shutdown" }
