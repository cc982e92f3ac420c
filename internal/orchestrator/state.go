package orchestrator

import (
	"time"

	"github.com/tphakala/voiceforge/internal/pipeline"
)

// State is a read-only view of the session for display
type State struct {
	Status     string
	Source     string
	Generation uint64

	Playing         bool
	Looping         bool
	ShowingOriginal bool
	HasOriginal     bool
	HasProcessed    bool
	Analyzed        bool
	RenderPending   bool

	Position   int64 // frames
	Length     int64 // frames
	SampleRate int

	Values       pipeline.Values
	StaleResults uint64
}

// Elapsed returns the playback position as a duration
func (s State) Elapsed() time.Duration {
	return framesToDuration(s.Position, s.SampleRate)
}

// Total returns the selected buffer length as a duration
func (s State) Total() time.Duration {
	return framesToDuration(s.Length, s.SampleRate)
}

func framesToDuration(frames int64, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

// Snapshot returns the current session state
func (o *Orchestrator) Snapshot() State {
	s := State{
		Status:          o.status,
		Source:          o.source,
		Generation:      o.generation,
		Playing:         o.playing,
		Looping:         o.looping,
		ShowingOriginal: o.showOriginal,
		HasOriginal:     o.original != nil,
		HasProcessed:    o.processed != nil,
		Analyzed:        o.frames != nil,
		RenderPending:   o.voiceDirty || o.fxDirty,
		Position:        o.out.Position().Load(),
		Values:          o.values,
		StaleResults:    o.staleResults,
	}
	if buf := o.out.Slot().Load(); buf != nil {
		s.Length = int64(buf.Len())
		s.SampleRate = buf.SampleRate()
	}
	return s
}
