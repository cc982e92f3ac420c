package worker

import (
	"github.com/tphakala/voiceforge/internal/audio"
	"github.com/tphakala/voiceforge/internal/pipeline"
	"github.com/tphakala/voiceforge/internal/vocoder"
)

// Stamp carries the generation a message belongs to. The orchestrator stamps
// commands and the worker copies the stamp onto every result it produces.
type Stamp struct {
	Gen uint64
}

// Generation returns the stamped generation
func (s Stamp) Generation() uint64 { return s.Gen }

// Command is a request to the worker
type Command interface {
	Generation() uint64
	command() string
}

// Load decodes a file and then analyzes it
type Load struct {
	Stamp
	Path string
}

// Analyze runs vocoder analysis on an in-memory buffer
type Analyze struct {
	Stamp
	Buffer *audio.Buffer
}

// Resynthesize applies voice parameters to the cached frames, synthesizes and
// runs the effects chain.
type Resynthesize struct {
	Stamp
	Voice   pipeline.VoiceParams
	Effects pipeline.EffectParams
}

// ReapplyEffects re-runs the effects chain on the cached post-vocoder audio
type ReapplyEffects struct {
	Stamp
	Effects pipeline.EffectParams
}

// Shutdown stops the worker
type Shutdown struct {
	Stamp
}

func (Load) command() string           { return "load" }
func (Analyze) command() string        { return "analyze" }
func (Resynthesize) command() string   { return "resynthesize" }
func (ReapplyEffects) command() string { return "reapply_effects" }
func (Shutdown) command() string       { return "shutdown" }

// Result is produced by the worker
type Result interface {
	Generation() uint64
	result()
}

// Status is a progress or error message for the status line. Err is set when
// the status reports a failure.
type Status struct {
	Stamp
	Text string
	Err  error
}

// AudioReady is posted after a Load decoded its file
type AudioReady struct {
	Stamp
	Buffer *audio.Buffer
	Path   string
}

// AnalysisComplete carries the frames and the mono original they were
// computed from.
type AnalysisComplete struct {
	Stamp
	Frames *vocoder.Frames
	Mono   *audio.Buffer
}

// SynthesisComplete carries a fully processed buffer
type SynthesisComplete struct {
	Stamp
	Buffer *audio.Buffer
}

func (Status) result()            {}
func (AudioReady) result()        {}
func (AnalysisComplete) result()  {}
func (SynthesisComplete) result() {}
