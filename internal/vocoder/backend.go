package vocoder

import (
	"fmt"
	"math"
)

const (
	// DefaultFramePeriod is the analysis hop in milliseconds
	DefaultFramePeriod = 5.0
	// DefaultF0Floor is the lowest fundamental frequency tracked, in Hz
	DefaultF0Floor = 71.0
	// DefaultF0Ceil is the highest fundamental frequency tracked, in Hz
	DefaultF0Ceil = 800.0

	// MaxSynthesisSamples bounds synthesis output: 10 minutes at 96 kHz.
	MaxSynthesisSamples = 96000 * 60 * 10
)

// Backend names accepted by NewBackend
const (
	BackendReference = "reference"
	BackendWorld     = "world"
)

// AnalyzeOptions carries the analysis settings shared by every backend.
type AnalyzeOptions struct {
	FramePeriod float64
	F0Floor     float64
	F0Ceil      float64
	// Progress is called with 25, 50, 75 and 100 as the analysis stages finish.
	// It is never nil when passed to a Backend.
	Progress func(pct int)
}

// Backend performs the actual analysis and synthesis. Implementations receive
// input that has already been validated and may assume:
//   - x is non-empty and finite, fs is positive
//   - frames passed to Synthesize have consistent shapes and finite values
//   - outLen equals SynthesisLength for those frames
//
// A Backend is only ever called from one goroutine at a time.
type Backend interface {
	Name() string
	Analyze(x []float64, fs int, opts AnalyzeOptions) (*Frames, error)
	Synthesize(frames *Frames, outLen int) ([]float64, error)
}

// NewBackend returns the backend registered under name.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "", BackendReference:
		return NewReferenceBackend(), nil
	case BackendWorld:
		return newWorldBackend()
	default:
		return nil, fmt.Errorf("unknown vocoder backend %q", name)
	}
}

// FrameCount returns the number of analysis frames for xLen samples,
// matching WORLD's GetSamplesForDIO.
func FrameCount(fs, xLen int, framePeriod float64) int {
	return int(1000.0*float64(xLen)/float64(fs)/framePeriod) + 1
}

// FFTSizeFor returns the CheapTrick FFT size for fs: the smallest power of
// two covering three periods of the lowest tracked F0.
func FFTSizeFor(fs int) int {
	return int(math.Pow(2, 1+math.Floor(math.Log2(3.0*float64(fs)/DefaultF0Floor))))
}

// SynthesisLength returns the output length for the given frame layout.
// Layouts too long to count in an int saturate at math.MaxInt.
func SynthesisLength(frames int, framePeriod float64, fs int) int {
	n := synthesisSpan(frames, framePeriod, fs)
	if n >= math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

// synthesisSpan is SynthesisLength in float64, so limits can be checked
// before the conversion to int.
func synthesisSpan(frames int, framePeriod float64, fs int) float64 {
	if frames <= 0 {
		return 0
	}
	return math.Trunc(float64(frames-1)*framePeriod/1000.0*float64(fs)) + 1
}
