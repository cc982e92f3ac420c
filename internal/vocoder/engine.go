// Package vocoder is the safety boundary around the analysis/resynthesis
// backend. Every call into a backend goes through Engine, which validates
// input before the call and output after it, and turns backend failures into
// typed errors.
package vocoder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tphakala/voiceforge/internal/audio"
	"github.com/tphakala/voiceforge/internal/logging"
)

// nativeMu serializes every backend call in the process. The WORLD library
// keeps no documented thread-safety guarantees.
var nativeMu sync.Mutex

// Engine validates and forwards analysis and synthesis requests to a Backend.
type Engine struct {
	backend     Backend
	framePeriod float64
	f0Floor     float64
	f0Ceil      float64
	maxSamples  int
	logger      *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithBackend sets the backend. Defaults to the reference backend.
func WithBackend(b Backend) Option {
	return func(e *Engine) {
		if b != nil {
			e.backend = b
		}
	}
}

// WithFramePeriod sets the analysis hop in milliseconds
func WithFramePeriod(ms float64) Option {
	return func(e *Engine) {
		if ms > 0 {
			e.framePeriod = ms
		}
	}
}

// WithMaxSynthesisSamples overrides the synthesis output limit
func WithMaxSynthesisSamples(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSamples = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an Engine
func NewEngine(opts ...Option) *Engine {
	logger := logging.ForService("vocoder")
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		framePeriod: DefaultFramePeriod,
		f0Floor:     DefaultF0Floor,
		f0Ceil:      DefaultF0Ceil,
		maxSamples:  MaxSynthesisSamples,
		logger:      logger.With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.backend == nil {
		e.backend = NewReferenceBackend()
	}
	e.logger = e.logger.With("backend", e.backend.Name())
	return e
}

// Backend returns the configured backend name
func (e *Engine) Backend() string {
	return e.backend.Name()
}

// Analyze decomposes buf into Frames. Stereo input is down-mixed first.
// progress may be nil.
func (e *Engine) Analyze(ctx context.Context, buf *audio.Buffer, progress func(pct int)) (*Frames, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, invalidInput("empty buffer")
	}
	fs := buf.SampleRate()
	if fs <= 0 {
		return nil, invalidInput("sample rate %d", fs)
	}
	x := buf.Float64()
	if i, ok := allFinite(x); !ok {
		return nil, invalidInput("non-finite sample at index %d", i)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(int) {}
	}

	opts := AnalyzeOptions{
		FramePeriod: e.framePeriod,
		F0Floor:     e.f0Floor,
		F0Ceil:      e.f0Ceil,
		Progress:    progress,
	}

	start := time.Now()
	frames, err := e.callAnalyze(x, fs, opts)
	if err != nil {
		return nil, err
	}
	if frames == nil {
		return nil, nativeFailure("analyze", fmt.Errorf("backend returned no frames"))
	}
	if err := frames.checkShape(); err != nil {
		return nil, nativeFailure("analyze", err)
	}
	if err := frames.checkValues(); err != nil {
		return nil, nativeFailure("analyze", err)
	}

	e.logger.Debug("analysis complete",
		"samples", len(x),
		"sample_rate", fs,
		"frames", frames.Len(),
		"fft_size", frames.FFTSize,
		"duration_ms", time.Since(start).Milliseconds())

	return frames, nil
}

// Synthesize regenerates a mono buffer from frames.
func (e *Engine) Synthesize(ctx context.Context, frames *Frames) (*audio.Buffer, error) {
	if frames == nil {
		return nil, invalidInput("nil frames")
	}
	if err := frames.checkShape(); err != nil {
		return nil, invalidInput("%v", err)
	}
	if err := frames.checkValues(); err != nil {
		return nil, invalidInput("%v", err)
	}

	span := synthesisSpan(frames.Len(), frames.FramePeriod, frames.SampleRate)
	if span > float64(e.maxSamples) {
		return nil, errorOutputTooLarge(span, e.maxSamples)
	}
	if !(span > 0) {
		return nil, invalidInput("output length %v", span)
	}
	outLen := int(span)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	y, err := e.callSynthesize(frames, outLen)
	if err != nil {
		return nil, err
	}
	if len(y) != outLen {
		return nil, nativeFailure("synthesize", fmt.Errorf("backend returned %d samples, want %d", len(y), outLen))
	}
	if i, ok := allFinite(y); !ok {
		return nil, nativeFailure("synthesize", fmt.Errorf("non-finite output at index %d", i))
	}

	buf, err := audio.FromFloat64(frames.SampleRate, y)
	if err != nil {
		return nil, nativeFailure("synthesize", err)
	}

	e.logger.Debug("synthesis complete",
		"frames", frames.Len(),
		"samples", outLen,
		"duration_ms", time.Since(start).Milliseconds())

	return buf, nil
}

func (e *Engine) callAnalyze(x []float64, fs int, opts AnalyzeOptions) (frames *Frames, err error) {
	nativeMu.Lock()
	defer nativeMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			frames = nil
			err = nativeFailure("analyze", fmt.Errorf("panic: %v", r))
		}
	}()

	frames, err = e.backend.Analyze(x, fs, opts)
	if err != nil {
		return nil, nativeFailure("analyze", err)
	}
	return frames, nil
}

func (e *Engine) callSynthesize(frames *Frames, outLen int) (y []float64, err error) {
	nativeMu.Lock()
	defer nativeMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			y = nil
			err = nativeFailure("synthesize", fmt.Errorf("panic: %v", r))
		}
	}()

	y, err = e.backend.Synthesize(frames, outLen)
	if err != nil {
		return nil, nativeFailure("synthesize", err)
	}
	return y, nil
}
