// Package worker runs analysis, synthesis and effects off the control loop.
// Commands are handled in order on a single goroutine; queued parameter
// changes are coalesced so only the latest settings are rendered.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/voiceforge/internal/audio"
	"github.com/tphakala/voiceforge/internal/errors"
	"github.com/tphakala/voiceforge/internal/logging"
	"github.com/tphakala/voiceforge/internal/pipeline"
	"github.com/tphakala/voiceforge/internal/vocoder"
)

// Defaults
const (
	DefaultQueueSize        = 16
	DefaultProgressInterval = 100 * time.Millisecond
)

// Status texts shared with the orchestrator and tests
const (
	StatusNoAnalysis  = "No analysis available"
	StatusNoProcessed = "No processed audio available"
	StatusDecoding    = "Decoding..."
	StatusStageModify = "Modifying parameters... (1/3)"
	StatusStageSynth  = "Synthesizing voice... (2/3)"
	StatusStageFX     = "Applying effects... (3/3)"
)

// Engine is the vocoder used by the worker
type Engine interface {
	Analyze(ctx context.Context, buf *audio.Buffer, progress func(pct int)) (*vocoder.Frames, error)
	Synthesize(ctx context.Context, frames *vocoder.Frames) (*audio.Buffer, error)
}

// Decoder loads audio files for Load commands
type Decoder interface {
	Decode(ctx context.Context, path string) (*audio.Buffer, error)
}

// Observer receives per-command measurements. Implementations must be safe
// for use from the worker goroutine.
type Observer interface {
	CommandHandled(command, outcome string, d time.Duration)
	CommandsCoalesced(n int)
}

// Command outcomes reported to the Observer
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

// State is the worker lifecycle state
type State int32

const (
	StateIdle State = iota
	StateBusy
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Option configures a Worker
type Option func(*Worker)

// WithQueueSize sets the command and result channel capacity
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithProgressInterval sets the minimum spacing of progress statuses
func WithProgressInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.progressEvery = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithObserver installs a metrics observer
func WithObserver(o Observer) Option {
	return func(w *Worker) {
		w.observer = o
	}
}

// Worker owns the analysis state and processes commands on one goroutine.
type Worker struct {
	engine   Engine
	decoder  Decoder
	logger   *slog.Logger
	observer Observer

	queueSize     int
	progressEvery time.Duration
	progress      *rate.Limiter

	commands chan Command
	results  chan Result
	quit     chan struct{}
	done     chan struct{}

	state    atomic.Int32
	started  atomic.Bool
	closed   atomic.Bool
	quitOnce sync.Once

	// Owned by the worker goroutine
	frames      *vocoder.Frames
	mono        *audio.Buffer
	postVocoder *audio.Buffer
}

// New creates a worker. decoder may be nil when Load is never used.
func New(engine Engine, decoder Decoder, opts ...Option) *Worker {
	w := &Worker{
		engine:        engine,
		decoder:       decoder,
		queueSize:     DefaultQueueSize,
		progressEvery: DefaultProgressInterval,
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logging.ForService("worker")
		if w.logger == nil {
			w.logger = slog.Default()
		}
	}
	w.commands = make(chan Command, w.queueSize)
	w.results = make(chan Result, w.queueSize)
	w.progress = rate.NewLimiter(rate.Every(w.progressEvery), 1)
	return w
}

// Start launches the worker goroutine.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go w.run(ctx)
	return nil
}

// Submit enqueues cmd without blocking.
func (w *Worker) Submit(cmd Command) error {
	if w.closed.Load() {
		return ErrClosed
	}
	select {
	case w.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Results returns the result channel. It is closed when the worker exits.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// TryResult returns the next result if one is ready.
func (w *Worker) TryResult() (Result, bool) {
	select {
	case r, ok := <-w.results:
		return r, ok
	default:
		return nil, false
	}
}

// State returns the current lifecycle state
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Shutdown stops the worker after the command in progress and waits for the
// goroutine to exit or ctx to expire.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.quitOnce.Do(func() {
		w.closed.Store(true)
		select {
		case w.commands <- Shutdown{}:
		default:
		}
		close(w.quit)
	})
	if !w.started.Load() {
		w.state.Store(int32(StateTerminated))
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component(ComponentWorker).
			Category(errors.CategoryTimeout).
			Context("operation", "shutdown").
			Build()
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.results)
	defer w.state.Store(int32(StateTerminated))

	w.logger.Info("processing worker started", slog.Int("queue_size", w.queueSize))
	defer w.logger.Info("processing worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.quit:
			return
		case cmd := <-w.commands:
			// select picks at random when quit and commands are both ready
			if w.quitting() || w.handle(ctx, cmd) {
				return
			}
		}
	}
}

// quitting reports whether Shutdown has been called
func (w *Worker) quitting() bool {
	select {
	case <-w.quit:
		return true
	default:
		return false
	}
}

// observe reports one handled command to the observer
func (w *Worker) observe(cmd Command, err error, start time.Time) {
	if w.observer == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	w.observer.CommandHandled(cmd.command(), outcome, time.Since(start))
}

// handle runs one command with panic recovery and reports whether the worker
// should exit.
func (w *Worker) handle(ctx context.Context, cmd Command) (exit bool) {
	if _, ok := cmd.(Shutdown); ok {
		return true
	}

	w.state.Store(int32(StateBusy))
	start := time.Now()
	outcome := OutcomeOK

	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomePanic
			text := fmt.Sprintf("Internal error: %v", r)
			w.logger.Error("recovered panic in processing worker",
				slog.String("command", cmd.command()),
				slog.Any("panic", r))
			w.resetState()
			w.deliver(ctx, Status{Stamp: Stamp{cmd.Generation()}, Text: text})
			exit = false
		}
		if w.observer != nil {
			w.observer.CommandHandled(cmd.command(), outcome, time.Since(start))
		}
		if !exit {
			w.state.Store(int32(StateIdle))
		}
	}()

	var err error
	switch c := cmd.(type) {
	case Load:
		err = w.load(ctx, c)
	case Analyze:
		err = w.analyze(ctx, c.Gen, c.Buffer)
	case Resynthesize, ReapplyEffects:
		exit, err = w.synthesize(ctx, cmd)
	default:
		err = errors.Newf("unknown command %T", cmd).
			Component(ComponentWorker).
			Category(errors.CategoryValidation).
			Build()
	}
	if err != nil {
		outcome = OutcomeError
	}
	return exit
}

// pendingSynth accumulates coalesced Resynthesize and ReapplyEffects commands
type pendingSynth struct {
	gen     uint64
	count   int
	vocoder bool
	voice   pipeline.VoiceParams
	effects pipeline.EffectParams
}

func (p *pendingSynth) add(cmd Command) {
	switch c := cmd.(type) {
	case Resynthesize:
		p.vocoder = true
		p.voice = c.Voice
		p.effects = c.Effects
	case ReapplyEffects:
		p.effects = c.Effects
	}
	p.gen = cmd.Generation()
	p.count++
}

// synthesize drains the queue behind first and renders only the latest
// settings. An Analyze or Load found while draining runs immediately and
// discards what was accumulated before it.
func (w *Worker) synthesize(ctx context.Context, first Command) (bool, error) {
	var p pendingSynth
	p.add(first)
	discarded := 0

drain:
	for {
		select {
		case <-w.quit:
			return true, nil
		case next := <-w.commands:
			if w.quitting() {
				return true, nil
			}
			switch c := next.(type) {
			case Shutdown:
				return true, nil
			case Load:
				discarded += p.count
				p = pendingSynth{}
				start := time.Now()
				w.observe(c, w.load(ctx, c), start)
			case Analyze:
				discarded += p.count
				p = pendingSynth{}
				start := time.Now()
				w.observe(c, w.analyze(ctx, c.Gen, c.Buffer), start)
			default:
				p.add(next)
			}
		default:
			break drain
		}
	}

	if n := discarded + max(0, p.count-1); n > 0 {
		w.logger.Debug("coalesced queued commands", slog.Int("count", n))
		if w.observer != nil {
			w.observer.CommandsCoalesced(n)
		}
	}
	if p.count == 0 {
		return false, nil
	}
	if w.quitting() {
		return true, nil
	}
	if p.vocoder {
		return false, w.resynthesize(ctx, p.gen, p.voice, p.effects)
	}
	return false, w.reapply(ctx, p.gen, p.effects)
}

func (w *Worker) load(ctx context.Context, c Load) error {
	if w.decoder == nil {
		err := errors.Newf("no decoder configured").
			Component(ComponentWorker).
			Category(errors.CategoryConfiguration).
			Build()
		w.fail(ctx, c.Gen, "Load error", err)
		return err
	}
	w.stage(c.Gen, StatusDecoding)

	buf, err := w.decoder.Decode(ctx, c.Path)
	if err != nil {
		w.fail(ctx, c.Gen, "Load error", err)
		return err
	}
	w.logger.Info("decoded file",
		slog.String("path", c.Path),
		slog.Int("sample_rate", buf.SampleRate()),
		slog.Int("channels", buf.Channels()),
		slog.Duration("duration", buf.Duration()))

	if !w.deliver(ctx, AudioReady{Stamp: c.Stamp, Buffer: buf, Path: c.Path}) {
		return nil
	}
	return w.analyze(ctx, c.Gen, buf)
}

func (w *Worker) analyze(ctx context.Context, gen uint64, buf *audio.Buffer) error {
	if buf == nil || buf.Len() == 0 {
		err := errors.Newf("no audio to analyze").
			Component(ComponentWorker).
			Category(errors.CategoryValidation).
			Build()
		w.fail(ctx, gen, "Analysis error", err)
		return err
	}

	start := time.Now()
	frames, err := w.engine.Analyze(ctx, buf, func(pct int) {
		w.progressStatus(gen, fmt.Sprintf("Analyzing... %d%%", pct))
	})
	if err != nil {
		w.fail(ctx, gen, "Analysis error", err)
		return err
	}

	mono := buf.Mono()
	w.frames = frames
	w.mono = mono
	w.postVocoder = mono

	w.logger.Info("analysis complete",
		slog.Int("frames", frames.Len()),
		slog.Int("fft_size", frames.FFTSize),
		slog.Duration("elapsed", time.Since(start)))
	w.deliver(ctx, AnalysisComplete{Stamp: Stamp{gen}, Frames: frames, Mono: mono})
	return nil
}

func (w *Worker) resynthesize(ctx context.Context, gen uint64, voice pipeline.VoiceParams, fx pipeline.EffectParams) error {
	if w.frames == nil || w.mono == nil {
		w.deliver(ctx, Status{Stamp: Stamp{gen}, Text: StatusNoAnalysis})
		return nil
	}

	voiced := w.mono
	if !voice.Bypass && !voice.IsNeutral() {
		w.stage(gen, StatusStageModify)
		modified := pipeline.Apply(w.frames, voice)

		w.stage(gen, StatusStageSynth)
		out, err := w.engine.Synthesize(ctx, modified)
		if err != nil {
			w.fail(ctx, gen, "Synthesis error", err)
			return err
		}
		voiced = out
	}

	w.stage(gen, StatusStageFX)
	w.postVocoder = voiced
	return w.finish(ctx, gen, voiced, fx)
}

func (w *Worker) reapply(ctx context.Context, gen uint64, fx pipeline.EffectParams) error {
	if w.postVocoder == nil {
		w.deliver(ctx, Status{Stamp: Stamp{gen}, Text: StatusNoProcessed})
		return nil
	}
	return w.finish(ctx, gen, w.postVocoder, fx)
}

// finish runs the effects chain and posts the processed buffer
func (w *Worker) finish(ctx context.Context, gen uint64, voiced *audio.Buffer, fx pipeline.EffectParams) error {
	out := voiced
	if !fx.IsNeutral() {
		samples := pipeline.ApplyEffects(voiced.Samples(), voiced.SampleRate(), fx)
		buf, err := audio.NewBuffer(voiced.Format(), samples)
		if err != nil {
			w.fail(ctx, gen, "Effects error", err)
			return err
		}
		out = buf
	}
	w.deliver(ctx, SynthesisComplete{Stamp: Stamp{gen}, Buffer: out})
	return nil
}

func (w *Worker) resetState() {
	w.frames = nil
	w.mono = nil
	w.postVocoder = nil
}

// deliver sends a terminal result, waiting for room unless the worker is
// shutting down. It reports whether the result was delivered.
func (w *Worker) deliver(ctx context.Context, r Result) bool {
	select {
	case w.results <- r:
		return true
	case <-w.quit:
		return false
	case <-ctx.Done():
		return false
	}
}

// stage posts a stage status, dropping it if the result channel is full
func (w *Worker) stage(gen uint64, text string) {
	select {
	case w.results <- Status{Stamp: Stamp{gen}, Text: text}:
	default:
	}
}

// progressStatus posts a rate limited, lossy progress status
func (w *Worker) progressStatus(gen uint64, text string) {
	if !w.progress.Allow() {
		return
	}
	w.stage(gen, text)
}

func (w *Worker) fail(ctx context.Context, gen uint64, prefix string, err error) {
	w.logger.Error(prefix, slog.Uint64("generation", gen), slog.Any("error", err))
	w.deliver(ctx, Status{Stamp: Stamp{gen}, Text: prefix + ": " + err.Error(), Err: err})
}
