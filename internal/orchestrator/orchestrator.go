// Package orchestrator owns the interactive session state. It turns input
// actions into worker commands, applies worker results to the playback slot
// and keeps playback position consistent across buffer swaps.
//
// An Orchestrator is not safe for concurrent use; it belongs to the control
// loop goroutine, which calls Dispatch and Tick.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/tphakala/voiceforge/internal/audio"
	"github.com/tphakala/voiceforge/internal/errors"
	"github.com/tphakala/voiceforge/internal/logging"
	"github.com/tphakala/voiceforge/internal/pipeline"
	"github.com/tphakala/voiceforge/internal/playback"
	"github.com/tphakala/voiceforge/internal/vocoder"
	"github.com/tphakala/voiceforge/internal/worker"
)

// DefaultDebounce is the quiet period after the last slider change before a
// render is requested.
const DefaultDebounce = 150 * time.Millisecond

// maxResultsPerTick bounds how many worker results one Tick applies
const maxResultsPerTick = 64

// Status texts
const (
	StatusReady      = "Ready"
	StatusAnalyzing  = "Analyzing..."
	StatusProcessing = "Processing..."
)

// Processor is the background worker
type Processor interface {
	Submit(cmd worker.Command) error
	TryResult() (worker.Result, bool)
	Shutdown(ctx context.Context) error
}

// Output is the playback side shared with the audio callback. If it also
// implements io.Closer, Close releases it.
type Output interface {
	Slot() *playback.Slot
	Position() *playback.Position
	Tap() *playback.Tap
	SetPlaying(on bool)
	SetLooping(on bool)
	SetGain(db float64)
}

// Observer receives orchestrator measurements
type Observer interface {
	StaleResultDiscarded()
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithDebounce sets the slider debounce period
func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithAutoplay starts playback whenever a processed buffer arrives
func WithAutoplay(on bool) Option {
	return func(o *Orchestrator) { o.autoplay = on }
}

// WithLooping sets the initial loop mode
func WithLooping(on bool) Option {
	return func(o *Orchestrator) { o.looping = on }
}

// WithClock replaces time.Now for slider timestamps
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver installs a metrics observer
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// abMemo remembers the last A/B switch so that switching straight back
// restores the exact frame instead of a rounded proportional position.
type abMemo struct {
	from    *audio.Buffer
	fromPos int64
	to      *audio.Buffer
	toPos   int64
}

// Orchestrator coordinates the worker and the audio output
type Orchestrator struct {
	proc     Processor
	out      Output
	logger   *slog.Logger
	observer Observer
	now      func() time.Time

	debounce time.Duration
	autoplay bool

	values     pipeline.Values
	generation uint64

	source    string
	original  *audio.Buffer
	processed *audio.Buffer
	frames    *vocoder.Frames

	showOriginal bool
	playing      bool
	looping      bool
	quit         bool
	status       string
	memo         *abMemo

	voiceDirty bool
	fxDirty    bool
	lastChange time.Time

	staleResults uint64
}

// New creates an orchestrator driving proc and out
func New(proc Processor, out Output, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		proc:         proc,
		out:          out,
		now:          time.Now,
		debounce:     DefaultDebounce,
		values:       pipeline.DefaultValues(),
		showOriginal: true,
		status:       StatusReady,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logging.ForService("orchestrator")
		if o.logger == nil {
			o.logger = slog.Default()
		}
	}
	out.SetLooping(o.looping)
	out.SetPlaying(false)
	out.SetGain(o.values.Effects.Gain)
	return o
}

// Dispatch applies one input action. The returned error is also reflected in
// the status line.
func (o *Orchestrator) Dispatch(a Action) error {
	switch act := a.(type) {
	case PlayPause:
		return o.playPause()
	case Seek:
		o.seek(act.DeltaSeconds)
	case Rewind:
		o.out.Position().Store(0)
		o.memo = nil
	case SetSlider:
		return o.setSlider(act.ID, act.Value)
	case AdjustSlider:
		def, found := pipeline.LookupSlider(act.ID)
		if !found {
			return o.setSlider(act.ID, 0)
		}
		current, _ := o.values.Get(def.ID)
		return o.setSlider(def.ID, def.Adjust(current, act.Steps))
	case ResetSliders:
		o.resetSliders()
	case ToggleBypass:
		o.values.Voice.Bypass = !o.values.Voice.Bypass
		o.markDirty(pipeline.GroupVoice)
	case ToggleAB:
		return o.toggleAB()
	case ToggleLoop:
		o.looping = !o.looping
		o.out.SetLooping(o.looping)
	case LoadFile:
		return o.loadFile(act.Path)
	case SetAudio:
		return o.setAudio(act.Buffer, act.Name)
	case Export:
		// Writing is done by the caller through ExportSnapshot.
	case Shutdown:
		o.quit = true
	default:
		return errors.Newf("unsupported action %T", a).
			Component(ComponentOrchestrator).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Tick applies pending worker results, flushes debounced slider changes and
// stops playback that ran off the end.
func (o *Orchestrator) Tick(now time.Time) {
	for range maxResultsPerTick {
		r, ok := o.proc.TryResult()
		if !ok {
			break
		}
		o.handleResult(r)
	}

	if (o.voiceDirty || o.fxDirty) && now.Sub(o.lastChange) >= o.debounce {
		o.flush()
	}

	if o.playing && !o.looping {
		buf := o.out.Slot().Load()
		if buf == nil || o.out.Position().Load() >= int64(buf.Len()) {
			o.setPlaying(false)
		}
	}
}

// Quitting reports whether a Shutdown action was dispatched
func (o *Orchestrator) Quitting() bool {
	return o.quit
}

// SetStatus replaces the status line text
func (o *Orchestrator) SetStatus(text string) {
	o.status = text
}

// TapWindow copies the most recent output samples into dst
func (o *Orchestrator) TapWindow(dst []float32) int {
	return o.out.Tap().Snapshot(dst)
}

// ExportSnapshot returns the processed buffer, or the original when nothing
// has been processed yet.
func (o *Orchestrator) ExportSnapshot() (*audio.Buffer, bool) {
	if o.processed != nil {
		return o.processed, true
	}
	if o.original != nil {
		return o.original, true
	}
	return nil, false
}

// Close shuts the worker down and waits for it, then stops the output.
func (o *Orchestrator) Close(ctx context.Context) error {
	var errs []error
	if err := o.proc.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	o.setPlaying(false)
	if c, ok := o.out.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) playPause() error {
	if o.playing {
		o.setPlaying(false)
		return nil
	}
	buf := o.out.Slot().Load()
	if buf == nil || buf.Len() == 0 {
		o.status = "No audio loaded"
		return ErrNoAudio
	}
	if o.out.Position().Load() >= int64(buf.Len()) {
		o.out.Position().Store(0)
	}
	o.setPlaying(true)
	return nil
}

func (o *Orchestrator) setPlaying(on bool) {
	o.playing = on
	o.out.SetPlaying(on)
}

func (o *Orchestrator) seek(seconds float64) {
	buf := o.out.Slot().Load()
	if buf == nil || buf.Len() == 0 {
		return
	}
	delta := int64(math.Round(seconds * float64(buf.SampleRate())))
	o.out.Position().SeekBy(delta, int64(buf.Len()))
	o.memo = nil
}

func (o *Orchestrator) setSlider(id pipeline.SliderID, value float64) error {
	stored, def, err := o.values.Set(id, value)
	if err != nil {
		o.status = fmt.Sprintf("Unknown slider: %s", id)
		return err
	}
	if def.Group == pipeline.GroupLive {
		o.out.SetGain(stored)
		return nil
	}
	o.markDirty(def.Group)
	return nil
}

func (o *Orchestrator) markDirty(g pipeline.Group) {
	switch g {
	case pipeline.GroupVoice:
		o.voiceDirty = true
	case pipeline.GroupEffects:
		o.fxDirty = true
	default:
		return
	}
	o.lastChange = o.now()
}

func (o *Orchestrator) resetSliders() {
	bypass := o.values.Voice.Bypass
	o.values = pipeline.DefaultValues()
	o.values.Voice.Bypass = bypass
	o.out.SetGain(o.values.Effects.Gain)
	o.markDirty(pipeline.GroupVoice)
}

// flush submits one render for the accumulated slider changes. Voice changes
// need a resynthesis, which also runs the effects.
func (o *Orchestrator) flush() {
	if o.frames == nil {
		o.voiceDirty, o.fxDirty = false, false
		return
	}

	var cmd worker.Command
	stamp := worker.Stamp{Gen: o.generation}
	if o.voiceDirty {
		cmd = worker.Resynthesize{Stamp: stamp, Voice: o.values.Voice, Effects: o.values.Effects}
	} else {
		cmd = worker.ReapplyEffects{Stamp: stamp, Effects: o.values.Effects}
	}
	if err := o.proc.Submit(cmd); err != nil {
		// Retried on the next tick
		o.logger.Debug("render request deferred", slog.Any("error", err))
		return
	}
	o.voiceDirty, o.fxDirty = false, false
	o.status = StatusProcessing
}

func (o *Orchestrator) toggleAB() error {
	if o.original == nil || o.processed == nil {
		o.status = "Nothing to compare yet"
		return ErrNothingToCompare
	}
	current, target := o.processed, o.original
	if o.showOriginal {
		current, target = o.original, o.processed
	}

	pos := o.out.Position().Load()
	next := remap(pos, current.Len(), target.Len())
	if m := o.memo; m != nil && m.to == current && m.toPos == pos && m.from == target {
		next = m.fromPos
	}
	o.memo = &abMemo{from: current, fromPos: pos, to: target, toPos: next}

	o.out.Slot().Swap(target)
	o.out.Position().Store(next)
	o.showOriginal = !o.showOriginal
	return nil
}

func (o *Orchestrator) loadFile(path string) error {
	o.generation++
	o.resetSession()
	o.source = path
	if err := o.proc.Submit(worker.Load{Stamp: worker.Stamp{Gen: o.generation}, Path: path}); err != nil {
		o.status = "Load error: " + err.Error()
		return err
	}
	o.status = worker.StatusDecoding
	return nil
}

func (o *Orchestrator) setAudio(buf *audio.Buffer, name string) error {
	if buf == nil || buf.Len() == 0 {
		o.status = "No audio loaded"
		return ErrNoAudio
	}
	o.generation++
	o.resetSession()
	o.source = name
	o.original = buf
	o.swapIn(buf, false)
	if err := o.proc.Submit(worker.Analyze{Stamp: worker.Stamp{Gen: o.generation}, Buffer: buf}); err != nil {
		o.status = "Analysis error: " + err.Error()
		return err
	}
	o.status = StatusAnalyzing
	return nil
}

// resetSession forgets everything derived from the previous input
func (o *Orchestrator) resetSession() {
	o.frames = nil
	o.processed = nil
	o.showOriginal = true
	o.memo = nil
	o.voiceDirty, o.fxDirty = false, false
}

func (o *Orchestrator) handleResult(r worker.Result) {
	if r.Generation() < o.generation {
		o.staleResults++
		if o.observer != nil {
			o.observer.StaleResultDiscarded()
		}
		o.logger.Debug("discarded stale result",
			slog.String("result", fmt.Sprintf("%T", r)),
			slog.Uint64("generation", r.Generation()),
			slog.Uint64("current", o.generation))
		return
	}

	switch res := r.(type) {
	case worker.AudioReady:
		o.original = res.Buffer
		o.processed = nil
		o.showOriginal = true
		o.swapIn(res.Buffer, false)
		o.status = StatusAnalyzing
	case worker.AnalysisComplete:
		o.frames = res.Frames
		o.original = res.Mono
		o.processed = nil
		o.showOriginal = true
		o.swapIn(res.Mono, true)
		o.status = StatusReady
		if !o.values.Voice.IsNeutral() || !o.values.Effects.IsNeutral() || o.values.Voice.Bypass {
			o.voiceDirty = true
			o.flush()
		}
	case worker.SynthesisComplete:
		o.processed = res.Buffer
		o.showOriginal = false
		o.swapIn(res.Buffer, true)
		o.status = ""
		if o.autoplay && !o.playing {
			if buf := res.Buffer; buf.Len() > 0 && o.out.Position().Load() >= int64(buf.Len()) {
				o.out.Position().Store(0)
			}
			o.setPlaying(true)
		}
	case worker.Status:
		o.status = res.Text
		if res.Err != nil {
			o.logger.Warn("worker reported error", slog.String("status", res.Text))
		}
	}
}

// swapIn publishes buf to the audio callback. With remap the position keeps
// its proportion of the old buffer, otherwise it resets to the start.
func (o *Orchestrator) swapIn(buf *audio.Buffer, keepProportion bool) {
	pos := o.out.Position()
	var next int64
	if keepProportion {
		if old := o.out.Slot().Load(); old != nil {
			next = remap(pos.Load(), old.Len(), buf.Len())
		}
	}
	o.out.Slot().Swap(buf)
	pos.Store(next)
	o.memo = nil
}

// remap moves pos from a buffer of oldLen frames to the same proportion of
// a buffer of newLen frames.
func remap(pos int64, oldLen, newLen int) int64 {
	if oldLen <= 0 || newLen <= 0 {
		return 0
	}
	next := int64(math.Round(float64(pos) / float64(oldLen) * float64(newLen)))
	return max(0, min(next, int64(newLen)))
}
