package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voiceforge/internal/audio"
	"github.com/tphakala/voiceforge/internal/errors"
	"github.com/tphakala/voiceforge/internal/pipeline"
	"github.com/tphakala/voiceforge/internal/vocoder"
)

const (
	testRate   = 8000
	baseF0     = 100.0
	waitLimit  = 5 * time.Second
	testFrames = 8
)

// fakeEngine returns fixed frames and records every synthesis request.
type fakeEngine struct {
	gate chan struct{} // Analyze blocks until closed when set

	mu          sync.Mutex
	analyzed    int
	synthesized []*vocoder.Frames
	synthErr    error
	panicOn     string
}

func (f *fakeEngine) Analyze(_ context.Context, buf *audio.Buffer, progress func(int)) (*vocoder.Frames, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	f.analyzed++
	f.mu.Unlock()
	progress(100)

	const fftSize = 16
	bins := fftSize/2 + 1
	fr := &vocoder.Frames{FFTSize: fftSize, FramePeriod: 5, SampleRate: buf.SampleRate()}
	for i := range testFrames {
		fr.F0 = append(fr.F0, baseF0)
		fr.TemporalPositions = append(fr.TemporalPositions, float64(i)*0.005)
		sp := make([]float64, bins)
		ap := make([]float64, bins)
		for j := range sp {
			sp[j] = 1
			ap[j] = 0.1
		}
		fr.Spectrogram = append(fr.Spectrogram, sp)
		fr.Aperiodicity = append(fr.Aperiodicity, ap)
	}
	return fr, nil
}

func (f *fakeEngine) Synthesize(_ context.Context, frames *vocoder.Frames) (*audio.Buffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == "synthesize" {
		panic("boom")
	}
	if f.synthErr != nil {
		return nil, f.synthErr
	}
	f.synthesized = append(f.synthesized, frames)
	n := vocoder.SynthesisLength(frames.Len(), frames.FramePeriod, frames.SampleRate)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.1
	}
	return audio.NewBuffer(audio.Format{SampleRate: frames.SampleRate, Channels: 1}, samples)
}

func (f *fakeEngine) synthCalls() []*vocoder.Frames {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*vocoder.Frames(nil), f.synthesized...)
}

type fakeDecoder struct {
	buf *audio.Buffer
	err error
}

func (d fakeDecoder) Decode(context.Context, string) (*audio.Buffer, error) {
	return d.buf, d.err
}

type countingObserver struct {
	mu        sync.Mutex
	handled   map[string]int
	coalesced int
}

func (o *countingObserver) CommandHandled(command, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.handled == nil {
		o.handled = map[string]int{}
	}
	o.handled[command+"/"+outcome]++
}

func (o *countingObserver) CommandsCoalesced(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.coalesced += n
}

func stereoInput(frames int) *audio.Buffer {
	s := make([]float32, frames*2)
	for i := range s {
		s[i] = 0.2
	}
	return audio.MustBuffer(audio.Format{SampleRate: testRate, Channels: 2}, s)
}

func startWorker(t *testing.T, engine Engine, decoder Decoder, opts ...Option) *Worker {
	t.Helper()
	w := New(engine, decoder, opts...)
	require.NoError(t, w.Start(t.Context()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitLimit)
		defer cancel()
		_ = w.Shutdown(ctx)
	})
	return w
}

// next returns the next result of type T, skipping anything else
func next[T Result](t *testing.T, w *Worker) T {
	t.Helper()
	timeout := time.After(waitLimit)
	for {
		select {
		case r, ok := <-w.Results():
			require.True(t, ok, "result channel closed")
			if v, match := r.(T); match {
				return v
			}
		case <-timeout:
			var zero T
			t.Fatalf("timed out waiting for %T", zero)
			return zero
		}
	}
}

// nextStatus returns the next Status with the given text prefix
func nextStatus(t *testing.T, w *Worker, prefix string) Status {
	t.Helper()
	for {
		s := next[Status](t, w)
		if len(s.Text) >= len(prefix) && s.Text[:len(prefix)] == prefix {
			return s
		}
	}
}

func analyzed(t *testing.T, w *Worker, gen uint64) AnalysisComplete {
	t.Helper()
	require.NoError(t, w.Submit(Analyze{Stamp: Stamp{gen}, Buffer: stereoInput(400)}))
	return next[AnalysisComplete](t, w)
}

func TestWorker_AnalyzeProducesMonoOriginal(t *testing.T) {
	w := startWorker(t, &fakeEngine{}, nil)

	res := analyzed(t, w, 3)
	assert.Equal(t, uint64(3), res.Generation())
	require.NotNil(t, res.Frames)
	assert.Equal(t, testFrames, res.Frames.Len())
	assert.Equal(t, 1, res.Mono.Channels())
	assert.Equal(t, 400, res.Mono.Len())
}

func TestWorker_NeutralResynthesizeUsesMonoOriginal(t *testing.T) {
	eng := &fakeEngine{}
	w := startWorker(t, eng, nil)
	an := analyzed(t, w, 1)

	require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{1}, Voice: pipeline.DefaultVoiceParams(), Effects: pipeline.DefaultEffectParams()}))
	res := next[SynthesisComplete](t, w)

	assert.Same(t, an.Mono, res.Buffer)
	assert.Empty(t, eng.synthCalls(), "vocoder is skipped for neutral params")
}

func TestWorker_ResynthesizeRunsStages(t *testing.T) {
	eng := &fakeEngine{}
	w := startWorker(t, eng, nil)
	analyzed(t, w, 1)

	voice := pipeline.DefaultVoiceParams()
	voice.PitchShift = 12
	require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{1}, Voice: voice, Effects: pipeline.DefaultEffectParams()}))

	assert.Equal(t, StatusStageModify, nextStatus(t, w, "Modifying").Text)
	assert.Equal(t, StatusStageSynth, nextStatus(t, w, "Synthesizing").Text)
	assert.Equal(t, StatusStageFX, nextStatus(t, w, "Applying").Text)
	res := next[SynthesisComplete](t, w)

	calls := eng.synthCalls()
	require.Len(t, calls, 1)
	assert.InDelta(t, 2*baseF0, calls[0].F0[0], 1e-9)
	assert.Equal(t, vocoder.SynthesisLength(testFrames, 5, testRate), res.Buffer.Len())
}

func TestWorker_BypassSkipsVocoder(t *testing.T) {
	eng := &fakeEngine{}
	w := startWorker(t, eng, nil)
	an := analyzed(t, w, 1)

	voice := pipeline.DefaultVoiceParams()
	voice.PitchShift = 7
	voice.Bypass = true
	require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{1}, Voice: voice, Effects: pipeline.DefaultEffectParams()}))
	res := next[SynthesisComplete](t, w)

	assert.Same(t, an.Mono, res.Buffer)
	assert.Empty(t, eng.synthCalls())
}

func TestWorker_ResynthesizeWithoutAnalysis(t *testing.T) {
	eng := &fakeEngine{}
	w := startWorker(t, eng, nil)

	require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{1}, Voice: pipeline.VoiceParams{PitchShift: 2, PitchRange: 1, Speed: 1}}))
	s := nextStatus(t, w, StatusNoAnalysis)
	assert.NoError(t, s.Err)

	require.NoError(t, w.Submit(ReapplyEffects{Stamp: Stamp{1}}))
	nextStatus(t, w, StatusNoProcessed)
	assert.Empty(t, eng.synthCalls())
}

func TestWorker_CoalescesQueuedParameterChanges(t *testing.T) {
	gate := make(chan struct{})
	eng := &fakeEngine{gate: gate}
	obs := &countingObserver{}
	w := startWorker(t, eng, nil, WithObserver(obs))

	require.NoError(t, w.Submit(Analyze{Stamp: Stamp{1}, Buffer: stereoInput(400)}))
	for _, st := range []float64{1, 2, 3} {
		voice := pipeline.DefaultVoiceParams()
		voice.PitchShift = st
		require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{1}, Voice: voice, Effects: pipeline.DefaultEffectParams()}))
	}
	fx := pipeline.DefaultEffectParams()
	fx.ReverbMix = 0.5
	require.NoError(t, w.Submit(ReapplyEffects{Stamp: Stamp{1}, Effects: fx}))
	close(gate)

	next[AnalysisComplete](t, w)
	res := next[SynthesisComplete](t, w)

	calls := eng.synthCalls()
	require.Len(t, calls, 1, "queued changes render once")
	assert.InDelta(t, baseF0*pow2(3.0/12), calls[0].F0[0], 1e-9, "latest voice params win")
	assert.Equal(t, testFrames, calls[0].Len())
	assert.Equal(t, vocoder.SynthesisLength(testFrames, 5, testRate), res.Buffer.Len(), "reverb keeps the length")

	// No second synthesis result follows
	select {
	case r := <-w.Results():
		_, isSynth := r.(SynthesisComplete)
		assert.False(t, isSynth, "unexpected extra result %T", r)
	case <-time.After(50 * time.Millisecond):
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 3, obs.coalesced)
}

func TestWorker_AnalyzeDuringDrainDiscardsOldGeneration(t *testing.T) {
	gate := make(chan struct{})
	eng := &fakeEngine{gate: gate}
	w := startWorker(t, eng, nil)

	stale := pipeline.DefaultVoiceParams()
	stale.PitchShift = 5
	fresh := pipeline.DefaultVoiceParams()
	fresh.PitchShift = -12

	require.NoError(t, w.Submit(Analyze{Stamp: Stamp{1}, Buffer: stereoInput(400)}))
	require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{1}, Voice: stale, Effects: pipeline.DefaultEffectParams()}))
	require.NoError(t, w.Submit(Analyze{Stamp: Stamp{2}, Buffer: stereoInput(200)}))
	require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{2}, Voice: fresh, Effects: pipeline.DefaultEffectParams()}))
	close(gate)

	first := next[AnalysisComplete](t, w)
	second := next[AnalysisComplete](t, w)
	res := next[SynthesisComplete](t, w)

	assert.Equal(t, uint64(1), first.Generation())
	assert.Equal(t, uint64(2), second.Generation())
	assert.Equal(t, uint64(2), res.Generation())

	calls := eng.synthCalls()
	require.Len(t, calls, 1)
	assert.InDelta(t, baseF0/2, calls[0].F0[0], 1e-9)
}

func TestWorker_ShutdownInDrainStopsImmediately(t *testing.T) {
	gate := make(chan struct{})
	eng := &fakeEngine{gate: gate}
	w := startWorker(t, eng, nil)

	voice := pipeline.DefaultVoiceParams()
	voice.PitchShift = 1
	require.NoError(t, w.Submit(Analyze{Stamp: Stamp{1}, Buffer: stereoInput(400)}))
	require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{1}, Voice: voice}))
	require.NoError(t, w.Submit(Shutdown{}))
	close(gate)

	next[AnalysisComplete](t, w)
	for r := range w.Results() {
		_, isSynth := r.(SynthesisComplete)
		assert.False(t, isSynth)
	}
	assert.Empty(t, eng.synthCalls())
	assert.Equal(t, StateTerminated, w.State())
}

func TestWorker_ShutdownSkipsQueuedCommands(t *testing.T) {
	// select between quit and a ready queue is random, so repeat
	for range 20 {
		gate := make(chan struct{})
		eng := &fakeEngine{gate: gate}
		w := New(eng, nil)
		require.NoError(t, w.Start(t.Context()))

		require.NoError(t, w.Submit(Analyze{Stamp: Stamp{1}, Buffer: stereoInput(100)}))
		require.Eventually(t, func() bool { return w.State() == StateBusy }, waitLimit, time.Millisecond)
		require.NoError(t, w.Submit(Analyze{Stamp: Stamp{2}, Buffer: stereoInput(100)}))

		ctx, cancel := context.WithTimeout(t.Context(), 5*time.Millisecond)
		_ = w.Shutdown(ctx)
		cancel()
		close(gate)
		require.NoError(t, w.Shutdown(t.Context()))

		eng.mu.Lock()
		n := eng.analyzed
		eng.mu.Unlock()
		require.Equal(t, 1, n, "analysis queued before shutdown must not run")
	}
}

func TestWorker_DrainedAnalyzeIsObserved(t *testing.T) {
	gate := make(chan struct{})
	eng := &fakeEngine{gate: gate}
	obs := &countingObserver{}
	w := startWorker(t, eng, nil, WithObserver(obs))

	require.NoError(t, w.Submit(Analyze{Stamp: Stamp{1}, Buffer: stereoInput(400)}))
	require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{1}, Voice: pipeline.DefaultVoiceParams(), Effects: pipeline.DefaultEffectParams()}))
	require.NoError(t, w.Submit(Analyze{Stamp: Stamp{2}, Buffer: stereoInput(200)}))
	close(gate)

	next[AnalysisComplete](t, w)
	next[AnalysisComplete](t, w)
	require.Eventually(t, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return obs.handled["analyze/ok"] == 2 && obs.handled["resynthesize/ok"] == 1
	}, waitLimit, time.Millisecond)
}

func TestWorker_EngineErrorKeepsState(t *testing.T) {
	eng := &fakeEngine{synthErr: fmt.Errorf("%w: test", vocoder.ErrNativeFailure)}
	w := startWorker(t, eng, nil)
	an := analyzed(t, w, 1)

	voice := pipeline.DefaultVoiceParams()
	voice.Speed = 2
	require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{1}, Voice: voice}))
	s := nextStatus(t, w, "Synthesis error")
	require.Error(t, s.Err)
	assert.ErrorIs(t, s.Err, vocoder.ErrNativeFailure)

	// The analysis survives the failure
	require.NoError(t, w.Submit(ReapplyEffects{Stamp: Stamp{1}, Effects: pipeline.DefaultEffectParams()}))
	res := next[SynthesisComplete](t, w)
	assert.Same(t, an.Mono, res.Buffer)
}

func TestWorker_RecoversPanicAndResetsState(t *testing.T) {
	eng := &fakeEngine{panicOn: "synthesize"}
	obs := &countingObserver{}
	w := startWorker(t, eng, nil, WithObserver(obs))
	analyzed(t, w, 1)

	voice := pipeline.DefaultVoiceParams()
	voice.PitchShift = 3
	require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{4}, Voice: voice}))
	s := nextStatus(t, w, "Internal error")
	assert.Equal(t, "Internal error: boom", s.Text)
	assert.Equal(t, uint64(4), s.Generation())

	require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{4}, Voice: voice}))
	nextStatus(t, w, StatusNoAnalysis)
	assert.NotEqual(t, StateTerminated, w.State())

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 1, obs.handled["resynthesize/panic"])
}

func TestWorker_LoadDecodesThenAnalyzes(t *testing.T) {
	buf := stereoInput(300)
	w := startWorker(t, &fakeEngine{}, fakeDecoder{buf: buf})

	require.NoError(t, w.Submit(Load{Stamp: Stamp{7}, Path: "voice.wav"}))
	ready := next[AudioReady](t, w)
	assert.Same(t, buf, ready.Buffer)
	assert.Equal(t, "voice.wav", ready.Path)
	assert.Equal(t, uint64(7), ready.Generation())

	an := next[AnalysisComplete](t, w)
	assert.Equal(t, uint64(7), an.Generation())
}

func TestWorker_LoadError(t *testing.T) {
	w := startWorker(t, &fakeEngine{}, fakeDecoder{err: errors.NewStd("no such file")})

	require.NoError(t, w.Submit(Load{Stamp: Stamp{1}, Path: "missing.wav"}))
	s := nextStatus(t, w, "Load error")
	assert.Equal(t, "Load error: no such file", s.Text)
}

func TestWorker_LoadWithoutDecoder(t *testing.T) {
	w := startWorker(t, &fakeEngine{}, nil)
	require.NoError(t, w.Submit(Load{Stamp: Stamp{1}, Path: "x.wav"}))
	s := nextStatus(t, w, "Load error")
	assert.True(t, errors.IsCategory(s.Err, errors.CategoryConfiguration))
}

func TestWorker_SubmitQueueFull(t *testing.T) {
	w := New(&fakeEngine{}, nil, WithQueueSize(1))

	require.NoError(t, w.Submit(Analyze{Stamp: Stamp{1}}))
	err := w.Submit(Analyze{Stamp: Stamp{1}})
	require.ErrorIs(t, err, ErrQueueFull)

	require.NoError(t, w.Shutdown(t.Context()))
	assert.ErrorIs(t, w.Submit(Analyze{}), ErrClosed)
	assert.Equal(t, StateTerminated, w.State())
}

func TestWorker_ShutdownJoinsAndClosesResults(t *testing.T) {
	w := startWorker(t, &fakeEngine{}, nil)
	assert.ErrorIs(t, w.Start(t.Context()), ErrAlreadyStarted)

	require.NoError(t, w.Shutdown(t.Context()))
	require.NoError(t, w.Shutdown(t.Context()), "shutdown is idempotent")
	assert.Equal(t, StateTerminated, w.State())
	assert.ErrorIs(t, w.Submit(Analyze{}), ErrClosed)

	for range w.Results() {
	}
	_, ok := w.TryResult()
	assert.False(t, ok)
}

func TestWorker_ShutdownTimesOutOnBusyEngine(t *testing.T) {
	gate := make(chan struct{})
	w := startWorker(t, &fakeEngine{gate: gate}, nil)
	require.NoError(t, w.Submit(Analyze{Stamp: Stamp{1}, Buffer: stereoInput(10)}))

	require.Eventually(t, func() bool { return w.State() == StateBusy }, waitLimit, time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	err := w.Shutdown(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))

	close(gate)
	require.NoError(t, w.Shutdown(t.Context()))
}

func TestWorker_TryResult(t *testing.T) {
	w := startWorker(t, &fakeEngine{}, nil)
	_, ok := w.TryResult()
	assert.False(t, ok)

	require.NoError(t, w.Submit(Resynthesize{Stamp: Stamp{1}}))
	require.Eventually(t, func() bool {
		r, ok := w.TryResult()
		s, isStatus := r.(Status)
		return ok && isStatus && s.Text == StatusNoAnalysis
	}, waitLimit, time.Millisecond)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "busy", StateBusy.String())
	assert.Equal(t, "terminated", StateTerminated.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func pow2(x float64) float64 {
	return math.Pow(2, x)
}
