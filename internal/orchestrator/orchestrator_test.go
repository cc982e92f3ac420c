package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voiceforge/internal/audio"
	"github.com/tphakala/voiceforge/internal/errors"
	"github.com/tphakala/voiceforge/internal/pipeline"
	"github.com/tphakala/voiceforge/internal/playback"
	"github.com/tphakala/voiceforge/internal/vocoder"
	"github.com/tphakala/voiceforge/internal/worker"
)

type fakeProcessor struct {
	submitted []worker.Command
	results   []worker.Result
	submitErr error
	shutdowns int
}

func (f *fakeProcessor) Submit(cmd worker.Command) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, cmd)
	return nil
}

func (f *fakeProcessor) TryResult() (worker.Result, bool) {
	if len(f.results) == 0 {
		return nil, false
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, true
}

func (f *fakeProcessor) Shutdown(context.Context) error {
	f.shutdowns++
	return nil
}

func (f *fakeProcessor) push(r worker.Result) { f.results = append(f.results, r) }

func (f *fakeProcessor) take() []worker.Command {
	out := f.submitted
	f.submitted = nil
	return out
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) time.Time {
	c.t = c.t.Add(d)
	return c.t
}

type harness struct {
	o      *Orchestrator
	proc   *fakeProcessor
	player *playback.Player
	clock  *fakeClock
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		proc:   &fakeProcessor{},
		player: playback.NewPlayer(1, 256),
		clock:  &fakeClock{t: time.Unix(1_700_000_000, 0)},
	}
	opts = append([]Option{WithClock(h.clock.now)}, opts...)
	h.o = New(h.proc, h.player, opts...)
	return h
}

func (h *harness) tick() { h.o.Tick(h.clock.t) }

// mono returns a mono buffer at 1 kHz with n frames
func mono(n int) *audio.Buffer {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(i%100) / 100
	}
	return audio.MustBuffer(audio.Format{SampleRate: 1000, Channels: 1}, s)
}

// analyzed loads buf and completes its analysis
func (h *harness) analyzed(t *testing.T, buf *audio.Buffer) {
	t.Helper()
	require.NoError(t, h.o.Dispatch(SetAudio{Buffer: buf, Name: "test"}))
	cmds := h.proc.take()
	require.Len(t, cmds, 1)
	require.IsType(t, worker.Analyze{}, cmds[0])

	gen := h.o.Snapshot().Generation
	h.proc.push(worker.AnalysisComplete{
		Stamp:  worker.Stamp{Gen: gen},
		Frames: &vocoder.Frames{FramePeriod: 5, SampleRate: buf.SampleRate()},
		Mono:   buf.Mono(),
	})
	h.tick()
	require.True(t, h.o.Snapshot().Analyzed)
}

func (h *harness) processed(buf *audio.Buffer) {
	h.proc.push(worker.SynthesisComplete{Stamp: worker.Stamp{Gen: h.o.Snapshot().Generation}, Buffer: buf})
	h.tick()
}

func TestDebounce_BurstYieldsOneResynthesize(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(1000))

	for _, v := range []float64{1, 2, 3, 4, 5} {
		require.NoError(t, h.o.Dispatch(SetSlider{ID: pipeline.SliderPitchShift, Value: v}))
		h.clock.advance(40 * time.Millisecond)
		h.tick()
		assert.Empty(t, h.proc.submitted, "no render before the quiet period")
	}

	h.clock.advance(DefaultDebounce)
	h.tick()
	cmds := h.proc.take()
	require.Len(t, cmds, 1)
	r, ok := cmds[0].(worker.Resynthesize)
	require.True(t, ok)
	assert.InDelta(t, 5.0, r.Voice.PitchShift, 1e-9)
	assert.Equal(t, uint64(1), r.Generation())

	for range 5 {
		h.clock.advance(DefaultDebounce)
		h.tick()
	}
	assert.Empty(t, h.proc.submitted)
}

func TestDebounce_CommandSelection(t *testing.T) {
	tests := []struct {
		name    string
		sliders map[pipeline.SliderID]float64
		want    string
	}{
		{"effects only", map[pipeline.SliderID]float64{pipeline.SliderReverbMix: 0.3}, "reapply"},
		{"eq only", map[pipeline.SliderID]float64{pipeline.EQSliderID(3): 6}, "reapply"},
		{"voice only", map[pipeline.SliderID]float64{pipeline.SliderSpeed: 1.5}, "resynth"},
		{"voice and effects", map[pipeline.SliderID]float64{pipeline.SliderSpeed: 1.5, pipeline.SliderLowCut: 200}, "resynth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.analyzed(t, mono(500))
			for id, v := range tt.sliders {
				require.NoError(t, h.o.Dispatch(SetSlider{ID: id, Value: v}))
			}
			h.clock.advance(DefaultDebounce)
			h.tick()

			cmds := h.proc.take()
			require.Len(t, cmds, 1)
			switch tt.want {
			case "reapply":
				assert.IsType(t, worker.ReapplyEffects{}, cmds[0])
			case "resynth":
				r, ok := cmds[0].(worker.Resynthesize)
				require.True(t, ok)
				assert.Equal(t, h.o.Snapshot().Values.Effects, r.Effects)
			}
		})
	}
}

func TestDebounce_CustomPeriod(t *testing.T) {
	h := newHarness(t, WithDebounce(500*time.Millisecond))
	h.analyzed(t, mono(500))

	require.NoError(t, h.o.Dispatch(SetSlider{ID: pipeline.SliderReverbMix, Value: 0.5}))
	h.clock.advance(300 * time.Millisecond)
	h.tick()
	assert.Empty(t, h.proc.submitted)
	h.clock.advance(200 * time.Millisecond)
	h.tick()
	assert.Len(t, h.proc.take(), 1)
}

func TestGainIsLive(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(500))

	require.NoError(t, h.o.Dispatch(SetSlider{ID: pipeline.SliderGain, Value: 6}))
	h.clock.advance(time.Second)
	h.tick()

	assert.Empty(t, h.proc.submitted)
	assert.InDelta(t, 1.995, h.player.Renderer().Gain(), 1e-3)
	assert.InDelta(t, 6.0, h.o.Snapshot().Values.Effects.Gain, 1e-9)
}

func TestDebounce_SubmitFailureKeepsPending(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(500))

	h.proc.submitErr = worker.ErrQueueFull
	require.NoError(t, h.o.Dispatch(SetSlider{ID: pipeline.SliderPitchShift, Value: 2}))
	h.clock.advance(DefaultDebounce)
	h.tick()
	assert.True(t, h.o.Snapshot().RenderPending)

	h.proc.submitErr = nil
	h.tick()
	assert.Len(t, h.proc.take(), 1)
	assert.False(t, h.o.Snapshot().RenderPending)
}

func TestDebounce_DroppedWithoutAnalysis(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.o.Dispatch(SetSlider{ID: pipeline.SliderPitchShift, Value: 2}))
	h.clock.advance(DefaultDebounce)
	h.tick()

	assert.Empty(t, h.proc.submitted)
	assert.False(t, h.o.Snapshot().RenderPending)
}

func TestAnalysisComplete_RendersExistingSettings(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.o.Dispatch(SetSlider{ID: pipeline.SliderFormantShift, Value: 2}))

	h.analyzed(t, mono(500))
	cmds := h.proc.take()
	require.Len(t, cmds, 1)
	r, ok := cmds[0].(worker.Resynthesize)
	require.True(t, ok)
	assert.InDelta(t, 2.0, r.Voice.FormantShift, 1e-9)
}

func TestStaleResultsDiscarded(t *testing.T) {
	h := newHarness(t)
	first := mono(500)
	h.analyzed(t, first)
	require.NoError(t, h.o.Dispatch(SetSlider{ID: pipeline.SliderPitchShift, Value: 3}))
	h.clock.advance(DefaultDebounce)
	h.tick()
	require.Len(t, h.proc.take(), 1)

	require.NoError(t, h.o.Dispatch(LoadFile{Path: "next.wav"}))
	cmds := h.proc.take()
	require.Len(t, cmds, 1)
	load, ok := cmds[0].(worker.Load)
	require.True(t, ok)
	assert.Equal(t, uint64(2), load.Generation())

	// The render for the old input finishes after the load was requested.
	h.proc.push(worker.SynthesisComplete{Stamp: worker.Stamp{Gen: 1}, Buffer: mono(700)})
	h.proc.push(worker.Status{Stamp: worker.Stamp{Gen: 1}, Text: "old status"})
	h.tick()

	s := h.o.Snapshot()
	assert.False(t, s.HasProcessed)
	assert.Equal(t, uint64(2), s.StaleResults)
	assert.NotEqual(t, "old status", s.Status)
	assert.Same(t, first.Mono(), h.player.Slot().Load())

	next := mono(800)
	h.proc.push(worker.AudioReady{Stamp: worker.Stamp{Gen: 2}, Buffer: next, Path: "next.wav"})
	h.tick()
	assert.Same(t, next, h.player.Slot().Load())
	assert.Equal(t, int64(0), h.player.Position().Load())
	assert.Equal(t, "next.wav", h.o.Snapshot().Source)
}

type staleCounter struct{ n int }

func (s *staleCounter) StaleResultDiscarded() { s.n++ }

func TestStaleResults_Observer(t *testing.T) {
	obs := &staleCounter{}
	h := newHarness(t, WithObserver(obs))
	h.analyzed(t, mono(100))
	require.NoError(t, h.o.Dispatch(SetAudio{Buffer: mono(200)}))
	h.proc.push(worker.AnalysisComplete{Stamp: worker.Stamp{Gen: 1}})
	h.tick()
	assert.Equal(t, 1, obs.n)
}

func TestSynthesisComplete_SelectsProcessedAndRemaps(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(1000))
	h.player.Position().Store(250)

	out := mono(2000)
	h.processed(out)

	s := h.o.Snapshot()
	assert.True(t, s.HasProcessed)
	assert.False(t, s.ShowingOriginal)
	assert.Empty(t, s.Status)
	assert.Same(t, out, h.player.Slot().Load())
	assert.Equal(t, int64(500), h.player.Position().Load())

	got, ok := h.o.ExportSnapshot()
	require.True(t, ok)
	assert.Same(t, out, got)
}

func TestSynthesisComplete_Autoplay(t *testing.T) {
	h := newHarness(t, WithAutoplay(true))
	h.analyzed(t, mono(100))
	assert.False(t, h.o.Snapshot().Playing)

	h.processed(mono(100))
	assert.True(t, h.o.Snapshot().Playing)
	assert.True(t, h.player.Renderer().Playing())
}

func TestToggleAB_RoundTripRestoresFrame(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(1000))
	h.processed(mono(1500))

	for _, start := range []int64{0, 1, 333, 1499, 1500} {
		h.player.Position().Store(start)
		require.NoError(t, h.o.Dispatch(ToggleAB{}))
		assert.True(t, h.o.Snapshot().ShowingOriginal)
		assert.Equal(t, remap(start, 1500, 1000), h.player.Position().Load())

		require.NoError(t, h.o.Dispatch(ToggleAB{}))
		assert.False(t, h.o.Snapshot().ShowingOriginal)
		assert.Equal(t, start, h.player.Position().Load(), "start %d", start)
	}
}

func TestToggleAB_MovedPositionRemaps(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(1000))
	h.processed(mono(2000))

	h.player.Position().Store(1000)
	require.NoError(t, h.o.Dispatch(ToggleAB{}))
	require.Equal(t, int64(500), h.player.Position().Load())

	require.NoError(t, h.o.Dispatch(Seek{DeltaSeconds: 0.1}))
	require.Equal(t, int64(600), h.player.Position().Load())
	require.NoError(t, h.o.Dispatch(ToggleAB{}))
	assert.Equal(t, int64(1200), h.player.Position().Load())
}

func TestToggleAB_NeedsBothBuffers(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(100))

	err := h.o.Dispatch(ToggleAB{})
	require.ErrorIs(t, err, ErrNothingToCompare)
	assert.True(t, h.o.Snapshot().ShowingOriginal)
}

func TestPlayback_StopsAtEnd(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(100))

	require.NoError(t, h.o.Dispatch(PlayPause{}))
	require.True(t, h.o.Snapshot().Playing)

	out := make([]float32, 200)
	h.player.Renderer().Render(out, 200)
	h.tick()
	assert.False(t, h.o.Snapshot().Playing)
	assert.False(t, h.player.Renderer().Playing())

	// Playing from the end starts over.
	require.NoError(t, h.o.Dispatch(PlayPause{}))
	assert.Equal(t, int64(0), h.player.Position().Load())
	assert.True(t, h.o.Snapshot().Playing)
}

func TestPlayback_LoopKeepsPlaying(t *testing.T) {
	h := newHarness(t, WithLooping(true))
	h.analyzed(t, mono(100))
	assert.True(t, h.player.Renderer().Looping())

	require.NoError(t, h.o.Dispatch(PlayPause{}))
	out := make([]float32, 150)
	h.player.Renderer().Render(out, 150)
	h.tick()
	assert.True(t, h.o.Snapshot().Playing)
	assert.Equal(t, int64(50), h.player.Position().Load())

	require.NoError(t, h.o.Dispatch(ToggleLoop{}))
	assert.False(t, h.player.Renderer().Looping())
}

func TestPlayPause_WithoutAudio(t *testing.T) {
	h := newHarness(t)
	err := h.o.Dispatch(PlayPause{})
	require.ErrorIs(t, err, ErrNoAudio)
	assert.False(t, h.o.Snapshot().Playing)
}

func TestSeekAndRewind(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(1000))

	tests := []struct {
		delta float64
		want  int64
	}{
		{0.25, 250},
		{-0.1, 150},
		{5, 1000},
		{-30, 0},
	}
	for _, tt := range tests {
		require.NoError(t, h.o.Dispatch(Seek{DeltaSeconds: tt.delta}))
		assert.Equal(t, tt.want, h.player.Position().Load())
	}

	h.player.Position().Store(700)
	require.NoError(t, h.o.Dispatch(Rewind{}))
	assert.Equal(t, int64(0), h.player.Position().Load())
}

func TestSliders_UnknownAndAdjust(t *testing.T) {
	h := newHarness(t)

	err := h.o.Dispatch(SetSlider{ID: "warp", Value: 1})
	require.ErrorIs(t, err, pipeline.ErrUnknownSlider)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Contains(t, h.o.Snapshot().Status, "warp")

	require.NoError(t, h.o.Dispatch(AdjustSlider{ID: pipeline.SliderPitchShift, Steps: 3}))
	assert.InDelta(t, 1.5, h.o.Snapshot().Values.Voice.PitchShift, 1e-9)
	require.NoError(t, h.o.Dispatch(AdjustSlider{ID: pipeline.SliderPitchShift, Steps: 100}))
	assert.InDelta(t, 12.0, h.o.Snapshot().Values.Voice.PitchShift, 1e-9)

	require.ErrorIs(t, h.o.Dispatch(AdjustSlider{ID: "warp", Steps: 1}), pipeline.ErrUnknownSlider)
}

func TestResetSlidersAndBypass(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(500))

	require.NoError(t, h.o.Dispatch(SetSlider{ID: pipeline.SliderGain, Value: -6}))
	require.NoError(t, h.o.Dispatch(SetSlider{ID: pipeline.SliderPitchShift, Value: 4}))
	require.NoError(t, h.o.Dispatch(ToggleBypass{}))
	require.NoError(t, h.o.Dispatch(ResetSliders{}))

	s := h.o.Snapshot()
	assert.True(t, s.Values.Voice.Bypass, "reset keeps bypass")
	assert.True(t, s.Values.Voice.IsNeutral())
	assert.InDelta(t, 1.0, h.player.Renderer().Gain(), 1e-6)

	h.clock.advance(DefaultDebounce)
	h.tick()
	cmds := h.proc.take()
	require.Len(t, cmds, 1)
	r, ok := cmds[0].(worker.Resynthesize)
	require.True(t, ok)
	assert.True(t, r.Voice.Bypass)
}

func TestStatusResult(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(100))
	h.proc.push(worker.Status{Stamp: worker.Stamp{Gen: 1}, Text: worker.StatusStageSynth})
	h.tick()
	assert.Equal(t, worker.StatusStageSynth, h.o.Snapshot().Status)

	h.o.SetStatus("Exported")
	assert.Equal(t, "Exported", h.o.Snapshot().Status)
}

func TestLoadFile_SubmitFailure(t *testing.T) {
	h := newHarness(t)
	h.proc.submitErr = worker.ErrClosed

	err := h.o.Dispatch(LoadFile{Path: "a.wav"})
	require.ErrorIs(t, err, worker.ErrClosed)
	assert.Contains(t, h.o.Snapshot().Status, "Load error")
}

func TestExportSnapshot(t *testing.T) {
	h := newHarness(t)
	_, ok := h.o.ExportSnapshot()
	assert.False(t, ok)

	in := mono(100)
	h.analyzed(t, in)
	got, ok := h.o.ExportSnapshot()
	require.True(t, ok)
	assert.Same(t, in, got)
}

func TestSnapshotDurations(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(1500))
	h.player.Position().Store(500)

	s := h.o.Snapshot()
	assert.Equal(t, 500*time.Millisecond, s.Elapsed())
	assert.Equal(t, 1500*time.Millisecond, s.Total())
	assert.Equal(t, time.Duration(0), State{}.Total())
}

func TestTapWindow(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(1000))
	require.NoError(t, h.o.Dispatch(PlayPause{}))

	out := make([]float32, 600)
	h.player.Renderer().Render(out, 600)

	dst := make([]float32, 256)
	n := h.o.TapWindow(dst)
	assert.Equal(t, 256, n)
	assert.Equal(t, out[len(out)-256:], dst)
}

func TestShutdownAndClose(t *testing.T) {
	h := newHarness(t)
	h.analyzed(t, mono(100))
	require.NoError(t, h.o.Dispatch(PlayPause{}))

	require.NoError(t, h.o.Dispatch(Shutdown{}))
	assert.True(t, h.o.Quitting())

	require.NoError(t, h.o.Close(t.Context()))
	assert.Equal(t, 1, h.proc.shutdowns)
	assert.False(t, h.player.Renderer().Playing())
}

func TestRemap(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pos            int64
		oldLen, newLen int
		want           int64
	}{
		{0, 100, 200, 0},
		{50, 100, 200, 100},
		{100, 100, 50, 50},
		{10, 0, 50, 0},
		{10, 50, 0, 0},
		{500, 100, 100, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, remap(tt.pos, tt.oldLen, tt.newLen))
	}
}
