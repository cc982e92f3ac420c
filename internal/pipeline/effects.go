package pipeline

import (
	"log/slog"
	"math"

	"github.com/tphakala/voiceforge/internal/logging"
	"github.com/tphakala/voiceforge/internal/pipeline/equalizer"
)

// Compressor timing
const (
	compressorRatio   = 4.0
	compressorAttack  = 0.005 // seconds
	compressorRelease = 0.050 // seconds
)

// eqPeakingQ gives roughly one octave bandwidth
const eqPeakingQ = 1.41

type combStage struct {
	delay    float64
	feedback float64
}

var (
	reverbCombs    = []combStage{{1557, 0.84}, {1617, 0.82}, {1491, 0.80}, {1422, 0.78}}
	reverbAllpass  = []combStage{{225, 0.5}, {556, 0.5}}
	reverbBaseRate = 44100.0
)

// ApplyEffects runs the effects chain on a copy of samples in this order:
// high-pass, low-pass, compressor, resampling pitch shift, reverb, EQ.
// Gain is not applied here. The pitch stage changes the output length.
func ApplyEffects(samples []float32, sampleRate int, p EffectParams) []float32 {
	buf := make([]float32, len(samples))
	copy(buf, samples)
	if p.IsNeutral() || len(samples) == 0 || sampleRate <= 0 {
		return buf
	}
	sr := float64(sampleRate)

	if p.LowCut > LowCutOff {
		applyBiquad(buf, "highpass", func() (*equalizer.Filter, error) {
			return equalizer.NewHighPass(sr, p.LowCut, equalizer.ButterworthQ, 1)
		})
	}
	if p.HighCut < HighCutOff {
		applyBiquad(buf, "lowpass", func() (*equalizer.Filter, error) {
			return equalizer.NewLowPass(sr, p.HighCut, equalizer.ButterworthQ, 1)
		})
	}
	if p.CompressorThreshold < CompressorOff {
		compress(buf, p.CompressorThreshold, sr)
	}
	if p.FXPitch != 0 {
		buf = resamplePitch(buf, p.FXPitch)
	}
	if p.ReverbMix > 0 {
		buf = reverb(buf, sr, p.ReverbMix)
	}
	applyEQ(buf, sr, p.EQ)

	return buf
}

// ApplyGain scales samples in place by gainDB. It does not clamp.
func ApplyGain(samples []float32, gainDB float64) {
	g := float32(math.Pow(10, gainDB/20))
	for i := range samples {
		samples[i] *= g
	}
}

func applyBiquad(buf []float32, name string, build func() (*equalizer.Filter, error)) {
	f, err := build()
	if err != nil {
		if log := logging.ForService("pipeline"); log != nil {
			log.Warn("skipping filter stage", slog.String("filter", name), slog.Any("error", err))
		}
		return
	}
	f.ApplyBatch(buf)
}

// compress is a feed-forward peak compressor. Makeup gain is applied to
// every sample, above and below threshold.
func compress(buf []float32, thresholdDB, sr float64) {
	threshold := math.Pow(10, thresholdDB/20)
	attack := math.Exp(-1 / (compressorAttack * sr))
	release := math.Exp(-1 / (compressorRelease * sr))
	makeup := math.Pow(10, -thresholdDB/40)
	exponent := 1 - 1/compressorRatio

	var env float64
	for i, s := range buf {
		level := math.Abs(float64(s))
		coeff := release
		if level > env {
			coeff = attack
		}
		env = coeff*env + (1-coeff)*level

		gain := makeup
		if env > threshold {
			gain *= math.Pow(threshold/env, exponent)
		}
		buf[i] = float32(float64(s) * gain)
	}
}

// resamplePitch shifts pitch by reading the input at a different rate. The
// output holds round(n/ratio) samples.
func resamplePitch(buf []float32, semitones float64) []float32 {
	ratio := math.Pow(2, semitones/12)
	n := len(buf)
	newLen := max(1, int(math.Round(float64(n)/ratio)))
	out := make([]float32, newLen)

	for i := range out {
		src := float64(i) * ratio
		idx := int(src)
		frac := float32(src - float64(idx))
		switch {
		case idx+1 < n:
			out[i] = buf[idx]*(1-frac) + buf[idx+1]*frac
		case idx < n:
			out[i] = buf[idx]
		}
	}
	return out
}

func scaledDelay(base, sr float64) int {
	return max(1, int(base*sr/reverbBaseRate))
}

// reverb is a Schroeder reverberator, four parallel combs into two series
// allpass sections, mixed with the dry signal.
func reverb(dry []float32, sr, mix float64) []float32 {
	n := len(dry)
	wet := make([]float64, n)
	for _, c := range reverbCombs {
		combInto(wet, dry, scaledDelay(c.delay, sr), c.feedback)
	}
	for i := range wet {
		wet[i] *= 0.25
	}
	for _, a := range reverbAllpass {
		allpass(wet, scaledDelay(a.delay, sr), a.feedback)
	}

	out := make([]float32, n)
	for i := range out {
		out[i] = float32((1-mix)*float64(dry[i]) + mix*wet[i])
	}
	return out
}

// combInto adds the feedback comb output of input into acc
func combInto(acc []float64, input []float32, delay int, feedback float64) {
	line := make([]float64, delay)
	idx := 0
	for i, x := range input {
		delayed := line[idx]
		line[idx] = float64(x) + feedback*delayed
		acc[i] += delayed
		idx = (idx + 1) % delay
	}
}

// allpass filters x in place
func allpass(x []float64, delay int, gain float64) {
	line := make([]float64, delay)
	idx := 0
	for i, in := range x {
		delayed := line[idx]
		temp := in + gain*delayed
		line[idx] = temp
		x[i] = delayed - gain*temp
		idx = (idx + 1) % delay
	}
}

// applyEQ runs the graphic EQ in place. The lowest band is a low shelf, the
// highest a high shelf and the rest are peaking sections. 0 dB bands are skipped.
func applyEQ(buf []float32, sr float64, bands EQBands) {
	if bands.IsNeutral() || len(buf) == 0 {
		return
	}

	chain := equalizer.NewFilterChain()
	for i, gain := range bands {
		if math.Abs(gain) < neutralEpsilon {
			continue
		}
		freq := EQFrequencies[i]

		var f *equalizer.Filter
		var err error
		switch i {
		case 0:
			f, err = equalizer.NewLowShelf(sr, freq, gain, 1)
		case EQBandCount - 1:
			f, err = equalizer.NewHighShelf(sr, freq, gain, 1)
		default:
			f, err = equalizer.NewPeaking(sr, freq, eqPeakingQ, gain, 1)
		}
		if err == nil {
			err = chain.AddFilter(f)
		}
		if err != nil {
			if log := logging.ForService("pipeline"); log != nil {
				log.Warn("skipping eq band", slog.Float64("frequency", freq), slog.Any("error", err))
			}
		}
	}
	chain.ApplyBatch(buf)
}
