package pipeline

import "math"

// neutralEpsilon absorbs float drift from repeated slider stepping
const neutralEpsilon = 1e-6

// VoiceParams are the vocoder-domain modifiers applied by Apply.
type VoiceParams struct {
	PitchShift   float64 // semitones
	PitchRange   float64 // spread multiplier around the voiced mean
	Speed        float64 // tempo multiplier, >1 is faster
	Breathiness  float64 // added to aperiodicity
	FormantShift float64 // semitones
	SpectralTilt float64 // dB per octave
	// Bypass skips the vocoder entirely and feeds the original signal to the effects.
	Bypass bool
}

// DefaultVoiceParams returns the neutral voice settings
func DefaultVoiceParams() VoiceParams {
	return VoiceParams{
		PitchRange: 1,
		Speed:      1,
	}
}

// IsNeutral reports whether Apply would return the frames unchanged.
func (p VoiceParams) IsNeutral() bool {
	return math.Abs(p.PitchShift) < neutralEpsilon &&
		math.Abs(p.PitchRange-1) < neutralEpsilon &&
		math.Abs(p.Speed-1) < neutralEpsilon &&
		math.Abs(p.Breathiness) < neutralEpsilon &&
		math.Abs(p.FormantShift) < neutralEpsilon &&
		math.Abs(p.SpectralTilt) < neutralEpsilon
}

// EQBandCount is the number of graphic EQ bands
const EQBandCount = 12

// EQBands holds per-band gain in dB
type EQBands [EQBandCount]float64

// IsNeutral reports whether every band is at 0 dB
func (b EQBands) IsNeutral() bool {
	for _, g := range b {
		if math.Abs(g) >= neutralEpsilon {
			return false
		}
	}
	return true
}

// Effect range limits that mean "off"
const (
	LowCutOff     = 20.0
	HighCutOff    = 20000.0
	CompressorOff = 0.0
)

// EffectParams configure the post-synthesis effects chain.
type EffectParams struct {
	// Gain is applied live by the output callback, never by ApplyEffects.
	Gain                float64 // dB
	LowCut              float64 // Hz, high-pass corner
	HighCut             float64 // Hz, low-pass corner
	CompressorThreshold float64 // dB, 0 disables
	ReverbMix           float64 // 0..1
	FXPitch             float64 // semitones, resampling shift that changes length
	EQ                  EQBands
}

// DefaultEffectParams returns the bypass settings
func DefaultEffectParams() EffectParams {
	return EffectParams{
		LowCut:  LowCutOff,
		HighCut: HighCutOff,
	}
}

// IsNeutral reports whether ApplyEffects would return a plain copy. Gain is
// not considered.
func (p EffectParams) IsNeutral() bool {
	return p.LowCut <= LowCutOff &&
		p.HighCut >= HighCutOff &&
		p.CompressorThreshold >= CompressorOff &&
		math.Abs(p.ReverbMix) < neutralEpsilon &&
		math.Abs(p.FXPitch) < neutralEpsilon &&
		p.EQ.IsNeutral()
}

// GainLinear converts Gain to a linear multiplier
func (p EffectParams) GainLinear() float64 {
	return math.Pow(10, p.Gain/20)
}
