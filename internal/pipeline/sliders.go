package pipeline

import (
	"fmt"
	"math"
	"strings"
)

// SliderID names a user-adjustable parameter
type SliderID string

// Voice sliders
const (
	SliderPitchShift   SliderID = "pitch_shift"
	SliderPitchRange   SliderID = "pitch_range"
	SliderSpeed        SliderID = "speed"
	SliderBreathiness  SliderID = "breathiness"
	SliderFormantShift SliderID = "formant_shift"
	SliderSpectralTilt SliderID = "spectral_tilt"
)

// Effect sliders
const (
	SliderGain       SliderID = "gain"
	SliderLowCut     SliderID = "low_cut"
	SliderHighCut    SliderID = "high_cut"
	SliderCompressor SliderID = "compressor"
	SliderReverbMix  SliderID = "reverb_mix"
	SliderFXPitch    SliderID = "fx_pitch"
)

// Group tells the orchestrator which command a slider change needs.
type Group int

const (
	// GroupVoice sliders change vocoder frames and need resynthesis
	GroupVoice Group = iota
	// GroupEffects sliders only need the effects chain re-run
	GroupEffects
	// GroupLive sliders are applied by the output callback directly
	GroupLive
)

// SliderDef describes one slider
type SliderDef struct {
	ID      SliderID
	Label   string
	Min     float64
	Max     float64
	Step    float64
	Default float64
	Unit    string
	Group   Group
}

// Clamp limits v to the slider range and snaps it to the step grid.
func (d SliderDef) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		return d.Default
	}
	v = math.Max(d.Min, math.Min(d.Max, v))
	if d.Step > 0 {
		precision := math.Round(1 / d.Step)
		if precision > 0 && !math.IsInf(precision, 0) {
			v = math.Round(v*precision) / precision
		}
	}
	return v
}

// Adjust moves v by steps increments
func (d SliderDef) Adjust(v, steps float64) float64 {
	if d.Step <= 0 {
		return v
	}
	return d.Clamp(v + steps*d.Step)
}

// Fraction returns where v sits in the range, 0..1
func (d SliderDef) Fraction(v float64) float64 {
	if d.Max-d.Min < 1e-12 {
		return 0
	}
	return (v - d.Min) / (d.Max - d.Min)
}

// EQFrequencies are the graphic EQ band centers in Hz
var EQFrequencies = [EQBandCount]float64{31, 63, 125, 250, 500, 1000, 2000, 3150, 4000, 6300, 10000, 16000}

// EQSliderID returns the slider ID for EQ band i
func EQSliderID(i int) SliderID {
	return SliderID(fmt.Sprintf("eq_%d", int(EQFrequencies[i])))
}

var sliderDefs = buildSliders()

func buildSliders() []SliderDef {
	defs := []SliderDef{
		{SliderPitchShift, "Pitch Shift", -12, 12, 0.5, 0, "st", GroupVoice},
		{SliderPitchRange, "Pitch Range", 0.2, 3, 0.1, 1, "x", GroupVoice},
		{SliderSpeed, "Speed", 0.5, 2, 0.05, 1, "x", GroupVoice},
		{SliderBreathiness, "Breathiness", 0, 3, 0.1, 0, "x", GroupVoice},
		{SliderFormantShift, "Formant Shift", -5, 5, 0.5, 0, "st", GroupVoice},
		{SliderSpectralTilt, "Spectral Tilt", -6, 6, 0.5, 0, "dB/oct", GroupVoice},
		{SliderGain, "Gain", -12, 12, 0.5, 0, "dB", GroupLive},
		{SliderLowCut, "Low Cut", 20, 500, 10, 20, "Hz", GroupEffects},
		{SliderHighCut, "High Cut", 2000, 20000, 500, 20000, "Hz", GroupEffects},
		{SliderCompressor, "Compressor", -40, 0, 1, 0, "dB", GroupEffects},
		{SliderReverbMix, "Reverb Mix", 0, 1, 0.05, 0, "", GroupEffects},
		{SliderFXPitch, "Pitch Shift FX", -12, 12, 0.5, 0, "st", GroupEffects},
	}
	for i, f := range EQFrequencies {
		label := fmt.Sprintf("%g Hz", f)
		if f >= 1000 {
			label = fmt.Sprintf("%gk", f/1000)
		}
		defs = append(defs, SliderDef{EQSliderID(i), label, -12, 12, 0.5, 0, "dB", GroupEffects})
	}
	return defs
}

// Sliders returns every slider definition in display order
func Sliders() []SliderDef {
	out := make([]SliderDef, len(sliderDefs))
	copy(out, sliderDefs)
	return out
}

// LookupSlider finds a slider by ID, case-insensitively
func LookupSlider(id SliderID) (SliderDef, bool) {
	want := strings.ToLower(string(id))
	for _, d := range sliderDefs {
		if string(d.ID) == want {
			return d, true
		}
	}
	return SliderDef{}, false
}

// Values holds the current value of every slider
type Values struct {
	Voice   VoiceParams
	Effects EffectParams
}

// DefaultValues returns every slider at its default
func DefaultValues() Values {
	return Values{Voice: DefaultVoiceParams(), Effects: DefaultEffectParams()}
}

// Get returns the value of slider id
func (v *Values) Get(id SliderID) (float64, bool) {
	ptr := v.field(id)
	if ptr == nil {
		return 0, false
	}
	return *ptr, true
}

// Set clamps value to the slider range and stores it. It returns the stored
// value and the slider definition.
func (v *Values) Set(id SliderID, value float64) (float64, SliderDef, error) {
	def, ok := LookupSlider(id)
	if !ok {
		return 0, SliderDef{}, unknownSlider(id)
	}
	ptr := v.field(def.ID)
	stored := def.Clamp(value)
	*ptr = stored
	return stored, def, nil
}

func (v *Values) field(id SliderID) *float64 {
	switch id {
	case SliderPitchShift:
		return &v.Voice.PitchShift
	case SliderPitchRange:
		return &v.Voice.PitchRange
	case SliderSpeed:
		return &v.Voice.Speed
	case SliderBreathiness:
		return &v.Voice.Breathiness
	case SliderFormantShift:
		return &v.Voice.FormantShift
	case SliderSpectralTilt:
		return &v.Voice.SpectralTilt
	case SliderGain:
		return &v.Effects.Gain
	case SliderLowCut:
		return &v.Effects.LowCut
	case SliderHighCut:
		return &v.Effects.HighCut
	case SliderCompressor:
		return &v.Effects.CompressorThreshold
	case SliderReverbMix:
		return &v.Effects.ReverbMix
	case SliderFXPitch:
		return &v.Effects.FXPitch
	}
	for i := range EQFrequencies {
		if id == EQSliderID(i) {
			return &v.Effects.EQ[i]
		}
	}
	return nil
}
