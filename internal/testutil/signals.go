package testutil

import (
	"math"

	"github.com/tphakala/voiceforge/internal/audio"
)

// Tone returns a mono sine of the given amplitude
func Tone(seconds float64, sampleRate int, hz, amplitude float64) *audio.Buffer {
	n := int(seconds * float64(sampleRate))
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(amplitude * math.Sin(2*math.Pi*hz*float64(i)/float64(sampleRate)))
	}
	return audio.MustBuffer(audio.Format{SampleRate: sampleRate, Channels: 1}, s)
}

// Sweep returns a mono linear chirp from f0 to f1 Hz at half scale
func Sweep(seconds float64, sampleRate int, f0, f1 float64) *audio.Buffer {
	n := int(seconds * float64(sampleRate))
	s := make([]float32, n)
	k := (f1 - f0) / seconds
	for i := range s {
		t := float64(i) / float64(sampleRate)
		s[i] = float32(0.5 * math.Sin(2*math.Pi*(f0*t+0.5*k*t*t)))
	}
	return audio.MustBuffer(audio.Format{SampleRate: sampleRate, Channels: 1}, s)
}

// AllFinite reports the index of the first NaN or Inf sample, or -1
func AllFinite(samples []float32) int {
	for i, v := range samples {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return i
		}
	}
	return -1
}
