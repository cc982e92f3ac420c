// Package pipeline converts slider values into vocoder frame modifications
// and runs the post-synthesis effects chain. Every function here is pure and
// may be called from any goroutine.
package pipeline

import (
	"math"

	"github.com/tphakala/voiceforge/internal/vocoder"
)

// Apply returns a modified copy of frames. The input is never mutated. A
// neutral parameter set returns a plain deep copy.
func Apply(frames *vocoder.Frames, p VoiceParams) *vocoder.Frames {
	out := frames.Clone()
	if out == nil || p.IsNeutral() {
		return out
	}

	applyPitchShift(out, p.PitchShift)
	applyPitchRange(out, p.PitchRange)
	applySpeed(out, p.Speed)
	applyBreathiness(out, p.Breathiness)
	applyFormantShift(out, p.FormantShift)
	applySpectralTilt(out, p.SpectralTilt)

	return out
}

func applyPitchShift(f *vocoder.Frames, semitones float64) {
	if semitones == 0 {
		return
	}
	ratio := math.Pow(2, semitones/12)
	for i, v := range f.F0 {
		if v > 0 {
			f.F0[i] = v * ratio
		}
	}
}

func applyPitchRange(f *vocoder.Frames, spread float64) {
	if spread == 1 {
		return
	}
	var sum float64
	var count int
	for _, v := range f.F0 {
		if v > 0 {
			sum += v
			count++
		}
	}
	if count == 0 {
		return
	}
	mean := sum / float64(count)
	for i, v := range f.F0 {
		if v > 0 {
			f.F0[i] = math.Max(0, mean+(v-mean)*spread)
		}
	}
}

func applySpeed(f *vocoder.Frames, speed float64) {
	if speed == 1 || speed <= 0 {
		return
	}
	oldLen := len(f.F0)
	if oldLen == 0 {
		return
	}
	newLen := max(1, int(math.Round(float64(oldLen)/speed)))

	f.F0 = resample1D(f.F0, newLen)
	f.TemporalPositions = make([]float64, newLen)
	for i := range newLen {
		f.TemporalPositions[i] = float64(i) * f.FramePeriod / 1000
	}
	f.Spectrogram = resample2D(f.Spectrogram, newLen)
	f.Aperiodicity = resample2D(f.Aperiodicity, newLen)
}

func applyBreathiness(f *vocoder.Frames, amount float64) {
	if amount == 0 {
		return
	}
	for _, row := range f.Aperiodicity {
		for j, v := range row {
			row[j] = math.Max(0, math.Min(1, v+amount))
		}
	}
}

func applyFormantShift(f *vocoder.Frames, semitones float64) {
	if semitones == 0 {
		return
	}
	ratio := math.Pow(2, semitones/12)
	width := f.Bins()
	original := make([]float64, width)

	for _, row := range f.Spectrogram {
		n := min(width, len(row))
		copy(original, row[:n])
		for i := range n {
			src := float64(i) / ratio
			lo := int(math.Floor(src))
			frac := src - float64(lo)
			switch {
			case lo+1 < n:
				row[i] = original[lo]*(1-frac) + original[lo+1]*frac
			case lo < n:
				row[i] = original[lo]
			default:
				row[i] = original[n-1]
			}
		}
	}
}

// applySpectralTilt scales bin i by tilt*log2(i) dB. The envelope holds power,
// so the amplitude gain is applied squared.
func applySpectralTilt(f *vocoder.Frames, dbPerOctave float64) {
	if dbPerOctave == 0 {
		return
	}
	width := f.Bins()
	if width < 2 {
		return
	}
	gains := make([]float64, width)
	for i := 1; i < width; i++ {
		g := math.Pow(10, dbPerOctave*math.Log2(float64(i))/20)
		gains[i] = g * g
	}
	for _, row := range f.Spectrogram {
		for i := 1; i < min(width, len(row)); i++ {
			row[i] *= gains[i]
		}
	}
}

func resample1D(data []float64, newLen int) []float64 {
	out := make([]float64, newLen)
	if len(data) == 0 {
		return out
	}
	if len(data) == 1 || newLen == 1 {
		for i := range out {
			out[i] = data[0]
		}
		return out
	}
	oldLen := len(data)
	for i := range newLen {
		t := float64(i) * float64(oldLen-1) / float64(newLen-1)
		lo := int(math.Floor(t))
		hi := min(lo+1, oldLen-1)
		frac := t - float64(lo)
		out[i] = data[lo]*(1-frac) + data[hi]*frac
	}
	return out
}

func resample2D(data [][]float64, newLen int) [][]float64 {
	if len(data) == 0 {
		return nil
	}
	out := make([][]float64, newLen)
	oldLen := len(data)
	width := len(data[0])
	if oldLen == 1 || newLen == 1 {
		for i := range out {
			out[i] = append([]float64(nil), data[0]...)
		}
		return out
	}
	for i := range newLen {
		t := float64(i) * float64(oldLen-1) / float64(newLen-1)
		lo := int(math.Floor(t))
		hi := min(lo+1, oldLen-1)
		frac := t - float64(lo)
		row := make([]float64, width)
		for j := range width {
			row[j] = data[lo][j]*(1-frac) + data[hi][j]*frac
		}
		out[i] = row
	}
	return out
}
