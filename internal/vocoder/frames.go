package vocoder

import (
	"fmt"
	"math"
	"slices"
)

// Frames is the vocoder-domain representation of one mono signal: a
// fundamental-frequency contour, a power spectral envelope and a band
// aperiodicity, all sampled every FramePeriod milliseconds.
//
// A Frames value is treated as immutable once returned by Analyze; modifiers
// operate on a Clone.
type Frames struct {
	F0                []float64   // Hz per frame, 0 for unvoiced
	TemporalPositions []float64   // seconds per frame
	Spectrogram       [][]float64 // [frame][FFTSize/2+1] power envelope
	Aperiodicity      [][]float64 // [frame][FFTSize/2+1] in [0, 1]
	FFTSize           int
	FramePeriod       float64 // milliseconds
	SampleRate        int
}

// Len returns the number of frames
func (f *Frames) Len() int {
	if f == nil {
		return 0
	}
	return len(f.F0)
}

// Bins returns the width of each spectral row
func (f *Frames) Bins() int {
	return f.FFTSize/2 + 1
}

// Clone returns a deep copy
func (f *Frames) Clone() *Frames {
	if f == nil {
		return nil
	}
	out := &Frames{
		F0:                slices.Clone(f.F0),
		TemporalPositions: slices.Clone(f.TemporalPositions),
		Spectrogram:       cloneRows(f.Spectrogram),
		Aperiodicity:      cloneRows(f.Aperiodicity),
		FFTSize:           f.FFTSize,
		FramePeriod:       f.FramePeriod,
		SampleRate:        f.SampleRate,
	}
	return out
}

func cloneRows(rows [][]float64) [][]float64 {
	if rows == nil {
		return nil
	}
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = slices.Clone(r)
	}
	return out
}

// checkShape verifies that every array agrees on the frame count and row width.
func (f *Frames) checkShape() error {
	n := len(f.F0)
	if n == 0 {
		return fmt.Errorf("no frames")
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate %d", f.SampleRate)
	}
	if f.FFTSize < 2 {
		return fmt.Errorf("fft size %d", f.FFTSize)
	}
	if !(f.FramePeriod > 0) || math.IsInf(f.FramePeriod, 0) {
		return fmt.Errorf("frame period %v", f.FramePeriod)
	}
	if len(f.Spectrogram) != n || len(f.Aperiodicity) != n {
		return fmt.Errorf("frame count mismatch: f0=%d sp=%d ap=%d", n, len(f.Spectrogram), len(f.Aperiodicity))
	}
	if f.TemporalPositions != nil && len(f.TemporalPositions) != n {
		return fmt.Errorf("frame count mismatch: f0=%d tpos=%d", n, len(f.TemporalPositions))
	}
	width := f.Bins()
	for i := range n {
		if len(f.Spectrogram[i]) != width {
			return fmt.Errorf("spectrogram row %d has %d bins, want %d", i, len(f.Spectrogram[i]), width)
		}
		if len(f.Aperiodicity[i]) != width {
			return fmt.Errorf("aperiodicity row %d has %d bins, want %d", i, len(f.Aperiodicity[i]), width)
		}
	}
	return nil
}

// checkValues verifies every value is finite and within its domain.
func (f *Frames) checkValues() error {
	for i, v := range f.F0 {
		if !finite(v) || v < 0 {
			return fmt.Errorf("f0[%d] = %v", i, v)
		}
	}
	for i, row := range f.Spectrogram {
		for j, v := range row {
			if !finite(v) || v < 0 {
				return fmt.Errorf("spectrogram[%d][%d] = %v", i, j, v)
			}
		}
	}
	for i, row := range f.Aperiodicity {
		for j, v := range row {
			if !finite(v) || v < 0 || v > 1 {
				return fmt.Errorf("aperiodicity[%d][%d] = %v", i, j, v)
			}
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(x []float64) (int, bool) {
	for i, v := range x {
		if !finite(v) {
			return i, false
		}
	}
	return -1, true
}
