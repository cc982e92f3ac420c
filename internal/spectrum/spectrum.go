// Package spectrum computes magnitude spectra of the playback tap for display.
package spectrum

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// Display range and default size
const (
	DefaultSize = 2048
	MinDB       = -80.0
	MaxDB       = 0.0
)

const eps = 1e-12

// Analyzer turns a sample window into a Hann windowed spectrum in dBFS. It
// reuses its buffers and is not safe for concurrent use.
type Analyzer struct {
	size   int
	plan   *algofft.Plan[complex128]
	window []float64
	gain   float64
	in     []complex128
	out    []complex128
}

// NewAnalyzer creates an analyzer for a power of two FFT size
func NewAnalyzer(size int) (*Analyzer, error) {
	if size < 2 || size&(size-1) != 0 {
		return nil, fmt.Errorf("spectrum size %d is not a power of two", size)
	}
	plan, err := algofft.NewPlan64(size)
	if err != nil {
		return nil, fmt.Errorf("spectrum init fft plan: %w", err)
	}

	win := make([]float64, size)
	var sum float64
	for i := range win {
		win[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size))
		sum += win[i]
	}

	return &Analyzer{
		size:   size,
		plan:   plan,
		window: win,
		gain:   sum / float64(size),
		in:     make([]complex128, size),
		out:    make([]complex128, size),
	}, nil
}

// Size returns the FFT size
func (a *Analyzer) Size() int { return a.size }

// Bins returns the number of values Compute returns
func (a *Analyzer) Bins() int { return a.size/2 + 1 }

// Compute returns Bins() magnitudes in dB clamped to [MinDB, MaxDB]. Short
// windows are zero padded; only the newest Size() samples of long ones are used.
func (a *Analyzer) Compute(samples []float32) []float64 {
	if len(samples) > a.size {
		samples = samples[len(samples)-a.size:]
	}
	for i := range a.in {
		var v float64
		if i < len(samples) {
			v = float64(samples[i]) * a.window[i]
		}
		a.in[i] = complex(v, 0)
	}

	db := make([]float64, a.Bins())
	if err := a.plan.Forward(a.out, a.in); err != nil {
		for i := range db {
			db[i] = MinDB
		}
		return db
	}

	norm := float64(a.size) * math.Max(a.gain, eps)
	last := len(db) - 1
	for k := range db {
		mag := cmplx.Abs(a.out[k]) / norm
		if k > 0 && k < last {
			mag *= 2
		}
		db[k] = math.Max(MinDB, math.Min(MaxDB, 20*math.Log10(math.Max(eps, mag))))
	}
	return db
}

// BinFrequency returns the center frequency of bin k
func (a *Analyzer) BinFrequency(k, sampleRate int) float64 {
	return float64(k) * float64(sampleRate) / float64(a.size)
}

// Bands reduces a spectrum to n log spaced bands between 40 Hz and Nyquist,
// each the maximum of its bins.
func Bands(db []float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	if n <= 0 || len(db) < 2 || sampleRate <= 0 {
		for i := range out {
			out[i] = MinDB
		}
		return out
	}
	nyquist := float64(sampleRate) / 2
	binHz := nyquist / float64(len(db)-1)
	lo := math.Log(40)
	hi := math.Log(nyquist)

	for b := range out {
		f0 := math.Exp(lo + (hi-lo)*float64(b)/float64(n))
		f1 := math.Exp(lo + (hi-lo)*float64(b+1)/float64(n))
		k0 := int(f0 / binHz)
		k1 := max(k0+1, int(f1/binHz))
		if b == n-1 {
			k1 = len(db)
		}
		peak := MinDB
		for k := k0; k < min(k1, len(db)); k++ {
			peak = math.Max(peak, db[k])
		}
		out[b] = peak
	}
	return out
}
