// Package equalizer implements second-order IIR sections from the RBJ audio
// EQ cookbook for the post-synthesis effects chain: low-pass, high-pass,
// low-shelf, high-shelf and peaking.
package equalizer

import (
	"fmt"
	"math"
)

// FilterName is the kind of a second-order section
type FilterName int

const (
	Undefined FilterName = iota
	LowPass
	HighPass
	LowShelf
	HighShelf
	Peaking
)

func (n FilterName) String() string {
	switch n {
	case LowPass:
		return "lowpass"
	case HighPass:
		return "highpass"
	case LowShelf:
		return "lowshelf"
	case HighShelf:
		return "highshelf"
	case Peaking:
		return "peaking"
	default:
		return "undefined"
	}
}

// ButterworthQ is the Q of a maximally flat second-order section
const ButterworthQ = math.Sqrt2 / 2

// maxCornerRatio keeps corner frequencies below Nyquist
const maxCornerRatio = 0.95

// coeffs are biquad coefficients normalized by a0
type coeffs struct {
	b0, b1, b2, a1, a2 float64
}

// stage is the direct form I history of one pass
type stage struct {
	x1, x2, y1, y2 float64
}

// Filter is a biquad run one or more times in series. Each pass adds
// 12 dB/oct for the pass filters. A Filter keeps state between calls and is
// owned by one goroutine.
type Filter struct {
	name   FilterName
	c      coeffs
	stages []stage
}

// IsZero reports whether f was never designed
func (f *Filter) IsZero() bool {
	return f.name == Undefined
}

// Name returns the filter kind
func (f *Filter) Name() FilterName {
	return f.name
}

// NewFilter builds a filter from raw cookbook coefficients
func NewFilter(name FilterName, a0, a1, a2, b0, b1, b2 float64, passes int) *Filter {
	return &Filter{
		name:   name,
		c:      coeffs{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0},
		stages: make([]stage, passes),
	}
}

// ApplyBatch filters samples in place
func (f *Filter) ApplyBatch(samples []float32) {
	c := f.c
	for s := range f.stages {
		st := f.stages[s]
		for i, v := range samples {
			x := float64(v)
			y := c.b0*x + c.b1*st.x1 + c.b2*st.x2 - c.a1*st.y1 - c.a2*st.y2
			st.x2, st.x1 = st.x1, x
			st.y2, st.y1 = st.y1, y
			samples[i] = float32(y)
		}
		f.stages[s] = st
	}
}

// Reset clears the filter history
func (f *Filter) Reset() {
	clear(f.stages)
}

// design validates the arguments and computes the cookbook coefficients for
// kind. q is ignored by the shelves, which use slope 1; gainDB is ignored by
// the pass filters.
func design(kind FilterName, sampleRate, frequency, q, gainDB float64, passes int) (*Filter, error) {
	switch {
	case passes < 1:
		return nil, fmt.Errorf("%s: passes must be 1 or greater, got %d", kind, passes)
	case sampleRate <= 0:
		return nil, fmt.Errorf("%s: sample rate must be positive, got %v", kind, sampleRate)
	case q <= 0:
		return nil, fmt.Errorf("%s: q must be greater than 0, got %v", kind, q)
	}

	corner := math.Max(1, math.Min(frequency, sampleRate/2*maxCornerRatio))
	w0 := 2 * math.Pi * corner / sampleRate
	cosW, sinW := math.Cos(w0), math.Sin(w0)
	alpha := sinW / (2 * q)
	a := math.Pow(10, gainDB/40)

	var a0, a1, a2, b0, b1, b2 float64
	switch kind {
	case LowPass:
		b1 = 1 - cosW
		b0, b2 = b1/2, b1/2
		a0, a1, a2 = 1+alpha, -2*cosW, 1-alpha
	case HighPass:
		b1 = -(1 + cosW)
		b0, b2 = -b1/2, -b1/2
		a0, a1, a2 = 1+alpha, -2*cosW, 1-alpha
	case Peaking:
		b0, b1, b2 = 1+alpha*a, -2*cosW, 1-alpha*a
		a0, a1, a2 = 1+alpha/a, -2*cosW, 1-alpha/a
	case LowShelf, HighShelf:
		beta := math.Sqrt(a) / ButterworthQ * sinW
		sign := 1.0
		if kind == HighShelf {
			sign = -1
		}
		b0 = a * ((a + 1) - sign*(a-1)*cosW + beta)
		b1 = sign * 2 * a * ((a - 1) - sign*(a+1)*cosW)
		b2 = a * ((a + 1) - sign*(a-1)*cosW - beta)
		a0 = (a + 1) + sign*(a-1)*cosW + beta
		a1 = -sign * 2 * ((a - 1) + sign*(a+1)*cosW)
		a2 = (a + 1) + sign*(a-1)*cosW - beta
	default:
		return nil, fmt.Errorf("unknown filter kind %d", int(kind))
	}
	return NewFilter(kind, a0, a1, a2, b0, b1, b2, passes), nil
}

// NewLowPass returns a low-pass section with cutoff frequency in Hz
func NewLowPass(sampleRate, frequency, q float64, passes int) (*Filter, error) {
	return design(LowPass, sampleRate, frequency, q, 0, passes)
}

// NewHighPass returns a high-pass section with cutoff frequency in Hz
func NewHighPass(sampleRate, frequency, q float64, passes int) (*Filter, error) {
	return design(HighPass, sampleRate, frequency, q, 0, passes)
}

// NewLowShelf returns a low shelf at frequency with gain in dB
func NewLowShelf(sampleRate, frequency, gain float64, passes int) (*Filter, error) {
	return design(LowShelf, sampleRate, frequency, ButterworthQ, gain, passes)
}

// NewHighShelf returns a high shelf at frequency with gain in dB
func NewHighShelf(sampleRate, frequency, gain float64, passes int) (*Filter, error) {
	return design(HighShelf, sampleRate, frequency, ButterworthQ, gain, passes)
}

// NewPeaking returns a peaking section. A q of 1.41 is about one octave.
func NewPeaking(sampleRate, frequency, q, gain float64, passes int) (*Filter, error) {
	return design(Peaking, sampleRate, frequency, q, gain, passes)
}

// FilterChain runs filters in order. It is owned by one goroutine.
type FilterChain struct {
	filters []*Filter
}

// NewFilterChain returns an empty chain
func NewFilterChain() *FilterChain {
	return &FilterChain{}
}

// AddFilter appends f to the chain
func (fc *FilterChain) AddFilter(f *Filter) error {
	if f == nil || f.IsZero() {
		return fmt.Errorf("cannot add nil or undesigned filter")
	}
	fc.filters = append(fc.filters, f)
	return nil
}

// Length returns the number of filters
func (fc *FilterChain) Length() int {
	return len(fc.filters)
}

// ApplyBatch runs every filter over samples in place
func (fc *FilterChain) ApplyBatch(samples []float32) {
	for _, f := range fc.filters {
		f.ApplyBatch(samples)
	}
}
