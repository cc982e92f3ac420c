package vocoder

import (
	"fmt"
	"math"
	"math/rand/v2"

	algofft "github.com/MeKo-Christian/algo-fft"
)

const (
	// frames with less windowed energy than this are treated as silence
	silenceEnergy = 1e-8
	// normalized autocorrelation peak needed to call a frame voiced
	voicingThreshold = 0.45
	// envelope smoothing width for unvoiced frames, in Hz
	unvoicedSmoothHz = 500.0
	// lowest aperiodicity emitted for strongly periodic bands
	minAperiodicity = 0.001
)

// ReferenceBackend is a pure-Go source/filter vocoder. It tracks F0 from the
// FFT autocorrelation of each frame, takes the spectral envelope as the power
// spectrum smoothed over one harmonic spacing, and derives aperiodicity from
// the strength of the periodicity peak. Synthesis shapes a pulse train and a
// noise source per frame in the frequency domain and overlap-adds the result.
//
// It is deterministic: the noise source is seeded.
type ReferenceBackend struct {
	seed uint64
}

// NewReferenceBackend creates the pure-Go backend
func NewReferenceBackend() *ReferenceBackend {
	return &ReferenceBackend{seed: 0x5eed}
}

// Name implements Backend
func (r *ReferenceBackend) Name() string { return BackendReference }

// frameFFT holds a plan and scratch for one FFT size
type frameFFT struct {
	n      int
	plan   *algofft.Plan[complex128]
	window []float64
	in     []complex128
	out    []complex128
}

func newFrameFFT(n int) (*frameFFT, error) {
	plan, err := algofft.NewPlan64(n)
	if err != nil {
		return nil, fmt.Errorf("fft plan %d: %w", n, err)
	}
	return &frameFFT{
		n:      n,
		plan:   plan,
		window: hann(n),
		in:     make([]complex128, n),
		out:    make([]complex128, n),
	}, nil
}

// hann returns a periodic Hann window
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range n {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// load copies the window of x centered on center into f.in, applying the
// analysis window and zero padding outside x. It returns the windowed energy.
func (f *frameFFT) load(x []float64, center int) float64 {
	half := f.n / 2
	var energy float64
	for i := range f.n {
		idx := center - half + i
		v := 0.0
		if idx >= 0 && idx < len(x) {
			v = x[idx] * f.window[i]
		}
		f.in[i] = complex(v, 0)
		energy += v * v
	}
	return energy
}

// Analyze implements Backend
func (r *ReferenceBackend) Analyze(x []float64, fs int, opts AnalyzeOptions) (*Frames, error) {
	fftSize := FFTSizeFor(fs)
	bins := fftSize/2 + 1
	n := FrameCount(fs, len(x), opts.FramePeriod)

	f, err := newFrameFFT(fftSize)
	if err != nil {
		return nil, err
	}

	frames := &Frames{
		F0:                make([]float64, n),
		TemporalPositions: make([]float64, n),
		Spectrogram:       make([][]float64, n),
		Aperiodicity:      make([][]float64, n),
		FFTSize:           fftSize,
		FramePeriod:       opts.FramePeriod,
		SampleRate:        fs,
	}

	minLag := max(2, int(float64(fs)/opts.F0Ceil))
	maxLag := min(fftSize/2-1, int(math.Ceil(float64(fs)/opts.F0Floor)))
	strength := make([]float64, n)
	power := make([][]float64, n)
	acf := make([]complex128, fftSize)

	// F0 tracking
	for i := range n {
		t := float64(i) * opts.FramePeriod / 1000.0
		frames.TemporalPositions[i] = t
		center := int(math.Round(t * float64(fs)))

		energy := f.load(x, center)
		if err := f.plan.Forward(f.out, f.in); err != nil {
			return nil, fmt.Errorf("forward fft frame %d: %w", i, err)
		}

		p := make([]float64, bins)
		for k := range fftSize {
			re, im := real(f.out[k]), imag(f.out[k])
			pw := re*re + im*im
			if k < bins {
				p[k] = pw
			}
			acf[k] = complex(pw, 0)
		}
		power[i] = p

		if energy < silenceEnergy {
			continue
		}
		if err := f.plan.Inverse(f.in, acf); err != nil {
			return nil, fmt.Errorf("inverse fft frame %d: %w", i, err)
		}
		frames.F0[i], strength[i] = pickPeriod(f.in, minLag, maxLag, fs)
	}
	opts.Progress(25)

	refineF0(frames.F0)
	opts.Progress(50)

	binHz := float64(fs) / float64(fftSize)
	for i := range n {
		spacing := unvoicedSmoothHz
		if frames.F0[i] > 0 {
			spacing = frames.F0[i]
		}
		halfWidth := max(1, int(spacing/binHz/2))
		frames.Spectrogram[i] = smoothEnvelope(power[i], halfWidth)
	}
	opts.Progress(75)

	for i := range n {
		row := make([]float64, bins)
		if frames.F0[i] == 0 {
			for k := range row {
				row[k] = 1
			}
		} else {
			base := clamp(1-strength[i], minAperiodicity, 1)
			for k := range row {
				rel := float64(k) / float64(bins-1)
				row[k] = clamp(base+(1-base)*rel*rel, minAperiodicity, 1)
			}
		}
		frames.Aperiodicity[i] = row
	}
	opts.Progress(100)

	return frames, nil
}

// pickPeriod finds the strongest autocorrelation peak after the main lobe and
// returns the interpolated F0 with its normalized peak height.
func pickPeriod(acf []complex128, minLag, maxLag, fs int) (f0, peak float64) {
	r0 := real(acf[0])
	if r0 <= 0 {
		return 0, 0
	}

	lag := 1
	for lag < maxLag && real(acf[lag]) > 0 {
		lag++
	}

	best := -1
	for l := max(lag, minLag); l <= maxLag; l++ {
		v := real(acf[l]) / r0
		if v > peak {
			best, peak = l, v
		}
	}
	if best < 0 || peak < voicingThreshold {
		return 0, max(peak, 0)
	}

	lagF := float64(best)
	if best > 0 && best < len(acf)-1 {
		a, b, c := real(acf[best-1]), real(acf[best]), real(acf[best+1])
		if den := a - 2*b + c; den != 0 {
			lagF += 0.5 * (a - c) / den
		}
	}
	if lagF <= 0 {
		return 0, 0
	}
	return float64(fs) / lagF, min(peak, 1)
}

// refineF0 applies a three-point median inside voiced runs to remove
// isolated octave jumps.
func refineF0(f0 []float64) {
	if len(f0) < 3 {
		return
	}
	orig := make([]float64, len(f0))
	copy(orig, f0)
	for i := 1; i < len(f0)-1; i++ {
		a, b, c := orig[i-1], orig[i], orig[i+1]
		if a > 0 && b > 0 && c > 0 {
			f0[i] = median3(a, b, c)
		}
	}
}

func median3(a, b, c float64) float64 {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b = c
	}
	if a > b {
		return a
	}
	return b
}

// smoothEnvelope returns a moving average of p over +-halfWidth bins.
func smoothEnvelope(p []float64, halfWidth int) []float64 {
	n := len(p)
	prefix := make([]float64, n+1)
	for i, v := range p {
		prefix[i+1] = prefix[i] + v
	}
	out := make([]float64, n)
	for i := range n {
		lo := max(0, i-halfWidth)
		hi := min(n, i+halfWidth+1)
		out[i] = (prefix[hi]-prefix[lo])/float64(hi-lo) + 1e-16
	}
	return out
}

// Synthesize implements Backend
func (r *ReferenceBackend) Synthesize(frames *Frames, outLen int) ([]float64, error) {
	fftSize := frames.FFTSize
	half := fftSize / 2
	f, err := newFrameFFT(fftSize)
	if err != nil {
		return nil, err
	}

	fs := float64(frames.SampleRate)
	hop := frames.FramePeriod / 1000.0 * fs

	pulses := make([]float64, outLen)
	noise := make([]float64, outLen)
	rng := rand.New(rand.NewPCG(r.seed, r.seed^0x9e3779b97f4a7c15))
	for i := range noise {
		noise[i] = rng.NormFloat64()
	}

	phase := 0.0
	for n := range outLen {
		f0 := f0At(frames.F0, float64(n)/hop)
		if f0 <= 0 {
			phase = 0
			continue
		}
		phase += f0 / fs
		if phase >= 1 {
			phase -= 1
			pulses[n] = 1
		}
	}

	out := make([]float64, outLen)
	norm := make([]float64, outLen)
	pSpec := make([]complex128, fftSize)
	nSpec := make([]complex128, fftSize)
	shaped := make([]complex128, fftSize)
	seg := make([]float64, fftSize)

	for i := range frames.Len() {
		center := int(math.Round(float64(i) * hop))

		f.load(pulses, center)
		if err := f.plan.Forward(pSpec, f.in); err != nil {
			return nil, fmt.Errorf("forward fft frame %d: %w", i, err)
		}
		f.load(noise, center)
		if err := f.plan.Forward(nSpec, f.in); err != nil {
			return nil, fmt.Errorf("forward fft frame %d: %w", i, err)
		}

		pr := rmsMagnitude(pSpec)
		nr := rmsMagnitude(nSpec)
		voiced := frames.F0[i] > 0 && pr > 0
		sp := frames.Spectrogram[i]
		ap := frames.Aperiodicity[i]

		var target float64
		for k := range fftSize {
			kb := k
			if k > half {
				kb = fftSize - k
			}
			amp := math.Sqrt(sp[kb])
			a := ap[kb]
			wp := 0.0
			if voiced {
				wp = math.Sqrt(max(0, 1-a*a)) / pr
			} else {
				a = 1
			}
			wn := 0.0
			if nr > 0 {
				wn = a / nr
			}
			shaped[k] = complex(amp*wp, 0)*pSpec[k] + complex(amp*wn, 0)*nSpec[k]
			target += sp[kb]
		}
		target /= float64(fftSize)

		if err := f.plan.Inverse(f.out, shaped); err != nil {
			return nil, fmt.Errorf("inverse fft frame %d: %w", i, err)
		}

		var energy float64
		for j := range fftSize {
			v := real(f.out[j]) * f.window[j]
			seg[j] = v
			energy += v * v
		}
		if energy <= 1e-20 || target <= 0 {
			continue
		}
		gain := math.Sqrt(target / energy)

		for j := range fftSize {
			idx := center - half + j
			if idx < 0 || idx >= outLen {
				continue
			}
			out[idx] += seg[j] * gain
			norm[idx] += f.window[j] * f.window[j]
		}
	}

	for n := range out {
		if norm[n] > 1e-3 {
			out[n] /= norm[n]
		}
	}

	return out, nil
}

// f0At interpolates the contour at fractional frame position pos. Voicing
// boundaries snap to the nearest frame instead of blending with zero.
func f0At(f0 []float64, pos float64) float64 {
	if len(f0) == 0 {
		return 0
	}
	lo := int(pos)
	if lo >= len(f0)-1 {
		return f0[len(f0)-1]
	}
	frac := pos - float64(lo)
	a, b := f0[lo], f0[lo+1]
	if a <= 0 || b <= 0 {
		if frac < 0.5 {
			return a
		}
		return b
	}
	return a + (b-a)*frac
}

func rmsMagnitude(spec []complex128) float64 {
	var sum float64
	for _, c := range spec {
		re, im := real(c), imag(c)
		sum += re*re + im*im
	}
	return math.Sqrt(sum / float64(len(spec)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
