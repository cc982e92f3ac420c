//go:build world && cgo

package vocoder

// #cgo pkg-config: world
// #include <stdlib.h>
// #include <world/dio.h>
// #include <world/stonemask.h>
// #include <world/cheaptrick.h>
// #include <world/d4c.h>
// #include <world/synthesis.h>
import "C"

import (
	"fmt"
	"unsafe"
)

// worldBackend calls the WORLD vocoder through cgo. This file is the only
// place in the module that touches C memory.
type worldBackend struct{}

func newWorldBackend() (Backend, error) {
	return worldBackend{}, nil
}

// Name implements Backend
func (worldBackend) Name() string { return BackendWorld }

// cMatrix is a rows x cols array of doubles allocated in C memory, laid out
// as WORLD expects for double**.
type cMatrix struct {
	rows, cols int
	ptrs       **C.double
}

func newCMatrix(rows, cols int) (*cMatrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("matrix %dx%d", rows, cols)
	}
	ptrSize := C.size_t(unsafe.Sizeof((*C.double)(nil)))
	ptrs := (**C.double)(C.calloc(C.size_t(rows), ptrSize))
	if ptrs == nil {
		return nil, fmt.Errorf("allocate %d row pointers", rows)
	}
	m := &cMatrix{rows: rows, cols: cols, ptrs: ptrs}
	rowSlice := unsafe.Slice(ptrs, rows)
	for i := range rows {
		row := (*C.double)(C.calloc(C.size_t(cols), C.size_t(unsafe.Sizeof(C.double(0)))))
		if row == nil {
			m.free()
			return nil, fmt.Errorf("allocate row %d", i)
		}
		rowSlice[i] = row
	}
	return m, nil
}

func (m *cMatrix) row(i int) []float64 {
	rowSlice := unsafe.Slice(m.ptrs, m.rows)
	return unsafe.Slice((*float64)(unsafe.Pointer(rowSlice[i])), m.cols)
}

func (m *cMatrix) free() {
	if m == nil || m.ptrs == nil {
		return
	}
	rowSlice := unsafe.Slice(m.ptrs, m.rows)
	for i := range m.rows {
		if rowSlice[i] != nil {
			C.free(unsafe.Pointer(rowSlice[i]))
		}
	}
	C.free(unsafe.Pointer(m.ptrs))
	m.ptrs = nil
}

func (m *cMatrix) load(rows [][]float64) error {
	if len(rows) != m.rows {
		return fmt.Errorf("matrix has %d rows, got %d", m.rows, len(rows))
	}
	for i, r := range rows {
		if len(r) != m.cols {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(r), m.cols)
		}
		copy(m.row(i), r)
	}
	return nil
}

func (m *cMatrix) export() [][]float64 {
	out := make([][]float64, m.rows)
	for i := range m.rows {
		r := make([]float64, m.cols)
		copy(r, m.row(i))
		out[i] = r
	}
	return out
}

func cDoubles(x []float64) *C.double {
	return (*C.double)(unsafe.Pointer(&x[0]))
}

// Analyze implements Backend
func (worldBackend) Analyze(x []float64, fs int, opts AnalyzeOptions) (*Frames, error) {
	if len(x) == 0 || fs <= 0 {
		return nil, fmt.Errorf("empty input")
	}
	xLen := C.int(len(x))
	cfs := C.int(fs)

	var dioOpt C.DioOption
	C.InitializeDioOption(&dioOpt)
	dioOpt.frame_period = C.double(opts.FramePeriod)
	dioOpt.f0_floor = C.double(opts.F0Floor)
	dioOpt.f0_ceil = C.double(opts.F0Ceil)

	n := int(C.GetSamplesForDIO(cfs, xLen, C.double(opts.FramePeriod)))
	if n <= 0 {
		return nil, fmt.Errorf("GetSamplesForDIO returned %d", n)
	}

	tpos := make([]float64, n)
	f0 := make([]float64, n)
	C.Dio(cDoubles(x), xLen, cfs, &dioOpt, cDoubles(tpos), cDoubles(f0))
	opts.Progress(25)

	refined := make([]float64, n)
	C.StoneMask(cDoubles(x), xLen, cfs, cDoubles(tpos), cDoubles(f0), C.int(n), cDoubles(refined))
	opts.Progress(50)

	var ctOpt C.CheapTrickOption
	C.InitializeCheapTrickOption(cfs, &ctOpt)
	ctOpt.f0_floor = C.double(opts.F0Floor)
	ctOpt.fft_size = C.GetFFTSizeForCheapTrick(cfs, &ctOpt)
	fftSize := int(ctOpt.fft_size)
	if fftSize < 2 {
		return nil, fmt.Errorf("GetFFTSizeForCheapTrick returned %d", fftSize)
	}
	bins := fftSize/2 + 1

	sp, err := newCMatrix(n, bins)
	if err != nil {
		return nil, err
	}
	defer sp.free()
	C.CheapTrick(cDoubles(x), xLen, cfs, cDoubles(tpos), cDoubles(refined), C.int(n), &ctOpt, sp.ptrs)
	opts.Progress(75)

	ap, err := newCMatrix(n, bins)
	if err != nil {
		return nil, err
	}
	defer ap.free()
	var d4cOpt C.D4COption
	C.InitializeD4COption(&d4cOpt)
	C.D4C(cDoubles(x), xLen, cfs, cDoubles(tpos), cDoubles(refined), C.int(n), C.int(fftSize), &d4cOpt, ap.ptrs)
	opts.Progress(100)

	return &Frames{
		F0:                refined,
		TemporalPositions: tpos,
		Spectrogram:       sp.export(),
		Aperiodicity:      ap.export(),
		FFTSize:           fftSize,
		FramePeriod:       opts.FramePeriod,
		SampleRate:        fs,
	}, nil
}

// Synthesize implements Backend
func (worldBackend) Synthesize(frames *Frames, outLen int) ([]float64, error) {
	n := frames.Len()
	bins := frames.Bins()
	if n == 0 || outLen <= 0 {
		return nil, fmt.Errorf("empty frames")
	}

	sp, err := newCMatrix(n, bins)
	if err != nil {
		return nil, err
	}
	defer sp.free()
	if err := sp.load(frames.Spectrogram); err != nil {
		return nil, err
	}

	ap, err := newCMatrix(n, bins)
	if err != nil {
		return nil, err
	}
	defer ap.free()
	if err := ap.load(frames.Aperiodicity); err != nil {
		return nil, err
	}

	f0 := make([]float64, n)
	copy(f0, frames.F0)
	y := make([]float64, outLen)

	C.Synthesis(cDoubles(f0), C.int(n), sp.ptrs, ap.ptrs, C.int(frames.FFTSize),
		C.double(frames.FramePeriod), C.int(frames.SampleRate), C.int(outLen), cDoubles(y))

	return y, nil
}
