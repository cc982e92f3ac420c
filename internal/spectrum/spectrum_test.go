package spectrum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(n int, freq, sampleRate, amp float64) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return s
}

func TestNewAnalyzer_Size(t *testing.T) {
	t.Parallel()
	for _, size := range []int{0, 1, 100, 3000} {
		_, err := NewAnalyzer(size)
		assert.Error(t, err, "size %d", size)
	}
	a, err := NewAnalyzer(DefaultSize)
	require.NoError(t, err)
	assert.Equal(t, 2048, a.Size())
	assert.Equal(t, 1025, a.Bins())
}

func TestCompute_PeakBin(t *testing.T) {
	t.Parallel()
	a, err := NewAnalyzer(DefaultSize)
	require.NoError(t, err)

	const sr = 44100.0
	// Bin 93 center frequency, so the tone falls exactly on a bin
	freq := a.BinFrequency(93, sr)
	db := a.Compute(tone(DefaultSize, freq, sr, 0.5))
	require.Len(t, db, a.Bins())

	peak := 0
	for k := range db {
		if db[k] > db[peak] {
			peak = k
		}
	}
	assert.Equal(t, 93, peak)
	// A 0.5 amplitude sine reads about -6 dBFS
	assert.InDelta(t, -6.02, db[peak], 0.5)
	assert.InDelta(t, MinDB, db[400], 1e-9)
}

func TestCompute_ClampsAndPads(t *testing.T) {
	t.Parallel()
	a, err := NewAnalyzer(256)
	require.NoError(t, err)

	silent := a.Compute(nil)
	for _, v := range silent {
		assert.InDelta(t, MinDB, v, 1e-9)
	}

	loud := make([]float32, 256)
	for i := range loud {
		loud[i] = 8
	}
	for _, v := range a.Compute(loud) {
		assert.LessOrEqual(t, v, MaxDB)
		assert.GreaterOrEqual(t, v, MinDB)
	}

	long := append(make([]float32, 1000), tone(256, a.BinFrequency(16, 8000), 8000, 1)...)
	db := a.Compute(long)
	assert.Greater(t, db[16], -10.0, "only the newest window is analyzed")
}

func TestBands(t *testing.T) {
	t.Parallel()
	db := make([]float64, 1025)
	for i := range db {
		db[i] = MinDB
	}
	db[93] = -3 // about 2 kHz at 44.1 kHz

	bands := Bands(db, 44100, 16)
	require.Len(t, bands, 16)
	hot := 0
	for i, v := range bands {
		if v > MinDB {
			hot++
			assert.InDelta(t, -3.0, v, 1e-9, "band %d", i)
		}
	}
	assert.Equal(t, 1, hot)

	assert.Equal(t, []float64{MinDB, MinDB}, Bands(nil, 44100, 2))
	assert.Empty(t, Bands(db, 44100, 0))
}
