package decoder

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/voiceforge/internal/audio"
	"github.com/tphakala/voiceforge/internal/errors"
)

// writeWAV writes interleaved integer samples as a PCM WAV fixture
func writeWAV(t *testing.T, path string, sampleRate, bitDepth, channels int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	enc := wav.NewEncoder(f, sampleRate, bitDepth, channels, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: bitDepth,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func sine16(frames, channels int) []int {
	data := make([]int, frames*channels)
	for i := range frames {
		v := int(math.Round(16000 * math.Sin(2*math.Pi*float64(i)/50)))
		for c := range channels {
			data[i*channels+c] = v
		}
	}
	return data
}

func TestDecodeWAV_Mono16(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mono.wav")
	data := sine16(1000, 1)
	writeWAV(t, path, 22050, 16, 1, data)

	buf, err := New(WithCacheTTL(0)).Decode(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, audio.Format{SampleRate: 22050, Channels: 1}, buf.Format())
	require.Equal(t, 1000, buf.Len())
	for i, s := range buf.Samples() {
		assert.InDelta(t, float64(data[i])/32768, float64(s), 1e-6)
	}
}

func TestDecodeWAV_Stereo24(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "stereo.WAV")
	data := []int{-8388608, 8388607, 4194304, -4194304, 0, 1}
	writeWAV(t, path, 48000, 24, 2, data)

	buf, err := Decode(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Channels())
	assert.Equal(t, 3, buf.Len())
	assert.InDelta(t, -1.0, buf.Samples()[0], 1e-6)
	assert.InDelta(t, 0.5, buf.Samples()[2], 1e-6)
}

func TestDecodeWAV_DownmixesSurround(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "surround.wav")
	// Even channels carry 0.25, odd channels 0.5
	frame := []int{8192, 16384, 8192, 16384, 8192, 16384}
	var data []int
	for range 10 {
		data = append(data, frame...)
	}
	writeWAV(t, path, 44100, 16, 6, data)

	buf, err := Decode(t.Context(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Channels())
	assert.Equal(t, 10, buf.Len())
	assert.InDelta(t, 0.25, buf.Samples()[0], 1e-6)
	assert.InDelta(t, 0.5, buf.Samples()[1], 1e-6)
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	garbageWAV := filepath.Join(dir, "garbage.wav")
	require.NoError(t, os.WriteFile(garbageWAV, bytes.Repeat([]byte{0x42}, 256), 0o600))
	garbageFLAC := filepath.Join(dir, "garbage.flac")
	require.NoError(t, os.WriteFile(garbageFLAC, bytes.Repeat([]byte{0x13}, 256), 0o600))
	eightBit := filepath.Join(dir, "eight.wav")
	writeWAV(t, eightBit, 8000, 8, 1, []int{128, 130, 126})
	mp3 := filepath.Join(dir, "song.mp3")
	require.NoError(t, os.WriteFile(mp3, []byte("ID3"), 0o600))

	d := New(WithCacheTTL(0), WithFFmpegPath(filepath.Join(dir, "no-such-ffmpeg")))

	tests := []struct {
		name     string
		path     string
		sentinel error
		category errors.ErrorCategory
	}{
		{"invalid wav", garbageWAV, ErrDecode, errors.CategoryFileParsing},
		{"invalid flac", garbageFLAC, ErrDecode, errors.CategoryFileParsing},
		{"8-bit wav", eightBit, ErrUnsupportedFormat, errors.CategoryValidation},
		{"no ffmpeg", mp3, ErrUnsupportedFormat, errors.CategoryValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(t.Context(), tt.path)
			require.Error(t, err)
			require.ErrorIs(t, err, tt.sentinel)
			assert.True(t, errors.IsCategory(err, tt.category), "category of %v", err)
		})
	}

	_, err := d.Decode(t.Context(), filepath.Join(dir, "missing.wav"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

	_, err = d.Decode(t.Context(), dir)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

type hitCounter struct{ n int }

func (h *hitCounter) DecodeCacheHit() { h.n++ }

func TestDecode_Cache(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cached.wav")
	writeWAV(t, path, 16000, 16, 1, sine16(500, 1))

	obs := &hitCounter{}
	d := New(WithCacheTTL(time.Minute), WithCacheObserver(obs))

	first, err := d.Decode(t.Context(), path)
	require.NoError(t, err)
	second, err := d.Decode(t.Context(), path)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, uint64(1), d.CacheHits())
	assert.Equal(t, 1, obs.n)

	// A rewrite with a different size is a new entry
	writeWAV(t, path, 16000, 16, 1, sine16(800, 1))
	third, err := d.Decode(t.Context(), path)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 800, third.Len())
	assert.Equal(t, uint64(1), d.CacheHits())
}

func TestDecode_CacheDisabled(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "plain.wav")
	writeWAV(t, path, 16000, 16, 1, sine16(100, 1))

	d := New(WithCacheTTL(0))
	a, err := d.Decode(t.Context(), path)
	require.NoError(t, err)
	b, err := d.Decode(t.Context(), path)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.True(t, audio.Equal(a, b))
	assert.Zero(t, d.CacheHits())
}

func TestParseProbe(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		output  string
		want    streamInfo
		wantErr bool
	}{
		{"stereo", "44100,2\n", streamInfo{44100, 2}, false},
		{"surround", "48000,6", streamInfo{48000, 6}, false},
		{"leading noise", "N/A\n22050,1\n", streamInfo{22050, 1}, false},
		{"empty", "", streamInfo{}, true},
		{"zero rate", "0,2\n", streamInfo{}, true},
	}
	for _, tt := range tests {
		got, err := parseProbe(tt.output)
		if tt.wantErr {
			assert.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestPCMSample(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   []byte
		want int32
	}{
		{[]byte{0x80}, -128},
		{[]byte{0xff, 0x7f}, 32767},
		{[]byte{0x00, 0x80}, -32768},
		{[]byte{0xff, 0xff, 0x7f}, 8388607},
		{[]byte{0x00, 0x00, 0x80}, -8388608},
		{[]byte{0xff, 0xff, 0xff}, -1},
		{[]byte{0x00, 0x00, 0x00, 0x80}, math.MinInt32},
		{[]byte{}, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pcmSample(tt.in), "% x", tt.in)
	}
}

func TestDecodeF32LE(t *testing.T) {
	t.Parallel()
	raw := make([]byte, 0, 13)
	for _, v := range []float32{0.5, -1, 0.25} {
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v))
	}
	raw = append(raw, 0x01) // partial trailing sample
	assert.Equal(t, []float32{0.5, -1, 0.25}, decodeF32LE(raw))
}

func TestDownmixStereo(t *testing.T) {
	t.Parallel()
	in := []float32{1, 0, 1, 0, 0.5} // 5 channels, one frame
	out, f := downmixStereo(in, audio.Format{SampleRate: 8000, Channels: 5})
	assert.Equal(t, 2, f.Channels)
	assert.InDelta(t, 2.5/3, out[0], 1e-6)
	assert.InDelta(t, 0.0, out[1], 1e-6)

	mono := []float32{0.1, 0.2}
	same, f := downmixStereo(mono, audio.Format{SampleRate: 8000, Channels: 1})
	assert.Equal(t, mono, same)
	assert.Equal(t, 1, f.Channels)
}

func TestDecode_FailingSubprocess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in for ffmpeg")
	}
	dir := t.TempDir()
	tool := filepath.Join(dir, "fake-ffmpeg")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\necho boom >&2\nexit 3\n"), 0o700)) //nolint:gosec // test executable
	input := filepath.Join(dir, "clip.ogg")
	require.NoError(t, os.WriteFile(input, []byte("OggS"), 0o600))

	d := New(WithCacheTTL(0), WithFFmpegPath(tool), WithFFprobePath(tool))
	_, err := d.Decode(t.Context(), input)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDecode)
	assert.True(t, errors.IsCategory(err, errors.CategoryCommandExecution), "category of %v", err)
	assert.Contains(t, err.Error(), "boom")
}
