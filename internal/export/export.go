// Package export writes processed audio to disk as 16-bit PCM WAV.
package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/voiceforge/internal/audio"
	"github.com/tphakala/voiceforge/internal/errors"
)

// ComponentExport identifies errors raised while exporting
const ComponentExport = "export"

// Output format
const (
	BitDepth      = 16
	wavFormatPCM  = 1
	pcmScale      = 32767.0
	processedTag  = "_processed"
	maxNameSuffix = 9999
)

// ErrExport wraps every export failure
var ErrExport = errors.New(errors.NewStd("export failed")).
	Component(ComponentExport).
	Category(errors.CategoryFileIO).
	Build()

func exportError(path string, err error) error {
	return errors.New(fmt.Errorf("%w: %w", ErrExport, err)).
		Component(ComponentExport).
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}

// WriteWAV writes buf to path as 16-bit PCM with gainDB applied. Samples are
// clamped to [-1, 1] before quantization. Parent directories are created.
func WriteWAV(path string, buf *audio.Buffer, gainDB float64) error {
	if buf == nil || buf.Len() == 0 {
		return exportError(path, fmt.Errorf("no audio to export"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return exportError(path, fmt.Errorf("failed to create directories: %w", err))
	}

	f, err := os.Create(path) //nolint:gosec // G304: user chosen export path
	if err != nil {
		return exportError(path, fmt.Errorf("failed to create file: %w", err))
	}

	enc := wav.NewEncoder(f, buf.SampleRate(), BitDepth, buf.Channels(), wavFormatPCM)
	ints := &goaudio.IntBuffer{
		Data:           quantize(buf.Samples(), gainDB),
		Format:         &goaudio.Format{SampleRate: buf.SampleRate(), NumChannels: buf.Channels()},
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(ints); err != nil {
		_ = f.Close()
		return exportError(path, fmt.Errorf("failed to write to WAV encoder: %w", err))
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return exportError(path, fmt.Errorf("failed to finalize WAV: %w", err))
	}
	if err := f.Close(); err != nil {
		return exportError(path, err)
	}
	return nil
}

// quantize converts float samples to 16-bit integers after gain and clamping
func quantize(samples []float32, gainDB float64) []int {
	gain := math.Pow(10, gainDB/20)
	out := make([]int, len(samples))
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)*gain))
		out[i] = int(math.Round(v * pcmScale))
	}
	return out
}

// DefaultPath returns an unused "<stem>_processed.wav" next to src
func DefaultPath(src string) (string, error) {
	return PathIn(filepath.Dir(src), src)
}

// PathIn returns an unused "<stem>_processed.wav" in dir. When the name is
// taken a numeric suffix from 2 up is appended.
func PathIn(dir, src string) (string, error) {
	base := filepath.Base(src)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "output"
	}

	candidate := filepath.Join(dir, stem+processedTag+".wav")
	for n := 2; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
		if n > maxNameSuffix {
			return "", exportError(candidate, fmt.Errorf("no free file name after %d attempts", maxNameSuffix))
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s%s_%d.wav", stem, processedTag, n))
	}
}
