// Package audio defines the immutable PCM buffer shared between the decoder,
// the processing worker, the playback callback and the exporter.
package audio

import (
	"fmt"
	"math"
	"time"

	"github.com/tphakala/voiceforge/internal/errors"
)

// ComponentAudio identifies errors raised by this package
const ComponentAudio = "audio"

// Format describes interleaved float PCM
type Format struct {
	SampleRate int // Sample rate in Hz (e.g., 44100)
	Channels   int // Number of channels (1 for mono, 2 for stereo)
}

// Validate checks that the format can back a Buffer.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return errors.Newf("invalid sample rate %d", f.SampleRate).
			Component(ComponentAudio).
			Category(errors.CategoryValidation).
			Build()
	}
	if f.Channels != 1 && f.Channels != 2 {
		return errors.Newf("invalid channel count %d", f.Channels).
			Component(ComponentAudio).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Buffer is an immutable block of interleaved float32 samples.
//
// A Buffer is never mutated after construction. It is shared by pointer and
// stays alive for as long as any holder references it, so a reader that
// obtained a *Buffer may keep using it after the producer has moved on.
type Buffer struct {
	format  Format
	samples []float32
}

// NewBuffer wraps samples in a Buffer. The buffer takes ownership of samples;
// the caller must not modify the slice afterwards.
func NewBuffer(format Format, samples []float32) (*Buffer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if len(samples)%format.Channels != 0 {
		return nil, errors.Newf("sample count %d is not a multiple of %d channels", len(samples), format.Channels).
			Component(ComponentAudio).
			Category(errors.CategoryValidation).
			Build()
	}
	return &Buffer{format: format, samples: samples}, nil
}

// NewBufferCopy is NewBuffer on a private copy of samples.
func NewBufferCopy(format Format, samples []float32) (*Buffer, error) {
	owned := make([]float32, len(samples))
	copy(owned, samples)
	return NewBuffer(format, owned)
}

// MustBuffer is NewBuffer that panics on an invalid format. Intended for tests
// and constant fixtures.
func MustBuffer(format Format, samples []float32) *Buffer {
	b, err := NewBuffer(format, samples)
	if err != nil {
		panic(err)
	}
	return b
}

// Format returns the sample format
func (b *Buffer) Format() Format { return b.format }

// SampleRate returns the sample rate in Hz
func (b *Buffer) SampleRate() int { return b.format.SampleRate }

// Channels returns the channel count
func (b *Buffer) Channels() int { return b.format.Channels }

// Len returns the number of frames.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.samples) / b.format.Channels
}

// Samples returns the interleaved backing slice. It must be treated as read-only.
func (b *Buffer) Samples() []float32 {
	if b == nil {
		return nil
	}
	return b.samples
}

// Duration returns the playback length
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.format.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(b.Len()) / float64(b.format.SampleRate) * float64(time.Second))
}

// Mono returns a down-mixed copy, or b itself when it is already mono.
func (b *Buffer) Mono() *Buffer {
	if b.format.Channels == 1 {
		return b
	}
	frames := b.Len()
	out := make([]float32, frames)
	ch := b.format.Channels
	for i := range frames {
		var sum float32
		for c := range ch {
			sum += b.samples[i*ch+c]
		}
		out[i] = sum / float32(ch)
	}
	return &Buffer{format: Format{SampleRate: b.format.SampleRate, Channels: 1}, samples: out}
}

// Float64 returns the mono signal as float64, the precision the vocoder works in.
func (b *Buffer) Float64() []float64 {
	mono := b.Mono()
	out := make([]float64, len(mono.samples))
	for i, s := range mono.samples {
		out[i] = float64(s)
	}
	return out
}

// FromFloat64 builds a mono buffer from float64 samples, clamping to [-1, 1].
// Non-finite samples are rejected.
func FromFloat64(sampleRate int, samples []float64) (*Buffer, error) {
	out := make([]float32, len(samples))
	for i, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, errors.Newf("non-finite sample at index %d", i).
				Component(ComponentAudio).
				Category(errors.CategoryValidation).
				Build()
		}
		out[i] = float32(max(-1, min(1, s)))
	}
	return NewBuffer(Format{SampleRate: sampleRate, Channels: 1}, out)
}

// Equal reports whether two buffers carry the same format and samples.
func Equal(a, b *Buffer) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.format != b.format || len(a.samples) != len(b.samples) {
		return false
	}
	for i := range a.samples {
		if a.samples[i] != b.samples[i] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer for log attributes
func (b *Buffer) String() string {
	if b == nil {
		return "<nil buffer>"
	}
	return fmt.Sprintf("%d frames @ %d Hz x%d", b.Len(), b.format.SampleRate, b.format.Channels)
}
