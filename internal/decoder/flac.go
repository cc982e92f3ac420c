package decoder

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tphakala/flac"

	"github.com/tphakala/voiceforge/internal/audio"
)

// readFLAC decodes a FLAC stream. Frames arrive as interleaved little endian
// integer PCM at the stream bit depth.
func readFLAC(r io.Reader) (samples []float32, format audio.Format, err error) {
	d, err := flac.NewDecoder(r)
	if err != nil {
		return nil, audio.Format{}, err
	}
	if d.NChannels < 1 || d.SampleRate <= 0 {
		return nil, audio.Format{}, fmt.Errorf("invalid stream info: %d channels at %d Hz", d.NChannels, d.SampleRate)
	}
	divisor, err := pcmDivisor(d.BitsPerSample)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	width := d.BitsPerSample / 8
	if d.TotalSamples > 0 {
		samples = make([]float32, 0, int(d.TotalSamples)*d.NChannels)
	}

	for {
		frame, err := d.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, audio.Format{}, err
		}
		for i := 0; i+width <= len(frame); i += width {
			samples = append(samples, float32(pcmSample(frame[i:i+width]))/divisor)
		}
	}

	return samples, audio.Format{SampleRate: d.SampleRate, Channels: d.NChannels}, nil
}

// pcmSample reads one signed little endian sample of len(b) bytes
func pcmSample(b []byte) int32 {
	switch len(b) {
	case 1:
		return int32(int8(b[0]))
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(b)))
	case 3:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		return v << 8 >> 8
	case 4:
		return int32(binary.LittleEndian.Uint32(b))
	default:
		return 0
	}
}
