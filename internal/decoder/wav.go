package decoder

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/voiceforge/internal/audio"
)

// wavChunkFrames is how many frames are pulled from the decoder per read
const wavChunkFrames = 8192

// wavFormatPCM is the WAVE_FORMAT_PCM tag; float and compressed WAVs go to ffmpeg
const wavFormatPCM = 1

// pcmDivisor returns the int to float scale for a bit depth
func pcmDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8:
		return 128.0, nil
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}

// readWAV decodes an integer PCM WAV stream
func readWAV(r io.ReadSeeker) (samples []float32, format audio.Format, err error) {
	d := wav.NewDecoder(r)
	d.ReadInfo()
	if !d.IsValidFile() {
		return nil, audio.Format{}, fmt.Errorf("invalid WAV file format")
	}
	if d.WavAudioFormat != wavFormatPCM {
		return nil, audio.Format{}, fmt.Errorf("%w: WAV encoding %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}
	channels := int(d.NumChans)
	if channels < 1 {
		return nil, audio.Format{}, fmt.Errorf("invalid channel count: %d", channels)
	}
	if d.BitDepth != 16 && d.BitDepth != 24 && d.BitDepth != 32 {
		return nil, audio.Format{}, fmt.Errorf("%w: bit depth %d", ErrUnsupportedFormat, d.BitDepth)
	}
	divisor, err := pcmDivisor(int(d.BitDepth))
	if err != nil {
		return nil, audio.Format{}, err
	}

	buf := &goaudio.IntBuffer{
		Data:   make([]int, wavChunkFrames*channels),
		Format: &goaudio.Format{SampleRate: int(d.SampleRate), NumChannels: channels},
	}
	for {
		n, err := d.PCMBuffer(buf)
		if err != nil {
			return nil, audio.Format{}, err
		}
		if n == 0 {
			break
		}
		for _, s := range buf.Data[:n] {
			samples = append(samples, float32(s)/divisor)
		}
	}

	return samples, audio.Format{SampleRate: int(d.SampleRate), Channels: channels}, nil
}
