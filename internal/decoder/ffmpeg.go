package decoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/tphakala/voiceforge/internal/audio"
	"github.com/tphakala/voiceforge/internal/errors"
)

var lookPath = exec.LookPath

// errCommand marks failures of the ffmpeg and ffprobe subprocesses
var errCommand = errors.NewStd("external command failed")

// streamInfo is the subset of ffprobe output the decoder needs
type streamInfo struct {
	SampleRate int
	Channels   int
}

// probe asks ffprobe for the first audio stream's rate and channel count
func probe(ctx context.Context, ffprobe, path string) (streamInfo, error) {
	cmd := exec.CommandContext(ctx, ffprobe, //nolint:gosec // G204: binary from settings, args are fixed
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=sample_rate,channels",
		"-of", "csv=p=0",
		path)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return streamInfo{}, ctx.Err()
		}
		return streamInfo{}, fmt.Errorf("%w: ffprobe: %w (stderr: %s)", errCommand, err, strings.TrimSpace(stderr.String()))
	}
	return parseProbe(out.String())
}

// parseProbe reads "sample_rate,channels" from ffprobe csv output
func parseProbe(output string) (streamInfo, error) {
	for line := range strings.Lines(output) {
		fields := strings.Split(strings.TrimSpace(line), ",")
		if len(fields) < 2 {
			continue
		}
		rate, err1 := strconv.Atoi(fields[0])
		channels, err2 := strconv.Atoi(fields[1])
		if err1 == nil && err2 == nil && rate > 0 && channels > 0 {
			return streamInfo{SampleRate: rate, Channels: channels}, nil
		}
	}
	return streamInfo{}, fmt.Errorf("no audio stream found")
}

// readFFmpeg decodes any format ffmpeg understands to float PCM at the
// source rate. Sources with more than two channels are down-mixed by ffmpeg.
func readFFmpeg(ctx context.Context, ffmpeg, ffprobe, path string) ([]float32, audio.Format, error) {
	info, err := probe(ctx, ffprobe, path)
	if err != nil {
		return nil, audio.Format{}, err
	}
	channels := min(info.Channels, 2)

	cmd := exec.CommandContext(ctx, ffmpeg, //nolint:gosec // G204: binary from settings, args are fixed
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(info.SampleRate),
		"pipe:1")

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, audio.Format{}, ctx.Err()
		}
		return nil, audio.Format{}, fmt.Errorf("%w: ffmpeg: %w (stderr: %s)", errCommand, err, strings.TrimSpace(stderr.String()))
	}

	samples := decodeF32LE(out.Bytes())
	// Drop a trailing partial frame
	samples = samples[:len(samples)-len(samples)%channels]
	return samples, audio.Format{SampleRate: info.SampleRate, Channels: channels}, nil
}

func decodeF32LE(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
