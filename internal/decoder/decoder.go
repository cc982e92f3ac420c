// Package decoder turns audio files into float PCM buffers. WAV and FLAC are
// decoded natively, everything else goes through an ffmpeg subprocess.
// Decoded buffers are cached by path, modification time and size.
package decoder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/voiceforge/internal/audio"
	"github.com/tphakala/voiceforge/internal/errors"
	"github.com/tphakala/voiceforge/internal/logging"
)

// Defaults
const (
	DefaultCacheTTL     = 10 * time.Minute
	DefaultCacheEntries = 4
	DefaultFFmpegPath   = "ffmpeg"
	DefaultFFprobePath  = "ffprobe"
)

// CacheObserver is told about cache hits
type CacheObserver interface {
	DecodeCacheHit()
}

// Option configures a Decoder
type Option func(*Decoder)

// WithFFmpegPath sets the ffmpeg binary used for formats without a native decoder
func WithFFmpegPath(path string) Option {
	return func(d *Decoder) {
		if path != "" {
			d.ffmpeg = path
		}
	}
}

// WithFFprobePath sets the ffprobe binary
func WithFFprobePath(path string) Option {
	return func(d *Decoder) {
		if path != "" {
			d.ffprobe = path
		}
	}
}

// WithCacheTTL sets how long decoded buffers stay cached. Zero disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(d *Decoder) {
		d.ttl = ttl
	}
}

// WithCacheObserver installs a cache hit observer
func WithCacheObserver(o CacheObserver) Option {
	return func(d *Decoder) { d.observer = o }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// Decoder decodes files into audio buffers. It is safe for concurrent use.
type Decoder struct {
	ffmpeg   string
	ffprobe  string
	ttl      time.Duration
	cache    *cache.Cache
	observer CacheObserver
	logger   *slog.Logger

	hits atomic.Uint64
}

// New creates a decoder
func New(opts ...Option) *Decoder {
	d := &Decoder{
		ffmpeg:  DefaultFFmpegPath,
		ffprobe: DefaultFFprobePath,
		ttl:     DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logging.ForService("decoder")
		if d.logger == nil {
			d.logger = slog.Default()
		}
	}
	if d.ttl > 0 {
		// No janitor goroutine; expired entries are pruned on insert.
		d.cache = cache.New(d.ttl, 0)
	}
	return d
}

var defaultDecoder = New(WithCacheTTL(0))

// Decode decodes path with an uncached default decoder
func Decode(ctx context.Context, path string) (*audio.Buffer, error) {
	return defaultDecoder.Decode(ctx, path)
}

// CacheHits returns how many Decode calls were served from the cache
func (d *Decoder) CacheHits() uint64 {
	return d.hits.Load()
}

// Decode reads path into a buffer with one or two channels at the file's
// own sample rate.
func (d *Decoder) Decode(ctx context.Context, path string) (*audio.Buffer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentDecoder).
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	if info.IsDir() {
		return nil, errors.Newf("%s is a directory", path).
			Component(ComponentDecoder).
			Category(errors.CategoryFileIO).
			Build()
	}

	key := cacheKey(path, info)
	if d.cache != nil {
		if v, ok := d.cache.Get(key); ok {
			d.hits.Add(1)
			if d.observer != nil {
				d.observer.DecodeCacheHit()
			}
			d.logger.Debug("decode cache hit", slog.String("path", path))
			return v.(*audio.Buffer), nil
		}
	}

	start := time.Now()
	buf, err := d.decode(ctx, path)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("decoded audio file",
		slog.String("path", path),
		slog.Int("frames", buf.Len()),
		slog.Duration("elapsed", time.Since(start)))

	if d.cache != nil {
		d.cache.DeleteExpired()
		if d.cache.ItemCount() >= DefaultCacheEntries {
			d.cache.Flush()
		}
		d.cache.Set(key, buf, cache.DefaultExpiration)
	}
	return buf, nil
}

func (d *Decoder) decode(ctx context.Context, path string) (*audio.Buffer, error) {
	var (
		samples []float32
		format  audio.Format
		err     error
		kind    string
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav", ".wave":
		kind = "wav"
		samples, format, err = withFile(path, func(f *os.File) ([]float32, audio.Format, error) {
			return readWAV(f)
		})
	case ".flac":
		kind = "flac"
		samples, format, err = withFile(path, func(f *os.File) ([]float32, audio.Format, error) {
			return readFLAC(f)
		})
	default:
		kind = "ffmpeg"
		if _, lookErr := lookPath(d.ffmpeg); lookErr != nil {
			return nil, unsupported(path, fmt.Sprintf("%s needs ffmpeg: %v", ext, lookErr))
		}
		samples, format, err = readFFmpeg(ctx, d.ffmpeg, d.ffprobe, path)
	}
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) {
			return nil, errors.New(err).
				Component(ComponentDecoder).
				Category(errors.CategoryValidation).
				Context("path", path).
				Build()
		}
		return nil, decodeError(path, kind, err)
	}
	if len(samples) == 0 {
		return nil, decodeError(path, kind, fmt.Errorf("no audio samples"))
	}

	samples = samples[:len(samples)-len(samples)%format.Channels]
	samples, format = downmixStereo(samples, format)
	buf, err := audio.NewBuffer(format, samples)
	if err != nil {
		return nil, decodeError(path, kind, err)
	}
	return buf, nil
}

func withFile(path string, read func(*os.File) ([]float32, audio.Format, error)) ([]float32, audio.Format, error) {
	f, err := os.Open(path) //nolint:gosec // G304: user selected input file
	if err != nil {
		return nil, audio.Format{}, err
	}
	defer func() { _ = f.Close() }()
	return read(f)
}

func cacheKey(path string, info os.FileInfo) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size())
}

// downmixStereo folds more than two channels into two by averaging even
// channels into the left output and odd channels into the right.
func downmixStereo(samples []float32, format audio.Format) ([]float32, audio.Format) {
	ch := format.Channels
	if ch <= 2 {
		return samples, format
	}
	frames := len(samples) / ch
	left := float32((ch + 1) / 2)
	right := float32(ch / 2)
	out := make([]float32, frames*2)
	for i := range frames {
		var l, r float32
		for c := range ch {
			if c%2 == 0 {
				l += samples[i*ch+c]
			} else {
				r += samples[i*ch+c]
			}
		}
		out[i*2] = l / left
		out[i*2+1] = r / right
	}
	return out, audio.Format{SampleRate: format.SampleRate, Channels: 2}
}
