// Package session wires configuration into running VoiceForge components:
// the interactive player, the offline renderer and the device listing.
package session

import (
	"log/slog"

	"github.com/tphakala/voiceforge/internal/conf"
	"github.com/tphakala/voiceforge/internal/decoder"
	"github.com/tphakala/voiceforge/internal/errors"
	"github.com/tphakala/voiceforge/internal/export"
	"github.com/tphakala/voiceforge/internal/logging"
	"github.com/tphakala/voiceforge/internal/observability"
	"github.com/tphakala/voiceforge/internal/orchestrator"
	"github.com/tphakala/voiceforge/internal/vocoder"
	"github.com/tphakala/voiceforge/internal/worker"
)

// ComponentSession identifies errors raised while wiring a session
const ComponentSession = "session"

// DeviceNone disables the output device
const DeviceNone = "none"

func serviceLogger() *slog.Logger {
	if l := logging.ForService("session"); l != nil {
		return l
	}
	return slog.Default()
}

func newEngine(settings *conf.Settings) (*vocoder.Engine, error) {
	backend, err := vocoder.NewBackend(settings.Processing.Backend)
	if err != nil {
		return nil, errors.New(err).
			Component(ComponentSession).
			Category(errors.CategoryConfiguration).
			Context("backend", settings.Processing.Backend).
			Build()
	}
	return vocoder.NewEngine(vocoder.WithBackend(backend)), nil
}

func newDecoder(settings *conf.Settings, m *observability.Metrics) *decoder.Decoder {
	opts := []decoder.Option{
		decoder.WithFFmpegPath(settings.Decoder.FFmpegPath),
		decoder.WithFFprobePath(settings.Decoder.FFprobePath),
		decoder.WithCacheTTL(settings.Decoder.CacheTTL),
	}
	if m != nil {
		opts = append(opts, decoder.WithCacheObserver(m.Session))
	}
	return decoder.New(opts...)
}

func workerOptions(settings *conf.Settings, m *observability.Metrics) []worker.Option {
	opts := []worker.Option{worker.WithQueueSize(settings.Processing.QueueSize)}
	if m != nil {
		opts = append(opts, worker.WithObserver(m.Worker))
	}
	return opts
}

func orchestratorOptions(settings *conf.Settings, m *observability.Metrics) []orchestrator.Option {
	opts := []orchestrator.Option{
		orchestrator.WithDebounce(settings.Processing.Debounce),
		orchestrator.WithAutoplay(settings.Processing.Autoplay),
		orchestrator.WithLooping(settings.Playback.Loop),
	}
	if m != nil {
		opts = append(opts, orchestrator.WithObserver(m.Session))
	}
	return opts
}

// exportPath picks a non-clobbering output path for source, honouring
// export.dir when set.
func exportPath(settings *conf.Settings, source string) (string, error) {
	if source == "" {
		source = "voiceforge"
	}
	if settings.Export.Dir != "" {
		return export.PathIn(settings.Export.Dir, source)
	}
	return export.DefaultPath(source)
}
