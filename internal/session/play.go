package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/voiceforge/internal/conf"
	"github.com/tphakala/voiceforge/internal/control"
	"github.com/tphakala/voiceforge/internal/errors"
	"github.com/tphakala/voiceforge/internal/export"
	"github.com/tphakala/voiceforge/internal/observability"
	"github.com/tphakala/voiceforge/internal/orchestrator"
	"github.com/tphakala/voiceforge/internal/playback"
	"github.com/tphakala/voiceforge/internal/spectrum"
	"github.com/tphakala/voiceforge/internal/worker"
)

// Loop timing
const (
	TickInterval    = 33 * time.Millisecond
	shutdownTimeout = 10 * time.Second
)

// player runs one interactive session. Everything except the line reader
// runs on the loop goroutine.
type player struct {
	settings *conf.Settings
	o        *orchestrator.Orchestrator
	out      outputDevice
	display  io.Writer
	logger   *slog.Logger

	analyzer *spectrum.Analyzer
	window   []float32

	deviceRate int
	lastLine   string
}

// Play loads path (when set) and runs the interactive control loop, reading
// commands from in and drawing status lines to display, until a quit
// command, the end of in, or ctx is done.
func Play(ctx context.Context, settings *conf.Settings, path string, in io.Reader, display io.Writer) (err error) {
	// Short ID to tell sessions apart in a shared log file
	logger := serviceLogger().With("session_id", uuid.New().String()[:8])
	logger.Info("session started", slog.String("file", path), slog.String("device", settings.Audio.Device))
	out := playback.NewPlayer(settings.Audio.Channels, settings.Audio.TapSize)

	var m *observability.Metrics
	if settings.Metrics.Enabled {
		if m, err = observability.NewMetrics(out); err != nil {
			return err
		}
		errors.SetReporter(m.Errors)
		defer errors.SetReporter(nil)
	}

	engine, err := newEngine(settings)
	if err != nil {
		return err
	}
	analyzer, err := spectrum.NewAnalyzer(settings.Audio.TapSize)
	if err != nil {
		return err
	}

	w := worker.New(engine, newDecoder(settings, m), workerOptions(settings, m)...)
	if err := w.Start(ctx); err != nil {
		return err
	}
	o := orchestrator.New(w, out, orchestratorOptions(settings, m)...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, o.Close(closeCtx))
	}()

	p := &player{
		settings: settings,
		o:        o,
		out:      out,
		display:  display,
		logger:   logger,
		analyzer: analyzer,
		window:   make([]float32, analyzer.Size()),
	}

	if path != "" {
		if err := o.Dispatch(orchestrator.LoadFile{Path: path}); err != nil {
			return err
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(loopCtx)
	if m != nil {
		endpoint := observability.NewEndpoint(settings.Metrics.Listen, m)
		g.Go(func() error { return endpoint.Run(gctx) })
	}
	lines := readLines(gctx, in)
	g.Go(func() error {
		defer cancel()
		return p.loop(gctx, lines)
	})
	return g.Wait()
}

// readLines forwards lines from in until EOF or ctx is done. The channel
// closes at EOF.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

func (p *player) loop(ctx context.Context, lines <-chan string) error {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	defer fmt.Fprintln(p.display)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			p.handleLine(line)
		case now := <-ticker.C:
			p.o.Tick(now)
			p.ensureDevice()
			p.draw()
		}
		if p.o.Quitting() {
			return nil
		}
	}
}

func (p *player) handleLine(line string) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "help", "?", "h":
		fmt.Fprintf(p.display, "\n%s\n", control.Usage)
		return
	case "sliders":
		fmt.Fprintf(p.display, "\n%s", control.SliderHelp())
		return
	}

	a, err := control.Parse(line)
	if err != nil {
		p.o.SetStatus(err.Error())
		return
	}
	if a == nil {
		return
	}
	if e, ok := a.(orchestrator.Export); ok {
		p.export(e.Path)
		return
	}
	if err := p.o.Dispatch(a); err != nil {
		p.logger.Debug("action rejected", slog.Any("error", err))
	}
}

// export writes the selected buffer with the live gain applied
func (p *player) export(path string) {
	buf, ok := p.o.ExportSnapshot()
	if !ok {
		p.o.SetStatus("Nothing to export")
		return
	}
	st := p.o.Snapshot()
	if path == "" {
		var err error
		if path, err = exportPath(p.settings, st.Source); err != nil {
			p.o.SetStatus("Export error: " + err.Error())
			return
		}
	}
	if err := export.WriteWAV(path, buf, st.Values.Effects.Gain); err != nil {
		p.logger.Error("export failed", slog.String("path", path), slog.Any("error", err))
		p.o.SetStatus("Export error: " + err.Error())
		return
	}
	p.logger.Info("exported audio", slog.String("path", path), slog.Int("frames", buf.Len()))
	p.o.SetStatus("Exported " + path)
}

// outputDevice is the device side of playback.Player
type outputDevice interface {
	Open(cfg playback.DeviceConfig) error
	Close() error
	DeviceName() string
	SetPlaying(on bool)
}

// ensureDevice opens the output device once the sample rate is known and
// reopens it when a new file changes the rate, resuming output if it was
// playing.
func (p *player) ensureDevice() {
	name := p.settings.Audio.Device
	if strings.EqualFold(name, DeviceNone) {
		return
	}
	st := p.o.Snapshot()
	rate := p.settings.Audio.SampleRate
	if rate == 0 {
		rate = st.SampleRate
	}
	if rate == 0 || rate == p.deviceRate {
		return
	}
	if p.deviceRate != 0 {
		if err := p.out.Close(); err != nil {
			p.logger.Warn("closing output device", slog.Any("error", err))
		}
	}
	p.deviceRate = rate
	if err := p.out.Open(playback.DeviceConfig{Name: name, SampleRate: rate}); err != nil {
		p.logger.Error("audio device unavailable", slog.String("device", name), slog.Any("error", err))
		p.o.SetStatus("Audio device error: " + err.Error())
		return
	}
	// Close stops the renderer; the orchestrator still considers it playing
	if st.Playing {
		p.out.SetPlaying(true)
	}
	p.logger.Info("audio device opened",
		slog.String("device", p.out.DeviceName()),
		slog.Int("sample_rate", rate))
}

func (p *player) draw() {
	st := p.o.Snapshot()
	bar := ""
	if st.Playing && st.SampleRate > 0 {
		n := p.o.TapWindow(p.window)
		db := p.analyzer.Compute(p.window[:n])
		bar = spectrumBar(spectrum.Bands(db, st.SampleRate, spectrumBands))
	}
	line := statusLine(st, bar)
	if line == p.lastLine {
		return
	}
	p.lastLine = line
	fmt.Fprintf(p.display, "\r%s\x1b[K", line)
}
