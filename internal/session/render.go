package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tphakala/voiceforge/internal/audio"
	"github.com/tphakala/voiceforge/internal/conf"
	"github.com/tphakala/voiceforge/internal/control"
	"github.com/tphakala/voiceforge/internal/errors"
	"github.com/tphakala/voiceforge/internal/export"
	"github.com/tphakala/voiceforge/internal/orchestrator"
	"github.com/tphakala/voiceforge/internal/pipeline"
)

// progressStep is the analysis progress logging interval in percent
const progressStep = 10

// RenderOptions select the input, output and slider settings of an
// offline render.
type RenderOptions struct {
	Input  string
	Output string   // empty picks <stem>_processed.wav
	Sets   []string // "<slider>=<value>"
	Bypass bool
}

// ParseSets applies "<slider>=<value>" assignments on top of the defaults
func ParseSets(sets []string) (pipeline.Values, error) {
	values := pipeline.DefaultValues()
	for _, s := range sets {
		a, err := control.Parse("set " + s)
		if err != nil {
			return values, err
		}
		set, ok := a.(orchestrator.SetSlider)
		if !ok {
			return values, errors.Newf("invalid slider assignment %q", s).
				Component(ComponentSession).
				Category(errors.CategoryValidation).
				Build()
		}
		if _, _, err := values.Set(set.ID, set.Value); err != nil {
			return values, err
		}
	}
	return values, nil
}

// Render decodes opts.Input, runs it through the vocoder and effects with
// the requested slider values and writes a WAV file. It returns the path
// written.
func Render(ctx context.Context, settings *conf.Settings, opts RenderOptions) (string, error) {
	logger := serviceLogger()
	values, err := ParseSets(opts.Sets)
	if err != nil {
		return "", err
	}
	values.Voice.Bypass = opts.Bypass

	engine, err := newEngine(settings)
	if err != nil {
		return "", err
	}

	start := time.Now()
	buf, err := newDecoder(settings, nil).Decode(ctx, opts.Input)
	if err != nil {
		return "", err
	}
	logger.Info("decoded input",
		slog.String("path", opts.Input),
		slog.Int("sample_rate", buf.SampleRate()),
		slog.Duration("duration", buf.Duration()),
		slog.String("settings", describeValues(values)))

	voiced := buf.Mono()
	if !values.Voice.Bypass && !values.Voice.IsNeutral() {
		next := 0
		frames, err := engine.Analyze(ctx, buf, func(pct int) {
			if pct >= next {
				next = pct - pct%progressStep + progressStep
				logger.Info("analyzing", slog.Int("percent", pct))
			}
		})
		if err != nil {
			return "", err
		}
		logger.Info("synthesizing", slog.Int("frames", frames.Len()))
		voiced, err = engine.Synthesize(ctx, pipeline.Apply(frames, values.Voice))
		if err != nil {
			return "", err
		}
	}

	out := voiced
	if !values.Effects.IsNeutral() {
		logger.Info("applying effects")
		samples := pipeline.ApplyEffects(voiced.Samples(), voiced.SampleRate(), values.Effects)
		if out, err = audio.NewBuffer(voiced.Format(), samples); err != nil {
			return "", err
		}
	}

	path := opts.Output
	if path == "" {
		if path, err = exportPath(settings, opts.Input); err != nil {
			return "", err
		}
	}
	if err := export.WriteWAV(path, out, values.Effects.Gain); err != nil {
		return "", err
	}
	logger.Info("render complete",
		slog.String("output", path),
		slog.Int("frames", out.Len()),
		slog.Duration("elapsed", time.Since(start)))
	return path, nil
}

// describeValues lists the sliders that differ from their defaults
func describeValues(v pipeline.Values) string {
	var b strings.Builder
	for _, d := range pipeline.Sliders() {
		if cur, _ := v.Get(d.ID); cur != d.Default {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%s=%g", d.ID, cur)
		}
	}
	if v.Voice.Bypass {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("bypass")
	}
	return b.String()
}
