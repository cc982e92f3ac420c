// Package control parses the line-oriented command language of the
// interactive player into orchestrator actions.
package control

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tphakala/voiceforge/internal/errors"
	"github.com/tphakala/voiceforge/internal/orchestrator"
	"github.com/tphakala/voiceforge/internal/pipeline"
)

// ComponentControl identifies errors raised while parsing commands
const ComponentControl = "control"

// ErrUnknownCommand is returned for a line that does not parse
var ErrUnknownCommand = errors.New(errors.NewStd("unknown command")).
	Component(ComponentControl).
	Category(errors.CategoryValidation).
	Build()

// Usage lists the accepted commands
const Usage = `commands:
  play | pause | p          toggle playback
  seek <+/-seconds>         move the playhead
  rewind                    jump to the start
  set <slider> <value>      set a slider (also set <slider>=<value>)
  nudge <slider> <steps>    move a slider by whole steps
  reset                     reset every slider
  bypass                    toggle the vocoder stage
  ab                        compare original and processed
  loop                      toggle looping
  load <path>               open a file
  export [path]             write the processed audio
  sliders                   list slider names
  quit | q                  exit`

// Parse turns one input line into an action. Blank lines yield a nil action
// and a nil error.
func Parse(line string) (orchestrator.Action, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch strings.ToLower(verb) {
	case "play", "pause", "p", "space":
		return orchestrator.PlayPause{}, nil
	case "seek", "s":
		if len(args) != 1 {
			return nil, usageError(line, "seek needs one offset in seconds")
		}
		d, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return nil, usageError(line, "bad seek offset")
		}
		return orchestrator.Seek{DeltaSeconds: d}, nil
	case "rewind", "home":
		return orchestrator.Rewind{}, nil
	case "set":
		id, value, err := sliderArgs(line, args)
		if err != nil {
			return nil, err
		}
		return orchestrator.SetSlider{ID: id, Value: value}, nil
	case "nudge", "adjust":
		id, steps, err := sliderArgs(line, args)
		if err != nil {
			return nil, err
		}
		return orchestrator.AdjustSlider{ID: id, Steps: steps}, nil
	case "reset":
		return orchestrator.ResetSliders{}, nil
	case "bypass":
		return orchestrator.ToggleBypass{}, nil
	case "ab", "a/b", "compare":
		return orchestrator.ToggleAB{}, nil
	case "loop", "l":
		return orchestrator.ToggleLoop{}, nil
	case "load", "open":
		if rest == "" {
			return nil, usageError(line, "load needs a path")
		}
		return orchestrator.LoadFile{Path: unquote(rest)}, nil
	case "export", "save", "e":
		return orchestrator.Export{Path: unquote(rest)}, nil
	case "quit", "exit", "q":
		return orchestrator.Shutdown{}, nil
	}
	return nil, usageError(line, "")
}

// sliderArgs accepts "<id> <value>" and "<id>=<value>"
func sliderArgs(line string, args []string) (pipeline.SliderID, float64, error) {
	if len(args) == 1 {
		if k, v, ok := strings.Cut(args[0], "="); ok {
			args = []string{k, v}
		}
	}
	if len(args) != 2 {
		return "", 0, usageError(line, "expected <slider> <value>")
	}
	def, ok := pipeline.LookupSlider(pipeline.SliderID(args[0]))
	if !ok {
		return "", 0, usageError(line, fmt.Sprintf("unknown slider %q", args[0]))
	}
	v, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return "", 0, usageError(line, fmt.Sprintf("bad value %q", args[1]))
	}
	return def.ID, v, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

func usageError(line, detail string) error {
	msg := fmt.Errorf("%w: %q", ErrUnknownCommand, line)
	if detail != "" {
		msg = fmt.Errorf("%w: %q: %s", ErrUnknownCommand, line, detail)
	}
	return errors.New(msg).
		Component(ComponentControl).
		Category(errors.CategoryValidation).
		Build()
}

// SliderHelp lists every slider with its range
func SliderHelp() string {
	var b strings.Builder
	for _, d := range pipeline.Sliders() {
		fmt.Fprintf(&b, "  %-14s %-14s %g..%g %s (default %g)\n", d.ID, d.Label, d.Min, d.Max, d.Unit, d.Default)
	}
	return b.String()
}
