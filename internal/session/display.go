package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/tphakala/voiceforge/internal/orchestrator"
	"github.com/tphakala/voiceforge/internal/spectrum"
)

// spectrumBands is the width of the status line spectrum bar
const spectrumBands = 16

var barGlyphs = []rune(" ▁▂▃▄▅▆▇█")

// spectrumBar renders band levels in dB as block glyphs
func spectrumBar(bands []float64) string {
	var b strings.Builder
	top := len(barGlyphs) - 1
	for _, db := range bands {
		frac := (db - spectrum.MinDB) / (spectrum.MaxDB - spectrum.MinDB)
		idx := int(frac*float64(top) + 0.5)
		idx = max(0, min(top, idx))
		b.WriteRune(barGlyphs[idx])
	}
	return b.String()
}

// clock formats d as m:ss.t
func clock(d time.Duration) string {
	d = d.Round(100 * time.Millisecond)
	m := d / time.Minute
	s := (d % time.Minute).Seconds()
	return fmt.Sprintf("%d:%04.1f", m, s)
}

// statusLine renders one line of transport state
func statusLine(st orchestrator.State, bar string) string {
	transport := "stop"
	if st.Playing {
		transport = "play"
	}
	source := "proc"
	if st.ShowingOriginal || !st.HasProcessed {
		source = "orig"
	}
	flags := ""
	if st.Looping {
		flags += " loop"
	}
	if st.Values.Voice.Bypass {
		flags += " bypass"
	}
	if st.RenderPending {
		flags += " *"
	}
	line := fmt.Sprintf("[%s %s%s] %s / %s", transport, source, flags, clock(st.Elapsed()), clock(st.Total()))
	if bar != "" {
		line += " |" + bar + "|"
	}
	if st.Status != "" {
		line += " " + st.Status
	}
	return line
}
