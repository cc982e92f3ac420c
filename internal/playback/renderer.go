package playback

import (
	"math"
	"sync/atomic"
)

// tapChunk is the number of frames mixed to mono per Tap push
const tapChunk = 512

// Renderer fills device buffers from the Slot. Render is called on the audio
// thread: it does not allocate, block or log.
type Renderer struct {
	slot     *Slot
	pos      *Position
	tap      *Tap
	channels int

	playing atomic.Bool
	looping atomic.Bool
	gain    atomic.Uint32 // float32 bits, linear

	mono   [tapChunk]float32
	panics atomic.Uint64
}

// NewRenderer returns a renderer producing interleaved output with the given
// channel count. tap may be nil.
func NewRenderer(slot *Slot, pos *Position, tap *Tap, channels int) *Renderer {
	r := &Renderer{
		slot:     slot,
		pos:      pos,
		tap:      tap,
		channels: max(1, channels),
	}
	r.gain.Store(math.Float32bits(1))
	return r
}

// Channels returns the output channel count
func (r *Renderer) Channels() int {
	return r.channels
}

// SetPlaying starts or pauses output
func (r *Renderer) SetPlaying(on bool) { r.playing.Store(on) }

// Playing reports whether output is running
func (r *Renderer) Playing() bool { return r.playing.Load() }

// SetLooping enables wrap-around at the end of the buffer
func (r *Renderer) SetLooping(on bool) { r.looping.Store(on) }

// Looping reports whether wrap-around is enabled
func (r *Renderer) Looping() bool { return r.looping.Load() }

// SetGain sets the live output gain in dB
func (r *Renderer) SetGain(db float64) {
	r.gain.Store(math.Float32bits(float32(math.Pow(10, db/20))))
}

// Gain returns the live output gain as a linear factor
func (r *Renderer) Gain() float32 {
	return math.Float32frombits(r.gain.Load())
}

// Panics returns how many render calls recovered from a panic
func (r *Renderer) Panics() uint64 {
	return r.panics.Load()
}

// Render writes frames interleaved frames into out. Frames past the end of a
// non-looping buffer are silent and the position stops at the end.
func (r *Renderer) Render(out []float32, frames int) {
	defer func() {
		if recover() != nil {
			r.panics.Add(1)
			clear(out)
		}
	}()

	ch := r.channels
	frames = max(0, min(frames, len(out)/ch))
	out = out[:frames*ch]

	if !r.playing.Load() {
		clear(out)
		return
	}
	buf, ok := r.slot.ReadForPlayback()
	if !ok || buf == nil || buf.Len() == 0 {
		clear(out)
		return
	}

	length := int64(buf.Len())
	src := buf.Samples()
	srcCh := buf.Channels()
	looping := r.looping.Load()
	gain := r.Gain()

	read := r.pos.Load()
	start := read
	if !looping {
		start = min(start, length)
	}

	for i := range frames {
		idx := start + int64(i)
		frame := out[i*ch : (i+1)*ch]
		if looping {
			idx %= length
		} else if idx >= length {
			clear(frame)
			continue
		}
		mixFrame(frame, src[int(idx)*srcCh:int(idx+1)*srcCh], gain)
	}

	var next int64
	if looping {
		next = (start + int64(frames)) % length
	} else {
		next = min(start+int64(frames), length)
	}
	// A failed swap means a seek happened during this period; keep it.
	r.pos.Advance(read, next)

	r.pushTap(out)
}

// mixFrame copies one source frame into one output frame, adapting the
// channel count and applying gain with a hard clip.
func mixFrame(dst, src []float32, gain float32) {
	switch {
	case len(src) == len(dst):
		for c := range dst {
			dst[c] = clip(src[c] * gain)
		}
	case len(dst) == 1:
		var sum float32
		for _, v := range src {
			sum += v
		}
		dst[0] = clip(sum / float32(len(src)) * gain)
	default:
		for c := range dst {
			dst[c] = clip(src[min(c, len(src)-1)] * gain)
		}
	}
}

func clip(v float32) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func (r *Renderer) pushTap(out []float32) {
	if r.tap == nil {
		return
	}
	ch := r.channels
	frames := len(out) / ch
	for off := 0; off < frames; off += tapChunk {
		n := min(tapChunk, frames-off)
		for i := range n {
			base := (off + i) * ch
			var sum float32
			for c := range ch {
				sum += out[base+c]
			}
			r.mono[i] = sum / float32(ch)
		}
		r.tap.Push(r.mono[:n])
	}
}
