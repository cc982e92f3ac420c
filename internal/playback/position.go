package playback

import "sync/atomic"

// Position is the playback offset in frames. It is written by the device
// callback during playback and by the control loop on seeks.
type Position struct {
	frames atomic.Int64
}

// Load returns the current frame offset
func (p *Position) Load() int64 {
	return p.frames.Load()
}

// Store sets the frame offset unconditionally. Negative values are stored as 0.
func (p *Position) Store(frame int64) {
	p.frames.Store(max(0, frame))
}

// Advance moves the position from from to to only if nobody changed it in the
// meantime. A seek that lands while the callback is rendering therefore wins.
func (p *Position) Advance(from, to int64) bool {
	return p.frames.CompareAndSwap(from, to)
}

// Clamp forces the position into [0, length] and returns the result.
func (p *Position) Clamp(length int64) int64 {
	for {
		cur := p.frames.Load()
		next := clampFrame(cur, length)
		if next == cur || p.frames.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// SeekBy moves the position by delta frames, clamped to [0, length], and
// returns the new position.
func (p *Position) SeekBy(delta, length int64) int64 {
	for {
		cur := p.frames.Load()
		next := clampFrame(cur+delta, length)
		if p.frames.CompareAndSwap(cur, next) {
			return next
		}
	}
}

func clampFrame(v, length int64) int64 {
	return max(0, min(v, max(0, length)))
}
