// Package playback owns the audio output side: the buffer slot shared with
// the device callback, the playback position, the render callback itself and
// the malgo device that drives it.
package playback

import (
	"sync"
	"sync/atomic"

	"github.com/tphakala/voiceforge/internal/audio"
)

// Slot holds the buffer currently being played. The control loop replaces it
// with Swap while the device callback reads it with ReadForPlayback.
//
// A reader keeps the buffer it obtained alive for as long as it holds the
// pointer, so a concurrent Swap never invalidates a callback in progress.
type Slot struct {
	mu  sync.RWMutex
	buf *audio.Buffer

	contention atomic.Uint64
}

// NewSlot returns a slot holding buf, which may be nil
func NewSlot(buf *audio.Buffer) *Slot {
	return &Slot{buf: buf}
}

// Swap installs buf and returns the previous buffer.
func (s *Slot) Swap(buf *audio.Buffer) *audio.Buffer {
	s.mu.Lock()
	old := s.buf
	s.buf = buf
	s.mu.Unlock()
	return old
}

// ReadForPlayback returns the current buffer without blocking. It reports
// false when the slot is being swapped; the caller must then output silence
// for this period.
func (s *Slot) ReadForPlayback() (*audio.Buffer, bool) {
	if !s.mu.TryRLock() {
		s.contention.Add(1)
		return nil, false
	}
	buf := s.buf
	s.mu.RUnlock()
	return buf, true
}

// Load returns the current buffer, waiting for any swap in progress.
func (s *Slot) Load() *audio.Buffer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buf
}

// Contention returns how many callback reads found the slot locked
func (s *Slot) Contention() uint64 {
	return s.contention.Load()
}
