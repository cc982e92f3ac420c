package playback

import (
	"sync"
	"sync/atomic"
)

// DefaultTapSize is the window length handed to the spectrum analyzer
const DefaultTapSize = 2048

// Tap keeps the most recent mono output samples for visualization. The
// callback side never blocks: if a reader holds the lock the samples are
// dropped and counted as a miss.
type Tap struct {
	mu   sync.Mutex
	ring []float32
	head int

	misses atomic.Uint64
}

// NewTap returns a tap holding size samples. Non-positive sizes use DefaultTapSize.
func NewTap(size int) *Tap {
	if size <= 0 {
		size = DefaultTapSize
	}
	return &Tap{ring: make([]float32, size)}
}

// Size returns the window length
func (t *Tap) Size() int {
	return len(t.ring)
}

// Push appends samples to the ring
func (t *Tap) Push(samples []float32) {
	if !t.mu.TryLock() {
		t.misses.Add(1)
		return
	}
	size := len(t.ring)
	if len(samples) >= size {
		copy(t.ring, samples[len(samples)-size:])
		t.head = 0
		t.mu.Unlock()
		return
	}
	n := copy(t.ring[t.head:], samples)
	if n < len(samples) {
		copy(t.ring, samples[n:])
	}
	t.head = (t.head + len(samples)) % size
	t.mu.Unlock()
}

// Snapshot copies the newest min(len(dst), Size()) samples into dst, oldest
// first, and returns the count.
func (t *Tap) Snapshot(dst []float32) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := len(t.ring)
	n := min(len(dst), size)
	start := (t.head - n + size) % size
	first := copy(dst[:n], t.ring[start:])
	if first < n {
		copy(dst[first:n], t.ring[:n-first])
	}
	return n
}

// Misses returns how many pushes were dropped
func (t *Tap) Misses() uint64 {
	return t.misses.Load()
}
