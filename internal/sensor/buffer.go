package sensor

import "sync"

// Buffer is a fixed-capacity ring of the most recent readings. One writer
// (the source loop), any number of readers (the UI sync ticker polls Latest
// on its own schedule, independent of frame arrival).
type Buffer struct {
	mu    sync.RWMutex
	ring  []Reading
	next  int
	count int
}

// NewBuffer creates a buffer holding the last capacity readings.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 256
	}
	return &Buffer{ring: make([]Reading, capacity)}
}

// Push records a reading, evicting the oldest when full.
func (b *Buffer) Push(r Reading) {
	b.mu.Lock()
	b.ring[b.next] = r
	b.next = (b.next + 1) % len(b.ring)
	if b.count < len(b.ring) {
		b.count++
	}
	b.mu.Unlock()
}

// Latest returns the most recent reading, false when nothing has arrived yet.
func (b *Buffer) Latest() (Reading, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.count == 0 {
		return Reading{}, false
	}
	idx := (b.next - 1 + len(b.ring)) % len(b.ring)
	return b.ring[idx], true
}

// Snapshot returns the buffered readings oldest-first.
func (b *Buffer) Snapshot() []Reading {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Reading, 0, b.count)
	start := b.next - b.count
	for i := 0; i < b.count; i++ {
		out = append(out, b.ring[(start+i+len(b.ring))%len(b.ring)])
	}
	return out
}

// Len returns the number of buffered readings.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}
