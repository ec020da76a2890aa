package session

import (
	"sync"

	"github.com/nerrad567/netpulse/internal/telemetry"
)

// DefaultBufferCapacity is the number of samples a session keeps.
const DefaultBufferCapacity = 200

// Buffer holds the most recent samples, newest first, never more than its
// capacity. Insert is meant to be called from a single goroutine; Snapshot
// may be called from anywhere.
type Buffer struct {
	mu       sync.RWMutex
	items    []telemetry.Sample
	capacity int
}

// NewBuffer returns an empty buffer. A non-positive capacity selects
// DefaultBufferCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{
		items:    make([]telemetry.Sample, 0, capacity),
		capacity: capacity,
	}
}

// Insert places s at the head, evicting the oldest sample when full.
func (b *Buffer) Insert(s telemetry.Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) < b.capacity {
		b.items = append(b.items, telemetry.Sample{})
	}
	copy(b.items[1:], b.items[:len(b.items)-1])
	b.items[0] = s
}

// Snapshot returns a copy of the buffered samples, newest first.
func (b *Buffer) Snapshot() []telemetry.Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]telemetry.Sample(nil), b.items...)
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}
