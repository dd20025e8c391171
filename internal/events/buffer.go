package events

import "sync"

// BufferSize is the number of events retained per channel.
const BufferSize = 500

// Buffer is a thread-safe ring of the most recent events; O(1) append.
type Buffer struct {
	mu      sync.RWMutex
	entries [BufferSize]Event
	head    int // next write position
	size    int
}

// Append adds ev, overwriting the oldest entry once full.
func (b *Buffer) Append(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = ev
	b.head = (b.head + 1) % BufferSize
	if b.size < BufferSize {
		b.size++
	}
}

// Read returns up to n events, newest first. n <= 0 or above BufferSize
// means everything retained. The slice is owned by the caller.
func (b *Buffer) Read(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return nil
	}
	if n <= 0 || n > b.size {
		n = b.size
	}

	out := make([]Event, n)
	newest := (b.head - 1 + BufferSize) % BufferSize
	for i := 0; i < n; i++ {
		out[i] = b.entries[(newest-i+BufferSize)%BufferSize]
	}
	return out
}

// Len is the number of retained events.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}
