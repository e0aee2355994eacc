package logger

import "github.com/arturoeanton/witness-runtime/security/sanitizer"

// ringBuffer keeps the most recent entries, evicting the oldest first.
// Callers hold the logger mutex.
type ringBuffer struct {
	entries []LogEntry
	head    int // index of the oldest entry
	size    int
	evicted uint64
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{entries: make([]LogEntry, capacity)}
}

func (b *ringBuffer) push(e LogEntry) {
	capacity := len(b.entries)
	if capacity == 0 {
		return
	}
	if b.size < capacity {
		b.entries[(b.head+b.size)%capacity] = e
		b.size++
		return
	}
	b.entries[b.head] = e
	b.head = (b.head + 1) % capacity
	b.evicted++
}

// snapshot returns deep copies of the entries, oldest-first.
func (b *ringBuffer) snapshot() []LogEntry {
	out := make([]LogEntry, b.size)
	for i := 0; i < b.size; i++ {
		e := b.entries[(b.head+i)%len(b.entries)]
		e.Data = sanitizer.Clone(e.Data)
		out[i] = e
	}
	return out
}

func (b *ringBuffer) clear() {
	for i := range b.entries {
		b.entries[i] = LogEntry{}
	}
	b.head = 0
	b.size = 0
}
