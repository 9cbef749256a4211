package audio

import (
	"sync"
	"time"
)

// Buffer is a byte-bounded FIFO of audio frames. When the total payload
// exceeds the capacity the oldest frames are evicted first.
type Buffer struct {
	capacity int // maximum buffered bytes

	// Ring storage
	slots [][]byte
	head  int // index of the oldest frame
	count int // number of frames held
	size  int // bytes held

	// Counters
	pushed     uint64
	evicted    uint64
	ingested   uint64
	lastUpdate time.Time

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	Frames        int    `json:"frames"`
	Bytes         int    `json:"bytes"`
	Capacity      int    `json:"capacity_bytes"`
	PushedFrames  uint64 `json:"pushed_frames"`
	EvictedFrames uint64 `json:"evicted_frames"`
	IngestedBytes uint64 `json:"ingested_bytes"`
}

const minSlots = 8

// NewBuffer creates a buffer holding at most capacity bytes
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{
		capacity: capacity,
		slots:    make([][]byte, minSlots),
	}
}

// Push appends a frame and evicts from the front until the buffer fits its
// capacity again. It returns the number of evicted frames. A frame larger
// than the whole capacity evicts everything, itself included.
func (b *Buffer) Push(frame []byte) int {
	if len(frame) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == len(b.slots) {
		b.grow()
	}
	b.slots[(b.head+b.count)%len(b.slots)] = frame
	b.count++
	b.size += len(frame)
	b.pushed++
	b.ingested += uint64(len(frame))
	b.lastUpdate = time.Now()

	evicted := 0
	for b.size > b.capacity && b.count > 0 {
		b.popFront()
		evicted++
	}
	b.evicted += uint64(evicted)

	return evicted
}

// popFront drops the oldest frame
func (b *Buffer) popFront() {
	old := b.slots[b.head]
	b.slots[b.head] = nil
	b.head = (b.head + 1) % len(b.slots)
	b.count--
	b.size -= len(old)
}

// grow doubles the ring, unwrapping it so the oldest frame sits at index 0
func (b *Buffer) grow() {
	next := make([][]byte, len(b.slots)*2)
	for i := 0; i < b.count; i++ {
		next[i] = b.slots[(b.head+i)%len(b.slots)]
	}
	b.slots = next
	b.head = 0
}

// Reset drops every buffered frame. Counters are kept.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slots = make([][]byte, minSlots)
	b.head = 0
	b.count = 0
	b.size = 0
}

// Frames returns the buffered frames, oldest first
func (b *Buffer) Frames() [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([][]byte, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.slots[(b.head+i)%len(b.slots)]
	}
	return out
}

// Len returns the number of buffered frames
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Size returns the number of buffered bytes
func (b *Buffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the byte bound
func (b *Buffer) Capacity() int {
	return b.capacity
}

// GetLastUpdate returns the time of the last push
func (b *Buffer) GetLastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BufferStats{
		Frames:        b.count,
		Bytes:         b.size,
		Capacity:      b.capacity,
		PushedFrames:  b.pushed,
		EvictedFrames: b.evicted,
		IngestedBytes: b.ingested,
	}
}
