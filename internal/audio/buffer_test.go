package audio

import (
	"bytes"
	"math/rand"
	"testing"
)

func frame(tag byte, n int) []byte {
	return bytes.Repeat([]byte{tag}, n)
}

func TestNewBuffer(t *testing.T) {
	buffer := NewBuffer(1024)

	if buffer == nil {
		t.Fatal("NewBuffer returned nil")
	}
	if buffer.Capacity() != 1024 {
		t.Errorf("Expected capacity 1024, got %d", buffer.Capacity())
	}
	if buffer.Len() != 0 || buffer.Size() != 0 {
		t.Errorf("Expected empty buffer, got %d frames / %d bytes", buffer.Len(), buffer.Size())
	}
}

func TestPushWithinCapacity(t *testing.T) {
	buffer := NewBuffer(100)

	for i := 0; i < 5; i++ {
		if evicted := buffer.Push(frame(byte(i), 20)); evicted != 0 {
			t.Errorf("Push %d: expected no eviction, got %d", i, evicted)
		}
	}

	if buffer.Size() != 100 {
		t.Errorf("Expected 100 bytes, got %d", buffer.Size())
	}
	if buffer.Len() != 5 {
		t.Errorf("Expected 5 frames, got %d", buffer.Len())
	}
}

func TestPushEvictsOldestFirst(t *testing.T) {
	buffer := NewBuffer(100)

	for i := 0; i < 5; i++ {
		buffer.Push(frame(byte(i), 20))
	}

	// 30 more bytes must push out the two oldest frames
	evicted := buffer.Push(frame(9, 30))
	if evicted != 2 {
		t.Fatalf("Expected 2 evictions, got %d", evicted)
	}

	frames := buffer.Frames()
	want := []byte{2, 3, 4, 9}
	if len(frames) != len(want) {
		t.Fatalf("Expected %d frames, got %d", len(want), len(frames))
	}
	for i, tag := range want {
		if frames[i][0] != tag {
			t.Errorf("Frame %d: expected tag %d, got %d", i, tag, frames[i][0])
		}
	}
	if buffer.Size() != 90 {
		t.Errorf("Expected 90 bytes, got %d", buffer.Size())
	}
}

func TestPushOversizedFrame(t *testing.T) {
	buffer := NewBuffer(50)
	buffer.Push(frame(1, 10))

	evicted := buffer.Push(frame(2, 60))
	if evicted != 2 {
		t.Errorf("Expected both frames evicted, got %d", evicted)
	}
	if buffer.Size() != 0 || buffer.Len() != 0 {
		t.Errorf("Expected empty buffer, got %d frames / %d bytes", buffer.Len(), buffer.Size())
	}
}

func TestPushEmptyFrame(t *testing.T) {
	buffer := NewBuffer(50)

	if evicted := buffer.Push(nil); evicted != 0 {
		t.Errorf("Expected no eviction, got %d", evicted)
	}
	if buffer.Len() != 0 {
		t.Errorf("Expected empty frames to be skipped, got %d frames", buffer.Len())
	}
}

func TestReset(t *testing.T) {
	buffer := NewBuffer(100)
	buffer.Push(frame(1, 40))
	buffer.Push(frame(2, 40))

	buffer.Reset()

	if buffer.Len() != 0 || buffer.Size() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d frames / %d bytes", buffer.Len(), buffer.Size())
	}

	stats := buffer.GetStats()
	if stats.PushedFrames != 2 {
		t.Errorf("Expected counters to survive reset, got %d pushed", stats.PushedFrames)
	}

	buffer.Push(frame(3, 10))
	if frames := buffer.Frames(); len(frames) != 1 || frames[0][0] != 3 {
		t.Errorf("Expected buffer to be reusable after reset, got %v", frames)
	}
}

func TestRingGrowthKeepsOrder(t *testing.T) {
	buffer := NewBuffer(1 << 20)

	// Wrap the ring before forcing it to grow
	for i := 0; i < minSlots; i++ {
		buffer.Push(frame(byte(i), 1))
	}
	for i := 0; i < 3; i++ {
		buffer.popFront()
	}
	for i := minSlots; i < 40; i++ {
		buffer.Push(frame(byte(i), 1))
	}

	frames := buffer.Frames()
	for i, f := range frames {
		if int(f[0]) != i+3 {
			t.Fatalf("Frame %d: expected tag %d, got %d", i, i+3, f[0])
		}
	}
}

// Random frame sizes never break the byte bound or the arrival order
func TestBoundAndOrderProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, capacity := range []int{1, 64, 1000, 16384} {
		buffer := NewBuffer(capacity)
		next := 0
		var oldest int

		for i := 0; i < 2000; i++ {
			n := rng.Intn(capacity*2) + 1
			f := make([]byte, n+4)
			f[0], f[1], f[2], f[3] = byte(next>>24), byte(next>>16), byte(next>>8), byte(next)
			next++

			evicted := buffer.Push(f)
			oldest += evicted

			if buffer.Size() > capacity {
				t.Fatalf("Capacity %d: size %d exceeds bound", capacity, buffer.Size())
			}

			frames := buffer.Frames()
			total := 0
			for j, got := range frames {
				seq := int(got[0])<<24 | int(got[1])<<16 | int(got[2])<<8 | int(got[3])
				if seq != oldest+j {
					t.Fatalf("Capacity %d: frame %d has seq %d, expected %d", capacity, j, seq, oldest+j)
				}
				total += len(got)
			}
			if total != buffer.Size() {
				t.Fatalf("Capacity %d: size %d does not match frames total %d", capacity, buffer.Size(), total)
			}
		}
	}
}

func TestGetStats(t *testing.T) {
	buffer := NewBuffer(30)
	buffer.Push(frame(1, 20))
	buffer.Push(frame(2, 20))

	stats := buffer.GetStats()
	if stats.Frames != 1 || stats.Bytes != 20 {
		t.Errorf("Expected 1 frame / 20 bytes, got %d / %d", stats.Frames, stats.Bytes)
	}
	if stats.PushedFrames != 2 || stats.EvictedFrames != 1 {
		t.Errorf("Expected 2 pushed / 1 evicted, got %d / %d", stats.PushedFrames, stats.EvictedFrames)
	}
	if stats.IngestedBytes != 40 {
		t.Errorf("Expected 40 ingested bytes, got %d", stats.IngestedBytes)
	}
	if stats.Capacity != 30 {
		t.Errorf("Expected capacity 30, got %d", stats.Capacity)
	}
}
