package buffer

import (
	"fmt"
	"sync"
	"testing"
)

func TestLineBuffer_AppendAndDrain(t *testing.T) {
	lb := NewLineBuffer()

	lb.Append("one")
	lb.Append("two")
	lb.Append("three")

	if lb.Len() != 3 {
		t.Errorf("expected length 3, got %d", lb.Len())
	}

	lines := lb.Drain()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0] != "one" || lines[1] != "two" || lines[2] != "three" {
		t.Errorf("unexpected lines: %v", lines)
	}

	// Drain clears the buffer
	if lb.Len() != 0 {
		t.Errorf("expected empty buffer after drain, got length %d", lb.Len())
	}
	if again := lb.Drain(); len(again) != 0 {
		t.Errorf("expected empty drain, got %v", again)
	}
}

func TestLineBuffer_SnapshotDoesNotConsume(t *testing.T) {
	lb := NewLineBuffer()
	lb.Append("a")
	lb.Append("b")

	snap := lb.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(snap))
	}
	if lb.Len() != 2 {
		t.Errorf("snapshot consumed the buffer, length now %d", lb.Len())
	}

	// Mutating the snapshot must not affect the buffer
	snap[0] = "mutated"
	if got := lb.Snapshot()[0]; got != "a" {
		t.Errorf("expected 'a', got '%s'", got)
	}
}

func TestLineBuffer_Clear(t *testing.T) {
	lb := NewLineBuffer()
	lb.Append("x")
	lb.Clear()
	if lb.Len() != 0 {
		t.Errorf("expected empty buffer after clear, got length %d", lb.Len())
	}
}

func TestLineBuffer_ConcurrentAppend(t *testing.T) {
	lb := NewLineBuffer()

	var wg sync.WaitGroup
	const writers = 10
	const perWriter = 100
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				lb.Append(fmt.Sprintf("w%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	if lb.Len() != writers*perWriter {
		t.Errorf("expected %d lines, got %d", writers*perWriter, lb.Len())
	}
}
