// Package buffer provides the line buffer used to collect process output.
package buffer

import (
	"sync"
)

// LineBuffer is a thread-safe FIFO of text lines. Producers (output pump
// goroutines) append lines as they are read from a process; consumers either
// drain the buffer (returning and clearing everything accumulated so far) or
// snapshot it without mutation.
//
// The buffer is unbounded: a process that is never drained keeps its output
// until the buffer itself is dropped.
type LineBuffer struct {
	lines []string
	mu    sync.Mutex
}

// NewLineBuffer creates an empty LineBuffer.
func NewLineBuffer() *LineBuffer {
	return &LineBuffer{}
}

// Append adds a line to the end of the buffer.
func (b *LineBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
}

// Drain returns all buffered lines in FIFO order and clears the buffer.
// The returned slice is owned by the caller.
func (b *LineBuffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) == 0 {
		return nil
	}
	out := b.lines
	b.lines = nil
	return out
}

// Snapshot returns a copy of the buffered lines without clearing them.
func (b *LineBuffer) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) == 0 {
		return nil
	}
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Len returns the number of buffered lines.
func (b *LineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// Clear removes all buffered lines.
func (b *LineBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}
