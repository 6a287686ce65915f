// Package delay implements a resizable sample delay line for real-time audio.
//
// A Line realizes an exact N-sample delay between its input and output. The
// delay length can be changed at any time without corrupting buffered content,
// which makes the line suitable for latency compensation where the target
// delay follows the surrounding graph's reported latencies.
//
// Concurrency contract: Resize may allocate and must only be called from a
// non-real-time context. Process is allocation-free and bounded, and is meant
// to be called from the real-time audio callback. The two must be serialized
// externally (the engine guards all its lines with one mutex).
package delay

import (
	"errors"
	"fmt"
)

// ErrInvalidSize is returned when a delay line is resized to a negative length.
var ErrInvalidSize = errors.New("invalid delay line size")

// Line is a resizable circular buffer holding exactly Size() samples of
// history. A Line starts with a delay of zero and passes audio straight
// through until it is resized.
type Line struct {
	data []float32 // allocated storage; len(data) is the capacity and never shrinks
	size int       // current delay in samples
	pos  int       // index of the next sample to emit; < size when size > 0
}

// New creates an empty delay line with a delay of zero samples.
func New() *Line {
	return &Line{}
}

// Size returns the current delay length in samples.
func (l *Line) Size() int {
	return l.size
}

// Capacity returns the allocated storage in samples. Capacity grows as
// needed but is never shrunk, so rapid renegotiation does not cause
// reallocation churn.
func (l *Line) Capacity() int {
	return len(l.data)
}

// Resize changes the delay to size samples while preserving buffered content:
// the most recent min(old, new) samples survive in order. Growing pads the
// front (the oldest, next-to-emit end) with silence; shrinking discards the
// oldest excess samples. Resizing to the current size is a no-op.
//
// Resize may allocate and must not be called from the real-time thread.
// Allocation failure is not survivable: the line would under-compensate its
// channel, so callers treat any failure as fatal.
func (l *Line) Resize(size int) error {
	if size < 0 {
		return fmt.Errorf("%w: %d samples", ErrInvalidSize, size)
	}
	if size == l.size {
		return nil
	}

	kept := l.size
	if size < kept {
		kept = size
	}

	// Linearize the surviving samples into the tail of the new layout so the
	// read cursor can restart at zero. Growth leaves leading silence, which
	// is exactly the padding the longer delay requires.
	next := make([]float32, size)
	for j := 0; j < kept; j++ {
		src := (l.pos + l.size - kept + j) % l.size
		next[size-kept+j] = l.data[src]
	}

	if size > len(l.data) {
		l.data = next
	} else {
		copy(l.data, next)
	}
	l.pos = 0
	l.size = size
	return nil
}

// Process moves one audio block through the line, emitting every sample
// exactly Size() samples after it was fed in.
//
// The line is treated as a sliding window: the oldest min(len, size) buffered
// samples are emitted, the newest incoming samples overwrite that same span,
// and any surplus input (when the block is longer than the delay) is copied
// straight through. Runs in O(block) time with no allocation, for blocks
// shorter than, equal to, or longer than the current delay, including
// wraparound of the circular buffer.
//
// in and out must have the same length; the shorter of the two bounds the
// number of frames processed.
func (l *Line) Process(in, out []float32) {
	n := len(in)
	if len(out) < n {
		n = len(out)
	}

	swap := n
	if swap > l.size {
		swap = l.size
	}

	if l.size > 0 {
		// First segment: from the read cursor up to the physical end.
		chunk := l.size - l.pos
		if chunk > swap {
			chunk = swap
		}
		copy(out[:chunk], l.data[l.pos:l.pos+chunk])
		copy(l.data[l.pos:l.pos+chunk], in[n-swap:n-swap+chunk])

		// Second segment: wraparound at the start of the buffer.
		rest := swap - chunk
		copy(out[chunk:swap], l.data[:rest])
		copy(l.data[:rest], in[n-rest:n])

		l.pos = (l.pos + swap) % l.size
	}

	// Whatever the delay window did not absorb passes through unbuffered.
	copy(out[swap:n], in[:n-swap])
}
