// Package meter provides allocation-free audio level metering for real-time
// blocks. Squared sums use SIMD dot products so the per-block cost stays
// negligible next to the delay-line copies.
package meter

import (
	"math"

	"github.com/tphakala/simd/f32"
)

// Meter accumulates peak and RMS levels over the blocks it observes.
// Observe is allocation-free and safe to call from a real-time context;
// concurrent readers must be serialized externally.
type Meter struct {
	peak      float32
	sumSquare float64
	frames    int64
}

// Observe folds one audio block into the running levels.
func (m *Meter) Observe(block []float32) {
	if len(block) == 0 {
		return
	}

	m.sumSquare += float64(f32.DotProductUnsafe(block, block))
	m.frames += int64(len(block))

	for _, s := range block {
		if s < 0 {
			s = -s
		}
		if s > m.peak {
			m.peak = s
		}
	}
}

// Reading is a snapshot of accumulated levels.
type Reading struct {
	// Peak is the largest absolute sample value observed.
	Peak float32

	// RMS is the root mean square over all observed frames.
	RMS float64

	// Frames is the number of frames observed.
	Frames int64
}

// Read returns the current levels.
func (m *Meter) Read() Reading {
	r := Reading{Peak: m.peak, Frames: m.frames}
	if m.frames > 0 {
		r.RMS = math.Sqrt(m.sumSquare / float64(m.frames))
	}
	return r
}

// Reset clears all accumulated state.
func (m *Meter) Reset() {
	*m = Meter{}
}
