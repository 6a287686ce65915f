// Package testutil provides reusable test helper functions for latency
// equalization tests.
package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Ramp returns n samples counting up from start. Ramps make sample
// misalignment visible: every output position identifies the input sample
// that landed there.
func Ramp(start, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(start + i)
	}
	return s
}

// AssertAllZero verifies that every sample in the slice is exactly zero.
func AssertAllZero(t *testing.T, s []float32, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		if v != 0 {
			return assert.Fail(t, "found non-zero sample",
				"s[%d]=%f, want silence", i, v)
		}
	}
	return true
}

// AssertNoNaNOrInf verifies that no samples in the slice are NaN or Inf.
func AssertNoNaNOrInf(t *testing.T, s []float32, msgAndArgs ...any) bool {
	t.Helper()
	for i, v := range s {
		f := float64(v)
		if math.IsNaN(f) {
			return assert.Fail(t, "found NaN", "s[%d] is NaN", i)
		}
		if math.IsInf(f, 0) {
			return assert.Fail(t, "found Inf", "s[%d] is Inf", i)
		}
	}
	return true
}
