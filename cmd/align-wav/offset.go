package main

import (
	"github.com/tphakala/simd/f32"
	"gonum.org/v1/gonum/floats"
)

// estimateOffsets cross-correlates every channel against the first one and
// converts the best-matching lags to non-negative per-channel latencies in
// samples: the earliest channel reports zero and a channel trailing it by k
// samples reports k, so the engine delays the early channels until they meet
// the latest one. Channels shorter than twice the lag bound shrink the
// search window accordingly.
func estimateOffsets(channels []*wavChannel, maxLag int) []int {
	lags := make([]int, len(channels))
	for i := 1; i < len(channels); i++ {
		lags[i] = bestLag(channels[0].samples, channels[i].samples, maxLag)
	}

	minLag := lags[0]
	for _, lag := range lags[1:] {
		if lag < minLag {
			minLag = lag
		}
	}

	latencies := make([]int, len(lags))
	for i, lag := range lags {
		latencies[i] = lag - minLag
	}
	return latencies
}

// bestLag returns the lag (positive: sig trails ref) that maximizes the
// sliding dot product between the two signals.
func bestLag(ref, sig []float32, maxLag int) int {
	n := len(ref)
	if len(sig) < n {
		n = len(sig)
	}
	if maxLag >= n {
		maxLag = n - 1
	}
	if maxLag <= 0 {
		return 0
	}
	window := n - maxLag

	scores := make([]float64, 2*maxLag+1)
	for k := -maxLag; k <= maxLag; k++ {
		var a, b []float32
		if k >= 0 {
			a = ref[:window]
			b = sig[k : k+window]
		} else {
			a = ref[-k : -k+window]
			b = sig[:window]
		}
		scores[k+maxLag] = float64(f32.DotProductUnsafe(a, b))
	}

	return floats.MaxIdx(scores) - maxLag
}
