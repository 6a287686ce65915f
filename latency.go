package align

import (
	"fmt"
	"strconv"
	"strings"
)

// millisPerSecond converts second-based amounts to milliseconds.
const millisPerSecond = 1000

// Range is a reported latency interval in samples. Hosts report latency as a
// minimum/maximum pair because different signal paths through the same port
// can accumulate different amounts of delay.
type Range struct {
	// Min is the lower latency bound in samples.
	Min float64

	// Max is the upper latency bound in samples.
	Max float64
}

// Offset returns the range shifted by the given number of samples on both
// bounds. This is how a compensation delay becomes visible to the rest of
// the graph.
func (r Range) Offset(samples float64) Range {
	return Range{Min: r.Min + samples, Max: r.Max + samples}
}

// WeightedLatency collapses a latency range to a single scalar:
//
//	coefficient*Max + (1-coefficient)*Min
//
// A coefficient of 0 biases to the minimum bound, 1 to the maximum, and 0.5
// centers. For coefficient in [0, 1] the result always lies within the range.
// This one formula is the shared primitive behind both the delay-compensation
// engine and the metadata-only Corrector.
func WeightedLatency(r Range, coefficient float64) float64 {
	return coefficient*r.Max + (1-coefficient)*r.Min
}

// ParseAmount converts a latency amount argument to samples. A bare number
// is taken as samples; an "s" suffix as seconds and an "ms" suffix as
// milliseconds, both converted using the given sample rate:
//
//	"512"   -> 512 samples
//	"1.5ms" -> 72 samples at 48 kHz
//	"0.25s" -> 12000 samples at 48 kHz
func ParseAmount(arg string, sampleRate int) (float64, error) {
	scale := 1.0
	number := arg

	if strings.HasSuffix(number, "s") {
		number = strings.TrimSuffix(number, "s")
		scale = float64(sampleRate)
		if strings.HasSuffix(number, "m") {
			number = strings.TrimSuffix(number, "m")
			scale /= millisPerSecond
		}
	}

	if number == "" {
		return 0, fmt.Errorf("%w: empty amount %q", ErrInvalidConfig, arg)
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed amount %q", ErrInvalidConfig, arg)
	}

	return value * scale, nil
}
