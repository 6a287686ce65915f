package align

import (
	"errors"
	"fmt"
	"math"
)

// Limits and defaults for engine configuration.
const (
	// maxPairs bounds the number of channel pairs a single client may register.
	maxPairs = 256

	// DefaultCoefficient centers weighted latencies between the range bounds.
	DefaultCoefficient = 0.5

	// DefaultName is the client name registered with the host when none is set.
	DefaultName = "align"
)

// Common errors returned by this package.
var (
	// ErrInvalidConfig indicates invalid engine or corrector configuration.
	ErrInvalidConfig = errors.New("invalid aligner configuration")

	// ErrHostShutdown is returned by Wait when the host terminated the
	// connection unexpectedly. The process cannot continue compensating and
	// should exit with failure.
	ErrHostShutdown = errors.New("host connection shut down")
)

// Config holds latency-equalization engine configuration.
type Config struct {
	// Pairs is the number of input/output channel pairs to register with the
	// host. Ports are named input_1..input_N and output_1..output_N.
	Pairs int

	// EqualizeCapture includes each input port's capture latency in the
	// pair's measured latency.
	EqualizeCapture bool

	// EqualizePlayback includes each output port's playback latency in the
	// pair's measured latency. When neither direction is selected, playback
	// is equalized by default.
	EqualizePlayback bool

	// KeepMaximum pins the common compensation target at its historical
	// peak: delays may grow but never shrink back when a channel's reported
	// latency drops.
	KeepMaximum bool

	// Coefficient weights a latency range between its bounds: 0 aligns to
	// the minimum, 1 to the maximum, DefaultCoefficient centers. Must be in
	// [0, 1].
	Coefficient float64

	// Name is the client name registered with the host. Defaults to
	// DefaultName.
	Name string

	// Metering enables per-pair output level tracking (peak and RMS),
	// readable through Engine.Levels. Adds a small fixed cost to every
	// audio block.
	Metering bool
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Pairs < 1 {
		return fmt.Errorf("%w: pair count must be at least 1", ErrInvalidConfig)
	}
	if c.Pairs > maxPairs {
		return fmt.Errorf("%w: too many pairs (max %d)", ErrInvalidConfig, maxPairs)
	}

	if math.IsNaN(c.Coefficient) || c.Coefficient < 0 || c.Coefficient > 1 {
		return fmt.Errorf("%w: coefficient must be in [0, 1]", ErrInvalidConfig)
	}

	return nil
}
