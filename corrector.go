package align

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// CorrectorConfig holds configuration for the metadata-only sibling client.
type CorrectorConfig struct {
	// Pairs is the number of passthrough channel pairs to register.
	Pairs int

	// CorrectCapture rewrites capture latency ranges.
	CorrectCapture bool

	// CorrectPlayback rewrites playback latency ranges. When neither
	// direction is selected, playback is corrected by default.
	CorrectPlayback bool

	// Join collapses the reported range to its weighted value before the
	// correction is applied, so both bounds end up equal.
	Join bool

	// Absolute replaces the reported latency with Amount instead of adding
	// Amount to it.
	Absolute bool

	// Coefficient weights the reported range for Join and Absolute. Must be
	// in [0, 1].
	Coefficient float64

	// Amount is the correction in samples. Use ParseAmount to accept values
	// with ms/s suffixes.
	Amount float64

	// Name is the client name registered with the host. Defaults to
	// DefaultName.
	Name string
}

// Validate checks if the configuration is valid.
func (c *CorrectorConfig) Validate() error {
	if c.Pairs < 1 {
		return fmt.Errorf("%w: pair count must be at least 1", ErrInvalidConfig)
	}
	if c.Pairs > maxPairs {
		return fmt.Errorf("%w: too many pairs (max %d)", ErrInvalidConfig, maxPairs)
	}
	if math.IsNaN(c.Coefficient) || c.Coefficient < 0 || c.Coefficient > 1 {
		return fmt.Errorf("%w: coefficient must be in [0, 1]", ErrInvalidConfig)
	}
	if math.IsNaN(c.Amount) || math.IsInf(c.Amount, 0) {
		return fmt.Errorf("%w: amount must be finite", ErrInvalidConfig)
	}
	return nil
}

// Corrector is a passthrough client that corrects the latency reported by
// another port without introducing any sample delay. It is the degenerate
// sibling of Engine: same weighted-latency primitive, no delay lines, no
// shared lock, no control goroutine.
type Corrector struct {
	cfg    CorrectorConfig
	host   Host
	logger zerolog.Logger

	pairs []pair

	started   bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	fatal     chan error
}

// CorrectorOption customizes a Corrector beyond its Config.
type CorrectorOption func(*Corrector)

// WithCorrectorLogger attaches a structured logger.
func WithCorrectorLogger(logger zerolog.Logger) CorrectorOption {
	return func(c *Corrector) { c.logger = logger }
}

// NewCorrector validates the configuration and registers one passthrough
// port pair per configured channel with the host.
func NewCorrector(host Host, cfg *CorrectorConfig, opts ...CorrectorOption) (*Corrector, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conf := *cfg
	if !conf.CorrectCapture && !conf.CorrectPlayback {
		conf.CorrectPlayback = true
	}
	if conf.Name == "" {
		conf.Name = DefaultName
	}

	c := &Corrector{
		cfg:    conf,
		host:   host,
		logger: zerolog.Nop(),
		pairs:  make([]pair, conf.Pairs),
		done:   make(chan struct{}),
		fatal:  make(chan error, 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	for i := range c.pairs {
		input, err := host.RegisterPort(fmt.Sprintf("input_%d", i+1), Capture)
		if err != nil {
			return nil, fmt.Errorf("register input port %d: %w", i+1, err)
		}
		output, err := host.RegisterPort(fmt.Sprintf("output_%d", i+1), Playback)
		if err != nil {
			return nil, fmt.Errorf("register output port %d: %w", i+1, err)
		}
		c.pairs[i] = pair{input: input, output: output}
	}

	return c, nil
}

// Start activates the client with the host.
func (c *Corrector) Start() error {
	if c.started {
		return fmt.Errorf("%w: corrector already started", ErrInvalidConfig)
	}
	if err := c.host.Activate(c); err != nil {
		return fmt.Errorf("activate client %q: %w", c.cfg.Name, err)
	}
	c.started = true
	c.logger.Info().Str("client", c.cfg.Name).Int("pairs", c.cfg.Pairs).Msg("corrector started")
	return nil
}

// Wait blocks until the corrector is closed or the host shuts down
// unexpectedly.
func (c *Corrector) Wait() error {
	select {
	case err := <-c.fatal:
		return err
	case <-c.done:
		return nil
	}
}

// Close releases the host connection. Safe to call more than once.
func (c *Corrector) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.host.Close()
	})
	return c.closeErr
}

// OnBlock implements Client: plain passthrough, no delay, no locking.
func (c *Corrector) OnBlock(frames int) {
	for i := range c.pairs {
		p := &c.pairs[i]
		copy(p.output.Buffer(frames), p.input.Buffer(frames))
	}
}

// OnLatencyPass implements Client. For the corrected directions the
// republished range is rewritten:
//
//	latency    = WeightedLatency(reported, coefficient)
//	correction = amount - (absolute ? latency : 0)
//	bound'     = round((join ? latency : bound) + correction)
//
// Uncorrected directions pass through unchanged.
func (c *Corrector) OnLatencyPass(dir Direction) {
	corrects := (dir == Capture && c.cfg.CorrectCapture) ||
		(dir == Playback && c.cfg.CorrectPlayback)

	for i := range c.pairs {
		p := &c.pairs[i]

		from, to := p.output, p.input
		if dir == Capture {
			from, to = p.input, p.output
		}

		r := from.LatencyRange(dir)
		if corrects {
			r = c.correct(r)
		}
		to.SetLatencyRange(dir, r)
	}
}

// correct applies the configured rewrite to one reported range.
func (c *Corrector) correct(r Range) Range {
	latency := WeightedLatency(r, c.cfg.Coefficient)

	correction := c.cfg.Amount
	if c.cfg.Absolute {
		correction -= latency
	}

	base := r
	if c.cfg.Join {
		base = Range{Min: latency, Max: latency}
	}

	return Range{
		Min: math.Round(base.Min + correction),
		Max: math.Round(base.Max + correction),
	}
}

// OnShutdown implements Client.
func (c *Corrector) OnShutdown() {
	c.logger.Error().Str("client", c.cfg.Name).Msg("host shut down unexpectedly")
	select {
	case c.fatal <- ErrHostShutdown:
	default:
	}
}
