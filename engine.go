package align

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tphakala/go-audio-align/internal/delay"
	"github.com/tphakala/go-audio-align/internal/meter"
)

// pair is one input/output signal path connected through a delay line.
type pair struct {
	input   Port
	output  Port
	line    *delay.Line
	latency float64 // last measured latency in samples
	delayed int     // current delay in samples; equals line.Size() outside a resize
}

// Engine is the latency-equalization client. It owns one delay line per
// channel pair and implements Client so the host can drive it.
//
// Construction registers the ports; Start activates the client and launches
// the control goroutine; Close releases everything. The zero value is not
// usable, use New.
type Engine struct {
	cfg    Config
	host   Host
	logger zerolog.Logger

	pairs   []pair
	scratch []float64 // reused per-pass latency buffer

	// mu guards all delay lines as a unit. The real-time callback only ever
	// try-locks it; the negotiation path locks it for the whole resize batch
	// so a block is processed entirely against old or new delays, never a mix.
	mu sync.Mutex

	// stateMu guards maxLatency for snapshot readers. Never taken on the
	// real-time goroutine, so steady-state negotiation stays off mu.
	stateMu    sync.Mutex
	maxLatency float64

	// recompute wakes the control goroutine. Capacity 1: only the fact that
	// a recomputation is pending needs to be conveyed, not a count.
	recompute chan struct{}

	meters []meter.Meter

	started   bool
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	fatal     chan error
}

// Option customizes an Engine beyond its Config.
type Option func(*Engine)

// WithLogger attaches a structured logger. Without it the engine is silent.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New validates the configuration and registers one input/output port pair
// per configured channel with the host. The engine does not process audio
// until Start is called.
func New(host Host, cfg *Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conf := *cfg
	if !conf.EqualizeCapture && !conf.EqualizePlayback {
		conf.EqualizePlayback = true
	}
	if conf.Name == "" {
		conf.Name = DefaultName
	}

	e := &Engine{
		cfg:       conf,
		host:      host,
		logger:    zerolog.Nop(),
		pairs:     make([]pair, conf.Pairs),
		scratch:   make([]float64, 0, conf.Pairs),
		recompute: make(chan struct{}, 1),
		done:      make(chan struct{}),
		fatal:     make(chan error, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	if conf.Metering {
		e.meters = make([]meter.Meter, conf.Pairs)
	}

	for i := range e.pairs {
		input, err := host.RegisterPort(fmt.Sprintf("input_%d", i+1), Capture)
		if err != nil {
			return nil, fmt.Errorf("register input port %d: %w", i+1, err)
		}
		output, err := host.RegisterPort(fmt.Sprintf("output_%d", i+1), Playback)
		if err != nil {
			return nil, fmt.Errorf("register output port %d: %w", i+1, err)
		}
		e.pairs[i] = pair{input: input, output: output, line: delay.New()}
	}

	e.logger.Debug().
		Str("client", conf.Name).
		Int("pairs", conf.Pairs).
		Bool("capture", conf.EqualizeCapture).
		Bool("playback", conf.EqualizePlayback).
		Bool("keep_maximum", conf.KeepMaximum).
		Float64("coefficient", conf.Coefficient).
		Msg("registered channel pairs")

	return e, nil
}

// Start activates the client with the host and launches the control
// goroutine that serves deferred latency-recompute requests.
func (e *Engine) Start() error {
	if e.started {
		return fmt.Errorf("%w: engine already started", ErrInvalidConfig)
	}
	if err := e.host.Activate(e); err != nil {
		return fmt.Errorf("activate client %q: %w", e.cfg.Name, err)
	}
	e.started = true

	go e.recomputeLoop()

	e.logger.Info().Str("client", e.cfg.Name).Msg("engine started")
	return nil
}

// Wait blocks until the engine is closed or the host shuts down
// unexpectedly. It returns nil after a graceful Close and ErrHostShutdown
// (or the first fatal internal error) otherwise.
func (e *Engine) Wait() error {
	select {
	case err := <-e.fatal:
		return err
	case <-e.done:
		return nil
	}
}

// Close stops the control goroutine and closes the host connection,
// releasing all registered ports. Safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.done)
		e.closeErr = e.host.Close()
		e.logger.Info().Str("client", e.cfg.Name).Msg("engine closed")
	})
	return e.closeErr
}

// Delays returns a snapshot of every pair's current compensation delay in
// samples. Takes the shared lock; not for real-time use.
func (e *Engine) Delays() []int {
	e.mu.Lock()
	defer e.mu.Unlock()

	delays := make([]int, len(e.pairs))
	for i := range e.pairs {
		delays[i] = e.pairs[i].delayed
	}
	return delays
}

// MaxLatency returns the current common compensation target in samples.
func (e *Engine) MaxLatency() float64 {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.maxLatency
}

// Levels returns per-pair output level readings. Requires Config.Metering;
// returns nil otherwise. Takes the shared lock; not for real-time use.
func (e *Engine) Levels() []meter.Reading {
	if e.meters == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	readings := make([]meter.Reading, len(e.meters))
	for i := range e.meters {
		readings[i] = e.meters[i].Read()
	}
	return readings
}

// OnBlock implements Client. It moves one block through every pair's delay
// line. The shared lock is only try-acquired: when a resize is in progress
// the whole block is skipped, trading one block of correctness for the hard
// guarantee of never blocking the real-time goroutine.
func (e *Engine) OnBlock(frames int) {
	if !e.mu.TryLock() {
		return
	}

	for i := range e.pairs {
		p := &e.pairs[i]
		out := p.output.Buffer(frames)
		p.line.Process(p.input.Buffer(frames), out)
		if e.meters != nil {
			e.meters[i].Observe(out)
		}
	}

	e.mu.Unlock()
}

// OnLatencyPass implements Client. Invoked by the host once per latency
// direction; recalculates pair delays (idempotent when nothing changed),
// then republishes each pair's upstream latency range on the downstream
// port with the pair's delay added to both bounds.
func (e *Engine) OnLatencyPass(dir Direction) {
	e.recalculateDelays()

	for i := range e.pairs {
		p := &e.pairs[i]

		from, to := p.output, p.input
		if dir == Capture {
			from, to = p.input, p.output
		}

		r := from.LatencyRange(dir)
		to.SetLatencyRange(dir, r.Offset(float64(p.delayed)))
	}
}

// OnShutdown implements Client. An unexpected host shutdown is fatal: the
// engine cannot compensate anything anymore and Wait reports failure.
func (e *Engine) OnShutdown() {
	e.logger.Error().Str("client", e.cfg.Name).Msg("host shut down unexpectedly")
	e.fail(ErrHostShutdown)
}

// fail records the first fatal error for Wait.
func (e *Engine) fail(err error) {
	select {
	case e.fatal <- err:
	default:
	}
}
