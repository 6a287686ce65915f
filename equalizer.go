package align

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// recalculateDelays converts the pairs' reported latencies into delay-line
// lengths. For each pair it sums the weighted latencies of the equalized
// directions, takes the maximum across pairs as the common compensation
// target, and resizes every line whose target changed.
//
// The shared lock is acquired lazily, once, and only when some delay actually
// changes, so the steady-state case (repeated passes with unchanged inputs)
// performs zero lock acquisitions and zero resizes. When anything changed,
// the control goroutine is woken to request a fresh host latency pass.
//
// Runs on the host's latency-pass goroutine, never on the real-time one.
func (e *Engine) recalculateDelays() {
	latencies := e.scratch[:0]
	for i := range e.pairs {
		p := &e.pairs[i]

		p.latency = 0
		if e.cfg.EqualizeCapture {
			p.latency += WeightedLatency(p.input.LatencyRange(Capture), e.cfg.Coefficient)
		}
		if e.cfg.EqualizePlayback {
			p.latency += WeightedLatency(p.output.LatencyRange(Playback), e.cfg.Coefficient)
		}

		latencies = append(latencies, p.latency)
	}

	maxLatency := floats.Max(latencies)
	e.stateMu.Lock()
	if e.cfg.KeepMaximum && e.maxLatency > maxLatency {
		maxLatency = e.maxLatency
	}
	e.maxLatency = maxLatency
	e.stateMu.Unlock()

	locked := false
	changed := 0
	for i := range e.pairs {
		p := &e.pairs[i]

		target := int(math.Round(maxLatency - p.latency))
		if target == p.delayed {
			continue
		}

		if !locked {
			e.mu.Lock()
			locked = true
		}

		if err := p.line.Resize(target); err != nil {
			e.mu.Unlock()
			e.fail(fmt.Errorf("resize delay line for pair %d to %d samples: %w", i+1, target, err))
			return
		}
		p.delayed = target
		changed++
	}

	if locked {
		e.mu.Unlock()
		e.logger.Debug().
			Int("changed", changed).
			Float64("max_latency", maxLatency).
			Msg("pair delays updated")
		e.requestRecompute()
	}
}

// requestRecompute flags a pending recomputation for the control goroutine.
// Never blocks: if a request is already pending, the one wakeup covers both.
func (e *Engine) requestRecompute() {
	select {
	case e.recompute <- struct{}{}:
	default:
	}
}

// recomputeLoop is the control goroutine. It parks on the recompute channel
// and relays each request to the host.
//
// The indirection exists because OnLatencyPass executes inside the host's
// own latency-computation pass and must not recursively request another pass
// from within itself; deferring the request to an independent goroutine
// breaks the cycle.
func (e *Engine) recomputeLoop() {
	for {
		select {
		case <-e.done:
			return
		case <-e.recompute:
			if err := e.host.RecomputeLatencies(); err != nil {
				e.logger.Warn().Err(err).Msg("latency recomputation request failed")
			}
		}
	}
}
