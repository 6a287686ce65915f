// Package align implements real-time audio latency equalization in pure Go.
//
// Given a set of paired input/output channels routed through an external
// audio graph, the engine measures each channel's reported round-trip
// latency, computes a per-channel compensation delay, and applies that delay
// to the sample streams flowing through it so that all channels become
// time-aligned at a common point. Corrected latency metadata is republished
// to the surrounding graph so downstream clients see the compensated values.
//
// # Features
//
//   - Resizable per-channel delay lines that preserve buffered audio across
//     grow and shrink operations
//   - A real-time audio callback that never blocks and never allocates
//     (try-lock-and-skip on contention with a resize)
//   - Latency negotiation driven entirely by the host graph's own
//     latency-computation passes
//   - Weighted latency ranges with a configurable coefficient (align to the
//     minimum bound, the maximum bound, or anywhere between)
//   - An optional keep-maximum policy that pins the common compensation
//     target at its historical peak
//   - A metadata-only Corrector client that rewrites reported latency ranges
//     without introducing any sample delay
//
// # Quick Start
//
//	host := simhost.New(&simhost.Config{SampleRate: 48000, BlockSize: 256})
//	engine, err := align.New(host, &align.Config{
//	    Pairs:            2,
//	    EqualizePlayback: true,
//	    Coefficient:      0.5,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := engine.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	// The host now drives the engine's callbacks. Wait blocks until the
//	// engine is closed or the host shuts down unexpectedly.
//	err = engine.Wait()
//
// # Architecture
//
// Three execution contexts cooperate around one coarse mutex that guards all
// delay lines as a unit:
//
//	host graph change -> OnLatencyPass (host goroutine)
//	                     -> resize delay lines under the lock
//	                     -> wake the control goroutine
//	control goroutine  -> Host.RecomputeLatencies
//	                     -> host re-runs OnLatencyPass with updated inputs
//	audio callback     -> OnBlock (real-time goroutine)
//	                     -> TryLock; on contention skip the block
//
// The control goroutine exists because a latency pass must not request
// another pass from within itself; deferring the request to an independent
// goroutine breaks the reentrancy cycle.
//
// # Thread Safety
//
// An Engine is driven by its Host through the Client interface and is safe
// for the concurrent callback pattern described above. Snapshot accessors
// (Delays, MaxLatency, Levels) take the shared lock and must not be called
// from the real-time context.
//
// The host graph itself is an external collaborator: this package defines
// the Host, Port and Client interfaces and ships an in-process simulated
// host (internal/simhost) used by the tests and the offline tools. A JACK
// or PipeWire binding is deliberately out of scope.
package align
