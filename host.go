package align

import "fmt"

// Direction identifies which latency a negotiation pass is computing.
// Capture latency accumulates from the graph's sources toward a port;
// playback latency accumulates from a port toward the graph's sinks.
type Direction int

const (
	// Capture selects the source-to-port latency direction.
	Capture Direction = iota

	// Playback selects the port-to-sink latency direction.
	Playback
)

// String returns the direction name used in logs and CLI flags.
func (d Direction) String() string {
	switch d {
	case Capture:
		return "capture"
	case Playback:
		return "playback"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Host is the audio graph this system registers with. It owns the real-time
// scheduler, the latency-computation pass, and the port namespace; this
// package only consumes it. Implementations must invoke the registered
// Client's callbacks as documented on Client.
type Host interface {
	// RegisterPort registers a named port carrying one channel of audio in
	// the given direction (Capture registers an input port, Playback an
	// output port).
	RegisterPort(name string, dir Direction) (Port, error)

	// Activate registers the client's callbacks and starts delivering audio
	// blocks and latency passes.
	Activate(client Client) error

	// RecomputeLatencies asks the host to re-run its latency-computation
	// pass across the whole graph. Must not be called from within a latency
	// pass; the engine defers such requests to its control goroutine.
	RecomputeLatencies() error

	// SampleRate returns the active sample rate in Hz.
	SampleRate() int

	// Close deactivates the client and releases every registered resource.
	// After Close returns no callback will be invoked again.
	Close() error
}

// Port is one registered audio channel endpoint.
type Port interface {
	// Buffer returns the port's sample buffer for the current audio block.
	// Only valid inside Client.OnBlock, on the real-time goroutine.
	Buffer(frames int) []float32

	// LatencyRange reports the latency currently attributed to this port in
	// the given direction, in samples.
	LatencyRange(dir Direction) Range

	// SetLatencyRange publishes an adjusted latency range for this port in
	// the given direction. Only meaningful inside Client.OnLatencyPass.
	SetLatencyRange(dir Direction, r Range)
}

// Client receives the host's callbacks. Engine and Corrector both implement
// it; a Client is handed to Host.Activate exactly once.
type Client interface {
	// OnBlock is invoked once per fixed-size audio block on the dedicated
	// real-time goroutine. Implementations must be allocation-free and must
	// never block.
	OnBlock(frames int)

	// OnLatencyPass is invoked once per latency-computation direction on a
	// host-managed non-real-time goroutine. It blocks host-wide latency
	// propagation and must complete promptly.
	OnLatencyPass(dir Direction)

	// OnShutdown is invoked when the host terminates the connection
	// unexpectedly. No further callbacks follow.
	OnShutdown()
}
