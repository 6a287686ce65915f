// Package simhost provides an in-process audio host for tests and offline
// tools. It implements align.Host and drives a registered client the way a
// real audio server would: per-block process callbacks, per-direction
// latency passes, recompute requests and shutdown notification - just with
// the caller standing in for the server's scheduler.
package simhost

import (
	"errors"
	"fmt"
	"sync"

	align "github.com/tphakala/go-audio-align"
)

// Defaults used when Config fields are left zero.
const (
	DefaultSampleRate = 48000
	DefaultBlockSize  = 1024
)

// Errors returned by the simulated host.
var (
	// ErrPortExists indicates a duplicate port name.
	ErrPortExists = errors.New("port name already registered")

	// ErrAlreadyActive indicates a second Activate call.
	ErrAlreadyActive = errors.New("a client is already active")

	// ErrClosed indicates an operation on a closed host.
	ErrClosed = errors.New("host is closed")

	// ErrNoClient indicates a callback was driven before Activate.
	ErrNoClient = errors.New("no active client")
)

// Config holds simulated host parameters.
type Config struct {
	// SampleRate in Hz. Defaults to DefaultSampleRate.
	SampleRate int

	// BlockSize is the preallocated port buffer length in frames. Blocks
	// driven through the host may be shorter. Defaults to DefaultBlockSize.
	BlockSize int
}

// Host is an in-process align.Host. Callbacks run on the goroutine that
// drives them: DriveBlock stands in for the real-time thread,
// TriggerLatencyPass for the host's latency-computation thread.
type Host struct {
	sampleRate int
	blockSize  int

	mu            sync.Mutex
	ports         map[string]*Port
	client        align.Client
	closed        bool
	latencyPasses int
	recomputes    int

	// passMu serializes latency passes, matching the guarantee real hosts
	// give their latency callbacks.
	passMu sync.Mutex
}

// New creates a simulated host.
func New(cfg *Config) *Host {
	h := &Host{
		sampleRate: DefaultSampleRate,
		blockSize:  DefaultBlockSize,
		ports:      make(map[string]*Port),
	}
	if cfg != nil {
		if cfg.SampleRate > 0 {
			h.sampleRate = cfg.SampleRate
		}
		if cfg.BlockSize > 0 {
			h.blockSize = cfg.BlockSize
		}
	}
	return h
}

// RegisterPort implements align.Host.
func (h *Host) RegisterPort(name string, dir align.Direction) (align.Port, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if _, exists := h.ports[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrPortExists, name)
	}

	p := &Port{
		name: name,
		dir:  dir,
		buf:  make([]float32, h.blockSize),
	}
	h.ports[name] = p
	return p, nil
}

// Activate implements align.Host.
func (h *Host) Activate(client align.Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if h.client != nil {
		return ErrAlreadyActive
	}
	h.client = client
	return nil
}

// RecomputeLatencies implements align.Host: a recompute request immediately
// runs a fresh latency pass, the way a real server schedules one on its
// non-real-time thread.
func (h *Host) RecomputeLatencies() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.recomputes++
	h.mu.Unlock()

	return h.TriggerLatencyPass()
}

// SampleRate implements align.Host.
func (h *Host) SampleRate() int {
	return h.sampleRate
}

// Close implements align.Host. All registered ports are released and no
// callback is invoked afterwards.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.client = nil
	return nil
}

// activeClient returns the client without holding the host lock during the
// callback itself, so driving goroutines never serialize against each other
// through the host.
func (h *Host) activeClient() (align.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	if h.client == nil {
		return nil, ErrNoClient
	}
	return h.client, nil
}

// DriveBlock invokes the client's process callback for one audio block.
// The caller's goroutine plays the role of the real-time thread: fill the
// input port buffers first, then read the output buffers afterwards.
func (h *Host) DriveBlock(frames int) error {
	client, err := h.activeClient()
	if err != nil {
		return err
	}
	client.OnBlock(frames)
	return nil
}

// TriggerLatencyPass runs one full latency-computation pass (capture, then
// playback), as a real host does whenever graph topology or reported
// latencies change.
func (h *Host) TriggerLatencyPass() error {
	client, err := h.activeClient()
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.latencyPasses++
	h.mu.Unlock()

	h.passMu.Lock()
	defer h.passMu.Unlock()

	client.OnLatencyPass(align.Capture)
	client.OnLatencyPass(align.Playback)
	return nil
}

// FailShutdown simulates an unexpected server death: the client is notified
// once and the host becomes unusable.
func (h *Host) FailShutdown() {
	h.mu.Lock()
	client := h.client
	h.closed = true
	h.client = nil
	h.mu.Unlock()

	if client != nil {
		client.OnShutdown()
	}
}

// Port returns a registered port by name, or nil. Intended for the driving
// side (tests and tools) to reach port buffers and latency knobs.
func (h *Host) Port(name string) *Port {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ports[name]
}

// LatencyPasses returns how many latency passes have run.
func (h *Host) LatencyPasses() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latencyPasses
}

// RecomputeRequests returns how many recompute requests the client issued.
func (h *Host) RecomputeRequests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recomputes
}

// Port is one simulated channel endpoint.
type Port struct {
	name string
	dir  align.Direction
	buf  []float32

	mu      sync.Mutex
	latency [2]align.Range
}

// Name returns the registered port name.
func (p *Port) Name() string {
	return p.name
}

// Direction returns the direction the port was registered with.
func (p *Port) Direction() align.Direction {
	return p.dir
}

// Buffer implements align.Port. The buffer is grown when a block exceeds
// the preallocated size; steady-state access is allocation-free.
func (p *Port) Buffer(frames int) []float32 {
	if frames > len(p.buf) {
		p.buf = make([]float32, frames)
	}
	return p.buf[:frames]
}

// LatencyRange implements align.Port.
func (p *Port) LatencyRange(dir align.Direction) align.Range {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latency[dir]
}

// SetLatencyRange implements align.Port.
func (p *Port) SetLatencyRange(dir align.Direction, r align.Range) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latency[dir] = r
}
