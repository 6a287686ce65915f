package align_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	align "github.com/tphakala/go-audio-align"
	"github.com/tphakala/go-audio-align/internal/simhost"
	"github.com/tphakala/go-audio-align/internal/testutil"
)

const settleTimeout = time.Second

// newTestEngine builds a started engine over a fresh simulated host.
func newTestEngine(t *testing.T, cfg *align.Config) (*align.Engine, *simhost.Host) {
	t.Helper()

	host := simhost.New(&simhost.Config{SampleRate: 48000, BlockSize: 256})
	engine, err := align.New(host, cfg)
	require.NoError(t, err)
	require.NoError(t, engine.Start())
	t.Cleanup(func() { _ = engine.Close() })

	return engine, host
}

// setPlaybackLatency assigns the latency the graph reports downstream of one
// output port.
func setPlaybackLatency(t *testing.T, host *simhost.Host, pair int, r align.Range) {
	t.Helper()
	port := host.Port(portName("output", pair))
	require.NotNil(t, port)
	port.SetLatencyRange(align.Playback, r)
}

func portName(prefix string, pair int) string {
	return prefix + "_" + string(rune('0'+pair))
}

func TestNew_ValidatesConfig(t *testing.T) {
	host := simhost.New(nil)

	_, err := align.New(host, nil)
	assert.ErrorIs(t, err, align.ErrInvalidConfig)

	_, err = align.New(host, &align.Config{Pairs: 0, Coefficient: 0.5})
	assert.ErrorIs(t, err, align.ErrInvalidConfig)

	_, err = align.New(host, &align.Config{Pairs: 2, Coefficient: 1.5})
	assert.ErrorIs(t, err, align.ErrInvalidConfig)

	_, err = align.New(host, &align.Config{Pairs: 2, Coefficient: math.NaN()})
	assert.ErrorIs(t, err, align.ErrInvalidConfig)

	_, err = align.New(host, &align.Config{Pairs: 10000, Coefficient: 0.5})
	assert.ErrorIs(t, err, align.ErrInvalidConfig)
}

func TestNew_RegistersPortPairs(t *testing.T) {
	host := simhost.New(nil)
	_, err := align.New(host, &align.Config{Pairs: 2, Coefficient: 0.5})
	require.NoError(t, err)

	for _, name := range []string{"input_1", "output_1", "input_2", "output_2"} {
		assert.NotNil(t, host.Port(name), "port %s must be registered", name)
	}
}

func TestEngine_EqualizationConvergence(t *testing.T) {
	engine, host := newTestEngine(t, &align.Config{
		Pairs:            3,
		EqualizePlayback: true,
		Coefficient:      0.5,
	})

	setPlaybackLatency(t, host, 1, align.Range{Min: 100, Max: 100})
	setPlaybackLatency(t, host, 2, align.Range{Min: 20, Max: 60}) // weighted: 40
	setPlaybackLatency(t, host, 3, align.Range{Min: 0, Max: 0})

	require.NoError(t, host.TriggerLatencyPass())

	assert.Equal(t, 100.0, engine.MaxLatency())
	assert.Equal(t, []int{0, 60, 100}, engine.Delays(),
		"every delay must equal round(maxLatency - latency); the slowest pair gets zero")
}

func TestEngine_RepublishesAdjustedPlaybackRanges(t *testing.T) {
	engine, host := newTestEngine(t, &align.Config{
		Pairs:            2,
		EqualizePlayback: true,
		Coefficient:      0.5,
	})

	setPlaybackLatency(t, host, 1, align.Range{Min: 100, Max: 100})
	setPlaybackLatency(t, host, 2, align.Range{Min: 30, Max: 50}) // weighted: 40, delay: 60

	require.NoError(t, host.TriggerLatencyPass())
	require.Equal(t, []int{0, 60}, engine.Delays())

	// The delayed pair's upstream range must be republished on its input
	// port with the compensation delay added to both bounds.
	got := host.Port("input_2").LatencyRange(align.Playback)
	assert.Equal(t, align.Range{Min: 90, Max: 110}, got)

	got = host.Port("input_1").LatencyRange(align.Playback)
	assert.Equal(t, align.Range{Min: 100, Max: 100}, got)
}

func TestEngine_RepublishesCaptureRangesEvenWhenNotEqualized(t *testing.T) {
	_, host := newTestEngine(t, &align.Config{
		Pairs:            1,
		EqualizePlayback: true,
		Coefficient:      0.5,
	})

	host.Port("input_1").SetLatencyRange(align.Capture, align.Range{Min: 5, Max: 9})
	require.NoError(t, host.TriggerLatencyPass())

	// Delay is zero for a single pair, but the capture range still flows
	// through to the output port.
	got := host.Port("output_1").LatencyRange(align.Capture)
	assert.Equal(t, align.Range{Min: 5, Max: 9}, got)
}

func TestEngine_SteadyStateTriggersNothing(t *testing.T) {
	engine, host := newTestEngine(t, &align.Config{
		Pairs:            2,
		EqualizePlayback: true,
		Coefficient:      0.5,
	})

	setPlaybackLatency(t, host, 1, align.Range{Min: 100, Max: 100})
	require.NoError(t, host.TriggerLatencyPass())

	// The resize raises a recompute request; the control goroutine serves it
	// with one more pass, after which the system is converged.
	require.Eventually(t, func() bool {
		return host.RecomputeRequests() == 1
	}, settleTimeout, time.Millisecond)
	require.Eventually(t, func() bool {
		return host.LatencyPasses() == 2
	}, settleTimeout, time.Millisecond)

	delays := engine.Delays()

	// A further pass with unchanged inputs must not resize anything nor wake
	// the control goroutine again.
	require.NoError(t, host.TriggerLatencyPass())
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, host.RecomputeRequests(), "steady state must not request recomputation")
	assert.Equal(t, 3, host.LatencyPasses())
	assert.Equal(t, delays, engine.Delays())
}

func TestEngine_KeepMaximumHoldsPeak(t *testing.T) {
	engine, host := newTestEngine(t, &align.Config{
		Pairs:            2,
		EqualizePlayback: true,
		KeepMaximum:      true,
		Coefficient:      0.5,
	})

	setPlaybackLatency(t, host, 1, align.Range{Min: 100, Max: 100})
	require.NoError(t, host.TriggerLatencyPass())
	require.Equal(t, []int{0, 100}, engine.Delays())

	// The slow path gets faster; with keep-maximum the target must not drop.
	setPlaybackLatency(t, host, 1, align.Range{Min: 50, Max: 50})
	require.NoError(t, host.TriggerLatencyPass())

	assert.Equal(t, 100.0, engine.MaxLatency())
	assert.Equal(t, []int{50, 100}, engine.Delays())
}

func TestEngine_WithoutKeepMaximumDelaysShrink(t *testing.T) {
	engine, host := newTestEngine(t, &align.Config{
		Pairs:            2,
		EqualizePlayback: true,
		Coefficient:      0.5,
	})

	setPlaybackLatency(t, host, 1, align.Range{Min: 100, Max: 100})
	require.NoError(t, host.TriggerLatencyPass())
	require.Equal(t, []int{0, 100}, engine.Delays())

	setPlaybackLatency(t, host, 1, align.Range{Min: 50, Max: 50})
	require.NoError(t, host.TriggerLatencyPass())

	assert.Equal(t, 50.0, engine.MaxLatency())
	assert.Equal(t, []int{0, 50}, engine.Delays())
}

func TestEngine_AlignsSampleStreams(t *testing.T) {
	engine, host := newTestEngine(t, &align.Config{
		Pairs:            2,
		EqualizePlayback: true,
		Coefficient:      0.5,
	})

	// Pair 1 reports 3 samples more playback latency than pair 2, so pair 2
	// must be delayed by 3 samples.
	setPlaybackLatency(t, host, 1, align.Range{Min: 3, Max: 3})
	require.NoError(t, host.TriggerLatencyPass())
	require.Equal(t, []int{0, 3}, engine.Delays())

	in1 := host.Port("input_1").Buffer(6)
	in2 := host.Port("input_2").Buffer(6)
	copy(in1, testutil.Ramp(1, 6))
	copy(in2, testutil.Ramp(1, 6))

	require.NoError(t, host.DriveBlock(6))

	out1 := host.Port("output_1").Buffer(6)
	out2 := host.Port("output_2").Buffer(6)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, append([]float32(nil), out1...))
	assert.Equal(t, []float32{0, 0, 0, 1, 2, 3}, append([]float32(nil), out2...),
		"the faster path must be delayed to match the slower one")
	testutil.AssertNoNaNOrInf(t, out2)
}

func TestEngine_MeteringLevels(t *testing.T) {
	engine, host := newTestEngine(t, &align.Config{
		Pairs:            1,
		EqualizePlayback: true,
		Coefficient:      0.5,
		Metering:         true,
	})

	in := host.Port("input_1").Buffer(4)
	copy(in, []float32{0.5, -0.5, 0.5, -0.5})
	require.NoError(t, host.DriveBlock(4))

	levels := engine.Levels()
	require.Len(t, levels, 1)
	assert.Equal(t, float32(0.5), levels[0].Peak)
	assert.InDelta(t, 0.5, levels[0].RMS, 1e-6)
	assert.Equal(t, int64(4), levels[0].Frames)
}

func TestEngine_MeteringDisabled(t *testing.T) {
	engine, _ := newTestEngine(t, &align.Config{
		Pairs:            1,
		EqualizePlayback: true,
		Coefficient:      0.5,
	})

	assert.Nil(t, engine.Levels())
}

func TestEngine_WaitReportsHostShutdown(t *testing.T) {
	engine, host := newTestEngine(t, &align.Config{
		Pairs:            1,
		EqualizePlayback: true,
		Coefficient:      0.5,
	})

	host.FailShutdown()
	assert.ErrorIs(t, engine.Wait(), align.ErrHostShutdown)
}

func TestEngine_CloseIsGracefulAndIdempotent(t *testing.T) {
	engine, _ := newTestEngine(t, &align.Config{
		Pairs:            1,
		EqualizePlayback: true,
		Coefficient:      0.5,
	})

	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())
	assert.NoError(t, engine.Wait())
}

func TestEngine_StartTwiceFails(t *testing.T) {
	engine, _ := newTestEngine(t, &align.Config{
		Pairs:            1,
		EqualizePlayback: true,
		Coefficient:      0.5,
	})

	assert.ErrorIs(t, engine.Start(), align.ErrInvalidConfig)
}

func TestEngine_DefaultsToPlaybackEqualization(t *testing.T) {
	engine, host := newTestEngine(t, &align.Config{
		Pairs:       2,
		Coefficient: 0.5,
	})

	// Neither direction was selected; playback must be equalized by default.
	setPlaybackLatency(t, host, 1, align.Range{Min: 10, Max: 10})
	require.NoError(t, host.TriggerLatencyPass())

	assert.Equal(t, []int{0, 10}, engine.Delays())
}

func TestEngine_EqualizesBothDirectionsWhenConfigured(t *testing.T) {
	engine, host := newTestEngine(t, &align.Config{
		Pairs:            2,
		EqualizeCapture:  true,
		EqualizePlayback: true,
		Coefficient:      0.5,
	})

	// Pair 1: capture 10 + playback 30 = 40. Pair 2: capture 5 + playback 5 = 10.
	host.Port("input_1").SetLatencyRange(align.Capture, align.Range{Min: 10, Max: 10})
	setPlaybackLatency(t, host, 1, align.Range{Min: 30, Max: 30})
	host.Port("input_2").SetLatencyRange(align.Capture, align.Range{Min: 5, Max: 5})
	setPlaybackLatency(t, host, 2, align.Range{Min: 5, Max: 5})

	require.NoError(t, host.TriggerLatencyPass())

	assert.Equal(t, 40.0, engine.MaxLatency())
	assert.Equal(t, []int{0, 30}, engine.Delays())
}
