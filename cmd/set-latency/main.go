// Command set-latency demonstrates the passthrough latency corrector: it
// stands up a simulated port graph, feeds it the latency ranges given on the
// command line, runs one negotiation pass through the corrector and prints
// the rewritten ranges. The amount accepts plain samples or time suffixes
// ("72", "1.5ms", "0.01s") scaled by the sample rate.
//
// Usage:
//
//	set-latency -range 10:20 1.5ms
//	set-latency -pairs 2 -range 10:20,30:50 -absolute -join 256
//	set-latency -capture -playback -range 0:0 -- -64
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	align "github.com/tphakala/go-audio-align"
	"github.com/tphakala/go-audio-align/internal/simhost"
)

const defaultSampleRate = 48000

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "set-latency:", err)
		os.Exit(1)
	}
}

func run() error {
	pairs := flag.Int("pairs", 1, "Number of passthrough channel pairs")
	capture := flag.Bool("capture", false, "Correct capture latency ranges")
	playback := flag.Bool("playback", false, "Correct playback latency ranges (default when neither is given)")
	join := flag.Bool("join", false, "Collapse each range to its weighted value before correcting")
	absolute := flag.Bool("absolute", false, "Replace the reported latency instead of adding to it")
	coefficient := flag.Float64("coefficient", align.DefaultCoefficient, "Latency coefficient: 0 weighs range minima, 1 maxima")
	rate := flag.Int("rate", defaultSampleRate, "Sample rate used to scale ms/s amounts")
	ranges := flag.String("range", "0:0", "Comma-separated per-pair reported ranges as min:max samples")
	name := flag.String("name", "set-latency", "Client name registered with the host")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] amount\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		return fmt.Errorf("exactly one amount argument is required")
	}

	host := simhost.New(&simhost.Config{SampleRate: *rate})

	amount, err := align.ParseAmount(flag.Arg(0), host.SampleRate())
	if err != nil {
		return err
	}

	reported, err := parseRangeList(*ranges, *pairs)
	if err != nil {
		return err
	}

	logger := zerolog.Nop()
	if *verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
	}

	corrector, err := align.NewCorrector(host, &align.CorrectorConfig{
		Pairs:           *pairs,
		CorrectCapture:  *capture,
		CorrectPlayback: *playback,
		Join:            *join,
		Absolute:        *absolute,
		Coefficient:     *coefficient,
		Amount:          amount,
		Name:            *name,
	}, align.WithCorrectorLogger(logger))
	if err != nil {
		return err
	}
	if err := corrector.Start(); err != nil {
		return err
	}
	defer func() { _ = corrector.Close() }()

	// Report the given ranges on the side each direction reads from, then
	// run one pass so the corrector republishes them rewritten.
	correctPlayback := *playback || !*capture
	for i, r := range reported {
		if correctPlayback {
			host.Port(fmt.Sprintf("output_%d", i+1)).SetLatencyRange(align.Playback, r)
		}
		if *capture {
			host.Port(fmt.Sprintf("input_%d", i+1)).SetLatencyRange(align.Capture, r)
		}
	}
	if err := host.TriggerLatencyPass(); err != nil {
		return err
	}

	fmt.Printf("amount: %g samples at %d Hz\n", amount, host.SampleRate())
	for i, r := range reported {
		if correctPlayback {
			got := host.Port(fmt.Sprintf("input_%d", i+1)).LatencyRange(align.Playback)
			fmt.Printf("pair %d playback: [%g, %g] -> [%g, %g]\n", i+1, r.Min, r.Max, got.Min, got.Max)
		}
		if *capture {
			got := host.Port(fmt.Sprintf("output_%d", i+1)).LatencyRange(align.Capture)
			fmt.Printf("pair %d capture:  [%g, %g] -> [%g, %g]\n", i+1, r.Min, r.Max, got.Min, got.Max)
		}
	}

	return nil
}

// parseRangeList parses "min:max,min:max,..." into per-pair ranges. A single
// range is broadcast to every pair.
func parseRangeList(list string, pairs int) ([]align.Range, error) {
	parts := strings.Split(list, ",")
	if len(parts) != pairs && len(parts) != 1 {
		return nil, fmt.Errorf("-range has %d values for %d pairs", len(parts), pairs)
	}

	parsed := make([]align.Range, len(parts))
	for i, part := range parts {
		bounds := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("malformed range %q, want min:max", part)
		}
		minVal, err := strconv.ParseFloat(bounds[0], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed range %q: %w", part, err)
		}
		maxVal, err := strconv.ParseFloat(bounds[1], 64)
		if err != nil {
			return nil, fmt.Errorf("malformed range %q: %w", part, err)
		}
		if maxVal < minVal {
			return nil, fmt.Errorf("malformed range %q: max below min", part)
		}
		parsed[i] = align.Range{Min: minVal, Max: maxVal}
	}

	if len(parsed) == 1 && pairs > 1 {
		broadcast := make([]align.Range, pairs)
		for i := range broadcast {
			broadcast[i] = parsed[0]
		}
		return broadcast, nil
	}
	return parsed, nil
}
