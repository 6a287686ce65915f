// Command align-wav time-aligns a set of mono WAV files the way the
// latency-equalization engine aligns live channels: each file is treated as
// one channel pair whose reported latency is either given on the command
// line or estimated by cross-correlation against the first file, and the
// engine delays the faster files until all of them line up.
//
// Usage:
//
//	align-wav -latency 240,0,120 drums.wav bass.wav keys.wav
//	align-wav -estimate take1.wav take2.wav
//	align-wav -estimate -out aligned/ -v mic1.wav mic2.wav mic3.wav
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	align "github.com/tphakala/go-audio-align"
	"github.com/tphakala/go-audio-align/internal/simhost"
)

const (
	// defaultBlockSize is the number of frames driven per simulated block.
	defaultBlockSize = 1024

	// defaultMaxLag bounds the cross-correlation search (one second at 48 kHz).
	defaultMaxLag = 48000

	// minRequiredFiles is the smallest useful input count.
	minRequiredFiles = 2
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "align-wav:", err)
		os.Exit(1)
	}
}

func run() error {
	latencyList := flag.String("latency", "", "Comma-separated per-file latencies in samples (e.g. 240,0,120)")
	estimate := flag.Bool("estimate", false, "Estimate per-file latencies by cross-correlating against the first file")
	maxLag := flag.Int("max-lag", defaultMaxLag, "Maximum lag in samples searched by -estimate")
	coefficient := flag.Float64("coefficient", align.DefaultCoefficient, "Latency coefficient: 0 aligns to range minima, 1 to maxima")
	keep := flag.Bool("keep", false, "Keep the maximum latency; don't reduce delays")
	blockSize := flag.Int("block", defaultBlockSize, "Block size in frames")
	outDir := flag.String("out", ".", "Output directory")
	suffix := flag.String("suffix", "_aligned", "Suffix appended to output file names")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	files := flag.Args()
	if len(files) < minRequiredFiles {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] input1.wav input2.wav [...]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		return fmt.Errorf("need at least %d input files", minRequiredFiles)
	}
	if *latencyList == "" && !*estimate {
		return fmt.Errorf("one of -latency or -estimate is required")
	}
	if *latencyList != "" && *estimate {
		return fmt.Errorf("-latency and -estimate are mutually exclusive")
	}
	if *blockSize < 1 {
		return fmt.Errorf("block size must be positive")
	}

	logger := newLogger(*verbose)

	// Load every channel and bring them to a common length.
	channels := make([]*wavChannel, len(files))
	for i, path := range files {
		ch, err := readWAVMono(path)
		if err != nil {
			return err
		}
		channels[i] = ch
		logger.Debug().
			Str("file", path).
			Int("rate", ch.rate).
			Int("bit_depth", ch.bitDepth).
			Int("samples", len(ch.samples)).
			Msg("loaded channel")
	}
	if err := checkSameRate(channels); err != nil {
		return err
	}
	frames := padToCommonLength(channels)

	// Resolve per-channel latencies.
	var latencies []int
	var err error
	if *estimate {
		latencies = estimateOffsets(channels, *maxLag)
		logger.Info().Ints("latencies", latencies).Msg("estimated channel latencies")
	} else {
		latencies, err = parseLatencyList(*latencyList, len(channels))
		if err != nil {
			return err
		}
	}

	// Stand up the simulated graph and the engine.
	host := simhost.New(&simhost.Config{
		SampleRate: channels[0].rate,
		BlockSize:  *blockSize,
	})
	engine, err := align.New(host, &align.Config{
		Pairs:            len(channels),
		EqualizePlayback: true,
		KeepMaximum:      *keep,
		Coefficient:      *coefficient,
		Name:             "align-wav",
		Metering:         *verbose,
	}, align.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := engine.Start(); err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	// Report each file's latency downstream of its output port and let the
	// engine negotiate compensation delays.
	for i, lat := range latencies {
		port := host.Port(fmt.Sprintf("output_%d", i+1))
		port.SetLatencyRange(align.Playback, align.Range{Min: float64(lat), Max: float64(lat)})
	}
	if err := host.TriggerLatencyPass(); err != nil {
		return err
	}

	delays := engine.Delays()
	logger.Info().Ints("delays", delays).Msg("compensation delays negotiated")

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer stop()

	aligned, err := driveChannels(ctx, host, engine, channels, frames, *blockSize)
	if err != nil {
		return err
	}
	if aligned == nil {
		logger.Info().Msg("interrupted, exiting")
		return nil
	}

	if *verbose {
		for i, level := range engine.Levels() {
			logger.Debug().
				Int("pair", i+1).
				Float32("peak", level.Peak).
				Float64("rms", level.RMS).
				Msg("output level")
		}
	}

	// Write the aligned channels.
	for i, ch := range channels {
		outPath := outputPath(*outDir, files[i], *suffix)
		if err := writeWAVMono(outPath, ch.rate, ch.bitDepth, aligned[i]); err != nil {
			return err
		}
		fmt.Printf("%s -> %s (delay %d samples)\n", filepath.Base(files[i]), outPath, delays[i])
	}

	return nil
}

// driveChannels streams every channel through the engine block by block,
// feeding silence past each file's end so the delayed tails drain fully.
// Returns nil output when the context is canceled.
func driveChannels(
	ctx context.Context,
	host *simhost.Host,
	engine *align.Engine,
	channels []*wavChannel,
	frames, blockSize int,
) ([][]float32, error) {
	maxDelay := 0
	for _, d := range engine.Delays() {
		if d > maxDelay {
			maxDelay = d
		}
	}
	total := frames + maxDelay

	inputs := make([]*simhost.Port, len(channels))
	outputs := make([]*simhost.Port, len(channels))
	for i := range channels {
		inputs[i] = host.Port(fmt.Sprintf("input_%d", i+1))
		outputs[i] = host.Port(fmt.Sprintf("output_%d", i+1))
	}

	aligned := make([][]float32, len(channels))
	for i := range aligned {
		aligned[i] = make([]float32, 0, total)
	}

	for offset := 0; offset < total; offset += blockSize {
		if ctx.Err() != nil {
			return nil, nil
		}

		n := blockSize
		if total-offset < n {
			n = total - offset
		}

		for i, ch := range channels {
			buf := inputs[i].Buffer(n)
			for j := range buf {
				if offset+j < len(ch.samples) {
					buf[j] = ch.samples[offset+j]
				} else {
					buf[j] = 0
				}
			}
		}

		if err := host.DriveBlock(n); err != nil {
			return nil, err
		}

		for i := range channels {
			aligned[i] = append(aligned[i], outputs[i].Buffer(n)...)
		}
	}

	return aligned, nil
}

// parseLatencyList parses the -latency argument into per-channel samples.
func parseLatencyList(list string, channels int) ([]int, error) {
	parts := strings.Split(list, ",")
	if len(parts) != channels {
		return nil, fmt.Errorf("-latency has %d values for %d files", len(parts), channels)
	}

	latencies := make([]int, channels)
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || v < 0 {
			return nil, fmt.Errorf("malformed latency %q", part)
		}
		latencies[i] = v
	}
	return latencies, nil
}

// outputPath builds "<dir>/<base><suffix>.wav" from an input path.
func outputPath(dir, input, suffix string) string {
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	return filepath.Join(dir, strings.TrimSuffix(base, ext)+suffix+ext)
}

// newLogger builds the console logger used by the tool.
func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
