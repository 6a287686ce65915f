package main

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Sample format constants.
const (
	bitsPerSample16 = 16
	bitsPerSample24 = 24
	bitsPerSample32 = 32

	maxInt16 = 32767.0
	maxInt24 = 8388607.0
	maxInt32 = 2147483647.0

	// wavFormatPCM is the RIFF audio format tag for linear PCM.
	wavFormatPCM = 1
)

// wavChannel holds one decoded mono channel.
type wavChannel struct {
	rate     int
	bitDepth int
	samples  []float32
}

// readWAVMono decodes a mono WAV file into normalized float32 samples.
func readWAVMono(path string) (*wavChannel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer func() { _ = f.Close() }()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file: %s", path)
	}

	format := decoder.Format()
	if format.NumChannels != 1 {
		return nil, fmt.Errorf("%s: %d channels; only mono files are supported (split multichannel files first)",
			path, format.NumChannels)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data from %s: %w", path, err)
	}

	bitDepth := int(decoder.BitDepth)
	invMax := 1.0 / maxSampleValue(bitDepth)

	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(float64(v) * invMax)
	}

	return &wavChannel{
		rate:     format.SampleRate,
		bitDepth: bitDepth,
		samples:  samples,
	}, nil
}

// writeWAVMono encodes normalized float32 samples as a mono PCM WAV file.
func writeWAVMono(path string, rate, bitDepth int, samples []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	maxVal := maxSampleValue(bitDepth)
	data := make([]int, len(samples))
	for i, s := range samples {
		v := float64(s)
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		data[i] = int(v * maxVal)
	}

	enc := wav.NewEncoder(f, rate, bitDepth, 1, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return fmt.Errorf("failed to write audio data to %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return f.Close()
}

// maxSampleValue returns the full-scale sample value for a bit depth.
func maxSampleValue(bitDepth int) float64 {
	switch bitDepth {
	case bitsPerSample24:
		return maxInt24
	case bitsPerSample32:
		return maxInt32
	case bitsPerSample16:
		return maxInt16
	default:
		return maxInt16
	}
}

// checkSameRate verifies all channels share one sample rate.
func checkSameRate(channels []*wavChannel) error {
	rate := channels[0].rate
	for _, ch := range channels[1:] {
		if ch.rate != rate {
			return fmt.Errorf("sample rates differ (%d vs %d); resample first", rate, ch.rate)
		}
	}
	return nil
}

// padToCommonLength zero-pads every channel to the longest one and returns
// the common length in frames.
func padToCommonLength(channels []*wavChannel) int {
	frames := 0
	for _, ch := range channels {
		if len(ch.samples) > frames {
			frames = len(ch.samples)
		}
	}
	for _, ch := range channels {
		for len(ch.samples) < frames {
			ch.samples = append(ch.samples, 0)
		}
	}
	return frames
}
