package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// Clip holds clipping statistics for a decoded waveform.
type Clip struct {
	ClippedSamples int
	Ratio          float64 // clipped samples / total samples
}

// ReadWAV decodes a PCM WAV file into mono float64 samples normalized to
// [-1, 1] and returns the sample rate. Stereo input is downmixed by
// averaging channels.
func ReadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file: %s", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, errors.New("WAV file contains no samples")
	}

	numChans := buf.Format.NumChannels
	if numChans < 1 || numChans > 2 {
		return nil, 0, fmt.Errorf("unsupported channel count: %d", numChans)
	}

	scale := 1.0 / float64(int(1)<<(uint(decoder.BitDepth)-1))

	var samples []float64
	switch numChans {
	case 1:
		samples = make([]float64, len(buf.Data))
		for i, v := range buf.Data {
			samples[i] = float64(v) * scale
		}
	case 2:
		frames := len(buf.Data) / 2
		samples = make([]float64, frames)
		for i := 0; i < frames; i++ {
			l := float64(buf.Data[2*i]) * scale
			r := float64(buf.Data[2*i+1]) * scale
			samples[i] = (l + r) * 0.5
		}
	}

	return samples, buf.Format.SampleRate, nil
}

// MeasureClipping counts samples at or beyond full scale. Normalized
// samples sit in [-1, 1]; anything with |x| >= threshold counts as clipped.
func MeasureClipping(samples []float64, threshold float64) Clip {
	if threshold <= 0 {
		threshold = 0.999
	}
	var clipped int
	for _, s := range samples {
		if s >= threshold || s <= -threshold {
			clipped++
		}
	}
	c := Clip{ClippedSamples: clipped}
	if len(samples) > 0 {
		c.Ratio = float64(clipped) / float64(len(samples))
	}
	return c
}
