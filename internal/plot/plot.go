package plot

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/eligwz/spectrogram"
)

const (
	width  = 2048
	height = 512
	// tick height in pixels for the onset overlay at the top of the image
	tickDepth = 48
)

// Render writes a diagnostic PNG for one analyzed recording: the
// recording's spectrogram with a vertical tick at every detected tap
// onset. Plot failures are reported to the caller but never affect the
// verdict.
func Render(path string, samples []float64, sampleRate int, onsets []float64) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples to plot")
	}

	img := spectrogram.NewImage128(image.Rect(0, 0, width, height))

	black := spectrogram.ParseColor("000000")
	draw.Draw(img, img.Bounds(), image.NewUniform(black), image.Point{}, draw.Src)

	// RECTANGLE: false = Hamming window; DFT: false = FFT;
	// MAG: true = magnitude; LOG10: false = linear scale
	spectrogram.Drawfft(
		img,
		samples,
		uint32(sampleRate),
		uint32(height),
		false,
		false,
		true,
		false,
	)

	duration := float64(len(samples)) / float64(sampleRate)
	tick := spectrogram.ParseColor("ffffff")
	for _, t := range onsets {
		x := int(t / duration * float64(width))
		if x < 0 || x >= width {
			continue
		}
		for y := 0; y < tickDepth; y++ {
			img.Set(x, y, tick)
		}
	}

	if err := spectrogram.SavePng(img, path); err != nil {
		return fmt.Errorf("saving plot PNG: %w", err)
	}
	return nil
}
