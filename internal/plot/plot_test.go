package plot

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestRenderWritesPNG(t *testing.T) {
	const sampleRate = 8000
	samples := make([]float64, sampleRate) // 1s
	for i := range samples {
		samples[i] = 0.3 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
	}

	path := filepath.Join(t.TempDir(), "analysis.png")
	if err := Render(path, samples, sampleRate, []float64{0.25, 0.5, 0.75}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Expected plot file: %v", err)
	}
	if fi.Size() == 0 {
		t.Error("Plot file is empty")
	}
}

func TestRenderEmptyInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.png")
	if err := Render(path, nil, 44100, nil); err == nil {
		t.Error("Expected error for empty samples")
	}
}

func TestRenderOnsetOutsideDuration(t *testing.T) {
	const sampleRate = 8000
	samples := make([]float64, sampleRate/2)

	path := filepath.Join(t.TempDir(), "ticks.png")
	// onset past the end of the recording must be skipped, not panic
	if err := Render(path, samples, sampleRate, []float64{10.0}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
}
