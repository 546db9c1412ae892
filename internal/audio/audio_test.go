package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeTestWAV writes a mono sine burst as a 16-bit WAV and returns its path.
func writeTestWAV(t *testing.T, samples []float64, sampleRate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wav")
	if err := WriteWAV(path, samples, sampleRate); err != nil {
		t.Fatalf("WriteWAV failed: %v", err)
	}
	return path
}

func sine(freq, amplitude float64, durSec float64, sampleRate int) []float64 {
	n := int(durSec * float64(sampleRate))
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	const sampleRate = 44100
	original := sine(440, 0.5, 0.25, sampleRate)
	path := writeTestWAV(t, original, sampleRate)

	samples, sr, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV failed: %v", err)
	}

	if sr != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, sr)
	}
	if len(samples) != len(original) {
		t.Fatalf("Expected %d samples, got %d", len(original), len(samples))
	}

	// 16-bit quantization allows ~1/32768 of error per sample
	for i := range samples {
		if diff := math.Abs(samples[i] - original[i]); diff > 1.0/32000 {
			t.Fatalf("Sample %d differs by %f after round trip", i, diff)
		}
	}
}

func TestReadWAVInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("not a wav file at all"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := ReadWAV(path); err == nil {
		t.Error("Expected error for invalid WAV file")
	}
}

func TestReadWAVMissingFile(t *testing.T) {
	if _, _, err := ReadWAV(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestMeasureClipping(t *testing.T) {
	tests := []struct {
		name        string
		samples     []float64
		wantClipped int
	}{
		{"clean", []float64{0.1, -0.3, 0.5, -0.7}, 0},
		{"positive clip", []float64{0.1, 1.0, 0.999, 0.2}, 2},
		{"negative clip", []float64{-1.0, -0.999, 0.0}, 2},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := MeasureClipping(tt.samples, 0.999)
			if c.ClippedSamples != tt.wantClipped {
				t.Errorf("Expected %d clipped samples, got %d", tt.wantClipped, c.ClippedSamples)
			}
			if len(tt.samples) > 0 {
				want := float64(tt.wantClipped) / float64(len(tt.samples))
				if math.Abs(c.Ratio-want) > 1e-12 {
					t.Errorf("Expected ratio %f, got %f", want, c.Ratio)
				}
			}
		})
	}
}

func TestMeasureClippingDefaultThreshold(t *testing.T) {
	c := MeasureClipping([]float64{1.0, 0.5}, 0)
	if c.ClippedSamples != 1 {
		t.Errorf("Expected default threshold to flag full-scale sample, got %d", c.ClippedSamples)
	}
}
