package onset

import "math"

// Config holds the onset detection tunables. All values are starting
// points, not hard invariants; hosts tune them per recording setup.
type Config struct {
	LowHz         float64 // band-pass lower edge for tap transients
	HighHz        float64 // band-pass upper edge
	SmoothingSec  float64 // envelope moving-average window
	RefractorySec float64 // minimum spacing between accepted onsets
	NoiseFactor   float64 // threshold = noise floor * NoiseFactor
	MinAmplitude  float64 // absolute envelope floor, rejects near-silence
}

func DefaultConfig() Config {
	return Config{
		LowHz:         80,
		HighHz:        1000,
		SmoothingSec:  0.010,
		RefractorySec: 0.100,
		NoiseFactor:   4.0,
		MinAmplitude:  0.02,
	}
}

// Detect extracts tap onset times (seconds, ascending) from a mono
// waveform. Silence yields an empty result, not an error; background
// noise below the adaptive threshold is ignored.
//
// The chain is band-pass filtering to isolate the tap transient band,
// full-wave rectification, a short moving-average envelope, and
// threshold crossing with a refractory interval. Within one refractory
// window the earliest crossing wins. Time resolution is one sample.
func Detect(samples []float64, sampleRate int, cfg Config) []float64 {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil
	}

	filtered := bandpass(samples, sampleRate, cfg.LowHz, cfg.HighHz)
	env := envelope(filtered, sampleRate, cfg.SmoothingSec)

	threshold := noiseFloor(env) * cfg.NoiseFactor
	if threshold < cfg.MinAmplitude {
		threshold = cfg.MinAmplitude
	}

	refractory := int(cfg.RefractorySec * float64(sampleRate))
	if refractory < 1 {
		refractory = 1
	}

	var onsets []float64
	lastOnset := -refractory // sample index of last accepted onset
	armed := true
	for i, e := range env {
		if !armed {
			if e < threshold {
				armed = true
			}
			continue
		}
		if e >= threshold {
			if i-lastOnset >= refractory {
				onsets = append(onsets, float64(i)/float64(sampleRate))
				lastOnset = i
			}
			armed = false
		}
	}
	return onsets
}

// envelope rectifies the signal and smooths it with a centered moving
// average of roughly windowSec width.
func envelope(samples []float64, sampleRate int, windowSec float64) []float64 {
	n := len(samples)
	win := int(windowSec * float64(sampleRate))
	if win < 1 {
		win = 1
	}
	half := win / 2

	// prefix sums over |x| for O(n) smoothing
	prefix := make([]float64, n+1)
	for i, s := range samples {
		prefix[i+1] = prefix[i] + math.Abs(s)
	}

	env := make([]float64, n)
	for i := 0; i < n; i++ {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half + 1
		if hi > n {
			hi = n
		}
		env[i] = (prefix[hi] - prefix[lo]) / float64(hi-lo)
	}
	return env
}

// noiseFloor estimates the background level as the median of the
// envelope. Taps are sparse, so the median sits on the noise, not the
// transients.
func noiseFloor(env []float64) float64 {
	if len(env) == 0 {
		return 0
	}
	sorted := make([]float64, len(env))
	copy(sorted, env)
	quickSelect(sorted, len(sorted)/2)
	return sorted[len(sorted)/2]
}

// quickSelect partially sorts s so that s[k] holds the k-th smallest value.
func quickSelect(s []float64, k int) {
	lo, hi := 0, len(s)-1
	for lo < hi {
		pivot := s[(lo+hi)/2]
		i, j := lo, hi
		for i <= j {
			for s[i] < pivot {
				i++
			}
			for s[j] > pivot {
				j--
			}
			if i <= j {
				s[i], s[j] = s[j], s[i]
				i++
				j--
			}
		}
		if k <= j {
			hi = j
		} else if k >= i {
			lo = i
		} else {
			return
		}
	}
}
