package stimulus

import "math"

// Synchronization markers are short sine bursts placed before and after the
// music. The analysis host uses them to line up the playback and recording
// clocks, so their positions are part of the descriptor.

// synthMarker renders one marker burst: a sine at freq with a linear
// attack/release ramp over the first and last 10% of the burst to avoid
// clicks in the rendered stimulus.
func synthMarker(freq float64, duration float64, amplitude float64, sampleRate int) []float64 {
	n := int(duration * float64(sampleRate))
	ramp := n / 10
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		switch {
		case i < ramp:
			v *= float64(i) / float64(ramp)
		case i >= n-ramp:
			v *= float64(n-1-i) / float64(ramp)
		}
		out[i] = v
	}
	return out
}

// placeMarkers writes count marker bursts into dst starting at startSec,
// spaced spacingSec apart, and returns the burst start times in seconds.
func placeMarkers(dst []float64, startSec float64, count int, cfg Config) []float64 {
	burst := synthMarker(cfg.MarkerFreq, cfg.MarkerDuration, cfg.MarkerAmplitude, cfg.SampleRate)
	times := make([]float64, 0, count)
	for m := 0; m < count; m++ {
		t := startSec + float64(m)*cfg.MarkerSpacing
		offset := int(t * float64(cfg.SampleRate))
		for i, s := range burst {
			if offset+i >= len(dst) {
				break
			}
			dst[offset+i] += s
		}
		times = append(times, t)
	}
	return times
}
