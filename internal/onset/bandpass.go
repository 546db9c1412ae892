package onset

import "github.com/mjibson/go-dsp/fft"

// bandpass filters the signal to [lowHz, highHz] in the frequency domain:
// forward FFT, zero every bin outside the band (and its mirrored negative
// frequency), inverse FFT. Phase is untouched, so transient timing is
// preserved, which is what the detector cares about.
func bandpass(samples []float64, sampleRate int, lowHz, highHz float64) []float64 {
	n := len(samples)
	if n == 0 {
		return nil
	}
	if highHz <= 0 || highHz > float64(sampleRate)/2 {
		highHz = float64(sampleRate) / 2
	}
	if lowHz < 0 {
		lowHz = 0
	}

	spectrum := fft.FFTReal(samples)
	binHz := float64(sampleRate) / float64(n)

	for k := 0; k <= n/2; k++ {
		freq := float64(k) * binHz
		if freq >= lowHz && freq <= highHz {
			continue
		}
		spectrum[k] = 0
		if k > 0 && k < n-k {
			spectrum[n-k] = 0
		}
	}

	inv := fft.IFFT(spectrum)
	out := make([]float64, n)
	for i, c := range inv {
		out[i] = real(c)
	}
	return out
}
