package stimulus

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/beatlab/tapalign/internal/audio"
	"github.com/beatlab/tapalign/internal/onset"
)

// Config holds the stimulus layout parameters. The prepared waveform is:
// lead-in silence, a group of start markers, a gap, the music, a gap, a
// group of end markers, tail silence.
type Config struct {
	SampleRate      int
	MarkerCount     int     // markers per group (start and end)
	MarkerFreq      float64 // Hz
	MarkerDuration  float64 // seconds
	MarkerSpacing   float64 // seconds between marker starts in a group
	MarkerAmplitude float64
	LeadInSilence   float64 // seconds before the first marker
	MusicGap        float64 // seconds between a marker group and the music
	TailSilence     float64 // seconds after the last marker
	MinMusicSec     float64 // shortest usable music excerpt
	MinOnsets       int     // smallest usable beat grid

	// Onset is the detection fallback for the beat grid when the music has
	// no sidecar onset list. Hosts tuning detection for analysis should
	// tune it here too so both stages see the same beats.
	Onset onset.Config
}

func DefaultConfig() Config {
	return Config{
		SampleRate:      44100,
		MarkerCount:     3,
		MarkerFreq:      300,
		MarkerDuration:  0.015,
		MarkerSpacing:   0.6,
		MarkerAmplitude: 0.9,
		LeadInSilence:   1.0,
		MusicGap:        0.5,
		TailSilence:     0.5,
		MinMusicSec:     1.0,
		MinOnsets:       2,
		Onset:           onset.DefaultConfig(),
	}
}

// PreparationError reports a stimulus that cannot be prepared. It is fatal
// to that stimulus and surfaced to the caller at setup time.
type PreparationError struct {
	Stimulus string
	Err      error
}

func (e *PreparationError) Error() string {
	return fmt.Sprintf("preparing stimulus %q: %v", e.Stimulus, e.Err)
}

func (e *PreparationError) Unwrap() error { return e.Err }

// Prepare builds the stimulus waveform with embedded synchronization
// markers and the descriptor of its expected beat structure. Deterministic
// for a given input, which is what lets the cache key on identity.
//
// The beat grid comes from a sidecar "<audioPath>.onsets.txt" (one onset
// time per line, seconds) when one exists, otherwise from onset detection
// over the music itself.
func Prepare(name, audioPath string, cfg Config) ([]float64, *Descriptor, error) {
	samples, sampleRate, err := audio.ReadWAV(audioPath)
	if err != nil {
		return nil, nil, &PreparationError{Stimulus: name, Err: err}
	}

	musicDur := float64(len(samples)) / float64(sampleRate)
	if musicDur < cfg.MinMusicSec {
		return nil, nil, &PreparationError{
			Stimulus: name,
			Err:      fmt.Errorf("music too short: %.2fs < %.2fs", musicDur, cfg.MinMusicSec),
		}
	}

	musicOnsets, err := beatGrid(audioPath, samples, sampleRate, cfg.Onset)
	if err != nil {
		return nil, nil, &PreparationError{Stimulus: name, Err: err}
	}
	if len(musicOnsets) < cfg.MinOnsets {
		return nil, nil, &PreparationError{
			Stimulus: name,
			Err:      fmt.Errorf("no usable beat grid: %d onsets, need %d", len(musicOnsets), cfg.MinOnsets),
		}
	}

	// Resample-free path: the stimulus is rendered at the music's own rate
	// when the config rate matches, otherwise the caller is expected to
	// have converted the source first.
	if sampleRate != cfg.SampleRate {
		return nil, nil, &PreparationError{
			Stimulus: name,
			Err:      fmt.Errorf("source sample rate %d does not match stimulus rate %d", sampleRate, cfg.SampleRate),
		}
	}

	markerBlock := float64(cfg.MarkerCount-1)*cfg.MarkerSpacing + cfg.MarkerDuration
	musicStart := cfg.LeadInSilence + markerBlock + cfg.MusicGap
	endMarkersStart := musicStart + musicDur + cfg.MusicGap
	totalDur := endMarkersStart + markerBlock + cfg.TailSilence

	waveform := make([]float64, int(totalDur*float64(cfg.SampleRate)))

	startMarkers := placeMarkers(waveform, cfg.LeadInSilence, cfg.MarkerCount, cfg)
	musicOffset := int(musicStart * float64(cfg.SampleRate))
	copy(waveform[musicOffset:], samples)
	endMarkers := placeMarkers(waveform, endMarkersStart, cfg.MarkerCount, cfg)

	markers := append(startMarkers, endMarkers...)

	// Shift the beat grid into the prepared waveform's time base.
	shifted := make([]float64, len(musicOnsets))
	for i, t := range musicOnsets {
		shifted[i] = t + musicStart
	}

	desc, err := NewDescriptor(name, audioPath, totalDur, shifted, markers, cfg.SampleRate)
	if err != nil {
		return nil, nil, &PreparationError{Stimulus: name, Err: err}
	}

	return waveform, desc, nil
}

// beatGrid resolves the expected onset times of the raw music, in the
// music's own time base.
func beatGrid(audioPath string, samples []float64, sampleRate int, cfg onset.Config) ([]float64, error) {
	sidecar := audioPath + ".onsets.txt"
	if _, err := os.Stat(sidecar); err == nil {
		return readOnsetsFile(sidecar)
	}
	return onset.Detect(samples, sampleRate, cfg), nil
}

func readOnsetsFile(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var onsets []float64
	sc := bufio.NewScanner(f)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		v, err := strconv.ParseFloat(strings.Fields(line)[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %s line %d: %w", path, lineNum, err)
		}
		onsets = append(onsets, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return onsets, nil
}
