package stimulus

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/beatlab/tapalign/pkg/utils"
)

// Descriptor describes one prepared stimulus: the beat grid a participant
// is expected to tap to, plus the layout of the synchronization markers
// embedded in the stimulus waveform. Descriptors are immutable once built
// and are the unit the preparation cache stores.
type Descriptor struct {
	Name        string    `json:"stim_name"`
	SourceAudio string    `json:"source_audio"`
	Duration    float64   `json:"stim_duration"` // seconds, full prepared waveform
	Onsets      []float64 `json:"stim_onsets"`   // expected beat times, seconds
	Markers     []float64 `json:"markers_onsets"`
	SampleRate  int       `json:"sample_rate"`
}

// NewDescriptor validates the beat grid: onset times must be non-negative
// and strictly increasing.
func NewDescriptor(name, sourceAudio string, duration float64, onsets, markers []float64, sampleRate int) (*Descriptor, error) {
	if name == "" {
		return nil, errors.New("stimulus name is empty")
	}
	if len(onsets) > 0 && onsets[0] < 0 {
		return nil, fmt.Errorf("stimulus %q: negative onset time %f", name, onsets[0])
	}
	for i := 1; i < len(onsets); i++ {
		if onsets[i] <= onsets[i-1] {
			return nil, fmt.Errorf("stimulus %q: onsets not strictly increasing at index %d (%f <= %f)",
				name, i, onsets[i], onsets[i-1])
		}
	}
	return &Descriptor{
		Name:        name,
		SourceAudio: sourceAudio,
		Duration:    duration,
		Onsets:      onsets,
		Markers:     markers,
		SampleRate:  sampleRate,
	}, nil
}

// Save persists the descriptor as a JSON key-value record, written to a
// temp file and renamed into place.
func (d *Descriptor) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling descriptor %q: %w", d.Name, err)
	}

	tmpPath := path + ".tmp"
	defer os.Remove(tmpPath)

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing descriptor %q: %w", d.Name, err)
	}
	return utils.MoveFile(tmpPath, path)
}

// Load reads a descriptor back from its persisted JSON record and
// re-validates the beat grid.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parsing descriptor: %w", err)
	}

	return NewDescriptor(d.Name, d.SourceAudio, d.Duration, d.Onsets, d.Markers, d.SampleRate)
}
