package tapalign

import (
	"github.com/beatlab/tapalign/internal/align"
	"github.com/beatlab/tapalign/internal/stimulus"
)

// Reason enumerates why a verdict failed, so the host can show the
// participant a specific remediation message.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoTapsDetected    Reason = "no_taps_detected"
	ReasonTooFewTaps        Reason = "too_few_taps"
	ReasonLowMatchRate      Reason = "low_match_rate"
	ReasonDecodeFailure     Reason = "decode_failure"
	ReasonClipping          Reason = "clipping"
	ReasonAnalysisException Reason = "analysis_exception"
)

// StimulusDescriptor describes one prepared stimulus: identity, duration,
// the expected beat onset times (strictly increasing, seconds) and the
// embedded synchronization marker positions.
type StimulusDescriptor struct {
	Name        string
	SourceAudio string
	Duration    float64
	Onsets      []float64
	Markers     []float64
	SampleRate  int
}

// OnsetMatch pairs one expected beat with the detected tap assigned to it.
// Tap is nil for a miss; Offset is tap minus expected.
type OnsetMatch struct {
	Expected float64
	Tap      *float64
	Offset   float64
}

// Stats summarizes one scored recording.
type Stats struct {
	OnsetCount        int
	Matched           int
	Misses            int
	Extras            int
	MatchRate         float64
	MeanAbsAsynchrony float64
}

// AlignmentVerdict is the result of scoring one recording against its
// stimulus. Failures are data: a verdict with Failed set, never an error.
type AlignmentVerdict struct {
	AnalysisID string
	Failed     bool
	Reason     Reason
	Matches    []OnsetMatch
	Stats      Stats
}

func descriptorFromInternal(d *stimulus.Descriptor) *StimulusDescriptor {
	return &StimulusDescriptor{
		Name:        d.Name,
		SourceAudio: d.SourceAudio,
		Duration:    d.Duration,
		Onsets:      d.Onsets,
		Markers:     d.Markers,
		SampleRate:  d.SampleRate,
	}
}

func descriptorToInternal(d *StimulusDescriptor) (*stimulus.Descriptor, error) {
	return stimulus.NewDescriptor(d.Name, d.SourceAudio, d.Duration, d.Onsets, d.Markers, d.SampleRate)
}

func verdictFromInternal(v *align.Verdict) *AlignmentVerdict {
	matches := make([]OnsetMatch, len(v.Matches))
	for i, m := range v.Matches {
		matches[i] = OnsetMatch{Expected: m.Expected, Tap: m.Tap, Offset: m.Offset}
	}
	return &AlignmentVerdict{
		AnalysisID: v.AnalysisID,
		Failed:     v.Failed,
		Reason:     Reason(v.Reason),
		Matches:    matches,
		Stats: Stats{
			OnsetCount:        v.Stats.OnsetCount,
			Matched:           v.Stats.Matched,
			Misses:            v.Stats.Misses,
			Extras:            v.Stats.Extras,
			MatchRate:         v.Stats.MatchRate,
			MeanAbsAsynchrony: v.Stats.MeanAbsAsynchrony,
		},
	}
}

// LoadDescriptor reads a persisted stimulus descriptor record back from
// disk and re-validates its beat grid.
func LoadDescriptor(path string) (*StimulusDescriptor, error) {
	d, err := stimulus.Load(path)
	if err != nil {
		return nil, err
	}
	return descriptorFromInternal(d), nil
}
