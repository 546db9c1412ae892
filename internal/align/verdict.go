package align

// Reason enumerates the causes a verdict can fail with. The host maps
// each one to a specific remediation message for the participant, so the
// set stays small and stable.
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

// OnsetMatch pairs one expected beat onset with the detected tap assigned
// to it, if any. Tap is nil for a miss; Offset is tap minus expected and
// only meaningful when Tap is set.
type OnsetMatch struct {
	Expected float64  `json:"expected"`
	Tap      *float64 `json:"tap"`
	Offset   float64  `json:"offset"`
}

// Stats summarizes one scored recording.
type Stats struct {
	OnsetCount        int     `json:"onset_count"` // detected taps
	Matched           int     `json:"matched"`
	Misses            int     `json:"misses"`
	Extras            int     `json:"extras"`
	MatchRate         float64 `json:"match_rate"`          // matched / expected
	MeanAbsAsynchrony float64 `json:"mean_abs_asynchrony"` // seconds, over matched pairs
}

// Verdict is the terminal artifact of one trial analysis. Immutable once
// produced. Matches has exactly the length and order of the descriptor's
// expected onsets it was computed against.
type Verdict struct {
	AnalysisID string       `json:"analysis_id"`
	Failed     bool         `json:"failed"`
	Reason     Reason       `json:"reason,omitempty"`
	Matches    []OnsetMatch `json:"matches"`
	Stats      Stats        `json:"stats"`
}

// FailedVerdict builds a verdict for a recording that could not be scored
// at all: every expected onset becomes a miss.
func FailedVerdict(reason Reason, expected []float64) *Verdict {
	matches := make([]OnsetMatch, len(expected))
	for i, t := range expected {
		matches[i] = OnsetMatch{Expected: t}
	}
	return &Verdict{
		Failed:  true,
		Reason:  reason,
		Matches: matches,
		Stats: Stats{
			Misses: len(expected),
		},
	}
}
