package align

import (
	"math"
	"sort"

	"github.com/beatlab/tapalign/internal/stimulus"
)

// Config holds the alignment tunables.
type Config struct {
	ToleranceSec float64 // symmetric match window around each expected onset
	MinMatchRate float64 // verdict fails below this
	MinTaps      int     // fewer detected taps than this cannot be scored
}

func DefaultConfig() Config {
	return Config{
		ToleranceSec: 0.150,
		MinMatchRate: 0.5,
		MinTaps:      2,
	}
}

type candidate struct {
	expIdx int
	tapIdx int
	absOff float64
}

// quantizeOffset rounds an offset to nanosecond precision. Equal musical
// offsets can differ in the last ulp depending on the operand magnitudes,
// which would make the tie rule order-dependent.
func quantizeOffset(off float64) float64 {
	return math.Round(off*1e9) / 1e9
}

// Score aligns detected tap onsets against the descriptor's expected beat
// grid and computes the verdict.
//
// Assignment is greedy nearest-first: candidate pairs within the tolerance
// window are taken in order of absolute offset, ties broken by earlier
// detected time, and each tap matches at most one expected onset. Greedy
// matching can mis-assign in dense pathological onset sets; it is kept
// deliberately in favor of optimal bipartite assignment because it is the
// documented policy of the analysis this reproduces.
func Score(taps []float64, desc *stimulus.Descriptor, cfg Config) *Verdict {
	expected := desc.Onsets

	var candidates []candidate
	for i, e := range expected {
		for j, t := range taps {
			off := math.Abs(t - e)
			if off <= cfg.ToleranceSec {
				candidates = append(candidates, candidate{expIdx: i, tapIdx: j, absOff: quantizeOffset(off)})
			}
		}
	}

	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].absOff != candidates[b].absOff {
			return candidates[a].absOff < candidates[b].absOff
		}
		if taps[candidates[a].tapIdx] != taps[candidates[b].tapIdx] {
			return taps[candidates[a].tapIdx] < taps[candidates[b].tapIdx]
		}
		return candidates[a].expIdx < candidates[b].expIdx
	})

	expTaken := make([]bool, len(expected))
	tapTaken := make([]bool, len(taps))
	assignment := make([]int, len(expected)) // expected index -> tap index, -1 = miss
	for i := range assignment {
		assignment[i] = -1
	}
	for _, c := range candidates {
		if expTaken[c.expIdx] || tapTaken[c.tapIdx] {
			continue
		}
		expTaken[c.expIdx] = true
		tapTaken[c.tapIdx] = true
		assignment[c.expIdx] = c.tapIdx
	}

	matches := make([]OnsetMatch, len(expected))
	var matched int
	var sumAbsOff float64
	for i, e := range expected {
		m := OnsetMatch{Expected: e}
		if j := assignment[i]; j >= 0 {
			tap := taps[j]
			m.Tap = &tap
			m.Offset = tap - e
			matched++
			sumAbsOff += math.Abs(m.Offset)
		}
		matches[i] = m
	}

	stats := Stats{
		OnsetCount: len(taps),
		Matched:    matched,
		Misses:     len(expected) - matched,
		Extras:     len(taps) - matched,
	}
	if len(expected) > 0 {
		stats.MatchRate = float64(matched) / float64(len(expected))
	}
	if matched > 0 {
		stats.MeanAbsAsynchrony = sumAbsOff / float64(matched)
	}

	v := &Verdict{Matches: matches, Stats: stats}
	switch {
	case len(taps) == 0:
		v.Failed = true
		v.Reason = ReasonNoTapsDetected
	case len(taps) < cfg.MinTaps:
		v.Failed = true
		v.Reason = ReasonTooFewTaps
	case stats.MatchRate < cfg.MinMatchRate:
		v.Failed = true
		v.Reason = ReasonLowMatchRate
	}
	return v
}
