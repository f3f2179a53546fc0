package model

import (
	"math"
	"sort"
)

// RawCandidate is a phase-one item kept only long enough to be ranked.
// Rate holds the validated value of RateText.
type RawCandidate struct {
	Symbol     string
	RateText   string
	Rate       float64
	SettleText string
	Fields     map[string]string
}

// TopByAbsRate returns at most n candidates ordered by descending |Rate|.
// Equal magnitudes keep symbol order so the cut is deterministic.
func TopByAbsRate(cands []RawCandidate, n int) []RawCandidate {
	if n <= 0 || len(cands) == 0 {
		return nil
	}
	ranked := make([]RawCandidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool {
		ai, aj := math.Abs(ranked[i].Rate), math.Abs(ranked[j].Rate)
		if ai != aj {
			return ai > aj
		}
		return ranked[i].Symbol < ranked[j].Symbol
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
