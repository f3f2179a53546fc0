package engine

import (
	"math"
	"sort"
	"time"

	"fundingflow/internal/model"
)

// maxSettlement bounds times that still encode as RFC 3339.
var maxSettlement = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// Assemble drops records without a usable settlement time or rate and
// returns the rest ordered by Less. The input is not modified.
func Assemble(rates []model.FundingRate) []model.FundingRate {
	out := make([]model.FundingRate, 0, len(rates))
	for _, r := range rates {
		if !validSettlement(r.SettlementTime) {
			continue
		}
		if r.Rate == 0 || math.IsNaN(r.Rate) || math.IsInf(r.Rate, 0) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Less orders by settlement time ascending, then rate descending. Exchange
// and symbol break the remaining ties so arrival order never matters.
func Less(a, b model.FundingRate) bool {
	if !a.SettlementTime.Equal(b.SettlementTime) {
		return a.SettlementTime.Before(b.SettlementTime)
	}
	if a.Rate != b.Rate {
		return a.Rate > b.Rate
	}
	if a.Exchange != b.Exchange {
		return a.Exchange < b.Exchange
	}
	return a.Symbol < b.Symbol
}

func validSettlement(t time.Time) bool {
	return !t.IsZero() && t.UnixMilli() > 0 && !t.After(maxSettlement)
}
