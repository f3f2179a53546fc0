package engine

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingflow/internal/model"
)

func TestAssembleOrdersByTimeThenRate(t *testing.T) {
	in := []model.FundingRate{
		rate(model.OKX, "LATE", 0.01, 1700028800000),
		rate(model.Binance, "LOW", -0.003, 1700000000000),
		rate(model.Bybit, "HIGH", 0.002, 1700000000000),
		rate(model.MEXC, "MID", 0.0005, 1700000000000),
		rate(model.Bitget, "EARLY", -0.0001, 1699990000000),
	}

	got := Assemble(in)

	var symbols []string
	for _, r := range got {
		symbols = append(symbols, r.Symbol)
	}
	assert.Equal(t, []string{"EARLY", "HIGH", "MID", "LOW", "LATE"}, symbols)
	assert.Equal(t, "LATE", in[0].Symbol, "input must not be reordered")
}

func TestAssembleIsIndependentOfArrivalOrder(t *testing.T) {
	base := []model.FundingRate{
		rate(model.Binance, "A", 0.001, 1700000000000),
		rate(model.Bybit, "A", 0.001, 1700000000000),
		rate(model.OKX, "B", 0.002, 1700000000000),
		rate(model.MEXC, "C", -0.001, 1700003600000),
		rate(model.Bitget, "D", 0.004, 1700003600000),
	}
	want := Assemble(base)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]model.FundingRate(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Assemble(shuffled))
	}

	for i := 1; i < len(want); i++ {
		prev, cur := want[i-1], want[i]
		require.False(t, cur.SettlementTime.Before(prev.SettlementTime))
		if cur.SettlementTime.Equal(prev.SettlementTime) {
			require.GreaterOrEqual(t, prev.Rate, cur.Rate)
		}
	}
}

func TestAssembleDropsInvalidRecords(t *testing.T) {
	in := []model.FundingRate{
		{Symbol: "NOTIME", Rate: 0.001, Exchange: model.Binance},
		{Symbol: "EPOCH", Rate: 0.001, SettlementTime: time.Unix(0, 0).UTC(), Exchange: model.Binance},
		{Symbol: "FAR", Rate: 0.001, SettlementTime: time.Date(10000, 1, 1, 0, 0, 0, 0, time.UTC), Exchange: model.Binance},
		rate(model.Binance, "ZERO", 0, 1700000000000),
		rate(model.Binance, "NAN", math.NaN(), 1700000000000),
		rate(model.Binance, "OK", 0.001, 1700000000000),
	}

	got := Assemble(in)
	require.Len(t, got, 1)
	assert.Equal(t, "OK", got[0].Symbol)
	assert.NotNil(t, Assemble(nil))
}
