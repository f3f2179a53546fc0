package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingflow/config"
	"fundingflow/internal/model"
)

type fakeSource struct {
	mu    sync.Mutex
	sels  []model.Selection
	rates []model.FundingRate
	err   error
}

func (f *fakeSource) Fundings(_ context.Context, sel model.Selection) ([]model.FundingRate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sels = append(f.sels, sel)
	return f.rates, f.err
}

func (f *fakeSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sels)
}

func rec(ex model.ExchangeID, symbol string, r float64, ms int64) model.FundingRate {
	return model.FundingRate{Symbol: symbol, Rate: r, SettlementTime: time.UnixMilli(ms).UTC(), Exchange: ex}
}

func TestRefreshUsesBackgroundMode(t *testing.T) {
	src := &fakeSource{rates: []model.FundingRate{rec(model.Binance, "BTCUSDT", 0.0001, 1700000000000)}}
	r := New(src, config.RefreshConfig{Schedule: "@every 1h"}, nil)

	require.NoError(t, r.Refresh(context.Background()))

	require.Equal(t, 1, src.calls())
	assert.Equal(t, model.ModeBackground, src.sels[0].Mode)
	assert.Equal(t, model.AllExchanges(), src.sels[0].Exchanges)

	snap := r.Latest()
	assert.Len(t, snap.Rates, 1)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	src := &fakeSource{rates: []model.FundingRate{rec(model.OKX, "BTC-USD", 0.0002, 1700000000000)}}
	r := New(src, config.RefreshConfig{Schedule: "@every 1h", Exchanges: map[string]bool{"okx": true}}, nil)
	require.NoError(t, r.Refresh(context.Background()))

	src.err = errors.New("join failed")
	require.Error(t, r.Refresh(context.Background()))

	assert.Len(t, r.Latest().Rates, 1)
	assert.Equal(t, map[string]bool{"okx": true}, src.sels[1].Exchanges)
}

func TestOnSnapshotReceivesSuccessfulRuns(t *testing.T) {
	src := &fakeSource{rates: []model.FundingRate{rec(model.Bybit, "ETHUSDT", 0.0003, 1700000000000)}}
	r := New(src, config.RefreshConfig{Schedule: "@every 1h"}, nil)

	var got []Snapshot
	r.OnSnapshot(func(s Snapshot) { got = append(got, s) })
	r.OnSnapshot(nil)

	require.NoError(t, r.Refresh(context.Background()))
	src.err = errors.New("join failed")
	require.Error(t, r.Refresh(context.Background()))

	require.Len(t, got, 1)
	assert.Equal(t, "ETHUSDT", got[0].Rates[0].Symbol)
	assert.Equal(t, r.Latest().UpdatedAt, got[0].UpdatedAt)
}

func TestOnSnapshotListenerMayRegisterAnother(t *testing.T) {
	src := &fakeSource{rates: []model.FundingRate{rec(model.Bybit, "ETHUSDT", 0.0003, 1700000000000)}}
	r := New(src, config.RefreshConfig{Schedule: "@every 1h"}, nil)

	var first, second int
	r.OnSnapshot(func(Snapshot) {
		first++
		if first == 1 {
			r.OnSnapshot(func(Snapshot) { second++ })
		}
	})

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, 2, first)
	assert.Equal(t, 1, second)
}

func TestStartRunsImmediatelyAndStopsWithContext(t *testing.T) {
	src := &fakeSource{}
	r := New(src, config.RefreshConfig{Schedule: "@every 1h"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, r.Start(ctx))
	assert.Equal(t, 1, src.calls())

	cancel()
	r.Stop()
}

func TestStartRejectsBadSchedule(t *testing.T) {
	r := New(&fakeSource{}, config.RefreshConfig{Schedule: "every so often"}, nil)
	assert.Error(t, r.Start(context.Background()))
}

func TestMergePriorityWins(t *testing.T) {
	background := []model.FundingRate{
		rec(model.Binance, "BTCUSDT", 0.0001, 1700000000000),
		rec(model.Bybit, "ETHUSDT", 0.0003, 1700000000000),
	}
	priority := []model.FundingRate{
		rec(model.Binance, "BTCUSDT", 0.0009, 1700000000000),
		rec(model.OKX, "SOL-USDT", -0.0004, 1699990000000),
	}

	got := Merge(background, priority)

	require.Len(t, got, 3)
	assert.Equal(t, "SOL-USDT", got[0].Symbol)
	assert.Equal(t, "BTCUSDT", got[1].Symbol)
	assert.Equal(t, 0.0009, got[1].Rate)
	assert.Equal(t, "ETHUSDT", got[2].Symbol)
}

func TestMergeKeepsContractsSharingASymbol(t *testing.T) {
	usdt := rec(model.MEXC, "BTC", 0.0002, 1700000000000)
	usdt.Contract = "BTC_USDT"
	usd := rec(model.MEXC, "BTC", -0.0001, 1700000000000)
	usd.Contract = "BTC_USD"
	fresh := usdt
	fresh.Rate = 0.0005

	got := Merge([]model.FundingRate{usdt, usd}, []model.FundingRate{fresh})

	require.Len(t, got, 2)
	byContract := map[string]float64{}
	for _, r := range got {
		byContract[r.Contract] = r.Rate
	}
	assert.Equal(t, 0.0005, byContract["BTC_USDT"])
	assert.Equal(t, -0.0001, byContract["BTC_USD"])
}
