package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fundingflow/internal/model"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		exchange model.ExchangeID
		in       string
		want     string
	}{
		{model.OKX, "BTC-USD-SWAP", "BTC-USD"},
		{model.OKX, "ETH-USDT-SWAP", "ETH-USDT"},
		{model.Bitget, "BTCUSDT_UMCBL", "BTCUSDT"},
		{model.MEXC, "BTC_USDT", "BTC"},
		{model.MEXC, "ETH_USD", "ETH"},
		{model.MEXC, "SOL_USDC", "SOL"},
		{model.Binance, "ETHUSDT", "ETHUSDT"},
		{model.Bybit, "1000PEPEUSDT", "1000PEPEUSDT"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Canonical(tt.exchange, tt.in), "Canonical(%s,%s)", tt.exchange, tt.in)
	}
}

func TestIsLinearPerpetual(t *testing.T) {
	assert.True(t, IsLinearPerpetual("BTCUSDT"))
	assert.False(t, IsLinearPerpetual("BTC-27DEC24"), "dated future")
	assert.False(t, IsLinearPerpetual(""))
}

func TestExchangeURL(t *testing.T) {
	tests := []struct {
		exchange model.ExchangeID
		raw      string
		want     string
	}{
		{model.Binance, "BTCUSDT", "https://www.binance.com/en/futures/BTCUSDT"},
		{model.Bybit, "BTCUSDT", "https://www.bybit.com/trade/usdt/BTCUSDT"},
		{model.OKX, "BTC-USD-SWAP", "https://www.okx.com/trade-swap/btc-usd-swap"},
		{model.Bitget, "BTCUSDT_UMCBL", "https://www.bitget.com/futures/usdt/BTCUSDT"},
		{model.MEXC, "BTC_USDT", "https://futures.mexc.com/exchange/BTC_USDT"},
		{model.ExchangeID("kraken"), "XBTUSD", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExchangeURL(tt.exchange, tt.raw), "ExchangeURL(%s,%s)", tt.exchange, tt.raw)
	}
}
