package bybit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingflow/internal/exchange"
	"fundingflow/internal/exchange/exchangetest"
	"fundingflow/internal/model"
)

const tickers = `{
	"retCode": 0,
	"retMsg": "OK",
	"result": {
		"category": "linear",
		"list": [
			{"symbol":"BTCUSDT","lastPrice":"37000","fundingRate":"0.0001","nextFundingTime":"1700000000000"},
			{"symbol":"BTC-27DEC24","lastPrice":"38000","fundingRate":"0.0004","nextFundingTime":"1700000000000"},
			{"symbol":"ETHUSDT","fundingRate":"","nextFundingTime":"1700000000000"},
			{"symbol":"XRPUSDT","fundingRate":"-0.0002","nextFundingTime":"0"},
			{"symbol":"DOGEUSDT","fundingRate":"-0.0003","nextFundingTime":"abc"},
			{"symbol":"SOLUSDT","fundingRate":"-0.0005","nextFundingTime":"1700028800000"}
		]
	},
	"time": 1699999999999
}`

func TestFundings(t *testing.T) {
	srv := exchangetest.NewServer(t, map[string]exchangetest.Route{
		tickersPath: exchangetest.JSON(tickers),
	})

	got := New(srv.URL, exchangetest.Fetcher(time.Second), nil).Fundings(context.Background())

	require.Len(t, got, 2)
	assert.Equal(t, "BTCUSDT", got[0].Symbol)
	assert.Equal(t, model.Bybit, got[0].Exchange)
	assert.Equal(t, "https://www.bybit.com/trade/usdt/BTCUSDT", got[0].ExchangeURL)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), got[0].SettlementTime)
	assert.Equal(t, "SOLUSDT", got[1].Symbol)
	assert.InDelta(t, -0.0005, got[1].Rate, 1e-12)
	for _, rec := range got {
		assert.NotContains(t, rec.Symbol, "-")
	}
}

func TestFundingsEnvelopeError(t *testing.T) {
	srv := exchangetest.NewServer(t, map[string]exchangetest.Route{
		tickersPath: exchangetest.JSON(`{"retCode":10006,"retMsg":"Too many visits!","result":{}}`),
	})

	got := New(srv.URL, exchangetest.Fetcher(time.Second), nil).Fundings(context.Background())
	assert.Empty(t, got)
}

func TestDecodeEnvelope(t *testing.T) {
	_, err := decodeEnvelope([]byte(`{"retCode":10001,"retMsg":"params error"}`))
	var envErr *exchange.EnvelopeError
	require.True(t, errors.As(err, &envErr))
	assert.Equal(t, "10001", envErr.Code)

	_, err = decodeEnvelope([]byte(`{"retCode":0,"result":{"list":null}}`))
	assert.True(t, errors.Is(err, exchange.ErrMissing))
}
