// Package bitget reads USDT-M perpetual funding rates. The tickers listing
// carries rates but no settlement time, so the highest-magnitude rates get a
// second, per-symbol funding-time lookup.
package bitget

import (
	"context"
	"net/url"

	"github.com/tidwall/gjson"

	"fundingflow/config"
	"fundingflow/internal/exchange"
	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

const (
	tickersPath     = "/api/mix/v1/market/tickers?productType=umcbl"
	fundingTimePath = "/api/mix/v1/market/funding-time"
	successCode     = "00000"
)

// snapshotFields are copied from the ticker into AdditionalMetrics when present.
var snapshotFields = []string{
	"last", "bestAsk", "bestBid", "bidSz", "askSz", "high24h", "low24h",
	"priceChangePercent", "baseVolume", "quoteVolume", "usdtVolume",
	"openUtc", "chgUtc", "indexPrice", "holdingAmount",
}

var _ exchange.Adapter = (*Adapter)(nil)

type Adapter struct {
	baseURL string
	topN    int
	getter  exchange.Getter
	log     *logger.Log
}

// New returns an adapter that completes at most topN candidates. topN is
// clamped to (0, config.DefaultTopN]; out of range values use the default.
func New(baseURL string, topN int, getter exchange.Getter, log *logger.Log) *Adapter {
	if log == nil {
		log = logger.GetLogger()
	}
	if topN <= 0 || topN > config.DefaultTopN {
		topN = config.DefaultTopN
	}
	return &Adapter{baseURL: baseURL, topN: topN, getter: getter, log: log}
}

func (a *Adapter) ID() model.ExchangeID {
	return model.Bitget
}

func (a *Adapter) Fundings(ctx context.Context) []model.FundingRate {
	log := a.log.WithComponent("bitget_adapter")

	body, err := a.getter.Get(ctx, model.Bitget, a.baseURL+tickersPath)
	if err != nil {
		log.WithError(err).Warn("tickers request failed")
		return nil
	}

	data, err := payload(body)
	if err == nil && !data.IsArray() {
		err = &exchange.ParseError{Field: "data", Value: data.Type.String(), Err: exchange.ErrMissing}
	}
	if err != nil {
		log.WithError(err).Warn("unexpected tickers payload")
		return nil
	}

	cands, invalid := candidates(data)
	top := model.TopByAbsRate(cands, a.topN)

	// one detail call at a time keeps the load on the upstream bounded
	res := exchange.Sequential(ctx, top, a.complete)
	for _, ferr := range res.Failed {
		log.WithError(ferr).Debug("dropping candidate without funding time")
	}

	exchange.Report(log, model.Bitget, len(res.Kept), invalid+len(res.Failed))
	return res.Kept
}

// complete fetches the settlement time of one ranked candidate.
func (a *Adapter) complete(ctx context.Context, c model.RawCandidate) (model.FundingRate, error) {
	q := url.Values{}
	q.Set("symbol", c.Symbol)

	body, err := a.getter.Get(ctx, model.Bitget, a.baseURL+fundingTimePath+"?"+q.Encode())
	if err != nil {
		return model.FundingRate{}, err
	}
	data, err := payload(body)
	if err != nil {
		return model.FundingRate{}, err
	}

	settlement, err := exchange.ParseEpochMs("fundingTime", data.Get("fundingTime").String())
	if err != nil {
		return model.FundingRate{}, err
	}

	return model.FundingRate{
		Symbol:            symbols.Canonical(model.Bitget, c.Symbol),
		Rate:              c.Rate,
		SettlementTime:    settlement,
		Exchange:          model.Bitget,
		ExchangeURL:       symbols.ExchangeURL(model.Bitget, c.Symbol),
		Contract:          c.Symbol,
		AdditionalMetrics: c.Fields,
	}, nil
}

// payload checks the {code,msg,data} envelope and returns data.
func payload(body []byte) (gjson.Result, error) {
	root := gjson.ParseBytes(body)
	code := root.Get("code")
	if code.String() != successCode {
		return gjson.Result{}, &exchange.EnvelopeError{Exchange: "bitget", Code: code.String(), Message: root.Get("msg").String()}
	}
	data := root.Get("data")
	if !data.Exists() || data.Type == gjson.Null {
		return gjson.Result{}, &exchange.ParseError{Field: "data", Err: exchange.ErrMissing}
	}
	return data, nil
}

// candidates keeps tickers with a valid non-zero rate and counts the rest.
func candidates(data gjson.Result) ([]model.RawCandidate, int) {
	var (
		out     []model.RawCandidate
		invalid int
	)
	data.ForEach(func(_, item gjson.Result) bool {
		symbol := item.Get("symbol").String()
		rateText := item.Get("fundingRate").String()
		if symbol == "" {
			invalid++
			return true
		}
		rate, err := exchange.ParseRate("fundingRate", rateText)
		if err != nil {
			invalid++
			return true
		}

		fields := make(map[string]string, len(snapshotFields))
		for _, name := range snapshotFields {
			if v := item.Get(name); v.Exists() && v.Type != gjson.Null {
				fields[name] = v.String()
			}
		}

		out = append(out, model.RawCandidate{
			Symbol:   symbol,
			RateText: rateText,
			Rate:     rate,
			Fields:   fields,
		})
		return true
	})
	return out, invalid
}
