// Package bybit reads linear perpetual funding rates from the v5 tickers
// listing.
package bybit

import (
	"context"
	"encoding/json"
	"strconv"

	"fundingflow/internal/exchange"
	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

const tickersPath = "/v5/market/tickers?category=linear"

var _ exchange.Adapter = (*Adapter)(nil)

type envelope struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		Category string          `json:"category"`
		List     json.RawMessage `json:"list"`
	} `json:"result"`
}

type ticker struct {
	Symbol          string          `json:"symbol"`
	FundingRate     json.RawMessage `json:"fundingRate"`
	NextFundingTime json.RawMessage `json:"nextFundingTime"`
}

type Adapter struct {
	baseURL string
	getter  exchange.Getter
	log     *logger.Log
}

func New(baseURL string, getter exchange.Getter, log *logger.Log) *Adapter {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Adapter{baseURL: baseURL, getter: getter, log: log}
}

func (a *Adapter) ID() model.ExchangeID {
	return model.Bybit
}

// Fundings returns linear perpetuals only; hyphenated symbols are dated
// futures or spreads and are skipped.
func (a *Adapter) Fundings(ctx context.Context) []model.FundingRate {
	log := a.log.WithComponent("bybit_adapter")

	body, err := a.getter.Get(ctx, model.Bybit, a.baseURL+tickersPath)
	if err != nil {
		log.WithError(err).Warn("tickers request failed")
		return nil
	}

	items, err := decodeEnvelope(body)
	if err != nil {
		log.WithError(err).Warn("unexpected tickers payload")
		return nil
	}

	out := make([]model.FundingRate, 0, len(items))
	dropped := 0
	for _, raw := range items {
		rec, ok, err := parseItem(raw)
		if err != nil {
			dropped++
			log.WithError(err).Debug("dropping ticker")
			continue
		}
		if ok {
			out = append(out, rec)
		}
	}

	exchange.Report(log, model.Bybit, len(out), dropped)
	return out
}

func decodeEnvelope(body []byte) ([]json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &exchange.ParseError{Field: "envelope", Err: err}
	}
	if env.RetCode != 0 {
		return nil, &exchange.EnvelopeError{Exchange: "bybit", Code: strconv.Itoa(env.RetCode), Message: env.RetMsg}
	}
	return exchange.SplitList("result.list", env.Result.List)
}

// parseItem reports ok=false for symbols that are filtered out rather than
// malformed.
func parseItem(raw json.RawMessage) (model.FundingRate, bool, error) {
	var t ticker
	if err := json.Unmarshal(raw, &t); err != nil {
		return model.FundingRate{}, false, &exchange.ParseError{Field: "ticker", Err: err}
	}
	if !symbols.IsLinearPerpetual(t.Symbol) {
		return model.FundingRate{}, false, nil
	}

	rateText, _ := exchange.NumberString(t.FundingRate)
	rate, err := exchange.ParseRate("fundingRate", rateText)
	if err != nil {
		return model.FundingRate{}, false, err
	}
	timeText, _ := exchange.NumberString(t.NextFundingTime)
	settlement, err := exchange.ParseEpochMs("nextFundingTime", timeText)
	if err != nil {
		return model.FundingRate{}, false, err
	}

	return model.FundingRate{
		Symbol:         symbols.Canonical(model.Bybit, t.Symbol),
		Rate:           rate,
		SettlementTime: settlement,
		Exchange:       model.Bybit,
		ExchangeURL:    symbols.ExchangeURL(model.Bybit, t.Symbol),
		Contract:       t.Symbol,
	}, true, nil
}
