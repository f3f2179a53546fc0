// Package okx reads perpetual swap funding rates from the public
// funding-rate listing.
package okx

import (
	"context"
	"encoding/json"

	"fundingflow/internal/exchange"
	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

const fundingRatePath = "/api/v5/public/funding-rate?instId=ALL"

var _ exchange.Adapter = (*Adapter)(nil)

type envelope struct {
	Code json.RawMessage `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type fundingRate struct {
	InstID          string          `json:"instId"`
	InstType        string          `json:"instType"`
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
	return model.OKX
}

// Fundings returns one record per swap instrument with a usable rate.
func (a *Adapter) Fundings(ctx context.Context) []model.FundingRate {
	log := a.log.WithComponent("okx_adapter")

	body, err := a.getter.Get(ctx, model.OKX, a.baseURL+fundingRatePath)
	if err != nil {
		log.WithError(err).Warn("funding rate request failed")
		return nil
	}

	items, err := decodeEnvelope(body)
	if err != nil {
		log.WithError(err).Warn("unexpected funding rate payload")
		return nil
	}

	out := make([]model.FundingRate, 0, len(items))
	dropped := 0
	for _, raw := range items {
		rec, err := parseItem(raw)
		if err != nil {
			dropped++
			log.WithError(err).Debug("dropping funding rate item")
			continue
		}
		out = append(out, rec)
	}

	exchange.Report(log, model.OKX, len(out), dropped)
	return out
}

func decodeEnvelope(body []byte) ([]json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &exchange.ParseError{Field: "envelope", Err: err}
	}
	if code, _ := exchange.NumberString(env.Code); code != "0" {
		return nil, &exchange.EnvelopeError{Exchange: "okx", Code: code, Message: env.Msg}
	}
	return exchange.SplitList("data", env.Data)
}

func parseItem(raw json.RawMessage) (model.FundingRate, error) {
	var item fundingRate
	if err := json.Unmarshal(raw, &item); err != nil {
		return model.FundingRate{}, &exchange.ParseError{Field: "fundingRate", Err: err}
	}
	if item.InstID == "" {
		return model.FundingRate{}, &exchange.ParseError{Field: "instId", Err: exchange.ErrMissing}
	}

	rateText, _ := exchange.NumberString(item.FundingRate)
	rate, err := exchange.ParseRate("fundingRate", rateText)
	if err != nil {
		return model.FundingRate{}, err
	}
	timeText, _ := exchange.NumberString(item.NextFundingTime)
	settlement, err := exchange.ParseEpochMs("nextFundingTime", timeText)
	if err != nil {
		return model.FundingRate{}, err
	}

	return model.FundingRate{
		Symbol:         symbols.Canonical(model.OKX, item.InstID),
		Rate:           rate,
		SettlementTime: settlement,
		Exchange:       model.OKX,
		ExchangeURL:    symbols.ExchangeURL(model.OKX, item.InstID),
		Contract:       item.InstID,
	}, nil
}
