// Package binance reads USDⓈ-M perpetual funding rates from the premium
// index listing.
package binance

import (
	"context"
	"encoding/json"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"

	"fundingflow/internal/exchange"
	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

const premiumIndexPath = "/fapi/v1/premiumIndex"

var _ exchange.Adapter = (*Adapter)(nil)

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
	return model.Binance
}

// Fundings returns one record per symbol with a non-zero last funding rate.
func (a *Adapter) Fundings(ctx context.Context) []model.FundingRate {
	log := a.log.WithComponent("binance_adapter")

	body, err := a.getter.Get(ctx, model.Binance, a.baseURL+premiumIndexPath)
	if err != nil {
		log.WithError(err).Warn("premium index request failed")
		return nil
	}

	items, err := exchange.SplitList("premiumIndex", body)
	if err != nil {
		log.WithError(err).Warn("unexpected premium index payload")
		return nil
	}

	out := make([]model.FundingRate, 0, len(items))
	dropped := 0
	for _, raw := range items {
		rec, err := parseItem(raw)
		if err != nil {
			dropped++
			log.WithError(err).Debug("dropping premium index item")
			continue
		}
		out = append(out, rec)
	}

	exchange.Report(log, model.Binance, len(out), dropped)
	return out
}

func parseItem(raw json.RawMessage) (model.FundingRate, error) {
	var item futures.PremiumIndex
	if err := json.Unmarshal(raw, &item); err != nil {
		return model.FundingRate{}, &exchange.ParseError{Field: "premiumIndex", Err: err}
	}
	if item.Symbol == "" {
		return model.FundingRate{}, &exchange.ParseError{Field: "symbol", Err: exchange.ErrMissing}
	}

	rate, err := exchange.ParseRate("lastFundingRate", item.LastFundingRate)
	if err != nil {
		return model.FundingRate{}, err
	}
	if item.NextFundingTime <= 0 {
		return model.FundingRate{}, &exchange.ParseError{Field: "nextFundingTime", Err: exchange.ErrNonPositive}
	}

	return model.FundingRate{
		Symbol:         symbols.Canonical(model.Binance, item.Symbol),
		Rate:           rate,
		SettlementTime: time.UnixMilli(item.NextFundingTime).UTC(),
		Exchange:       model.Binance,
		ExchangeURL:    symbols.ExchangeURL(model.Binance, item.Symbol),
		Contract:       item.Symbol,
	}, nil
}
