// Package mexc reads contract funding rates. The listing already carries
// settlement times, but only the highest-magnitude rates are emitted.
package mexc

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"fundingflow/config"
	"fundingflow/internal/exchange"
	"fundingflow/internal/model"
	"fundingflow/internal/symbols"
	"fundingflow/logger"
)

const fundingRatePath = "/api/v1/contract/funding_rate"

var _ exchange.Adapter = (*Adapter)(nil)

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fundingRate struct {
	Symbol         string          `json:"symbol"`
	FundingRate    json.RawMessage `json:"fundingRate"`
	MaxFundingRate json.RawMessage `json:"maxFundingRate"`
	MinFundingRate json.RawMessage `json:"minFundingRate"`
	CollectCycle   json.RawMessage `json:"collectCycle"`
	NextSettleTime json.RawMessage `json:"nextSettleTime"`
	Timestamp      json.RawMessage `json:"timestamp"`
}

type Adapter struct {
	baseURL string
	topN    int
	getter  exchange.Getter
	log     *logger.Log
}

// New returns an adapter that emits at most topN records. topN is clamped
// to (0, config.DefaultTopN]; out of range values use the default.
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
	return model.MEXC
}

func (a *Adapter) Fundings(ctx context.Context) []model.FundingRate {
	log := a.log.WithComponent("mexc_adapter")

	body, err := a.getter.Get(ctx, model.MEXC, a.baseURL+fundingRatePath)
	if err != nil {
		log.WithError(err).Warn("funding rate request failed")
		return nil
	}

	items, err := decodeEnvelope(body)
	if err != nil {
		log.WithError(err).Warn("unexpected funding rate payload")
		return nil
	}

	cands := make([]model.RawCandidate, 0, len(items))
	dropped := 0
	for _, raw := range items {
		c, err := candidate(raw)
		if err != nil {
			dropped++
			log.WithError(err).Debug("dropping funding rate item")
			continue
		}
		cands = append(cands, c)
	}

	top := model.TopByAbsRate(cands, a.topN)
	out := make([]model.FundingRate, 0, len(top))
	for _, c := range top {
		settlement, err := exchange.ParseEpochMs("nextSettleTime", c.SettleText)
		if err != nil {
			dropped++
			log.WithError(err).WithFields(logger.Fields{"symbol": c.Symbol}).Debug("dropping funding rate item")
			continue
		}
		out = append(out, model.FundingRate{
			Symbol:            symbols.Canonical(model.MEXC, c.Symbol),
			Rate:              c.Rate,
			SettlementTime:    settlement,
			Exchange:          model.MEXC,
			ExchangeURL:       symbols.ExchangeURL(model.MEXC, c.Symbol),
			Contract:          c.Symbol,
			AdditionalMetrics: c.Fields,
		})
	}

	exchange.Report(log, model.MEXC, len(out), dropped)
	return out
}

// decodeEnvelope rejects any response not flagged as successful, whatever
// its payload.
func decodeEnvelope(body []byte) ([]json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &exchange.ParseError{Field: "envelope", Err: err}
	}
	if !env.Success || env.Code != 0 {
		return nil, &exchange.EnvelopeError{Exchange: "mexc", Code: strconv.Itoa(env.Code), Message: env.Message}
	}
	return exchange.SplitList("data", env.Data)
}

func candidate(raw json.RawMessage) (model.RawCandidate, error) {
	var item fundingRate
	if err := json.Unmarshal(raw, &item); err != nil {
		return model.RawCandidate{}, &exchange.ParseError{Field: "fundingRate", Err: err}
	}
	if item.Symbol == "" {
		return model.RawCandidate{}, &exchange.ParseError{Field: "symbol", Err: exchange.ErrMissing}
	}

	rateText, _ := exchange.NumberString(item.FundingRate)
	rate, err := exchange.ParseRate("fundingRate", rateText)
	if err != nil {
		return model.RawCandidate{}, err
	}
	settleText, _ := exchange.NumberString(item.NextSettleTime)

	fields := map[string]string{}
	for name, v := range map[string]json.RawMessage{
		"collectCycle":   item.CollectCycle,
		"maxFundingRate": item.MaxFundingRate,
		"minFundingRate": item.MinFundingRate,
	} {
		if s, ok := exchange.NumberString(v); ok {
			fields[name] = s
		}
	}
	if s, ok := exchange.NumberString(item.Timestamp); ok {
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
			s = time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
		}
		fields["timestamp"] = s
	}

	return model.RawCandidate{
		Symbol:     item.Symbol,
		RateText:   rateText,
		Rate:       rate,
		SettleText: settleText,
		Fields:     fields,
	}, nil
}
