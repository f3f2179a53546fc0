// Package exchange holds what the five upstream adapters share: the Adapter
// contract, field parsers and the partial-batch helpers.
package exchange

import (
	"context"

	"fundingflow/internal/metrics"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

// Getter performs one bounded GET and returns the JSON body.
// *fetcher.Fetcher satisfies it.
type Getter interface {
	Get(ctx context.Context, exchange model.ExchangeID, url string) ([]byte, error)
}

// Adapter turns one exchange's public API into FundingRate records.
// Fundings never fails: upstream and parse problems are logged and yield
// fewer or no records.
type Adapter interface {
	ID() model.ExchangeID
	Fundings(ctx context.Context) []model.FundingRate
}

// Report logs and records the outcome of one adapter run.
func Report(log *logger.Entry, id model.ExchangeID, kept, dropped int) {
	metrics.ObserveAdapter(string(id), kept, dropped)
	logger.LogDataFlowEntry(log, string(id), "aggregator", kept, "funding_rate")
	if dropped > 0 {
		log.WithFields(logger.Fields{"dropped": dropped}).Debug("dropped invalid items")
	}
}
