package model

import "time"

// FundingRate is one upcoming funding settlement for a perpetual contract.
// Records are only built from upstream items whose rate is finite and
// non-zero and whose settlement time is a positive epoch.
type FundingRate struct {
	Symbol            string            `json:"symbol"`
	Rate              float64           `json:"rate"`
	SettlementTime    time.Time         `json:"time"`
	Exchange          ExchangeID        `json:"exchange"`
	ExchangeURL       string            `json:"exchangeUrl"`
	AdditionalMetrics map[string]string `json:"additionalData,omitempty"`

	// Contract is the venue's own instrument id. Several contracts can share
	// a canonical Symbol (MEXC BTC_USDT and BTC_USD are both "BTC").
	Contract string `json:"-"`
}

// Key identifies a contract across successive aggregation calls. It uses
// the venue contract id when the record carries one.
func (f FundingRate) Key() string {
	if f.Contract != "" {
		return string(f.Exchange) + ":" + f.Contract
	}
	return string(f.Exchange) + ":" + f.Symbol
}
