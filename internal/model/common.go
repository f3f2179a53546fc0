package model

import (
	"sort"
	"strings"
)

// ExchangeID names one of the supported upstream exchanges.
type ExchangeID string

const (
	Binance ExchangeID = "binance"
	Bybit   ExchangeID = "bybit"
	Bitget  ExchangeID = "bitget"
	OKX     ExchangeID = "okx"
	MEXC    ExchangeID = "mexc"
)

// Exchanges lists every supported exchange in a stable order.
var Exchanges = []ExchangeID{Binance, Bybit, Bitget, OKX, MEXC}

// ParseExchangeID resolves a user supplied name, ignoring case and spaces.
func ParseExchangeID(name string) (ExchangeID, bool) {
	id := ExchangeID(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Exchanges {
		if id == known {
			return id, true
		}
	}
	return "", false
}

// Mode selects how an aggregation call was triggered.
type Mode string

const (
	// ModePriority serves an on-demand request for a caller chosen subset.
	ModePriority Mode = "priority"
	// ModeBackground covers the full configured set on a schedule.
	ModeBackground Mode = "background"
)

// ModeFromFlag maps the inbound priority flag to a Mode.
func ModeFromFlag(priority bool) Mode {
	if priority {
		return ModePriority
	}
	return ModeBackground
}

// Selection is the input of one aggregation call. Keys are exchange names as
// received from the caller; unknown names are tolerated.
type Selection struct {
	Exchanges map[string]bool `json:"exchanges"`
	Mode      Mode            `json:"mode"`
}

// Enabled returns the names switched on in the selection, sorted.
func (s Selection) Enabled() []string {
	names := make([]string, 0, len(s.Exchanges))
	for name, on := range s.Exchanges {
		if on {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AllExchanges returns a selection map with every supported exchange set to on.
func AllExchanges() map[string]bool {
	all := make(map[string]bool, len(Exchanges))
	for _, id := range Exchanges {
		all[string(id)] = true
	}
	return all
}
