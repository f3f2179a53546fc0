package engine

import (
	"fmt"

	"fundingflow/config"
	"fundingflow/internal/exchange"
	"fundingflow/internal/exchange/binance"
	"fundingflow/internal/exchange/bitget"
	"fundingflow/internal/exchange/bybit"
	"fundingflow/internal/exchange/mexc"
	"fundingflow/internal/exchange/okx"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

// UnknownExchangeError is returned by Lookup for names outside the supported
// set or for exchanges disabled in configuration.
type UnknownExchangeError struct {
	Name string
}

func (e *UnknownExchangeError) Error() string {
	return fmt.Sprintf("unknown exchange %q", e.Name)
}

// Registry maps exchange ids to their adapters.
type Registry struct {
	adapters map[model.ExchangeID]exchange.Adapter
}

// NewRegistry indexes adapters by ID. A later adapter replaces an earlier one
// with the same ID.
func NewRegistry(adapters ...exchange.Adapter) *Registry {
	r := &Registry{adapters: make(map[model.ExchangeID]exchange.Adapter, len(adapters))}
	for _, a := range adapters {
		if a != nil {
			r.adapters[a.ID()] = a
		}
	}
	return r
}

// NewRegistryFromConfig builds the adapters enabled in cfg on top of getter.
func NewRegistryFromConfig(cfg *config.Config, getter exchange.Getter, log *logger.Log) *Registry {
	ex := cfg.Exchanges
	var adapters []exchange.Adapter
	if ex.Binance.Enabled {
		adapters = append(adapters, binance.New(ex.Binance.BaseURL, getter, log))
	}
	if ex.Bybit.Enabled {
		adapters = append(adapters, bybit.New(ex.Bybit.BaseURL, getter, log))
	}
	if ex.Bitget.Enabled {
		adapters = append(adapters, bitget.New(ex.Bitget.BaseURL, ex.Bitget.TopN, getter, log))
	}
	if ex.Okx.Enabled {
		adapters = append(adapters, okx.New(ex.Okx.BaseURL, getter, log))
	}
	if ex.Mexc.Enabled {
		adapters = append(adapters, mexc.New(ex.Mexc.BaseURL, ex.Mexc.TopN, getter, log))
	}
	return NewRegistry(adapters...)
}

// Lookup resolves a caller supplied exchange name.
func (r *Registry) Lookup(name string) (exchange.Adapter, error) {
	id, ok := model.ParseExchangeID(name)
	if !ok {
		return nil, &UnknownExchangeError{Name: name}
	}
	a, ok := r.adapters[id]
	if !ok {
		return nil, &UnknownExchangeError{Name: name}
	}
	return a, nil
}

// IDs lists the registered exchanges in the canonical order.
func (r *Registry) IDs() []model.ExchangeID {
	ids := make([]model.ExchangeID, 0, len(r.adapters))
	for _, id := range model.Exchanges {
		if _, ok := r.adapters[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
