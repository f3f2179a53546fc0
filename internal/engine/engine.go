// Package engine fans a Selection out to the exchange adapters, joins their
// results and assembles the sorted output.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fundingflow/internal/exchange"
	"fundingflow/internal/metrics"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

type Engine struct {
	registry *Registry
	log      *logger.Log
}

func New(registry *Registry, log *logger.Log) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{registry: registry, log: log}
}

// Registry returns the adapter registry the engine dispatches to.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Fundings aggregates sel and returns the assembled, sorted records.
func (e *Engine) Fundings(ctx context.Context, sel model.Selection) ([]model.FundingRate, error) {
	rates, err := e.Aggregate(ctx, sel)
	if err != nil {
		return nil, err
	}
	return Assemble(rates), nil
}

// Aggregate runs every enabled adapter concurrently and waits for all of
// them. Unknown names are skipped with a warning. An adapter that fails or
// panics contributes nothing; the others are unaffected. The only error is
// ctx ending before the join completes.
func (e *Engine) Aggregate(ctx context.Context, sel model.Selection) ([]model.FundingRate, error) {
	start := time.Now()
	log := e.log.WithComponent("engine").WithFields(logger.Fields{
		"request_id": uuid.NewString(),
		"mode":       string(sel.Mode),
	})

	adapters := e.resolve(log, sel.Enabled())
	if len(adapters) == 0 {
		if sel.Mode == model.ModePriority {
			log.Debug("no exchanges enabled for priority request")
		}
		return []model.FundingRate{}, nil
	}

	results := make([][]model.FundingRate, len(adapters))
	var g errgroup.Group
	for i, a := range adapters {
		g.Go(func() error {
			results[i] = e.run(ctx, log, a)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			log.WithError(err).Error("aggregation join failed")
			return nil, fmt.Errorf("aggregate: %w", err)
		}
	case <-ctx.Done():
		log.WithError(ctx.Err()).Warn("aggregation abandoned by caller")
		return nil, fmt.Errorf("aggregate: %w", ctx.Err())
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	out := make([]model.FundingRate, 0, total)
	for _, r := range results {
		out = append(out, r...)
	}

	elapsed := time.Since(start)
	metrics.ObserveAggregate(string(sel.Mode), elapsed)
	logger.LogPerformanceEntry(log, "engine", "aggregate", elapsed, logger.Fields{
		"exchanges": len(adapters),
		"records":   len(out),
	})
	return out, nil
}

// resolve maps names to adapters, skipping unknown names and duplicates.
func (e *Engine) resolve(log *logger.Entry, names []string) []exchange.Adapter {
	seen := make(map[model.ExchangeID]bool, len(names))
	adapters := make([]exchange.Adapter, 0, len(names))
	for _, name := range names {
		a, err := e.registry.Lookup(name)
		if err != nil {
			log.WithError(err).Warn("skipping exchange")
			continue
		}
		if seen[a.ID()] {
			continue
		}
		seen[a.ID()] = true
		adapters = append(adapters, a)
	}
	return adapters
}

// run invokes one adapter, converting a panic into an empty contribution.
func (e *Engine) run(ctx context.Context, log *logger.Entry, a exchange.Adapter) (out []model.FundingRate) {
	defer func() {
		if r := recover(); r != nil {
			log.WithFields(logger.Fields{
				"exchange": string(a.ID()),
				"panic":    fmt.Sprint(r),
			}).Error("adapter panicked")
			out = nil
		}
	}()

	out = a.Fundings(ctx)
	metrics.EmitMetric(e.log, "engine", "adapter_records", len(out), "gauge", logger.Fields{
		"exchange": string(a.ID()),
	})
	return out
}
