// Package refresh keeps a background-mode snapshot current on a cron
// schedule and merges priority results over it for callers.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fundingflow/config"
	"fundingflow/internal/engine"
	"fundingflow/internal/model"
	"fundingflow/logger"
)

// Source produces assembled records for a selection. *engine.Engine
// satisfies it.
type Source interface {
	Fundings(ctx context.Context, sel model.Selection) ([]model.FundingRate, error)
}

// Snapshot is the result of the last successful background run.
type Snapshot struct {
	Rates     []model.FundingRate `json:"fundings"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

type Refresher struct {
	source    Source
	schedule  string
	exchanges map[string]bool
	log       *logger.Log

	mu        sync.RWMutex
	latest    Snapshot
	listeners []func(Snapshot)

	cron *cron.Cron
}

// New builds a Refresher. An empty exchange map means every exchange.
func New(source Source, cfg config.RefreshConfig, log *logger.Log) *Refresher {
	if log == nil {
		log = logger.GetLogger()
	}
	exchanges := cfg.Exchanges
	if len(exchanges) == 0 {
		exchanges = model.AllExchanges()
	}
	return &Refresher{
		source:    source,
		schedule:  cfg.Schedule,
		exchanges: exchanges,
		log:       log,
	}
}

// Start runs one refresh immediately, then on every schedule tick until ctx
// is done. Overlapping ticks are skipped.
func (r *Refresher) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(r.log)),
		cron.SkipIfStillRunning(cron.PrintfLogger(r.log)),
	))
	if _, err := c.AddFunc(r.schedule, func() {
		if err := r.Refresh(ctx); err != nil {
			r.log.WithComponent("refresh").WithError(err).Warn("scheduled refresh failed")
		}
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", r.schedule, err)
	}
	r.cron = c

	if err := r.Refresh(ctx); err != nil {
		r.log.WithComponent("refresh").WithError(err).Warn("initial refresh failed")
	}
	c.Start()
	r.log.WithComponent("refresh").WithFields(logger.Fields{"schedule": r.schedule}).Info("background refresh started")

	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// Refresh performs one background aggregation and replaces the snapshot on
// success. A failed run keeps the previous snapshot.
func (r *Refresher) Refresh(ctx context.Context) error {
	rates, err := r.source.Fundings(ctx, model.Selection{
		Exchanges: r.exchanges,
		Mode:      model.ModeBackground,
	})
	if err != nil {
		return err
	}

	snap := Snapshot{Rates: rates, UpdatedAt: time.Now().UTC()}
	r.mu.Lock()
	r.latest = snap
	listeners := make([]func(Snapshot), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}

	logger.LogDataFlowEntry(r.log.WithComponent("refresh"), "aggregator", "snapshot", len(rates), "funding_rate")
	return nil
}

// OnSnapshot registers fn to receive every successful snapshot. fn runs on
// the refresh goroutine and must not block.
func (r *Refresher) OnSnapshot(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Latest returns the current snapshot. The slice is shared and must not be
// modified.
func (r *Refresher) Latest() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Merge overlays priority records on background ones, keyed by exchange and
// symbol, and re-sorts the union.
func Merge(background, priority []model.FundingRate) []model.FundingRate {
	byKey := make(map[string]model.FundingRate, len(background)+len(priority))
	for _, rec := range background {
		byKey[rec.Key()] = rec
	}
	for _, rec := range priority {
		byKey[rec.Key()] = rec
	}
	merged := make([]model.FundingRate, 0, len(byKey))
	for _, rec := range byKey {
		merged = append(merged, rec)
	}
	return engine.Assemble(merged)
}
