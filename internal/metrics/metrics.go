// Prometheus collectors for the aggregation engine:
//
//	fundingflow_fetch_requests_total{exchange,outcome}
//	fundingflow_fetch_duration_seconds{exchange}
//	fundingflow_adapter_records{exchange}
//	fundingflow_adapter_dropped_total{exchange}
//	fundingflow_aggregate_duration_seconds{mode}
//
// plus the go_* and process_* collectors. They are served by the API router.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once              sync.Once
	registry          *prometheus.Registry
	fetchRequests     *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	adapterRecords    *prometheus.GaugeVec
	adapterDropped    *prometheus.CounterVec
	aggregateDuration *prometheus.HistogramVec
)

// Init creates and registers the collectors. It is safe to call repeatedly.
func Init() {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		fetchRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fundingflow_fetch_requests_total",
				Help: "Upstream requests by exchange and outcome",
			},
			[]string{"exchange", "outcome"},
		)
		fetchDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fundingflow_fetch_duration_seconds",
				Help:    "Upstream request latency",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"exchange"},
		)
		adapterRecords = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fundingflow_adapter_records",
				Help: "Records produced by the last adapter run",
			},
			[]string{"exchange"},
		)
		adapterDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fundingflow_adapter_dropped_total",
				Help: "Upstream items dropped during validation",
			},
			[]string{"exchange"},
		)
		aggregateDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fundingflow_aggregate_duration_seconds",
				Help:    "Wall time of one aggregation call",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			},
			[]string{"mode"},
		)

		registry.MustRegister(
			fetchRequests,
			fetchDuration,
			adapterRecords,
			adapterDropped,
			aggregateDuration,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one upstream request. Outcome is "ok" or an error kind.
func ObserveFetch(exchange, outcome string, elapsed time.Duration) {
	if fetchRequests == nil {
		return
	}
	fetchRequests.WithLabelValues(exchange, outcome).Inc()
	fetchDuration.WithLabelValues(exchange).Observe(elapsed.Seconds())
}

// ObserveAdapter records the result size of one adapter run.
func ObserveAdapter(exchange string, kept, dropped int) {
	if adapterRecords == nil {
		return
	}
	adapterRecords.WithLabelValues(exchange).Set(float64(kept))
	if dropped > 0 {
		adapterDropped.WithLabelValues(exchange).Add(float64(dropped))
	}
}

// ObserveAggregate records the duration of one aggregation call.
func ObserveAggregate(mode string, elapsed time.Duration) {
	if aggregateDuration == nil {
		return
	}
	aggregateDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}
