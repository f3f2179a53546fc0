package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingflow/logger"
)

func resetMetricHandlers() {
	metricHandlersMu.Lock()
	metricHandlers = make(map[MetricHandlerID]MetricHandler)
	nextMetricHandlerID = 0
	metricHandlersMu.Unlock()
}

func TestRegisterMetricHandlerReturnsUniqueIDs(t *testing.T) {
	resetMetricHandlers()

	id := RegisterMetricHandler(func(Metric) {})
	require.NotZero(t, id)

	second := RegisterMetricHandler(func(Metric) {})
	assert.NotZero(t, second)
	assert.NotEqual(t, id, second)
}

func TestRegisterMetricHandlerNil(t *testing.T) {
	resetMetricHandlers()

	assert.Zero(t, RegisterMetricHandler(nil))
}

func TestEmitMetricDispatchesToHandlers(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) {
		events <- m
	})
	t.Cleanup(func() { UnregisterMetricHandler(id) })

	fields := logger.Fields{"exchange": "binance", "unit": "count"}
	EmitMetric(logger.GetLogger(), "fetcher", "used_weight", 3, "gauge", fields)

	select {
	case event := <-events:
		assert.Equal(t, "fetcher", event.Component)
		assert.Equal(t, "used_weight", event.Name)
		assert.Equal(t, "gauge", event.Type)
		assert.NotContains(t, fields, "metric", "original fields mutated")
		assert.NotContains(t, event.Fields, "metric")
	case <-time.After(50 * time.Millisecond):
		t.Fatal("metric handler not invoked")
	}
}

func TestEmitMetricDefaultType(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) { events <- m })
	t.Cleanup(func() { UnregisterMetricHandler(id) })

	EmitMetric(nil, "engine", "adapter_records", 7, "", nil)

	select {
	case event := <-events:
		assert.Equal(t, "counter", event.Type)
	case <-time.After(50 * time.Millisecond):
		t.Fatal("metric handler not invoked for default type")
	}
}

func TestEmitMetricWithoutName(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) { events <- m })
	t.Cleanup(func() { UnregisterMetricHandler(id) })

	EmitMetric(nil, "component", "", 1, "counter", nil)

	select {
	case <-events:
		t.Fatal("handler should not receive metrics without a name")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestUnregisterMetricHandler(t *testing.T) {
	resetMetricHandlers()

	calls := 0
	id := RegisterMetricHandler(func(Metric) { calls++ })
	UnregisterMetricHandler(id)

	EmitMetric(nil, "engine", "adapter_records", 1, "gauge", nil)
	assert.Zero(t, calls)
}
