package metrics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingflow/logger"
)

func stubPublisher(t *testing.T) *[][]cwtypes.MetricDatum {
	t.Helper()

	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{client: &cloudwatch.Client{}, namespace: "FundingFlow"})
	t.Cleanup(func() { cwState.Store(prevState) })

	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	batches := make([][]cwtypes.MetricDatum, 0)
	publishMetricsFunc = func(ctx context.Context, state *cloudWatchState, data []cwtypes.MetricDatum) {
		copyData := make([]cwtypes.MetricDatum, len(data))
		copy(copyData, data)
		batches = append(batches, copyData)
	}
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })
	return &batches
}

func TestPublishMetricDatumThrottlesToInterval(t *testing.T) {
	batches := stubPublisher(t)

	originalInterval := cloudWatchPublishInterval
	cloudWatchPublishInterval = 50 * time.Millisecond
	t.Cleanup(func() { cloudWatchPublishInterval = originalInterval })

	base := time.Now()
	metric := Metric{Component: "fetcher", Name: "used_weight", Timestamp: base, Fields: logger.Fields{"exchange": "binance"}}
	publishMetricDatum(metric, 1)

	metric.Timestamp = base.Add(25 * time.Millisecond)
	publishMetricDatum(metric, 2)

	require.Len(t, *batches, 1)
	datum := (*batches)[0][0]
	require.NotNil(t, datum.Value)
	assert.Equal(t, 1.0, *datum.Value)
	assert.Len(t, datum.Dimensions, 2, "component and exchange dimensions")

	metric.Timestamp = base.Add(60 * time.Millisecond)
	publishMetricDatum(metric, 3)
	assert.Len(t, *batches, 2, "publish after interval")
}

func TestPublishMetricDatumSeparatesDimensions(t *testing.T) {
	batches := stubPublisher(t)

	now := time.Now()
	publishMetricDatum(Metric{Component: "fetcher", Name: "used_weight", Timestamp: now, Fields: logger.Fields{"exchange": "binance"}}, 1)
	publishMetricDatum(Metric{Component: "fetcher", Name: "used_weight", Timestamp: now, Fields: logger.Fields{"exchange": "bybit"}}, 1)

	assert.Len(t, *batches, 2, "one publish per exchange")
}

func TestPublishMetricDatumWithoutClient(t *testing.T) {
	prevState := cwState.Load()
	cwState.Store(&cloudWatchState{})
	t.Cleanup(func() { cwState.Store(prevState) })

	called := false
	publishMetricsFunc = func(context.Context, *cloudWatchState, []cwtypes.MetricDatum) { called = true }
	t.Cleanup(func() { publishMetricsFunc = publishMetrics })

	publishMetricDatum(Metric{Component: "fetcher", Name: "ip_ban"}, 1)
	assert.False(t, called, "no publish without a client")
}

func TestRenderDashboardSubstitutes(t *testing.T) {
	body, err := renderDashboard("Custom", "eu-west-1")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(body)))
	assert.NotContains(t, body, "\"FundingFlow\"")
	assert.NotContains(t, body, "ap-northeast-1")
	assert.Contains(t, body, "\"eu-west-1\"")
}

func TestMetricUnitFromString(t *testing.T) {
	unit, ok := metricUnitFromString("Percent")
	assert.True(t, ok)
	assert.Equal(t, cwtypes.StandardUnitPercent, unit)

	unit, ok = metricUnitFromString("furlongs")
	assert.False(t, ok)
	assert.Equal(t, cwtypes.StandardUnitCount, unit)
}
