package api

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundingflow/logger"
)

func stubCollectors(t *testing.T, procErr error) *atomic.Int32 {
	t.Helper()
	originalCPU := cpuPercentFn
	originalMem := memoryStatsFn
	originalProc := processStatsFn
	t.Cleanup(func() {
		cpuPercentFn = originalCPU
		memoryStatsFn = originalMem
		processStatsFn = originalProc
	})

	calls := &atomic.Int32{}
	cpuPercentFn = func(ctx context.Context, interval time.Duration) ([]float64, error) {
		calls.Add(1)
		time.Sleep(interval)
		return []float64{42.5}, nil
	}
	memoryStatsFn = func(ctx context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Used: 1024, Total: 2048, UsedPercent: 50}, nil
	}
	processStatsFn = func(ctx context.Context) (uint64, int, error) {
		if procErr != nil {
			return 0, 0, procErr
		}
		return 512, 7, nil
	}
	return calls
}

func waitForSamples(t *testing.T, sampler *resourceSampler) []resourceSnapshot {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if snaps := sampler.snapshot(); len(snaps) > 0 {
			return snaps
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("resource sampler did not collect samples in time")
	return nil
}

func TestResourceSamplerCollectsSamples(t *testing.T) {
	calls := stubCollectors(t, nil)
	sampler := newResourceSampler(3, 10*time.Millisecond, logger.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sampler.start(ctx)
	waitForSamples(t, sampler)
	sampler.stop()

	snapshots := sampler.snapshot()
	require.NotEmpty(t, snapshots)
	assert.LessOrEqual(t, len(snapshots), 3)
	latest := snapshots[len(snapshots)-1]
	assert.Equal(t, 42.5, latest.CPUPercent)
	assert.Equal(t, 50.0, latest.MemoryPct)
	assert.Equal(t, uint64(512), latest.ProcessRSS)
	assert.Equal(t, 7, latest.OpenConns)
	assert.NotZero(t, calls.Load())
}

func TestResourceSamplerToleratesProcessErrors(t *testing.T) {
	stubCollectors(t, errors.New("no procfs"))
	sampler := newResourceSampler(3, 10*time.Millisecond, logger.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sampler.start(ctx)
	snaps := waitForSamples(t, sampler)
	sampler.stop()

	assert.Equal(t, uint64(2048), snaps[0].MemoryTotal)
	assert.Zero(t, snaps[0].ProcessRSS)
}
