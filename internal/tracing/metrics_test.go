// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tracing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestCollector(t *testing.T) (*MetricsCollector, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	mc, err := NewMetricsCollector(provider)
	require.NoError(t, err)
	return mc, reader
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumValue(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsCollector_ExecutionLifecycle(t *testing.T) {
	mc, reader := newTestCollector(t)
	ctx := context.Background()

	mc.RecordExecutionStart(ctx, "exec-1", "wf")
	mc.RecordExecutionStart(ctx, "exec-2", "wf")
	assert.Equal(t, 2, mc.ActiveExecutions())

	metrics := collect(t, reader)
	gauge, ok := metrics["stepflow_active_executions"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(2), gauge.DataPoints[0].Value)

	mc.RecordExecutionComplete(ctx, "exec-1", "wf", "SUCCESS", 2*time.Second)
	assert.Equal(t, 1, mc.ActiveExecutions())

	metrics = collect(t, reader)
	assert.Equal(t, int64(1), sumValue(t, metrics["stepflow_executions_total"]))

	hist, ok := metrics["stepflow_execution_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 2.0, hist.DataPoints[0].Sum, 0.001)
}

func TestMetricsCollector_Steps(t *testing.T) {
	mc, reader := newTestCollector(t)
	ctx := context.Background()

	mc.RecordStepComplete(ctx, "wf", "echo", "SUCCESS", 10*time.Millisecond)
	mc.RecordStepComplete(ctx, "wf", "fail", "FAILED", 5*time.Millisecond)
	mc.RecordStepComplete(ctx, "wf", "echo", "SUCCESS", 15*time.Millisecond)

	metrics := collect(t, reader)
	steps := metrics["stepflow_steps_total"].Data.(metricdata.Sum[int64])
	assert.Len(t, steps.DataPoints, 2, "one series per executor/status pair")
	assert.Equal(t, int64(3), sumValue(t, metrics["stepflow_steps_total"]))
}

func TestMetricsCollector_ReplayAndPrune(t *testing.T) {
	mc, reader := newTestCollector(t)
	ctx := context.Background()

	mc.RecordReplay(ctx, "wf")
	mc.RecordPruned(ctx, 2)
	mc.RecordPruned(ctx, 0)

	metrics := collect(t, reader)
	assert.Equal(t, int64(1), sumValue(t, metrics["stepflow_replays_total"]))
	assert.Equal(t, int64(2), sumValue(t, metrics["stepflow_pruned_executions_total"]))
}

func TestMetricsCollector_Concurrent(t *testing.T) {
	mc, _ := newTestCollector(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("exec-%d", i)
			mc.RecordExecutionStart(ctx, id, "wf")
			mc.RecordStepComplete(ctx, "wf", "noop", "SUCCESS", time.Millisecond)
			mc.RecordExecutionComplete(ctx, id, "wf", "SUCCESS", time.Millisecond)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, mc.ActiveExecutions())
}
