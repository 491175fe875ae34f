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
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector collects Prometheus-compatible metrics for workflow execution
type MetricsCollector struct {
	meter metric.Meter

	// Counters
	executionsTotal metric.Int64Counter
	stepsTotal      metric.Int64Counter
	replaysTotal    metric.Int64Counter
	prunedTotal     metric.Int64Counter

	// Histograms
	executionDuration metric.Float64Histogram
	stepDuration      metric.Float64Histogram

	// Gauges (using observable gauges)
	activeExecutions   map[string]bool
	activeExecutionsMu sync.RWMutex
}

// NewMetricsCollector creates a new metrics collector using the given meter provider
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("stepflow")

	mc := &MetricsCollector{
		meter:            meter,
		activeExecutions: make(map[string]bool),
	}

	var err error

	mc.executionsTotal, err = meter.Int64Counter(
		"stepflow_executions_total",
		metric.WithDescription("Total number of finished workflow executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, err
	}

	mc.stepsTotal, err = meter.Int64Counter(
		"stepflow_steps_total",
		metric.WithDescription("Total number of workflow steps executed"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	mc.replaysTotal, err = meter.Int64Counter(
		"stepflow_replays_total",
		metric.WithDescription("Total number of execution replays"),
		metric.WithUnit("{replay}"),
	)
	if err != nil {
		return nil, err
	}

	mc.prunedTotal, err = meter.Int64Counter(
		"stepflow_pruned_executions_total",
		metric.WithDescription("Total number of executions removed by retention"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, err
	}

	mc.executionDuration, err = meter.Float64Histogram(
		"stepflow_execution_duration_seconds",
		metric.WithDescription("Workflow execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.stepDuration, err = meter.Float64Histogram(
		"stepflow_step_duration_seconds",
		metric.WithDescription("Step execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"stepflow_active_executions",
		metric.WithDescription("Number of currently running executions"),
		metric.WithUnit("{execution}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.activeExecutionsMu.RLock()
			count := len(mc.activeExecutions)
			mc.activeExecutionsMu.RUnlock()
			observer.Observe(int64(count))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordExecutionStart marks an execution as active.
func (mc *MetricsCollector) RecordExecutionStart(ctx context.Context, executionID, workflowID string) {
	mc.activeExecutionsMu.Lock()
	mc.activeExecutions[executionID] = true
	mc.activeExecutionsMu.Unlock()
}

// RecordExecutionComplete records a finished execution and clears it from
// the active set.
func (mc *MetricsCollector) RecordExecutionComplete(ctx context.Context, executionID, workflowID, status string, duration time.Duration) {
	mc.activeExecutionsMu.Lock()
	delete(mc.activeExecutions, executionID)
	mc.activeExecutionsMu.Unlock()

	attrs := metric.WithAttributes(
		attribute.String("workflow", workflowID),
		attribute.String("status", status),
	)
	mc.executionsTotal.Add(ctx, 1, attrs)
	mc.executionDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordStepComplete records one finished step.
func (mc *MetricsCollector) RecordStepComplete(ctx context.Context, workflowID, executor, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("workflow", workflowID),
		attribute.String("executor", executor),
		attribute.String("status", status),
	)
	mc.stepsTotal.Add(ctx, 1, attrs)
	mc.stepDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordReplay records a replay of workflowID.
func (mc *MetricsCollector) RecordReplay(ctx context.Context, workflowID string) {
	mc.replaysTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow", workflowID)))
}

// RecordPruned records executions removed by retention.
func (mc *MetricsCollector) RecordPruned(ctx context.Context, count int) {
	if count <= 0 {
		return
	}
	mc.prunedTotal.Add(ctx, int64(count))
}

// ActiveExecutions returns the number of executions currently tracked as running.
func (mc *MetricsCollector) ActiveExecutions() int {
	mc.activeExecutionsMu.RLock()
	defer mc.activeExecutionsMu.RUnlock()
	return len(mc.activeExecutions)
}
