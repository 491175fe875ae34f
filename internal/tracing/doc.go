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

/*
Package tracing provides OpenTelemetry tracing and metrics for stepflow.

A Provider owns an SDK tracer provider and a meter provider backed by the
OpenTelemetry Prometheus exporter. Its MetricsCollector records execution
and step counters and duration histograms, and MetricsHandler serves them
for scraping.

	provider, err := tracing.NewProvider(tracing.Config{
	    ServiceName:    "stepflow",
	    ServiceVersion: version,
	    SampleRate:     1.0,
	})
	if err != nil {
	    return err
	}
	defer provider.Shutdown(ctx)

	ctx, span := tracing.StartExecution(ctx, provider.Tracer("runner"), execID, workflowID)
	defer span.End()

Config.Traces picks the span exporter from the export subpackage: none
keeps spans in-process, console prints them to stderr, and otlp or
otlp-http ship them to a collector through a batching processor.

Spans are always safe to use when nil, so callers that run without a
provider can pass a nil *WorkflowSpan around.
*/
package tracing
