// Copyright (C) 2025 Driftline Systems (oss@driftline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package callgraph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var extractTracer = otel.Tracer("callscope.extract")

var (
	metricsOnce sync.Once

	operationDuration metric.Float64Histogram
	operationResults  metric.Int64Counter
	oracleFallbacks   metric.Int64Counter
)

// initMetrics lazily creates the package instruments. Instrument creation
// errors are ignored; the otel no-op implementations are safe to use.
func initMetrics() {
	metricsOnce.Do(func() {
		meter := otel.Meter("callscope.extract")
		operationDuration, _ = meter.Float64Histogram(
			"callscope.operation.duration",
			metric.WithDescription("Duration of extraction operations in seconds"),
			metric.WithUnit("s"),
		)
		operationResults, _ = meter.Int64Counter(
			"callscope.operation.results",
			metric.WithDescription("Result items produced per extraction operation"),
		)
		oracleFallbacks, _ = meter.Int64Counter(
			"callscope.oracle.fallbacks",
			metric.WithDescription("Disambiguations that fell back to the first candidate"),
		)
	})
}

// startOperationSpan starts a span for a named engine operation.
func startOperationSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return extractTracer.Start(ctx, "callgraph."+operation,
		trace.WithAttributes(attribute.String("operation", operation)),
	)
}

// setOperationSpanResult records the result size and success flag on a span.
func setOperationSpanResult(span trace.Span, resultCount int, success bool) {
	span.SetAttributes(
		attribute.Int("result_count", resultCount),
		attribute.Bool("success", success),
	)
}

// recordOperationMetrics records duration and result-count metrics for one
// engine operation.
func recordOperationMetrics(ctx context.Context, operation string, elapsed time.Duration, resultCount int, success bool) {
	initMetrics()
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	)
	operationDuration.Record(ctx, elapsed.Seconds(), attrs)
	operationResults.Add(ctx, int64(resultCount), attrs)
}

// recordOracleFallback counts a disambiguation that degraded to the
// deterministic first-candidate fallback.
func recordOracleFallback(ctx context.Context, reason string) {
	initMetrics()
	oracleFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
