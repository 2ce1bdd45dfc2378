package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// WorkerMetrics holds the instruments the worker agent records per item.
type WorkerMetrics struct {
	itemsProcessed metric.Int64Counter
	itemDuration   metric.Float64Histogram
	outputBytes    metric.Int64Counter
}

// NewWorkerMetrics creates the worker instruments on the global meter
// provider. Call after InitMetrics so the Prometheus exporter sees them.
func NewWorkerMetrics() (*WorkerMetrics, error) {
	meter := otel.Meter("imageforge-worker")

	itemsProcessed, err := meter.Int64Counter("imageforge_items_processed_total",
		metric.WithDescription("Job items processed, partitioned by result"))
	if err != nil {
		return nil, fmt.Errorf("failed to create items counter: %w", err)
	}

	itemDuration, err := meter.Float64Histogram("imageforge_item_duration_seconds",
		metric.WithDescription("Wall time spent executing one item"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	outputBytes, err := meter.Int64Counter("imageforge_output_bytes_total",
		metric.WithDescription("Bytes of processed images written"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, fmt.Errorf("failed to create output counter: %w", err)
	}

	return &WorkerMetrics{
		itemsProcessed: itemsProcessed,
		itemDuration:   itemDuration,
		outputBytes:    outputBytes,
	}, nil
}

// RecordItem records the outcome of one item execution. Result is "done" or
// the failure reason string.
func (m *WorkerMetrics) RecordItem(ctx context.Context, result string, duration time.Duration, outputSize int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.itemsProcessed.Add(ctx, 1, attrs)
	m.itemDuration.Record(ctx, duration.Seconds(), attrs)
	if outputSize > 0 {
		m.outputBytes.Add(ctx, outputSize)
	}
}
