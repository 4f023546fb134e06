package cache

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("graphstore.cache")

var (
	readsTotal     metric.Int64Counter
	writesTotal    metric.Int64Counter
	recordsWritten metric.Int64Counter
	gcEvictions    metric.Int64Counter
	gcDuration     metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		readsTotal, err = meter.Int64Counter(
			"cache_reads_total",
			metric.WithDescription("Total number of cache reads"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		writesTotal, err = meter.Int64Counter(
			"cache_writes_total",
			metric.WithDescription("Total number of cache writes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		recordsWritten, err = meter.Int64Counter(
			"cache_records_written_total",
			metric.WithDescription("Total number of records touched by cache writes"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		gcEvictions, err = meter.Int64Counter(
			"cache_gc_evictions_total",
			metric.WithDescription("Total number of records evicted by garbage collection"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		gcDuration, err = meter.Float64Histogram(
			"cache_gc_duration_seconds",
			metric.WithDescription("Duration of garbage collection passes"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordRead(res ReadResult) {
	if initMetrics() != nil {
		return
	}
	outcome := "miss"
	switch {
	case res.Data != nil && res.Partial:
		outcome = "partial"
	case res.Data != nil:
		outcome = "hit"
	}
	readsTotal.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordWrite(records int) {
	if initMetrics() != nil {
		return
	}
	ctx := context.Background()
	writesTotal.Add(ctx, 1)
	recordsWritten.Add(ctx, int64(records))
}

func recordGC(stats GCStats) {
	if initMetrics() != nil {
		return
	}
	ctx := context.Background()
	gcEvictions.Add(ctx, int64(stats.Evicted))
	gcDuration.Record(ctx, stats.Duration.Seconds())
}
