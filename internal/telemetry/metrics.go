package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/newsflow/feedsync-agent/sync"
)

// SyncMetrics holds the instruments for sync run metrics
type SyncMetrics struct {
	runsTotal      metric.Int64Counter
	runDuration    metric.Float64Histogram
	feedsSynced    metric.Int64Gauge
	articlesSynced metric.Int64Gauge
}

// NewSyncMetrics creates a SyncMetrics instance with the given meter
// provider. If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	runsTotal, err := meter.Int64Counter(
		"feedsync_runs_total",
		metric.WithDescription("Number of sync runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"feedsync_run_duration_seconds",
		metric.WithDescription("Duration of sync runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2.5, 5, 10, 30, 60, 120, 180),
	)
	if err != nil {
		return nil, err
	}

	feedsSynced, err := meter.Int64Gauge(
		"feedsync_feeds_synced",
		metric.WithDescription("Number of feeds synchronized by the last successful run"),
		metric.WithUnit("{feed}"),
	)
	if err != nil {
		return nil, err
	}

	articlesSynced, err := meter.Int64Gauge(
		"feedsync_articles_synced",
		metric.WithDescription("Number of articles synchronized by the last successful run"),
		metric.WithUnit("{article}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		runsTotal:      runsTotal,
		runDuration:    runDuration,
		feedsSynced:    feedsSynced,
		articlesSynced: articlesSynced,
	}, nil
}

// RecordRun records one finished sync run and its duration
func (m *SyncMetrics) RecordRun(ctx context.Context, duration time.Duration, success bool) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}

	m.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordSyncedCounts records the feed and article counts reported by a
// successful run
func (m *SyncMetrics) RecordSyncedCounts(ctx context.Context, feeds, articles int64) {
	if m == nil {
		return
	}

	m.feedsSynced.Record(ctx, feeds)
	m.articlesSynced.Record(ctx, articles)
}
