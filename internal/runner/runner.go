// Package runner drives one sync run end to end: trigger the job on the
// application server, poll its status until a terminal state, and record
// the outcome in the event log and the shared metadata record.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newsflow/feedsync-agent/internal/config"
	"github.com/newsflow/feedsync-agent/internal/eventlog"
	"github.com/newsflow/feedsync-agent/internal/syncapi"
	"github.com/newsflow/feedsync-agent/internal/telemetry"
)

// Runner executes sync runs. A Runner holds a single run slot: a run
// requested while another is in flight is rejected with ErrRunInProgress
// rather than overlapping it.
type Runner struct {
	client syncapi.Client
	log    eventlog.Writer

	pollInterval    time.Duration
	maxPollAttempts int

	metrics *telemetry.SyncMetrics

	mu sync.Mutex
}

// Option is a function that configures the runner
type Option func(*Runner)

// WithSyncMetrics sets the sync metrics for the runner
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(r *Runner) {
		r.metrics = metrics
	}
}

// WithPollInterval overrides the delay between status poll attempts
func WithPollInterval(interval time.Duration) Option {
	return func(r *Runner) {
		if interval > 0 {
			r.pollInterval = interval
		}
	}
}

// WithMaxPollAttempts overrides the poll attempt cap
func WithMaxPollAttempts(attempts int) Option {
	return func(r *Runner) {
		if attempts > 0 {
			r.maxPollAttempts = attempts
		}
	}
}

// New creates a runner with injected dependencies.
func New(client syncapi.Client, log eventlog.Writer, opts ...Option) *Runner {
	r := &Runner{
		client:          client,
		log:             log,
		pollInterval:    config.DefaultPollInterval,
		maxPollAttempts: config.DefaultMaxPollAttempts,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run performs one sync run under the given trigger label. Every run
// emits exactly one started event and exactly one terminal event. The
// returned error describes why the run failed; callers that must not
// propagate failures (the scheduler) log it and move on.
func (r *Runner) Run(ctx context.Context, trigger eventlog.Trigger) error {
	if !r.mu.TryLock() {
		return ErrRunInProgress
	}
	defer r.mu.Unlock()

	start := time.Now()
	slog.Info("Starting sync run", "trigger", trigger)

	started := eventlog.NewEvent(trigger, eventlog.StatusStarted)
	r.record(ctx, started)

	syncID, err := r.client.StartSync(ctx)
	if err != nil {
		slog.Error("Failed to start sync job", "trigger", trigger, "error", err)
		r.finishFailure(ctx, trigger, uuid.Nil, start, err)
		return err
	}
	slog.Info("Sync job started", "trigger", trigger, "sync_id", syncID)

	result, err := r.poll(ctx, syncID, trigger)
	if err != nil {
		slog.Error("Sync run failed", "trigger", trigger, "sync_id", syncID, "error", err)
		r.finishFailure(ctx, trigger, syncID, start, err)
		return err
	}

	r.finishSuccess(ctx, trigger, syncID, start, result)
	return nil
}

// finishSuccess emits the completed event and reports success metadata.
func (r *Runner) finishSuccess(
	ctx context.Context,
	trigger eventlog.Trigger,
	syncID uuid.UUID,
	start time.Time,
	result *syncapi.StatusResponse,
) {
	duration := time.Since(start)

	event := eventlog.NewEvent(trigger, eventlog.StatusCompleted)
	event.SyncID = syncID.String()
	event.Duration = duration.Milliseconds()
	event.Feeds = result.FeedsCount
	event.Articles = result.ArticlesCount
	r.record(ctx, event)

	r.updateMetadata(ctx, &syncapi.MetadataUpdate{
		LastSyncTime:     time.Now().UTC().Format(time.RFC3339),
		LastSyncStatus:   syncapi.OutcomeSuccess,
		LastSyncError:    nil,
		SyncSuccessCount: &syncapi.IncrementOp{Increment: 1},
	})

	r.metrics.RecordRun(ctx, duration, true)
	r.metrics.RecordSyncedCounts(ctx, int64(result.FeedsCount), int64(result.ArticlesCount))

	slog.Info("Sync run completed",
		"trigger", trigger,
		"sync_id", syncID,
		"duration", duration,
		"feeds", result.FeedsCount,
		"articles", result.ArticlesCount)
}

// finishFailure emits the error event and reports failure metadata.
func (r *Runner) finishFailure(
	ctx context.Context,
	trigger eventlog.Trigger,
	syncID uuid.UUID,
	start time.Time,
	runErr error,
) {
	duration := time.Since(start)
	errMsg := runErr.Error()

	event := eventlog.NewEvent(trigger, eventlog.StatusError)
	if syncID != uuid.Nil {
		event.SyncID = syncID.String()
	}
	event.Duration = duration.Milliseconds()
	event.Error = errMsg
	r.record(ctx, event)

	r.updateMetadata(ctx, &syncapi.MetadataUpdate{
		LastSyncStatus:   syncapi.OutcomeFailed,
		LastSyncError:    &errMsg,
		SyncFailureCount: &syncapi.IncrementOp{Increment: 1},
	})

	r.metrics.RecordRun(ctx, duration, false)
}

// record appends an event to the sync log. A write failure must never
// abort the run it is reporting on, so it is logged and swallowed here.
func (r *Runner) record(ctx context.Context, event *eventlog.SyncEvent) {
	if err := r.log.Append(ctx, event); err != nil {
		slog.Error("Failed to write sync event",
			"status", event.Status,
			"trigger", event.Trigger,
			"error", err)
	}
}

// updateMetadata posts the outcome to the shared metadata record.
// Metadata staleness is an accepted degradation; failures are logged and
// swallowed.
func (r *Runner) updateMetadata(ctx context.Context, update *syncapi.MetadataUpdate) {
	if err := r.client.UpdateMetadata(ctx, update); err != nil {
		slog.Error("Failed to update sync metadata",
			"status", update.LastSyncStatus,
			"error", err)
	}
}
