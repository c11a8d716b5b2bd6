package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/newsflow/feedsync-agent/internal/eventlog"
	"github.com/newsflow/feedsync-agent/internal/syncapi"
)

// progressStep is the granularity of progress events. Only progress
// values on this boundary are logged, to bound log volume.
const progressStep = 20

// poll queries job status until a terminal state or the attempt budget
// runs out. Transient poll failures (network errors, non-200 statuses)
// are logged and swallowed; each iteration consumes one attempt so a
// dead server still hits the timeout bound.
func (r *Runner) poll(
	ctx context.Context,
	syncID uuid.UUID,
	trigger eventlog.Trigger,
) (*syncapi.StatusResponse, error) {
	lastReported := -1

	for attempt := 1; attempt <= r.maxPollAttempts; attempt++ {
		status, err := r.client.GetStatus(ctx, syncID)
		if err != nil {
			slog.Warn("Sync status poll failed",
				"sync_id", syncID,
				"attempt", attempt,
				"error", err)
		} else {
			switch status.Status {
			case syncapi.JobStatusCompleted:
				return status, nil

			case syncapi.JobStatusFailed:
				message := status.Error
				if message == "" {
					message = "sync job failed"
				}
				return nil, &RunFailedError{Message: message}

			case syncapi.JobStatusRunning:
				lastReported = r.reportProgress(ctx, trigger, syncID, status, lastReported)

			default:
				slog.Warn("Sync status poll returned unknown state",
					"sync_id", syncID,
					"state", status.Status)
			}
		}

		select {
		case <-time.After(r.pollInterval):
		case <-ctx.Done():
			return nil, fmt.Errorf("sync run aborted while polling: %w", ctx.Err())
		}
	}

	return nil, &TimeoutError{Attempts: r.maxPollAttempts}
}

// reportProgress emits a running event when the polled progress sits on
// a progressStep boundary it has not been reported at before. Returns
// the progress value now considered reported.
func (r *Runner) reportProgress(
	ctx context.Context,
	trigger eventlog.Trigger,
	syncID uuid.UUID,
	status *syncapi.StatusResponse,
	lastReported int,
) int {
	if status.Progress == nil {
		return lastReported
	}

	progress := *status.Progress
	if progress%progressStep != 0 || progress == lastReported {
		return lastReported
	}

	event := eventlog.NewEvent(trigger, eventlog.StatusRunning)
	event.SyncID = syncID.String()
	event.Progress = &progress
	event.Message = status.Message
	r.record(ctx, event)

	return progress
}
