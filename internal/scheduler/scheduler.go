// Package scheduler fires sync runs on a cron schedule and contains
// their failures: a failed run never crashes the process or cancels
// future firings.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/newsflow/feedsync-agent/internal/config"
	"github.com/newsflow/feedsync-agent/internal/eventlog"
	"github.com/newsflow/feedsync-agent/internal/runner"
)

// SyncRunner executes one sync run under a trigger label.
type SyncRunner interface {
	Run(ctx context.Context, trigger eventlog.Trigger) error
}

// Scheduler drives scheduled sync runs.
type Scheduler struct {
	runner   SyncRunner
	cron     *cron.Cron
	location *time.Location
	schedule string
	logPath  string
}

// New creates a scheduler for the given runner and configuration. The
// cron expression is validated here so a bad schedule fails at startup,
// not at the first firing.
func New(run SyncRunner, cfg *config.Config) (*Scheduler, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		runner:   run,
		cron:     cron.New(cron.WithLocation(location)),
		location: location,
		schedule: cfg.GetSchedule(),
		logPath:  cfg.GetLogPath(),
	}

	if _, err := s.cron.AddFunc(s.schedule, s.fire); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", s.schedule, err)
	}

	return s, nil
}

// Start begins scheduled firing and blocks until the context is
// cancelled. The log directory is created up front so the first firing
// does not race filesystem setup.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := eventlog.EnsureLogDir(s.logPath); err != nil {
		return err
	}

	slog.Info("Starting sync scheduler",
		"schedule", s.schedule,
		"timezone", s.location.String(),
		"log_path", s.logPath)

	s.cron.Start()
	<-ctx.Done()

	slog.Info("Sync scheduler stopping")
	s.cron.Stop()
	return nil
}

// fire runs one scheduled sync. Errors are contained here; an overlap
// with a still-running sync is skipped with a warning.
func (s *Scheduler) fire() {
	trigger := TriggerForTime(time.Now().In(s.location))

	if err := s.runner.Run(context.Background(), trigger); err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			slog.Warn("Skipping scheduled sync, previous run still in progress",
				"trigger", trigger)
			return
		}
		slog.Error("Scheduled sync run failed", "trigger", trigger, "error", err)
	}
}

// TriggerForTime derives the trigger label from the local firing time:
// before noon is the morning slot, everything else the afternoon slot,
// regardless of the configured schedule's actual times.
func TriggerForTime(t time.Time) eventlog.Trigger {
	if t.Hour() < 12 {
		return eventlog.TriggerCronMorning
	}
	return eventlog.TriggerCronAfternoon
}
