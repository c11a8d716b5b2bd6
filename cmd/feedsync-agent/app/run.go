package app

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/newsflow/feedsync-agent/internal/eventlog"
	"github.com/newsflow/feedsync-agent/internal/runner"
	"github.com/newsflow/feedsync-agent/internal/syncapi"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Perform one sync run now",
	Long: `Perform a single sync run immediately with the "manual" trigger label,
independent of the schedule and of ENABLE_AUTO_SYNC. The command exits
non-zero if the run fails.`,
	RunE: runOnce,
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := eventlog.EnsureLogDir(cfg.GetLogPath()); err != nil {
		return err
	}

	client := syncapi.NewClient(cfg.GetBaseURL(), cfg.GetRequestTimeout())
	writer := eventlog.NewFileWriter(cfg.GetLogPath())
	run := runner.New(client, writer,
		runner.WithPollInterval(cfg.GetPollInterval()),
		runner.WithMaxPollAttempts(cfg.GetMaxPollAttempts()),
	)

	slog.Info("Starting manual sync run", "base_url", cfg.GetBaseURL())
	return run.Run(cmd.Context(), eventlog.TriggerManual)
}
