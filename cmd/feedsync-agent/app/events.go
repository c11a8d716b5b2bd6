package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/newsflow/feedsync-agent/internal/eventlog"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print recent sync events from the log",
	Long: `Print the most recent sync events from the JSONL event log, oldest
first. Partial trailing lines left by a crash mid-write are skipped.`,
	RunE: runEvents,
}

func init() {
	eventsCmd.Flags().IntP("limit", "n", 20, "Maximum number of events to print (0 = all)")
}

func runEvents(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	events, err := eventlog.Tail(cfg.GetLogPath(), limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		slog.Info("No sync events recorded", "log_path", cfg.GetLogPath())
		return nil
	}

	encoder := json.NewEncoder(os.Stdout)
	for i := range events {
		if err := encoder.Encode(&events[i]); err != nil {
			return fmt.Errorf("failed to encode sync event: %w", err)
		}
	}

	return nil
}
