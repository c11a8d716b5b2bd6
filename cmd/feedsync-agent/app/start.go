package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/newsflow/feedsync-agent/internal/api"
	"github.com/newsflow/feedsync-agent/internal/config"
	"github.com/newsflow/feedsync-agent/internal/eventlog"
	"github.com/newsflow/feedsync-agent/internal/runner"
	"github.com/newsflow/feedsync-agent/internal/scheduler"
	"github.com/newsflow/feedsync-agent/internal/syncapi"
	"github.com/newsflow/feedsync-agent/internal/telemetry"
	"github.com/newsflow/feedsync-agent/internal/versions"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduled sync agent",
	Long: `Start the sync agent: fire sync runs on the configured cron schedule and
record every run in the event log and the shared metadata record.

Scheduling is off unless ENABLE_AUTO_SYNC=true (or autoSyncEnabled in the
config file); with it off the command logs that fact and returns so the
process manager keeps its restart bookkeeping simple.`,
	RunE: runStart,
}

const (
	serverReadTimeout     = 10 * time.Second
	serverWriteTimeout    = 15 * time.Second
	serverIdleTimeout     = 60 * time.Second
	serverShutdownTimeout = 5 * time.Second
)

func init() {
	startCmd.Flags().String("metrics-address", "", "Address for /healthz and /metrics (empty disables the listener)")
	if err := viper.BindPFlag("metrics-address", startCmd.Flags().Lookup("metrics-address")); err != nil {
		slog.Error("Error binding metrics-address flag", "error", err)
	}
}

// metricsAddress resolves the operational listener address: flag first,
// then config file.
func metricsAddress(cfg *config.Config) string {
	if addr := viper.GetString("metrics-address"); addr != "" {
		return addr
	}
	if cfg.Telemetry != nil {
		return cfg.Telemetry.Address
	}
	return ""
}

func runStart(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !cfg.AutoSyncEnabled {
		slog.Info("Automatic sync is disabled, set ENABLE_AUTO_SYNC=true to enable scheduling")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := metricsAddress(cfg)
	telemetryEnabled := addr != "" || (cfg.Telemetry != nil && cfg.Telemetry.Enabled)

	tel, err := telemetry.New(ctx,
		telemetry.WithEnabled(telemetryEnabled),
		telemetry.WithServiceVersion(versions.GetVersionInfo().Version),
	)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	var metrics *telemetry.SyncMetrics
	if telemetryEnabled {
		metrics, err = telemetry.NewSyncMetrics(tel.MeterProvider())
		if err != nil {
			return err
		}
	}

	client := syncapi.NewClient(cfg.GetBaseURL(), cfg.GetRequestTimeout())
	writer := eventlog.NewFileWriter(cfg.GetLogPath())
	run := runner.New(client, writer,
		runner.WithSyncMetrics(metrics),
		runner.WithPollInterval(cfg.GetPollInterval()),
		runner.WithMaxPollAttempts(cfg.GetMaxPollAttempts()),
	)

	sched, err := scheduler.New(run, cfg)
	if err != nil {
		return err
	}

	slog.Info("Starting feed sync agent",
		"base_url", cfg.GetBaseURL(),
		"schedule", cfg.GetSchedule(),
		"log_path", cfg.GetLogPath())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Start(gctx)
	})

	if addr != "" {
		router := api.NewServer(tel.Registry(),
			api.WithMiddlewares(
				middleware.RequestID,
				middleware.Recoverer,
				api.LoggingMiddleware,
			),
		)
		server := &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  serverReadTimeout,
			WriteTimeout: serverWriteTimeout,
			IdleTimeout:  serverIdleTimeout,
		}

		g.Go(func() error {
			slog.Info("Operational endpoints listening", "address", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// An in-flight run is abandoned here on purpose; the next scheduled
	// run starts from a clean slate.
	slog.Info("Feed sync agent shut down")
	return nil
}
