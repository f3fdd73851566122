package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haleyrc/workdriver/internal/config"
	"github.com/haleyrc/workdriver/internal/coordinator"
	"github.com/haleyrc/workdriver/internal/dashboard"
	"github.com/haleyrc/workdriver/internal/notify"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coordinator loop and the dashboard server",
	Long: `Starts the long-running daemon. On each scheduled cycle workdriver:
  1. Runs the GitHub and LaunchDarkly checks concurrently
  2. Classifies every issue against the seen/throttle state
  3. Sends a desktop notification for fresh issues (throttled per issue)
  4. Publishes a snapshot to the dashboard at http://127.0.0.1:9845

Mark issues as seen from the dashboard to silence them for 30 minutes.
Press Ctrl+C to stop gracefully.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0,
		"dashboard port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown on SIGINT/SIGTERM.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		fmt.Println("\nShutting down gracefully...")
		cancel()
	}()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if servePort > 0 {
		cfg.Dashboard.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	cks, err := buildChecks(cfg)
	if err != nil {
		return err
	}

	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	dispatcher := notify.NewDispatcher(cfg.Notify)
	if !dispatcher.IsAnyConfigured() {
		slog.Warn("No notification channel available; issues appear on the dashboard only")
	}

	srv := dashboard.New(cfg.Dashboard.Port, store)
	coord := coordinator.New(cks, store, dispatcher, coordinator.Options{
		ScheduleExpr: cfg.Schedule.Expr,
		CheckTimeout: time.Duration(cfg.Schedule.CheckTimeoutSeconds) * time.Second,
		DashboardURL: srv.URL(),
		OnPublish:    srv.OnSnapshot,
	})
	srv.SetCoordinator(coord)

	slog.Info("Starting workdriver",
		"schedule", cfg.Schedule.Expr,
		"dashboard", srv.URL(),
	)

	go func() {
		if err := coord.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Coordinator error", "error", err)
			cancel()
		}
	}()

	if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("dashboard server: %w", err)
	}

	fmt.Println("Stopped.")
	return nil
}
