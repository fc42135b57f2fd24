package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/benchworks/magbench/internal/config"
	"github.com/benchworks/magbench/internal/db"
	"github.com/benchworks/magbench/internal/events"
	"github.com/benchworks/magbench/internal/logbuffer"
	"github.com/benchworks/magbench/internal/logging"
	"github.com/benchworks/magbench/internal/models"
	"github.com/benchworks/magbench/internal/runner"
	"github.com/benchworks/magbench/internal/scheduler"
	"github.com/benchworks/magbench/internal/server"
	"github.com/benchworks/magbench/internal/telemetry"
	"github.com/benchworks/magbench/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "magbench",
	Short: "Magbench - batch scheduler for magnetic-bead plasmid purification",
	Long:  "Magbench drives a single-arm liquid handler through NucleoMag plasmid purification batches, enforcing per-sample lysis timing across the plate.",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one purification batch",
	Long:  "Run a full batch against the configured robot, or against the built-in simulator when no robot address is set.",
	RunE:  runRun,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Project a batch timeline without touching equipment",
	Long:  "Run the batch against the simulator on a virtual clock and print the projected action timeline.",
	RunE:  runPlan,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the monitor API server",
	Long:  "Start the HTTP API for launching runs and inspecting run history and live events.",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.Setup(cfg.Environment)
	return nil
}

// newRunService connects the database and builds a run service for one-shot
// CLI commands.
func newRunService() (*runner.Service, func(), error) {
	database, err := db.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		_ = db.Close(database)
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	svc := runner.NewService(cfg, database, events.NewBus(), logger)
	return svc, func() { _ = db.Close(database) }, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	svc, cleanup, err := newRunService()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := svc.Execute(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	fmt.Printf("run %s completed: %d samples\n", run.ID, run.SampleCount)
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	svc, cleanup, err := newRunService()
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("%-10s %-8s %-14s %-10s %s\n", "ELAPSED", "SAMPLE", "ACTION", "PHASE", "DUE")
	run, commands, err := svc.Plan(context.Background(), func(e scheduler.Execution) {
		sample := fmt.Sprintf("%d", e.SampleID)
		if e.SampleID == runner.PlateWide {
			sample = "plate"
		}
		due := "-"
		if e.Phase == models.PhaseDeferred {
			due = e.Due.String()
		}
		fmt.Printf("%-10s %-8s %-14s %-10s %s\n", e.ExecutedAt, sample, e.Kind, e.Phase, due)
	})
	if err != nil {
		return fmt.Errorf("plan failed: %w", err)
	}
	if len(commands) > 0 {
		last := commands[len(commands)-1]
		fmt.Printf("\nrun %s: %d equipment commands, projected duration %s\n", run.ID, len(commands), last.At)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logs := logbuffer.New(5000)
	logger = logging.SetupWithWriter(cfg.Environment, logs)

	logger.Info().Msg("Magbench starting")

	tracerProvider, err := telemetry.InitTracer(context.Background(), telemetry.TracerConfig{
		ServiceName:    "magbench",
		ServiceVersion: "0.1.0",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TracingSampleRate,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize tracer: %w", err)
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown tracer provider")
		}
	}()

	srv, err := server.New(cfg, logger, logs)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down gracefully...")

	timeoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := srv.Close(); err != nil {
		logger.Error().Err(err).Msg("shutdown cleanup failed")
	}

	logger.Info().Msg("Magbench stopped")
	return nil
}
