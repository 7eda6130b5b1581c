package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/thushan-yassen/egressgw/internal/app"
	"github.com/thushan-yassen/egressgw/internal/config"
	"github.com/thushan-yassen/egressgw/internal/logger"
	"github.com/thushan-yassen/egressgw/pkg/version"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "egressgw",
		Short:   "Internal LLM API gateway with egress VPN controller",
		Version: version.Version,
		RunE:    runServe,
	}
	root.AddCommand(probeVPNCmd(), poolStatsCmd())
	return root
}

// runServe is the default command: it loads configuration, starts the
// styled logger, and runs the HTTP server until an interrupt or termination
// signal is received.
func runServe(cmd *cobra.Command, args []string) error {
	vlog := log.New(log.Writer(), "", 0)
	version.PrintVersionInfo(false, vlog)

	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(buildLoggerConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialise logger: %w", err)
	}
	defer cleanup()

	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	application, err := app.New(cfg, styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to create application", "error", err)
	}

	if err := application.Start(ctx); err != nil {
		logger.FatalWithLogger(logInstance, "Failed to start application", "error", err)
	}

	<-ctx.Done()

	if err := application.Stop(context.Background()); err != nil {
		styledLogger.Error("Error during shutdown", "error", err)
	}

	styledLogger.Info("egressgw has shutdown")
	return nil
}

// buildLoggerConfig maps the already-loaded configuration onto the logger's
// own Config shape.
func buildLoggerConfig(cfg *config.Config) *logger.Config {
	return &logger.Config{
		Level:      cfg.Logging.Level,
		FileOutput: cfg.Logging.FileOutput,
		LogDir:     cfg.Logging.LogDir,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Theme:      cfg.Logging.Theme,
		PrettyLogs: cfg.Logging.PrettyLogs,
	}
}
