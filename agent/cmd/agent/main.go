// Package main is the entry point for the viaduct-agent binary.
// It wires all internal packages together and starts the connection loop.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables, locate the config file
//  2. Load the layered Config (env > file > defaults)
//  3. Build logger
//  4. Build the Dispatcher (SQL / Local-HTTP / Employee-Lookup executors)
//  5. Build the Agent Connection and start its state machine
//  6. Block until SIGINT/SIGTERM, then graceful shutdown
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/viaduct-io/viaduct/agent/internal/config"
	"github.com/viaduct-io/viaduct/agent/internal/connection"
	"github.com/viaduct-io/viaduct/agent/internal/executor"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type flags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "viaduct-agent",
		Short: "Viaduct agent — on-premises tunnel endpoint",
		Long: `Viaduct agent runs on-premises, opens a single outbound tunnel to a
Viaduct Gateway, and executes SQL queries, local HTTP calls, and employee
lookups dispatched over that tunnel against local back-ends.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&f.configPath, "config", envOrDefault("VIADUCT_CONFIG", defaultConfigPath()), "Path to the Agent YAML config file")
	root.PersistentFlags().StringVar(&f.logLevel, "log-level", envOrDefault("VIADUCT_LOG_LEVEL", ""), "Log level override (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("viaduct-agent %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, f *flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logLevel := cfg.Logging.Level
	if f.logLevel != "" {
		logLevel = f.logLevel
	}
	logger, err := buildLogger(logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	connection.SetVersion(version)

	logger.Info("starting viaduct agent",
		zap.String("version", version),
		zap.String("saas_url", cfg.Transport.SaaSURL),
		zap.String("db_driver", cfg.Database.Driver),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dispatcher := executor.NewDispatcher(cfg, logger)
	defer dispatcher.Close()

	conn := connection.New(cfg.Transport, cfg.GatewayToken, dispatcher, logger)

	// Run blocks until ctx is cancelled (SIGINT/SIGTERM) or a fatal
	// handshake rejection stops the state machine permanently.
	conn.Run(ctx)

	logger.Info("viaduct agent stopped")
	return nil
}

// defaultConfigPath returns the platform-appropriate default config file
// location: ~/.viaduct/agent.yaml, falling back to a relative path if the
// home directory cannot be resolved.
func defaultConfigPath() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir + "/.viaduct/agent.yaml"
	}
	return ".viaduct/agent.yaml"
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
