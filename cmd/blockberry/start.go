package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forgebound/ledgercore/config"
	"github.com/forgebound/ledgercore/logging"
	"github.com/forgebound/ledgercore/metrics"
	"github.com/forgebound/ledgercore/node"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the node",
	Long: `Start the Ledgercore node with the specified configuration.

The node will run until interrupted (Ctrl+C) or receives a termination signal.

Example:
  ledgercore start --config config.toml`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Initialize logger based on config
	logger := createLogger(cfg.Logging)

	logger.Info("Starting Ledgercore node",
		"chain_id", cfg.Node.ChainID,
		"role", cfg.Role,
		"version", Version,
	)

	// Create node
	nodeMetrics := createMetrics(cfg.Metrics)
	n, err := node.NewNode(cfg, node.WithMetrics(nodeMetrics))
	if err != nil {
		return fmt.Errorf("creating node: %w", err)
	}

	// Start node
	if err := n.Start(); err != nil {
		return fmt.Errorf("starting node: %w", err)
	}

	if h, ok := nodeMetrics.Handler().(http.Handler); ok && cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", h)
		metricsServer := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server exited", "error", err)
			}
		}()
		defer metricsServer.Close()
	}

	logger.Info("Node started successfully",
		"listen_addrs", cfg.Network.ListenAddrs,
	)

	// Wait for interrupt signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	// Stop node
	if err := n.Stop(); err != nil {
		logger.Error("Error stopping node", "error", err)
		return fmt.Errorf("stopping node: %w", err)
	}

	logger.Info("Node stopped gracefully")
	return nil
}

// createMetrics creates a metrics collector based on configuration. Returns
// a no-op collector when metrics are disabled.
func createMetrics(cfg config.MetricsConfig) metrics.Metrics {
	if !cfg.Enabled {
		return metrics.NewNopMetrics()
	}
	return metrics.NewPrometheusMetrics(cfg.Namespace)
}

// createLogger creates a logger based on configuration.
func createLogger(cfg config.LoggingConfig) *logging.Logger {
	// Parse log level
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Determine output
	var w = os.Stderr
	switch strings.ToLower(cfg.Output) {
	case "stdout":
		w = os.Stdout
	case "stderr", "":
		w = os.Stderr
	default:
		if f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			w = f
		}
	}

	// Create logger based on format
	switch strings.ToLower(cfg.Format) {
	case "json":
		return logging.NewJSONLogger(w, level)
	default:
		return logging.NewTextLogger(w, level)
	}
}
