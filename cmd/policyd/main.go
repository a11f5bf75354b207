// Package main is the entry point for the device policy engine daemon.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldgrid/device-policy-engine/pkg/api"
	"github.com/fieldgrid/device-policy-engine/pkg/device"
	"github.com/fieldgrid/device-policy-engine/pkg/metrics"
	"github.com/fieldgrid/device-policy-engine/pkg/policy"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "policyd",
	Short: "Device policy engine",
	RunE:  run,
}

func init() {
	rootCmd.Version = version + " (commit=" + commit + ", built=" + date + ")"
	rootCmd.SetVersionTemplate("policyd version {{.Version}}\n")

	rootCmd.Flags().Int("port", 0, "HTTP server port (default 8686, env PORT)")
	rootCmd.Flags().Int("metrics-port", 0, "Prometheus metrics port (default 9090, env METRICS_PORT)")
	rootCmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	rootCmd.Flags().String("policies-dir", "", "Directory of policy YAML files to load and watch (env POLICIES_DIR)")
	rootCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error (default info, env LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	port := envOrDefault("PORT", "8686")
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		port = fmt.Sprintf("%d", v)
	}

	metricsPort := envOrDefault("METRICS_PORT", "9090")
	if v, _ := cmd.Flags().GetInt("metrics-port"); v != 0 {
		metricsPort = fmt.Sprintf("%d", v)
	}

	host := envOrDefault("HOST", "0.0.0.0")
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		host = v
	}

	policiesDir := os.Getenv("POLICIES_DIR")
	if v, _ := cmd.Flags().GetString("policies-dir"); v != "" {
		policiesDir = v
	}

	logLevel := envOrDefault("LOG_LEVEL", "info")
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		logLevel = v
	}

	logger, err := newLogger(logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	m := metrics.New()
	devices := device.NewRegistry()
	policies := policy.NewStore(logger)
	engine := policy.NewEngine(policies, m, logger)
	server := api.New(devices, policies, engine, m, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load policies from the directory and keep them fresh.
	if policiesDir != "" {
		loader := policy.NewLoader(policiesDir, policies, logger)
		reload := func() error {
			err := loader.Load()
			m.ObserveReload(err)
			if err == nil {
				m.SetPoliciesLoaded(policies.Len())
			}
			return err
		}
		if err := reload(); err != nil {
			return fmt.Errorf("loading policies: %w", err)
		}

		watcher, err := policy.NewWatcher(policiesDir, policy.DefaultDebounce, reload, logger)
		if err != nil {
			return fmt.Errorf("creating policy watcher: %w", err)
		}
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logger.Error("policy watcher exited", "error", err)
			}
		}()
	} else {
		logger.Info("no policies directory configured, starting with an empty policy set")
	}

	// Metrics listener
	metricsAddr := fmt.Sprintf("%s:%s", host, metricsPort)
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: m.Handler()}
	go func() {
		logger.Info("metrics listening", "addr", metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown error", "error", err)
		}
		if err := server.Shutdown(); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", host, port)
	logger.Info("policy engine listening", "addr", addr, "policies", policies.Len())
	return server.Listen(addr)
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
