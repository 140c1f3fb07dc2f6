// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pharos-dev/pharos/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the pharos monitor",
		Long:  "Load configuration, initialize all subsystems, and run the probe scheduler and HTTP API until interrupted.",
		RunE:  runStart,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadResolved(cfgPath, secretStoreFactory())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Apply any flag/env overrides that Viper resolved.
	if listen := viper.GetString("server.listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	setupLogging(cfg.Logging, viper.GetBool("verbose"))
	config.WarnInsecurePermissions(cfg.FileUsed())

	dataDir := viper.GetString("data_dir")
	if dataDir == "" {
		dataDir = cfg.DataDir
	}
	if dataDir == "" {
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon, err := WireMonitor(ctx, cfg, dataDir)
	if err != nil {
		return fmt.Errorf("wiring monitor: %w", err)
	}
	defer func() {
		if cerr := mon.Close(); cerr != nil {
			slog.Warn("error during shutdown", "error", cerr)
		}
	}()

	slog.Info("pharos monitor started",
		"listen", cfg.Server.Listen, "data_dir", dataDir,
		"targets", len(cfg.Targets), "gateways", len(cfg.Gateways))

	if err := mon.Run(ctx); err != nil {
		return fmt.Errorf("running monitor: %w", err)
	}

	slog.Info("pharos monitor stopped")
	return nil
}

// setupLogging installs the process-wide slog handler from the logging
// config. Verbose forces debug regardless of the configured level.
func setupLogging(cfg config.LoggingConfig, verbose bool) {
	level := parseLogLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
