package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/navtags"
	"github.com/jpalmerr/navtags/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts the navtags dashboard server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the navtags dashboard server.

The server will:
  - Load configuration from the specified YAML file
  - Fetch tags immediately, then every polling interval while the
    dashboard reports user activity
  - Serve the dashboard UI on the configured port

With --watch, changes to polling_interval in the config file are applied
without a restart. Other fields still require one.

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  navtags serve -c navtags.yaml
  navtags serve --config /etc/navtags/navtags.yaml --watch`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().Bool("watch", false, "reload polling_interval when the config file changes")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd, os.Stderr)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded", "source", cfg.Source.URL)
	logger.Info("starting server",
		"port", cfg.Port,
		"polling_interval", cfg.Interval().String(),
		"polling_enabled", cfg.PollingEnabled(),
	)

	opts, err := config.BuildOptions(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build options: %w", err)
	}

	nt, err := navtags.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create navtags: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if watch, _ := cmd.Flags().GetBool("watch"); watch {
		updates, err := config.Watch(ctx, configFile, logger)
		if err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		go applyReloads(updates, cfg, nt, logger)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- nt.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

// applyReloads applies polling interval changes from the config watcher.
// Changes to other fields are reported but need a restart, so they are
// compared against the configuration that is actually running.
func applyReloads(updates <-chan *config.Config, current *config.Config, nt *navtags.NavTags, logger *slog.Logger) {
	running := *current
	for next := range updates {
		if next.Port != running.Port || next.Source.URL != running.Source.URL || next.CacheDir != running.CacheDir {
			logger.Warn("config change requires restart",
				"applied", "polling_interval",
				"port", next.Port,
				"url", next.Source.URL,
			)
		}
		if err := nt.SetPollingInterval(next.Interval()); err != nil {
			logger.Warn("failed to apply polling interval", "error", err)
			continue
		}
		running.PollingInterval = next.PollingInterval
	}
}
