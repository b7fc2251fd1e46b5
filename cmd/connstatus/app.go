package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/plexcord/connstatus/internal/bus"
	"github.com/plexcord/connstatus/internal/config"
	"github.com/plexcord/connstatus/internal/metrics"
	"github.com/plexcord/connstatus/internal/orchestrator"
	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
	"github.com/plexcord/connstatus/internal/pkg/logger"
)

// app carries what every command needs after flag parsing.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	format  string
	metrics *metrics.Metrics
}

func loadApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	format, _ := cmd.Flags().GetString("format")

	if format != "text" && format != "json" {
		return nil, apperrors.ValidationError(fmt.Sprintf("unsupported format %q", format)).
			WithDetail("format", format)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}

	a := &app{
		cfg:    cfg,
		log:    logger.New(level, cfg.Log.Format),
		format: format,
	}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New()
	}
	return a, nil
}

// signalContext is cancelled on interrupt or termination.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// start builds an orchestrator on b (or the configured bus when nil),
// initializes it and waits for the startup reconnect to settle.
func (a *app) start(ctx context.Context, b bus.Bus) (*orchestrator.Orchestrator, error) {
	o, err := orchestrator.New(orchestrator.Options{
		Config:  a.cfg,
		Logger:  a.log,
		Metrics: a.metrics,
		Bus:     b,
	})
	if err != nil {
		return nil, err
	}

	if err := o.Initialize(ctx); err != nil {
		o.Close()
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}

	settle, cancel := context.WithTimeout(ctx, a.cfg.Reconnect.SettleDelay+2*a.cfg.Backend.RequestTimeout)
	defer cancel()
	if err := o.WaitSettled(settle); err != nil {
		a.log.Warn("Auto-reconnect still pending", "error", err.Error())
	}

	return o, nil
}

func (a *app) close() {
	if a.metrics != nil {
		a.metrics.Close()
	}
}
