package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexcord/connstatus/internal/backend"
	"github.com/plexcord/connstatus/internal/orchestrator"
	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
	"github.com/plexcord/connstatus/internal/pkg/security"
	"github.com/plexcord/connstatus/internal/pkg/timefmt"
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current connection state and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if noReconnect, _ := cmd.Flags().GetBool("no-reconnect"); noReconnect {
				a.cfg.Reconnect.Enabled = false
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			o, err := a.start(ctx, nil)
			if err != nil {
				return err
			}
			defer o.Close()

			return renderSummary(cmd.OutOrStdout(), o.Summary(), a.format)
		},
	}

	cmd.Flags().Bool("no-reconnect", false, "do not retry disconnected services on startup")

	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the connection state on every change until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext(cmd)
			defer stop()

			if metricsAddr != "" && a.metrics != nil {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           a.metrics.Handler(),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					a.log.Info("Serving metrics", "addr", metricsAddr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Error("Metrics server error", "error", err.Error())
					}
				}()
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx) //nolint:errcheck
				}()
				a.metrics.StartCollector(ctx, 15*time.Second)
			}

			o, err := a.start(ctx, nil)
			if err != nil {
				return err
			}
			defer o.Close()

			return watch(ctx, cmd, a, o, interval)
		},
	}

	cmd.Flags().Duration("interval", 30*time.Second, "pull a fresh snapshot this often (0 disables)")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")

	return cmd
}

func watch(ctx context.Context, cmd *cobra.Command, a *app, o *orchestrator.Orchestrator, interval time.Duration) error {
	out := cmd.OutOrStdout()
	start := time.Now()
	if err := renderSummary(out, o.Summary(), a.format); err != nil {
		return err
	}

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if err := o.Refresh(ctx); err != nil {
				a.log.Warn("Refresh failed", "error", err.Error())
			}
		case <-o.Changes():
			if a.format == "text" {
				fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%s  watching for %s",
					time.Now().Format("15:04:05"), timefmt.Duration(time.Since(start)))))
			}
			if err := renderSummary(out, o.Summary(), a.format); err != nil {
				return err
			}
		}
	}
}

func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "retry <plex|discord>",
		Short:     "Ask the backend to reconnect a service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{backend.ServicePlex, backend.ServiceDiscord},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			a.cfg.Reconnect.Enabled = false

			ctx, stop := signalContext(cmd)
			defer stop()

			o, err := a.start(ctx, nil)
			if err != nil {
				return err
			}
			defer o.Close()

			if err := o.Retry(ctx, args[0]); err != nil {
				if hint := failureHint(apperrors.CodeOf(err)); hint != "" && a.format == "text" {
					printWarning(cmd.ErrOrStderr(), hint)
				}
				return fmt.Errorf("retry %s: %w", args[0], err)
			}
			if err := o.Refresh(ctx); err != nil {
				a.log.Warn("Refresh after retry failed", "error", err.Error())
			}

			if a.format == "text" {
				printSuccess(cmd.OutOrStdout(), "Retry requested for "+args[0])
			}
			return renderSummary(cmd.OutOrStdout(), o.Summary(), a.format)
		},
	}
}

func connectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect the Discord presence service",
		RunE: func(cmd *cobra.Command, args []string) error {
			clientID, _ := cmd.Flags().GetString("client-id")
			interactive, _ := cmd.Flags().GetBool("interactive")

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			a.cfg.Reconnect.Enabled = false

			if clientID == "" {
				clientID = a.cfg.Discord.ClientID
			}
			if interactive {
				clientID, err = promptClientID(clientID)
				if err != nil {
					return err
				}
			}
			if err := security.ValidateClientID(clientID); err != nil {
				return err
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			o, err := a.start(ctx, nil)
			if err != nil {
				return err
			}
			defer o.Close()

			out := cmd.OutOrStdout()
			if err := o.ConnectDiscord(ctx, clientID); err != nil {
				renderSummary(out, o.Summary(), a.format) //nolint:errcheck
				if hint := failureHint(apperrors.CodeOf(err)); hint != "" && a.format == "text" {
					printWarning(cmd.ErrOrStderr(), hint)
				}
				return fmt.Errorf("connect discord: %w", err)
			}
			if err := o.Refresh(ctx); err != nil {
				a.log.Warn("Refresh after connect failed", "error", err.Error())
			}

			if a.format == "text" {
				printSuccess(out, "Discord connected")
			}
			return renderSummary(out, o.Summary(), a.format)
		},
	}

	cmd.Flags().String("client-id", "", "Discord application client ID (default from config)")
	cmd.Flags().BoolP("interactive", "i", false, "prompt for the client ID")

	return cmd
}
