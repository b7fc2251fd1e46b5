package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexcord/connstatus/internal/backend"
	"github.com/plexcord/connstatus/internal/bus"
	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
)

// simStep is one scripted change applied to the simulated backend.
type simStep struct {
	title string
	run   func(ctx context.Context) error
}

func simulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the orchestrator against an in-process backend",
		Long: `Serve a simulated backend on an in-memory bus and walk it through a
scripted sequence: startup reconnect, a lost and restored Plex server, and a
Discord client that closes and comes back.

The configured event log, if any, journals the simulated traffic.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			delay, _ := cmd.Flags().GetDuration("step-delay")

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext(cmd)
			defer stop()

			mem := bus.NewMemoryBus().WithLogger(a.log).WithTimeout(a.cfg.Backend.RequestTimeout)
			var b bus.Bus = mem
			if a.cfg.Bus.EventLog != "" {
				el, err := bus.NewEventLogger(a.cfg.Bus.EventLog, true)
				if err != nil {
					return fmt.Errorf("failed to open event log: %w", err)
				}
				b = bus.NewLoggedBus(mem, el, a.log)
			}
			defer b.Close()

			sim := backend.NewStaticBackend().WithPublisher(backend.NewPublisher(b))
			srv, err := backend.Serve(ctx, b, sim, a.log)
			if err != nil {
				return err
			}
			defer srv.Close()

			o, err := a.start(ctx, b)
			if err != nil {
				return err
			}
			defer o.Close()

			out := cmd.OutOrStdout()
			show := func(title string) error {
				mem.DrainTimeout(2 * time.Second)
				if a.format == "text" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, titleStyle.Render("» "+title))
				}
				return renderSummary(out, o.Summary(), a.format)
			}

			if err := show("Startup with both services down"); err != nil {
				return err
			}

			for _, step := range simulationScript(sim, o.Retry, o.ConnectDiscord) {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}

				if err := step.run(ctx); err != nil && a.format == "text" {
					printWarning(out, err.Error())
				}
				if err := show(step.title); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().Duration("step-delay", time.Second, "pause between scripted steps")

	return cmd
}

func simulationScript(
	sim *backend.StaticBackend,
	retry func(ctx context.Context, source string) error,
	connect func(ctx context.Context, clientID string) error,
) []simStep {
	return []simStep{
		{
			title: "Plex server stops responding",
			run: func(ctx context.Context) error {
				sim.SetPlexReachable(false)
				return sim.SimulatePlexLost(ctx, apperrors.CodePlexUnreachable)
			},
		},
		{
			title: "Manual Plex retry while the server is down",
			run: func(ctx context.Context) error {
				return retry(ctx, backend.ServicePlex)
			},
		},
		{
			title: "Plex server back online",
			run: func(ctx context.Context) error {
				sim.SetPlexReachable(true)
				return sim.SimulatePlexRestored(ctx)
			},
		},
		{
			title: "Discord client closed",
			run: func(ctx context.Context) error {
				sim.SetDiscordRunning(false)
				return sim.SimulateDiscordDisconnected(ctx, apperrors.CodeDiscordNotRunning, "Discord client closed")
			},
		},
		{
			title: "Connect while Discord is not running",
			run: func(ctx context.Context) error {
				return connect(ctx, "")
			},
		},
		{
			title: "Discord started and connected",
			run: func(ctx context.Context) error {
				sim.SetDiscordRunning(true)
				return connect(ctx, "")
			},
		},
	}
}
