package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/plexcord/connstatus/internal/bus"
	apperrors "github.com/plexcord/connstatus/internal/pkg/errors"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show or replay the bus event journal",
		Long: `Read the JSONL journal written when bus.event_log is configured.

With --replay the push events in the journal are published again on the
configured bus, which is useful against a shared Kafka bus.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			limit, _ := cmd.Flags().GetInt("limit")
			topic, _ := cmd.Flags().GetString("topic")
			since, _ := cmd.Flags().GetDuration("since")
			replay, _ := cmd.Flags().GetBool("replay")

			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if path == "" {
				path = a.cfg.Bus.EventLog
			}
			if path == "" {
				return apperrors.ValidationError("no event log configured (set bus.event_log or --file)")
			}
			journal := bus.OpenEventLog(path)

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}

			if replay {
				ctx, stop := signalContext(cmd)
				defer stop()

				// Replayed events must not be journaled a second time.
				busCfg := a.cfg.Bus
				busCfg.EventLog = ""
				if busCfg.Type == "memory" || busCfg.Type == "" {
					printWarning(cmd.ErrOrStderr(), "replaying onto an in-memory bus reaches no other process")
				}
				b, err := bus.NewBus(busCfg, a.cfg.Backend.RequestTimeout, a.log)
				if err != nil {
					return err
				}
				defer b.Close()

				n, err := journal.Replay(ctx, b, from)
				if err != nil {
					return fmt.Errorf("replay stopped after %d events: %w", n, err)
				}
				printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Replayed %d events", n))
				return nil
			}

			var events []bus.LoggedEvent
			if since > 0 {
				events, err = journal.GetEvents(from, 0)
				events = filterTopic(events, topic)
				if limit > 0 && len(events) > limit {
					events = events[len(events)-limit:]
				}
			} else {
				events, err = journal.Tail(limit, topic)
			}
			if err != nil {
				return err
			}

			return renderEvents(cmd.OutOrStdout(), events, a.format)
		},
	}

	cmd.Flags().String("file", "", "journal path (default from config)")
	cmd.Flags().IntP("limit", "n", 20, "show at most this many events (0 for all)")
	cmd.Flags().String("topic", "", "only show events on this topic")
	cmd.Flags().Duration("since", 0, "only events newer than this (e.g. 10m)")
	cmd.Flags().Bool("replay", false, "publish the journaled push events on the configured bus")

	return cmd
}

func filterTopic(events []bus.LoggedEvent, topic string) []bus.LoggedEvent {
	if topic == "" {
		return events
	}
	kept := events[:0]
	for _, e := range events {
		if e.Topic == topic {
			kept = append(kept, e)
		}
	}
	return kept
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Run one status round and print Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			if a.metrics == nil {
				return apperrors.ValidationError("metrics are disabled (metrics.enabled)")
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			a.metrics.StartCollector(ctx, 0)

			o, err := a.start(ctx, nil)
			if err != nil {
				return err
			}
			o.Close()

			a.metrics.WritePrometheus(cmd.OutOrStdout())
			return nil
		},
	}
}
