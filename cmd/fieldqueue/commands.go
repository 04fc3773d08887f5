// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/supervisor/services"
	"github.com/tomtom215/tallyboard/internal/syncqueue"
	"github.com/tomtom215/tallyboard/internal/validation"
)

func (c *cli) enqueueCmd() *cobra.Command {
	var (
		draft      models.DonationDraft
		method     string
		recordedBy string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Record a donation locally; it is submitted on the next sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := c.openQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			draft.Method = models.PaymentMethod(method)
			entry, err := q.Enqueue(cmd.Context(), draft, recordedBy)
			if err != nil {
				var verr *validation.RequestValidationError
				if errors.As(err, &verr) {
					for _, fe := range verr.Errors() {
						fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", fe.Field, fe.Message)
					}
				}
				return fmt.Errorf("donation not queued: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "queued %s (seq %d, token %s)\n", entry.ID, entry.Seq, entry.IdempotencyToken)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&draft.EventID, "event", "", "event id")
	f.Int64Var(&draft.Amount, "amount", 0, "amount in minor units, e.g. 2500 for 25.00")
	f.StringVar(&draft.Currency, "currency", "", "ISO 4217 code")
	f.StringVar(&method, "method", string(models.MethodCash), "cash, check, other, card or wallet")
	f.StringVar(&draft.DonorName, "donor", "", "donor name")
	f.StringVar(&draft.DonorEmail, "email", "", "donor email for the receipt")
	f.StringVar(&draft.Message, "message", "", "message shown on the dashboard")
	f.BoolVar(&draft.Anonymous, "anonymous", false, "hide the donor name on dashboards")
	f.StringVar(&recordedBy, "recorded-by", os.Getenv("USER"), "local note of who took the donation")
	_ = cmd.MarkFlagRequired("event")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("currency")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show queued donations and their sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := c.openQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			entries, err := q.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			stats, err := q.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries)
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d pending, %d synced, %d failed\n", stats.Pending, stats.Synced, stats.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func printEntries(out io.Writer, entries []*syncqueue.PendingDonation) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tID\tEVENT\tAMOUNT\tMETHOD\tSTATUS\tSERVER\tERROR")
	for _, e := range entries {
		server := e.ServerID
		if e.ServerStatus != "" {
			server += " " + string(e.ServerStatus)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d %s\t%s\t%s\t%s\t%s\n",
			e.Seq, e.ID, e.EventID, e.Amount, e.Currency, e.Method, e.Status, server, e.LastError)
	}
	_ = tw.Flush()
}

func (c *cli) drainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Submit every unsynced donation once, in the order recorded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := c.openQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			report, err := q.Drain(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "attempted %d, synced %d, failed %d\n", report.Attempted, report.Synced, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%d donation(s) still unsynced; see 'fieldqueue list'", report.Failed)
			}
			return nil
		},
	}
}

func (c *cli) retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <entry-id>",
		Short: "Resubmit one donation now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := c.openQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			entry, err := q.Retry(cmd.Context(), args[0])
			if errors.Is(err, syncqueue.ErrAlreadySynced) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already synced as %s\n", entry.ID, entry.ServerID)
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s", entry.ID, entry.Status)
			if entry.ServerID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (server %s %s)", entry.ServerID, entry.ServerStatus)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			if entry.Status != syncqueue.StatusSynced {
				return fmt.Errorf("not synced: %s", entry.LastError)
			}
			return nil
		},
	}
}

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Sync periodically and whenever the server comes back, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q, err := c.openQueue()
			if err != nil {
				return err
			}
			defer q.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serveSync(ctx, q, c)
		},
	}
}

// serveSync supervises the periodic syncer and the connectivity monitor.
func serveSync(ctx context.Context, q *syncqueue.Queue, c *cli) error {
	syncer := syncqueue.NewSyncer(q, syncqueue.SyncerConfig{
		Interval:   c.cfg.SyncInterval,
		MaxBackoff: c.cfg.MaxBackoff,
	})
	monitor := syncqueue.NewMonitor(c.cfg.ServerURL, c.cfg.HealthInterval, syncer.ConnectivityRestored)

	hook := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	sup := suture.New("fieldqueue", suture.Spec{EventHook: hook.MustHook()})
	sup.Add(services.NewRunnerService(syncer))
	sup.Add(services.NewRunnerService(monitor))

	logging.Info().
		Str("server", c.cfg.ServerURL).
		Dur("interval", c.cfg.SyncInterval).
		Msg("field sync running")

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
