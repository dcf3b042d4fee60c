package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ariefcatur/lightshow-market/internal/app"
	"github.com/ariefcatur/lightshow-market/internal/httpx"
	"github.com/ariefcatur/lightshow-market/internal/orders"
	"github.com/ariefcatur/lightshow-market/internal/postgres"
	"github.com/ariefcatur/lightshow-market/internal/processor"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return postgres.Migrate(logger, cfg.PostgresDSN)
		},
	}
}

func reconcileCmd() *cobra.Command {
	var (
		staleAfter time.Duration
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep over stale pending orders",
		Long: `Queries the processor for every order pending longer than --stale-after and
applies the terminal state it reports. Orders still in flight stay pending.

Examples:
  marketctl reconcile
  marketctl reconcile --stale-after 30m --limit 500`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInfra(cmd.Context(), func(infra *app.Infra) error {
				if staleAfter == 0 {
					staleAfter = infra.Config.ReconcileStaleAfter
				}
				if limit == 0 {
					limit = infra.Config.ReconcileBatch
				}
				settled := infra.Producer(context.Background(), orders.TopicOrderSettled, 256)
				res, err := infra.Reconciler(infra.Applier(settled)).Sweep(cmd.Context(), staleAfter, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().DurationVar(&staleAfter, "stale-after", 0, "minimum pending age (default RECONCILE_STALE_AFTER)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum orders to examine (default RECONCILE_BATCH)")
	return cmd
}

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay [file|-]",
		Short: "Re-apply stored processor events",
		Long: `Reads one event or a JSON array of events in the retry-queue format and
applies each through the settlement applier. Already-applied events are no-ops.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			events, err := decodeEvents(in)
			if err != nil {
				return err
			}
			return withInfra(cmd.Context(), func(infra *app.Infra) error {
				settled := infra.Producer(context.Background(), orders.TopicOrderSettled, 256)
				applier := infra.Applier(settled)
				for _, ev := range events {
					outcome, err := applier.Apply(cmd.Context(), ev)
					if err != nil {
						return fmt.Errorf("event %s: %w", ev.ID, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", ev.ID, ev.Type, outcome)
				}
				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Sign a bearer token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to sign tokens with APP_ENV=prod")
			}
			tok, err := httpx.NewAuthenticator(cfg.AuthJWTSecret, httpx.Responder{Logger: logger}).Sign(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

// decodeEvents accepts a single event object or an array of them.
func decodeEvents(r io.Reader) ([]processor.Event, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var events []processor.Event
	if err := json.Unmarshal(raw, &events); err == nil {
		return events, nil
	}
	var ev processor.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("decode events: event needs id and type")
	}
	return []processor.Event{ev}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
