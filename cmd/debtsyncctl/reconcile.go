package main

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/debtsync/internal/app"
	"github.com/MrJamesThe3rd/debtsync/internal/ledger"
	"github.com/MrJamesThe3rd/debtsync/internal/reconcile"
)

func reconcileCmd() *cobra.Command {
	var (
		mode      string
		reps      []string
		threshold string
		actor     string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Detect cached debt drift and, in enforce mode, repair it",
		Example: `  debtsyncctl reconcile
  debtsyncctl reconcile --mode enforce --rep 6f1c... --threshold 0.01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := parseIDs(reps)
			if err != nil {
				return err
			}

			opts := reconcile.Options{Mode: ledger.Mode(mode), Scope: scope, Actor: actor}

			if threshold != "" {
				t, err := decimal.NewFromString(threshold)
				if err != nil {
					return fmt.Errorf("invalid threshold %q: %w", threshold, err)
				}

				opts.Threshold = &t
			}

			return withApp(cmd, func(a *app.App) error {
				out, err := a.Reconcile.Run(cmd.Context(), opts)
				if err != nil {
					return err
				}

				return emit(cmd, out, func(w io.Writer) { printOutcome(w, out) })
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(ledger.ModeDry), "dry or enforce")
	cmd.Flags().StringSliceVar(&reps, "rep", nil, "representative ids to check (default all)")
	cmd.Flags().StringVar(&threshold, "threshold", "", "drift ratio threshold (default DRIFT_THRESHOLD)")
	cmd.Flags().StringVar(&actor, "actor", "cli", "name recorded on the run")

	return cmd
}

func printOutcome(w io.Writer, out *reconcile.Outcome) {
	run := out.Run
	fmt.Fprintf(w, "run %s  mode=%s  status=%s\n", run.ID, run.Mode, run.Status)

	if run.Error != "" {
		fmt.Fprintf(w, "error: %s\n", run.Error)
	}

	if r := out.Report; r != nil {
		fmt.Fprintf(w, "scope %d  cached %s  ledger %s  drift %s (ratio %s)\n",
			r.Scope, r.TotalCached, r.TotalLedger, r.TotalDrift, r.DriftRatio)

		for _, a := range r.Anomalies {
			fmt.Fprintf(w, "  %-12s cached %s  ledger %s  drift %s\n", a.Code, a.CachedDebt, a.LedgerDebt, a.Drift)
		}

		if n := len(r.StatusDrift); n > 0 {
			fmt.Fprintf(w, "%d invoices with stale status\n", n)
		}

		if n := len(r.Orphans); n > 0 {
			fmt.Fprintf(w, "%d orphaned payments\n", n)
		}
	}

	if p := out.Plan; p != nil {
		fmt.Fprintf(w, "plan: %d actions  risk %s  total adjustment %s\n", len(p.Actions), p.Risk, p.TotalAdjustment)

		for _, m := range p.ManualReview {
			fmt.Fprintf(w, "  manual review %s: %s\n", m.Code, m.Reason)
		}
	}

	if e := out.Execution; e != nil {
		fmt.Fprintf(w, "applied %d  failed %d  skipped %d  cancelled %d  in %s\n",
			e.Applied, e.Failed, e.Skipped, e.Cancelled, e.Duration)
	}
}
