package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/debtsync/internal/app"
	"github.com/MrJamesThe3rd/debtsync/internal/rollback"
)

func rollbackCmd() *cobra.Command {
	var (
		date    string
		reps    []string
		execute bool
		actor   string
	)

	cmd := &cobra.Command{
		Use:   "rollback",
		Short: "Remove every invoice issued on a date and release its payments",
		Long: `Remove every invoice issued on --date, optionally limited to --rep.

Without --execute the command only prints the projected debt change per
representative.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := time.Parse(time.DateOnly, date)
			if err != nil {
				return fmt.Errorf("invalid --date %q: %w", date, err)
			}

			ids, err := parseIDs(reps)
			if err != nil {
				return err
			}

			req := rollback.Request{
				Selector: rollback.Selector{IssueDate: &day, RepresentativeIDs: ids},
				DryRun:   !execute,
				Actor:    actor,
			}

			return withApp(cmd, func(a *app.App) error {
				res, err := a.Rollback.Rollback(cmd.Context(), req)
				if err != nil {
					return err
				}

				return emit(cmd, res, func(w io.Writer) { printRollback(w, res) })
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "issue date, YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&reps, "rep", nil, "representative ids to limit the rollback to")
	cmd.Flags().BoolVar(&execute, "execute", false, "apply the rollback instead of previewing it")
	cmd.Flags().StringVar(&actor, "actor", "cli", "name recorded on the audit entry")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func printRollback(w io.Writer, res *rollback.Result) {
	fmt.Fprintln(w, res.Message)
	fmt.Fprintf(w, "invoices %d  removed %s  released %s  debt change %s\n",
		res.Invoices, res.TotalRemoved, res.TotalReleased, res.TotalDebtDelta)

	for _, d := range res.Deltas {
		fmt.Fprintf(w, "  %-12s %d invoices  debt %s -> %s\n", d.Code, len(d.InvoiceIDs), d.CurrentDebt, d.ProjectedDebt)
	}

	for _, f := range res.Failures {
		fmt.Fprintf(w, "  failed %s: %s\n", f.RepresentativeID, f.Reason)
	}

	if res.AuditID != nil {
		fmt.Fprintf(w, "audit %s\n", res.AuditID)
	}

	if v := res.Verification; v != nil {
		fmt.Fprintf(w, "verification %s  anomalies %d\n", v.Status, len(v.Anomalies))
	}
}
