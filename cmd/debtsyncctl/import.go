package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/debtsync/internal/app"
	"github.com/MrJamesThe3rd/debtsync/internal/intake"
)

func importCmd() *cobra.Command {
	var (
		allocate bool
		actor    string
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Record payments from a bank statement or remittance CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			return withApp(cmd, func(a *app.App) error {
				sum, err := a.Importer.Import(cmd.Context(), f, intake.ImportOptions{AutoAllocate: allocate, Actor: actor})
				if err != nil {
					return err
				}

				return emit(cmd, sum, func(w io.Writer) {
					fmt.Fprintf(w, "%s: parsed %d  recorded %d  allocated %d  rejected %d\n",
						sum.Profile, sum.Parsed, sum.Recorded, sum.Allocated, len(sum.Rejects))

					for _, r := range sum.Rejects {
						fmt.Fprintf(w, "  row %d: %s\n", r.Row, r.Reason)
					}
				})
			})
		},
	}

	cmd.Flags().BoolVar(&allocate, "allocate", false, "run FIFO allocation for each recorded payment")
	cmd.Flags().StringVar(&actor, "actor", "import", "name recorded on allocation lines")

	return cmd
}
