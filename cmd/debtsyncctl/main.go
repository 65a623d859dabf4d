package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/debtsync/internal/app"
	"github.com/MrJamesThe3rd/debtsync/internal/config"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "debtsyncctl",
		Short:         "Operate the debt ledger: migrations, reconciliation, rollbacks and imports",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().Bool("json", false, "print results as JSON")

	root.AddCommand(migrateCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(rollbackCmd())
	root.AddCommand(importCmd())

	return root
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	slog.SetDefault(app.NewLogger(os.Stderr, cfg.App.LogFormat, cfg.App.LogLevel))

	return cfg, nil
}

// withApp loads the configuration and runs fn against a wired App.
func withApp(cmd *cobra.Command, fn func(a *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))

	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("invalid representative id %q: %w", s, err)
		}

		ids = append(ids, id)
	}

	return ids, nil
}

// emit prints v as indented JSON when --json is set, otherwise calls text.
func emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if !asJSON {
		text(cmd.OutOrStdout())
		return nil
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
