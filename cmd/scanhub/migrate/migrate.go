package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"scanhub/internal/app"
	"scanhub/internal/database"
	"scanhub/pkg/migration"
	"scanhub/pkg/tools"
)

type MigrateOpts struct {
	ID        string
	BatchSize int
	List      bool
}

// NewMigrateCommand creates the migrate command
func NewMigrateCommand() *cobra.Command {
	opts := &MigrateOpts{}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply data migrations",
		Long: `Apply the pending data migrations, or only the one named by --id. Each
migration runs in a single transaction and is recorded so that it never runs twice.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, log, err := app.LoadFromFlags(cmd)
			if err != nil {
				return err
			}

			db, err := database.Connect(cfg.Database, log)
			if err != nil {
				return err
			}
			defer database.Close(db)

			runner := migration.NewRunner(db, tools.DefaultRegistry(), log, migration.WithBatchSize(opts.BatchSize))
			return run(cmd.Context(), runner, opts, cmd.OutOrStdout())
		},
	}

	migrateCmd.Flags().StringVar(&opts.ID, "id", "", "Apply only this migration")
	migrateCmd.Flags().IntVar(&opts.BatchSize, "batch-size", 500, "Rows rewritten per batch")
	migrateCmd.Flags().BoolVar(&opts.List, "list", false, "List migrations and whether they were applied")

	return migrateCmd
}

func run(ctx context.Context, runner *migration.Runner, opts *MigrateOpts, out io.Writer) error {
	if opts.List {
		applied, err := runner.Applied(ctx)
		if err != nil {
			return err
		}
		done := make(map[string]bool, len(applied))
		for _, entry := range applied {
			done[entry.ID] = true
		}
		for _, m := range runner.Migrations() {
			state := "pending"
			if done[m.ID] {
				state = "applied"
			}
			fmt.Fprintf(out, "%-32s %-8s %s\n", m.ID, state, m.Description)
		}
		return nil
	}

	var (
		results []migration.Result
		err     error
	)
	if opts.ID != "" {
		var res migration.Result
		res, err = runner.ApplyMigration(ctx, opts.ID)
		results = []migration.Result{res}
	} else {
		results, err = runner.ApplyAll(ctx)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(results); encErr != nil && err == nil {
		err = encErr
	}
	return err
}
