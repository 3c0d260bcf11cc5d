package main

import (
	"context"

	"github.com/spf13/cobra"

	"scanhub/cmd/scanhub/migrate"
	"scanhub/cmd/scanhub/scan"
	"scanhub/cmd/scanhub/server"
	"scanhub/internal/app"
)

func Execute() error {
	var rootCmd = &cobra.Command{
		Use:   "scanhub",
		Short: "Multi-tool static analysis scan orchestrator",
		Long: `scanhub runs several static analyzers over a set of source files, normalizes
their findings into one vulnerability shape and serves the scans over a REST API.`,
	}
	app.AddPersistentFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(server.NewServerCommand())
	rootCmd.AddCommand(scan.NewScanCommand())
	rootCmd.AddCommand(scan.NewListToolsCommand())
	rootCmd.AddCommand(migrate.NewMigrateCommand())
	return rootCmd.ExecuteContext(context.Background())
}
