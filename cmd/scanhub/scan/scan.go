package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"scanhub/internal/app"
	"scanhub/internal/models"
	"scanhub/internal/services"
	"scanhub/pkg/logger"
	"scanhub/pkg/tools"
)

type ScanOpts struct {
	Dir    string
	Tools  []string
	Name   string
	DBPath string
}

// Summary is what the scan command prints.
type Summary struct {
	Scan   *models.Scan           `json:"scan"`
	Issues []models.Vulnerability `json:"issues"`
}

// NewScanCommand creates the scan command
func NewScanCommand() *cobra.Command {
	opts := &ScanOpts{}

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a local directory once",
		Long: `Run the selected tools over every file under a directory and print the
scan with its findings as JSON.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, log, err := app.LoadFromFlags(cmd)
			if err != nil {
				return err
			}
			if opts.DBPath != "" {
				cfg.Database.Driver = "sqlite"
				cfg.Database.Path = opts.DBPath
			}

			dir, err := filepath.Abs(opts.Dir)
			if err != nil {
				return err
			}
			files, err := CollectFiles(dir)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no files found in %s", dir)
			}

			// Handle SIGINT and SIGTERM
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, log, app.WithUploadsRoot(dir))
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			summary, err := runScan(ctx, a, services.StartScanRequest{
				Files:         files,
				SelectedTools: opts.Tools,
				ScanName:      opts.Name,
				ScanType:      "cli",
			})
			if err != nil {
				return err
			}

			if err := writeSummary(cmd.OutOrStdout(), summary); err != nil {
				return err
			}
			if summary.Scan.Status != models.ScanStatusCompleted {
				return fmt.Errorf("scan %s: %s", summary.Scan.Status, summary.Scan.ErrorMessage)
			}
			return nil
		},
	}

	scanCmd.Flags().StringVarP(&opts.Dir, "dir", "d", ".", "Directory to scan")
	scanCmd.Flags().StringSliceVarP(&opts.Tools, "tools", "t", nil, "Tools to run, canonical names or aliases (required)")
	scanCmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Scan name")
	scanCmd.Flags().StringVar(&opts.DBPath, "db-path", "", "SQLite database to record the scan in, overriding the config")

	scanCmd.MarkFlagRequired("tools")

	return scanCmd
}

// runScan starts the scan and waits for it. An interrupt stops the scan and
// still reports it.
func runScan(ctx context.Context, a *app.App, req services.StartScanRequest) (*Summary, error) {
	handle, err := a.ScanService.StartScan(ctx, req)
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	select {
	case <-handle.Done():
	case <-ctx.Done():
		a.Logger.WithFields(logger.Fields{"scan_id": handle.ScanID}).Info("Interrupted, stopping scan")
		if _, err := a.ScanService.StopScan(bg, handle.ScanID); err != nil {
			a.Logger.WithError(err).Warn("Failed to stop scan")
		}
		<-handle.Done()
	}

	scan, err := a.ScanService.GetScan(bg, handle.ScanID)
	if err != nil {
		return nil, err
	}
	issues, err := a.VulnService.ListIssues(bg, handle.ScanID, "")
	if err != nil {
		return nil, err
	}
	if issues == nil {
		issues = []models.Vulnerability{}
	}
	return &Summary{Scan: scan, Issues: issues}, nil
}

func writeSummary(w io.Writer, summary *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// CollectFiles lists the regular files under dir as path inputs relative to
// dir. Hidden directories are skipped.
func CollectFiles(dir string) ([]services.FileInput, error) {
	var files []services.FileInput

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files = append(files, services.FileInput{Name: rel, Size: info.Size(), Path: rel})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	return files, nil
}

// NewListToolsCommand creates the list-tools command
func NewListToolsCommand() *cobra.Command {
	var asJSON bool

	listToolsCmd := &cobra.Command{
		Use:   "list-tools",
		Short: "List available tools",
		Long:  `List every canonical tool with its aliases and whether the tool catalog enables it`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			cfg, log, err := app.LoadFromFlags(cmd)
			if err != nil {
				return err
			}

			registry := tools.DefaultRegistry()
			catalog, err := tools.NewCatalog(registry, cfg.Tools.ConfigDir, log)
			if err != nil {
				return err
			}
			infos := services.NewToolService(registry, catalog).ListTools()

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			fmt.Fprintln(out, "Available Tools:")
			fmt.Fprintln(out, "===============")
			for _, info := range infos {
				fmt.Fprintf(out, "\n• %s (%s)\n", info.Name, info.DisplayName)
				fmt.Fprintf(out, "  Category: %s\n", info.Category)
				if len(info.Aliases) > 0 {
					fmt.Fprintf(out, "  Aliases: %s\n", strings.Join(info.Aliases, ", "))
				}
				if !info.Enabled {
					fmt.Fprintln(out, "  Disabled")
				}
			}
			return nil
		},
	}

	listToolsCmd.Flags().BoolVar(&asJSON, "json", false, "Print the tools as JSON")

	return listToolsCmd
}
