package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/iksnae/mcp-sentinel/internal"
	"github.com/iksnae/mcp-sentinel/internal/export"
	"github.com/iksnae/mcp-sentinel/internal/store"
	"github.com/spf13/cobra"
)

var (
	format        string
	outputDir     string
	exportService string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [session]",
	Short: "Export sessions to file",
	Long: `Export captured sessions to various formats (jsonl, md, yaml, json).

You can export all sessions, filter by service, or export a single session by
name or unique prefix. Use 'mcp-sentinel list' to see available sessions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger().With("export")
		printer := internal.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())

		// Create exporter
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}

		var sessions []store.SessionInfo
		if len(args) == 1 {
			info, err := store.FindSession(cfg.DataDir, args[0])
			if err != nil {
				return fmt.Errorf("%w (use 'mcp-sentinel list' to see available sessions)", err)
			}
			sessions = []store.SessionInfo{info}
		} else {
			all, err := store.ListSessions(cfg.DataDir)
			if err != nil {
				return err
			}
			for _, s := range all {
				if exportService == "" || s.Service == exportService {
					sessions = append(sessions, s)
				}
			}
		}
		if len(sessions) == 0 {
			printer.Warning("No sessions to export")
			return nil
		}

		// Ensure output directory exists
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		exported := 0
		steps := []internal.ProgressStep{{
			Message: fmt.Sprintf("Exporting %d session(s) to %s", len(sessions), outputDir),
			Fn: func() error {
				for _, info := range sessions {
					if err := exportSession(exporter, format, info, outputDir); err != nil {
						logger.Errorf("Failed to export session %s: %v", info.Name, err)
						continue
					}
					exported++
				}
				return nil
			},
		}}
		if err := printer.ShowProgressWithSteps(cmd.Context(), steps); err != nil {
			return err
		}
		if exported < len(sessions) {
			return fmt.Errorf("exported %d of %d session(s)", exported, len(sessions))
		}

		printer.Success(fmt.Sprintf("Export complete: %d session(s) exported to %s", exported, outputDir))
		return nil
	},
}

func exportSession(exporter export.Exporter, format string, info store.SessionInfo, dir string) error {
	loaded, err := store.LoadSession(info)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, info.Name+"."+exporter.Extension())

	file, err := os.Create(path)
	if err != nil {
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := exporter.Export(export.NewDocument(loaded), file); err != nil {
		_ = file.Close()
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &internal.ExportError{Format: format, Path: path, Err: err}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format ("+export.Formats+")")
	exportCmd.Flags().StringVarP(&outputDir, "out", "o", "./exports", "Output directory")
	exportCmd.Flags().StringVar(&exportService, "service", "", "Only export sessions of this service")
}
