package cmd

import (
	"fmt"
	"os"

	"github.com/iksnae/mcp-sentinel/internal"
	"github.com/iksnae/mcp-sentinel/internal/config"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	configPath string
	dataDir    string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcp-sentinel",
	Short: "Record MCP traffic and flag unusual tool queries",
	Long: `A CLI that sits between an MCP client and an MCP server.

The relay forwards JSON-RPC traffic unchanged and records every line to a
session directory. The baseline builder learns which topics each tool is
normally queried about, and the monitor follows live sessions and raises an
alert when a query drifts away from them.

Quick Start:
  mcp-sentinel relay notion npx -y @notionhq/notion-mcp-server
  mcp-sentinel baseline build            # Learn topics from captured sessions
  mcp-sentinel monitor                   # Watch live sessions for anomalies
  mcp-sentinel detect search "refund policy"`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	code := internal.ExitCode(err)
	if err != nil && !silentExit(err) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	if code != 0 {
		os.Exit(code)
	}
}

// silentExit reports whether err only carries a mirrored exit status
func silentExit(err error) bool {
	exitErr, ok := err.(*internal.ExitError)
	return ok && exitErr.Err == nil
}

// loadConfig reads the configuration and applies command-line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// newLogger builds the stderr logger shared by the analysis commands
func newLogger() *internal.Logger {
	return internal.NewVerboseLogger(verbose)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Session data directory (overrides config)")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}
