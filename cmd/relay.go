package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iksnae/mcp-sentinel/internal"
	"github.com/iksnae/mcp-sentinel/internal/relay"
	"github.com/spf13/cobra"
)

// relayLogName is the diagnostic log written next to the sessions
const relayLogName = "relay.log"

// relayCmd represents the relay command
var relayCmd = &cobra.Command{
	Use:   "relay <service> <command> [args...]",
	Short: "Run an MCP server and record its traffic",
	Long: `Spawn an MCP server and relay JSON-RPC traffic between it and the
client on stdin/stdout, recording every line to a new session directory.

Standard output carries protocol traffic only. Diagnostics go to relay.log in
the data directory. The relay exits with the server's exit status.

Secrets for the server are read from <secrets-dir>/<service>.env when a
secrets directory is configured.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 {
			return &internal.ExitError{
				Code: relay.ExitUsage,
				Err:  fmt.Errorf("usage: %s", cmd.UseLine()),
			}
		}

		cfg, err := loadConfig()
		if err != nil {
			return &internal.ExitError{Code: relay.ExitUsage, Err: err}
		}

		logger, closeLog, err := openRelayLog(cfg.DataDir, cfg.Relay.LogFile)
		if err != nil {
			return err
		}
		defer closeLog()

		opts := relay.Options{
			Service: args[0],
			Command: args[1],
			Args:    args[2:],
			DataDir: cfg.DataDir,
			Stdin:   cmd.InOrStdin(),
			Stdout:  cmd.OutOrStdout(),
			Logger:  logger,
		}
		if cfg.Relay.SecretsDir != "" {
			opts.Secrets = relay.EnvFileProvider{Dir: cfg.Relay.SecretsDir}
		}

		r, err := relay.New(opts)
		if err != nil {
			return &internal.ExitError{Code: relay.ExitUsage, Err: err}
		}
		code, err := r.Run(context.Background())
		if err != nil {
			return &internal.ExitError{Code: code, Err: err}
		}
		if code != 0 {
			return &internal.ExitError{Code: code}
		}
		return nil
	},
}

// openRelayLog opens the append-only diagnostic log. Nothing may reach
// stdout while relaying.
func openRelayLog(dataDir, path string) (*internal.Logger, func(), error) {
	if path == "" {
		path = filepath.Join(dataDir, relayLogName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, &internal.StorageError{Path: path, Op: "mkdir", Err: err}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, &internal.StorageError{Path: path, Op: "open", Err: err}
	}
	level := internal.LogLevelInfo
	if verbose {
		level = internal.LogLevelDebug
	}
	return internal.NewLogger(f, level), func() { _ = f.Close() }, nil
}

func init() {
	rootCmd.AddCommand(relayCmd)
	// Everything after the service name belongs to the server command line
	relayCmd.Flags().SetInterspersed(false)
}
