package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iksnae/mcp-sentinel/internal/store"
	"github.com/iksnae/mcp-sentinel/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// runCommand executes the root command with args after resetting every flag,
// returning what was written to stdout
func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)

	err := rootCmd.Execute()
	return stdout.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// writeFixtureSessions creates two notion sessions whose search calls are all
// about refunds
func writeFixtureSessions(t *testing.T) string {
	t.Helper()
	dataDir := t.TempDir()
	search := func(id int, q string) string {
		return testutil.ToolsCall(t, id, "search", map[string]any{"query": q})
	}
	testutil.WriteSession(t, dataDir, "session_20250701_100000_notion",
		[]string{
			testutil.Request(t, 0, "initialize"),
			search(1, "refund policy"),
			search(2, "refund policy"),
		},
		[]string{testutil.Record(t, store.DirectionResponse, `{"jsonrpc":"2.0","id":1,"result":{}}`)},
	)
	testutil.WriteSession(t, dataDir, "session_20250702_090000_notion",
		[]string{search(1, "refund policy")},
		[]string{testutil.ErrorResponse(t, 1, "rate limited")},
	)
	return dataDir
}

// buildFixtureBaseline writes the baseline of the fixture sessions and returns
// the data directory and baseline path
func buildFixtureBaseline(t *testing.T) (string, string) {
	t.Helper()
	dataDir := writeFixtureSessions(t)
	out := t.TempDir()
	baselinePath := filepath.Join(out, "baseline.json")
	if _, err := runCommand(t, "", "--data-dir", dataDir, "baseline", "build",
		"--out", baselinePath, "--summary", filepath.Join(out, "summary.json")); err != nil {
		t.Fatalf("baseline build failed: %v", err)
	}
	return dataDir, baselinePath
}
