package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/mcp-sentinel/internal/baseline"
	"github.com/iksnae/mcp-sentinel/internal/store"
	"github.com/spf13/cobra"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that captured data and the baseline are usable",
	Long: `Check the health of mcp-sentinel by verifying:
  • Configuration loading
  • Data directory access
  • Session discovery and readability
  • Baseline availability
  • Secrets directory (when configured)

This command is useful for debugging a deployment before starting a monitor.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, sectionStyle.Render("🔍 MCP Sentinel Health Check"))
		fmt.Fprintln(out)

		// Step 1: Configuration
		fmt.Fprintln(out, infoStyle.Render("Step 1: Loading configuration..."))
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render("❌ Failed to load configuration:"), err)
			return fmt.Errorf("health check failed: %w", err)
		}
		fmt.Fprintln(out, successStyle.Render("✅ Configuration loaded"))
		if verbose {
			fmt.Fprintf(out, "   Data directory: %s\n", cfg.DataDir)
			fmt.Fprintf(out, "   Baseline: %s\n", cfg.Baseline.Path)
			fmt.Fprintf(out, "   Sensitivity: %.2f (min history %d)\n", cfg.Sensitivity(), cfg.MinHistory())
		}
		fmt.Fprintln(out)

		// Step 2: Data directory
		fmt.Fprintln(out, infoStyle.Render("Step 2: Checking data directory..."))
		dataOK := checkDataDir(out, cfg.DataDir)
		fmt.Fprintln(out)

		// Step 3: Sessions
		fmt.Fprintln(out, infoStyle.Render("Step 3: Reading sessions..."))
		sessionCount := checkSessions(out, cfg.DataDir)
		fmt.Fprintln(out)

		// Step 4: Baseline
		fmt.Fprintln(out, infoStyle.Render("Step 4: Loading baseline..."))
		baselineOK := checkBaseline(out, cfg.Baseline.Path)
		fmt.Fprintln(out)

		// Step 5: Secrets
		if cfg.Relay.SecretsDir != "" {
			fmt.Fprintln(out, infoStyle.Render("Step 5: Checking secrets directory..."))
			if info, err := os.Stat(cfg.Relay.SecretsDir); err != nil || !info.IsDir() {
				fmt.Fprintln(out, warningStyle.Render("⚠️  Secrets directory not found:"), cfg.Relay.SecretsDir)
			} else {
				matches, _ := filepath.Glob(filepath.Join(cfg.Relay.SecretsDir, "*.env"))
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Found %d service secret file(s)", len(matches))))
			}
			fmt.Fprintln(out)
		}

		// Summary
		fmt.Fprintln(out, sectionStyle.Render("📊 Summary"))
		fmt.Fprintln(out)

		switch {
		case !dataOK:
			fmt.Fprintln(out, errorStyle.Render("❌ Health check failed"))
			fmt.Fprintln(out, "   • The data directory is not writable")
			return fmt.Errorf("health check failed: data directory %s is not usable", cfg.DataDir)
		case sessionCount > 0 && baselineOK:
			fmt.Fprintln(out, successStyle.Render("✅ Health check passed!"))
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("   • Sessions: %d found", sessionCount)))
			fmt.Fprintln(out, successStyle.Render("   • Baseline: Available"))
		case sessionCount > 0:
			fmt.Fprintln(out, warningStyle.Render("⚠️  Sessions captured but no baseline"))
			fmt.Fprintln(out, "   • Run 'mcp-sentinel baseline build' before monitoring")
		default:
			fmt.Fprintln(out, warningStyle.Render("⚠️  Storage available but no sessions found"))
			fmt.Fprintln(out, "   • Start an MCP server through 'mcp-sentinel relay' to capture traffic")
		}
		return nil
	},
}

func checkDataDir(out io.Writer, dir string) bool {
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Cannot create data directory:"), err)
		return false
	}
	probe, err := os.CreateTemp(dir, ".healthcheck-*")
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Data directory is not writable:"), err)
		return false
	}
	_ = probe.Close()
	_ = os.Remove(probe.Name())
	fmt.Fprintln(out, successStyle.Render("✅ Data directory is writable"))
	return true
}

func checkSessions(out io.Writer, dir string) int {
	sessions, err := store.ListSessions(dir)
	if err != nil {
		fmt.Fprintln(out, errorStyle.Render("❌ Failed to list sessions:"), err)
		return 0
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, warningStyle.Render("⚠️  No sessions found"))
		return 0
	}
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Found %d session(s)", len(sessions))))

	corrupt := 0
	for i, s := range sessions {
		loaded, err := store.LoadSession(s)
		if err != nil {
			fmt.Fprintln(out, warningStyle.Render("⚠️  Unreadable session "+s.Name+":"), err)
			continue
		}
		corrupt += loaded.Corrupt
		if verbose && i < 5 {
			fmt.Fprintf(out, "   [%d] %s (%d requests, %d tool calls)\n", i+1, s.Name, len(loaded.Requests), loaded.ToolCalls())
		}
	}
	if verbose && len(sessions) > 5 {
		fmt.Fprintf(out, "   ... and %d more\n", len(sessions)-5)
	}
	if corrupt > 0 {
		fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("⚠️  %d unreadable line(s) across sessions", corrupt)))
	}
	return len(sessions)
}

func checkBaseline(out io.Writer, path string) bool {
	model, snap, err := baseline.LoadModel(path)
	if err != nil {
		fmt.Fprintln(out, warningStyle.Render("⚠️  Baseline not available:"), err)
		return false
	}
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✅ Baseline loaded (%d tool(s), %d session(s))", len(model.Tools()), snap.TotalSessions)))
	if verbose {
		fmt.Fprintf(out, "   Created: %s\n", snap.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return true
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}
