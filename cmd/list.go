package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/mcp-sentinel/internal/store"
	"github.com/spf13/cobra"
)

// listCmd represents the list command
var (
	listRebuildIndex bool
	listService      string
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	serviceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Italic(true)
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List captured sessions",
	Long: `List every session in the data directory with its message counts.

Counts are kept in an index file (sessions.yaml) inside the data directory and
only recomputed for sessions whose logs changed since the last listing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger().With("index")
		manager := store.NewIndexManager(cfg.DataDir, logger)

		if listRebuildIndex {
			if err := os.Remove(manager.Path()); err != nil && !os.IsNotExist(err) {
				logger.Warnf("Failed to remove index: %v", err)
			} else {
				logger.Infof("Index cleared")
			}
		}

		index, err := manager.Refresh()
		if err != nil {
			return fmt.Errorf("failed to index sessions: %w", err)
		}

		entries := index.Sessions
		if listService != "" {
			filtered := make([]store.IndexEntry, 0, len(entries))
			for _, e := range entries {
				if e.Service == listService {
					filtered = append(filtered, e)
				}
			}
			entries = filtered
		}

		displaySessions(cmd.OutOrStdout(), entries, time.Now())
		return nil
	},
}

func displaySessions(out io.Writer, entries []store.IndexEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(out, headerStyle.Render("📋 No sessions found"))
		return
	}

	header := headerStyle.Render(fmt.Sprintf("📋 Found %d session(s)", len(entries)))
	fmt.Fprintln(out, header)
	fmt.Fprintln(out)

	// Use tabwriter for aligned columns with better spacing
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	_, _ = fmt.Fprintln(w, titleStyle.Render("Session")+"\t"+titleStyle.Render("Service")+"\t"+titleStyle.Render("Requests")+"\t"+titleStyle.Render("Responses")+"\t"+titleStyle.Render("Tool calls")+"\t"+titleStyle.Render("Started")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("─", 100))

	for _, entry := range entries {
		started := dateStyle.Render("—")
		if entry.StartedAt != "" {
			if t, err := time.Parse(time.RFC3339, entry.StartedAt); err == nil {
				started = dateStyle.Render(relativeTime(t, now))
			}
		}

		calls := strconv.Itoa(entry.ToolCalls)
		if entry.ToolCalls > 0 {
			calls = countStyle.Render(calls)
		}
		if entry.Corrupt > 0 {
			calls += warningStyle.Render(fmt.Sprintf(" (%d bad)", entry.Corrupt))
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t\n",
			idStyle.Render(entry.Name),
			serviceStyle.Render(entry.Service),
			entry.Requests,
			entry.Responses,
			calls,
			started,
		)
	}

	_ = w.Flush()
	fmt.Fprintln(out)
	fmt.Fprintln(out, idStyle.Render("💡 Tip: Use a session name (or a unique prefix, e.g. ")+
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render(entries[len(entries)-1].Name)+
		idStyle.Render(") with `mcp-sentinel show <session>`"))
}

// relativeTime formats t compactly relative to now
func relativeTime(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listRebuildIndex, "rebuild-index", false, "Discard the session index before listing")
	listCmd.Flags().StringVar(&listService, "service", "", "Only list sessions of this service")
}
