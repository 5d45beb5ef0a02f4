package cmd

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/mcp-sentinel/internal/alert"
	"github.com/iksnae/mcp-sentinel/internal/store"
	"github.com/iksnae/mcp-sentinel/internal/topic"
	"github.com/spf13/cobra"
)

// rawPreviewWidth bounds how much of a message body is shown per line
const rawPreviewWidth = 120

var (
	limit     int
	toolsOnly bool
)

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243"))

	requestStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	responseStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Show the traffic of a captured session",
	Long: `Display the requests and responses of a session in capture order.

The session may be given by its full name or by any unique prefix.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		info, err := store.FindSession(cfg.DataDir, args[0])
		if err != nil {
			return fmt.Errorf("%w (use 'mcp-sentinel list' to see available sessions)", err)
		}
		session, err := store.LoadSession(info)
		if err != nil {
			return err
		}

		displaySession(cmd.OutOrStdout(), session, limit, toolsOnly)
		return nil
	},
}

func displaySession(out io.Writer, s *store.LoadedSession, limit int, toolsOnly bool) {
	fmt.Fprintln(out, sessionHeaderStyle.Render("Session "+s.Info.Name))
	meta := fmt.Sprintf("Service: %s | Requests: %d | Responses: %d | Tool calls: %d",
		s.Info.Service, len(s.Requests), len(s.Responses), s.ToolCalls())
	if !s.Info.StartedAt.IsZero() {
		meta += " | Started: " + s.Info.StartedAt.Format("2006-01-02 15:04:05")
	}
	fmt.Fprintln(out, sessionMetaStyle.Render(meta))
	if s.Corrupt > 0 {
		fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("%d unreadable line(s) skipped", s.Corrupt)))
	}
	fmt.Fprintln(out)

	records := s.Merged()
	if toolsOnly {
		calls := records[:0:0]
		for _, rec := range records {
			if _, ok := rec.ToolCall(); ok {
				calls = append(calls, rec)
			}
		}
		records = calls
	}
	if limit > 0 && len(records) > limit {
		fmt.Fprintln(out, sessionMetaStyle.Render(fmt.Sprintf("(showing last %d of %d messages)", limit, len(records))))
		records = records[len(records)-limit:]
	}

	for _, rec := range records {
		fmt.Fprintln(out, formatRecord(rec))
	}
}

// formatRecord renders one captured line as a header and a short body
func formatRecord(rec store.Record) string {
	stamp := timestampStyle.Render(rec.Time().Local().Format("15:04:05.000"))

	label := requestStyle.Render("→ " + string(rec.Direction))
	if rec.Direction == store.DirectionResponse {
		label = responseStyle.Render("← " + string(rec.Direction))
	}
	if m := rec.RPCMethod(); m != "" {
		label += " " + m
	}
	if id := rec.IDString(); id != "" {
		label += sessionMetaStyle.Render(" #" + id)
	}

	var body string
	if call, ok := rec.ToolCall(); ok {
		body = alert.Truncate(fmt.Sprintf("%s: %s", call.Name, topic.ResolveQuery(call.Arguments)), rawPreviewWidth)
	} else if msg, ok := rec.ErrorMessage(); ok {
		body = errorStyle.Render("ERROR: " + alert.Truncate(msg, rawPreviewWidth))
	} else {
		body = alert.Truncate(rec.RawMessage, rawPreviewWidth)
	}
	return fmt.Sprintf("%s %s\n%s", stamp, label, messageContentStyle.Render(body))
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Only show the last N messages")
	showCmd.Flags().BoolVar(&toolsOnly, "tools", false, "Only show tools/call requests")
}
