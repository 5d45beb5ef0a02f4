package alert

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	rule            = "============================================================"
	queryAlertWidth = 100
	queryTraceWidth = 50
	expectedTopics  = 3
)

// Console prints events for an operator watching a terminal
type Console struct {
	out io.Writer

	header  lipgloss.Style
	tool    lipgloss.Style
	query   lipgloss.Style
	conf    lipgloss.Style
	topics  lipgloss.Style
	expect  lipgloss.Style
	ok      lipgloss.Style
	errText lipgloss.Style
	dim     lipgloss.Style
}

// NewConsole creates a console sink writing to out. Colors are used only
// when out is a terminal.
func NewConsole(out io.Writer) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:     out,
		header:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		tool:    r.NewStyle().Foreground(lipgloss.Color("11")),
		query:   r.NewStyle().Foreground(lipgloss.Color("14")),
		conf:    r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		topics:  r.NewStyle().Foreground(lipgloss.Color("13")).Bold(true),
		expect:  r.NewStyle().Foreground(lipgloss.Color("10")),
		ok:      r.NewStyle().Foreground(lipgloss.Color("10")),
		errText: r.NewStyle().Foreground(lipgloss.Color("9")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (c *Console) Emit(_ context.Context, ev Event) error {
	var line string
	stamp := ev.Time.Format("15:04:05")
	switch ev.Kind {
	case KindNewFile:
		line = fmt.Sprintf("[%s] new file: %s", stamp, ev.File)
	case KindAnomaly:
		if ev.Result == nil {
			return nil
		}
		line = "\n" + c.FormatAlert(ev)
	case KindToolCall:
		line = fmt.Sprintf("[%s] %s → %s: %s", stamp, c.ok.Render("✓"), ev.Tool, Truncate(ev.Query, queryTraceWidth))
	case KindCall:
		line = fmt.Sprintf("[%s] → %s (id: %s)", stamp, ev.Method, ev.ID)
	case KindRPCError:
		line = fmt.Sprintf("[%s] %s %s", stamp, c.errText.Render("← ERROR:"), ev.Message)
	case KindInvalid:
		line = c.dim.Render(fmt.Sprintf("[%s] invalid record in %s: %s", stamp, ev.File, Truncate(ev.Message, queryTraceWidth)))
	default:
		return nil
	}
	_, err := fmt.Fprintln(c.out, line)
	return err
}

// FormatAlert renders the multi-line block shown for an anomaly
func (c *Console) FormatAlert(ev Event) string {
	res := ev.Result
	var b strings.Builder
	b.WriteString(c.header.Render(rule + "\nANOMALY DETECTED - " + res.Severity() + " SEVERITY\n" + rule))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Time: %s\n", ev.Time.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Tool: %s\n", c.tool.Render(res.Tool))
	fmt.Fprintf(&b, "Query: %s\n", c.query.Render(Truncate(res.Query, queryAlertWidth)))
	fmt.Fprintf(&b, "Confidence: %s\n", c.conf.Render(fmt.Sprintf("%.1f%%", res.Confidence*100)))
	if len(res.NewTopics) > 0 {
		fmt.Fprintf(&b, "New Topics: %s\n", c.topics.Render(strings.Join(res.NewTopics, ", ")))
	}
	fmt.Fprintf(&b, "Reason: %s\n", res.Reason)
	if len(res.CommonTopics) > 0 {
		common := res.CommonTopics
		if len(common) > expectedTopics {
			common = common[:expectedTopics]
		}
		fmt.Fprintf(&b, "Expected topics: %s\n", c.expect.Render(strings.Join(common, ", ")))
	}
	if ev.Session != "" {
		fmt.Fprintf(&b, "Session: %s\n", ev.Session)
	}
	b.WriteString(rule)
	return b.String()
}
