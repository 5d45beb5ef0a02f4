package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// MarkdownExporter exports sessions in Markdown format
type MarkdownExporter struct{}

// Export exports a session to Markdown format
func (e *MarkdownExporter) Export(doc *Document, w io.Writer) error {
	// Header
	_, _ = fmt.Fprintf(w, "# Session %s\n\n", doc.Session)

	_, _ = fmt.Fprintf(w, "**Service:** %s  \n", doc.Service)
	if doc.StartedAt != "" {
		_, _ = fmt.Fprintf(w, "**Started:** %s  \n", doc.StartedAt)
	}
	_, _ = fmt.Fprintf(w, "**Requests:** %d  \n", doc.Requests)
	_, _ = fmt.Fprintf(w, "**Responses:** %d  \n", doc.Responses)
	_, _ = fmt.Fprintf(w, "**Tool calls:** %d\n\n", doc.ToolCalls)

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Messages\n\n")

	for i, msg := range doc.Messages {
		arrow := "→"
		if msg.Direction == "response" {
			arrow = "←"
		}
		title := msg.Direction
		if msg.Method != "" {
			title += " `" + msg.Method + "`"
		}
		if msg.ID != "" {
			title += " #" + msg.ID
		}
		_, _ = fmt.Fprintf(w, "**%s %s** (%s)\n\n", arrow, title, msg.Timestamp)

		if msg.Tool != "" {
			_, _ = fmt.Fprintf(w, "Tool: `%s`  \nQuery: %s\n\n", msg.Tool, escapeMarkdown(msg.Query))
		}

		if msg.Structured {
			body, err := json.MarshalIndent(msg.Payload, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to render message %d: %w", i, err)
			}
			_, _ = fmt.Fprintf(w, "```json\n%s\n```\n\n", body)
		} else {
			_, _ = fmt.Fprintf(w, "%s\n\n", escapeMarkdown(msg.Raw))
		}

		// Add horizontal rule after each message (except the last one)
		if i < len(doc.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

// escapeMarkdown escapes markdown special characters
func escapeMarkdown(text string) string {
	// Basic escaping - preserve code blocks
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			// Escape markdown syntax outside code blocks
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
