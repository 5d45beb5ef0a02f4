package export

import (
	"fmt"
	"io"
	"strings"
)

// Exporter writes one captured session in a file format
type Exporter interface {
	Export(doc *Document, w io.Writer) error
	Extension() string
}

// Formats lists the accepted format names
const Formats = "jsonl, json, yaml, md"

// NewExporter returns the exporter for a format name (case-insensitive)
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "jsonl", "ndjson":
		return &JSONLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: %s)", format, Formats)
	}
}
