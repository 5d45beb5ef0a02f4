package export

import (
	"encoding/json"
	"io"
)

// JSONExporter writes the whole session as one indented document.
type JSONExporter struct{}

func (e *JSONExporter) Export(doc *Document, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	// captured SQL and shell payloads keep their <, > and & readable
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

func (e *JSONExporter) Extension() string { return "json" }
