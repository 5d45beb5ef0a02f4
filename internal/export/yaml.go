package export

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLExporter writes the session as a single YAML document.
type YAMLExporter struct{}

func (e *YAMLExporter) Export(doc *Document, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode session %s: %w", doc.Session, err)
	}
	return enc.Close()
}

func (e *YAMLExporter) Extension() string { return "yaml" }
