package export

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONLExporter exports sessions in JSONL format (one message per line)
type JSONLExporter struct{}

// Export exports a session to JSONL format
func (e *JSONLExporter) Export(doc *Document, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, msg := range doc.Messages {
		obj := map[string]interface{}{
			"timestamp": msg.Timestamp,
			"direction": msg.Direction,
		}
		if msg.Method != "" {
			obj["method"] = msg.Method
		}
		if msg.ID != "" {
			obj["id"] = msg.ID
		}
		if msg.Tool != "" {
			obj["tool"] = msg.Tool
			obj["query"] = msg.Query
		}
		if msg.Structured {
			obj["payload"] = msg.Payload
		} else {
			obj["raw"] = msg.Raw
		}

		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
