package export

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewExporter(t *testing.T) {
	tests := []struct {
		format  string
		wantExt string
		wantErr bool
	}{
		{format: "jsonl", wantExt: "jsonl"},
		{format: "ndjson", wantExt: "jsonl"},
		{format: "json", wantExt: "json"},
		{format: "yaml", wantExt: "yaml"},
		{format: "yml", wantExt: "yaml"},
		{format: "YAML", wantExt: "yaml"},
		{format: "md", wantExt: "md"},
		{format: "markdown", wantExt: "md"},
		{format: "csv", wantErr: true},
		{format: "", wantErr: true},
	}

	doc := NewDocument(testSession(t))
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exporter, err := NewExporter(tt.format)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewExporter(%q) should fail", tt.format)
				}
				if !strings.Contains(err.Error(), Formats) {
					t.Errorf("error %q does not list the supported formats", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewExporter(%q) error = %v", tt.format, err)
			}
			if got := exporter.Extension(); got != tt.wantExt {
				t.Errorf("Extension() = %q, want %q", got, tt.wantExt)
			}

			var buf bytes.Buffer
			if err := exporter.Export(doc, &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if !strings.Contains(buf.String(), "refund policy") {
				t.Errorf("%s export does not contain the captured query", tt.format)
			}
		})
	}
}
