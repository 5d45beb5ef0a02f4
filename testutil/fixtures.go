package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iksnae/mcp-sentinel/internal/store"
)

// FixtureTime is the timestamp stamped on fixture records
var FixtureTime = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

// Record encodes a captured line as one log record
func Record(t *testing.T, dir store.Direction, raw string) string {
	t.Helper()
	data, err := json.Marshal(store.NewRecord(dir, raw, FixtureTime))
	if err != nil {
		t.Fatalf("Failed to marshal record: %v", err)
	}
	return string(data)
}

// ToolsCall returns the request record of a tools/call invocation
func ToolsCall(t *testing.T, id int, tool string, args map[string]any) string {
	t.Helper()
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  store.MethodToolsCall,
		"params": map[string]any{
			"name":      tool,
			"arguments": args,
		},
	}
	return Record(t, store.DirectionRequest, string(JSONMarshal(t, msg)))
}

// Request returns the request record of a call without parameters
func Request(t *testing.T, id int, method string) string {
	t.Helper()
	msg := map[string]any{"jsonrpc": "2.0", "id": id, "method": method}
	return Record(t, store.DirectionRequest, string(JSONMarshal(t, msg)))
}

// ErrorResponse returns the response record of a failed call
func ErrorResponse(t *testing.T, id int, message string) string {
	t.Helper()
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": -32000, "message": message},
	}
	return Record(t, store.DirectionResponse, string(JSONMarshal(t, msg)))
}

// WriteSession creates a session directory under dataDir with the given
// request and response log lines. A nil slice leaves that file absent.
func WriteSession(t *testing.T, dataDir, name string, requests, responses []string) string {
	t.Helper()
	dir := filepath.Join(dataDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create session directory: %v", err)
	}
	if requests != nil {
		WriteLines(t, filepath.Join(dir, store.DirectionRequest.FileName()), requests)
	}
	if responses != nil {
		WriteLines(t, filepath.Join(dir, store.DirectionResponse.FileName()), responses)
	}
	return dir
}

// WriteLines writes newline-terminated lines to path, replacing it
func WriteLines(t *testing.T, path string, lines []string) {
	t.Helper()
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

// AppendRaw appends data to path without adding a newline
func AppendRaw(t *testing.T, path, data string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(data); err != nil {
		t.Fatalf("Failed to append to %s: %v", path, err)
	}
}
