// Package history persists the anomalies reported by a monitor run.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/iksnae/mcp-sentinel/internal"
)

// FileTimeLayout is the timestamp part of an anomaly log file name
const FileTimeLayout = "20060102_150405"

// Entry is one recorded anomaly
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Tool       string    `json:"tool"`
	Query      string    `json:"query"`
	Confidence float64   `json:"confidence"`
	Severity   string    `json:"severity"`
	NewTopics  []string  `json:"new_topics"`
	Reason     string    `json:"reason"`
	Session    string    `json:"session,omitempty"`
}

// NewID returns a fresh entry identifier
func NewID() string {
	return uuid.NewString()
}

// maxNameCollisions bounds the numbered names tried for one second
const maxNameCollisions = 100

// FileName returns the anomaly log file name for a run ending at t
func FileName(t time.Time) string {
	return "anomaly_log_" + t.Format(FileTimeLayout) + ".json"
}

// numberedFileName is the name used when n-1 runs already ended in the same second
func numberedFileName(t time.Time, n int) string {
	if n <= 1 {
		return FileName(t)
	}
	return fmt.Sprintf("anomaly_log_%s_%d.json", t.Format(FileTimeLayout), n)
}

// createLogFile creates a fresh anomaly log file in dir, never reusing an
// existing one
func createLogFile(dir string, now time.Time) (*os.File, string, error) {
	for n := 1; n <= maxNameCollisions; n++ {
		path := filepath.Join(dir, numberedFileName(now, n))
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, path, nil
		}
		if !os.IsExist(err) {
			return nil, "", &internal.StorageError{Path: path, Op: "create", Err: err}
		}
	}
	path := filepath.Join(dir, FileName(now))
	return nil, "", &internal.StorageError{Path: path, Op: "create", Err: os.ErrExist}
}

// WriteJSON writes entries to a new anomaly log file in dir and returns its
// path. Runs ending in the same second get numbered names.
func WriteJSON(dir string, entries []Entry, now time.Time) (string, error) {
	if entries == nil {
		entries = []Entry{}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &internal.StorageError{Path: dir, Op: "mkdir", Err: err}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal anomaly history: %w", err)
	}
	f, path, err := createLogFile(dir, now)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return "", &internal.StorageError{Path: path, Op: "write", Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &internal.StorageError{Path: path, Op: "write", Err: err}
	}
	return path, nil
}

// ReadJSON loads an anomaly log file
func ReadJSON(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &internal.StorageError{Path: path, Op: "read", Err: err}
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &internal.ParseError{Source: "history", Key: path, Err: err}
	}
	return entries, nil
}
