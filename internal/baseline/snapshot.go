package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iksnae/mcp-sentinel/internal"
)

// SchemaVersion is the snapshot layout written by this build
const SchemaVersion = 1

// SnapshotKind tags a baseline snapshot document
const SnapshotKind = "mcp-sentinel/baseline"

// ErrUnsupportedSchema is returned for snapshots written in an unknown layout
var ErrUnsupportedSchema = errors.New("unsupported baseline schema")

// Snapshot is the persisted form of a Model plus the builder statistics.
// Topics are stored in first-learned order so tie-breaks survive a reload.
type Snapshot struct {
	Kind          string                   `json:"kind"`
	SchemaVersion int                      `json:"schema_version"`
	CreatedAt     time.Time                `json:"created_at"`
	TotalSessions int                      `json:"total_sessions"`
	Tools         []ToolSnapshot           `json:"tools"`
	Services      map[string]*ServiceStats `json:"services,omitempty"`
}

// ToolSnapshot is one persisted tool profile
type ToolSnapshot struct {
	Tool   string       `json:"tool"`
	Topics []TopicCount `json:"topics"`
}

// NewSnapshot captures the model
func NewSnapshot(m *Model, createdAt time.Time) *Snapshot {
	s := &Snapshot{
		Kind:          SnapshotKind,
		SchemaVersion: SchemaVersion,
		CreatedAt:     createdAt,
		Tools:         []ToolSnapshot{},
	}
	for _, tool := range m.Tools() {
		s.Tools = append(s.Tools, ToolSnapshot{Tool: tool, Topics: m.profiles[tool].Counts()})
	}
	return s
}

// Model rebuilds the model held by the snapshot
func (s *Snapshot) Model() (*Model, error) {
	m := NewModel()
	for _, ts := range s.Tools {
		if ts.Tool == "" {
			return nil, fmt.Errorf("tool profile without a name")
		}
		p := newToolProfile(ts.Tool)
		for _, tc := range ts.Topics {
			if tc.Topic == "" || tc.Count <= 0 {
				return nil, fmt.Errorf("tool %s: invalid topic entry %q=%d", ts.Tool, tc.Topic, tc.Count)
			}
			p.add(tc.Topic, tc.Count)
		}
		if p.Len() > 0 {
			m.profiles[ts.Tool] = p
		}
	}
	return m, nil
}

// SaveSnapshot writes s to path atomically: readers see either the previous
// file or the complete new one.
func SaveSnapshot(path string, s *Snapshot) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}

// LoadSnapshot reads and validates the snapshot at path
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &internal.StorageError{Path: path, Op: "read", Err: err}
	}

	var header struct {
		Kind          string `json:"kind"`
		SchemaVersion int    `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, &internal.ParseError{Source: "snapshot", Key: path, Err: err}
	}
	if header.Kind != SnapshotKind || header.SchemaVersion != SchemaVersion {
		return nil, &internal.SnapshotError{Path: path, Version: header.SchemaVersion, Err: ErrUnsupportedSchema}
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &internal.ParseError{Source: "snapshot", Key: path, Err: err}
	}
	if _, err := s.Model(); err != nil {
		return nil, &internal.SnapshotError{Path: path, Version: s.SchemaVersion, Err: err}
	}
	return &s, nil
}

// LoadModel reads the snapshot at path and returns its model
func LoadModel(path string) (*Model, *Snapshot, error) {
	s, err := LoadSnapshot(path)
	if err != nil {
		return nil, nil, err
	}
	m, err := s.Model()
	if err != nil {
		return nil, nil, err
	}
	return m, s, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &internal.StorageError{Path: dir, Op: "mkdir", Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &internal.StorageError{Path: path, Op: "create", Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return &internal.StorageError{Path: tmpName, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return &internal.StorageError{Path: tmpName, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &internal.StorageError{Path: tmpName, Op: "close", Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return &internal.StorageError{Path: tmpName, Op: "chmod", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return &internal.StorageError{Path: path, Op: "rename", Err: err}
	}
	return nil
}
