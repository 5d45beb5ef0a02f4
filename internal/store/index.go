package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iksnae/mcp-sentinel/internal"
)

// IndexVersion is bumped whenever the index layout changes
const IndexVersion = "1"

// IndexFileName is the name of the index file kept in the data directory
const IndexFileName = "sessions.yaml"

// IndexMetadata stores metadata about the index
type IndexMetadata struct {
	DataDir      string    `yaml:"data_dir"`
	IndexVersion string    `yaml:"index_version"`
	UpdatedAt    time.Time `yaml:"updated_at"`
}

// IndexEntry summarizes one session
type IndexEntry struct {
	Name             string    `yaml:"name"`
	Service          string    `yaml:"service"`
	StartedAt        string    `yaml:"started_at,omitempty"`
	Requests         int       `yaml:"requests"`
	Responses        int       `yaml:"responses"`
	ToolCalls        int       `yaml:"tool_calls"`
	Corrupt          int       `yaml:"corrupt,omitempty"`
	RequestsModTime  time.Time `yaml:"requests_mod_time"`
	ResponsesModTime time.Time `yaml:"responses_mod_time"`
}

// Index is the YAML summary of all sessions in a data directory
type Index struct {
	Sessions []IndexEntry  `yaml:"sessions"`
	Metadata IndexMetadata `yaml:"metadata"`
}

// IndexManager maintains the session index of a data directory
type IndexManager struct {
	dataDir string
	logger  *internal.Logger
}

// NewIndexManager creates an index manager for dataDir
func NewIndexManager(dataDir string, logger *internal.Logger) *IndexManager {
	return &IndexManager{dataDir: dataDir, logger: logger}
}

// Path returns the path to the index file
func (m *IndexManager) Path() string {
	return filepath.Join(m.dataDir, IndexFileName)
}

// Load reads the index
func (m *IndexManager) Load() (*Index, error) {
	data, err := os.ReadFile(m.Path())
	if err != nil {
		return nil, err
	}
	var index Index
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, &internal.ParseError{Source: "index", Key: m.Path(), Err: err}
	}
	return &index, nil
}

// Save writes the index
func (m *IndexManager) Save(index *Index) error {
	if err := os.MkdirAll(m.dataDir, 0755); err != nil {
		return &internal.StorageError{Path: m.dataDir, Op: "mkdir", Err: err}
	}
	data, err := yaml.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := os.WriteFile(m.Path(), data, 0644); err != nil {
		return &internal.StorageError{Path: m.Path(), Op: "write", Err: err}
	}
	return nil
}

// Refresh brings the index up to date with the data directory. Sessions whose
// partition files have not changed since the last refresh are not re-read.
// The refreshed index is saved when anything changed.
func (m *IndexManager) Refresh() (*Index, error) {
	sessions, err := ListSessions(m.dataDir)
	if err != nil {
		return nil, err
	}

	known := make(map[string]IndexEntry)
	existing, err := m.Load()
	switch {
	case err == nil && existing.Metadata.IndexVersion == IndexVersion:
		for _, e := range existing.Sessions {
			known[e.Name] = e
		}
	case err != nil && !errors.Is(err, os.ErrNotExist):
		m.logger.Warnf("Rebuilding session index: %v", err)
	}

	changed := existing == nil || len(existing.Sessions) != len(sessions)
	index := &Index{
		Metadata: IndexMetadata{DataDir: m.dataDir, IndexVersion: IndexVersion},
	}
	for _, s := range sessions {
		reqMod := modTime(s.PartitionPath(DirectionRequest))
		respMod := modTime(s.PartitionPath(DirectionResponse))

		if e, ok := known[s.Name]; ok && e.RequestsModTime.Equal(reqMod) && e.ResponsesModTime.Equal(respMod) {
			index.Sessions = append(index.Sessions, e)
			continue
		}

		loaded, err := LoadSession(s)
		if err != nil {
			m.logger.Warnf("Skipping session %s: %v", s.Name, err)
			continue
		}
		changed = true
		entry := IndexEntry{
			Name:             s.Name,
			Service:          s.Service,
			Requests:         len(loaded.Requests),
			Responses:        len(loaded.Responses),
			ToolCalls:        loaded.ToolCalls(),
			Corrupt:          loaded.Corrupt,
			RequestsModTime:  reqMod,
			ResponsesModTime: respMod,
		}
		if !s.StartedAt.IsZero() {
			entry.StartedAt = s.StartedAt.Format(time.RFC3339)
		}
		index.Sessions = append(index.Sessions, entry)
	}

	if !changed && existing != nil {
		return existing, nil
	}
	index.Metadata.UpdatedAt = time.Now()
	if err := m.Save(index); err != nil {
		return index, err
	}
	m.logger.Debugf("Indexed %d sessions in %s", len(index.Sessions), m.Path())
	return index, nil
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
