package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/iksnae/mcp-sentinel/internal"
)

// SessionInfo describes one session directory
type SessionInfo struct {
	Name      string    `json:"name" yaml:"name"`
	Service   string    `json:"service" yaml:"service"`
	Dir       string    `json:"dir" yaml:"dir"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
}

// PartitionPath returns the path of the partition file for dir
func (s SessionInfo) PartitionPath(dir Direction) string {
	return filepath.Join(s.Dir, dir.FileName())
}

// ParseSessionName splits a session directory name into service and start
// time. Names that do not carry a parsable timestamp fall back to the last
// underscore-separated field as the service and a zero time.
func ParseSessionName(name string) (string, time.Time, error) {
	if !strings.HasPrefix(name, SessionPrefix) {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrNotSession, name)
	}
	rest := strings.TrimPrefix(name, SessionPrefix)
	n := len(SessionTimeLayout)
	if len(rest) > n+1 && rest[n] == '_' {
		if t, err := time.ParseInLocation(SessionTimeLayout, rest[:n], time.Local); err == nil {
			return rest[n+1:], t, nil
		}
	}
	parts := strings.Split(rest, "_")
	service := parts[len(parts)-1]
	if service == "" {
		service = "unknown"
	}
	return service, time.Time{}, nil
}

// ListSessions returns the session directories under dataDir ordered by name,
// which is also chronological order. A missing dataDir yields no sessions.
func ListSessions(dataDir string) ([]SessionInfo, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &internal.StorageError{Path: dataDir, Op: "read", Err: err}
	}

	var sessions []SessionInfo
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), SessionPrefix) {
			continue
		}
		service, started, err := ParseSessionName(e.Name())
		if err != nil {
			continue
		}
		sessions = append(sessions, SessionInfo{
			Name:      e.Name(),
			Service:   service,
			Dir:       filepath.Join(dataDir, e.Name()),
			StartedAt: started,
		})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Name < sessions[j].Name })
	return sessions, nil
}

// FindSession looks up a session by exact name or unique name prefix
func FindSession(dataDir, name string) (SessionInfo, error) {
	sessions, err := ListSessions(dataDir)
	if err != nil {
		return SessionInfo{}, err
	}
	var matches []SessionInfo
	for _, s := range sessions {
		if s.Name == name {
			return s, nil
		}
		if strings.HasPrefix(s.Name, name) {
			matches = append(matches, s)
		}
	}
	switch len(matches) {
	case 0:
		return SessionInfo{}, fmt.Errorf("session not found: %s", name)
	case 1:
		return matches[0], nil
	default:
		return SessionInfo{}, fmt.Errorf("session name %q is ambiguous (%d matches)", name, len(matches))
	}
}

// ScanRecords decodes every line read from r and hands it to fn along with
// its 1-based line number. Decode failures are passed to fn rather than
// stopping the scan; a non-nil return from fn does.
func ScanRecords(r io.Reader, fn func(line int, rec Record, err error) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	lineNo := 0
	for {
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			trimmed := strings.TrimSpace(string(line))
			if trimmed != "" {
				rec, err := DecodeRecord([]byte(trimmed))
				if err := fn(lineNo, rec, err); err != nil {
					return err
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return nil
			}
			return readErr
		}
	}
}

// ReadPartition decodes every record of one partition file. Lines that fail
// to decode are counted in corrupt and skipped. A missing file has no records.
func ReadPartition(path string) (records []Record, corrupt int, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, &internal.StorageError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	err = ScanRecords(f, func(_ int, rec Record, decodeErr error) error {
		if decodeErr != nil {
			corrupt++
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return records, corrupt, &internal.StorageError{Path: path, Op: "read", Err: err}
	}
	return records, corrupt, nil
}

// LoadedSession is a session with both partitions read into memory
type LoadedSession struct {
	Info      SessionInfo
	Requests  []Record
	Responses []Record
	Corrupt   int
}

// LoadSession reads both partitions of a session
func LoadSession(info SessionInfo) (*LoadedSession, error) {
	reqs, badReq, err := ReadPartition(info.PartitionPath(DirectionRequest))
	if err != nil {
		return nil, err
	}
	resps, badResp, err := ReadPartition(info.PartitionPath(DirectionResponse))
	if err != nil {
		return nil, err
	}
	return &LoadedSession{
		Info:      info,
		Requests:  reqs,
		Responses: resps,
		Corrupt:   badReq + badResp,
	}, nil
}

// Merged returns both partitions interleaved by timestamp. Records with equal
// timestamps keep requests before responses.
func (s *LoadedSession) Merged() []Record {
	all := make([]Record, 0, len(s.Requests)+len(s.Responses))
	all = append(all, s.Requests...)
	all = append(all, s.Responses...)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Time().Before(all[j].Time())
	})
	return all
}

// ToolCalls counts the tools/call requests of the session
func (s *LoadedSession) ToolCalls() int {
	n := 0
	for _, r := range s.Requests {
		if r.RPCMethod() == MethodToolsCall {
			n++
		}
	}
	return n
}
