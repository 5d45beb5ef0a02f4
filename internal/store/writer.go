package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/iksnae/mcp-sentinel/internal"
)

// SessionTimeLayout is the timestamp part of a session directory name
const SessionTimeLayout = "20060102_150405"

// SessionPrefix starts every session directory name
const SessionPrefix = "session_"

var (
	// ErrClosed is returned when appending to a closed writer
	ErrClosed = errors.New("session writer closed")
	// ErrNotSession is returned for directory names without the session prefix
	ErrNotSession = errors.New("not a session directory")
)

// SessionName returns the directory name for a session of service started at t
func SessionName(service string, t time.Time) string {
	return SessionPrefix + t.Format(SessionTimeLayout) + "_" + sanitizeService(service)
}

func sanitizeService(service string) string {
	service = strings.TrimSpace(service)
	service = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '-'
		}
		return r
	}, service)
	if service == "" || service == "." || service == ".." {
		return "unknown"
	}
	return service
}

// Writer appends records to the two partitions of one session.
// Append is safe for concurrent use; writes to a partition are serialized
// and each record is a single write of a complete line.
type Writer struct {
	info       SessionInfo
	partitions map[Direction]*partition
	now        func() time.Time
}

type partition struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Create makes the session directory under dataDir and opens both partitions
// for appending. An existing directory with the same name is reused.
func Create(dataDir, service string, startedAt time.Time) (*Writer, error) {
	name := SessionName(service, startedAt)
	dir := filepath.Join(dataDir, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &internal.StorageError{Path: dir, Op: "mkdir", Err: err}
	}

	w := &Writer{
		info: SessionInfo{
			Name:      name,
			Service:   sanitizeService(service),
			Dir:       dir,
			StartedAt: startedAt,
		},
		partitions: make(map[Direction]*partition, 2),
		now:        time.Now,
	}
	for _, d := range []Direction{DirectionRequest, DirectionResponse} {
		path := filepath.Join(dir, d.FileName())
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			_ = w.Close()
			return nil, &internal.StorageError{Path: path, Op: "open", Err: err}
		}
		w.partitions[d] = &partition{path: path, file: f}
	}
	return w, nil
}

// Session returns the descriptor of the session being written
func (w *Writer) Session() SessionInfo {
	return w.info
}

// Path returns the partition file for a direction
func (w *Writer) Path(dir Direction) string {
	if p, ok := w.partitions[dir]; ok {
		return p.path
	}
	return ""
}

// Append records one line of traffic. It returns only after the record has
// been handed to the operating system.
func (w *Writer) Append(dir Direction, line string) (Record, error) {
	p, ok := w.partitions[dir]
	if !ok {
		return Record{}, fmt.Errorf("append: unknown direction %q", dir)
	}

	rec := NewRecord(dir, line, w.now())
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, &internal.StorageError{Path: p.path, Op: "encode", Err: err}
	}
	data = append(data, '\n')

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return Record{}, &internal.StorageError{Path: p.path, Op: "append", Err: ErrClosed}
	}
	if _, err := p.file.Write(data); err != nil {
		return Record{}, &internal.StorageError{Path: p.path, Op: "append", Err: err}
	}
	return rec, nil
}

// Close closes both partitions. Further appends fail with ErrClosed.
func (w *Writer) Close() error {
	var errs []error
	for _, p := range w.partitions {
		p.mu.Lock()
		if p.file != nil {
			if err := p.file.Close(); err != nil {
				errs = append(errs, &internal.StorageError{Path: p.path, Op: "close", Err: err})
			}
			p.file = nil
		}
		p.mu.Unlock()
	}
	return errors.Join(errs...)
}
