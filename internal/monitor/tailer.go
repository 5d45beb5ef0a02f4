// Package monitor tails the session store and scores tool calls as they are
// written.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/iksnae/mcp-sentinel/internal"
	"github.com/iksnae/mcp-sentinel/internal/alert"
	"github.com/iksnae/mcp-sentinel/internal/detector"
	"github.com/iksnae/mcp-sentinel/internal/history"
	"github.com/iksnae/mcp-sentinel/internal/metrics"
	"github.com/iksnae/mcp-sentinel/internal/store"
	"github.com/iksnae/mcp-sentinel/internal/topic"
)

// DefaultHistorySize is the number of anomalies kept in memory
const DefaultHistorySize = 100

// Options configure a tailer
type Options struct {
	DataDir     string
	Scorer      *detector.Scorer
	Sink        alert.Sink
	HistorySize int
	Metrics     *metrics.Monitor
	Logger      *internal.Logger
}

// Tailer follows every log file of a data directory. It is single-threaded:
// Poll, Prime and Run must not be called concurrently.
type Tailer struct {
	opts   Options
	files  map[string]*fileState
	stats  *Stats
	logger *internal.Logger
	now    func() time.Time
}

// fileState is the consumption watermark of one log file. offset always sits
// just past the last newline consumed.
type fileState struct {
	path    string
	session string
	dir     store.Direction
	offset  int64
	lines   int
}

// NewTailer creates a tailer
func NewTailer(opts Options) *Tailer {
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	return &Tailer{
		opts:   opts,
		files:  make(map[string]*fileState),
		stats:  newStats(opts.HistorySize),
		logger: opts.Logger,
		now:    time.Now,
	}
}

// Stats returns the running counters
func (t *Tailer) Stats() *Stats {
	return t.stats
}

// Watermark returns the number of lines consumed from path, or -1 when the
// file is not tracked
func (t *Tailer) Watermark(path string) int {
	if fs, ok := t.files[path]; ok {
		return fs.lines
	}
	return -1
}

// Prime registers the files that already exist at their current complete
// line count, so only lines written from now on are processed.
func (t *Tailer) Prime() error {
	paths, err := t.logFiles()
	if err != nil {
		return err
	}
	for _, path := range paths {
		st := t.track(path)
		data, err := os.ReadFile(path)
		if err != nil {
			t.logger.Warnf("prime %s: %v", path, err)
			continue
		}
		if last := bytes.LastIndexByte(data, '\n'); last >= 0 {
			st.offset = int64(last + 1)
			st.lines = bytes.Count(data[:last+1], []byte{'\n'})
		}
		t.logger.Debugf("Tracking %s from line %d", path, st.lines)
	}
	t.opts.Metrics.SetTrackedFiles(len(t.files))
	return nil
}

// Poll runs one iteration: it picks up new files and processes every newly
// completed line. A failure on one file does not stop the others; all
// failures are returned joined.
func (t *Tailer) Poll(ctx context.Context) error {
	paths, err := t.logFiles()
	if err != nil {
		t.opts.Metrics.PollError()
		return err
	}

	present := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		present[path] = struct{}{}
		if _, ok := t.files[path]; ok {
			continue
		}
		t.track(path)
		t.emit(ctx, alert.Event{Kind: alert.KindNewFile, Time: t.now(), File: path, Session: sessionOf(path)})
	}
	for path := range t.files {
		if _, ok := present[path]; !ok {
			t.logger.Debugf("Stopped tracking %s", path)
			delete(t.files, path)
		}
	}
	t.opts.Metrics.SetTrackedFiles(len(t.files))

	var errs []error
	for _, path := range paths {
		if err := t.readNew(ctx, t.files[path]); err != nil {
			t.opts.Metrics.PollError()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run polls whenever feed fires until ctx is cancelled, then returns the
// run summary. Poll failures are logged and never end the loop.
func (t *Tailer) Run(ctx context.Context, feed ChangeFeed) Summary {
	for {
		if err := t.Poll(ctx); err != nil {
			t.logger.Warnf("poll: %v", err)
		}
		if err := feed.Next(ctx); err != nil {
			break
		}
	}
	return t.Summary()
}

// Summary reports the run so far
func (t *Tailer) Summary() Summary {
	s := Summary{
		TotalRequests:  t.stats.TotalRequests,
		TotalAnomalies: t.stats.TotalAnomalies,
		AnomalyRate:    t.stats.AnomalyRate(),
		ByTool:         t.stats.ByTool(),
		Recent:         t.stats.Recent(RecentAnomalies),
		History:        t.stats.Recent(0),
	}
	sessions, err := store.ListSessions(t.opts.DataDir)
	if err != nil {
		t.logger.Warnf("list sessions: %v", err)
		return s
	}
	s.Sessions = len(sessions)
	var latest time.Time
	for _, sess := range sessions {
		info, err := os.Stat(sess.Dir)
		if err != nil {
			continue
		}
		if s.LatestSession == "" || info.ModTime().After(latest) {
			latest = info.ModTime()
			s.LatestSession = sess.Name
		}
	}
	return s
}

func (t *Tailer) track(path string) *fileState {
	st := &fileState{path: path, session: sessionOf(path), dir: directionOf(path)}
	t.files[path] = st
	return st
}

// logFiles lists the *.jsonl files under the data directory in sorted order
func (t *Tailer) logFiles() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(t.opts.DataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == t.opts.DataDir {
				if errors.Is(err, fs.ErrNotExist) {
					return fs.SkipAll
				}
				return err
			}
			t.logger.Debugf("skip %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".jsonl") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, &internal.StorageError{Path: t.opts.DataDir, Op: "read", Err: err}
	}
	sort.Strings(paths)
	return paths, nil
}

func (t *Tailer) readNew(ctx context.Context, st *fileState) error {
	f, err := os.Open(st.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &internal.StorageError{Path: st.path, Op: "open", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &internal.StorageError{Path: st.path, Op: "stat", Err: err}
	}
	size := info.Size()
	if size < st.offset {
		t.logger.Warnf("%s shrank from %d to %d bytes, reading from the start", st.path, st.offset, size)
		st.offset, st.lines = 0, 0
	}
	if size == st.offset {
		return nil
	}

	buf := make([]byte, size-st.offset)
	n, err := f.ReadAt(buf, st.offset)
	if err != nil && err != io.EOF {
		return &internal.StorageError{Path: st.path, Op: "read", Err: err}
	}
	buf = buf[:n]
	last := bytes.LastIndexByte(buf, '\n')
	if last < 0 {
		return nil
	}
	st.offset += int64(last + 1)
	for _, line := range bytes.Split(buf[:last], []byte{'\n'}) {
		st.lines++
		t.processLine(ctx, st, line)
	}
	return nil
}

func (t *Tailer) processLine(ctx context.Context, st *fileState, line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	rec, err := store.DecodeRecord(line)
	if err != nil {
		t.opts.Metrics.DecodeError()
		t.logger.Debugf("%s:%d: %v", st.path, st.lines, err)
		t.emit(ctx, alert.Event{Kind: alert.KindInvalid, Time: t.now(), File: st.path, Session: st.session, Message: string(line)})
		return
	}

	dir := rec.Direction
	if dir == "" {
		dir = st.dir
	}
	t.opts.Metrics.ObserveRecord(string(dir))
	if !rec.IsJSON || len(rec.Parsed) == 0 {
		return
	}

	switch dir {
	case store.DirectionRequest:
		method := rec.RPCMethod()
		switch method {
		case "":
		case store.MethodToolsCall:
			t.scoreCall(ctx, st, rec)
		default:
			t.emit(ctx, alert.Event{Kind: alert.KindCall, Time: t.now(), File: st.path, Session: st.session, Method: method, ID: rec.IDString()})
		}
	case store.DirectionResponse:
		if msg, ok := rec.ErrorMessage(); ok {
			t.emit(ctx, alert.Event{Kind: alert.KindRPCError, Time: t.now(), File: st.path, Session: st.session, ID: rec.IDString(), Message: msg})
		}
	}
}

func (t *Tailer) scoreCall(ctx context.Context, st *fileState, rec store.Record) {
	call, _ := rec.ToolCall()
	query := topic.ResolveQuery(call.Arguments)
	res := t.opts.Scorer.Detect(call.Name, query)

	tool := call.Name
	if tool == "" {
		tool = "unknown"
	}
	t.stats.TotalRequests++
	t.opts.Metrics.ObserveRequest(tool, res.IsAnomaly)

	now := t.now()
	if !res.IsAnomaly {
		t.emit(ctx, alert.Event{Kind: alert.KindToolCall, Time: now, File: st.path, Session: st.session, Tool: tool, Query: query, Result: &res})
		return
	}
	t.stats.recordAnomaly(AnomalyEntry{ID: history.NewID(), Time: now, Session: st.session, Result: res})
	t.emit(ctx, alert.Event{Kind: alert.KindAnomaly, Time: now, File: st.path, Session: st.session, Tool: tool, Query: query, Result: &res})
}

func (t *Tailer) emit(ctx context.Context, ev alert.Event) {
	if t.opts.Sink == nil {
		return
	}
	if err := t.opts.Sink.Emit(ctx, ev); err != nil {
		t.logger.Warnf("deliver %s event: %v", ev.Kind, err)
	}
}

func sessionOf(path string) string {
	return filepath.Base(filepath.Dir(path))
}

func directionOf(path string) store.Direction {
	switch filepath.Base(path) {
	case store.DirectionRequest.FileName():
		return store.DirectionRequest
	case store.DirectionResponse.FileName():
		return store.DirectionResponse
	}
	return ""
}
