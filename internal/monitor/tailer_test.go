package monitor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iksnae/mcp-sentinel/internal/alert"
	"github.com/iksnae/mcp-sentinel/internal/baseline"
	"github.com/iksnae/mcp-sentinel/internal/detector"
	"github.com/iksnae/mcp-sentinel/internal/metrics"
	"github.com/iksnae/mcp-sentinel/internal/store"
	"github.com/iksnae/mcp-sentinel/testutil"
)

type recordingSink struct {
	events []alert.Event
}

func (r *recordingSink) Emit(_ context.Context, ev alert.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) kinds() []alert.Kind {
	var out []alert.Kind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recordingSink) reset() { r.events = nil }

func newTestTailer(t *testing.T, dataDir string, historySize int) (*Tailer, *recordingSink) {
	t.Helper()
	m := baseline.NewModel()
	m.Learn("search", "customer service guidelines")
	sink := &recordingSink{}
	tl := NewTailer(Options{
		DataDir:     dataDir,
		Scorer:      detector.NewScorer(m, detector.DefaultOptions()),
		Sink:        sink,
		HistorySize: historySize,
		Metrics:     metrics.NewMonitor(),
	})
	return tl, sink
}

func knownCall(t *testing.T, id int) string {
	return testutil.ToolsCall(t, id, "search", map[string]any{"query": "customer service"})
}

func unusualCall(t *testing.T, id int) string {
	return testutil.ToolsCall(t, id, "search", map[string]any{"query": "database administration manual"})
}

func TestTailer_PartialLineIsNotConsumed(t *testing.T) {
	dataDir := t.TempDir()
	dir := testutil.WriteSession(t, dataDir, "session_20250701_100000_notion", []string{knownCall(t, 1)}, nil)
	path := filepath.Join(dir, store.DirectionRequest.FileName())

	second := unusualCall(t, 2)
	testutil.AppendRaw(t, path, second[:20])

	tl, sink := newTestTailer(t, dataDir, 10)
	require.NoError(t, tl.Poll(context.Background()))
	assert.Equal(t, 1, tl.Watermark(path))
	assert.Equal(t, []alert.Kind{alert.KindNewFile, alert.KindToolCall}, sink.kinds())

	sink.reset()
	require.NoError(t, tl.Poll(context.Background()))
	assert.Empty(t, sink.events)

	testutil.AppendRaw(t, path, second[20:]+"\n")
	require.NoError(t, tl.Poll(context.Background()))
	assert.Equal(t, 2, tl.Watermark(path))
	require.Equal(t, []alert.Kind{alert.KindAnomaly}, sink.kinds())
	assert.Equal(t, []string{"database", "administration", "manual"}, sink.events[0].Result.NewTopics)
	assert.Equal(t, "session_20250701_100000_notion", sink.events[0].Session)
}

func TestTailer_PrimeSkipsExistingLines(t *testing.T) {
	dataDir := t.TempDir()
	dir := testutil.WriteSession(t, dataDir, "session_20250701_100000_notion", []string{unusualCall(t, 1), unusualCall(t, 2)}, nil)
	path := filepath.Join(dir, store.DirectionRequest.FileName())

	tl, sink := newTestTailer(t, dataDir, 10)
	require.NoError(t, tl.Prime())
	assert.Equal(t, 2, tl.Watermark(path))

	require.NoError(t, tl.Poll(context.Background()))
	assert.Empty(t, sink.events)

	testutil.AppendRaw(t, path, unusualCall(t, 3)+"\n")
	require.NoError(t, tl.Poll(context.Background()))
	assert.Equal(t, []alert.Kind{alert.KindAnomaly}, sink.kinds())
	assert.Equal(t, 1, tl.Stats().TotalAnomalies)
}

func TestTailer_NewFileStartsAtZero(t *testing.T) {
	dataDir := t.TempDir()
	tl, sink := newTestTailer(t, dataDir, 10)
	require.NoError(t, tl.Prime())

	dir := testutil.WriteSession(t, dataDir, "session_20250701_110000_github", []string{knownCall(t, 1), testutil.Request(t, 2, "tools/list")},
		[]string{testutil.ErrorResponse(t, 2, "Method not found")})
	require.NoError(t, tl.Poll(context.Background()))

	assert.Equal(t, 2, tl.Watermark(filepath.Join(dir, "requests.jsonl")))
	assert.Equal(t, 1, tl.Watermark(filepath.Join(dir, "responses.jsonl")))
	assert.Equal(t, []alert.Kind{
		alert.KindNewFile, alert.KindNewFile,
		alert.KindToolCall, alert.KindCall,
		alert.KindRPCError,
	}, sink.kinds())
	assert.Equal(t, "tools/list", sink.events[3].Method)
	assert.Equal(t, "2", sink.events[3].ID)
	assert.Equal(t, "Method not found", sink.events[4].Message)
}

func TestTailer_InvalidLinesAreReported(t *testing.T) {
	dataDir := t.TempDir()
	testutil.WriteSession(t, dataDir, "session_20250701_100000_notion",
		[]string{`{"timestamp": broken`, testutil.Record(t, store.DirectionRequest, "plain text"), knownCall(t, 1)}, nil)

	tl, sink := newTestTailer(t, dataDir, 10)
	require.NoError(t, tl.Poll(context.Background()))
	assert.Equal(t, []alert.Kind{alert.KindNewFile, alert.KindInvalid, alert.KindToolCall}, sink.kinds())
	assert.Equal(t, 1, tl.Stats().TotalRequests)
}

func TestTailer_BoundedHistory(t *testing.T) {
	dataDir := t.TempDir()
	var lines []string
	for i := 0; i < 7; i++ {
		lines = append(lines, unusualCall(t, i))
	}
	lines = append(lines, knownCall(t, 99))
	testutil.WriteSession(t, dataDir, "session_20250701_100000_notion", lines, nil)

	tl, _ := newTestTailer(t, dataDir, 3)
	require.NoError(t, tl.Poll(context.Background()))

	stats := tl.Stats()
	assert.Equal(t, 8, stats.TotalRequests)
	assert.Equal(t, 7, stats.TotalAnomalies)
	assert.Equal(t, 7, stats.AnomaliesByTool["search"])
	assert.Len(t, stats.Recent(0), 3)
	assert.Len(t, stats.Recent(2), 2)
	assert.InDelta(t, 87.5, stats.AnomalyRate(), 1e-9)
}

func TestTailer_ShrunkFileIsReread(t *testing.T) {
	dataDir := t.TempDir()
	dir := testutil.WriteSession(t, dataDir, "session_20250701_100000_notion", []string{knownCall(t, 1), knownCall(t, 2)}, nil)
	path := filepath.Join(dir, "requests.jsonl")

	tl, _ := newTestTailer(t, dataDir, 10)
	require.NoError(t, tl.Poll(context.Background()))
	assert.Equal(t, 2, tl.Watermark(path))

	testutil.WriteLines(t, path, []string{unusualCall(t, 3)})
	require.NoError(t, tl.Poll(context.Background()))
	assert.Equal(t, 1, tl.Watermark(path))
	assert.Equal(t, 1, tl.Stats().TotalAnomalies)
}

func TestTailer_FileErrorDoesNotStopOthers(t *testing.T) {
	dataDir := t.TempDir()
	testutil.WriteSession(t, dataDir, "session_20250701_100000_notion", []string{unusualCall(t, 1)}, nil)

	target := filepath.Join(dataDir, "not-a-file")
	require.NoError(t, os.MkdirAll(target, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(target, "x"), []byte("x"), 0644))
	if info, err := os.Stat(target); err != nil || info.Size() == 0 {
		t.Skip("directory size not reported by this file system")
	}
	bad := filepath.Join(dataDir, "aaa.jsonl")
	if err := os.Symlink(target, bad); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	tl, _ := newTestTailer(t, dataDir, 10)
	err := tl.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aaa.jsonl")
	assert.Equal(t, 1, tl.Stats().TotalAnomalies)

	err = tl.Poll(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, tl.Stats().TotalAnomalies)
}

func TestTailer_MissingDataDir(t *testing.T) {
	tl, sink := newTestTailer(t, filepath.Join(t.TempDir(), "missing"), 10)
	require.NoError(t, tl.Prime())
	require.NoError(t, tl.Poll(context.Background()))
	assert.Empty(t, sink.events)
}

type countingFeed struct {
	remaining int
	cancel    context.CancelFunc
	calls     int
}

func (f *countingFeed) Next(ctx context.Context) error {
	f.calls++
	if f.remaining == 0 {
		f.cancel()
		return ctx.Err()
	}
	f.remaining--
	return nil
}

func (f *countingFeed) Close() error { return nil }

func TestTailer_RunReturnsSummaryOnCancel(t *testing.T) {
	dataDir := t.TempDir()
	testutil.WriteSession(t, dataDir, "session_20250701_100000_notion", []string{unusualCall(t, 1), knownCall(t, 2)}, nil)
	testutil.WriteSession(t, dataDir, "session_20250701_110000_github", nil, nil)

	tl, _ := newTestTailer(t, dataDir, 10)
	ctx, cancel := context.WithCancel(context.Background())
	feed := &countingFeed{remaining: 2, cancel: cancel}

	summary := tl.Run(ctx, feed)
	assert.Equal(t, 3, feed.calls)
	assert.Equal(t, 2, summary.Sessions)
	assert.NotEmpty(t, summary.LatestSession)
	assert.Equal(t, 2, summary.TotalRequests)
	assert.Equal(t, 1, summary.TotalAnomalies)
	assert.InDelta(t, 50.0, summary.AnomalyRate, 1e-9)
	require.Len(t, summary.ByTool, 1)
	assert.Equal(t, ToolCount{Tool: "search", Count: 1}, summary.ByTool[0])
	require.Len(t, summary.History, 1)

	entries := summary.HistoryEntries()
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, "HIGH", entries[0].Severity)
	assert.True(t, strings.HasPrefix(entries[0].Reason, "unusual topic detected"))
}

func TestTailer_NeverLearns(t *testing.T) {
	dataDir := t.TempDir()
	testutil.WriteSession(t, dataDir, "session_20250701_100000_notion", []string{unusualCall(t, 1)}, nil)

	m := baseline.NewModel()
	m.Learn("search", "customer service guidelines")
	before := m.Profile("search").Counts()
	tl := NewTailer(Options{DataDir: dataDir, Scorer: detector.NewScorer(m, detector.DefaultOptions())})
	require.NoError(t, tl.Poll(context.Background()))
	assert.Equal(t, before, m.Profile("search").Counts())
}
