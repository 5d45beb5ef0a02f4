package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iksnae/mcp-sentinel/testutil"
)

func sampleEntries() []Entry {
	t0 := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	return []Entry{
		{ID: NewID(), Timestamp: t0, Tool: "search", Query: "database admin", Confidence: 1, Severity: "HIGH", NewTopics: []string{"database", "admin"}, Reason: "unusual topic detected: database, admin", Session: "session_20250701_120000_notion"},
		{ID: NewID(), Timestamp: t0.Add(time.Minute), Tool: "fetch", Query: "x y z", Confidence: 0.75, Severity: "MEDIUM", NewTopics: []string{"x"}, Reason: "unusual topic detected: x"},
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "anomaly_log_20250701_093005.json", FileName(time.Date(2025, 7, 1, 9, 30, 5, 0, time.UTC)))
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	entries := sampleEntries()

	path, err := WriteJSON(dir, entries, time.Date(2025, 7, 1, 9, 30, 5, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "anomaly_log_20250701_093005.json"), path)

	got, err := ReadJSON(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, entries[0].ID, got[0].ID)
	assert.Equal(t, entries[0].NewTopics, got[0].NewTopics)
}

func TestWriteJSON_SameSecondKeepsEarlierRuns(t *testing.T) {
	dir := t.TempDir()
	end := time.Date(2025, 7, 1, 9, 30, 5, 0, time.UTC)
	entries := sampleEntries()

	first, err := WriteJSON(dir, entries[:1], end)
	require.NoError(t, err)
	second, err := WriteJSON(dir, entries[1:], end)
	require.NoError(t, err)
	third, err := WriteJSON(dir, nil, end)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "anomaly_log_20250701_093005.json"), first)
	assert.Equal(t, filepath.Join(dir, "anomaly_log_20250701_093005_2.json"), second)
	assert.Equal(t, filepath.Join(dir, "anomaly_log_20250701_093005_3.json"), third)

	got, err := ReadJSON(first)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entries[0].ID, got[0].ID)

	got, err = ReadJSON(second)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entries[1].ID, got[0].ID)
}

func TestWriteJSON_Empty(t *testing.T) {
	path, err := WriteJSON(t.TempDir(), nil, time.Now())
	require.NoError(t, err)
	got, err := ReadJSON(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStore_AppendList(t *testing.T) {
	s, err := NewSQLiteStore(testutil.CreateInMemoryDB(t))
	require.NoError(t, err)
	ctx := context.Background()

	entries := sampleEntries()
	require.NoError(t, s.Append(ctx, entries))
	require.NoError(t, s.Append(ctx, entries[:1]))

	got, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "fetch", got[0].Tool)
	assert.Equal(t, "search", got[1].Tool)
	assert.True(t, entries[0].Timestamp.Equal(got[1].Timestamp))
	assert.Equal(t, []string{"database", "admin"}, got[1].NewTopics)
	assert.Equal(t, "session_20250701_120000_notion", got[1].Session)

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	counts, err := s.CountByTool(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"search": 1, "fetch": 1}, counts)
}

func TestSQLiteStore_RejectsMissingID(t *testing.T) {
	s, err := NewSQLiteStore(testutil.CreateInMemoryDB(t))
	require.NoError(t, err)
	err = s.Append(context.Background(), []Entry{{Tool: "x"}})
	assert.Error(t, err)
}

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), sampleEntries()))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
