package baseline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iksnae/mcp-sentinel/testutil"
)

func TestBuilder_Build(t *testing.T) {
	dataDir := t.TempDir()
	testutil.WriteSession(t, dataDir, "session_20250701_100000_notion",
		[]string{
			testutil.ToolsCall(t, 1, "search", map[string]any{"query": "customer service guidelines"}),
			testutil.ToolsCall(t, 2, "search", map[string]any{"query": "customer refunds"}),
			testutil.Request(t, 3, "tools/list"),
			`{"timestamp": broken`,
		},
		nil)
	testutil.WriteSession(t, dataDir, "session_20250701_110000_notion",
		[]string{
			testutil.ToolsCall(t, 1, "get_block", map[string]any{"block_id": "1234567890abcdef"}),
		},
		nil)
	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "session_20250701_120000_empty"), 0755))

	res, err := NewBuilder(dataDir, nil).Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.ToolCalls)
	require.Len(t, res.Sessions, 3)
	assert.Equal(t, 1, res.Sessions[0].Corrupt)
	assert.True(t, res.Sessions[2].Missing)

	search := res.Model.Profile("search")
	require.NotNil(t, search)
	assert.Equal(t, 2, search.Frequency("customer"))
	assert.True(t, res.Model.Profile("get_block").Has("12345678"))

	stats := res.Services["notion"]
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.TotalCalls)
	assert.Len(t, stats.Sessions, 2)
	assert.Equal(t, 2, stats.Tools["search"])
	assert.Contains(t, stats.UniqueQueries, "block operation 12345678")

	assert.Equal(t, 3, res.Snapshot.TotalSessions)
}

func TestBuilder_NoSessions(t *testing.T) {
	_, err := NewBuilder(t.TempDir(), nil).Build(context.Background())
	assert.ErrorContains(t, err, "no session directories")
}

func TestBuilder_Cancelled(t *testing.T) {
	dataDir := t.TempDir()
	testutil.WriteSession(t, dataDir, "session_20250701_100000_x", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(dataDir, nil).Build(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteSummary(t *testing.T) {
	dataDir := t.TempDir()
	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, testutil.ToolsCall(t, i, "search", map[string]any{"q": "query number " + string(rune('a'+i))}))
	}
	testutil.WriteSession(t, dataDir, "session_20250701_100000_svc", lines, nil)

	res, err := NewBuilder(dataDir, nil).Build(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, WriteSummary(path, NewSummaryDocument(res.Snapshot, res.Model)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc SummaryDocument
	require.NoError(t, json.Unmarshal(data, &doc))

	svc := doc.Services["svc"]
	assert.Equal(t, 12, svc.TotalCalls)
	assert.Equal(t, 12, svc.UniqueQueries)
	assert.Len(t, svc.SampleQueries, SampleQueries)
	require.Len(t, doc.Tools, 1)
	assert.Equal(t, "search", doc.Tools[0].Tool)
}

func TestServiceStats_ToolUsage(t *testing.T) {
	s := newServiceStats()
	s.observe("s1", "b", "")
	s.observe("s1", "a", "")
	s.observe("s1", "b", "")
	assert.Equal(t, []TopicCount{{Topic: "b", Count: 2}, {Topic: "a", Count: 1}}, s.ToolUsage())
}
