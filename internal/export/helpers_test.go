package export

import (
	"testing"
	"time"

	"github.com/iksnae/mcp-sentinel/internal/store"
)

var testTime = time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

func testSession(t *testing.T) *store.LoadedSession {
	t.Helper()
	return &store.LoadedSession{
		Info: store.SessionInfo{
			Name:      "session_20250701_100000_notion",
			Service:   "notion",
			StartedAt: testTime,
		},
		Requests: []store.Record{
			store.NewRecord(store.DirectionRequest, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"search","arguments":{"query":"refund policy"}}}`, testTime),
			store.NewRecord(store.DirectionRequest, "not **json**", testTime.Add(2*time.Second)),
		},
		Responses: []store.Record{
			store.NewRecord(store.DirectionResponse, `{"jsonrpc":"2.0","id":1,"result":{"content":[]}}`, testTime.Add(time.Second)),
		},
	}
}
