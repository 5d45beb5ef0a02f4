package store

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2025, 7, 1, 14, 30, 0, 123456000, time.UTC)

func TestNewRecord_ToolCall(t *testing.T) {
	line := `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"search","arguments":{"query":"refund policy"}}}`
	rec := NewRecord(DirectionRequest, line, fixedTime)

	assert.True(t, rec.IsJSON)
	assert.Equal(t, DirectionRequest, rec.Direction)
	assert.Equal(t, line, rec.RawMessage)
	assert.Equal(t, "tools/call", rec.Method)
	assert.Equal(t, "3", rec.IDString())
	assert.Equal(t, "2025-07-01T14:30:00.123456Z", rec.Timestamp)

	call, ok := rec.ToolCall()
	require.True(t, ok)
	assert.Equal(t, "search", call.Name)
	assert.JSONEq(t, `{"query":"refund policy"}`, string(call.Arguments))
}

func TestNewRecord_Opaque(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "plain text", line: "hello world"},
		{name: "truncated json", line: `{"jsonrpc":"2.0","id":1`},
		{name: "json array", line: `[1,2,3]`},
		{name: "json string", line: `"text"`},
		{name: "empty", line: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewRecord(DirectionResponse, tt.line, fixedTime)
			assert.False(t, rec.IsJSON)
			assert.Equal(t, tt.line, rec.RawMessage)
			assert.Empty(t, rec.Parsed)
			assert.Empty(t, rec.Method)

			_, ok := rec.ToolCall()
			assert.False(t, ok)
		})
	}
}

func TestNewRecord_ObjectWithUnusualMemberTypes(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantMethod string
		wantID     string
	}{
		{name: "numeric method", line: `{"method":5}`},
		{name: "object id", line: `{"jsonrpc":"2.0","id":{"n":1},"method":"ping"}`, wantMethod: "ping", wantID: `{"n":1}`},
		{name: "numeric jsonrpc", line: `{"jsonrpc":2,"id":7,"method":"tools/list"}`, wantMethod: "tools/list", wantID: "7"},
		{name: "array method", line: `{"method":["tools/call"],"params":{"name":"search"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewRecord(DirectionRequest, tt.line, fixedTime)
			assert.True(t, rec.IsJSON)
			assert.JSONEq(t, tt.line, string(rec.Parsed))
			assert.Equal(t, tt.wantMethod, rec.Method)
			assert.Equal(t, tt.wantMethod, rec.RPCMethod())
			assert.Equal(t, tt.wantID, rec.IDString())

			_, ok := rec.ToolCall()
			assert.False(t, ok)
		})
	}
}

func TestRecord_EncodeDecode(t *testing.T) {
	rec := NewRecord(DirectionRequest, `{"id":"abc","method":"initialize"}`, fixedTime)
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, true, fields["is_json"])
	assert.Equal(t, "initialize", fields["method"])
	assert.Equal(t, "abc", fields["id"])

	decoded, err := DecodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, "abc", decoded.IDString())
	assert.True(t, fixedTime.Equal(decoded.Time()))
}

func TestRecord_NoIDForNotification(t *testing.T) {
	rec := NewRecord(DirectionRequest, `{"jsonrpc":"2.0","method":"notifications/initialized","id":null}`, fixedTime)
	assert.Empty(t, rec.ID)
	assert.Equal(t, "", rec.IDString())
}

func TestDecodeRecord_Errors(t *testing.T) {
	_, err := DecodeRecord([]byte(`{"timestamp": `))
	assert.Error(t, err)

	_, err = DecodeRecord([]byte(`{"direction":"sideways"}`))
	assert.Error(t, err)
}

func TestDecodeRecord_NullMethod(t *testing.T) {
	rec, err := DecodeRecord([]byte(`{"timestamp":"2025-07-01T14:30:00.123456","direction":"response","raw_message":"{}","is_json":true,"parsed":{},"method":null,"id":null}`))
	require.NoError(t, err)
	assert.Equal(t, "", rec.Method)
	assert.Equal(t, "", rec.IDString())
	assert.False(t, rec.Time().IsZero())
}

func TestRecord_ErrorMessage(t *testing.T) {
	rec := NewRecord(DirectionResponse, `{"jsonrpc":"2.0","id":2,"error":{"code":-32601,"message":"Method not found"}}`, fixedTime)
	msg, ok := rec.ErrorMessage()
	require.True(t, ok)
	assert.Equal(t, "Method not found", msg)

	rec = NewRecord(DirectionResponse, `{"jsonrpc":"2.0","id":2,"result":{}}`, fixedTime)
	_, ok = rec.ErrorMessage()
	assert.False(t, ok)
}

func TestDirection_FileName(t *testing.T) {
	assert.Equal(t, "requests.jsonl", DirectionRequest.FileName())
	assert.Equal(t, "responses.jsonl", DirectionResponse.FileName())
}
