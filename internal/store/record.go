// Package store is the durable, append-only message log written by the relay
// and read by the baseline builder and the monitor.
//
// A session is a directory named session_<YYYYMMDD>_<HHMMSS>_<service> holding
// one newline-delimited JSON file per direction.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Direction identifies which side of the pipe a message came from
type Direction string

const (
	DirectionRequest  Direction = "request"
	DirectionResponse Direction = "response"
)

// MethodToolsCall is the JSON-RPC method of a tool invocation
const MethodToolsCall = "tools/call"

// TimestampFormat is the ISO-8601 layout written into records
const TimestampFormat = "2006-01-02T15:04:05.000000Z07:00"

// FileName returns the partition file name for the direction
func (d Direction) FileName() string {
	return string(d) + "s.jsonl"
}

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	return d == DirectionRequest || d == DirectionResponse
}

// Record is one captured line. It is never modified after it is written.
type Record struct {
	Timestamp  string          `json:"timestamp"`
	Direction  Direction       `json:"direction"`
	RawMessage string          `json:"raw_message"`
	IsJSON     bool            `json:"is_json"`
	Parsed     json.RawMessage `json:"parsed,omitempty"`
	Method     string          `json:"method,omitempty"`
	ID         json.RawMessage `json:"id,omitempty"`
}

// Envelope is the JSON-RPC shape of a structured record
type Envelope struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// decodeEnvelope reads the JSON-RPC members of any JSON object. Members of
// the wrong type are left empty rather than rejecting the message.
func decodeEnvelope(data []byte) (Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Envelope{}, err
	}
	if fields == nil {
		return Envelope{}, fmt.Errorf("not a JSON object")
	}
	return Envelope{
		JSONRPC: stringMember(fields["jsonrpc"]),
		ID:      fields["id"],
		Method:  stringMember(fields["method"]),
		Params:  fields["params"],
		Result:  fields["result"],
		Error:   fields["error"],
	}, nil
}

func stringMember(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// ToolCall is the name and arguments of a tools/call request
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// NewRecord builds the record for one line of traffic. Any JSON object is
// structured, whatever the types of its members. Other lines are kept as
// opaque text with IsJSON false.
func NewRecord(dir Direction, line string, at time.Time) Record {
	rec := Record{
		Timestamp:  at.Format(TimestampFormat),
		Direction:  dir,
		RawMessage: line,
	}

	trimmed := bytes.TrimSpace([]byte(line))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return rec
	}
	env, err := decodeEnvelope(trimmed)
	if err != nil {
		return rec
	}

	rec.IsJSON = true
	rec.Parsed = json.RawMessage(trimmed)
	rec.Method = env.Method
	if len(env.ID) > 0 && string(env.ID) != "null" {
		rec.ID = env.ID
	}
	return rec
}

// DecodeRecord parses one log line
func DecodeRecord(line []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(line, &rec); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if rec.Direction != "" && !rec.Direction.Valid() {
		return Record{}, fmt.Errorf("decode record: unknown direction %q", rec.Direction)
	}
	return rec, nil
}

// Time parses the record timestamp; the zero time is returned when it is malformed
func (r Record) Time() time.Time {
	layouts := []string{TimestampFormat, time.RFC3339Nano, "2006-01-02T15:04:05.999999"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, r.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Envelope decodes the structured payload
func (r Record) Envelope() (*Envelope, error) {
	if !r.IsJSON || len(r.Parsed) == 0 {
		return nil, fmt.Errorf("record is not structured")
	}
	env, err := decodeEnvelope(r.Parsed)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// RPCMethod returns the method of the record, falling back to the parsed payload
func (r Record) RPCMethod() string {
	if r.Method != "" {
		return r.Method
	}
	if env, err := r.Envelope(); err == nil {
		return env.Method
	}
	return ""
}

// ToolCall extracts the tool name and arguments of a tools/call request
func (r Record) ToolCall() (ToolCall, bool) {
	if r.RPCMethod() != MethodToolsCall {
		return ToolCall{}, false
	}
	env, err := r.Envelope()
	if err != nil || len(env.Params) == 0 {
		return ToolCall{}, false
	}
	var call ToolCall
	if err := json.Unmarshal(env.Params, &call); err != nil {
		return ToolCall{}, false
	}
	return call, true
}

// IDString renders the JSON-RPC id, or "" when there is none
func (r Record) IDString() string {
	if len(r.ID) == 0 || string(r.ID) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return s
	}
	return string(r.ID)
}

// ErrorMessage returns the message of a JSON-RPC error response
func (r Record) ErrorMessage() (string, bool) {
	env, err := r.Envelope()
	if err != nil || len(env.Error) == 0 || string(env.Error) == "null" {
		return "", false
	}
	var rpcErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(env.Error, &rpcErr); err == nil && rpcErr.Message != "" {
		return rpcErr.Message, true
	}
	var s string
	if err := json.Unmarshal(env.Error, &s); err == nil {
		return s, true
	}
	return strings.TrimSpace(string(env.Error)), true
}
