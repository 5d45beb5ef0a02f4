package export

import (
	"encoding/json"
	"time"

	"github.com/iksnae/mcp-sentinel/internal/store"
	"github.com/iksnae/mcp-sentinel/internal/topic"
)

// Document is the exported view of one captured session
type Document struct {
	Session   string    `json:"session" yaml:"session"`
	Service   string    `json:"service" yaml:"service"`
	StartedAt string    `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Requests  int       `json:"requests" yaml:"requests"`
	Responses int       `json:"responses" yaml:"responses"`
	ToolCalls int       `json:"tool_calls" yaml:"tool_calls"`
	Messages  []Message `json:"messages" yaml:"messages"`
}

// Message is one record of the session in capture order
type Message struct {
	Timestamp  string `json:"timestamp" yaml:"timestamp"`
	Direction  string `json:"direction" yaml:"direction"`
	Method     string `json:"method,omitempty" yaml:"method,omitempty"`
	ID         string `json:"id,omitempty" yaml:"id,omitempty"`
	Tool       string `json:"tool,omitempty" yaml:"tool,omitempty"`
	Query      string `json:"query,omitempty" yaml:"query,omitempty"`
	Structured bool   `json:"structured" yaml:"structured"`
	Payload    any    `json:"payload,omitempty" yaml:"payload,omitempty"`
	Raw        string `json:"raw,omitempty" yaml:"raw,omitempty"`
}

// NewDocument builds the export view of a loaded session
func NewDocument(s *store.LoadedSession) *Document {
	doc := &Document{
		Session:   s.Info.Name,
		Service:   s.Info.Service,
		Requests:  len(s.Requests),
		Responses: len(s.Responses),
		ToolCalls: s.ToolCalls(),
		Messages:  []Message{},
	}
	if !s.Info.StartedAt.IsZero() {
		doc.StartedAt = s.Info.StartedAt.Format(time.RFC3339)
	}
	for _, rec := range s.Merged() {
		doc.Messages = append(doc.Messages, newMessage(rec))
	}
	return doc
}

func newMessage(rec store.Record) Message {
	msg := Message{
		Timestamp: rec.Timestamp,
		Direction: string(rec.Direction),
		Method:    rec.RPCMethod(),
		ID:        rec.IDString(),
	}
	if !rec.IsJSON {
		msg.Raw = rec.RawMessage
		return msg
	}
	var payload any
	if err := json.Unmarshal(rec.Parsed, &payload); err != nil {
		msg.Raw = rec.RawMessage
		return msg
	}
	msg.Structured = true
	msg.Payload = payload
	if call, ok := rec.ToolCall(); ok {
		msg.Tool = call.Name
		msg.Query = topic.ResolveQuery(call.Arguments)
	}
	return msg
}
