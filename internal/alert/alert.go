// Package alert delivers monitor events to operators and downstream systems.
package alert

import (
	"context"
	"errors"
	"time"

	"github.com/iksnae/mcp-sentinel/internal/detector"
)

// Kind classifies a monitor event
type Kind int

const (
	// KindNewFile reports a log file seen for the first time
	KindNewFile Kind = iota
	// KindAnomaly reports an anomalous tool call
	KindAnomaly
	// KindToolCall traces a tool call that matched the baseline
	KindToolCall
	// KindCall traces a request with another method
	KindCall
	// KindRPCError traces a response carrying an error
	KindRPCError
	// KindInvalid reports a log line that could not be decoded
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNewFile:
		return "new_file"
	case KindAnomaly:
		return "anomaly"
	case KindToolCall:
		return "tool_call"
	case KindCall:
		return "call"
	case KindRPCError:
		return "rpc_error"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Event is one thing the monitor observed
type Event struct {
	Kind    Kind
	Time    time.Time
	File    string
	Session string
	Tool    string
	Query   string
	Method  string
	ID      string
	Message string
	Result  *detector.AnomalyResult
}

// Sink receives monitor events
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Multi fans events out to every sink, returning the joined errors
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Truncate shortens s to at most n runes, marking the cut with "..."
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
