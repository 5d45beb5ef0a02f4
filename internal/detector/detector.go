// Package detector scores a tool query against the learned baseline.
package detector

import (
	"fmt"
	"strings"

	"github.com/iksnae/mcp-sentinel/internal/baseline"
	"github.com/iksnae/mcp-sentinel/internal/topic"
)

const (
	DefaultSensitivity = 0.7
	DefaultMinHistory  = 3
	DefaultTopK        = 5

	// HighConfidence is the confidence above which an anomaly is HIGH severity
	HighConfidence = 0.9
)

// Reasons reported on results
const (
	ReasonInvalid             = "invalid request format"
	ReasonInsufficientHistory = "insufficient history"
	ReasonKnownTopics         = "query matches known topics"
	reasonUnusualPrefix       = "unusual topic detected: "
)

// Severity levels of an anomaly
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
)

// ProfileSource resolves the learned profile of a tool
type ProfileSource interface {
	Profile(tool string) *baseline.ToolProfile
}

// Options tune the scorer
type Options struct {
	// Sensitivity is the novelty ratio at or above which a query is anomalous
	Sensitivity float64
	// MinHistory is the number of learned topic increments required before a tool is judged
	MinHistory int
	// TopK is the number of common topics reported
	TopK int
}

// DefaultOptions returns the standard scorer options
func DefaultOptions() Options {
	return Options{
		Sensitivity: DefaultSensitivity,
		MinHistory:  DefaultMinHistory,
		TopK:        DefaultTopK,
	}
}

// AnomalyResult is the verdict for one query
type AnomalyResult struct {
	Tool          string   `json:"tool"`
	Query         string   `json:"query"`
	CurrentTopics []string `json:"current_topics"`
	NewTopics     []string `json:"new_topics"`
	KnownTopics   []string `json:"known_topics"`
	CommonTopics  []string `json:"common_topics"`
	Confidence    float64  `json:"confidence"`
	IsAnomaly     bool     `json:"is_anomaly"`
	Reason        string   `json:"reason"`
}

// Severity classifies an anomaly by its confidence
func (r AnomalyResult) Severity() string {
	if r.Confidence > HighConfidence {
		return SeverityHigh
	}
	return SeverityMedium
}

// Scorer compares queries with learned profiles. It never modifies them.
type Scorer struct {
	source ProfileSource
	opts   Options
}

// NewScorer creates a scorer over source
func NewScorer(source ProfileSource, opts Options) *Scorer {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Scorer{source: source, opts: opts}
}

// Options returns the options the scorer was created with
func (s *Scorer) Options() Options {
	return s.opts
}

// Detect scores query for tool
func (s *Scorer) Detect(tool, query string) AnomalyResult {
	res := AnomalyResult{Tool: tool, Query: query}
	if tool == "" || query == "" {
		res.Reason = ReasonInvalid
		return res
	}

	profile := s.source.Profile(tool)
	if profile.Total() < s.opts.MinHistory {
		res.Reason = ReasonInsufficientHistory
		return res
	}

	res.CurrentTopics = topic.Extract(query)
	for _, t := range res.CurrentTopics {
		if profile.Has(t) {
			res.KnownTopics = append(res.KnownTopics, t)
		} else {
			res.NewTopics = append(res.NewTopics, t)
		}
	}
	for _, tc := range profile.Top(s.opts.TopK) {
		res.CommonTopics = append(res.CommonTopics, tc.Topic)
	}

	if n := len(res.CurrentTopics); n > 0 {
		res.Confidence = 1 - float64(len(res.KnownTopics))/float64(n)
	}
	res.IsAnomaly = res.Confidence >= s.opts.Sensitivity

	if res.IsAnomaly {
		res.Reason = reasonUnusualPrefix + strings.Join(res.NewTopics, ", ")
	} else {
		res.Reason = ReasonKnownTopics
	}
	return res
}

// String renders a one-line description of the result
func (r AnomalyResult) String() string {
	if !r.IsAnomaly {
		return fmt.Sprintf("%s: %s", r.Tool, r.Reason)
	}
	return fmt.Sprintf("[%s] %s: %s (confidence %.2f)", r.Severity(), r.Tool, r.Reason, r.Confidence)
}
