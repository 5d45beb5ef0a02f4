package monitor

import (
	"sort"
	"time"

	"github.com/iksnae/mcp-sentinel/internal/detector"
	"github.com/iksnae/mcp-sentinel/internal/history"
)

// RecentAnomalies is the number of anomalies listed in a summary
const RecentAnomalies = 5

// AnomalyEntry is one anomaly retained by a monitor run
type AnomalyEntry struct {
	ID      string
	Time    time.Time
	Session string
	Result  detector.AnomalyResult
}

// HistoryEntry converts the entry to its persisted form
func (e AnomalyEntry) HistoryEntry() history.Entry {
	topics := e.Result.NewTopics
	if topics == nil {
		topics = []string{}
	}
	return history.Entry{
		ID:         e.ID,
		Timestamp:  e.Time,
		Tool:       e.Result.Tool,
		Query:      e.Result.Query,
		Confidence: e.Result.Confidence,
		Severity:   e.Result.Severity(),
		NewTopics:  topics,
		Reason:     e.Result.Reason,
		Session:    e.Session,
	}
}

// Stats are the running counters of a monitor. Only the most recent anomalies
// are retained; older ones survive in the counters alone.
type Stats struct {
	TotalRequests   int
	TotalAnomalies  int
	AnomaliesByTool map[string]int

	recent []AnomalyEntry
	limit  int
}

func newStats(limit int) *Stats {
	if limit < 1 {
		limit = 1
	}
	return &Stats{AnomaliesByTool: make(map[string]int), limit: limit}
}

func (s *Stats) recordAnomaly(e AnomalyEntry) {
	s.TotalAnomalies++
	s.AnomaliesByTool[e.Result.Tool]++
	s.recent = append(s.recent, e)
	if over := len(s.recent) - s.limit; over > 0 {
		s.recent = append(s.recent[:0:0], s.recent[over:]...)
	}
}

// Recent returns up to n of the latest anomalies, oldest first. n <= 0 returns all retained.
func (s *Stats) Recent(n int) []AnomalyEntry {
	src := s.recent
	if n > 0 && len(src) > n {
		src = src[len(src)-n:]
	}
	out := make([]AnomalyEntry, len(src))
	copy(out, src)
	return out
}

// ToolCount is an anomaly count for one tool
type ToolCount struct {
	Tool  string
	Count int
}

// ByTool returns anomaly counts, highest first
func (s *Stats) ByTool() []ToolCount {
	out := make([]ToolCount, 0, len(s.AnomaliesByTool))
	for tool, n := range s.AnomaliesByTool {
		out = append(out, ToolCount{Tool: tool, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tool < out[j].Tool
	})
	return out
}

// AnomalyRate returns anomalies as a percentage of analysed requests
func (s *Stats) AnomalyRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalAnomalies) / float64(s.TotalRequests) * 100
}

// Summary is the end-of-run report of a monitor
type Summary struct {
	Sessions       int
	LatestSession  string
	TotalRequests  int
	TotalAnomalies int
	AnomalyRate    float64
	ByTool         []ToolCount
	Recent         []AnomalyEntry
	History        []AnomalyEntry
}

// HistoryEntries returns the retained anomalies in persisted form
func (s Summary) HistoryEntries() []history.Entry {
	out := make([]history.Entry, 0, len(s.History))
	for _, e := range s.History {
		out = append(out, e.HistoryEntry())
	}
	return out
}
