package baseline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/iksnae/mcp-sentinel/internal"
	"github.com/iksnae/mcp-sentinel/internal/store"
	"github.com/iksnae/mcp-sentinel/internal/topic"
)

// ServiceStats aggregates the tool calls captured for one service
type ServiceStats struct {
	TotalCalls    int            `json:"total_calls"`
	UniqueQueries []string       `json:"unique_queries"`
	Tools         map[string]int `json:"tools"`
	Sessions      []string       `json:"sessions"`

	seenQuery   map[string]struct{}
	seenSession map[string]struct{}
}

func newServiceStats() *ServiceStats {
	return &ServiceStats{
		Tools:       make(map[string]int),
		seenQuery:   make(map[string]struct{}),
		seenSession: make(map[string]struct{}),
	}
}

func (s *ServiceStats) observe(session, tool, query string) {
	s.TotalCalls++
	s.Tools[tool]++
	if _, ok := s.seenSession[session]; !ok {
		s.seenSession[session] = struct{}{}
		s.Sessions = append(s.Sessions, session)
	}
	if query == "" {
		return
	}
	if _, ok := s.seenQuery[query]; !ok {
		s.seenQuery[query] = struct{}{}
		s.UniqueQueries = append(s.UniqueQueries, query)
	}
}

// ToolUsage returns tool call counts, most used first
func (s *ServiceStats) ToolUsage() []TopicCount {
	out := make([]TopicCount, 0, len(s.Tools))
	for tool, n := range s.Tools {
		out = append(out, TopicCount{Topic: tool, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}

// SessionResult reports what the builder took from one session
type SessionResult struct {
	Name      string
	Service   string
	ToolCalls int
	Corrupt   int
	Missing   bool
}

// Result is the outcome of a build
type Result struct {
	Model     *Model
	Snapshot  *Snapshot
	Services  map[string]*ServiceStats
	Sessions  []SessionResult
	ToolCalls int
}

// Builder learns a baseline from the captured sessions of a data directory
type Builder struct {
	dataDir string
	logger  *internal.Logger
	now     func() time.Time
}

// NewBuilder creates a builder for dataDir
func NewBuilder(dataDir string, logger *internal.Logger) *Builder {
	return &Builder{dataDir: dataDir, logger: logger, now: time.Now}
}

// Build reads the request partition of every session in name order and
// learns each tool call. Lines that fail to decode are counted and skipped.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	sessions, err := store.ListSessions(b.dataDir)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no session directories found in %s", b.dataDir)
	}
	b.logger.Infof("Found %d session directories in %s", len(sessions), b.dataDir)

	res := &Result{
		Model:    NewModel(),
		Services: make(map[string]*ServiceStats),
	}
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sr, err := b.learnSession(s, res)
		if err != nil {
			return nil, err
		}
		res.Sessions = append(res.Sessions, sr)
		res.ToolCalls += sr.ToolCalls
	}

	res.Snapshot = NewSnapshot(res.Model, b.now())
	res.Snapshot.TotalSessions = len(sessions)
	res.Snapshot.Services = res.Services
	return res, nil
}

func (b *Builder) learnSession(s store.SessionInfo, res *Result) (SessionResult, error) {
	sr := SessionResult{Name: s.Name, Service: s.Service}
	path := s.PartitionPath(store.DirectionRequest)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			b.logger.Warnf("No %s in %s", store.DirectionRequest.FileName(), s.Name)
			sr.Missing = true
			return sr, nil
		}
		return sr, &internal.StorageError{Path: path, Op: "open", Err: err}
	}
	defer f.Close()

	err = store.ScanRecords(f, func(line int, rec store.Record, decodeErr error) error {
		if decodeErr != nil {
			sr.Corrupt++
			b.logger.Debugf("%s:%d: %v", path, line, decodeErr)
			return nil
		}
		call, ok := rec.ToolCall()
		if !ok {
			return nil
		}
		sr.ToolCalls++
		query := topic.ResolveQuery(call.Arguments)

		tool := call.Name
		if tool == "" {
			tool = "unknown"
		}
		stats := res.Services[s.Service]
		if stats == nil {
			stats = newServiceStats()
			res.Services[s.Service] = stats
		}
		stats.observe(s.Name, tool, query)

		res.Model.Learn(call.Name, query)
		return nil
	})
	if err != nil {
		return sr, &internal.StorageError{Path: path, Op: "read", Err: err}
	}
	if sr.Corrupt > 0 {
		b.logger.Warnf("Skipped %d undecodable lines in %s", sr.Corrupt, s.Name)
	}
	b.logger.Debugf("%s: %d tools/call requests", s.Name, sr.ToolCalls)
	return sr, nil
}

// SampleQueries is the number of queries kept per service in the summary document
const SampleQueries = 10

// SummaryDocument is the human-readable companion of a snapshot
type SummaryDocument struct {
	CreatedAt     time.Time                 `json:"created_at"`
	TotalSessions int                       `json:"total_sessions"`
	Services      map[string]ServiceSummary `json:"services"`
	Tools         []ToolSummary             `json:"tools"`
}

// ServiceSummary is the summary of one service
type ServiceSummary struct {
	TotalCalls    int            `json:"total_calls"`
	UniqueQueries int            `json:"unique_queries"`
	Sessions      int            `json:"sessions"`
	Tools         map[string]int `json:"tools"`
	SampleQueries []string       `json:"sample_queries"`
}

// NewSummaryDocument describes the snapshot and its model
func NewSummaryDocument(s *Snapshot, m *Model) *SummaryDocument {
	doc := &SummaryDocument{
		CreatedAt:     s.CreatedAt,
		TotalSessions: s.TotalSessions,
		Services:      make(map[string]ServiceSummary, len(s.Services)),
		Tools:         Summarize(m),
	}
	for name, st := range s.Services {
		samples := st.UniqueQueries
		if len(samples) > SampleQueries {
			samples = samples[:SampleQueries]
		}
		if samples == nil {
			samples = []string{}
		}
		doc.Services[name] = ServiceSummary{
			TotalCalls:    st.TotalCalls,
			UniqueQueries: len(st.UniqueQueries),
			Sessions:      len(st.Sessions),
			Tools:         st.Tools,
			SampleQueries: samples,
		}
	}
	return doc
}

// WriteSummary writes the summary document as indented JSON
func WriteSummary(path string, doc *SummaryDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'))
}
