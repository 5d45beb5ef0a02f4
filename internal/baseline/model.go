// Package baseline holds the learned per-tool vocabulary that defines normal
// traffic, its versioned on-disk snapshot and the builder that learns it from
// captured sessions.
package baseline

import (
	"sort"

	"github.com/iksnae/mcp-sentinel/internal/topic"
)

// TopicCount is a topic with its learned frequency
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// ToolProfile is the learned vocabulary of one tool. Its fields are only
// changed through Model.Learn; the accessors never mutate it.
type ToolProfile struct {
	tool      string
	frequency map[string]int
	order     []string
	total     int
}

func newToolProfile(tool string) *ToolProfile {
	return &ToolProfile{tool: tool, frequency: make(map[string]int)}
}

func (p *ToolProfile) add(t string, n int) {
	if n <= 0 {
		return
	}
	if _, ok := p.frequency[t]; !ok {
		p.order = append(p.order, t)
	}
	p.frequency[t] += n
	p.total += n
}

// Tool returns the tool name
func (p *ToolProfile) Tool() string {
	if p == nil {
		return ""
	}
	return p.tool
}

// Total returns the number of individual topic increments learned
func (p *ToolProfile) Total() int {
	if p == nil {
		return 0
	}
	return p.total
}

// Len returns the number of distinct topics learned
func (p *ToolProfile) Len() int {
	if p == nil {
		return 0
	}
	return len(p.order)
}

// Has reports whether t is in the keyword set
func (p *ToolProfile) Has(t string) bool {
	if p == nil {
		return false
	}
	return p.frequency[t] > 0
}

// Frequency returns how often t was learned
func (p *ToolProfile) Frequency(t string) int {
	if p == nil {
		return 0
	}
	return p.frequency[t]
}

// Keywords returns the keyword set in first-learned order
func (p *ToolProfile) Keywords() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Top returns the k most frequent topics. Equal counts keep first-learned order.
func (p *ToolProfile) Top(k int) []TopicCount {
	if p == nil || k <= 0 {
		return nil
	}
	all := p.Counts()
	sort.SliceStable(all, func(i, j int) bool { return all[i].Count > all[j].Count })
	if len(all) > k {
		all = all[:k]
	}
	return all
}

// Counts returns every topic with its frequency in first-learned order
func (p *ToolProfile) Counts() []TopicCount {
	if p == nil {
		return nil
	}
	out := make([]TopicCount, 0, len(p.order))
	for _, t := range p.order {
		out = append(out, TopicCount{Topic: t, Count: p.frequency[t]})
	}
	return out
}

// Model is the set of tool profiles. Learning is not safe for concurrent
// use; a model that is only read may be shared.
type Model struct {
	profiles map[string]*ToolProfile
}

// NewModel returns an empty model
func NewModel() *Model {
	return &Model{profiles: make(map[string]*ToolProfile)}
}

// Learn adds the topics of query to the profile of tool. Empty tool or query
// is a no-op.
func (m *Model) Learn(tool, query string) {
	if tool == "" || query == "" {
		return
	}
	topics := topic.Extract(query)
	if len(topics) == 0 {
		return
	}
	p := m.profiles[tool]
	if p == nil {
		p = newToolProfile(tool)
		m.profiles[tool] = p
	}
	for _, t := range topics {
		p.add(t, 1)
	}
}

// Profile returns the profile for tool, or nil when nothing was learned for it
func (m *Model) Profile(tool string) *ToolProfile {
	if m == nil {
		return nil
	}
	return m.profiles[tool]
}

// Tools returns the tool names in sorted order
func (m *Model) Tools() []string {
	if m == nil {
		return nil
	}
	tools := make([]string, 0, len(m.profiles))
	for t := range m.profiles {
		tools = append(tools, t)
	}
	sort.Strings(tools)
	return tools
}

// ToolSummary describes one learned profile
type ToolSummary struct {
	Tool              string       `json:"tool"`
	TotalObservations int          `json:"total_observations"`
	UniqueTopics      int          `json:"unique_topics"`
	TopTopics         []TopicCount `json:"top_topics"`
}

// SummaryTopTopics is the number of topics listed per tool in a summary
const SummaryTopTopics = 10

// Summarize describes every profile of the model, ordered by tool name
func Summarize(m *Model) []ToolSummary {
	var out []ToolSummary
	for _, tool := range m.Tools() {
		p := m.profiles[tool]
		out = append(out, ToolSummary{
			Tool:              tool,
			TotalObservations: p.Total(),
			UniqueTopics:      p.Len(),
			TopTopics:         p.Top(SummaryTopTopics),
		})
	}
	return out
}
