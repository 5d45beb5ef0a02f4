package topic

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "empty", text: "", want: nil},
		{name: "plain words", text: "Customer Service Guidelines", want: []string{"customer", "service", "guidelines"}},
		{name: "camel case", text: "SearchFiles", want: []string{"search", "files"}},
		{name: "camel run", text: "getHTTPResponse", want: []string{"get", "httpresponse"}},
		{name: "stopwords and short tokens", text: "the file of a user in x", want: []string{"file", "user"}},
		{name: "symbols split", text: "password.txt", want: []string{"password", "txt"}},
		{name: "digits kept", text: "CVE-2025-5777", want: []string{"cve", "2025", "5777"}},
		{name: "duplicates collapse", text: "log LOG Log", want: []string{"log"}},
		{name: "non ascii separates", text: "café menu", want: []string{"caf", "menu"}},
		{name: "sql", text: "SELECT * FROM users WHERE admin=1; DROP TABLE users;--", want: []string{"select", "users", "where", "admin", "drop", "table"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text))
		})
	}
}

func TestExtract_Deterministic(t *testing.T) {
	inputs := []string{"SearchFiles in Workspace", "Database Administration Manual", "a b c", ""}
	for _, in := range inputs {
		assert.Equal(t, Extract(in), Extract(in), "input %q", in)
	}
}

func TestExtract_CamelEqualsSpaced(t *testing.T) {
	assert.Equal(t, sorted(Extract("search files")), sorted(Extract("SearchFiles")))
}

func TestExtract_FirstAppearanceOrder(t *testing.T) {
	assert.Equal(t, []string{"zeta", "alpha", "beta"}, Extract("zeta alpha zeta beta alpha"))
}

func TestIsStopword(t *testing.T) {
	for _, w := range []string{"the", "is", "at", "to", "for", "of", "and", "or", "in", "on", "by", "with", "from"} {
		assert.True(t, IsStopword(w), w)
	}
	assert.False(t, IsStopword("search"))
}

func TestSet(t *testing.T) {
	s := Set([]string{"a1", "b2", "a1"})
	assert.Len(t, s, 2)
	assert.Contains(t, s, "a1")
}
