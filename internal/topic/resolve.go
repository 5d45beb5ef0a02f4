package topic

import (
	"bytes"
	"encoding/json"
	"strings"
)

// QueryFields are the argument names tried first, in priority order.
var QueryFields = []string{"query", "q", "search", "text", "sql", "command", "prompt", "pattern", "message"}

type field struct {
	key   string
	value json.RawMessage
}

// ResolveQuery picks the most representative query string out of a tool
// call's arguments. An empty result means the call cannot be evaluated.
//
// Resolution order: the first canonical field present; then identifier
// shaped fields (block_id, cve_id, path) rendered as a short description;
// then the first string-valued argument as "key value". A bare JSON string
// is used as is.
func ResolveQuery(args json.RawMessage) string {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 {
		return ""
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return ""
		}
		return s
	case '{':
	default:
		return ""
	}

	fields, ok := orderedFields(trimmed)
	if !ok {
		return ""
	}
	lookup := make(map[string]json.RawMessage, len(fields))
	for _, f := range fields {
		if _, dup := lookup[f.key]; !dup {
			lookup[f.key] = f.value
		}
	}

	for _, name := range QueryFields {
		if v, ok := lookup[name]; ok && !isNull(v) {
			if q := render(v); q != "" {
				return q
			}
			break
		}
	}

	if v, ok := lookup["block_id"]; ok && !isNull(v) {
		id := []rune(render(v))
		if len(id) > 8 {
			id = id[:8]
		}
		return "block operation " + string(id)
	}
	if v, ok := lookup["cve_id"]; ok && !isNull(v) {
		return "cve lookup " + render(v)
	}
	if v, ok := lookup["path"]; ok && !isNull(v) {
		return "file operation " + render(v)
	}

	for _, f := range fields {
		var s string
		if json.Unmarshal(f.value, &s) == nil && s != "" {
			return f.key + " " + s
		}
	}
	return ""
}

// orderedFields decodes a JSON object keeping its key order.
func orderedFields(obj []byte) ([]field, bool) {
	dec := json.NewDecoder(bytes.NewReader(obj))
	dec.UseNumber()
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, false
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		fields = append(fields, field{key: key, value: value})
	}
	return fields, true
}

func isNull(v json.RawMessage) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

// render turns a JSON value into text: strings unquoted, anything else compact JSON.
func render(v json.RawMessage) string {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return strings.TrimSpace(string(v))
	}
	return buf.String()
}
