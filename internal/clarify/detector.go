// Package clarify recognizes in-band clarification requests embedded in
// completion provider output. Detection is pure text analysis; persistence and
// resume live in the planner.
package clarify

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	sentinelStart      = "[CLARIFICATION_NEEDED]"
	sentinelEnd        = "[END_CLARIFICATION]"
	multipleChoiceFlag = "MULTIPLE_CHOICE_ONLY"
	optionsPrefix      = "Options:"
)

type Clarification struct {
	Question   string
	Options    []string
	AllowsText bool
}

// Detect reports whether raw provider text contains a clarification request.
// The sentinel grammar takes precedence over the JSON field grammar.
func Detect(raw string) (Clarification, bool) {
	if c, ok := detectSentinel(raw); ok {
		return c, true
	}
	return detectJSONField(raw)
}

func detectSentinel(raw string) (Clarification, bool) {
	start := strings.Index(raw, sentinelStart)
	if start < 0 {
		return Clarification{}, false
	}
	block := raw[start+len(sentinelStart):]
	if end := strings.Index(block, sentinelEnd); end >= 0 {
		block = block[:end]
	}

	c := Clarification{AllowsText: true}
	questionLines := make([]string, 0, 4)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == multipleChoiceFlag {
			c.AllowsText = false
			continue
		}
		if strings.HasPrefix(line, optionsPrefix) {
			c.Options = parseOptions(strings.TrimPrefix(line, optionsPrefix))
			continue
		}
		questionLines = append(questionLines, line)
	}
	c.Question = strings.Join(questionLines, " ")
	if c.Question == "" {
		return Clarification{}, false
	}
	return c, true
}

// parseOptions accepts both "Options: [a, b, c]" and a bare comma list.
func parseOptions(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	parts := strings.Split(raw, ",")
	options := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `"'`)
		if p != "" {
			options = append(options, p)
		}
	}
	if len(options) == 0 {
		return nil
	}
	return options
}

// detectJSONField handles providers that answer the structured prompt with a
// clarification-shaped JSON object instead of a plan.
func detectJSONField(raw string) (Clarification, bool) {
	text := raw
	if first := strings.IndexByte(text, '{'); first >= 0 {
		if last := strings.LastIndexByte(text, '}'); last > first {
			text = text[first : last+1]
		}
	}
	if !gjson.Valid(text) {
		return Clarification{}, false
	}
	for _, key := range []string{"clarification_needed", "clarification", "clarificationNeeded"} {
		field := gjson.Get(text, key)
		if !field.Exists() {
			continue
		}
		if c, ok := clarificationFromValue(field); ok {
			return c, true
		}
	}
	return Clarification{}, false
}

func clarificationFromValue(field gjson.Result) (Clarification, bool) {
	switch {
	case field.Type == gjson.String:
		q := strings.TrimSpace(field.String())
		if q == "" {
			return Clarification{}, false
		}
		return Clarification{Question: q, AllowsText: true}, true
	case field.IsObject():
		q := strings.TrimSpace(field.Get("question").String())
		if q == "" {
			return Clarification{}, false
		}
		c := Clarification{Question: q, AllowsText: true}
		if opts := field.Get("options"); opts.IsArray() {
			for _, o := range opts.Array() {
				if v := strings.TrimSpace(o.String()); v != "" {
					c.Options = append(c.Options, v)
				}
			}
		}
		if allows := field.Get("allowsText"); allows.Exists() {
			c.AllowsText = allows.Bool()
		}
		return c, true
	}
	return Clarification{}, false
}

// MarshalOptions renders options for storage in the partial response record.
func (c Clarification) MarshalOptions() string {
	if len(c.Options) == 0 {
		return ""
	}
	b, _ := json.Marshal(c.Options)
	return string(b)
}
