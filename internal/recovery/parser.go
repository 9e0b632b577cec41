// Package recovery repairs and validates the structured output of completion
// providers. Model responses are frequently wrapped in markdown fences, carry
// trailing commas or comments, break strings across lines, or drop closing
// brackets; every function here is pure and never returns a Go error — the
// caller always gets a tagged Result with the best available diagnostics.
package recovery

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

type PlanItem struct {
	Description string `json:"description"`
	Effort      string `json:"effort,omitempty"`
}

type PlanResponse struct {
	Subtasks []PlanItem `json:"subtasks"`
}

// Result is the tagged outcome of a recovery parse. When OK is false,
// FailureStage names the last stage attempted and Raw carries a diagnostic
// excerpt of the original text.
type Result struct {
	OK           bool
	Plan         *PlanResponse
	FailureStage string
	Raw          string
}

const rawExcerptLimit = 600

// ParsePlanResponse runs the full recovery pipeline against raw provider text.
// Stages, in order: textual normalization, direct parse, schema validation
// with partial recovery, regex pair extraction, bracket-depth object carving.
func ParsePlanResponse(raw string) Result {
	cleaned := Normalize(raw)
	if cleaned == "" {
		return failure("normalize", raw)
	}

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil {
		if plan, ok := validatePlan(parsed); ok {
			return Result{OK: true, Plan: plan}
		}
		if plan, ok := partialRecover(parsed); ok {
			return Result{OK: true, Plan: plan}
		}
		return failure("schema", raw)
	}

	if items := extractFieldPairs(cleaned); len(items) > 0 {
		return Result{OK: true, Plan: &PlanResponse{Subtasks: items}}
	}
	if items := carveArrayObjects(cleaned); len(items) > 0 {
		return Result{OK: true, Plan: &PlanResponse{Subtasks: items}}
	}
	return failure("parse", raw)
}

func failure(stage, raw string) Result {
	excerpt := raw
	if len(excerpt) > rawExcerptLimit {
		excerpt = excerpt[:rawExcerptLimit]
	}
	return Result{FailureStage: stage, Raw: excerpt}
}

// Normalize applies the textual repair stages and returns candidate JSON text.
// Well-formed input passes through byte-identical apart from the fence slice.
func Normalize(raw string) string {
	text := stripFences(raw)
	text = sliceOuterObject(text)
	if text == "" {
		return ""
	}
	text = stripComments(text)
	text = removeTrailingCommas(text)
	text = healBrokenStrings(text)
	text = closeUnbalanced(text)
	return text
}

func stripFences(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 && isFenceTag(rest[:nl]) {
		rest = rest[nl+1:]
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		return rest[:end]
	}
	return rest
}

func isFenceTag(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	return s == "" || s == "json" || s == "javascript" || s == "js"
}

func sliceOuterObject(text string) string {
	first := strings.IndexByte(text, '{')
	if first < 0 {
		return ""
	}
	last := strings.LastIndexByte(text, '}')
	if last > first {
		return text[first : last+1]
	}
	// No closing brace at all; keep the tail and let closeUnbalanced finish it.
	return text[first:]
}

func stripComments(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			for i < len(text) && text[i] != '\n' {
				i++
			}
			if i < len(text) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				i = len(text)
			} else {
				i += 2 + end + 1
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func removeTrailingCommas(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(text) && isJSONSpace(text[j]) {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// healBrokenStrings rejoins string literals that the model broke with a raw
// line break mid-string, which is illegal JSON.
func healBrokenStrings(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	carry := ""
	inString := false
	for _, line := range lines {
		if inString {
			carry += " " + strings.TrimLeft(line, " \t")
		} else {
			if carry != "" {
				out = append(out, carry)
			}
			carry = line
		}
		inString = endsInsideString(carry)
	}
	if carry != "" || len(out) == 0 {
		out = append(out, carry)
	}
	return strings.Join(out, "\n")
}

func endsInsideString(line string) bool {
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
		}
	}
	return inString
}

// closeUnbalanced appends the closers a simple balance count says are missing.
func closeUnbalanced(text string) string {
	stack := make([]byte, 0, 8)
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		text += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		text += string(stack[i])
	}
	return text
}

func validatePlan(parsed any) (*PlanResponse, bool) {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, false
	}
	rawItems, ok := obj["subtasks"].([]any)
	if !ok {
		return nil, false
	}
	items := make([]PlanItem, 0, len(rawItems))
	for _, rawItem := range rawItems {
		item, ok := planItemFrom(rawItem, true)
		if !ok {
			return nil, false
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, false
	}
	return &PlanResponse{Subtasks: items}, true
}

// partialRecover keeps only elements whose description and effort are both
// well-typed strings, then re-validates the filtered structure.
func partialRecover(parsed any) (*PlanResponse, bool) {
	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, false
	}
	rawItems, ok := obj["subtasks"].([]any)
	if !ok {
		return nil, false
	}
	items := make([]PlanItem, 0, len(rawItems))
	for _, rawItem := range rawItems {
		if item, ok := planItemFrom(rawItem, false); ok {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, false
	}
	return &PlanResponse{Subtasks: items}, true
}

// planItemFrom converts one parsed element. With effortOptional the element is
// accepted as long as description is a non-empty string; otherwise effort must
// also be a string when present at all.
func planItemFrom(rawItem any, effortOptional bool) (PlanItem, bool) {
	obj, ok := rawItem.(map[string]any)
	if !ok {
		return PlanItem{}, false
	}
	desc, ok := obj["description"].(string)
	if !ok || strings.TrimSpace(desc) == "" {
		return PlanItem{}, false
	}
	effort := ""
	if rawEffort, present := obj["effort"]; present {
		effortStr, isStr := rawEffort.(string)
		if !isStr {
			return PlanItem{}, false
		}
		effort = effortStr
	} else if !effortOptional {
		return PlanItem{}, false
	}
	return PlanItem{Description: desc, Effort: effort}, true
}

var (
	pairPattern = regexp.MustCompile(`"description"\s*:\s*"((?:[^"\\]|\\.)*)"\s*,\s*"effort"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	lonePattern = regexp.MustCompile(`"description"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// extractFieldPairs pulls repeated description/effort field pairs straight out
// of text that refused to parse as a whole.
func extractFieldPairs(text string) []PlanItem {
	items := make([]PlanItem, 0, 8)
	seen := map[string]struct{}{}
	for _, m := range pairPattern.FindAllStringSubmatch(text, -1) {
		desc := unescapeJSONString(m[1])
		if strings.TrimSpace(desc) == "" {
			continue
		}
		items = append(items, PlanItem{Description: desc, Effort: unescapeJSONString(m[2])})
		seen[desc] = struct{}{}
	}
	for _, m := range lonePattern.FindAllStringSubmatch(text, -1) {
		desc := unescapeJSONString(m[1])
		if strings.TrimSpace(desc) == "" {
			continue
		}
		if _, dup := seen[desc]; dup {
			continue
		}
		items = append(items, PlanItem{Description: desc})
		seen[desc] = struct{}{}
	}
	return items
}

func unescapeJSONString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

// carveArrayObjects walks the subtasks array span character by character,
// respecting quoted strings, and carves out individually parseable object
// literals even when the surrounding array is broken (missing commas,
// truncated tail).
func carveArrayObjects(text string) []PlanItem {
	keyIdx := strings.Index(text, `"subtasks"`)
	if keyIdx < 0 {
		return nil
	}
	arrStart := strings.IndexByte(text[keyIdx:], '[')
	if arrStart < 0 {
		return nil
	}
	span := text[keyIdx+arrStart:]

	items := make([]PlanItem, 0, 8)
	depth := 0
	inString := false
	escaped := false
	objStart := -1
	for i := 0; i < len(span); i++ {
		c := span[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 1 && objStart < 0 {
				objStart = i
			}
			depth++
		case '[':
			depth++
		case ']':
			depth--
			if depth <= 0 {
				return items
			}
		case '}':
			depth--
			if depth == 1 && objStart >= 0 {
				literal := span[objStart : i+1]
				objStart = -1
				if !gjson.Valid(literal) {
					continue
				}
				var item PlanItem
				if err := json.Unmarshal([]byte(literal), &item); err != nil {
					continue
				}
				if strings.TrimSpace(item.Description) != "" {
					items = append(items, item)
				}
			}
		}
	}
	return items
}
