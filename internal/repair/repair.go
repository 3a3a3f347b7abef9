// Package repair recovers usable JSON trees from imperfect model output.
//
// Model responses arrive as free text that usually contains a JSON object,
// often wrapped in markdown fences, sometimes with trailing commas, raw
// control characters inside string literals, or a truncated tail when the
// response hit its token limit. Repair applies progressively more invasive
// recovery steps and records which step succeeded so downstream code can
// weigh the result.
package repair

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/beanraft/district-cli/internal/model"
)

// Repair parses raw model output into an object tree. It never fails: when
// every parse attempt is exhausted it falls back to per-field extraction,
// which at worst yields an empty tree.
func Repair(raw string) model.RepairedFragment {
	text := extractCandidate(raw)

	if tree, ok := parseObject(text); ok {
		return model.RepairedFragment{Tree: tree, Tier: model.TierClean}
	}

	text = stripTrailingCommas(text)
	if tree, ok := parseObject(text); ok {
		return model.RepairedFragment{Tree: tree, Tier: model.TierComma}
	}

	text = escapeControlChars(text)
	if tree, ok := parseObject(text); ok {
		return model.RepairedFragment{Tree: tree, Tier: model.TierControl}
	}

	if tree, ok := parseObject(closeTruncated(text)); ok {
		return model.RepairedFragment{Tree: tree, Tier: model.TierTruncated}
	}

	return model.RepairedFragment{Tree: extractFields(raw), Tier: model.TierExtracted}
}

// extractCandidate strips markdown fences and surrounding prose, keeping the
// span from the first opening brace to the last closing brace. When no
// closing brace exists (a truncated response) everything from the first
// opening brace is kept for the later repair steps.
func extractCandidate(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
	}
	if idx := strings.LastIndex(text, "```"); idx != -1 {
		text = text[:idx]
	}
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	switch {
	case start >= 0 && end > start:
		text = text[start : end+1]
	case start >= 0:
		text = text[start:]
	}
	return text
}

func parseObject(text string) (map[string]any, bool) {
	var tree map[string]any
	if err := json.Unmarshal([]byte(text), &tree); err != nil {
		return nil, false
	}
	if tree == nil {
		return nil, false
	}
	return tree, true
}

var trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)

func stripTrailingCommas(text string) string {
	return trailingCommaRegex.ReplaceAllString(text, "$1")
}

// escapeControlChars rewrites raw control characters inside string literals
// as their JSON escape sequences. Models occasionally emit literal newlines
// or tabs inside long narrative values, which encoding/json rejects.
func escapeControlChars(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escape := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escape {
			b.WriteByte(c)
			escape = false
			continue
		}
		switch {
		case inString && c == '\\':
			b.WriteByte(c)
			escape = true
		case c == '"':
			inString = !inString
			b.WriteByte(c)
		case inString && c < 0x20:
			switch c {
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				fmt.Fprintf(&b, `\u%04x`, c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// closeTruncated balances a JSON fragment cut off mid-stream. It walks the
// text tracking string and escape state and a stack of expected closers,
// then terminates any open string, drops a dangling comma, and appends the
// missing closers in reverse order.
func closeTruncated(text string) string {
	if text == "" {
		return text
	}

	var stack []byte
	inString := false
	escape := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escape = true
			case '"':
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
		if escape {
			// The cut landed on a lone backslash; complete the escape so
			// the closing quote is not swallowed.
			text += `\`
		}
		text += `"`
	}
	for i := len(stack) - 1; i >= 0; i-- {
		text = strings.TrimRight(text, " \t\n\r,")
		text += string(stack[i])
	}
	return text
}

// fieldPattern matches one known report field in arbitrary text.
type fieldPattern struct {
	field string
	kind  model.FieldKind
	re    *regexp.Regexp
}

var fieldPatterns = buildFieldPatterns()

func buildFieldPatterns() []fieldPattern {
	seen := make(map[string]bool)
	var patterns []fieldPattern
	for _, section := range model.AllSections {
		fields := make([]string, 0, len(model.SectionSchema[section]))
		for field := range model.SectionSchema[section] {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		for _, field := range fields {
			if seen[field] {
				continue
			}
			seen[field] = true

			kind := model.SectionSchema[section][field]
			var re *regexp.Regexp
			switch kind {
			case model.KindNumber:
				// Accept bare numbers and quoted numbers with
				// thousands separators.
				re = regexp.MustCompile(`"` + field + `"\s*:\s*"?(-?[0-9][0-9,.]*)`)
			case model.KindStrings:
				// The capture stops at the closing bracket or, for a
				// truncated array, at the end of input.
				re = regexp.MustCompile(`"` + field + `"\s*:\s*\[([^\]]*)`)
			default:
				re = regexp.MustCompile(`"` + field + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
			}
			patterns = append(patterns, fieldPattern{field: field, kind: kind, re: re})
		}
	}
	return patterns
}

var stringLiteralRegex = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)

// extractFields is the last resort: scan the raw text for any known report
// field and pull out whatever value follows it. The result is a flat map and
// may be empty.
func extractFields(raw string) map[string]any {
	tree := make(map[string]any)
	for _, p := range fieldPatterns {
		m := p.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		switch p.kind {
		case model.KindNumber:
			cleaned := strings.ReplaceAll(m[1], ",", "")
			if v, err := strconv.ParseFloat(cleaned, 64); err == nil {
				tree[p.field] = v
			}
		case model.KindStrings:
			var items []any
			for _, lit := range stringLiteralRegex.FindAllStringSubmatch(m[1], -1) {
				items = append(items, unescapeString(lit[1]))
			}
			if len(items) > 0 {
				tree[p.field] = items
			}
		default:
			tree[p.field] = unescapeString(m[1])
		}
	}
	return tree
}

// unescapeString resolves JSON escapes in a captured literal body. On
// malformed escapes the raw capture is returned as-is.
func unescapeString(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
