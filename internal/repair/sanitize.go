package repair

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/beanraft/district-cli/internal/model"
)

// preferredKeys are tried in order when a model nests an object where a
// primitive belongs, e.g. {"summary": {"text": "...", "confidence": "high"}}.
var preferredKeys = []string{"summary", "text", "value", "description", "content"}

var sectionNames = func() map[string]bool {
	names := make(map[string]bool, len(model.AllSections))
	for _, s := range model.AllSections {
		names[string(s)] = true
	}
	return names
}()

// Sanitize flattens a repaired tree so every leaf is a primitive: a string,
// a number, a bool, or a list of primitives. Objects under a known section
// name keep their container shape; any other object collapses to a single
// value. Sanitize is idempotent and never fails.
func Sanitize(tree map[string]any) map[string]any {
	out := make(map[string]any, len(tree))
	for key, val := range tree {
		if fields, ok := val.(map[string]any); ok && sectionNames[key] {
			out[key] = sanitizeFields(fields)
			continue
		}
		out[key] = leaf(val)
	}
	return out
}

func sanitizeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for key, val := range fields {
		out[key] = leaf(val)
	}
	return out
}

// leaf forces a value into primitive shape. Maps collapse, slice elements
// become strings, everything else passes through.
func leaf(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return leaf(collapseObject(val))
	case []any:
		out := make([]any, 0, len(val))
		for _, el := range val {
			out = append(out, elementString(el))
		}
		return out
	case []string:
		out := make([]any, 0, len(val))
		for _, el := range val {
			out = append(out, el)
		}
		return out
	default:
		return v
	}
}

// collapseObject picks the most useful single value out of a nested object.
// It prefers a summary-like subfield, then joins any list subfield to one
// string, and as a last resort serializes the whole object back to JSON
// text. The joined string keeps the model's content usable for string
// fields; list fields re-split it downstream.
func collapseObject(obj map[string]any) any {
	for _, key := range preferredKeys {
		if inner, ok := obj[key]; ok {
			return inner
		}
	}

	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if list, ok := obj[key].([]any); ok {
			parts := make([]string, 0, len(list))
			for _, el := range list {
				parts = append(parts, elementString(el))
			}
			return strings.Join(parts, ", ")
		}
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return string(raw)
}

func elementString(el any) string {
	switch val := el.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any:
		return elementString(leaf(val))
	case []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(raw)
	case nil:
		return ""
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
