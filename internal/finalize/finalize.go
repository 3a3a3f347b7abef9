// Package finalize assembles the final district report. The merge is
// deterministic and ordered, later steps winning: section defaults, then
// holistic fields, then each section's own enrichment fields, then measured
// aggregate values over any model numeric, then indicator-derived fallback
// text for sections the model left empty. A measured value written in the
// override step is never replaced afterwards.
package finalize

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/beanraft/district-cli/internal/model"
)

// Finalize builds the report for query from the settled aggregate and the
// repaired synthesis trees. enrichments is keyed by target section; absent
// or empty fragments mean that call failed. It always returns a
// structurally complete report, whatever survived upstream.
func Finalize(query string, rec *model.AggregateRecord, holistic model.RepairedFragment, enrichments map[model.ReportSection]model.RepairedFragment, partial bool) *model.Report {
	rep := model.NewReport(query)
	rep.UnitCode = rec.Unit.Code
	rep.UnitName = rec.Unit.Name
	rep.Partial = partial

	for _, section := range model.AllSections {
		sec := rep.Section(section)
		for field, kind := range model.SectionSchema[section] {
			sec[field] = defaultFor(kind)
		}
	}

	applyTree(rep, holistic.Tree)

	enriched := 0
	for _, section := range model.AllSections {
		frag, ok := enrichments[section]
		if !ok || frag.Empty() {
			continue
		}
		enriched++
		applyFields(rep.Section(section), section, sectionFields(section, frag.Tree))
	}

	normalizeCharacter(rep)

	for section, bindings := range model.MeasuredBindings {
		sec := rep.Section(section)
		for field, key := range bindings {
			if in, ok := rec.Measured(key); ok {
				sec[field] = in.Value
			}
		}
	}

	fallbacks := applyFallbacks(rep, rec)

	rep.Confidence = grade(rec.MeasuredCount(), !holistic.Empty(), enriched, partial)

	zap.L().Info("finalize: report assembled",
		zap.String("unit_code", rep.UnitCode),
		zap.Int("measured", rec.MeasuredCount()),
		zap.Int("enriched_sections", enriched),
		zap.Int("fallback_sections", fallbacks),
		zap.String("confidence", string(rep.Confidence)),
		zap.Bool("partial", rep.Partial),
	)
	return rep
}

// applyTree merges one repaired tree into the report. Cleanly parsed trees
// carry section containers; extraction-tier trees are flat, so top-level
// fields route to the first section that knows them in display order.
func applyTree(rep *model.Report, tree map[string]any) {
	if len(tree) == 0 {
		return
	}
	for _, section := range model.AllSections {
		if sub, ok := tree[string(section)].(map[string]any); ok {
			applyFields(rep.Section(section), section, sub)
		}
	}
	claimed := make(map[string]bool)
	for _, section := range model.AllSections {
		for field := range model.SectionSchema[section] {
			if claimed[field] {
				continue
			}
			claimed[field] = true
			if v, ok := tree[field]; ok {
				applyField(rep.Section(section), section, field, v)
			}
		}
	}
}

// sectionFields unwraps an enrichment tree that nested its fields under
// the section name despite the flat-fragment instruction.
func sectionFields(section model.ReportSection, tree map[string]any) map[string]any {
	if sub, ok := tree[string(section)].(map[string]any); ok {
		return sub
	}
	return tree
}

func applyFields(sec model.Section, section model.ReportSection, src map[string]any) int {
	applied := 0
	for field := range model.SectionSchema[section] {
		v, ok := src[field]
		if !ok {
			continue
		}
		if applyField(sec, section, field, v) {
			applied++
		}
	}
	return applied
}

// applyField coerces one value to its schema kind and writes it when
// usable. Zero and negative model numerics are treated as absent; every
// indicator in this domain is a positive quantity.
func applyField(sec model.Section, section model.ReportSection, field string, v any) bool {
	switch model.SectionSchema[section][field] {
	case model.KindNumber:
		n, ok := coerceNumber(v)
		if !ok || n <= 0 {
			return false
		}
		sec[field] = n
	case model.KindStrings:
		list, ok := coerceStrings(v)
		if !ok {
			return false
		}
		sec[field] = list
	default:
		s, ok := coerceString(v)
		if !ok {
			return false
		}
		sec[field] = s
	}
	return true
}

// normalizeCharacter pins overview.character to the closed label set.
// A label that merely contains or is contained by a known one snaps to it;
// anything else is cleared rather than invented.
func normalizeCharacter(rep *model.Report) {
	sec := rep.Section(model.SectionOverview)
	raw, _ := sec["character"].(string)
	if raw == "" {
		return
	}
	for _, label := range model.CharacterLabels {
		if raw == label {
			return
		}
	}
	for _, label := range model.CharacterLabels {
		if strings.Contains(raw, label) || strings.Contains(label, raw) {
			sec["character"] = label
			return
		}
	}
	zap.L().Warn("finalize: unknown district character label dropped",
		zap.String("character", raw),
	)
	sec["character"] = ""
}

// grade maps data health to the report confidence. Six or more measured
// indicators with a usable holistic narrative and most enrichment sections
// grade high; three or more measured indicators with either narrative
// source grade medium; anything less, or a partial report, grades low.
func grade(measured int, holisticOK bool, enriched int, partial bool) model.ReportConfidence {
	if partial {
		return model.ConfidenceLow
	}
	switch {
	case measured >= 6 && holisticOK && enriched >= 6:
		return model.ConfidenceHigh
	case measured >= 3 && (holisticOK || enriched >= 4):
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

func defaultFor(kind model.FieldKind) any {
	switch kind {
	case model.KindNumber:
		return float64(0)
	case model.KindStrings:
		return []string{}
	default:
		return ""
	}
}

var numericRun = regexp.MustCompile(`-?[0-9]+(?:\.[0-9]+)?`)

func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return f, true
		}
		// Unit suffixes like 명 or 원 survive repair; take the numeric run.
		if m := numericRun.FindString(cleaned); m != "" {
			if f, err := strconv.ParseFloat(m, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func coerceString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		trimmed := strings.TrimSpace(s)
		return trimmed, trimmed != ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(s), true
	}
	return "", false
}

func coerceStrings(v any) ([]string, bool) {
	switch list := v.(type) {
	case []any:
		out := make([]string, 0, len(list))
		for _, el := range list {
			if s, ok := coerceString(el); ok {
				out = append(out, s)
			}
		}
		return out, len(out) > 0
	case []string:
		out := make([]string, 0, len(list))
		for _, el := range list {
			if trimmed := strings.TrimSpace(el); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out, len(out) > 0
	case string:
		trimmed := strings.TrimSpace(list)
		if trimmed == "" {
			return nil, false
		}
		return []string{trimmed}, true
	}
	return nil, false
}
