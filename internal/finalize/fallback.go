package finalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/beanraft/district-cli/internal/model"
)

// fallbackField names the text leaf per section that receives
// indicator-derived text when both narrative sources left it empty.
var fallbackField = map[model.ReportSection]string{
	model.SectionOverview:    "summary",
	model.SectionPopulation:  "profile",
	model.SectionFootTraffic: "pattern",
	model.SectionCompetition: "saturation",
	model.SectionRent:        "note",
	model.SectionSpending:    "note",
	model.SectionTransit:     "access",
	model.SectionStrategy:    "recommendation",
}

// fallbackKeys mirrors the indicator scoping of the section prompts.
var fallbackKeys = map[model.ReportSection][]model.IndicatorKey{
	model.SectionOverview:    model.AllIndicators,
	model.SectionPopulation:  {model.IndicatorResidents, model.IndicatorWorkers},
	model.SectionFootTraffic: {model.IndicatorFootTraffic, model.IndicatorSubway},
	model.SectionCompetition: {model.IndicatorCafes},
	model.SectionRent:        {model.IndicatorRent},
	model.SectionSpending:    {model.IndicatorSpending, model.IndicatorAptPrice},
	model.SectionTransit:     {model.IndicatorSubway, model.IndicatorBusStops},
	model.SectionStrategy:    {model.IndicatorCafes, model.IndicatorRent, model.IndicatorFootTraffic},
}

// applyFallbacks fills every still-empty lead text field with deterministic
// indicator text and reports how many sections needed it.
func applyFallbacks(rep *model.Report, rec *model.AggregateRecord) int {
	var n int
	for _, section := range model.AllSections {
		sec := rep.Section(section)
		field := fallbackField[section]
		if s, _ := sec[field].(string); s != "" {
			continue
		}
		sec[field] = fallbackText(rec, fallbackKeys[section])
		n++
	}
	return n
}

// fallbackText renders the named indicators as one factual Korean line.
// Absent indicators stay visible as 자료 없음 rather than being skipped.
func fallbackText(rec *model.AggregateRecord, keys []model.IndicatorKey) string {
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		in, ok := rec.Indicator(key)
		if !ok || in.Provenance == model.ProvenanceAbsent {
			parts = append(parts, model.LabelFor(key)+" 자료 없음")
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s%s", model.LabelFor(key), comma(in.Value), in.Unit))
	}
	return "지표 요약: " + strings.Join(parts, ", ")
}

// comma formats a value rounded to a whole number with thousands
// separators, matching the prose style the prompts demand.
func comma(v float64) string {
	s := strconv.FormatInt(int64(math.Round(v)), 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		s = "-" + s
	}
	return s
}
