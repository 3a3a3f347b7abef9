package finalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanraft/district-cli/internal/model"
)

func measuredRecord() *model.AggregateRecord {
	rec := model.NewAggregateRecord(model.ResolvedPlace{Name: "강남역"})
	rec.Unit = model.AdminUnit{Code: "1123051", Name: "역삼1동"}
	rec.SetIndicator(model.Indicator{
		Key:         model.IndicatorResidents,
		Value:       23451,
		Unit:        "명",
		Provenance:  model.ProvenanceMeasured,
		Source:      "mois-population",
		SampleUnits: 1,
	})
	rec.SetIndicator(model.Indicator{
		Key:         model.IndicatorCafes,
		Value:       15,
		Unit:        "개",
		Provenance:  model.ProvenanceMeasured,
		Source:      "neighbor-mean",
		SampleUnits: 2,
	})
	rec.FillAbsent()
	return rec
}

func emptyRecord() *model.AggregateRecord {
	rec := model.NewAggregateRecord(model.ResolvedPlace{Name: "강남역"})
	rec.Unit = model.AdminUnit{Code: "1123051", Name: "역삼1동"}
	rec.FillAbsent()
	return rec
}

func tree(t *testing.T, sections map[model.ReportSection]map[string]any) model.RepairedFragment {
	t.Helper()
	out := make(map[string]any, len(sections))
	for section, fields := range sections {
		out[string(section)] = fields
	}
	return model.RepairedFragment{Tree: out}
}

func TestFinalize_MeasuredOverridesModel(t *testing.T) {
	rec := measuredRecord()
	holistic := tree(t, map[model.ReportSection]map[string]any{
		model.SectionPopulation: {"residents": float64(99999), "profile": "직장인 중심"},
	})
	enrichments := map[model.ReportSection]model.RepairedFragment{
		model.SectionCompetition: {Tree: map[string]any{"cafes": float64(800), "saturation": "포화"}},
	}

	rep := Finalize("강남역", rec, holistic, enrichments, false)

	assert.Equal(t, float64(23451), rep.Sections[model.SectionPopulation]["residents"])
	assert.Equal(t, float64(15), rep.Sections[model.SectionCompetition]["cafes"])
	// Prose survives the numeric override.
	assert.Equal(t, "직장인 중심", rep.Sections[model.SectionPopulation]["profile"])
	assert.Equal(t, "포화", rep.Sections[model.SectionCompetition]["saturation"])
}

func TestFinalize_EnrichmentOverridesHolistic(t *testing.T) {
	rec := measuredRecord()
	holistic := tree(t, map[model.ReportSection]map[string]any{
		model.SectionRent: {"trend": "보합", "note": "전반적으로 안정적"},
	})
	enrichments := map[model.ReportSection]model.RepairedFragment{
		model.SectionRent: {Tree: map[string]any{"trend": "상승"}},
	}

	rep := Finalize("강남역", rec, holistic, enrichments, false)

	assert.Equal(t, "상승", rep.Sections[model.SectionRent]["trend"])
	// Fields the enrichment did not touch keep the holistic value.
	assert.Equal(t, "전반적으로 안정적", rep.Sections[model.SectionRent]["note"])
}

func TestFinalize_EnrichmentScopedToOwnSection(t *testing.T) {
	rec := measuredRecord()
	holistic := tree(t, map[model.ReportSection]map[string]any{
		model.SectionPopulation: {"profile": "주거 중심"},
	})
	enrichments := map[model.ReportSection]model.RepairedFragment{
		model.SectionCompetition: {Tree: map[string]any{
			"saturation": "여유",
			"profile":    "침투 시도",
		}},
	}

	rep := Finalize("강남역", rec, holistic, enrichments, false)

	assert.Equal(t, "주거 중심", rep.Sections[model.SectionPopulation]["profile"])
	assert.Equal(t, "여유", rep.Sections[model.SectionCompetition]["saturation"])
	assert.NotContains(t, rep.Sections[model.SectionCompetition], "profile")
}

func TestFinalize_FlatExtractionTreeRoutesFields(t *testing.T) {
	rec := emptyRecord()
	// Tier -1 extraction produces flat trees without section containers.
	holistic := model.RepairedFragment{
		Tree: map[string]any{
			"recommendation": "배후 수요 공략",
			"note":           "임대료 자료 참고",
		},
		Tier: model.TierExtracted,
	}

	rep := Finalize("강남역", rec, holistic, nil, false)

	assert.Equal(t, "배후 수요 공략", rep.Sections[model.SectionStrategy]["recommendation"])
	// "note" belongs to both rent and spending; display order claims it for rent.
	assert.Equal(t, "임대료 자료 참고", rep.Sections[model.SectionRent]["note"])
	assert.NotEqual(t, "임대료 자료 참고", rep.Sections[model.SectionSpending]["note"])
}

func TestFinalize_TotalFailureStillStructurallyComplete(t *testing.T) {
	rec := emptyRecord()

	rep := Finalize("강남역", rec, model.RepairedFragment{}, nil, false)

	require.Len(t, rep.Sections, len(model.AllSections))
	for _, section := range model.AllSections {
		sec := rep.Sections[section]
		require.Len(t, sec, len(model.SectionSchema[section]), "section %s", section)
		lead, _ := sec[fallbackField[section]].(string)
		assert.Contains(t, lead, "지표 요약:", "section %s", section)
		assert.Contains(t, lead, "자료 없음", "section %s", section)
	}
	assert.Equal(t, model.ConfidenceLow, rep.Confidence)
	assert.Equal(t, model.ReportSchemaVersion, rep.SchemaVersion)
	assert.Equal(t, "1123051", rep.UnitCode)
	assert.Equal(t, "역삼1동", rep.UnitName)
}

func TestFinalize_FallbackOnlyWhereLeadEmpty(t *testing.T) {
	rec := measuredRecord()
	holistic := tree(t, map[model.ReportSection]map[string]any{
		model.SectionOverview: {"summary": "복합 상권의 중심지"},
	})

	rep := Finalize("강남역", rec, holistic, nil, false)

	assert.Equal(t, "복합 상권의 중심지", rep.Sections[model.SectionOverview]["summary"])
	saturation, _ := rep.Sections[model.SectionCompetition]["saturation"].(string)
	assert.Contains(t, saturation, "지표 요약: 카페 점포 수 15개")
}

func TestFinalize_NestedEnrichmentUnwrapped(t *testing.T) {
	rec := emptyRecord()
	enrichments := map[model.ReportSection]model.RepairedFragment{
		model.SectionTransit: {Tree: map[string]any{
			"transit": map[string]any{"access": "환승 접근성 우수"},
		}},
	}

	rep := Finalize("강남역", rec, model.RepairedFragment{}, enrichments, false)

	assert.Equal(t, "환승 접근성 우수", rep.Sections[model.SectionTransit]["access"])
}

func TestFinalize_ZeroNumericTreatedAsAbsent(t *testing.T) {
	rec := measuredRecord()
	holistic := tree(t, map[model.ReportSection]map[string]any{
		model.SectionTransit: {"busStops": float64(12)},
	})
	enrichments := map[model.ReportSection]model.RepairedFragment{
		model.SectionTransit: {Tree: map[string]any{"busStops": float64(0)}},
	}

	rep := Finalize("강남역", rec, holistic, enrichments, false)

	assert.Equal(t, float64(12), rep.Sections[model.SectionTransit]["busStops"])
}

func TestFinalize_PartialForcesLowConfidence(t *testing.T) {
	rec := measuredRecord()
	holistic := tree(t, map[model.ReportSection]map[string]any{
		model.SectionOverview: {"summary": "요약"},
	})

	rep := Finalize("강남역", rec, holistic, nil, true)

	assert.True(t, rep.Partial)
	assert.Equal(t, model.ConfidenceLow, rep.Confidence)
}

func TestNormalizeCharacter(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"exact label kept", "오피스 상권", "오피스 상권"},
		{"containing text snaps", "전형적인 오피스 상권입니다", "오피스 상권"},
		{"unknown cleared", "핫플레이스 상권", ""},
		{"empty stays empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rep := model.NewReport("q")
			rep.Section(model.SectionOverview)["character"] = tt.in
			normalizeCharacter(rep)
			assert.Equal(t, tt.want, rep.Sections[model.SectionOverview]["character"])
		})
	}
}

func TestGrade(t *testing.T) {
	tests := []struct {
		name       string
		measured   int
		holisticOK bool
		enriched   int
		partial    bool
		want       model.ReportConfidence
	}{
		{"full health", 7, true, 8, false, model.ConfidenceHigh},
		{"boundary high", 6, true, 6, false, model.ConfidenceHigh},
		{"no holistic caps at medium", 7, false, 8, false, model.ConfidenceMedium},
		{"few enrichments caps at medium", 7, true, 3, false, model.ConfidenceMedium},
		{"some data with narrative", 3, true, 0, false, model.ConfidenceMedium},
		{"sparse data", 2, true, 8, false, model.ConfidenceLow},
		{"no narrative at all", 5, false, 3, false, model.ConfidenceLow},
		{"partial always low", 9, true, 8, true, model.ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, grade(tt.measured, tt.holisticOK, tt.enriched, tt.partial))
		})
	}
}

func TestCoerceNumber(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{float64(21300), 21300, true},
		{"21,300", 21300, true},
		{" 1,234,567 ", 1234567, true},
		{"약 9,800원", 9800, true},
		{"자료 없음", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := coerceNumber(tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %v", tt.in)
		if ok {
			assert.Equal(t, tt.want, got, "input %v", tt.in)
		}
	}
}

func TestCoerceStrings(t *testing.T) {
	got, ok := coerceStrings([]any{"직장인 수요", "", float64(3), "높은 임대료"})
	require.True(t, ok)
	assert.Equal(t, []string{"직장인 수요", "3", "높은 임대료"}, got)

	got, ok = coerceStrings("단일 항목")
	require.True(t, ok)
	assert.Equal(t, []string{"단일 항목"}, got)

	_, ok = coerceStrings([]any{"", "  "})
	assert.False(t, ok)

	_, ok = coerceStrings(float64(7))
	assert.False(t, ok)
}
