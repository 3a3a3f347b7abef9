// Package export renders finished reports for people who do not read
// JSON: an .xlsx workbook for field teams and a Notion database page
// for the shared wiki. Both outputs use the same section order, Korean
// display labels, and value formatting.
package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beanraft/district-cli/internal/model"
)

// sectionFieldOrder fixes the display order of fields within each
// section. Keys track model.SectionSchema.
var sectionFieldOrder = map[model.ReportSection][]string{
	model.SectionOverview:    {"summary", "character", "highlights"},
	model.SectionPopulation:  {"residents", "workers", "profile"},
	model.SectionFootTraffic: {"monthly", "peak", "pattern"},
	model.SectionCompetition: {"cafes", "saturation", "positioning"},
	model.SectionRent:        {"monthlyPerM2", "trend", "note"},
	model.SectionSpending:    {"cardMonthly", "aptPricePerM2", "note"},
	model.SectionTransit:     {"subwayMonthly", "busStops", "access"},
	model.SectionStrategy:    {"recommendation", "risks", "opportunities"},
}

// sectionLabels holds the Korean display name of each section.
var sectionLabels = map[model.ReportSection]string{
	model.SectionOverview:    "개요",
	model.SectionPopulation:  "인구",
	model.SectionFootTraffic: "유동인구",
	model.SectionCompetition: "경쟁",
	model.SectionRent:        "임대료",
	model.SectionSpending:    "소비",
	model.SectionTransit:     "교통",
	model.SectionStrategy:    "전략",
}

// fieldLabels holds the Korean display name of each report field.
var fieldLabels = map[string]string{
	"summary":        "요약",
	"character":      "상권 성격",
	"highlights":     "핵심 포인트",
	"residents":      "주거인구",
	"workers":        "직장인구",
	"profile":        "인구 특성",
	"monthly":        "월 유동인구",
	"peak":           "피크 시간대",
	"pattern":        "흐름",
	"cafes":          "카페 수",
	"saturation":     "포화도",
	"positioning":    "포지셔닝",
	"monthlyPerM2":   "㎡당 월 임대료",
	"trend":          "추세",
	"note":           "비고",
	"cardMonthly":    "월 카드 매출",
	"aptPricePerM2":  "㎡당 아파트 시세",
	"subwayMonthly":  "월 지하철 승하차",
	"busStops":       "버스 정류장 수",
	"access":         "접근성",
	"recommendation": "추천",
	"risks":          "리스크",
	"opportunities":  "기회",
}

// confidenceLabels holds the Korean display name of each confidence level.
var confidenceLabels = map[model.ReportConfidence]string{
	model.ConfidenceHigh:   "높음",
	model.ConfidenceMedium: "보통",
	model.ConfidenceLow:    "낮음",
}

func sectionLabel(sec model.ReportSection) string {
	if label, ok := sectionLabels[sec]; ok {
		return label
	}
	return string(sec)
}

func fieldLabel(key string) string {
	if label, ok := fieldLabels[key]; ok {
		return label
	}
	return key
}

func confidenceLabel(c model.ReportConfidence) string {
	if label, ok := confidenceLabels[c]; ok {
		return label
	}
	return string(c)
}

// formatValue renders a report leaf as display text. Leaves are string,
// float64, or []string by construction; a report that round-tripped
// through JSON carries []any instead of []string.
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// sectionText renders one section as "label: value" lines in display
// order. Absent fields are skipped; an absent section renders empty.
func sectionText(rep *model.Report, sec model.ReportSection) string {
	fields, ok := rep.Sections[sec]
	if !ok {
		return ""
	}
	var lines []string
	for _, key := range sectionFieldOrder[sec] {
		v, ok := fields[key]
		if !ok {
			continue
		}
		lines = append(lines, fieldLabel(key)+": "+formatValue(v))
	}
	return strings.Join(lines, "\n")
}
