package model

import (
	"time"
)

// ReportSection names one of the fixed report sections. The set is closed
// and versioned with the report schema.
type ReportSection string

const (
	SectionOverview    ReportSection = "overview"
	SectionPopulation  ReportSection = "population"
	SectionFootTraffic ReportSection = "footTraffic"
	SectionCompetition ReportSection = "competition"
	SectionRent        ReportSection = "rent"
	SectionSpending    ReportSection = "spending"
	SectionTransit     ReportSection = "transit"
	SectionStrategy    ReportSection = "strategy"
)

// AllSections lists every report section in display order.
var AllSections = []ReportSection{
	SectionOverview,
	SectionPopulation,
	SectionFootTraffic,
	SectionCompetition,
	SectionRent,
	SectionSpending,
	SectionTransit,
	SectionStrategy,
}

// FieldKind is the expected primitive kind of a report leaf.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindNumber  FieldKind = "number"
	KindStrings FieldKind = "strings"
)

// SectionSchema maps every section to its known fields and their expected
// kinds. Generation prompts, repair-tier extraction, the sanitizer, and the
// final merge all run against this one schema.
var SectionSchema = map[ReportSection]map[string]FieldKind{
	SectionOverview: {
		"summary":    KindString,
		"character":  KindString,
		"highlights": KindStrings,
	},
	SectionPopulation: {
		"residents": KindNumber,
		"workers":   KindNumber,
		"profile":   KindString,
	},
	SectionFootTraffic: {
		"monthly": KindNumber,
		"peak":    KindString,
		"pattern": KindString,
	},
	SectionCompetition: {
		"cafes":       KindNumber,
		"saturation":  KindString,
		"positioning": KindString,
	},
	SectionRent: {
		"monthlyPerM2": KindNumber,
		"trend":        KindString,
		"note":         KindString,
	},
	SectionSpending: {
		"cardMonthly":   KindNumber,
		"aptPricePerM2": KindNumber,
		"note":          KindString,
	},
	SectionTransit: {
		"subwayMonthly": KindNumber,
		"busStops":      KindNumber,
		"access":        KindString,
	},
	SectionStrategy: {
		"recommendation": KindString,
		"risks":          KindStrings,
		"opportunities":  KindStrings,
	},
}

// CharacterLabels is the closed set of district-character labels the
// holistic prompt allows for overview.character.
var CharacterLabels = []string{
	"오피스 상권",
	"주거 상권",
	"대학가 상권",
	"역세권 상권",
	"관광 상권",
	"복합 상권",
}

// MeasuredBindings maps numeric report fields to the indicator that is
// authoritative for them. A measured indicator always overrides whatever
// the model produced for the bound field.
var MeasuredBindings = map[ReportSection]map[string]IndicatorKey{
	SectionPopulation: {
		"residents": IndicatorResidents,
		"workers":   IndicatorWorkers,
	},
	SectionFootTraffic: {
		"monthly": IndicatorFootTraffic,
	},
	SectionCompetition: {
		"cafes": IndicatorCafes,
	},
	SectionRent: {
		"monthlyPerM2": IndicatorRent,
	},
	SectionSpending: {
		"cardMonthly":   IndicatorSpending,
		"aptPricePerM2": IndicatorAptPrice,
	},
	SectionTransit: {
		"subwayMonthly": IndicatorSubway,
		"busStops":      IndicatorBusStops,
	},
}

// ReportSchemaVersion identifies the report JSON shape. Bump on any change
// to SectionSchema.
const ReportSchemaVersion = 2

// ReportConfidence is the single external quality signal on a report.
type ReportConfidence string

const (
	ConfidenceHigh   ReportConfidence = "high"
	ConfidenceMedium ReportConfidence = "medium"
	ConfidenceLow    ReportConfidence = "low"
)

// Section holds the leaves of one report section. Values are primitives
// (string, float64, or []string) by construction; the sanitizer guarantees
// no object survives to this point.
type Section map[string]any

// Report is the final pipeline output: a fixed, versioned JSON shape with
// independently optional sections.
type Report struct {
	SchemaVersion int                       `json:"schemaVersion"`
	Query         string                    `json:"query"`
	UnitCode      string                    `json:"unitCode,omitempty"`
	UnitName      string                    `json:"unitName,omitempty"`
	GeneratedAt   time.Time                 `json:"generatedAt"`
	Confidence    ReportConfidence          `json:"confidence"`
	Partial       bool                      `json:"partial,omitempty"`
	Sections      map[ReportSection]Section `json:"sections"`
}

// NewReport creates an empty report shell for the query.
func NewReport(query string) *Report {
	return &Report{
		SchemaVersion: ReportSchemaVersion,
		Query:         query,
		GeneratedAt:   time.Now().UTC(),
		Confidence:    ConfidenceLow,
		Sections:      make(map[ReportSection]Section),
	}
}

// Section returns the named section, creating it when absent.
func (r *Report) Section(name ReportSection) Section {
	s, ok := r.Sections[name]
	if !ok {
		s = make(Section)
		r.Sections[name] = s
	}
	return s
}
