// Package synth drives the Claude narrative calls for a district report.
//
// One holistic call covers every report section from the full indicator
// digest. Independently, a fixed list of section-scoped enrichment calls
// each rewrite one section from the indicator slice relevant to it plus a
// couple of sibling cross-references; narrow prompts produce less
// repetitive prose than the single broad one. All responses leave this
// package as raw text and go straight to the repair ladder.
package synth

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beanraft/district-cli/internal/config"
	"github.com/beanraft/district-cli/internal/model"
	"github.com/beanraft/district-cli/pkg/anthropic"
)

// TaskHolistic is the progress task name for the holistic call. Enrichment
// tasks are named "enrich-<section>".
const TaskHolistic = "holistic"

// callAttempts caps generation calls at one retry.
const callAttempts = 2

// enrichMaxTokens bounds enrichment responses; fragments are a handful of
// fields.
const enrichMaxTokens = 1024

const (
	defaultMaxTokens       = 4096
	defaultHolisticTimeout = 60 * time.Second
	defaultEnrichTimeout   = 30 * time.Second
	defaultBatch           = 3
)

// Notifier receives one callback per completed generation call. It must
// not block.
type Notifier func(task string)

const synthSystemText = "You are a commercial district analyst for a Korean coffee franchise field-sales team. You write concise, factual Korean prose grounded strictly in the indicator data you are given. Return only a valid JSON object, with no markdown fences and no commentary."

const holisticPrompt = `Write a commercial district report for %s (%s).

District indicators:
%s

Rules:
- All prose in Korean.
- "character" must be exactly one of: %s.
- Numerals inside prose use thousands separators (e.g. 1,234,567명). Never abbreviate with 만 or 억.
- Numeric JSON fields are bare numbers without separators or units.
- Do not invent values for indicators marked 자료 없음; describe the gap instead.

Return one JSON object with exactly this shape:
%s`

const enrichPrompt = `Write the %q section of a commercial district report for %s (%s).

Section indicators:
%s

Sibling context:
%s

Rules:
- All prose in Korean.
- Numerals inside prose use thousands separators. Never abbreviate with 만 or 억.
- Numeric JSON fields are bare numbers without separators or units.
%s
Return one minimal JSON object with exactly these fields and nothing else:
%s`

// enrichmentSpec fixes one section-scoped call: the indicator slice embedded
// in its prompt and the sibling indicators it may cross-reference.
type enrichmentSpec struct {
	section model.ReportSection
	keys    []model.IndicatorKey
	refs    []model.IndicatorKey
}

var enrichmentSpecs = []enrichmentSpec{
	{
		section: model.SectionOverview,
		keys:    model.AllIndicators,
	},
	{
		section: model.SectionPopulation,
		keys:    []model.IndicatorKey{model.IndicatorResidents, model.IndicatorWorkers},
		refs:    []model.IndicatorKey{model.IndicatorFootTraffic},
	},
	{
		section: model.SectionFootTraffic,
		keys:    []model.IndicatorKey{model.IndicatorFootTraffic, model.IndicatorSubway},
		refs:    []model.IndicatorKey{model.IndicatorWorkers},
	},
	{
		section: model.SectionCompetition,
		keys:    []model.IndicatorKey{model.IndicatorCafes},
		refs:    []model.IndicatorKey{model.IndicatorFootTraffic, model.IndicatorResidents},
	},
	{
		section: model.SectionRent,
		keys:    []model.IndicatorKey{model.IndicatorRent},
		refs:    []model.IndicatorKey{model.IndicatorAptPrice, model.IndicatorCafes},
	},
	{
		section: model.SectionSpending,
		keys:    []model.IndicatorKey{model.IndicatorSpending, model.IndicatorAptPrice},
		refs:    []model.IndicatorKey{model.IndicatorResidents, model.IndicatorWorkers},
	},
	{
		section: model.SectionTransit,
		keys:    []model.IndicatorKey{model.IndicatorSubway, model.IndicatorBusStops},
		refs:    []model.IndicatorKey{model.IndicatorFootTraffic},
	},
	{
		section: model.SectionStrategy,
		keys:    []model.IndicatorKey{model.IndicatorCafes, model.IndicatorRent, model.IndicatorFootTraffic},
		refs:    []model.IndicatorKey{model.IndicatorSpending, model.IndicatorResidents},
	},
}

var holisticSkeleton = buildReportSkeleton()

// Synthesizer issues the generation calls for one report. It is safe for
// concurrent use; all per-request state lives in call arguments.
type Synthesizer struct {
	client          anthropic.Client
	sonnetModel     string
	haikuModel      string
	maxTokens       int64
	temperature     float64
	system          []anthropic.SystemBlock
	holisticTimeout time.Duration
	enrichTimeout   time.Duration
	batch           int
}

// New builds a Synthesizer from the Anthropic and pipeline configuration.
func New(client anthropic.Client, aiCfg config.AnthropicConfig, pipeCfg config.PipelineConfig) *Synthesizer {
	s := &Synthesizer{
		client:          client,
		sonnetModel:     aiCfg.SonnetModel,
		haikuModel:      aiCfg.HaikuModel,
		maxTokens:       int64(aiCfg.MaxTokens),
		temperature:     aiCfg.Temperature,
		system:          anthropic.BuildCachedSystemBlocks(synthSystemText),
		holisticTimeout: time.Duration(pipeCfg.SynthesisTimeoutSecs) * time.Second,
		enrichTimeout:   time.Duration(pipeCfg.EnrichTimeoutSecs) * time.Second,
		batch:           pipeCfg.EnrichBatch,
	}
	if s.maxTokens <= 0 {
		s.maxTokens = defaultMaxTokens
	}
	if s.holisticTimeout <= 0 {
		s.holisticTimeout = defaultHolisticTimeout
	}
	if s.enrichTimeout <= 0 {
		s.enrichTimeout = defaultEnrichTimeout
	}
	if s.batch <= 0 {
		s.batch = defaultBatch
	}
	return s
}

// CallCount reports how many generation calls one Synthesize run makes,
// for progress accounting.
func (s *Synthesizer) CallCount() int {
	return 1 + len(enrichmentSpecs)
}

// Synthesize runs the holistic call and every enrichment call against the
// finalized aggregate. Individual call failures degrade: a failed holistic
// call returns an empty response, a failed enrichment is simply missing
// from the slice. The returned error is non-nil only when ctx was
// cancelled.
func (s *Synthesizer) Synthesize(ctx context.Context, rec *model.AggregateRecord, notify Notifier) (model.SynthesisResponse, []model.SynthesisResponse, error) {
	if notify == nil {
		notify = func(string) {}
	}

	placeName := rec.Place.Name
	unitName := rec.Unit.Name
	if unitName == "" {
		unitName = "행정동 미상"
	}

	holistic := model.SynthesisResponse{Kind: model.SynthesisHolistic, Model: s.sonnetModel}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		prompt := fmt.Sprintf(holisticPrompt,
			placeName,
			unitName,
			digest(rec, model.AllIndicators),
			strings.Join(model.CharacterLabels, ", "),
			holisticSkeleton,
		)
		text, err := s.call(ctx, s.sonnetModel, s.maxTokens, prompt, s.holisticTimeout, "synthesis-holistic")
		if err != nil {
			zap.L().Warn("synth: holistic call failed", zap.Error(err))
		} else {
			holistic.Text = text
		}
		notify(TaskHolistic)
	}()

	// Enrichment calls run in a bounded pool; each writes only its own
	// slot, so the slice needs no lock.
	results := make([]*model.SynthesisResponse, len(enrichmentSpecs))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.batch)
	for i, spec := range enrichmentSpecs {
		g.Go(func() error {
			text, err := s.enrich(gCtx, rec, placeName, unitName, spec)
			if err != nil {
				zap.L().Warn("synth: enrichment failed",
					zap.String("section", string(spec.section)),
					zap.Error(err),
				)
			} else {
				results[i] = &model.SynthesisResponse{
					Kind:    model.SynthesisEnrichment,
					Section: spec.section,
					Text:    text,
					Model:   s.haikuModel,
				}
			}
			notify("enrich-" + string(spec.section))
			return nil
		})
	}
	_ = g.Wait()
	wg.Wait()

	enrichments := make([]model.SynthesisResponse, 0, len(results))
	for _, r := range results {
		if r != nil {
			enrichments = append(enrichments, *r)
		}
	}

	zap.L().Info("synth: synthesis settled",
		zap.Bool("holistic_ok", holistic.Text != ""),
		zap.Int("enrichments", len(enrichments)),
		zap.Int("calls", s.CallCount()),
	)

	if err := ctx.Err(); err != nil {
		return holistic, enrichments, eris.Wrap(err, "synth: interrupted")
	}
	return holistic, enrichments, nil
}

func (s *Synthesizer) enrich(ctx context.Context, rec *model.AggregateRecord, placeName, unitName string, spec enrichmentSpec) (string, error) {
	siblings := "없음"
	if len(spec.refs) > 0 {
		siblings = digest(rec, spec.refs)
	}
	extraRules := ""
	if _, ok := model.SectionSchema[spec.section]["character"]; ok {
		extraRules = fmt.Sprintf("- \"character\" must be exactly one of: %s.\n", strings.Join(model.CharacterLabels, ", "))
	}
	prompt := fmt.Sprintf(enrichPrompt,
		string(spec.section),
		placeName,
		unitName,
		digest(rec, spec.keys),
		siblings,
		extraRules,
		buildSectionSkeleton(spec.section),
	)
	return s.call(ctx, s.haikuModel, enrichMaxTokens, prompt, s.enrichTimeout, "synthesis-enrich")
}

// call sends one message with a per-call timeout and up to one retry.
func (s *Synthesizer) call(ctx context.Context, mdl string, maxTokens int64, prompt string, timeout time.Duration, phase string) (string, error) {
	req := anthropic.MessageRequest{
		Model:       mdl,
		MaxTokens:   maxTokens,
		System:      s.system,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &s.temperature,
	}

	var lastErr error
	backoff := 500 * time.Millisecond
	for attempt := 0; attempt < callAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := s.client.CreateMessage(callCtx, req)
		cancel()
		if err == nil {
			resp.Usage.LogCost(mdl, phase)
			return extractText(resp), nil
		}
		lastErr = err
		if attempt < callAttempts-1 {
			zap.L().Warn("synth: message call failed, retrying",
				zap.String("phase", phase),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", eris.Wrap(ctx.Err(), "synth: "+phase)
			case <-timer.C:
			}
			backoff *= 2
		}
	}
	return "", eris.Wrap(lastErr, "synth: "+phase)
}

// extractText concatenates all text content blocks from a message response.
func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// digest renders the named indicators as Korean prompt lines, one per key,
// with value, unit, and provenance.
func digest(rec *model.AggregateRecord, keys []model.IndicatorKey) string {
	var b strings.Builder
	for _, key := range keys {
		in, ok := rec.Indicator(key)
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: ", model.LabelFor(key))
		if !ok || in.Provenance == model.ProvenanceAbsent {
			b.WriteString("자료 없음")
			continue
		}
		fmt.Fprintf(&b, "%s%s (%s)", comma(in.Value), in.Unit, provenanceLabel(in))
	}
	return b.String()
}

func provenanceLabel(in model.Indicator) string {
	if in.Provenance == model.ProvenanceMeasured {
		if in.SampleUnits > 1 {
			return fmt.Sprintf("인접 %d개동 평균", in.SampleUnits)
		}
		return "측정"
	}
	return "추정"
}

// comma formats a value rounded to a whole number with thousands
// separators, the same style the prompts demand of the model.
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

// buildReportSkeleton renders the full report shape with per-kind
// placeholders, sections in display order and fields sorted.
func buildReportSkeleton() string {
	var b strings.Builder
	b.WriteString("{\n")
	for i, section := range model.AllSections {
		fmt.Fprintf(&b, "  %q: {\n", string(section))
		fields := sortedFields(section)
		for j, field := range fields {
			fmt.Fprintf(&b, "    %q: %s", field, placeholderFor(model.SectionSchema[section][field]))
			if j < len(fields)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString("  }")
		if i < len(model.AllSections)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}")
	return b.String()
}

// buildSectionSkeleton renders the flat fragment shape for one section.
func buildSectionSkeleton(section model.ReportSection) string {
	var b strings.Builder
	b.WriteString("{")
	fields := sortedFields(section)
	for i, field := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %s", field, placeholderFor(model.SectionSchema[section][field]))
	}
	b.WriteString("}")
	return b.String()
}

func sortedFields(section model.ReportSection) []string {
	fields := make([]string, 0, len(model.SectionSchema[section]))
	for field := range model.SectionSchema[section] {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

func placeholderFor(kind model.FieldKind) string {
	switch kind {
	case model.KindNumber:
		return "0"
	case model.KindStrings:
		return `["<항목>"]`
	default:
		return `"<한국어 텍스트>"`
	}
}
