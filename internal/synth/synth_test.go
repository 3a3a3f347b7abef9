package synth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanraft/district-cli/internal/config"
	"github.com/beanraft/district-cli/internal/model"
	"github.com/beanraft/district-cli/pkg/anthropic"
)

type fakeClient struct {
	mu    sync.Mutex
	calls []anthropic.MessageRequest
	reply func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

func (f *fakeClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.reply(req)
}

func (f *fakeClient) captured() []anthropic.MessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]anthropic.MessageRequest, len(f.calls))
	copy(out, f.calls)
	return out
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
	}
}

func testAICfg() config.AnthropicConfig {
	return config.AnthropicConfig{
		SonnetModel: "claude-sonnet-4-5-20250929",
		HaikuModel:  "claude-haiku-4-5-20251001",
		MaxTokens:   4096,
		Temperature: 0.3,
	}
}

func testPipeCfg() config.PipelineConfig {
	return config.PipelineConfig{
		EnrichBatch:          3,
		SynthesisTimeoutSecs: 5,
		EnrichTimeoutSecs:    5,
	}
}

func testRecord() *model.AggregateRecord {
	rec := model.NewAggregateRecord(model.ResolvedPlace{
		Name: "강남역",
		Lat:  37.497952,
		Lon:  127.027625,
	})
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

// notifyCollector is a goroutine-safe Notifier capture.
type notifyCollector struct {
	mu    sync.Mutex
	tasks []string
}

func (n *notifyCollector) notify(task string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tasks = append(n.tasks, task)
}

func (n *notifyCollector) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.tasks))
	copy(out, n.tasks)
	return out
}

func TestSynthesizeRunsAllCalls(t *testing.T) {
	fc := &fakeClient{reply: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		if req.Model == "claude-sonnet-4-5-20250929" {
			return textResponse(`{"overview": {"summary": "복합 상권"}}`), nil
		}
		return textResponse(`{"note": "좋음"}`), nil
	}}
	s := New(fc, testAICfg(), testPipeCfg())
	var nc notifyCollector

	holistic, enrichments, err := s.Synthesize(context.Background(), testRecord(), nc.notify)

	require.NoError(t, err)
	assert.Equal(t, model.SynthesisHolistic, holistic.Kind)
	assert.Equal(t, "claude-sonnet-4-5-20250929", holistic.Model)
	assert.Equal(t, `{"overview": {"summary": "복합 상권"}}`, holistic.Text)

	require.Len(t, enrichments, len(model.AllSections))
	sections := make([]model.ReportSection, 0, len(enrichments))
	for _, e := range enrichments {
		assert.Equal(t, model.SynthesisEnrichment, e.Kind)
		assert.Equal(t, "claude-haiku-4-5-20251001", e.Model)
		assert.Equal(t, `{"note": "좋음"}`, e.Text)
		sections = append(sections, e.Section)
	}
	assert.Equal(t, model.AllSections, sections)

	assert.Len(t, fc.captured(), s.CallCount())
	tasks := nc.all()
	assert.Len(t, tasks, s.CallCount())
	assert.Contains(t, tasks, TaskHolistic)
	assert.Contains(t, tasks, "enrich-competition")
}

func TestSynthesizePromptContents(t *testing.T) {
	fc := &fakeClient{reply: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(`{}`), nil
	}}
	s := New(fc, testAICfg(), testPipeCfg())

	_, _, err := s.Synthesize(context.Background(), testRecord(), nil)
	require.NoError(t, err)

	reqs := fc.captured()
	var holisticReq, competitionReq *anthropic.MessageRequest
	for i, req := range reqs {
		content := req.Messages[0].Content
		switch {
		case req.Model == "claude-sonnet-4-5-20250929":
			holisticReq = &reqs[i]
		case strings.Contains(content, `the "competition" section`):
			competitionReq = &reqs[i]
		}
	}

	require.NotNil(t, holisticReq)
	prompt := holisticReq.Messages[0].Content
	assert.Contains(t, prompt, "강남역")
	assert.Contains(t, prompt, "역삼1동")
	assert.Contains(t, prompt, "- 주거인구: 23,451명 (측정)")
	assert.Contains(t, prompt, "- 상가 임대료: 자료 없음")
	assert.Contains(t, prompt, "오피스 상권")
	assert.Contains(t, prompt, `"recommendation"`)
	require.Len(t, holisticReq.System, 1)
	require.NotNil(t, holisticReq.System[0].CacheControl)
	assert.Equal(t, "1h", holisticReq.System[0].CacheControl.TTL)

	require.NotNil(t, competitionReq)
	assert.Equal(t, "claude-haiku-4-5-20251001", competitionReq.Model)
	prompt = competitionReq.Messages[0].Content
	assert.Contains(t, prompt, "- 카페 점포 수: 15개 (인접 2개동 평균)")
	// Cross-referenced sibling indicator.
	assert.Contains(t, prompt, "- 주거인구: 23,451명 (측정)")
	assert.Contains(t, prompt, `"saturation"`)
	assert.NotContains(t, prompt, `"recommendation"`)
}

func TestSynthesizeEnrichmentFailureDegrades(t *testing.T) {
	fc := &fakeClient{reply: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		if strings.Contains(req.Messages[0].Content, `the "rent" section`) {
			return nil, errors.New("overloaded")
		}
		return textResponse(`{"ok": true}`), nil
	}}
	s := New(fc, testAICfg(), testPipeCfg())
	var nc notifyCollector

	holistic, enrichments, err := s.Synthesize(context.Background(), testRecord(), nc.notify)

	require.NoError(t, err)
	assert.NotEmpty(t, holistic.Text)
	assert.Len(t, enrichments, len(model.AllSections)-1)
	for _, e := range enrichments {
		assert.NotEqual(t, model.SectionRent, e.Section)
	}
	// The failed call still reports progress.
	tasks := nc.all()
	assert.Len(t, tasks, s.CallCount())
	assert.Contains(t, tasks, "enrich-rent")
	// One retry for the failing section.
	assert.Len(t, fc.captured(), s.CallCount()+1)
}

func TestSynthesizeHolisticFailureDegrades(t *testing.T) {
	fc := &fakeClient{reply: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		if req.Model == "claude-sonnet-4-5-20250929" {
			return nil, errors.New("overloaded")
		}
		return textResponse(`{"ok": true}`), nil
	}}
	s := New(fc, testAICfg(), testPipeCfg())

	holistic, enrichments, err := s.Synthesize(context.Background(), testRecord(), nil)

	require.NoError(t, err)
	assert.Empty(t, holistic.Text)
	assert.Len(t, enrichments, len(model.AllSections))
}

func TestSynthesizeRetries(t *testing.T) {
	var sonnetCalls atomic.Int32
	fc := &fakeClient{reply: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		if req.Model == "claude-sonnet-4-5-20250929" {
			if sonnetCalls.Add(1) == 1 {
				return nil, errors.New("transient")
			}
			return textResponse(`{"overview": {}}`), nil
		}
		return textResponse(`{}`), nil
	}}
	s := New(fc, testAICfg(), testPipeCfg())

	holistic, _, err := s.Synthesize(context.Background(), testRecord(), nil)

	require.NoError(t, err)
	assert.Equal(t, `{"overview": {}}`, holistic.Text)
	assert.Equal(t, int32(2), sonnetCalls.Load())
}

func TestSynthesizeCancelledContext(t *testing.T) {
	fc := &fakeClient{reply: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, context.Canceled
	}}
	s := New(fc, testAICfg(), testPipeCfg())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	holistic, enrichments, err := s.Synthesize(ctx, testRecord(), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, holistic.Text)
	assert.Empty(t, enrichments)
}

func TestCallCount(t *testing.T) {
	s := New(&fakeClient{}, testAICfg(), testPipeCfg())
	assert.Equal(t, 1+len(model.AllSections), s.CallCount())
}

func TestComma(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-9876543, "-9,876,543"},
		{21300.4, "21,300"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, comma(tt.in))
	}
}

func TestDigest(t *testing.T) {
	rec := testRecord()

	got := digest(rec, []model.IndicatorKey{
		model.IndicatorResidents,
		model.IndicatorCafes,
		model.IndicatorRent,
	})

	want := "- 주거인구: 23,451명 (측정)\n" +
		"- 카페 점포 수: 15개 (인접 2개동 평균)\n" +
		"- 상가 임대료: 자료 없음"
	assert.Equal(t, want, got)
}

func TestSkeletonsAreValidJSON(t *testing.T) {
	var full map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(holisticSkeleton), &full))
	assert.Len(t, full, len(model.AllSections))
	assert.Contains(t, full["overview"], "summary")
	assert.Contains(t, full["overview"], "character")
	assert.Contains(t, full["overview"], "highlights")

	var section map[string]any
	require.NoError(t, json.Unmarshal([]byte(buildSectionSkeleton(model.SectionCompetition)), &section))
	assert.Len(t, section, len(model.SectionSchema[model.SectionCompetition]))
}
