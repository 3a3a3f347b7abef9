package model

import (
	"sync"
	"time"
)

// ProviderResult records one provider call for one administrative unit.
// It is immutable once created.
type ProviderResult struct {
	Provider string        `json:"provider"`
	UnitCode string        `json:"unit_code,omitempty"`
	OK       bool          `json:"ok"`
	Payload  any           `json:"payload,omitempty"`
	Latency  time.Duration `json:"latency_ms"`
	Err      string        `json:"err,omitempty"`
}

// AggregateRecord accumulates provider results and normalized indicators
// for one request. It is owned exclusively by that request; the mutex only
// serializes the request's own worker pool.
//
// Merge is commutative: the indicator set is identical for any arrival
// order of provider results.
type AggregateRecord struct {
	Place     ResolvedPlace `json:"place"`
	Unit      AdminUnit     `json:"unit"`
	Neighbors []AdminUnit   `json:"neighbors,omitempty"`

	mu         sync.Mutex
	Results    map[string]ProviderResult  `json:"results"`
	Indicators map[IndicatorKey]Indicator `json:"indicators"`
	Finalized  bool                       `json:"finalized"`
}

// NewAggregateRecord creates an empty record for the resolved place.
func NewAggregateRecord(place ResolvedPlace) *AggregateRecord {
	return &AggregateRecord{
		Place:      place,
		Results:    make(map[string]ProviderResult),
		Indicators: make(map[IndicatorKey]Indicator),
	}
}

// Record stores a provider call outcome. Results are keyed by provider
// name plus unit code so neighbor queries never collide with the primary.
func (a *AggregateRecord) Record(res ProviderResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := res.Provider
	if res.UnitCode != "" {
		key += ":" + res.UnitCode
	}
	a.Results[key] = res
}

// SetIndicator merges one normalized indicator. Later writes for the same
// key only win when they carry stronger provenance (measured > estimated >
// absent); ties keep the existing value, so merge order cannot change the
// outcome for distinct providers (each key has exactly one owning provider,
// neighbor means replace only absent/zero values — see ReplaceIndicator).
func (a *AggregateRecord) SetIndicator(in Indicator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	existing, ok := a.Indicators[in.Key]
	if ok && provenanceRank(existing.Provenance) >= provenanceRank(in.Provenance) {
		return
	}
	a.Indicators[in.Key] = in
}

// ReplaceIndicator unconditionally overwrites an indicator. Used by
// neighbor expansion, which by contract only runs for keys whose primary
// value was zero or absent.
func (a *AggregateRecord) ReplaceIndicator(in Indicator) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Indicators[in.Key] = in
}

// Indicator returns the indicator for key and whether it is present.
func (a *AggregateRecord) Indicator(key IndicatorKey) (Indicator, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	in, ok := a.Indicators[key]
	return in, ok
}

// Measured returns the indicator for key only when its provenance is
// measured.
func (a *AggregateRecord) Measured(key IndicatorKey) (Indicator, bool) {
	in, ok := a.Indicator(key)
	if !ok || in.Provenance != ProvenanceMeasured {
		return Indicator{}, false
	}
	return in, true
}

// MeasuredCount reports how many indicators carry measured provenance.
func (a *AggregateRecord) MeasuredCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	var n int
	for _, in := range a.Indicators {
		if in.Provenance == ProvenanceMeasured {
			n++
		}
	}
	return n
}

// FillAbsent writes an absent placeholder for every catalog key that has
// no indicator yet, then marks the record finalized.
func (a *AggregateRecord) FillAbsent() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, key := range AllIndicators {
		if _, ok := a.Indicators[key]; !ok {
			a.Indicators[key] = Indicator{
				Key:        key,
				Unit:       UnitFor(key),
				Provenance: ProvenanceAbsent,
			}
		}
	}
	a.Finalized = true
}

func provenanceRank(p Provenance) int {
	switch p {
	case ProvenanceMeasured:
		return 2
	case ProvenanceEstimated:
		return 1
	default:
		return 0
	}
}
