package model

// SynthesisKind distinguishes the one holistic generation call from the
// section-scoped enrichment calls.
type SynthesisKind string

const (
	SynthesisHolistic   SynthesisKind = "holistic"
	SynthesisEnrichment SynthesisKind = "enrichment"
)

// SynthesisResponse carries the raw text of one generation call. It is
// handed to the repair ladder as-is; nothing downstream re-reads it after
// a RepairedFragment exists.
type SynthesisResponse struct {
	Kind    SynthesisKind
	Section ReportSection // set for enrichment responses
	Text    string
	Model   string
}

// Repair tiers. TierClean means the text parsed as-is, positive tiers name
// the ladder step that recovered it, TierExtracted means best-effort field
// extraction after every structural repair failed.
const (
	TierClean     = 0
	TierComma     = 1
	TierControl   = 2
	TierTruncated = 3
	TierExtracted = -1
)

// RepairedFragment is the parse-recovery result for one synthesis response:
// a generic JSON tree plus the tier that produced it.
type RepairedFragment struct {
	Tree map[string]any
	Tier int
}

// Empty reports whether repair recovered nothing usable.
func (f RepairedFragment) Empty() bool {
	return len(f.Tree) == 0
}
