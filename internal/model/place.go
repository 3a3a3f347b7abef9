package model

import (
	"errors"
	"fmt"
)

// PrecisionHint narrows how a free-text place query should be interpreted.
type PrecisionHint string

const (
	// HintAuto lets the resolver pick the strategy cascade on its own.
	HintAuto PrecisionHint = "auto"
	// HintExact restricts resolution to gazetteer exact matches.
	HintExact PrecisionHint = "exact"
	// HintDistrict biases expansions toward administrative-district queries.
	HintDistrict PrecisionHint = "district"
)

// ResolveConfidence is the tier of a successful place resolution.
type ResolveConfidence string

const (
	// ConfidenceExact means the query named a curated landmark or an
	// administrative dong directly.
	ConfidenceExact ResolveConfidence = "exact"
	// ConfidenceGeocoded means a structured geocoder matched the query or
	// one of its expansions.
	ConfidenceGeocoded ResolveConfidence = "geocoded"
	// ConfidenceApproximate means the coordinate came from a free-text
	// place-search candidate rather than a geocoder match.
	ConfidenceApproximate ResolveConfidence = "approximate"
)

// PlaceQuery is the raw resolution request. It lives only until the
// resolver returns.
type PlaceQuery struct {
	Text string        `json:"text"`
	Hint PrecisionHint `json:"hint,omitempty"`
}

// AdminUnit identifies one administrative division (province, district, or
// dong). Code is the statistical administrative-dong code when known.
type AdminUnit struct {
	Code string `json:"code,omitempty"`
	Name string `json:"name"`
}

// ResolvedPlace is the canonical output of place resolution. It is
// read-only for every downstream component.
type ResolvedPlace struct {
	// Name is the display name of the resolved place (station, landmark,
	// or formatted address).
	Name string `json:"name"`
	// Address is the geocoder's formatted address when available.
	Address string `json:"address,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	// Unit is the canonical administrative dong when the resolution source
	// already knows it (gazetteer entries do); the aggregator's unit-code
	// lookup remains authoritative.
	Unit AdminUnit `json:"unit,omitempty"`
	// Parents is the enclosing unit chain, largest first
	// (province, district).
	Parents []AdminUnit `json:"parents,omitempty"`
	// Adjacent lists neighboring dongs when the resolution source carries
	// them (curated gazetteer entries only).
	Adjacent   []AdminUnit       `json:"adjacent,omitempty"`
	Confidence ResolveConfidence `json:"confidence"`
}

// PlaceCandidate is one entry of a Disambiguation set.
type PlaceCandidate struct {
	Name     string  `json:"name"`
	Province string  `json:"province"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// Disambiguation is returned when a short name matches well-known places
// in more than one province. The caller must re-invoke with a selection.
type Disambiguation struct {
	Query      string           `json:"query"`
	Candidates []PlaceCandidate `json:"candidates"`
}

// NotFoundError reports that no resolution strategy produced a place.
// It is terminal for the request but never aborts unrelated work.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("place not found: %q", e.Query)
}

// IsNotFound reports whether err wraps a place-resolution NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
