package place

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/beanraft/district-cli/internal/model"
	"github.com/beanraft/district-cli/internal/refdata"
	"github.com/beanraft/district-cli/pkg/kakao"
	"github.com/beanraft/district-cli/pkg/naver"
)

// Cache remembers successful resolutions between runs.
type Cache interface {
	Get(ctx context.Context, key string) (*model.ResolvedPlace, bool)
	Put(ctx context.Context, key string, place *model.ResolvedPlace)
}

// Resolver maps free-text queries to administrative dongs. The cascade is
// fixed: curated gazetteer, geocoding over fixed query expansions, then
// place search with re-geocoding. Short names matching more than one
// province come back as a Disambiguation, never a silent pick.
type Resolver struct {
	gaz       *Gazetteer
	divisions *refdata.Table
	geocoder  kakao.Client
	searcher  naver.Client
	cache     Cache
}

// ResolverOption configures optional resolver behavior.
type ResolverOption func(*Resolver)

// WithCache attaches a resolution cache.
func WithCache(c Cache) ResolverOption {
	return func(r *Resolver) {
		r.cache = c
	}
}

// NewResolver creates a Resolver over the given lookup sources.
func NewResolver(gaz *Gazetteer, divisions *refdata.Table, geocoder kakao.Client, searcher naver.Client, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		gaz:       gaz,
		divisions: divisions,
		geocoder:  geocoder,
		searcher:  searcher,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the cascade. Exactly one of the three results is set: a
// resolved place, a disambiguation set, or an error. A NotFoundError is
// terminal for the query; transient provider failures only move the
// cascade along.
func (r *Resolver) Resolve(ctx context.Context, q model.PlaceQuery) (*model.ResolvedPlace, *model.Disambiguation, error) {
	text := Normalize(q.Text)
	if text == "" {
		return nil, nil, &model.NotFoundError{Query: q.Text}
	}
	hint := q.Hint
	if hint == "" {
		hint = model.HintAuto
	}

	cacheKey := string(hint) + ":" + text
	if r.cache != nil {
		if place, ok := r.cache.Get(ctx, cacheKey); ok {
			zap.L().Debug("place: cache hit", zap.String("query", text))
			return place, nil, nil
		}
	}

	// Curated landmarks first. A station name resolves here without a
	// single geocoding call.
	place, dis := r.fromGazetteer(text)
	if dis != nil {
		return nil, dis, nil
	}
	if place != nil {
		r.remember(ctx, cacheKey, place)
		return place, nil, nil
	}

	// Bare dong names spanning provinces must disambiguate before any
	// geocoder gets a chance to silently pick one.
	if dis := r.dongAmbiguity(text); dis != nil {
		return nil, dis, nil
	}

	if hint == model.HintExact {
		if place := r.fromDivisions(text); place != nil {
			r.remember(ctx, cacheKey, place)
			return place, nil, nil
		}
		return nil, nil, &model.NotFoundError{Query: q.Text}
	}

	for _, cand := range Expand(text, r.divisions) {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "place: resolve")
		}
		addr, err := r.geocoder.GeocodeAddress(ctx, cand)
		if err != nil {
			zap.L().Warn("place: geocode failed",
				zap.String("candidate", cand),
				zap.Error(err),
			)
			continue
		}
		if addr.Matched {
			place := r.fromAddress(text, addr)
			r.remember(ctx, cacheKey, place)
			return place, nil, nil
		}
	}

	// Division table keeps exact dong queries working when the geocoder
	// is unreachable.
	if place := r.fromDivisions(text); place != nil {
		r.remember(ctx, cacheKey, place)
		return place, nil, nil
	}

	if hint != model.HintDistrict {
		if err := ctx.Err(); err != nil {
			return nil, nil, eris.Wrap(err, "place: resolve")
		}
		if place := r.fromSearch(ctx, text); place != nil {
			r.remember(ctx, cacheKey, place)
			return place, nil, nil
		}
	}

	return nil, nil, &model.NotFoundError{Query: q.Text}
}

func (r *Resolver) remember(ctx context.Context, key string, place *model.ResolvedPlace) {
	if r.cache != nil {
		r.cache.Put(ctx, key, place)
	}
}

// fromGazetteer resolves curated landmark names. Names present in more
// than one province return a Disambiguation.
func (r *Resolver) fromGazetteer(text string) (*model.ResolvedPlace, *model.Disambiguation) {
	entries := r.gaz.Lookup(text)
	if len(entries) == 0 && !strings.ContainsAny(text, " 0123456789") {
		entries = r.gaz.Lookup(text + "역")
	}
	if len(entries) == 0 {
		return nil, nil
	}

	provinces := make(map[string]bool)
	for _, e := range entries {
		provinces[e.Province] = true
	}
	if len(provinces) > 1 {
		dis := &model.Disambiguation{Query: text}
		for _, e := range entries {
			dis.Candidates = append(dis.Candidates, model.PlaceCandidate{
				Name:     e.Name,
				Province: e.Province,
				Lat:      e.Lat,
				Lon:      e.Lon,
			})
		}
		return nil, dis
	}

	e := entries[0]
	return &model.ResolvedPlace{
		Name:       e.Name,
		Lat:        e.Lat,
		Lon:        e.Lon,
		Unit:       model.AdminUnit{Code: e.Code, Name: e.Dong},
		Parents:    []model.AdminUnit{{Name: e.Province}, {Name: e.District}},
		Confidence: model.ConfidenceExact,
	}, nil
}

// dongAmbiguity returns a Disambiguation for bare dong names found in
// more than one province.
func (r *Resolver) dongAmbiguity(text string) *model.Disambiguation {
	if strings.Contains(text, " ") || !strings.HasSuffix(text, "동") {
		return nil
	}
	ds := r.divisions.ByName(text)
	if len(ds) == 0 {
		ds = r.divisions.ByBase(text)
	}
	provinces := make(map[string]bool)
	for _, d := range ds {
		provinces[d.Province] = true
	}
	if len(provinces) < 2 {
		return nil
	}

	dis := &model.Disambiguation{Query: text}
	for _, d := range ds {
		dis.Candidates = append(dis.Candidates, model.PlaceCandidate{
			Name:     d.District + " " + d.Name,
			Province: d.Province,
		})
	}
	return dis
}

// fromAddress builds a place from a geocoder match, backfilling the unit
// code when the dong name pins down a single division.
func (r *Resolver) fromAddress(text string, addr *kakao.Address) *model.ResolvedPlace {
	place := &model.ResolvedPlace{
		Name:       text,
		Address:    addr.FormattedAddress,
		Lat:        addr.Lat,
		Lon:        addr.Lon,
		Confidence: model.ConfidenceGeocoded,
	}
	for _, p := range []string{addr.Province, addr.District} {
		if p != "" {
			place.Parents = append(place.Parents, model.AdminUnit{Name: p})
		}
	}
	if addr.Dong != "" {
		place.Unit = model.AdminUnit{Name: addr.Dong}
		if d, ok := r.divisionFor(addr.Dong, addr.District); ok {
			place.Unit.Code = d.Code
		}
	}
	return place
}

// divisionFor finds the single division matching a dong name within a
// district, if there is exactly one.
func (r *Resolver) divisionFor(dong, district string) (refdata.Division, bool) {
	var match refdata.Division
	var count int
	for _, d := range r.divisions.ByName(dong) {
		if district == "" || d.District == district {
			match = d
			count++
		}
	}
	return match, count == 1
}

// fromDivisions resolves text naming an administrative dong exactly. The
// result carries no coordinate; coordinate-keyed indicators degrade.
func (r *Resolver) fromDivisions(text string) *model.ResolvedPlace {
	if strings.Contains(text, " ") || !strings.HasSuffix(text, "동") {
		return nil
	}
	ds := r.divisions.ByName(text)
	if len(ds) != 1 {
		return nil
	}
	d := ds[0]
	return &model.ResolvedPlace{
		Name:       d.Name,
		Unit:       model.AdminUnit{Code: d.Code, Name: d.Name},
		Parents:    []model.AdminUnit{{Name: d.Province}, {Name: d.District}},
		Confidence: model.ConfidenceExact,
	}
}

// fromSearch resolves named places the geocoder cannot parse, preferring
// a re-geocoded candidate address over the candidate's own coordinate.
func (r *Resolver) fromSearch(ctx context.Context, text string) *model.ResolvedPlace {
	places, err := r.searcher.SearchLocal(ctx, text)
	if err != nil {
		zap.L().Warn("place: search failed",
			zap.String("query", text),
			zap.Error(err),
		)
		return nil
	}
	if len(places) == 0 {
		return nil
	}

	best := places[0]
	for _, addrText := range []string{best.RoadAddress, best.Address} {
		if addrText == "" {
			continue
		}
		addr, err := r.geocoder.GeocodeAddress(ctx, addrText)
		if err != nil || !addr.Matched {
			continue
		}
		place := r.fromAddress(best.Title, addr)
		place.Confidence = model.ConfidenceApproximate
		return place
	}

	lat, lon := best.Coordinate()
	if lat == 0 && lon == 0 {
		return nil
	}
	address := best.RoadAddress
	if address == "" {
		address = best.Address
	}
	return &model.ResolvedPlace{
		Name:       best.Title,
		Address:    address,
		Lat:        lat,
		Lon:        lon,
		Confidence: model.ConfidenceApproximate,
	}
}
