package boundary

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/beanraft/district-cli/internal/model"
)

// minSharedVertices is the adjacency threshold: two dongs whose boundaries
// share at least this many vertices border each other. A single shared
// vertex is a corner touch, not a border.
const minSharedVertices = 2

type bbox struct {
	minX, minY, maxX, maxY float64
}

func (b bbox) contains(x, y float64) bool {
	return x >= b.minX && x <= b.maxX && y >= b.minY && y <= b.maxY
}

// Index answers point-in-polygon and adjacency queries over a loaded
// boundary set. It is immutable after construction and safe for
// concurrent use.
type Index struct {
	features []Feature
	bboxes   []bbox
	adjacent map[string][]model.AdminUnit
}

// NewIndex builds the lookup structures: per-feature bounding boxes and
// the shared-vertex adjacency table.
func NewIndex(features []Feature) *Index {
	idx := &Index{
		features: features,
		bboxes:   make([]bbox, len(features)),
	}
	for i, f := range features {
		idx.bboxes[i] = boundsOf(f.Polygon)
	}
	idx.adjacent = buildAdjacency(features)

	zap.L().Info("boundary: index built",
		zap.Int("features", len(features)),
		zap.Int("units_with_neighbors", len(idx.adjacent)),
	)
	return idx
}

// Len returns the number of indexed features.
func (x *Index) Len() int {
	return len(x.features)
}

// Units lists every indexed administrative unit, sorted by code.
func (x *Index) Units() []model.AdminUnit {
	units := make([]model.AdminUnit, 0, len(x.features))
	for _, f := range x.features {
		units = append(units, f.Unit)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Code < units[j].Code })
	return units
}

// Locate returns the dong containing the coordinate. On a shared border
// the first matching feature in file order wins.
func (x *Index) Locate(lat, lon float64) (model.AdminUnit, bool) {
	for i, f := range x.features {
		if !x.bboxes[i].contains(lon, lat) {
			continue
		}
		if containsPoint(f.Polygon, lon, lat) {
			return f.Unit, true
		}
	}
	return model.AdminUnit{}, false
}

// Adjacent returns the dongs bordering the given unit code, sorted by
// code. Unknown codes return nil.
func (x *Index) Adjacent(code string) []model.AdminUnit {
	return x.adjacent[code]
}

func boundsOf(mp *geom.MultiPolygon) bbox {
	b := bbox{
		minX: math.Inf(1), minY: math.Inf(1),
		maxX: math.Inf(-1), maxY: math.Inf(-1),
	}
	eachRing(mp, func(flat []float64) {
		for i := 0; i < len(flat); i += 2 {
			b.minX = math.Min(b.minX, flat[i])
			b.maxX = math.Max(b.maxX, flat[i])
			b.minY = math.Min(b.minY, flat[i+1])
			b.maxY = math.Max(b.maxY, flat[i+1])
		}
	})
	return b
}

// containsPoint ray-casts with the even-odd rule across every ring, so
// hole rings subtract regardless of orientation or part grouping.
func containsPoint(mp *geom.MultiPolygon, x, y float64) bool {
	inside := false
	eachRing(mp, func(flat []float64) {
		for i, j := 0, len(flat)-2; i < len(flat); i += 2 {
			x1, y1 := flat[i], flat[i+1]
			x2, y2 := flat[j], flat[j+1]
			if (y1 > y) != (y2 > y) && x < (x2-x1)*(y-y1)/(y2-y1)+x1 {
				inside = !inside
			}
			j = i
		}
	})
	return inside
}

func eachRing(mp *geom.MultiPolygon, fn func(flat []float64)) {
	for pi := 0; pi < mp.NumPolygons(); pi++ {
		poly := mp.Polygon(pi)
		for ri := 0; ri < poly.NumLinearRings(); ri++ {
			if flat := poly.LinearRing(ri).FlatCoords(); len(flat) >= 6 {
				fn(flat)
			}
		}
	}
}

// vertexKey quantizes a coordinate to a 1e-7 degree grid (about a
// centimeter) so float noise cannot split a shared vertex.
type vertexKey struct {
	x, y int64
}

func quantize(c float64) int64 {
	return int64(math.Round(c * 1e7))
}

func buildAdjacency(features []Feature) map[string][]model.AdminUnit {
	unitsByCode := make(map[string]model.AdminUnit, len(features))
	vertexOwners := make(map[vertexKey][]string)

	for _, f := range features {
		code := f.Unit.Code
		unitsByCode[code] = f.Unit

		seen := make(map[vertexKey]struct{})
		eachRing(f.Polygon, func(flat []float64) {
			for i := 0; i < len(flat); i += 2 {
				k := vertexKey{quantize(flat[i]), quantize(flat[i+1])}
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				vertexOwners[k] = append(vertexOwners[k], code)
			}
		})
	}

	counts := make(map[[2]string]int)
	for _, owners := range vertexOwners {
		if len(owners) < 2 {
			continue
		}
		for a := 0; a < len(owners); a++ {
			for b := a + 1; b < len(owners); b++ {
				ca, cb := owners[a], owners[b]
				if ca == cb {
					continue
				}
				if ca > cb {
					ca, cb = cb, ca
				}
				counts[[2]string{ca, cb}]++
			}
		}
	}

	adjacent := make(map[string][]model.AdminUnit)
	for pair, n := range counts {
		if n < minSharedVertices {
			continue
		}
		adjacent[pair[0]] = append(adjacent[pair[0]], unitsByCode[pair[1]])
		adjacent[pair[1]] = append(adjacent[pair[1]], unitsByCode[pair[0]])
	}
	for code := range adjacent {
		sort.Slice(adjacent[code], func(i, j int) bool {
			return adjacent[code][i].Code < adjacent[code][j].Code
		})
	}
	return adjacent
}
