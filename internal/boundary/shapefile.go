// Package boundary loads administrative-dong boundary shapefiles into an
// immutable in-memory index. The index is the local fallback for
// coordinate→dong lookups and neighbor listings when SGIS is unavailable.
package boundary

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/beanraft/district-cli/internal/model"
)

// Feature is one dong boundary record: its administrative unit plus the
// polygon in WGS84 lon/lat order.
type Feature struct {
	Unit    model.AdminUnit
	Polygon *geom.MultiPolygon
}

// Attribute field candidates, checked in order. Ministry exports name the
// dong code ADM_CD (행정동) or EMD_CD (법정동) depending on the product.
var (
	codeFields = []string{"adm_cd", "adm_dr_cd", "emd_cd"}
	nameFields = []string{"adm_nm", "adm_dr_nm", "emd_kor_nm", "emd_nm"}
)

// LoadShapefile reads dong boundary polygons and their code/name attributes.
// Records without a polygon or a unit code are skipped.
func LoadShapefile(path string) ([]Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	codeIdx, ok := findField(fieldIdx, codeFields)
	if !ok {
		return nil, eris.Errorf("boundary: no unit-code field in %s (looked for %v)", path, codeFields)
	}
	nameIdx, hasName := findField(fieldIdx, nameFields)

	var features []Feature
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		mp := multiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}

		code := attribute(reader, codeIdx)
		if code == "" {
			skipped++
			continue
		}
		var name string
		if hasName {
			name = attribute(reader, nameIdx)
		}

		features = append(features, Feature{
			Unit:    model.AdminUnit{Code: code, Name: name},
			Polygon: mp,
		})
	}

	if skipped > 0 {
		zap.L().Debug("boundary: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	if len(features) == 0 {
		return nil, eris.Errorf("boundary: no usable polygon records in %s", path)
	}
	return features, nil
}

func findField(fieldIdx map[string]int, candidates []string) (int, bool) {
	for _, name := range candidates {
		if idx, ok := fieldIdx[name]; ok {
			return idx, true
		}
	}
	return 0, false
}

func attribute(reader *shp.Reader, idx int) string {
	val := strings.TrimRight(reader.Attribute(idx), "\x00")
	return strings.TrimSpace(val)
}

// multiPolygon converts a shapefile Polygon to a geom.MultiPolygon, one
// ring per part. Ring roles are not classified here; containment uses the
// even-odd rule, which treats hole rings correctly either way.
func multiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("boundary: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("boundary: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
