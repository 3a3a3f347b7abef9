package boundary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/beanraft/district-cli/internal/model"
)

func polygonFromRings(t *testing.T, rings ...[]float64) *geom.MultiPolygon {
	t.Helper()
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for _, flat := range rings {
		poly := geom.NewPolygon(geom.XY)
		require.NoError(t, poly.Push(geom.NewLinearRingFlat(geom.XY, flat)))
		require.NoError(t, mp.Push(poly))
	}
	return mp
}

func squareRing(x, y, size float64) []float64 {
	return []float64{
		x, y,
		x + size, y,
		x + size, y + size,
		x, y + size,
		x, y,
	}
}

// Four unit squares: 가/나/다 in a row, 라 on top of 나. 라 touches 가 and
// 다 at single corners only.
func testFeatures(t *testing.T) []Feature {
	t.Helper()
	return []Feature{
		{Unit: model.AdminUnit{Code: "1111051", Name: "가동"}, Polygon: polygonFromRings(t, squareRing(0, 0, 1))},
		{Unit: model.AdminUnit{Code: "1111052", Name: "나동"}, Polygon: polygonFromRings(t, squareRing(1, 0, 1))},
		{Unit: model.AdminUnit{Code: "1111053", Name: "다동"}, Polygon: polygonFromRings(t, squareRing(2, 0, 1))},
		{Unit: model.AdminUnit{Code: "1111054", Name: "라동"}, Polygon: polygonFromRings(t, squareRing(1, 1, 1))},
	}
}

func TestIndex_Locate(t *testing.T) {
	idx := NewIndex(testFeatures(t))

	unit, ok := idx.Locate(0.5, 0.5)
	require.True(t, ok)
	assert.Equal(t, "1111051", unit.Code)
	assert.Equal(t, "가동", unit.Name)

	unit, ok = idx.Locate(0.5, 1.5)
	require.True(t, ok)
	assert.Equal(t, "1111052", unit.Code)

	unit, ok = idx.Locate(1.5, 1.5)
	require.True(t, ok)
	assert.Equal(t, "1111054", unit.Code)

	_, ok = idx.Locate(5, 5)
	assert.False(t, ok)
}

func TestIndex_LocateRespectsHoles(t *testing.T) {
	donut := Feature{
		Unit:    model.AdminUnit{Code: "2211051", Name: "도넛동"},
		Polygon: polygonFromRings(t, squareRing(10, 10, 4), squareRing(11, 11, 2)),
	}
	idx := NewIndex([]Feature{donut})

	// Between the outer ring and the hole.
	unit, ok := idx.Locate(10.5, 10.5)
	require.True(t, ok)
	assert.Equal(t, "2211051", unit.Code)

	// Inside the hole.
	_, ok = idx.Locate(12, 12)
	assert.False(t, ok)
}

func TestIndex_Adjacent(t *testing.T) {
	idx := NewIndex(testFeatures(t))

	// 나동 borders all three others.
	got := idx.Adjacent("1111052")
	require.Len(t, got, 3)
	assert.Equal(t, "1111051", got[0].Code)
	assert.Equal(t, "1111053", got[1].Code)
	assert.Equal(t, "1111054", got[2].Code)

	// 가동 borders only 나동.
	got = idx.Adjacent("1111051")
	require.Len(t, got, 1)
	assert.Equal(t, "1111052", got[0].Code)

	assert.Empty(t, idx.Adjacent("9999999"))
}

func TestIndex_CornerTouchIsNotAdjacency(t *testing.T) {
	idx := NewIndex(testFeatures(t))

	// 다동 and 라동 share exactly one vertex at (2,1).
	for _, unit := range idx.Adjacent("1111053") {
		assert.NotEqual(t, "1111054", unit.Code)
	}
	for _, unit := range idx.Adjacent("1111054") {
		assert.NotEqual(t, "1111053", unit.Code)
	}
}

func TestIndex_UnitsSorted(t *testing.T) {
	idx := NewIndex(testFeatures(t))
	assert.Equal(t, 4, idx.Len())

	units := idx.Units()
	require.Len(t, units, 4)
	for i := 1; i < len(units); i++ {
		assert.Less(t, units[i-1].Code, units[i].Code)
	}
}
