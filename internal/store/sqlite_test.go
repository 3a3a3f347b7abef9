package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beanraft/district-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_OpenMissingDirectory(t *testing.T) {
	_, err := NewSQLite(filepath.Join(t.TempDir(), "no-such-dir", "test.db"))
	require.Error(t, err)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_ReportSectionTypesSurviveRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "강남역", model.HintAuto)
	require.NoError(t, err)

	rep := model.NewReport("강남역")
	sec := rep.Section(model.SectionCompetition)
	sec["cafes"] = float64(15)
	sec["saturation"] = "카페 밀도가 높은 편이다."
	sec["chains"] = []string{"스타벅스", "투썸플레이스"}
	require.NoError(t, st.SaveReport(ctx, run.ID, rep))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Report)

	stored := got.Report.Sections[model.SectionCompetition]
	require.NotNil(t, stored)
	assert.Equal(t, float64(15), stored["cafes"])
	assert.Equal(t, "카페 밀도가 높은 편이다.", stored["saturation"])
	// JSON round-trips string slices as []any.
	chains, ok := stored["chains"].([]any)
	require.True(t, ok)
	require.Len(t, chains, 2)
	assert.Equal(t, "스타벅스", chains[0])
}

func TestPlaceCache_Adapter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	cache := NewPlaceCache(st, time.Hour)

	got, ok := cache.Get(ctx, "station:강남역")
	assert.False(t, ok)
	assert.Nil(t, got)

	place := &model.ResolvedPlace{
		Name: "강남역",
		Lat:  37.497952,
		Lon:  127.027625,
		Unit: model.AdminUnit{Code: "1123051", Name: "역삼1동"},
	}
	cache.Put(ctx, "station:강남역", place)

	got, ok = cache.Get(ctx, "station:강남역")
	require.True(t, ok)
	require.NotNil(t, got)
	assert.Equal(t, "강남역", got.Name)
	assert.Equal(t, "역삼1동", got.Unit.Name)
}

func TestPlaceCache_ExpiredEntryMisses(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	cache := NewPlaceCache(st, -time.Hour)

	cache.Put(ctx, "station:종각역", &model.ResolvedPlace{Name: "종각역", Lat: 37.570161, Lon: 126.982923})

	got, ok := cache.Get(ctx, "station:종각역")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestPlaceCache_StoreFailureDegradesToMiss(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Close())
	cache := NewPlaceCache(st, time.Hour)

	// Closed store errors on read and write; the cache swallows both.
	cache.Put(context.Background(), "station:강남역", &model.ResolvedPlace{Name: "강남역"})
	got, ok := cache.Get(context.Background(), "station:강남역")
	assert.False(t, ok)
	assert.Nil(t, got)
}
