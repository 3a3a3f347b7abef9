package boundary

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDongShapefile writes a one-record boundary shapefile covering the
// square 127.0..127.1 x 37.0..37.1.
func writeDongShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "dong.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	w.SetFields([]shp.Field{
		shp.StringField("ADM_CD", 12),
		shp.StringField("ADM_NM", 40),
	})
	w.Write(&shp.Polygon{
		Box:       shp.Box{MinX: 127.0, MinY: 37.0, MaxX: 127.1, MaxY: 37.1},
		NumParts:  1,
		NumPoints: 5,
		Parts:     []int32{0},
		Points: []shp.Point{
			{X: 127.0, Y: 37.0},
			{X: 127.0, Y: 37.1},
			{X: 127.1, Y: 37.1},
			{X: 127.1, Y: 37.0},
			{X: 127.0, Y: 37.0},
		},
	})
	w.WriteAttribute(0, 0, "1168064000")
	w.WriteAttribute(0, 1, "역삼1동")
	w.Close()
	return path
}

func zipMembers(t *testing.T, zipPath string, files ...string) {
	t.Helper()
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for _, f := range files {
		data, err := os.ReadFile(f)
		require.NoError(t, err)
		entry, err := zw.Create(filepath.Base(f))
		require.NoError(t, err)
		_, err = entry.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
}

func TestLoadPath_ZipArchive(t *testing.T) {
	dir := t.TempDir()
	shpPath := writeDongShapefile(t, dir)
	members, err := filepath.Glob(strings.TrimSuffix(shpPath, ".shp") + ".*")
	require.NoError(t, err)
	zipPath := filepath.Join(dir, "boundary.zip")
	zipMembers(t, zipPath, members...)

	features, err := LoadPath(zipPath)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "1168064000", features[0].Unit.Code)
	assert.Equal(t, "역삼1동", features[0].Unit.Name)

	idx := NewIndex(features)
	unit, ok := idx.Locate(37.05, 127.05)
	require.True(t, ok)
	assert.Equal(t, "1168064000", unit.Code)
}

func TestLoadPath_ZipWithoutShapefile(t *testing.T) {
	dir := t.TempDir()
	readme := filepath.Join(dir, "readme.txt")
	require.NoError(t, os.WriteFile(readme, []byte("경계 자료 안내"), 0o644))
	zipPath := filepath.Join(dir, "empty.zip")
	zipMembers(t, zipPath, readme)

	_, err := LoadPath(zipPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .shp member")
}

func TestLoadPath_PlainShapefile(t *testing.T) {
	dir := t.TempDir()
	features, err := LoadPath(writeDongShapefile(t, dir))
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "1168064000", features[0].Unit.Code)
}
