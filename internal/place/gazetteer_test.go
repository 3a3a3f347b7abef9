package place

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGazetteer(t *testing.T) {
	g, err := LoadGazetteer()
	require.NoError(t, err)
	assert.NotEmpty(t, g.Version())

	entries := g.Lookup("강남역")
	require.Len(t, entries, 1)
	assert.Equal(t, "1123051", entries[0].Code)
	assert.Equal(t, "역삼1동", entries[0].Dong)
	assert.Equal(t, "station", entries[0].Kind)
}

func TestGazetteerAliasLookup(t *testing.T) {
	g, err := LoadGazetteer()
	require.NoError(t, err)

	direct := g.Lookup("홍대입구역")
	viaAlias := g.Lookup("홍대")
	require.Len(t, direct, 1)
	require.Len(t, viaAlias, 1)
	assert.Equal(t, direct[0].Code, viaAlias[0].Code)
}

func TestGazetteerDuplicateNameKeepsFileOrder(t *testing.T) {
	g, err := LoadGazetteer()
	require.NoError(t, err)

	entries := g.Lookup("시청역")
	require.Len(t, entries, 2)
	assert.Equal(t, "서울특별시", entries[0].Province)
	assert.Equal(t, "부산광역시", entries[1].Province)
}

func TestParseGazetteerRejectsInvalid(t *testing.T) {
	_, err := parseGazetteer([]byte("entries: []"))
	assert.Error(t, err)

	_, err = parseGazetteer([]byte("version: \"1\"\nentries:\n  - name: 어딘가\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing name or code")
}
