// Package refdata holds the versioned administrative division table. The
// table ships as an embedded snapshot and can be refreshed offline with
// the sync command; it is loaded once at startup and never mutated.
package refdata

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed snapshot.yaml
var embeddedSnapshot []byte

// Division is one administrative dong.
type Division struct {
	Code     string `yaml:"code"`
	Name     string `yaml:"name"`
	Province string `yaml:"province"`
	District string `yaml:"district"`
}

// Table is an immutable division lookup table.
type Table struct {
	version string
	byCode  map[string]Division
	byName  map[string][]Division
	byBase  map[string][]Division
}

type snapshot struct {
	Version   string     `yaml:"version"`
	Divisions []Division `yaml:"divisions"`
}

// Load parses the embedded snapshot.
func Load() (*Table, error) {
	return parse(embeddedSnapshot)
}

// LoadFile parses a snapshot from disk. Used when a synced snapshot
// replaces the embedded one.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: read snapshot %s", path)
	}
	return parse(data)
}

func parse(data []byte) (*Table, error) {
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrap(err, "refdata: parse snapshot")
	}
	if snap.Version == "" {
		return nil, eris.New("refdata: snapshot missing version")
	}
	if len(snap.Divisions) == 0 {
		return nil, eris.New("refdata: snapshot has no divisions")
	}

	t := &Table{
		version: snap.Version,
		byCode:  make(map[string]Division, len(snap.Divisions)),
		byName:  make(map[string][]Division),
		byBase:  make(map[string][]Division),
	}
	for _, d := range snap.Divisions {
		if d.Code == "" || d.Name == "" {
			return nil, eris.Errorf("refdata: division missing code or name: %+v", d)
		}
		if _, dup := t.byCode[d.Code]; dup {
			return nil, eris.Errorf("refdata: duplicate code %s", d.Code)
		}
		t.byCode[d.Code] = d
		t.byName[d.Name] = append(t.byName[d.Name], d)
		t.byBase[baseName(d.Name)] = append(t.byBase[baseName(d.Name)], d)
	}
	return t, nil
}

// baseName strips the 동 suffix and any numeric partition from a dong
// name, so 창신1동 and 창신2동 share the base 창신.
func baseName(name string) string {
	s := strings.TrimSuffix(name, "동")
	return strings.TrimRight(s, "0123456789")
}

// Version returns the snapshot version.
func (t *Table) Version() string {
	return t.version
}

// Len returns the number of divisions.
func (t *Table) Len() int {
	return len(t.byCode)
}

// ByCode looks up a division by its code.
func (t *Table) ByCode(code string) (Division, bool) {
	d, ok := t.byCode[code]
	return d, ok
}

// ByName returns every division carrying the given dong name, in stable
// province order. Dong names repeat across the country, so this can
// return more than one entry.
func (t *Table) ByName(name string) []Division {
	ds := append([]Division(nil), t.byName[name]...)
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Province != ds[j].Province {
			return ds[i].Province < ds[j].Province
		}
		return ds[i].Code < ds[j].Code
	})
	return ds
}

// ByBase returns the divisions sharing a dong's base name: a legal-dong
// query like 창신동 matches the administrative 창신1동 through 창신3동.
func (t *Table) ByBase(name string) []Division {
	ds := append([]Division(nil), t.byBase[baseName(name)]...)
	sort.Slice(ds, func(i, j int) bool {
		return ds[i].Code < ds[j].Code
	})
	return ds
}

// Provinces returns the distinct provinces containing the given dong name,
// matching on base name.
func (t *Table) Provinces(name string) []string {
	ds := t.ByName(name)
	if len(ds) == 0 {
		ds = t.ByBase(name)
	}
	seen := make(map[string]bool)
	var out []string
	for _, d := range ds {
		if !seen[d.Province] {
			seen[d.Province] = true
			out = append(out, d.Province)
		}
	}
	return out
}
