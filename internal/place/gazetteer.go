package place

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed gazetteer.yaml
var embeddedGazetteer []byte

// Entry is one curated landmark: a station, commercial area, or other
// well-known place name mapped to its administrative dong.
type Entry struct {
	Name     string   `yaml:"name"`
	Aliases  []string `yaml:"aliases"`
	Kind     string   `yaml:"kind"`
	Province string   `yaml:"province"`
	District string   `yaml:"district"`
	Dong     string   `yaml:"dong"`
	Code     string   `yaml:"code"`
	Lat      float64  `yaml:"lat"`
	Lon      float64  `yaml:"lon"`
}

// Gazetteer is the curated landmark table. Lookups are exact on the
// normalized name or any alias; entries sharing a name keep file order,
// most prominent first.
type Gazetteer struct {
	version string
	byName  map[string][]Entry
}

type gazetteerFile struct {
	Version string  `yaml:"version"`
	Entries []Entry `yaml:"entries"`
}

// LoadGazetteer parses the embedded landmark table.
func LoadGazetteer() (*Gazetteer, error) {
	return parseGazetteer(embeddedGazetteer)
}

func parseGazetteer(data []byte) (*Gazetteer, error) {
	var file gazetteerFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, eris.Wrap(err, "place: parse gazetteer")
	}
	if file.Version == "" {
		return nil, eris.New("place: gazetteer missing version")
	}

	g := &Gazetteer{
		version: file.Version,
		byName:  make(map[string][]Entry),
	}
	for _, e := range file.Entries {
		if e.Name == "" || e.Code == "" {
			return nil, eris.Errorf("place: gazetteer entry missing name or code: %+v", e)
		}
		g.byName[e.Name] = append(g.byName[e.Name], e)
		for _, alias := range e.Aliases {
			g.byName[alias] = append(g.byName[alias], e)
		}
	}
	return g, nil
}

// Version returns the gazetteer snapshot version.
func (g *Gazetteer) Version() string {
	return g.version
}

// Lookup returns the entries matching the normalized name exactly.
func (g *Gazetteer) Lookup(name string) []Entry {
	return g.byName[name]
}
