package boundary

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/beanraft/district-cli/internal/fetcher"
)

// LoadPath loads boundary features from a bare .shp file or from a .zip
// archive holding the shapefile members. Ministry downloads ship the .shp,
// .shx, and .dbf files zipped together, so archives are accepted as-is.
func LoadPath(path string) ([]Feature, error) {
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return LoadShapefile(path)
	}

	dir, err := os.MkdirTemp("", "boundary-")
	if err != nil {
		return nil, eris.Wrap(err, "boundary: scratch dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	members, err := fetcher.ExtractZIP(path, dir)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if strings.EqualFold(filepath.Ext(m), ".shp") {
			return LoadShapefile(m)
		}
	}
	return nil, eris.Errorf("boundary: no .shp member in %s", path)
}
