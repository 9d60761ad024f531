// Package region loads named region boundaries (shapefile or GeoJSON) and
// indexes them for point lookups.
package region

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/landcover-cli/internal/zonal"
)

// DefaultNameFields are the attribute names probed, in order, for a region
// name.
var DefaultNameFields = []string{
	"Provincia", "NAME_1", "NOMBRE", "prov_name", "provincia", "nombre", "name", "NAME", "fna",
}

// Region is a named boundary. Geometry is nil when the source record could
// not be read as a polygon; such regions still keep their slot so results
// line up with the input.
type Region struct {
	Index      int
	Name       string
	Geometry   *geom.MultiPolygon
	Properties map[string]string
}

// ZoneIndex implements zonal.Zone.
func (r Region) ZoneIndex() int { return r.Index }

// ZoneName implements zonal.Zone.
func (r Region) ZoneName() string { return r.Name }

// ZoneGeometry implements zonal.Zone.
func (r Region) ZoneGeometry() *geom.MultiPolygon { return r.Geometry }

// Zones adapts regions for zonal.Runner.
func Zones(regions []Region) []zonal.Zone {
	out := make([]zonal.Zone, len(regions))
	for i, r := range regions {
		out[i] = r
	}
	return out
}

// Source produces regions in a stable order.
type Source interface {
	Load(ctx context.Context) ([]Region, error)
}

// Options configures how region attributes are read.
type Options struct {
	// NameFields overrides DefaultNameFields.
	NameFields []string
	// Encoding names the character set of shapefile attributes
	// (e.g. "latin1", "windows-1252"). Empty means UTF-8.
	Encoding string
}

func (o Options) nameFields() []string {
	if len(o.NameFields) > 0 {
		return o.NameFields
	}
	return DefaultNameFields
}

// Open picks a Source for path by file extension.
func Open(path string, opts Options) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return NewShapefileSource(path, opts), nil
	case ".geojson", ".json":
		return NewGeoJSONSource(path, opts), nil
	default:
		return nil, eris.Errorf("region: unsupported boundary file %s", path)
	}
}

// ExtractName returns the first non-empty value among fields, or
// Region_<index> when none is present.
func ExtractName(props map[string]string, fields []string, index int) string {
	for _, f := range fields {
		if v := strings.TrimSpace(props[f]); v != "" {
			return v
		}
	}
	return fmt.Sprintf("Region_%d", index)
}
