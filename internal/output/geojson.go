package output

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// GeoJSONFile is the file written by GeoJSONSink.
const GeoJSONFile = "regions.geojson"

// GeoJSONSink writes one Point feature per region carrying its statistics.
type GeoJSONSink struct {
	dir     string
	locator PointLocator
}

// Name implements Sink.
func (s *GeoJSONSink) Name() string { return "geojson" }

// Write implements Sink.
func (s *GeoJSONSink) Write(_ context.Context, a *Analysis) error {
	fc, err := BuildFeatureCollection(a, s.locator)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "output: encode geojson")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "output: create dir %s", s.dir)
	}
	path := filepath.Join(s.dir, GeoJSONFile)
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "output: write %s", path)
}

// BuildFeatureCollection converts the analysis to a GeoJSON feature
// collection. Regions without a display point are left out.
func BuildFeatureCollection(a *Analysis, locator PointLocator) (*geojson.FeatureCollection, error) {
	if locator == nil {
		locator = CentroidLocator
	}
	fc := &geojson.FeatureCollection{Features: []*geojson.Feature{}}
	for _, e := range a.Entries() {
		pt, ok := displayPoint(locator, e)
		if !ok {
			continue
		}
		p := Properties(e.Result)
		props := map[string]interface{}{
			"region":       p.Region,
			"area_total":   p.AreaTotal,
			"total_pixels": p.TotalPixels,
			"classes":      p.Classes,
		}
		if p.NoData {
			props["no_data"] = true
		}

		point, err := geom.NewPoint(geom.XY).SetCoords(geom.Coord{pt[0], pt[1]})
		if err != nil {
			return nil, eris.Wrapf(err, "output: point for %s", p.Region)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   point,
			Properties: props,
		})
	}
	return fc, nil
}
