package region

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// GeoJSONSource reads regions from a GeoJSON FeatureCollection.
type GeoJSONSource struct {
	path string
	opts Options
}

// NewGeoJSONSource creates a GeoJSONSource for path.
func NewGeoJSONSource(path string, opts Options) *GeoJSONSource {
	return &GeoJSONSource{path: path, opts: opts}
}

// Load decodes the collection. Features that are not Polygon or MultiPolygon
// become regions with a nil Geometry.
func (s *GeoJSONSource) Load(ctx context.Context) ([]Region, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: read geojson %s", s.path)
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "region: load geojson")
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "region: decode geojson %s", s.path)
	}

	regions := make([]Region, 0, len(fc.Features))
	for i, f := range fc.Features {
		props := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			if v == nil {
				continue
			}
			if str, ok := v.(string); ok {
				props[k] = norm.NFC.String(str)
			} else {
				props[k] = fmt.Sprint(v)
			}
		}

		r := Region{
			Index:      i,
			Name:       ExtractName(props, s.opts.nameFields(), i),
			Properties: props,
			Geometry:   toMultiPolygon(f.Geometry),
		}
		if r.Geometry == nil {
			zap.L().Warn("region: feature has no usable polygon",
				zap.Int("index", i),
				zap.String("region", r.Name),
			)
		}
		regions = append(regions, r)
	}

	zap.L().Info("region: loaded geojson",
		zap.String("path", s.path),
		zap.Int("regions", len(regions)),
	)
	return regions, nil
}

func toMultiPolygon(g geom.T) *geom.MultiPolygon {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		if t.NumPolygons() == 0 {
			return nil
		}
		return t
	case *geom.Polygon:
		mp := geom.NewMultiPolygon(t.Layout())
		if err := mp.Push(t); err != nil {
			return nil
		}
		return mp
	default:
		return nil
	}
}
