package region

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/landcover-cli/internal/zonal"
)

// ShapefileSource reads polygon regions from an ESRI shapefile and its .dbf
// attribute table.
type ShapefileSource struct {
	path string
	opts Options
}

// NewShapefileSource creates a ShapefileSource for path.
func NewShapefileSource(path string, opts Options) *ShapefileSource {
	return &ShapefileSource{path: path, opts: opts}
}

// Load reads every record in file order. Records whose shape is missing or
// not a polygon become regions with a nil Geometry.
func (s *ShapefileSource) Load(ctx context.Context) ([]Region, error) {
	dec, err := attributeDecoder(s.opts.Encoding)
	if err != nil {
		return nil, err
	}

	reader, err := shp.Open(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "region: open shapefile %s", s.path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var regions []Region
	var skipped int
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "region: load shapefile")
		}
		index := len(regions)
		_, shape := reader.Shape()

		props := make(map[string]string, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			props[name] = decodeAttribute(dec, val)
		}

		r := Region{
			Index:      index,
			Name:       ExtractName(props, s.opts.nameFields(), index),
			Properties: props,
		}

		if poly, ok := shape.(*shp.Polygon); ok {
			r.Geometry = PolygonToMultiPolygon(poly)
		}
		if r.Geometry == nil {
			skipped++
			zap.L().Warn("region: record has no usable polygon",
				zap.Int("index", index),
				zap.String("region", r.Name),
			)
		}
		regions = append(regions, r)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "region: read shapefile %s", s.path)
	}

	zap.L().Info("region: loaded shapefile",
		zap.String("path", s.path),
		zap.Int("regions", len(regions)),
		zap.Int("without_geometry", skipped),
	)
	return regions, nil
}

func attributeDecoder(name string) (*encoding.Decoder, error) {
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return nil, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, eris.Wrapf(err, "region: unsupported attribute encoding %q", name)
	}
	return enc.NewDecoder(), nil
}

// decodeAttribute converts a raw DBF value to NFC UTF-8. Values that are
// already valid UTF-8 are only normalized.
func decodeAttribute(dec *encoding.Decoder, val string) string {
	if dec != nil && !utf8.ValidString(val) {
		if out, err := dec.String(val); err == nil {
			val = out
		}
	}
	return norm.NFC.String(val)
}

// PolygonToMultiPolygon groups the rings of a shapefile polygon into
// polygons. Clockwise rings are exteriors; counter-clockwise rings are holes
// of the exterior that contains them. Returns nil when no ring is usable.
func PolygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var outers, holes [][]geom.Coord
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || start >= end {
			continue
		}

		coords := make([]geom.Coord, 0, end-start)
		for j := start; j < end; j++ {
			coords = append(coords, geom.Coord{p.Points[j].X, p.Points[j].Y})
		}
		if len(coords) < 3 {
			continue
		}
		if signedArea(coords) <= 0 {
			outers = append(outers, coords)
		} else {
			holes = append(holes, coords)
		}
	}

	// Files that wind every ring counter-clockwise have no detectable
	// exteriors; read each ring as its own polygon.
	if len(outers) == 0 {
		outers, holes = holes, nil
	}

	polys := make([]*geom.Polygon, len(outers))
	for i, o := range outers {
		polys[i] = geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{o})
	}

	for _, h := range holes {
		owner := -1
		for i, poly := range polys {
			if ringInside(h, poly) {
				owner = i
				break
			}
		}
		if owner < 0 {
			polys = append(polys, geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{h}))
			continue
		}
		lr := geom.NewLinearRing(geom.XY).MustSetCoords(h)
		if err := polys[owner].Push(lr); err != nil {
			zap.L().Debug("region: skipping malformed hole", zap.Error(err))
		}
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for _, poly := range polys {
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("region: skipping malformed polygon part", zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// ringInside reports whether any vertex of ring lies inside poly. Holes often
// share their first vertex with the exterior boundary, so one vertex is not
// enough.
func ringInside(ring []geom.Coord, poly *geom.Polygon) bool {
	for _, c := range ring {
		if zonal.Contains(poly, c[0], c[1]) {
			return true
		}
	}
	return false
}

// signedArea is the shoelace area of ring; negative for clockwise rings in a
// y-up coordinate space.
func signedArea(ring []geom.Coord) float64 {
	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum / 2
}
