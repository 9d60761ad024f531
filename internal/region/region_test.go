package region

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestExtractName(t *testing.T) {
	props := map[string]string{"NAME_1": "  Córdoba ", "NOMBRE": "ignored"}
	assert.Equal(t, "Córdoba", ExtractName(props, DefaultNameFields, 3))

	assert.Equal(t, "Region_7", ExtractName(map[string]string{"other": "x"}, DefaultNameFields, 7))
	assert.Equal(t, "Region_0", ExtractName(nil, DefaultNameFields, 0))
	assert.Equal(t, "Region_2", ExtractName(map[string]string{"name": "   "}, DefaultNameFields, 2))
	assert.Equal(t, "x", ExtractName(map[string]string{"custom": "x"}, []string{"custom"}, 1))
}

func TestOpen(t *testing.T) {
	src, err := Open("boundaries.SHP", Options{})
	require.NoError(t, err)
	assert.IsType(t, &ShapefileSource{}, src)

	src, err = Open("boundaries.geojson", Options{})
	require.NoError(t, err)
	assert.IsType(t, &GeoJSONSource{}, src)

	_, err = Open("boundaries.kml", Options{})
	assert.Error(t, err)
}

func TestDecodeAttribute(t *testing.T) {
	dec, err := attributeDecoder("latin1")
	require.NoError(t, err)
	assert.Equal(t, "Córdoba", decodeAttribute(dec, "C\xf3rdoba"))

	// Already UTF-8: left alone apart from NFC normalization.
	assert.Equal(t, "Neuquén", decodeAttribute(dec, "Neuquén"))

	none, err := attributeDecoder("")
	require.NoError(t, err)
	assert.Nil(t, none)
	assert.Equal(t, "Salta", decodeAttribute(none, "Salta"))

	_, err = attributeDecoder("not-a-charset")
	assert.Error(t, err)
}

// clockwise square with lower-left corner (x, y) and side s.
func cwSquare(x, y, s float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x, Y: y + s}, {X: x + s, Y: y + s}, {X: x + s, Y: y}, {X: x, Y: y}}
}

func ccwSquare(x, y, s float64) []shp.Point {
	return []shp.Point{{X: x, Y: y}, {X: x + s, Y: y}, {X: x + s, Y: y + s}, {X: x, Y: y + s}, {X: x, Y: y}}
}

func shpPolygon(parts ...[]shp.Point) *shp.Polygon {
	p := shp.Polygon(*shp.NewPolyLine(parts))
	return &p
}

func TestPolygonToMultiPolygon_HoleAssignment(t *testing.T) {
	mp := PolygonToMultiPolygon(shpPolygon(
		cwSquare(0, 0, 10),
		cwSquare(20, 20, 5),
		ccwSquare(2, 2, 2),
		ccwSquare(21, 21, 1),
	))
	require.NotNil(t, mp)
	require.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.Equal(t, 2, mp.Polygon(1).NumLinearRings())
}

func TestPolygonToMultiPolygon_AllCounterClockwise(t *testing.T) {
	mp := PolygonToMultiPolygon(shpPolygon(ccwSquare(0, 0, 1), ccwSquare(5, 5, 1)))
	require.NotNil(t, mp)
	assert.Equal(t, 2, mp.NumPolygons())
}

func TestPolygonToMultiPolygon_OrphanHoleBecomesPolygon(t *testing.T) {
	mp := PolygonToMultiPolygon(shpPolygon(cwSquare(0, 0, 1), ccwSquare(5, 5, 1)))
	require.NotNil(t, mp)
	assert.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 1, mp.Polygon(1).NumLinearRings())
}

func TestPolygonToMultiPolygon_Degenerate(t *testing.T) {
	assert.Nil(t, PolygonToMultiPolygon(nil))
	assert.Nil(t, PolygonToMultiPolygon(&shp.Polygon{}))
	assert.Nil(t, PolygonToMultiPolygon(shpPolygon([]shp.Point{{X: 0, Y: 0}, {X: 1, Y: 1}})))
}

func writeShapefile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "regions.shp")

	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("NAME_1", 40),
		shp.StringField("CODE", 8),
	}))

	rows := []struct {
		shape *shp.Polygon
		name  string
		code  string
	}{
		{shpPolygon(cwSquare(0, 0, 2)), "Salta", "A1"},
		{shpPolygon(cwSquare(2, 0, 2), ccwSquare(2.5, 0.5, 1)), "", "B2"},
	}
	for i, r := range rows {
		w.Write(r.shape)
		require.NoError(t, w.WriteAttribute(i, 0, r.name))
		require.NoError(t, w.WriteAttribute(i, 1, r.code))
	}
	w.Close()

	// go-shp's writer drops the dot before the attribute table extension.
	dbf := filepath.Join(dir, "regions.dbf")
	if _, err := os.Stat(dbf); os.IsNotExist(err) {
		require.NoError(t, os.Rename(filepath.Join(dir, "regionsdbf"), dbf))
	}
	require.FileExists(t, dbf)
	return path
}

func TestShapefileSource_Load(t *testing.T) {
	path := writeShapefile(t, t.TempDir())

	regions, err := NewShapefileSource(path, Options{}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, 0, regions[0].Index)
	assert.Equal(t, "Salta", regions[0].Name)
	assert.Equal(t, "A1", regions[0].Properties["CODE"])
	require.NotNil(t, regions[0].Geometry)
	assert.Equal(t, 1, regions[0].Geometry.NumPolygons())

	assert.Equal(t, 1, regions[1].Index)
	assert.Equal(t, "Region_1", regions[1].Name)
	require.NotNil(t, regions[1].Geometry)
	assert.Equal(t, 2, regions[1].Geometry.Polygon(0).NumLinearRings())
}

func TestShapefileSource_CustomNameField(t *testing.T) {
	path := writeShapefile(t, t.TempDir())

	regions, err := NewShapefileSource(path, Options{NameFields: []string{"CODE"}}).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A1", regions[0].Name)
	assert.Equal(t, "B2", regions[1].Name)
}

func TestShapefileSource_Missing(t *testing.T) {
	_, err := NewShapefileSource(filepath.Join(t.TempDir(), "none.shp"), Options{}).Load(context.Background())
	assert.Error(t, err)
}

const sampleGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"nombre": "Jujuy", "pop": 770881},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,2],[0,2],[0,0]]]}},
    {"type": "Feature", "properties": {"fna": "Misiones"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[5,5],[6,5],[6,6],[5,6],[5,5]]],[[[8,8],[9,8],[9,9],[8,9],[8,8]]]]}},
    {"type": "Feature", "properties": {},
     "geometry": {"type": "Point", "coordinates": [1,1]}}
  ]
}`

func TestGeoJSONSource_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sampleGeoJSON), 0o644))

	regions, err := NewGeoJSONSource(path, Options{}).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, regions, 3)

	assert.Equal(t, "Jujuy", regions[0].Name)
	assert.Equal(t, "770881", regions[0].Properties["pop"])
	require.NotNil(t, regions[0].Geometry)
	assert.Equal(t, 1, regions[0].Geometry.NumPolygons())

	assert.Equal(t, "Misiones", regions[1].Name)
	assert.Equal(t, 2, regions[1].Geometry.NumPolygons())

	assert.Equal(t, "Region_2", regions[2].Name)
	assert.Nil(t, regions[2].Geometry)
}

func TestGeoJSONSource_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.geojson")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewGeoJSONSource(path, Options{}).Load(context.Background())
	assert.Error(t, err)
}

func square(x, y, s float64) *geom.MultiPolygon {
	return geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{
		{{x, y}, {x + s, y}, {x + s, y + s}, {x, y + s}, {x, y}},
	}})
}

func TestIndex_Locate(t *testing.T) {
	regions := []Region{
		{Index: 0, Name: "west", Geometry: square(0, 0, 10)},
		{Index: 1, Name: "broken"},
		{Index: 2, Name: "east", Geometry: square(10, 0, 10)},
		{Index: 3, Name: "overlay", Geometry: square(5, 5, 10)},
	}
	idx := NewIndex(regions)
	assert.Equal(t, 3, idx.Len())

	hits := idx.Locate(2, 2)
	require.Len(t, hits, 1)
	assert.Equal(t, "west", hits[0].Name)

	hits = idx.Locate(12, 6)
	require.Len(t, hits, 2)
	assert.Equal(t, "east", hits[0].Name)
	assert.Equal(t, "overlay", hits[1].Name)

	assert.Empty(t, idx.Locate(50, 50))
	assert.Empty(t, NewIndex(nil).Locate(1, 1))
}

func TestZones(t *testing.T) {
	regions := []Region{{Index: 4, Name: "a", Geometry: square(0, 0, 1)}}
	zones := Zones(regions)
	require.Len(t, zones, 1)
	assert.Equal(t, 4, zones[0].ZoneIndex())
	assert.Equal(t, "a", zones[0].ZoneName())
	assert.NotNil(t, zones[0].ZoneGeometry())
}
