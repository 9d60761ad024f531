package raster

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func northUp() Transform {
	return Transform{OriginX: 100, OriginY: 50, PixelWidth: 2, PixelHeight: -2}
}

func TestTransform_ToPixel(t *testing.T) {
	tr := northUp()

	row, col := tr.ToPixel(100.1, 49.9)
	assert.Equal(t, 0, row)
	assert.Equal(t, 0, col)

	row, col = tr.ToPixel(105, 45)
	assert.Equal(t, 2, row)
	assert.Equal(t, 2, col)

	row, col = tr.ToPixel(99, 51)
	assert.Equal(t, -1, row)
	assert.Equal(t, -1, col)
}

func TestTransform_PixelCenterRoundTrip(t *testing.T) {
	tr := northUp()
	for row := 0; row < 4; row++ {
		for col := 0; col < 4; col++ {
			x, y := tr.PixelCenter(row, col)
			r, c := tr.ToPixel(x, y)
			assert.Equal(t, row, r)
			assert.Equal(t, col, c)
		}
	}

	x, y := tr.PixelCenter(0, 0)
	assert.InDelta(t, 101.0, x, 1e-9)
	assert.InDelta(t, 49.0, y, 1e-9)

	x, y = tr.PixelCorner(1, 1)
	assert.InDelta(t, 102.0, x, 1e-9)
	assert.InDelta(t, 48.0, y, 1e-9)
}

func TestTransform_PixelArea(t *testing.T) {
	assert.InDelta(t, 4.0, northUp().PixelArea(), 1e-12)
	assert.InDelta(t, 0.5, Transform{PixelWidth: -0.5, PixelHeight: 1}.PixelArea(), 1e-12)
}

func TestTransform_Validate(t *testing.T) {
	assert.NoError(t, northUp().Validate())
	assert.Error(t, Transform{PixelWidth: 0, PixelHeight: -1}.Validate())
	assert.Error(t, Transform{PixelWidth: 1, PixelHeight: 0}.Validate())
}

func TestTransform_Bounds(t *testing.T) {
	b := northUp().Bounds(3, 5)
	assert.InDelta(t, 100.0, b.Min(0), 1e-9)
	assert.InDelta(t, 44.0, b.Min(1), 1e-9)
	assert.InDelta(t, 110.0, b.Max(0), 1e-9)
	assert.InDelta(t, 50.0, b.Max(1), 1e-9)
}

func TestNewGrid(t *testing.T) {
	g, err := NewGrid([][]int32{{1, 2, 3}, {4, 5, 6}}, northUp())
	require.NoError(t, err)
	assert.Equal(t, 2, g.Rows)
	assert.Equal(t, 3, g.Cols)
	assert.Equal(t, int32(6), g.At(1, 2))
	assert.True(t, g.InBounds(1, 2))
	assert.False(t, g.InBounds(2, 0))
	assert.False(t, g.IsNoData(0))

	nd := g.WithNoData(5)
	assert.True(t, nd.IsNoData(5))
	assert.False(t, g.HasNoData)
}

func TestNewGrid_Ragged(t *testing.T) {
	_, err := NewGrid([][]int32{{1, 2}, {3}}, northUp())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}

func TestNewGrid_Empty(t *testing.T) {
	_, err := NewGrid(nil, northUp())
	assert.Error(t, err)
}

const sampleASCII = `ncols 4
nrows 3
xllcorner -65.0
yllcorner -35.0
cellsize 0.5
NODATA_value -9999
47 47 57 57
122 0 -9999 228
1.0 2 3 4
`

func TestReadASCII(t *testing.T) {
	g, err := ReadASCII(strings.NewReader(sampleASCII))
	require.NoError(t, err)

	assert.Equal(t, 3, g.Rows)
	assert.Equal(t, 4, g.Cols)
	assert.InDelta(t, -65.0, g.Transform.OriginX, 1e-9)
	assert.InDelta(t, -33.5, g.Transform.OriginY, 1e-9)
	assert.InDelta(t, 0.5, g.Transform.PixelWidth, 1e-9)
	assert.InDelta(t, -0.5, g.Transform.PixelHeight, 1e-9)
	assert.True(t, g.HasNoData)
	assert.Equal(t, int32(-9999), g.NoData)
	assert.Equal(t, int32(47), g.At(0, 0))
	assert.Equal(t, int32(228), g.At(1, 3))
	assert.Equal(t, int32(1), g.At(2, 0))
}

func TestReadASCII_CenterOrigin(t *testing.T) {
	src := "ncols 1\nnrows 1\nxllcenter 10\nyllcenter 20\ncellsize 2\n5\n"
	g, err := ReadASCII(strings.NewReader(src))
	require.NoError(t, err)
	assert.InDelta(t, 9.0, g.Transform.OriginX, 1e-9)
	assert.InDelta(t, 21.0, g.Transform.OriginY, 1e-9)
	assert.False(t, g.HasNoData)
}

func TestReadASCII_Errors(t *testing.T) {
	cases := map[string]string{
		"short data":    "ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2 3\n",
		"fractional":    "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n1.5\n",
		"missing size":  "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\n1\n",
		"unknown key":   "ncols 1\nnrows 1\nbogus 3\nxllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
		"missing dims":  "xllcorner 0\nyllcorner 0\ncellsize 1\n1\n",
		"missing llpos": "ncols 1\nnrows 1\ncellsize 1\n1\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadASCII(strings.NewReader(src))
			assert.Error(t, err)
		})
	}
}

func TestLoadASCII(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.asc")
	require.NoError(t, os.WriteFile(path, []byte(sampleASCII), 0o644))

	g, err := LoadASCII(path)
	require.NoError(t, err)
	assert.Equal(t, 12, g.Rows*g.Cols)
}

func TestLoadASCII_Missing(t *testing.T) {
	_, err := LoadASCII(filepath.Join(t.TempDir(), "nope.asc"))
	assert.Error(t, err)
}
