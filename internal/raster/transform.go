// Package raster holds the in-memory classified grid, its affine transform,
// and the ESRI ASCII Grid loader.
package raster

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Transform maps pixel addresses to grid-space coordinates. OriginX/OriginY
// is the top-left corner of pixel (0, 0). PixelHeight is negative for
// north-up grids.
type Transform struct {
	OriginX     float64 `json:"origin_x"`
	OriginY     float64 `json:"origin_y"`
	PixelWidth  float64 `json:"pixel_width"`
	PixelHeight float64 `json:"pixel_height"`
}

// Validate rejects transforms with zero or non-finite pixel dimensions.
func (t Transform) Validate() error {
	for _, v := range []float64{t.OriginX, t.OriginY, t.PixelWidth, t.PixelHeight} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return eris.New("raster: transform has non-finite component")
		}
	}
	if t.PixelWidth == 0 || t.PixelHeight == 0 {
		return eris.New("raster: transform has zero pixel size")
	}
	return nil
}

// ToPixel returns the pixel containing grid coordinate (x, y).
func (t Transform) ToPixel(x, y float64) (row, col int) {
	col = int(math.Floor((x - t.OriginX) / t.PixelWidth))
	row = int(math.Floor((y - t.OriginY) / t.PixelHeight))
	return row, col
}

// PixelCorner returns the top-left corner of pixel (row, col).
func (t Transform) PixelCorner(row, col int) (x, y float64) {
	return t.OriginX + float64(col)*t.PixelWidth, t.OriginY + float64(row)*t.PixelHeight
}

// PixelCenter returns the centre of pixel (row, col).
func (t Transform) PixelCenter(row, col int) (x, y float64) {
	return t.OriginX + (float64(col)+0.5)*t.PixelWidth, t.OriginY + (float64(row)+0.5)*t.PixelHeight
}

// ColCoord returns the continuous column coordinate of x, measured so that
// pixel centres fall on integers.
func (t Transform) ColCoord(x float64) float64 {
	return (x-t.OriginX)/t.PixelWidth - 0.5
}

// RowCoord is the row counterpart of ColCoord.
func (t Transform) RowCoord(y float64) float64 {
	return (y-t.OriginY)/t.PixelHeight - 0.5
}

// PixelArea returns the constant area of one pixel.
func (t Transform) PixelArea() float64 {
	return math.Abs(t.PixelWidth * t.PixelHeight)
}

// Bounds returns the extent covered by a rows x cols grid.
func (t Transform) Bounds(rows, cols int) *geom.Bounds {
	x0, y0 := t.PixelCorner(0, 0)
	x1, y1 := t.PixelCorner(rows, cols)
	return geom.NewBounds(geom.XY).Set(math.Min(x0, x1), math.Min(y0, y1), math.Max(x0, x1), math.Max(y0, y1))
}
