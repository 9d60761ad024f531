package raster

import (
	"github.com/rotisserie/eris"
)

// Grid is an immutable classified raster held in memory. Values are stored
// row-major, top row first.
type Grid struct {
	Rows      int
	Cols      int
	Transform Transform
	NoData    int32
	HasNoData bool
	values    []int32
}

// NewGrid builds a Grid from row slices. All rows must have the same length.
func NewGrid(rows [][]int32, t Transform) (*Grid, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.New("raster: grid has no rows")
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, eris.New("raster: grid has no columns")
	}

	values := make([]int32, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, eris.Errorf("raster: row %d has %d values, want %d", i, len(r), cols)
		}
		values = append(values, r...)
	}

	return &Grid{Rows: len(rows), Cols: cols, Transform: t, values: values}, nil
}

// WithNoData returns a copy of g that treats v as the nodata value. The
// underlying values are shared.
func (g *Grid) WithNoData(v int32) *Grid {
	c := *g
	c.NoData = v
	c.HasNoData = true
	return &c
}

// At returns the value at (row, col). It panics when the address is outside
// the grid.
func (g *Grid) At(row, col int) int32 {
	return g.values[row*g.Cols+col]
}

// InBounds reports whether (row, col) addresses a pixel of g.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// IsNoData reports whether v is the grid's nodata marker.
func (g *Grid) IsNoData(v int32) bool {
	return g.HasNoData && v == g.NoData
}

// PixelArea is a shortcut for g.Transform.PixelArea().
func (g *Grid) PixelArea() float64 {
	return g.Transform.PixelArea()
}
