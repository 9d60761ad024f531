package zonal

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/landcover-cli/internal/raster"
)

// Pixel is a grid address.
type Pixel struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Mask is the set of pixels covered by a geometry, in row-major order.
type Mask []Pixel

// Len returns the number of covered pixels.
func (m Mask) Len() int { return len(m) }

// ring is a closed ring with the closing vertex dropped.
type ring struct {
	xs, ys []float64
}

// window is a rectangular block of grid rows and columns.
type window struct {
	row0, row1 int // inclusive
	col0, col1 int // inclusive
}

func (w window) empty() bool { return w.row0 > w.row1 || w.col0 > w.col1 }

func (w window) union(o window) window {
	if w.empty() {
		return o
	}
	if o.empty() {
		return w
	}
	return window{
		row0: min(w.row0, o.row0), row1: max(w.row1, o.row1),
		col0: min(w.col0, o.col0), col1: max(w.col1, o.col1),
	}
}

// polygonRings holds the exterior ring and the usable holes of one polygon.
type polygonRings struct {
	exterior ring
	holes    []ring
}

// Rasterize returns the pixels of g whose centres fall inside mp. Parts of a
// multipolygon are unioned, so a pixel covered by two parts appears once.
func Rasterize(g *raster.Grid, mp *geom.MultiPolygon) (Mask, error) {
	if mp == nil {
		return nil, eris.New("zonal: nil geometry")
	}

	parts := make([]polygonRings, 0, mp.NumPolygons())
	for i := 0; i < mp.NumPolygons(); i++ {
		pr, ok, err := extractRings(mp.Polygon(i))
		if err != nil {
			return nil, eris.Wrapf(err, "zonal: polygon part %d", i)
		}
		if ok {
			parts = append(parts, pr)
		}
	}
	return rasterizeParts(g, parts), nil
}

// RasterizePolygon is Rasterize for a single polygon.
func RasterizePolygon(g *raster.Grid, p *geom.Polygon) (Mask, error) {
	if p == nil {
		return nil, eris.New("zonal: nil polygon")
	}
	pr, ok, err := extractRings(p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return rasterizeParts(g, []polygonRings{pr}), nil
}

func rasterizeParts(g *raster.Grid, parts []polygonRings) Mask {
	windows := make([]window, len(parts))
	var all window
	all.row0, all.col0 = 1, 1 // start empty
	for i, p := range parts {
		windows[i] = pixelWindow(g, p.exterior)
		all = all.union(windows[i])
	}
	if all.empty() {
		return nil
	}

	width := all.col1 - all.col0 + 1
	covered := make([]bool, (all.row1-all.row0+1)*width)
	var xs []float64

	for i, p := range parts {
		w := windows[i]
		if w.empty() {
			continue
		}
		rowBuf := make([]bool, w.col1-w.col0+1)
		for row := w.row0; row <= w.row1; row++ {
			clear(rowBuf)
			_, yc := g.Transform.PixelCenter(row, 0)

			xs = crossings(p.exterior, yc, xs[:0])
			markSpans(g.Transform, xs, w, rowBuf, true)
			for _, h := range p.holes {
				xs = crossings(h, yc, xs[:0])
				markSpans(g.Transform, xs, w, rowBuf, false)
			}

			base := (row-all.row0)*width + (w.col0 - all.col0)
			for j, on := range rowBuf {
				if on {
					covered[base+j] = true
				}
			}
		}
	}

	var mask Mask
	for i, on := range covered {
		if on {
			mask = append(mask, Pixel{Row: all.row0 + i/width, Col: all.col0 + i%width})
		}
	}
	return mask
}

// pixelWindow returns the rows and columns whose pixel centres lie inside the
// bounding box of r, clipped to the grid.
func pixelWindow(g *raster.Grid, r ring) window {
	minX, maxX := minMax(r.xs)
	minY, maxY := minMax(r.ys)
	t := g.Transform

	r0, r1 := centreRange(t.RowCoord(minY), t.RowCoord(maxY))
	c0, c1 := centreRange(t.ColCoord(minX), t.ColCoord(maxX))

	return window{
		row0: max(r0, 0), row1: min(r1, g.Rows-1),
		col0: max(c0, 0), col1: min(c1, g.Cols-1),
	}
}

func centreRange(a, b float64) (int, int) {
	lo, hi := clampCoord(math.Min(a, b)), clampCoord(math.Max(a, b))
	return int(math.Ceil(lo)), int(math.Floor(hi))
}

// clampCoord bounds a continuous pixel coordinate so that converting it to
// int cannot overflow.
func clampCoord(v float64) float64 {
	return math.Min(math.Max(v, -2), math.MaxInt32)
}

func minMax(vs []float64) (float64, float64) {
	lo, hi := vs[0], vs[0]
	for _, v := range vs[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// crossings appends the sorted x-coordinates where the horizontal line y
// crosses the edges of r. An edge counts when exactly one endpoint is at or
// below y, so a vertex on the line is counted once.
func crossings(r ring, y float64, dst []float64) []float64 {
	n := len(r.xs)
	for i := 0; i < n; i++ {
		j := i + 1
		if j == n {
			j = 0
		}
		y1, y2 := r.ys[i], r.ys[j]
		if (y1 <= y) == (y2 <= y) {
			continue
		}
		x1, x2 := r.xs[i], r.xs[j]
		dst = append(dst, x1+(y-y1)*(x2-x1)/(y2-y1))
	}
	sort.Float64s(dst)
	return dst
}

// markSpans sets rowBuf for every column in w whose pixel centre lies in one
// of the [enter, exit) spans formed by consecutive crossing pairs.
func markSpans(t raster.Transform, xs []float64, w window, rowBuf []bool, value bool) {
	for k := 0; k+1 < len(xs); k += 2 {
		ua, ub := clampCoord(t.ColCoord(xs[k])), clampCoord(t.ColCoord(xs[k+1]))

		var first, last int
		if t.PixelWidth > 0 {
			first = int(math.Ceil(ua))
			last = int(math.Ceil(ub)) - 1
		} else {
			first = int(math.Floor(ub)) + 1
			last = int(math.Floor(ua))
		}

		first = max(first, w.col0)
		last = min(last, w.col1)
		for c := first; c <= last; c++ {
			rowBuf[c-w.col0] = value
		}
	}
}

// extractRings converts a polygon to rings. ok is false when the exterior is
// degenerate; degenerate holes are dropped.
func extractRings(p *geom.Polygon) (pr polygonRings, ok bool, err error) {
	if p.NumLinearRings() == 0 {
		return pr, false, nil
	}

	ext, err := toRing(p.LinearRing(0))
	if err != nil {
		return pr, false, eris.Wrap(err, "exterior ring")
	}
	if len(ext.xs) < 3 {
		return pr, false, nil
	}
	pr.exterior = ext

	for i := 1; i < p.NumLinearRings(); i++ {
		h, err := toRing(p.LinearRing(i))
		if err != nil {
			return pr, false, eris.Wrapf(err, "hole %d", i-1)
		}
		if len(h.xs) >= 3 {
			pr.holes = append(pr.holes, h)
		}
	}
	return pr, true, nil
}

// toRing copies the vertices of lr, dropping repeated consecutive vertices and
// the explicit closing vertex.
func toRing(lr *geom.LinearRing) (ring, error) {
	var r ring
	coords := lr.Coords()
	for _, c := range coords {
		x, y := c[0], c[1]
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return ring{}, eris.New("zonal: non-finite coordinate")
		}
		if n := len(r.xs); n > 0 && r.xs[n-1] == x && r.ys[n-1] == y {
			continue
		}
		r.xs = append(r.xs, x)
		r.ys = append(r.ys, y)
	}
	if n := len(r.xs); n > 1 && r.xs[0] == r.xs[n-1] && r.ys[0] == r.ys[n-1] {
		r.xs, r.ys = r.xs[:n-1], r.ys[:n-1]
	}
	return r, nil
}

// Contains reports whether (x, y) lies inside p under the same inclusion rule
// Rasterize applies to pixel centres.
func Contains(p *geom.Polygon, x, y float64) bool {
	if p == nil {
		return false
	}
	pr, ok, err := extractRings(p)
	if err != nil || !ok {
		return false
	}
	if !ringContains(pr.exterior, x, y) {
		return false
	}
	for _, h := range pr.holes {
		if ringContains(h, x, y) {
			return false
		}
	}
	return true
}

// ContainsMulti reports whether any part of mp contains (x, y).
func ContainsMulti(mp *geom.MultiPolygon, x, y float64) bool {
	if mp == nil {
		return false
	}
	for i := 0; i < mp.NumPolygons(); i++ {
		if Contains(mp.Polygon(i), x, y) {
			return true
		}
	}
	return false
}

func ringContains(r ring, x, y float64) bool {
	xs := crossings(r, y, nil)
	for k := 0; k+1 < len(xs); k += 2 {
		if xs[k] <= x && x < xs[k+1] {
			return true
		}
	}
	return false
}
