package zonal

import (
	"math"

	"github.com/sells-group/landcover-cli/internal/raster"
)

// ClassStat is the share of one class within a region.
type ClassStat struct {
	Code    int32   `json:"code"`
	Name    string  `json:"name"`
	Color   string  `json:"color"`
	Pixels  int     `json:"pixels"`
	Area    float64 `json:"area"`
	Percent float64 `json:"percent"`
}

// Result is the zonal summary of one region. Values are kept at full
// precision; callers round with Round2 when presenting them.
type Result struct {
	Index        int         `json:"index"`
	Region       string      `json:"region"`
	TotalPixels  int         `json:"total_pixels"`
	Unclassified int         `json:"unclassified_pixels"`
	Area         float64     `json:"area"`
	Classes      []ClassStat `json:"classes"`
}

// Empty reports whether the region had no valid pixels.
func (r *Result) Empty() bool { return r.TotalPixels == 0 }

// Class returns the stat for the named class.
func (r *Result) Class(name string) (ClassStat, bool) {
	for _, c := range r.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return ClassStat{}, false
}

// AggregateOptions tunes how masked pixels are counted.
type AggregateOptions struct {
	// CountUnrecognized counts valid codes missing from the class table
	// toward TotalPixels (and Unclassified) without assigning them a class.
	CountUnrecognized bool
	// AreaScale multiplies every area, e.g. 1e-6 to report m² grids in km².
	AreaScale float64
}

// DefaultAggregateOptions matches the classic behaviour: every non-zero,
// non-nodata pixel counts toward the total.
func DefaultAggregateOptions() AggregateOptions {
	return AggregateOptions{CountUnrecognized: true, AreaScale: 1}
}

// Aggregate counts the classes of the masked pixels of g. Code 0 and the
// grid's nodata value are never counted.
func Aggregate(name string, g *raster.Grid, mask Mask, classes *ClassTable, opts AggregateOptions) *Result {
	res := &Result{Region: name}

	counts := make([]int, classes.Len())
	for _, px := range mask {
		if !g.InBounds(px.Row, px.Col) {
			continue
		}
		v := g.At(px.Row, px.Col)
		if v == 0 || g.IsNoData(v) {
			continue
		}
		i, ok := classes.Lookup(v)
		if !ok {
			if opts.CountUnrecognized {
				res.Unclassified++
				res.TotalPixels++
			}
			continue
		}
		counts[i]++
		res.TotalPixels++
	}

	if res.TotalPixels == 0 {
		return res
	}

	scale := opts.AreaScale
	if scale == 0 {
		scale = 1
	}
	pixelArea := g.PixelArea() * scale

	res.Area = float64(res.TotalPixels) * pixelArea
	res.Classes = make([]ClassStat, classes.Len())
	for i, c := range classes.classes {
		res.Classes[i] = ClassStat{
			Code:    c.Code,
			Name:    c.Name,
			Color:   c.Color,
			Pixels:  counts[i],
			Area:    float64(counts[i]) * pixelArea,
			Percent: percent(counts[i], res.TotalPixels),
		}
	}
	return res
}

func percent(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(count) / float64(total)
}

// Round2 rounds v to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
