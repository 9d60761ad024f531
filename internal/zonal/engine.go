package zonal

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/landcover-cli/internal/raster"
)

// Zone is anything the engine can compute statistics for.
type Zone interface {
	ZoneIndex() int
	ZoneName() string
	ZoneGeometry() *geom.MultiPolygon
}

// Engine computes the zonal result of a single zone.
type Engine interface {
	Compute(ctx context.Context, g *raster.Grid, z Zone) (*Result, error)
}

// EngineOption configures the default engine.
type EngineOption func(*engine)

// WithCountUnrecognized toggles counting codes missing from the class table.
func WithCountUnrecognized(v bool) EngineOption {
	return func(e *engine) { e.opts.CountUnrecognized = v }
}

// WithAreaScale sets the multiplier applied to every reported area.
func WithAreaScale(scale float64) EngineOption {
	return func(e *engine) {
		if scale > 0 {
			e.opts.AreaScale = scale
		}
	}
}

type engine struct {
	classes *ClassTable
	opts    AggregateOptions
}

// NewEngine returns the scanline Rasterize + Aggregate engine.
func NewEngine(classes *ClassTable, opts ...EngineOption) Engine {
	e := &engine{classes: classes, opts: DefaultAggregateOptions()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *engine) Compute(ctx context.Context, g *raster.Grid, z Zone) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "zonal: compute")
	}
	geometry := z.ZoneGeometry()
	if geometry == nil {
		return nil, eris.Errorf("zonal: region %q has no geometry", z.ZoneName())
	}

	// A region entirely off the grid is a failure, not a "no data" region.
	if !geometry.Bounds().Overlaps(geom.XY, g.Transform.Bounds(g.Rows, g.Cols)) {
		return nil, eris.Errorf("zonal: region %q does not intersect the grid", z.ZoneName())
	}

	mask, err := Rasterize(g, geometry)
	if err != nil {
		return nil, eris.Wrapf(err, "zonal: mask region %q", z.ZoneName())
	}

	res := Aggregate(z.ZoneName(), g, mask, e.classes, e.opts)
	res.Index = z.ZoneIndex()
	return res, nil
}
