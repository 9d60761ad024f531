package zonal

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/landcover-cli/internal/raster"
)

// Report is the outcome of a batch run. Results has one entry per input zone
// in input order; a nil entry marks a zone that failed to process.
type Report struct {
	Results   []*Result `json:"results"`
	Maxima    []Maximum `json:"maxima"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Empty     int       `json:"empty"`
}

// Present returns the non-nil results in input order.
func (r *Report) Present() []*Result {
	out := make([]*Result, 0, len(r.Results))
	for _, res := range r.Results {
		if res != nil {
			out = append(out, res)
		}
	}
	return out
}

// Runner computes results for a batch of zones with a bounded worker pool.
type Runner struct {
	engine  Engine
	classes *ClassTable
	workers int
}

// NewRunner creates a Runner. workers <= 0 processes zones one at a time.
func NewRunner(engine Engine, classes *ClassTable, workers int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{engine: engine, classes: classes, workers: workers}
}

// Run processes every zone. A failing zone is logged and recorded as a nil
// result; it never aborts its siblings. Run returns an error only when ctx
// is cancelled.
func (r *Runner) Run(ctx context.Context, grid *raster.Grid, zones []Zone) (*Report, error) {
	results := make([]*Result, len(zones))

	zap.L().Info("zonal: processing batch",
		zap.Int("regions", len(zones)),
		zap.Int("workers", r.workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)

	var done, failed atomic.Int64
	progress := rate.Sometimes{Interval: 5 * time.Second}

	for i, z := range zones {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			log := zap.L().With(zap.Int("region_index", z.ZoneIndex()), zap.String("region", z.ZoneName()))

			res, err := r.computeSafe(gctx, grid, z)
			n := done.Add(1)
			switch {
			case err != nil && gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				failed.Add(1)
				log.Warn("zonal: region failed", zap.Error(err))
			default:
				results[i] = res
				log.Debug("zonal: region complete",
					zap.Int("total_pixels", res.TotalPixels),
					zap.Float64("area", res.Area),
				)
			}

			progress.Do(func() {
				zap.L().Info("zonal: progress", zap.Int64("done", n), zap.Int("total", len(zones)))
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "zonal: batch abandoned")
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "zonal: batch abandoned")
	}

	report := &Report{
		Results:   results,
		Maxima:    Maxima(r.classes, results),
		Processed: len(zones),
		Failed:    int(failed.Load()),
	}
	for _, res := range results {
		if res != nil && res.Empty() {
			report.Empty++
		}
	}

	zap.L().Info("zonal: batch complete",
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
		zap.Int("empty", report.Empty),
	)
	return report, nil
}

// computeSafe converts a panic inside the engine into an error so one
// malformed zone cannot take down the batch.
func (r *Runner) computeSafe(ctx context.Context, g *raster.Grid, z Zone) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, eris.New(fmt.Sprintf("zonal: panic computing region %q: %v", z.ZoneName(), p))
		}
	}()
	return r.engine.Compute(ctx, g, z)
}
