package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/landcover-cli/internal/region"
	"github.com/sells-group/landcover-cli/internal/zonal"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// Run describes one analysis of a raster against a set of regions.
type Run struct {
	ID          string    `json:"id"`
	RasterPath  string    `json:"raster_path"`
	RegionsPath string    `json:"regions_path"`
	Regions     int       `json:"regions"`
	Processed   int       `json:"processed"`
	Failed      int       `json:"failed"`
	Empty       int       `json:"empty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RegionResult is a stored region summary. Values are rounded to two
// decimals on save.
type RegionResult struct {
	zonal.Result
	Geometry *geom.MultiPolygon `json:"-"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// Store persists runs, their region results and class maxima.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run Run) (*Run, error)
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Results
	SaveReport(ctx context.Context, runID string, report *zonal.Report, regions []region.Region) error
	GetResults(ctx context.Context, runID string) ([]RegionResult, error)
	GetMaxima(ctx context.Context, runID string) ([]zonal.Maximum, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(filter RunFilter) int {
	if filter.Limit <= 0 {
		return defaultListLimit
	}
	return filter.Limit
}

// roundResult copies res with every area and percent rounded to two
// decimals.
func roundResult(res *zonal.Result) zonal.Result {
	out := *res
	out.Area = zonal.Round2(res.Area)
	if res.Classes != nil {
		out.Classes = make([]zonal.ClassStat, len(res.Classes))
		for i, c := range res.Classes {
			c.Area = zonal.Round2(c.Area)
			c.Percent = zonal.Round2(c.Percent)
			out.Classes[i] = c
		}
	}
	return out
}

// regionGeometry returns the geometry of the region at index, if any.
func regionGeometry(regions []region.Region, index int) *geom.MultiPolygon {
	if index < 0 || index >= len(regions) {
		return nil
	}
	return regions[index].Geometry
}

func encodeGeometry(mp *geom.MultiPolygon) ([]byte, error) {
	if mp == nil {
		return nil, nil
	}
	data, err := ewkb.Marshal(mp, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode geometry")
	}
	return data, nil
}

func decodeGeometry(data []byte) (*geom.MultiPolygon, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "store: decode geometry")
	}
	mp, ok := g.(*geom.MultiPolygon)
	if !ok {
		return nil, eris.Errorf("store: stored geometry is %T, want multipolygon", g)
	}
	return mp, nil
}

// newRun fills the generated fields of a run.
func newRun(run Run, id string) *Run {
	run.ID = id
	run.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	return &run
}
