package zonal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/landcover-cli/internal/raster"
)

type testZone struct {
	index    int
	name     string
	geometry *geom.MultiPolygon
}

func (z testZone) ZoneIndex() int                   { return z.index }
func (z testZone) ZoneName() string                 { return z.name }
func (z testZone) ZoneGeometry() *geom.MultiPolygon { return z.geometry }

type panicEngine struct{ inner Engine }

func (e panicEngine) Compute(ctx context.Context, g *raster.Grid, z Zone) (*Result, error) {
	if z.ZoneName() == "boom" {
		panic("malformed")
	}
	return e.inner.Compute(ctx, g, z)
}

func forestTable(t *testing.T) *ClassTable {
	t.Helper()
	ct, err := NewClassTable([]Class{
		{Code: 1, Name: "Forest", Color: "#397d49"},
		{Code: 2, Name: "Water", Color: "#419bdf"},
		{Code: 3, Name: "Snow", Color: "#b39fe1"},
	})
	require.NoError(t, err)
	return ct
}

func withForest(name string, pct float64) *Result {
	return &Result{
		Region:      name,
		TotalPixels: 100,
		Classes: []ClassStat{
			{Code: 1, Name: "Forest", Percent: pct},
			{Code: 2, Name: "Water", Percent: 100 - pct},
			{Code: 3, Name: "Snow", Percent: 0},
		},
	}
}

func TestMaxima_TieKeepsFirstRegion(t *testing.T) {
	results := []*Result{
		withForest("first", 10.0),
		withForest("second", 55.5),
		withForest("third", 55.5),
	}

	maxima := Maxima(forestTable(t), results)

	require.Len(t, maxima, 2)
	assert.Equal(t, "Forest", maxima[0].Class)
	assert.Equal(t, "second", maxima[0].Region)
	assert.InDelta(t, 55.5, maxima[0].Percent, 1e-9)
	assert.Equal(t, "#397d49", maxima[0].Color)

	assert.Equal(t, "Water", maxima[1].Class)
	assert.Equal(t, "first", maxima[1].Region)
}

func TestMaxima_SkipsAbsentAndEmpty(t *testing.T) {
	results := []*Result{
		nil,
		{Region: "empty"},
		withForest("only", 20),
	}

	maxima := Maxima(forestTable(t), results)
	require.NotEmpty(t, maxima)
	assert.Equal(t, "only", maxima[0].Region)

	assert.Empty(t, Maxima(forestTable(t), []*Result{nil, {Region: "empty"}}))
}

func fourRegionGrid(t *testing.T) *raster.Grid {
	return testGrid(t, [][]int32{
		{1, 1, 2, 2},
		{1, 1, 2, 2},
		{3, 3, 0, 0},
		{3, 3, 0, 0},
	})
}

func quadrantZones() []Zone {
	return []Zone{
		testZone{0, "north-west", multi(poly(rect(0, 2, 2, 4)))},
		testZone{1, "north-east", multi(poly(rect(2, 2, 4, 4)))},
		testZone{2, "broken", nil},
		testZone{3, "south-east", multi(poly(rect(2, 0, 4, 2)))},
		testZone{4, "south-west", multi(poly(rect(0, 0, 2, 2)))},
		testZone{5, "offshore", multi(poly(rect(10, 10, 12, 12)))},
	}
}

func TestRunner_PreservesOrderAndRecordsFailures(t *testing.T) {
	ct := forestTable(t)
	r := NewRunner(NewEngine(ct), ct, 4)

	report, err := r.Run(context.Background(), fourRegionGrid(t), quadrantZones())
	require.NoError(t, err)

	require.Len(t, report.Results, 6)
	assert.Equal(t, 6, report.Processed)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Empty)

	names := []string{"north-west", "north-east", "", "south-east", "south-west", ""}
	for i, want := range names {
		if want == "" {
			assert.Nil(t, report.Results[i])
			continue
		}
		require.NotNil(t, report.Results[i], "result %d", i)
		assert.Equal(t, want, report.Results[i].Region)
		assert.Equal(t, i, report.Results[i].Index)
	}

	// processed but empty is not the same as absent
	assert.True(t, report.Results[3].Empty())
	assert.Len(t, report.Present(), 4)

	forest, _ := report.Results[0].Class("Forest")
	assert.InDelta(t, 100.0, forest.Percent, 1e-9)
	assert.InDelta(t, 4.0, forest.Area, 1e-9)

	require.Len(t, report.Maxima, 3)
	assert.Equal(t, "north-west", report.Maxima[0].Region)
	assert.Equal(t, "north-east", report.Maxima[1].Region)
	assert.Equal(t, "south-west", report.Maxima[2].Region)
}

func TestRunner_SequentialMatchesParallel(t *testing.T) {
	ct := forestTable(t)
	g := fourRegionGrid(t)

	seq, err := NewRunner(NewEngine(ct), ct, 1).Run(context.Background(), g, quadrantZones())
	require.NoError(t, err)
	par, err := NewRunner(NewEngine(ct), ct, 8).Run(context.Background(), g, quadrantZones())
	require.NoError(t, err)

	assert.Equal(t, seq.Results, par.Results)
	assert.Equal(t, seq.Maxima, par.Maxima)
}

func TestRunner_PanicBecomesAbsence(t *testing.T) {
	ct := forestTable(t)
	r := NewRunner(panicEngine{inner: NewEngine(ct)}, ct, 2)

	zones := []Zone{
		testZone{0, "boom", multi(poly(rect(0, 0, 4, 4)))},
		testZone{1, "fine", multi(poly(rect(0, 0, 4, 4)))},
	}
	report, err := r.Run(context.Background(), fourRegionGrid(t), zones)
	require.NoError(t, err)

	assert.Nil(t, report.Results[0])
	require.NotNil(t, report.Results[1])
	assert.Equal(t, 12, report.Results[1].TotalPixels)
	assert.Equal(t, 1, report.Failed)
}

func TestRunner_Cancelled(t *testing.T) {
	ct := forestTable(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(NewEngine(ct), ct, 2).Run(ctx, fourRegionGrid(t), quadrantZones())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunner_OffGridIsFailureNotNoData(t *testing.T) {
	ct := forestTable(t)
	g := testGrid(t, [][]int32{{1, 1}, {1, 1}})
	zones := []Zone{
		testZone{0, "offgrid", multi(poly(rect(100, 100, 110, 110)))},
		testZone{1, "zeros", multi(poly(rect(0, 0, 2, 2)))},
	}
	zeros := testGrid(t, [][]int32{{0, 0}, {0, 0}})

	_, err := NewEngine(ct).Compute(context.Background(), g, zones[0])
	assert.ErrorContains(t, err, `region "offgrid" does not intersect the grid`)

	report, err := NewRunner(NewEngine(ct), ct, 2).Run(context.Background(), zeros, zones)
	require.NoError(t, err)
	assert.Nil(t, report.Results[0])
	require.NotNil(t, report.Results[1])
	assert.True(t, report.Results[1].Empty())
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Empty)

	_, err = NewEngine(ct).Compute(context.Background(), g, testZone{2, "hollow", geom.NewMultiPolygon(geom.XY)})
	assert.Error(t, err)
}

func TestMaxima_ComparesFullPrecision(t *testing.T) {
	maxima := Maxima(forestTable(t), []*Result{
		withForest("first", 55.501),
		withForest("second", 55.504),
	})
	require.NotEmpty(t, maxima)
	assert.Equal(t, "second", maxima[0].Region)
	assert.InDelta(t, 55.50, Round2(maxima[0].Percent), 1e-9)
}

func TestEngine_Options(t *testing.T) {
	ct := forestTable(t)
	g := testGrid(t, [][]int32{{1, 9}})
	z := testZone{0, "r", multi(poly(rect(0, 0, 2, 1)))}

	res, err := NewEngine(ct).Compute(context.Background(), g, z)
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalPixels)

	res, err = NewEngine(ct, WithCountUnrecognized(false), WithAreaScale(10)).Compute(context.Background(), g, z)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalPixels)
	assert.InDelta(t, 10.0, res.Area, 1e-9)
}
