package output

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/landcover-cli/internal/zonal"
)

// CSVFile is the file written by CSVSink.
const CSVFile = "region_stats.csv"

// CSVSink writes one row per region with an area and percent column pair per
// class.
type CSVSink struct {
	dir string
}

// Name implements Sink.
func (s *CSVSink) Name() string { return "csv" }

// Write implements Sink.
func (s *CSVSink) Write(_ context.Context, a *Analysis) error {
	return writeFile(s.dir, CSVFile, func(out io.Writer) error {
		w := csv.NewWriter(out)
		if err := w.Write(StatsHeader(a.Classes)); err != nil {
			return eris.Wrap(err, "output: csv header")
		}
		for _, e := range a.Entries() {
			if err := w.Write(formatRow(StatsRow(e.Result, a.Classes))); err != nil {
				return eris.Wrapf(err, "output: csv row %s", e.Result.Region)
			}
		}
		w.Flush()
		return w.Error()
	})
}

// StatsHeader returns the column names of the tabular outputs.
func StatsHeader(classes *zonal.ClassTable) []string {
	header := []string{"region", "area_total", "total_pixels"}
	if classes == nil {
		return header
	}
	for _, c := range classes.Classes() {
		header = append(header, c.Name+"_area", c.Name+"_percent")
	}
	return header
}

// StatsRow returns the region name followed by its numeric columns, rounded
// to two decimals. Classes missing from res are reported as zero.
func StatsRow(res *zonal.Result, classes *zonal.ClassTable) (string, []float64) {
	values := []float64{zonal.Round2(res.Area), float64(res.TotalPixels)}
	if classes == nil {
		return res.Region, values
	}
	for _, c := range classes.Classes() {
		stat, _ := res.Class(c.Name)
		values = append(values, zonal.Round2(stat.Area), zonal.Round2(stat.Percent))
	}
	return res.Region, values
}

func formatRow(name string, values []float64) []string {
	row := make([]string, 0, len(values)+1)
	row = append(row, name)
	for _, v := range values {
		row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return row
}
