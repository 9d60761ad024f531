package output

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/landcover-cli/internal/zonal"
)

// XLSXFile is the file written by XLSXSink.
const XLSXFile = "region_stats.xlsx"

// XLSXSink writes a workbook with a Regions sheet (same columns as the CSV)
// and a Maxima sheet.
type XLSXSink struct {
	dir string
}

// Name implements Sink.
func (s *XLSXSink) Name() string { return "xlsx" }

// Write implements Sink.
func (s *XLSXSink) Write(_ context.Context, a *Analysis) error {
	f := xlsx.NewFile()

	regions, err := f.AddSheet("Regions")
	if err != nil {
		return eris.Wrap(err, "output: add regions sheet")
	}
	addStringRow(regions, StatsHeader(a.Classes))
	for _, e := range a.Entries() {
		name, values := StatsRow(e.Result, a.Classes)
		row := regions.AddRow()
		row.AddCell().SetString(name)
		for _, v := range values {
			row.AddCell().SetFloat(v)
		}
	}

	maxima, err := f.AddSheet("Maxima")
	if err != nil {
		return eris.Wrap(err, "output: add maxima sheet")
	}
	addStringRow(maxima, []string{"code", "class", "region", "percent", "color"})
	for _, m := range reportMaxima(a) {
		row := maxima.AddRow()
		row.AddCell().SetInt(int(m.Code))
		row.AddCell().SetString(m.Class)
		row.AddCell().SetString(m.Region)
		row.AddCell().SetFloat(zonal.Round2(m.Percent))
		row.AddCell().SetString(m.Color)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "output: create dir %s", s.dir)
	}
	path := filepath.Join(s.dir, XLSXFile)
	return eris.Wrapf(f.Save(path), "output: save %s", path)
}

func addStringRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

// reportMaxima returns the report's maxima, computing them when the report
// was built without.
func reportMaxima(a *Analysis) []zonal.Maximum {
	if a.Report == nil {
		return nil
	}
	if a.Report.Maxima != nil || a.Classes == nil {
		return a.Report.Maxima
	}
	return zonal.Maxima(a.Classes, a.Report.Results)
}
