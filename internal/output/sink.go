// Package output writes zonal statistics reports to files.
package output

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/sells-group/landcover-cli/internal/region"
	"github.com/sells-group/landcover-cli/internal/zonal"
)

// Analysis bundles a batch report with the regions and class table it was
// computed from. Report.Results[i] belongs to Regions[i].
type Analysis struct {
	Report  *zonal.Report
	Regions []region.Region
	Classes *zonal.ClassTable
}

// Entry pairs a present result with its region.
type Entry struct {
	Region *region.Region
	Result *zonal.Result
}

// Entries returns the present results in input order. Absent (failed)
// regions are skipped.
func (a *Analysis) Entries() []Entry {
	if a.Report == nil {
		return nil
	}
	out := make([]Entry, 0, len(a.Report.Results))
	for i, res := range a.Report.Results {
		if res == nil {
			continue
		}
		e := Entry{Result: res}
		if i < len(a.Regions) {
			e.Region = &a.Regions[i]
		}
		out = append(out, e)
	}
	return out
}

// Sink writes an analysis to one destination.
type Sink interface {
	Name() string
	Write(ctx context.Context, a *Analysis) error
}

// PointLocator picks the display point of a region.
type PointLocator interface {
	Locate(r *region.Region) (geom.Coord, bool)
}

// PointLocatorFunc adapts a function to PointLocator.
type PointLocatorFunc func(r *region.Region) (geom.Coord, bool)

// Locate implements PointLocator.
func (f PointLocatorFunc) Locate(r *region.Region) (geom.Coord, bool) { return f(r) }

// CentroidLocator places the point at the area centroid of the region,
// falling back to the centre of its bounding box.
var CentroidLocator = PointLocatorFunc(func(r *region.Region) (geom.Coord, bool) {
	if r == nil || r.Geometry == nil || r.Geometry.Empty() {
		return nil, false
	}
	if c, err := xy.Centroid(r.Geometry); err == nil && len(c) >= 2 {
		return geom.Coord{c[0], c[1]}, true
	}
	b := r.Geometry.Bounds()
	return geom.Coord{(b.Min(0) + b.Max(0)) / 2, (b.Min(1) + b.Max(1)) / 2}, true
})

// Options configures the sinks built by New.
type Options struct {
	Dir     string
	Locator PointLocator
}

// Formats lists the supported sink names.
var Formats = []string{"json", "geojson", "csv", "xlsx", "maxima"}

// New builds the sinks for formats, in the given order.
func New(formats []string, opts Options) ([]Sink, error) {
	if opts.Dir == "" {
		return nil, eris.New("output: directory is required")
	}
	if opts.Locator == nil {
		opts.Locator = CentroidLocator
	}

	seen := make(map[string]bool, len(formats))
	var sinks []Sink
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true

		switch f {
		case "json":
			sinks = append(sinks, &VisualizationSink{dir: opts.Dir, locator: opts.Locator})
		case "geojson":
			sinks = append(sinks, &GeoJSONSink{dir: opts.Dir, locator: opts.Locator})
		case "csv":
			sinks = append(sinks, &CSVSink{dir: opts.Dir})
		case "xlsx":
			sinks = append(sinks, &XLSXSink{dir: opts.Dir})
		case "maxima":
			sinks = append(sinks, &MaximaSink{dir: opts.Dir})
		default:
			return nil, eris.Errorf("output: unknown format %q (supported: %s)", f, strings.Join(Formats, ", "))
		}
	}
	return sinks, nil
}

// WriteAll runs every sink in order and returns the paths reported by the
// sinks that succeeded. It stops at the first failure.
func WriteAll(ctx context.Context, sinks []Sink, a *Analysis) error {
	for _, s := range sinks {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "output: write")
		}
		if err := s.Write(ctx, a); err != nil {
			return eris.Wrapf(err, "output: %s sink", s.Name())
		}
		zap.L().Info("output: wrote sink", zap.String("format", s.Name()))
	}
	return nil
}

// createFile makes dir if needed and creates name inside it.
func createFile(dir, name string) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", eris.Wrapf(err, "output: create dir %s", dir)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", eris.Wrapf(err, "output: create %s", path)
	}
	return f, path, nil
}

// writeFile creates dir/name, fills it with fill and closes it once. The
// file is closed on every path; a close error is reported only when fill
// succeeded.
func writeFile(dir, name string, fill func(w io.Writer) error) error {
	f, path, err := createFile(dir, name)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		return eris.Wrapf(err, "output: write %s", path)
	}
	return eris.Wrapf(f.Close(), "output: close %s", path)
}

// writeIndentedJSON is a writeFile fill for pretty-printed JSON documents.
func writeIndentedJSON(doc any) func(io.Writer) error {
	return func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
}
