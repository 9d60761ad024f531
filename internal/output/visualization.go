package output

import (
	"context"
	"strconv"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/landcover-cli/internal/zonal"
)

// VisualizationFile is the file written by VisualizationSink.
const VisualizationFile = "visualization.json"

// LegendEntry describes one class in the visualization legend.
type LegendEntry struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ClassSummary is the rounded share of one class in one region.
type ClassSummary struct {
	Area    float64 `json:"area"`
	Percent float64 `json:"percent"`
	Color   string  `json:"color"`
}

// RegionProperties are the per-region fields shared by the JSON and GeoJSON
// outputs.
type RegionProperties struct {
	Region      string                  `json:"region"`
	AreaTotal   float64                 `json:"area_total"`
	TotalPixels int                     `json:"total_pixels"`
	NoData      bool                    `json:"no_data,omitempty"`
	Classes     map[string]ClassSummary `json:"classes"`
}

type pointGeometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

type pointFeature struct {
	Type       string           `json:"type"`
	Properties RegionProperties `json:"properties"`
	Geometry   *pointGeometry   `json:"geometry"`
}

type featureCollection struct {
	Type     string         `json:"type"`
	Features []pointFeature `json:"features"`
}

// Visualization is the document written to visualization.json.
type Visualization struct {
	Classes map[string]LegendEntry `json:"classes"`
	Regions featureCollection      `json:"regions"`
}

// VisualizationSink writes a class legend plus one display point per region.
type VisualizationSink struct {
	dir     string
	locator PointLocator
}

// Name implements Sink.
func (s *VisualizationSink) Name() string { return "json" }

// Write implements Sink.
func (s *VisualizationSink) Write(_ context.Context, a *Analysis) error {
	doc := BuildVisualization(a, s.locator)

	return writeFile(s.dir, VisualizationFile, writeIndentedJSON(doc))
}

// BuildVisualization assembles the visualization document.
func BuildVisualization(a *Analysis, locator PointLocator) *Visualization {
	if locator == nil {
		locator = CentroidLocator
	}
	doc := &Visualization{
		Classes: make(map[string]LegendEntry),
		Regions: featureCollection{Type: "FeatureCollection", Features: []pointFeature{}},
	}
	if a.Classes != nil {
		for _, c := range a.Classes.Classes() {
			doc.Classes[strconv.Itoa(int(c.Code))] = LegendEntry{Name: c.Name, Color: c.Color}
		}
	}

	for _, e := range a.Entries() {
		feat := pointFeature{Type: "Feature", Properties: Properties(e.Result)}
		if pt, ok := displayPoint(locator, e); ok {
			feat.Geometry = &pointGeometry{Type: "Point", Coordinates: []float64{pt[0], pt[1]}}
		}
		doc.Regions.Features = append(doc.Regions.Features, feat)
	}
	return doc
}

// Properties summarizes a result with values rounded to two decimals. Empty
// regions are flagged with NoData and carry no classes.
func Properties(res *zonal.Result) RegionProperties {
	p := RegionProperties{
		Region:      res.Region,
		AreaTotal:   zonal.Round2(res.Area),
		TotalPixels: res.TotalPixels,
		Classes:     make(map[string]ClassSummary, len(res.Classes)),
	}
	if res.Empty() {
		p.NoData = true
		return p
	}
	for _, c := range res.Classes {
		p.Classes[c.Name] = ClassSummary{
			Area:    zonal.Round2(c.Area),
			Percent: zonal.Round2(c.Percent),
			Color:   c.Color,
		}
	}
	return p
}

// displayPoint asks locator first and falls back to the centroid.
func displayPoint(locator PointLocator, e Entry) (geom.Coord, bool) {
	if e.Region == nil {
		return nil, false
	}
	if pt, ok := locator.Locate(e.Region); ok {
		return pt, true
	}
	if pt, ok := CentroidLocator.Locate(e.Region); ok {
		return pt, true
	}
	zap.L().Warn("output: region has no display point", zap.String("region", e.Result.Region))
	return nil, false
}
