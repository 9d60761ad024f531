package output

import (
	"context"

	"github.com/sells-group/landcover-cli/internal/zonal"
)

// MaximaFile is the file written by MaximaSink.
const MaximaFile = "class_maxima.json"

// MaximumEntry is one class's winning region in class_maxima.json.
type MaximumEntry struct {
	Code    int32   `json:"code"`
	Region  string  `json:"region"`
	Percent float64 `json:"percent"`
	Color   string  `json:"color"`
}

// MaximaSink writes, per class name, the region with the highest share.
type MaximaSink struct {
	dir string
}

// Name implements Sink.
func (s *MaximaSink) Name() string { return "maxima" }

// Write implements Sink.
func (s *MaximaSink) Write(_ context.Context, a *Analysis) error {
	doc := BuildMaxima(reportMaxima(a))

	return writeFile(s.dir, MaximaFile, writeIndentedJSON(doc))
}

// BuildMaxima keys the maxima by class name with percentages rounded to two
// decimals.
func BuildMaxima(maxima []zonal.Maximum) map[string]MaximumEntry {
	out := make(map[string]MaximumEntry, len(maxima))
	for _, m := range maxima {
		out[m.Class] = MaximumEntry{
			Code:    m.Code,
			Region:  m.Region,
			Percent: zonal.Round2(m.Percent),
			Color:   m.Color,
		}
	}
	return out
}
