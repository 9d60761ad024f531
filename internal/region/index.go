package region

import (
	"sort"

	"github.com/dhconnelly/rtreego"

	"github.com/sells-group/landcover-cli/internal/zonal"
)

// Index answers "which regions contain this point" using an R-tree over
// region bounding boxes followed by an exact polygon test.
type Index struct {
	rtree *rtreego.Rtree
	size  int
}

// indexEntry adapts a region to rtreego.Spatial.
type indexEntry struct {
	region Region
	rect   rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (e *indexEntry) Bounds() rtreego.Rect { return e.rect }

// minExtent keeps degenerate boxes (lines, points) insertable.
const minExtent = 1e-9

// NewIndex builds an index over regions that have geometry.
func NewIndex(regions []Region) *Index {
	tree := rtreego.NewTree(2, 25, 50)
	idx := &Index{rtree: tree}

	for _, r := range regions {
		if r.Geometry == nil || r.Geometry.Empty() {
			continue
		}
		b := r.Geometry.Bounds()
		point := rtreego.Point{b.Min(0), b.Min(1)}
		lengths := []float64{
			max(b.Max(0)-b.Min(0), minExtent),
			max(b.Max(1)-b.Min(1), minExtent),
		}
		rect, err := rtreego.NewRect(point, lengths)
		if err != nil {
			continue
		}
		tree.Insert(&indexEntry{region: r, rect: rect})
		idx.size++
	}
	return idx
}

// Len returns the number of indexed regions.
func (idx *Index) Len() int { return idx.size }

// Locate returns the regions containing (x, y), ordered by region index.
func (idx *Index) Locate(x, y float64) []Region {
	if idx.size == 0 {
		return nil
	}
	query, err := rtreego.NewRect(rtreego.Point{x, y}, []float64{minExtent, minExtent})
	if err != nil {
		return nil
	}

	var out []Region
	for _, s := range idx.rtree.SearchIntersect(query) {
		e := s.(*indexEntry)
		if zonal.ContainsMulti(e.region.Geometry, x, y) {
			out = append(out, e.region)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
