package mesh

import (
	"math"

	"github.com/twpayne/go-geom"
)

// Index is a uniform bucket grid over cell bounding boxes. Candidates are
// returned in ascending cell order.
type Index struct {
	originX, originY float64
	size             float64
	buckets          map[[2]int][]int
	geoms            []geom.T
}

// NewIndex indexes geometries by position. Nil geometries are never returned
// as candidates.
func NewIndex(geoms []geom.T) *Index {
	ix := &Index{buckets: make(map[[2]int][]int), geoms: geoms}

	extent := geom.NewBounds(geom.XY)
	var maxSpan float64
	for _, g := range geoms {
		if g == nil || g.Empty() {
			continue
		}
		b := g.Bounds()
		extent.Extend(g)
		maxSpan = math.Max(maxSpan, math.Max(b.Max(0)-b.Min(0), b.Max(1)-b.Min(1)))
	}
	if extent.IsEmpty() {
		return ix
	}
	ix.originX, ix.originY = extent.Min(0), extent.Min(1)
	ix.size = maxSpan
	if ix.size <= 0 {
		ix.size = 1
	}

	for i, g := range geoms {
		if g == nil || g.Empty() {
			continue
		}
		b := g.Bounds()
		x0, y0 := ix.bucket(b.Min(0), b.Min(1))
		x1, y1 := ix.bucket(b.Max(0), b.Max(1))
		for bx := x0; bx <= x1; bx++ {
			for by := y0; by <= y1; by++ {
				k := [2]int{bx, by}
				ix.buckets[k] = append(ix.buckets[k], i)
			}
		}
	}
	return ix
}

func (ix *Index) bucket(x, y float64) (int, int) {
	return int(math.Floor((x - ix.originX) / ix.size)), int(math.Floor((y - ix.originY) / ix.size))
}

// Candidates returns the indexes of geometries whose bounding box may
// contain (x, y).
func (ix *Index) Candidates(x, y float64) []int {
	if ix.size == 0 {
		return nil
	}
	bx, by := ix.bucket(x, y)
	return ix.buckets[[2]int{bx, by}]
}

// Len returns the number of indexed geometries, including nil slots.
func (ix *Index) Len() int { return len(ix.geoms) }

// Geometry returns the geometry at i.
func (ix *Index) Geometry(i int) geom.T { return ix.geoms[i] }
