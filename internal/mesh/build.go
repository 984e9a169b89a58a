// Package mesh builds the square grid over the fire-station service areas
// and assigns point records to its cells.
package mesh

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/firerisk-cli/internal/geo"
	"github.com/sells-group/firerisk-cli/internal/table"
)

// Cell columns.
const (
	ColGridLat   = "grid_lat"
	ColGridLong  = "grid_long"
	ColIndexMesh = "index_mesh"
)

// Lattice returns the lower-left corners of the squares covering
// [lo, hi) along one axis: lo, lo+size, ... while below hi.
func Lattice(lo, hi, size float64) []float64 {
	n := int(math.Ceil((hi - lo) / size))
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + float64(i)*size
	}
	return out
}

// Build tiles the bounding box of boundary with squares of edge squareSize
// and clips every square to every boundary polygon it overlaps. Each
// non-empty intersection becomes one cell carrying the boundary row's
// attributes, its clipped geometry and its centroid (grid_lat, grid_long).
// Cells are ordered square by square (x-major, then y), then by boundary row.
func Build(boundary *table.Table, squareSize float64, proj geo.Projection) (*table.Table, error) {
	if squareSize <= 0 || math.IsNaN(squareSize) || math.IsInf(squareSize, 0) {
		return nil, eris.Errorf("mesh: invalid square size %v", squareSize)
	}
	if err := boundary.Require(table.GeometryColumn); err != nil {
		return nil, eris.Wrap(err, "mesh: build")
	}

	var (
		polys  []geom.T
		rowIdx []int
		extent = geom.NewBounds(geom.XY)
	)
	for i := 0; i < boundary.Len(); i++ {
		v := boundary.Value(i, table.GeometryColumn)
		if v == nil {
			continue
		}
		g, ok := v.(geom.T)
		if !ok {
			return nil, eris.Errorf("mesh: boundary row %d: geometry has type %T", i, v)
		}
		switch g.(type) {
		case *geom.Polygon, *geom.MultiPolygon:
		default:
			return nil, eris.Errorf("mesh: boundary row %d: %T is not polygonal", i, g)
		}
		if g.Empty() {
			continue
		}
		polys = append(polys, g)
		rowIdx = append(rowIdx, i)
		extent.Extend(g)
	}

	var attrs []string
	for _, c := range boundary.Columns() {
		if c != table.GeometryColumn {
			attrs = append(attrs, c)
		}
	}
	out := table.New(append(append([]string{}, attrs...), table.GeometryColumn, ColGridLong, ColGridLat)...)
	if len(polys) == 0 {
		return out, nil
	}

	bounds := make([]*geom.Bounds, len(polys))
	for k, g := range polys {
		bounds[k] = g.Bounds()
	}

	xs := Lattice(extent.Min(0), extent.Max(0), squareSize)
	ys := Lattice(extent.Min(1), extent.Max(1), squareSize)
	for _, x := range xs {
		for _, y := range ys {
			sq := geo.Rect{MinX: x, MinY: y, MaxX: x + squareSize, MaxY: y + squareSize}
			for k, g := range polys {
				if !sq.Overlaps(bounds[k]) {
					continue
				}
				cell := geo.ClipRect(g, sq)
				if cell == nil {
					continue
				}
				lat, lon, err := geo.Centroid(cell, proj)
				if err != nil {
					return nil, eris.Wrap(err, "mesh: cell centroid")
				}
				row := make([]any, 0, len(attrs)+3)
				for _, a := range attrs {
					row = append(row, boundary.Value(rowIdx[k], a))
				}
				row = append(row, cell, lon, lat)
				out.Append(row...)
			}
		}
	}

	zap.L().With(zap.String("component", "mesh")).Info("mesh built",
		zap.Float64("square_size", squareSize),
		zap.Int("squares", len(xs)*len(ys)),
		zap.Int("cells", out.Len()),
	)
	return out, nil
}

// Indexed returns a copy of cells with the index_mesh column Join assigns.
func Indexed(cells *table.Table) *table.Table {
	out := cells.Clone()
	idx := make([]any, out.Len())
	for i := range idx {
		idx[i] = int64(i)
	}
	_ = out.SetColumn(ColIndexMesh, idx)
	return out
}
