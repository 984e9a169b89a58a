package mesh

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/firerisk-cli/internal/geo"
	"github.com/sells-group/firerisk-cli/internal/table"
)

// Coordinate columns of point tables.
const (
	ColLatitude  = "LATITUDE"
	ColLongitude = "LONGITUDE"
)

// Suffixes applied to colliding column names.
const (
	LeftSuffix  = "_left"
	RightSuffix = "_mesh"
)

// Join assigns every row of points to each mesh cell its LONGITUDE/LATITUDE
// falls in or on, then keeps the first assignment per key. The result holds
// the point columns, index_mesh and the cell attributes (grid_lat, grid_long
// and the service-area fields); no geometry. Rows without coordinates or
// outside every cell are dropped.
func Join(points, cells *table.Table, key string) (*table.Table, error) {
	if err := points.Require(ColLatitude, ColLongitude, key); err != nil {
		return nil, eris.Wrap(err, "mesh: join")
	}
	if err := cells.Require(table.GeometryColumn); err != nil {
		return nil, eris.Wrap(err, "mesh: join")
	}

	geoms := make([]geom.T, cells.Len())
	for i := range geoms {
		if g, ok := cells.Value(i, table.GeometryColumn).(geom.T); ok {
			geoms[i] = g
		}
	}
	ix := NewIndex(geoms)

	// A stale index_mesh on the cells is replaced by the fresh one; on the
	// points it collides like any shared column.
	var left, right []string
	for _, c := range points.Columns() {
		if c != table.GeometryColumn {
			left = append(left, c)
		}
	}
	for _, c := range cells.Columns() {
		if c != table.GeometryColumn && c != ColIndexMesh {
			right = append(right, c)
		}
	}

	leftSet := make(map[string]bool, len(left))
	for _, c := range left {
		leftSet[c] = true
	}
	rightSet := map[string]bool{ColIndexMesh: true}
	for _, c := range right {
		rightSet[c] = true
	}

	outCols := make([]string, 0, len(left)+len(right)+1)
	for _, c := range left {
		if rightSet[c] {
			c += LeftSuffix
		}
		outCols = append(outCols, c)
	}
	outCols = append(outCols, ColIndexMesh)
	for _, c := range right {
		if leftSet[c] {
			c += RightSuffix
		}
		outCols = append(outCols, c)
	}
	joined := table.New(outCols...)

	for i := 0; i < points.Len(); i++ {
		x, okX := table.AsFloat(points.Value(i, ColLongitude))
		y, okY := table.AsFloat(points.Value(i, ColLatitude))
		if !okX || !okY {
			continue
		}
		for _, ci := range ix.Candidates(x, y) {
			if !geo.Intersects(geoms[ci], x, y) {
				continue
			}
			row := make([]any, 0, len(outCols))
			for _, c := range left {
				row = append(row, points.Value(i, c))
			}
			row = append(row, int64(ci))
			for _, c := range right {
				row = append(row, cells.Value(ci, c))
			}
			joined.Append(row...)
		}
	}

	// Left-side key collisions are renamed; dedup on whatever the key became.
	dedupKey := key
	if leftSet[key] && rightSet[key] {
		dedupKey = key + LeftSuffix
	}
	out := joined.DropDuplicates(dedupKey)

	zap.L().With(zap.String("component", "mesh")).Debug("spatial join",
		zap.String("key", key),
		zap.Int("points", points.Len()),
		zap.Int("matches", joined.Len()),
		zap.Int("rows_out", out.Len()),
	)
	return out, nil
}
