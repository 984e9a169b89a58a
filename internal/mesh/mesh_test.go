package mesh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/firerisk-cli/internal/geo"
	"github.com/sells-group/firerisk-cli/internal/table"
)

// utm returns zone 31N, whose central meridian (3°E) is near the synthetic
// areas below.
func utm(t *testing.T) geo.Projection {
	t.Helper()
	p, err := geo.NewUTM(31, false)
	require.NoError(t, err)
	return p
}

// areas returns two adjacent service areas: station 1 covers x in [0,1],
// station 2 is a triangle over x in [1,2].
func areas() *table.Table {
	t := table.New("FIRE_STATION_ID", table.GeometryColumn)
	t.Append(int64(1), geo.Rect{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}.Polygon())
	t.Append(int64(2), geom.NewPolygonFlat(geom.XY, []float64{1, 0, 2, 0, 1, 1, 1, 0}, []int{8}))
	return t
}

func TestLattice(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5}, Lattice(0, 1, 0.5))
	assert.Len(t, Lattice(0, 1, 0.3), 4)
	assert.Len(t, Lattice(0, 1, 5), 1)
	assert.Empty(t, Lattice(1, 1, 0.5))
}

func TestBuild_InvalidSize(t *testing.T) {
	_, err := Build(areas(), 0, utm(t))
	require.Error(t, err)
	_, err = Build(areas(), -1, utm(t))
	require.Error(t, err)
}

func TestBuild_ClipsToBoundary(t *testing.T) {
	b := areas()
	cells, err := Build(b, 0.5, utm(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"FIRE_STATION_ID", table.GeometryColumn, ColGridLong, ColGridLat}, cells.Columns())

	var total float64
	for i := 0; i < cells.Len(); i++ {
		g := cells.Value(i, table.GeometryColumn).(geom.T)
		total += geo.Area(g)

		owner := b.Value(int(cells.Value(i, "FIRE_STATION_ID").(int64))-1, table.GeometryColumn).(geom.T)
		flat := g.FlatCoords()
		for j := 0; j+1 < len(flat); j += g.Stride() {
			assert.True(t, geo.Intersects(owner, flat[j], flat[j+1]), "cell %d vertex outside its area", i)
		}
	}
	// Square (1) plus triangle (0.5).
	assert.InDelta(t, 1.5, total, 1e-9)

	// Four full squares for station 1; the triangle yields three pieces.
	count := map[int64]int{}
	for _, v := range cells.Column("FIRE_STATION_ID") {
		count[v.(int64)]++
	}
	assert.Equal(t, 4, count[1])
	assert.Equal(t, 3, count[2])
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(areas(), 0.25, utm(t))
	require.NoError(t, err)
	b, err := Build(areas(), 0.25, utm(t))
	require.NoError(t, err)

	require.Equal(t, a.Len(), b.Len())
	for i := 0; i < a.Len(); i++ {
		ga := a.Value(i, table.GeometryColumn).(geom.T)
		gb := b.Value(i, table.GeometryColumn).(geom.T)
		assert.Equal(t, ga.FlatCoords(), gb.FlatCoords())
		assert.Equal(t, a.Value(i, ColGridLat), b.Value(i, ColGridLat))
	}
}

func TestBuild_SingleCell(t *testing.T) {
	b := table.New("FIRE_STATION_ID", table.GeometryColumn)
	b.Append(int64(7), geo.Rect{MinX: -73.60, MinY: 45.50, MaxX: -73.58, MaxY: 45.52}.Polygon())

	proj, err := geo.NewUTM(geo.DefaultUTMZone, false)
	require.NoError(t, err)

	cells, err := Build(b, 1, proj)
	require.NoError(t, err)
	require.Equal(t, 1, cells.Len())
	assert.InDelta(t, 45.51, cells.Value(0, ColGridLat), 1e-3)
	assert.InDelta(t, -73.59, cells.Value(0, ColGridLong), 1e-3)
}

func TestBuild_NoGeometry(t *testing.T) {
	b := table.New("FIRE_STATION_ID")
	_, err := Build(b, 0.1, utm(t))
	require.Error(t, err)
}

func TestIndex_Candidates(t *testing.T) {
	gs := []geom.T{
		geo.Rect{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}.Polygon(),
		nil,
		geo.Rect{MinX: 1, MinY: 0, MaxX: 2, MaxY: 1}.Polygon(),
	}
	ix := NewIndex(gs)

	assert.Equal(t, []int{0, 2}, ix.Candidates(1, 0.5))
	assert.Contains(t, ix.Candidates(0.5, 0.5), 0)
	assert.Empty(t, ix.Candidates(10, 10))
	assert.Equal(t, 3, ix.Len())
}

func points(key string, coords ...[2]float64) *table.Table {
	t := table.New(key, "LATITUDE", "LONGITUDE")
	for i, c := range coords {
		t.Append(int64(i), c[1], c[0])
	}
	return t
}

func TestJoin_Completeness(t *testing.T) {
	cells, err := Build(areas(), 0.5, utm(t))
	require.NoError(t, err)

	pts := points("INCIDENT_ID", [2]float64{0.2, 0.2}, [2]float64{0.7, 0.8}, [2]float64{1.2, 0.1}, [2]float64{5, 5})
	pts.Append(int64(9), nil, 0.3)

	out, err := Join(pts, cells, "INCIDENT_ID")
	require.NoError(t, err)

	require.Equal(t, 3, out.Len())
	assert.Equal(t, []any{int64(0), int64(1), int64(2)}, out.Column("INCIDENT_ID"))
	assert.Equal(t, []any{int64(1), int64(1), int64(2)}, out.Column("FIRE_STATION_ID"))
	assert.False(t, out.Has(table.GeometryColumn))
	for i := 0; i < out.Len(); i++ {
		ci := int(out.Value(i, ColIndexMesh).(int64))
		assert.Equal(t, cells.Value(ci, ColGridLat), out.Value(i, ColGridLat))
	}
}

func TestJoin_BoundaryPointDeduplicated(t *testing.T) {
	cells, err := Build(areas(), 0.5, utm(t))
	require.NoError(t, err)

	// Shared corner of four cells.
	pts := points("ASSESSMENT_ID", [2]float64{0.5, 0.5})
	out, err := Join(pts, cells, "ASSESSMENT_ID")
	require.NoError(t, err)

	require.Equal(t, 1, out.Len())
	assert.Equal(t, int64(0), out.Value(0, ColIndexMesh))
}

func TestJoin_ColumnCollisions(t *testing.T) {
	cells, err := Build(areas(), 1, utm(t))
	require.NoError(t, err)

	pts := table.New("DGUID", "LATITUDE", "LONGITUDE", "FIRE_STATION_ID")
	pts.Append("A", 0.5, 0.5, "x")

	out, err := Join(pts, cells, "DGUID")
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, "x", out.Value(0, "FIRE_STATION_ID_left"))
	assert.Equal(t, int64(1), out.Value(0, "FIRE_STATION_ID_mesh"))
}

func TestJoin_MissingKey(t *testing.T) {
	cells, err := Build(areas(), 1, utm(t))
	require.NoError(t, err)
	_, err = Join(points("INCIDENT_ID"), cells, "DGUID")
	require.Error(t, err)
}

func TestIndexed(t *testing.T) {
	cells, err := Build(areas(), 0.5, utm(t))
	require.NoError(t, err)

	out := Indexed(cells)
	require.Equal(t, cells.Len(), out.Len())
	assert.False(t, cells.Has(ColIndexMesh))
	for i := 0; i < out.Len(); i++ {
		assert.Equal(t, int64(i), out.Value(i, ColIndexMesh))
	}
}

// uShape is [0,3]² with the notch [1.4,1.6]×[1,3] cut from the top, so a
// 2-degree square over its upper half spans both arms.
func uShape() *table.Table {
	t := table.New("FIRE_STATION_ID", table.GeometryColumn)
	t.Append(int64(5), geom.NewPolygonFlat(geom.XY, []float64{
		0, 0, 3, 0, 3, 3, 1.6, 3, 1.6, 1, 1.4, 1, 1.4, 3, 0, 3, 0, 0,
	}, []int{18}))
	return t
}

func TestBuild_ConcaveAreaSplitsCells(t *testing.T) {
	cells, err := Build(uShape(), 2, utm(t))
	require.NoError(t, err)
	u := uShape().Value(0, table.GeometryColumn).(geom.T)

	var total float64
	multi := 0
	for i := 0; i < cells.Len(); i++ {
		g := cells.Value(i, table.GeometryColumn).(geom.T)
		total += geo.Area(g)
		if _, ok := g.(*geom.MultiPolygon); ok {
			multi++
		}
		for _, p := range [][2]float64{{1.5, 2}, {1.5, 2.5}, {1.45, 3}} {
			assert.False(t, geo.Intersects(g, p[0], p[1]), "cell %d covers (%v, %v) in the notch", i, p[0], p[1])
		}
	}
	assert.InDelta(t, geo.Area(u), total, 1e-9)
	assert.Equal(t, 1, multi, "the upper-left square holds both arms")

	pts := points("INCIDENT_ID", [2]float64{1.5, 2}, [2]float64{1, 2.5}, [2]float64{1.7, 2.5})
	out, err := Join(pts, cells, "INCIDENT_ID")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, out.Column("INCIDENT_ID"))
}

func TestJoin_IndexedCells(t *testing.T) {
	cells, err := Build(areas(), 0.5, utm(t))
	require.NoError(t, err)
	indexed := Indexed(cells)

	pts := points("INCIDENT_ID", [2]float64{0.7, 0.8}, [2]float64{1.2, 0.1})
	var out *table.Table
	require.NotPanics(t, func() { out, err = Join(pts, indexed, "INCIDENT_ID") })
	require.NoError(t, err)

	plain, err := Join(pts, cells, "INCIDENT_ID")
	require.NoError(t, err)
	assert.Equal(t, plain.Columns(), out.Columns())
	assert.Equal(t, plain.Column(ColIndexMesh), out.Column(ColIndexMesh))
}

func TestJoin_PointsCarryIndexMesh(t *testing.T) {
	cells, err := Build(areas(), 1, utm(t))
	require.NoError(t, err)

	pts := table.New("DGUID", "LATITUDE", "LONGITUDE", ColIndexMesh)
	pts.Append("A", 0.5, 0.5, int64(99))

	var out *table.Table
	require.NotPanics(t, func() { out, err = Join(pts, Indexed(cells), "DGUID") })
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	assert.Equal(t, int64(99), out.Value(0, ColIndexMesh+LeftSuffix))
	assert.Equal(t, int64(0), out.Value(0, ColIndexMesh))
}
