package preprocess

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/firerisk-cli/internal/geo"
	"github.com/sells-group/firerisk-cli/internal/table"
)

// Canonical coordinate columns.
const (
	ColLatitude  = "LATITUDE"
	ColLongitude = "LONGITUDE"
)

// PointsFromGeometry replaces the geometry column with LATITUDE/LONGITUDE of
// each geometry's centroid, computed in the planar system of proj. Null or
// empty geometries yield null coordinates. A cell that is not a geometry is
// an error.
func PointsFromGeometry(t *table.Table, proj geo.Projection) (*table.Table, error) {
	if err := t.Require(table.GeometryColumn); err != nil {
		return nil, eris.Wrap(err, "preprocess: points from geometry")
	}

	lats := make([]any, t.Len())
	lons := make([]any, t.Len())
	for i := 0; i < t.Len(); i++ {
		v := t.Value(i, table.GeometryColumn)
		if v == nil {
			continue
		}
		g, ok := v.(geom.T)
		if !ok {
			return nil, eris.Errorf("preprocess: row %d: geometry has type %T", i, v)
		}
		if g.Empty() {
			continue
		}
		lat, lon, err := geo.Centroid(g, proj)
		if err != nil {
			return nil, eris.Wrapf(err, "preprocess: row %d", i)
		}
		lats[i], lons[i] = lat, lon
	}

	if err := t.SetColumn(ColLatitude, lats); err != nil {
		return nil, err
	}
	if err := t.SetColumn(ColLongitude, lons); err != nil {
		return nil, err
	}
	return t.Drop(table.GeometryColumn), nil
}
