package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
)

// Centroid returns the geographic latitude/longitude of g's centroid,
// computed in the planar system of p and converted back.
func Centroid(g geom.T, p Projection) (lat, lon float64, err error) {
	if g == nil || g.Empty() {
		return 0, 0, eris.New("geo: centroid of empty geometry")
	}

	planar := Project(g, p)
	c, err := xy.Centroid(planar)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geo: centroid")
	}

	x, y := c[0], c[1]
	if math.IsNaN(x) || math.IsNaN(y) {
		// Degenerate input (every vertex coincident).
		first := planar.FlatCoords()
		x, y = first[0], first[1]
	}

	lon, lat = p.Inverse(x, y)
	return lat, lon, nil
}
