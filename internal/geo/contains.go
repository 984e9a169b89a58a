package geo

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// Intersects reports whether the point (x, y) lies inside g or on its
// boundary. Holes exclude their interior but not their edges. Only polygonal
// geometries can contain a point; anything else returns false.
func Intersects(g geom.T, x, y float64) bool {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonIntersects(t, x, y)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonIntersects(t.Polygon(i), x, y) {
				return true
			}
		}
	}
	return false
}

func polygonIntersects(p *geom.Polygon, x, y float64) bool {
	if p.Empty() || p.NumLinearRings() == 0 {
		return false
	}
	pt := geom.Coord{x, y}
	if !p.Bounds().OverlapsPoint(geom.XY, pt) {
		return false
	}

	layout := p.Layout()
	switch xy.LocatePointInRing(layout, pt, p.LinearRing(0).FlatCoords()) {
	case location.Exterior:
		return false
	case location.Boundary:
		return true
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.LocatePointInRing(layout, pt, p.LinearRing(i).FlatCoords()) == location.Interior {
			return false
		}
	}
	return true
}

// PointXY extracts the coordinates of a point geometry.
func PointXY(g geom.T) (x, y float64, ok bool) {
	p, isPoint := g.(*geom.Point)
	if !isPoint || p.Empty() {
		return 0, 0, false
	}
	return p.X(), p.Y(), true
}
