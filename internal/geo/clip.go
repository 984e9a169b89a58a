package geo

import (
	"math"
	"slices"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// Rect is an axis-aligned rectangle.
type Rect struct {
	MinX, MinY, MaxX, MaxY float64
}

// Polygon returns the rectangle as a closed, counter-clockwise polygon.
func (r Rect) Polygon() *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{
		r.MinX, r.MinY,
		r.MaxX, r.MinY,
		r.MaxX, r.MaxY,
		r.MinX, r.MaxY,
		r.MinX, r.MinY,
	}, []int{10})
}

// Overlaps reports whether r and b share any area or edge.
func (r Rect) Overlaps(b *geom.Bounds) bool {
	return r.MinX <= b.Max(0) && r.MaxX >= b.Min(0) &&
		r.MinY <= b.Max(1) && r.MaxY >= b.Min(1)
}

// ClipRect intersects a polygonal geometry with r. It returns nil when the
// intersection has no area. A single surviving part is returned as a
// Polygon, several as a MultiPolygon. Output coordinates are XY, shells
// counter-clockwise and holes clockwise.
func ClipRect(g geom.T, r Rect) geom.T {
	var polys []*geom.Polygon
	switch t := g.(type) {
	case *geom.Polygon:
		polys = []*geom.Polygon{t}
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			polys = append(polys, t.Polygon(i))
		}
	default:
		return nil
	}

	var parts []*geom.Polygon
	for _, p := range polys {
		if p.Empty() || !r.Overlaps(p.Bounds()) {
			continue
		}
		parts = append(parts, clipPolygon(p, r)...)
	}

	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	mp := geom.NewMultiPolygon(geom.XY)
	for _, p := range parts {
		if err := mp.Push(p); err != nil {
			return nil
		}
	}
	return mp
}

type point [2]float64

type edge struct{ a, b point }

func (e edge) reversed() edge { return edge{e.b, e.a} }

// clipPolygon clips every ring of p, shell counter-clockwise and holes
// clockwise, and pools the resulting edges. Sutherland-Hodgman leaves
// zero-width bridges along the sides of r wherever a ring leaves and
// re-enters it; those run both ways and cancel, and so do the stretches
// where a hole meets the shell on a side. What remains bounds p∩r with the
// interior on the left and is traced back into polygons.
func clipPolygon(p *geom.Polygon, r Rect) []*geom.Polygon {
	var edges []edge
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := ringPoints(p.LinearRing(i).FlatCoords(), p.Stride())
		if len(ring) < 3 {
			if i == 0 {
				return nil
			}
			continue
		}
		if (signedArea(ring) > 0) != (i == 0) {
			slices.Reverse(ring)
		}
		clipped := clipRing(ring, r)
		for j := range clipped {
			e := edge{clipped[j], clipped[(j+1)%len(clipped)]}
			if e.a != e.b {
				edges = append(edges, e)
			}
		}
	}
	return assemble(cancelOpposite(splitOnSides(edges, r)))
}

func ringPoints(coords []float64, stride int) []point {
	pts := make([]point, 0, len(coords)/stride)
	for i := 0; i+1 < len(coords); i += stride {
		pts = append(pts, point{coords[i], coords[i+1]})
	}
	return dedupe(pts)
}

// clipRing runs Sutherland-Hodgman against the four edges of r and returns
// an open ring, possibly degenerate.
func clipRing(pts []point, r Rect) []point {
	sides := []struct {
		inside func(p point) bool
		cross  func(a, b point) point
	}{
		{
			inside: func(p point) bool { return p[0] >= r.MinX },
			cross:  func(a, b point) point { return atX(a, b, r.MinX) },
		},
		{
			inside: func(p point) bool { return p[0] <= r.MaxX },
			cross:  func(a, b point) point { return atX(a, b, r.MaxX) },
		},
		{
			inside: func(p point) bool { return p[1] >= r.MinY },
			cross:  func(a, b point) point { return atY(a, b, r.MinY) },
		},
		{
			inside: func(p point) bool { return p[1] <= r.MaxY },
			cross:  func(a, b point) point { return atY(a, b, r.MaxY) },
		},
	}

	for _, s := range sides {
		if len(pts) == 0 {
			break
		}
		in := pts
		pts = make([]point, 0, len(in)+4)
		prev := in[len(in)-1]
		for _, cur := range in {
			switch {
			case s.inside(cur):
				if !s.inside(prev) {
					pts = append(pts, s.cross(prev, cur))
				}
				pts = append(pts, cur)
			case s.inside(prev):
				pts = append(pts, s.cross(prev, cur))
			}
			prev = cur
		}
	}
	return dedupe(pts)
}

func atX(a, b point, x float64) point {
	t := (x - a[0]) / (b[0] - a[0])
	return point{x, a[1] + t*(b[1]-a[1])}
}

func atY(a, b point, y float64) point {
	t := (y - a[1]) / (b[1] - a[1])
	return point{a[0] + t*(b[0]-a[0]), y}
}

// side returns which side line of r both ends of e lie on: 0 left, 1 right,
// 2 bottom, 3 top, or -1.
func (r Rect) side(e edge) int {
	switch {
	case e.a[0] == r.MinX && e.b[0] == r.MinX:
		return 0
	case e.a[0] == r.MaxX && e.b[0] == r.MaxX:
		return 1
	case e.a[1] == r.MinY && e.b[1] == r.MinY:
		return 2
	case e.a[1] == r.MaxY && e.b[1] == r.MaxY:
		return 3
	}
	return -1
}

// splitOnSides cuts edges lying on a side of r at every vertex on that side,
// so overlapping stretches become identical segments.
func splitOnSides(edges []edge, r Rect) []edge {
	lines := [4]float64{r.MinX, r.MaxX, r.MinY, r.MaxY}
	var stops [4][]float64
	for _, e := range edges {
		for _, p := range [2]point{e.a, e.b} {
			for s, v := range lines {
				if p[s/2] == v {
					stops[s] = append(stops[s], p[1-s/2])
				}
			}
		}
	}
	for s := range stops {
		slices.Sort(stops[s])
		stops[s] = slices.Compact(stops[s])
	}

	out := make([]edge, 0, len(edges))
	for _, e := range edges {
		s := r.side(e)
		if s < 0 {
			out = append(out, e)
			continue
		}
		along := 1 - s/2
		from, to := e.a[along], e.b[along]
		var cuts []float64
		for _, v := range stops[s] {
			if v > min(from, to) && v < max(from, to) {
				cuts = append(cuts, v)
			}
		}
		if from > to {
			slices.Reverse(cuts)
		}
		prev := e.a
		for _, v := range cuts {
			next := prev
			next[along] = v
			out = append(out, edge{prev, next})
			prev = next
		}
		out = append(out, edge{prev, e.b})
	}
	return out
}

// cancelOpposite drops each edge together with one copy of its reverse,
// keeping the survivors in input order.
func cancelOpposite(edges []edge) []edge {
	count := make(map[edge]int, len(edges))
	for _, e := range edges {
		count[e]++
	}
	kept := make(map[edge]int, len(edges))
	out := edges[:0:0]
	for _, e := range edges {
		if kept[e] < count[e]-count[e.reversed()] {
			kept[e]++
			out = append(out, e)
		}
	}
	return out
}

// assemble links edges into closed rings, taking the sharpest left turn
// where several leave one vertex so pieces touching at a point stay apart.
// Counter-clockwise rings become shells, clockwise ones holes of the shell
// that contains them.
func assemble(edges []edge) []*geom.Polygon {
	from := make(map[point][]int, len(edges))
	for i, e := range edges {
		from[e.a] = append(from[e.a], i)
	}
	used := make([]bool, len(edges))

	var shells, holes [][]point
	for i := range edges {
		if used[i] {
			continue
		}
		used[i] = true
		start, cur := edges[i].a, edges[i]
		ring := []point{start}
		for cur.b != start {
			next := leftmost(cur, from[cur.b], edges, used)
			if next < 0 {
				ring = nil
				break
			}
			used[next] = true
			ring = append(ring, cur.b)
			cur = edges[next]
		}
		ring = dropCollinear(ring)
		if len(ring) < 3 {
			continue
		}
		switch a := signedArea(ring); {
		case a > 0:
			shells = append(shells, ring)
		case a < 0:
			holes = append(holes, ring)
		}
	}

	owned := make([][][]point, len(shells))
	for _, h := range holes {
		if k := owner(shells, h); k >= 0 {
			owned[k] = append(owned[k], h)
		}
	}

	polys := make([]*geom.Polygon, 0, len(shells))
	for k, sh := range shells {
		var flat []float64
		var ends []int
		for _, ring := range append([][]point{sh}, owned[k]...) {
			for _, p := range ring {
				flat = append(flat, p[0], p[1])
			}
			flat = append(flat, ring[0][0], ring[0][1])
			ends = append(ends, len(flat))
		}
		polys = append(polys, geom.NewPolygonFlat(geom.XY, flat, ends))
	}
	return polys
}

func leftmost(in edge, candidates []int, edges []edge, used []bool) int {
	best, bestTurn := -1, math.Inf(-1)
	dx, dy := in.b[0]-in.a[0], in.b[1]-in.a[1]
	for _, j := range candidates {
		if used[j] {
			continue
		}
		ox, oy := edges[j].b[0]-edges[j].a[0], edges[j].b[1]-edges[j].a[1]
		turn := math.Atan2(dx*oy-dy*ox, dx*ox+dy*oy)
		if turn > bestTurn {
			best, bestTurn = j, turn
		}
	}
	return best
}

// owner returns the shell containing hole h, judged by the first hole vertex
// strictly inside or outside a shell; a hole touching its shell at every
// vertex goes to the smallest shell whose bounds cover it.
func owner(shells [][]point, h []point) int {
	best, bestArea := -1, math.Inf(1)
	for k, sh := range shells {
		flat := closedFlat(sh)
		decided := false
		for _, p := range h {
			switch xy.LocatePointInRing(geom.XY, geom.Coord{p[0], p[1]}, flat) {
			case location.Interior:
				return k
			case location.Exterior:
				decided = true
			}
			if decided {
				break
			}
		}
		if !decided && covers(sh, h) && signedArea(sh) < bestArea {
			best, bestArea = k, signedArea(sh)
		}
	}
	return best
}

func covers(outer, inner []point) bool {
	ob, ib := bbox(outer), bbox(inner)
	return ob[0] <= ib[0] && ob[1] <= ib[1] && ob[2] >= ib[2] && ob[3] >= ib[3]
}

func bbox(ring []point) [4]float64 {
	b := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	for _, p := range ring {
		b[0], b[1] = min(b[0], p[0]), min(b[1], p[1])
		b[2], b[3] = max(b[2], p[0]), max(b[3], p[1])
	}
	return b
}

func closedFlat(ring []point) []float64 {
	flat := make([]float64, 0, 2*len(ring)+2)
	for _, p := range ring {
		flat = append(flat, p[0], p[1])
	}
	return append(flat, ring[0][0], ring[0][1])
}

// signedArea is the shoelace area of an open ring, positive when
// counter-clockwise.
func signedArea(ring []point) float64 {
	var a float64
	for i, p := range ring {
		q := ring[(i+1)%len(ring)]
		a += p[0]*q[1] - q[0]*p[1]
	}
	return a / 2
}

// dropCollinear removes vertices the ring passes straight through.
func dropCollinear(ring []point) []point {
	for changed := true; changed && len(ring) >= 3; {
		changed = false
		for i := 0; i < len(ring) && len(ring) >= 3; i++ {
			prev, cur, next := ring[(i+len(ring)-1)%len(ring)], ring[i], ring[(i+1)%len(ring)]
			ax, ay := cur[0]-prev[0], cur[1]-prev[1]
			bx, by := next[0]-cur[0], next[1]-cur[1]
			if ax*by-ay*bx == 0 && ax*bx+ay*by > 0 {
				ring = slices.Delete(ring, i, i+1)
				changed = true
				i--
			}
		}
	}
	return ring
}

func dedupe(pts []point) []point {
	out := pts[:0]
	for _, p := range pts {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}

// Area returns the planar area of a polygonal geometry, holes subtracted.
func Area(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		if t.NumLinearRings() == 0 {
			return 0
		}
		a := math.Abs(xy.SignedArea(t.Layout(), t.LinearRing(0).FlatCoords()))
		for i := 1; i < t.NumLinearRings(); i++ {
			a -= math.Abs(xy.SignedArea(t.Layout(), t.LinearRing(i).FlatCoords()))
		}
		return a
	case *geom.MultiPolygon:
		var a float64
		for i := 0; i < t.NumPolygons(); i++ {
			a += Area(t.Polygon(i))
		}
		return a
	}
	return 0
}
