// Package geo provides the planar and geodesic primitives used by the mesh
// builder and the spatial joins: UTM projection, projected centroids,
// point-in-polygon tests, rectangle clipping and haversine distance.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// SRIDWGS84 is the EPSG code of geographic longitude/latitude coordinates.
const SRIDWGS84 = 4326

// DefaultUTMZone is the zone of EPSG:32613, the projection used for centroids
// by the reference outputs.
const DefaultUTMZone = 13

// WGS84 ellipsoid.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563

	utmK0            = 0.9996
	utmFalseEasting  = 500000.0
	utmFalseNorthing = 10000000.0
)

// Projection converts geographic coordinates to a planar system and back.
type Projection interface {
	Forward(lon, lat float64) (x, y float64)
	Inverse(x, y float64) (lon, lat float64)
	SRID() int
}

// UTM is a Universal Transverse Mercator zone on the WGS84 ellipsoid, using
// the 6th-order Krüger series (sub-millimetre within a few thousand km of the
// central meridian).
type UTM struct {
	Zone  int
	South bool

	lon0  float64
	e     float64
	bigA  float64
	alpha [6]float64
	beta  [6]float64
}

// NewUTM builds the projection for a zone in 1..60.
func NewUTM(zone int, south bool) (*UTM, error) {
	if zone < 1 || zone > 60 {
		return nil, eris.Errorf("geo: invalid UTM zone %d", zone)
	}

	n := wgs84F / (2 - wgs84F)
	n2, n3, n4, n5, n6 := n*n, n*n*n, n*n*n*n, n*n*n*n*n, n*n*n*n*n*n

	u := &UTM{
		Zone:  zone,
		South: south,
		lon0:  radians(float64((zone-1)*6 - 180 + 3)),
		e:     math.Sqrt(wgs84F * (2 - wgs84F)),
		bigA:  wgs84A / (1 + n) * (1 + n2/4 + n4/64 + n6/256),
	}
	u.alpha = [6]float64{
		n/2 - 2*n2/3 + 5*n3/16 + 41*n4/180 - 127*n5/288 + 7891*n6/37800,
		13*n2/48 - 3*n3/5 + 557*n4/1440 + 281*n5/630 - 1983433*n6/1935360,
		61*n3/240 - 103*n4/140 + 15061*n5/26880 + 167603*n6/181440,
		49561*n4/161280 - 179*n5/168 + 6601661*n6/7257600,
		34729*n5/80640 - 3418889*n6/1995840,
		212378941 * n6 / 319334400,
	}
	u.beta = [6]float64{
		n/2 - 2*n2/3 + 37*n3/96 - n4/360 - 81*n5/512 + 96199*n6/604800,
		n2/48 + n3/15 - 437*n4/1440 + 46*n5/105 - 1118711*n6/3870720,
		17*n3/480 - 37*n4/840 - 209*n5/4480 + 5569*n6/90720,
		4397*n4/161280 - 11*n5/504 - 830251*n6/7257600,
		4583*n5/161280 - 108847*n6/3991680,
		20648693 * n6 / 638668800,
	}
	return u, nil
}

// SRID returns the EPSG code of the zone (326xx north, 327xx south).
func (u *UTM) SRID() int {
	if u.South {
		return 32700 + u.Zone
	}
	return 32600 + u.Zone
}

// Forward projects longitude/latitude degrees to easting/northing metres.
func (u *UTM) Forward(lon, lat float64) (x, y float64) {
	phi := radians(lat)
	lambda := radians(lon) - u.lon0

	tau := math.Tan(phi)
	sigma := math.Sinh(u.e * math.Atanh(u.e*tau/math.Sqrt(1+tau*tau)))
	tauP := tau*math.Sqrt(1+sigma*sigma) - sigma*math.Sqrt(1+tau*tau)

	xiP := math.Atan2(tauP, math.Cos(lambda))
	etaP := math.Asinh(math.Sin(lambda) / math.Sqrt(tauP*tauP+math.Cos(lambda)*math.Cos(lambda)))

	xi, eta := xiP, etaP
	for j, a := range u.alpha {
		k := float64(2 * (j + 1))
		xi += a * math.Sin(k*xiP) * math.Cosh(k*etaP)
		eta += a * math.Cos(k*xiP) * math.Sinh(k*etaP)
	}

	x = utmK0*u.bigA*eta + utmFalseEasting
	y = utmK0 * u.bigA * xi
	if u.South {
		y += utmFalseNorthing
	}
	return x, y
}

// Inverse converts easting/northing metres back to longitude/latitude degrees.
func (u *UTM) Inverse(x, y float64) (lon, lat float64) {
	x -= utmFalseEasting
	if u.South {
		y -= utmFalseNorthing
	}

	eta := x / (utmK0 * u.bigA)
	xi := y / (utmK0 * u.bigA)

	xiP, etaP := xi, eta
	for j, b := range u.beta {
		k := float64(2 * (j + 1))
		xiP -= b * math.Sin(k*xi) * math.Cosh(k*eta)
		etaP -= b * math.Cos(k*xi) * math.Sinh(k*eta)
	}

	sinhEtaP := math.Sinh(etaP)
	sinXiP, cosXiP := math.Sincos(xiP)
	tauP := sinXiP / math.Sqrt(sinhEtaP*sinhEtaP+cosXiP*cosXiP)

	e2 := u.e * u.e
	tau := tauP
	for range 20 {
		sigma := math.Sinh(u.e * math.Atanh(u.e*tau/math.Sqrt(1+tau*tau)))
		tauI := tau*math.Sqrt(1+sigma*sigma) - sigma*math.Sqrt(1+tau*tau)
		delta := (tauP - tauI) / math.Sqrt(1+tauI*tauI) *
			(1 + (1-e2)*tau*tau) / ((1 - e2) * math.Sqrt(1+tau*tau))
		tau += delta
		if math.Abs(delta) < 1e-12 {
			break
		}
	}

	lat = degrees(math.Atan(tau))
	lon = degrees(math.Atan2(sinhEtaP, cosXiP) + u.lon0)
	return lon, lat
}

// Project returns a copy of g with every coordinate projected forward.
func Project(g geom.T, p Projection) geom.T {
	return transform(g, p.Forward, p.SRID())
}

// Unproject returns a copy of g with every coordinate converted back to
// longitude/latitude.
func Unproject(g geom.T, p Projection) geom.T {
	return transform(g, p.Inverse, SRIDWGS84)
}

func transform(g geom.T, f func(a, b float64) (float64, float64), srid int) geom.T {
	c := clone(g)
	geom.TransformInPlace(c, func(coord geom.Coord) {
		coord[0], coord[1] = f(coord[0], coord[1])
	})
	if out, err := geom.SetSRID(c, srid); err == nil {
		return out
	}
	return c
}

func clone(g geom.T) geom.T {
	switch t := g.(type) {
	case *geom.Point:
		return t.Clone()
	case *geom.Polygon:
		return t.Clone()
	case *geom.MultiPolygon:
		return t.Clone()
	case *geom.LineString:
		return t.Clone()
	case *geom.MultiLineString:
		return t.Clone()
	case *geom.MultiPoint:
		return t.Clone()
	case *geom.LinearRing:
		return t.Clone()
	}
	return g
}

func radians(d float64) float64 { return d * math.Pi / 180 }

func degrees(r float64) float64 { return r * 180 / math.Pi }
