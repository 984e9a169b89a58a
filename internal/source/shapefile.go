package source

import (
	"os"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/firerisk-cli/internal/table"
)

// ReadShapefile loads a .shp with its .dbf sidecar. DBF fields become typed
// columns and each shape is converted to a go-geom geometry in
// table.GeometryColumn. Records with a null shape are skipped.
func ReadShapefile(shpPath string, opts Options) (*table.Table, error) {
	base := strings.TrimSuffix(shpPath, ".shp")
	if _, err := os.Stat(base + ".dbf"); err != nil {
		return nil, eris.Wrapf(err, "source: shapefile %s has no .dbf", shpPath)
	}

	var dec *encoding.Decoder
	if opts.Encoding != "" {
		enc, err := htmlindex.Get(opts.Encoding)
		if err != nil {
			return nil, eris.Wrapf(err, "source: unsupported encoding %q", opts.Encoding)
		}
		dec = enc.NewDecoder()
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = strings.TrimRight(f.String(), "\x00")
	}

	var (
		records [][]string
		geoms   []any
		skipped int
	)
	for reader.Next() {
		_, shape := reader.Shape()
		g := shapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		rec := make([]string, len(fields))
		for i := range fields {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if dec != nil && val != "" {
				if s, err := dec.String(val); err == nil {
					val = s
				}
			}
			rec[i] = val
		}
		records = append(records, rec)
		geoms = append(geoms, g)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "source: read shapefile %s", shpPath)
	}

	if skipped > 0 {
		zap.L().Debug("source: skipped shapefile records",
			zap.String("path", shpPath),
			zap.Int("skipped", skipped),
		)
	}

	t := table.FromRecords(header, records)
	if err := t.SetColumn(table.GeometryColumn, geoms); err != nil {
		return nil, eris.Wrap(err, "source: attach geometry")
	}
	return t, nil
}

// shapeToGeom converts a go-shp shape to go-geom with SRID 4326. Null and
// unsupported shapes yield nil.
func shapeToGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.PolyLine:
		return polyLineToGeom(s)
	case *shp.Polygon:
		return polygonToGeom(s)
	}
	return nil
}

func parts(numParts int32, starts []int32, pts []shp.Point) [][]float64 {
	out := make([][]float64, 0, numParts)
	for i := int32(0); i < numParts; i++ {
		start := starts[i]
		end := int32(len(pts))
		if i+1 < numParts {
			end = starts[i+1]
		}
		flat := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			flat = append(flat, pts[j].X, pts[j].Y)
		}
		out = append(out, flat)
	}
	return out
}

func polyLineToGeom(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}
	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)
	for i, flat := range parts(pl.NumParts, pl.Parts, pl.Points) {
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("source: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonToGeom groups shapefile rings into polygons: a clockwise ring opens
// a new polygon, a counter-clockwise ring is a hole in the one before it. A
// single polygon is returned as *geom.Polygon, several as *geom.MultiPolygon.
func polygonToGeom(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var polys []*geom.Polygon
	for i, flat := range parts(p.NumParts, p.Parts, p.Points) {
		if len(flat) < 8 {
			zap.L().Debug("source: skipping degenerate polygon ring", zap.Int("part", i))
			continue
		}
		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if signedArea(flat) <= 0 || len(polys) == 0 {
			poly := geom.NewPolygon(geom.XY).SetSRID(4326)
			if err := poly.Push(ring); err != nil {
				continue
			}
			polys = append(polys, poly)
			continue
		}
		if err := polys[len(polys)-1].Push(ring); err != nil {
			zap.L().Debug("source: skipping malformed polygon hole", zap.Int("part", i), zap.Error(err))
		}
	}

	switch len(polys) {
	case 0:
		return nil
	case 1:
		return polys[0]
	}
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for _, poly := range polys {
		if err := mp.Push(poly); err != nil {
			continue
		}
	}
	return mp
}

// signedArea is positive for counter-clockwise rings.
func signedArea(flat []float64) float64 {
	var a float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		a += flat[2*i]*flat[2*j+1] - flat[2*j]*flat[2*i+1]
	}
	return a / 2
}
