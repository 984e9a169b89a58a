package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/firerisk-cli/internal/table"
)

// GeoJSONSink writes tables with a geometry column to
// <Dir>/<name>.geojson. Tables without geometry are skipped.
type GeoJSONSink struct {
	Dir string
}

// Write implements Sink.
func (s GeoJSONSink) Write(_ context.Context, name string, t *table.Table) (int64, error) {
	if !t.Has(table.GeometryColumn) {
		zap.L().Debug("geojson: no geometry, skipping", zap.String("table", name))
		return 0, nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return 0, eris.Wrapf(err, "sink: create %s", s.Dir)
	}
	path := filepath.Join(s.Dir, name+".geojson")
	n, err := WriteGeoJSONFile(path, t)
	if err != nil {
		return 0, err
	}
	zap.L().Info("wrote geojson", zap.String("path", path), zap.Int64("features", n))
	return n, nil
}

// WriteGeoJSONFile writes t as a FeatureCollection to path.
func WriteGeoJSONFile(path string, t *table.Table) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "sink: create %s", path)
	}
	n, err := WriteGeoJSON(f, t)
	if err != nil {
		f.Close() //nolint:errcheck
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, eris.Wrapf(err, "sink: close %s", path)
	}
	return n, nil
}

// WriteGeoJSON encodes t as a FeatureCollection: one feature per row with
// the geometry column as geometry and every other column as a property.
// Rows without a geometry get a null geometry.
func WriteGeoJSON(w io.Writer, t *table.Table) (int64, error) {
	var props []string
	for _, c := range t.Columns() {
		if c != table.GeometryColumn {
			props = append(props, c)
		}
	}

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, t.Len())}
	for i := 0; i < t.Len(); i++ {
		f := &geojson.Feature{Properties: make(map[string]any, len(props))}
		if g, ok := t.Value(i, table.GeometryColumn).(geom.T); ok {
			f.Geometry = g
		}
		for _, c := range props {
			v := t.Value(i, c)
			if table.IsNull(v) {
				v = nil
			}
			f.Properties[c] = v
		}
		fc.Features = append(fc.Features, f)
	}

	if err := json.NewEncoder(w).Encode(&fc); err != nil {
		return 0, eris.Wrap(err, "sink: encode geojson")
	}
	return int64(len(fc.Features)), nil
}
