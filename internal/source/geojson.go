package source

import (
	"encoding/json"
	"math"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/firerisk-cli/internal/table"
)

// ReadGeoJSON loads a FeatureCollection: one row per feature, one column per
// property key (sorted), and the decoded geometry in table.GeometryColumn.
// Numeric properties whose values are all whole numbers become int64.
func ReadGeoJSON(path string) (*table.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: open %s", path)
	}
	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "source: decode %s", path)
	}
	return FeaturesTable(fc.Features), nil
}

// FeaturesTable converts decoded features into a table.
func FeaturesTable(features []*geojson.Feature) *table.Table {
	keys := map[string]bool{}
	for _, f := range features {
		for k := range f.Properties {
			keys[k] = true
		}
	}
	cols := make([]string, 0, len(keys)+1)
	for k := range keys {
		if k != table.GeometryColumn {
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)

	t := table.New(append(cols, table.GeometryColumn)...)
	for _, f := range features {
		rec := make(map[string]any, len(f.Properties)+1)
		for _, c := range cols {
			rec[c] = f.Properties[c]
		}
		if f.Geometry != nil {
			rec[table.GeometryColumn] = f.Geometry
		}
		t.AppendRecord(rec)
	}
	for _, c := range cols {
		narrowIntegers(t, c)
	}
	return t
}

func narrowIntegers(t *table.Table, col string) {
	vals := t.Column(col)
	seen := false
	for _, v := range vals {
		if v == nil {
			continue
		}
		f, ok := v.(float64)
		if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			return
		}
		seen = true
	}
	if !seen {
		return
	}
	for i, v := range vals {
		if v != nil {
			vals[i] = int64(v.(float64))
		}
	}
	_ = t.SetColumn(col, vals)
}
