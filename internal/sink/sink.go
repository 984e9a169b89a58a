// Package sink writes output tables to CSV files, SQLite, Postgres and
// GeoJSON.
package sink

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/firerisk-cli/internal/table"
)

// Sink persists a named output table. It returns the number of rows written.
type Sink interface {
	Write(ctx context.Context, name string, t *table.Table) (int64, error)
}

// Multi fans a write out to every sink in order, stopping at the first error.
type Multi []Sink

// Write implements Sink. The row count is the first sink's.
func (m Multi) Write(ctx context.Context, name string, t *table.Table) (int64, error) {
	var n int64
	for i, s := range m {
		w, err := s.Write(ctx, name, t)
		if err != nil {
			return 0, err
		}
		if i == 0 {
			n = w
		}
	}
	return n, nil
}

// Kind is the storage class inferred for a column.
type Kind int

// Column kinds, from narrowest to widest.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindGeometry
)

// ColumnKind infers the storage class of values. Ints widen to floats;
// any other mix falls back to text.
func ColumnKind(values []any) Kind {
	k := KindNull
	for _, v := range values {
		if table.IsNull(v) {
			continue
		}
		var vk Kind
		switch v.(type) {
		case bool:
			vk = KindBool
		case int64, int:
			vk = KindInt
		case float64:
			vk = KindFloat
		case geom.T:
			vk = KindGeometry
		default:
			vk = KindText
		}
		switch {
		case k == KindNull || k == vk:
			k = vk
		case (k == KindInt && vk == KindFloat) || (k == KindFloat && vk == KindInt):
			k = KindFloat
		default:
			return KindText
		}
	}
	return k
}

// ColumnKinds infers a kind per column of t.
func ColumnKinds(t *table.Table) []Kind {
	cols := t.Columns()
	kinds := make([]Kind, len(cols))
	for i, c := range cols {
		kinds[i] = ColumnKind(t.Column(c))
	}
	return kinds
}

// encodeCell converts v to the driver value for kind k. Geometries become
// EWKB bytes.
func encodeCell(v any, k Kind) (any, error) {
	if table.IsNull(v) {
		return nil, nil
	}
	switch k {
	case KindInt:
		n, _ := table.AsInt(v)
		return n, nil
	case KindFloat:
		f, _ := table.AsFloat(v)
		return f, nil
	case KindBool:
		return v, nil
	case KindGeometry:
		b, err := ewkb.Marshal(v.(geom.T), ewkb.NDR)
		if err != nil {
			return nil, eris.Wrap(err, "sink: encode geometry")
		}
		return b, nil
	}
	return cellText(v), nil
}

// cellText renders a cell for text outputs. Geometries render as GeoJSON.
func cellText(v any) string {
	if g, ok := v.(geom.T); ok {
		b, err := geojson.Marshal(g)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return table.AsString(v)
}

// Rows returns t's cells encoded per kinds, row-major.
func Rows(t *table.Table, kinds []Kind) ([][]any, error) {
	cols := t.Columns()
	out := make([][]any, t.Len())
	for i := range out {
		row := make([]any, len(cols))
		for j, c := range cols {
			v, err := encodeCell(t.Value(i, c), kinds[j])
			if err != nil {
				return nil, eris.Wrapf(err, "sink: row %d column %s", i, c)
			}
			row[j] = v
		}
		out[i] = row
	}
	return out, nil
}
