// Package preprocess normalises raw municipal source tables into typed,
// canonically named tables. Every transformation is total: unparseable
// values become zero or null and bad rows are dropped, never reported.
package preprocess

import (
	"github.com/sells-group/firerisk-cli/internal/table"
)

// Outlier is a (column, forbidden value) pair.
type Outlier struct {
	Column string
	Value  any
}

// RenameColumns applies mapping in place. Unmapped columns pass through.
func RenameColumns(t *table.Table, mapping map[string]string) *table.Table {
	return t.Rename(mapping)
}

// DropColumns removes columns in place. Absent names are ignored.
func DropColumns(t *table.Table, cols ...string) *table.Table {
	return t.Drop(cols...)
}

// ParseInteger coerces a cell to an integer. Anything that does not parse as
// a number, including null, becomes 0. Fractional values are truncated.
func ParseInteger(v any) int64 {
	if n, ok := table.AsInt(v); ok {
		return n
	}
	return 0
}

// ParseIntegers applies ParseInteger to each named column that exists.
func ParseIntegers(t *table.Table, cols ...string) *table.Table {
	for _, c := range cols {
		t.MapColumn(c, func(v any) any { return ParseInteger(v) })
	}
	return t
}

// RelabelValues replaces values of col found in mapping. Values not in the
// mapping, and nulls, are left unchanged.
func RelabelValues(t *table.Table, col string, mapping map[string]string) *table.Table {
	normalised := make(map[string]string, len(mapping))
	for from, to := range mapping {
		normalised[table.Key(from)] = to
	}
	t.MapColumn(col, func(v any) any {
		s, ok := v.(string)
		if !ok {
			return v
		}
		if to, hit := normalised[table.Key(s)]; hit {
			return to
		}
		return v
	})
	return t
}

// RemoveOutliers drops every row that matches any of the forbidden pairs.
// Nulls never match. Pairs naming an absent column are skipped.
func RemoveOutliers(t *table.Table, outliers ...Outlier) *table.Table {
	var active []Outlier
	for _, o := range outliers {
		if t.Has(o.Column) {
			active = append(active, o)
		}
	}
	return t.Filter(func(r table.Row) bool {
		for _, o := range active {
			if table.Equal(r.Get(o.Column), o.Value) {
				return false
			}
		}
		return true
	})
}

// DropMissing drops rows with a null in any of cols. A column that does not
// exist counts as null for every row.
func DropMissing(t *table.Table, cols ...string) *table.Table {
	return t.Filter(func(r table.Row) bool {
		for _, c := range cols {
			if table.IsNull(r.Get(c)) {
				return false
			}
		}
		return true
	})
}

// CombineFirst writes dst as first where first is non-null, else second.
func CombineFirst(t *table.Table, dst, first, second string) *table.Table {
	out := make([]any, t.Len())
	for i := range out {
		v := t.Value(i, first)
		if table.IsNull(v) {
			v = t.Value(i, second)
		}
		if table.IsNull(v) {
			v = nil
		}
		out[i] = v
	}
	// Lengths match by construction.
	_ = t.SetColumn(dst, out)
	return t
}

// CapYear nulls values of col greater than maxYear.
func CapYear(t *table.Table, col string, maxYear int) *table.Table {
	t.MapColumn(col, func(v any) any {
		if n, ok := table.AsInt(v); ok && n > int64(maxYear) {
			return nil
		}
		return v
	})
	return t
}

// AddRowID appends col holding each row's position, starting at 0.
func AddRowID(t *table.Table, col string) *table.Table {
	ids := make([]any, t.Len())
	for i := range ids {
		ids[i] = int64(i)
	}
	_ = t.SetColumn(col, ids)
	return t
}
