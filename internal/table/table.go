// Package table provides the in-memory tabular dataset every pipeline step
// consumes and produces: named columns, positional rows, nil as null.
package table

import (
	"strings"

	"github.com/rotisserie/eris"
)

// GeometryColumn is the conventional name of a column holding geom.T values.
const GeometryColumn = "geometry"

// Table is an ordered set of named columns over positional rows.
// A nil cell is a null. The zero value is not usable; call New.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New creates an empty table with the given columns. Duplicate names are
// collapsed to their first occurrence.
func New(columns ...string) *Table {
	t := &Table{index: make(map[string]int, len(columns))}
	for _, c := range columns {
		t.addColumn(c)
	}
	return t
}

func (t *Table) addColumn(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	t.columns = append(t.columns, name)
	t.index[name] = len(t.columns) - 1
	for r := range t.rows {
		t.rows[r] = append(t.rows[r], nil)
	}
	return len(t.columns) - 1
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Width returns the number of columns.
func (t *Table) Width() int { return len(t.columns) }

// Has reports whether the column exists.
func (t *Table) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Require returns an error naming the first missing column.
func (t *Table) Require(cols ...string) error {
	var missing []string
	for _, c := range cols {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("table: missing columns %s", strings.Join(missing, ", "))
	}
	return nil
}

// Append adds a row. It panics if the number of values does not match the
// number of columns.
func (t *Table) Append(values ...any) {
	if len(values) != len(t.columns) {
		panic(eris.Errorf("table: append %d values to %d columns", len(values), len(t.columns)))
	}
	row := make([]any, len(values))
	copy(row, values)
	t.rows = append(t.rows, row)
}

// AppendRecord adds a row from a column→value map. Columns the table does not
// have yet are added and back-filled with nulls.
func (t *Table) AppendRecord(rec map[string]any) {
	// Sorted insertion keeps the schema deterministic for map input.
	for _, k := range sortedKeys(rec) {
		t.addColumn(k)
	}
	row := make([]any, len(t.columns))
	for k, v := range rec {
		row[t.index[k]] = v
	}
	t.rows = append(t.rows, row)
}

// Value returns the cell at row i, column col, or nil if the column is absent.
func (t *Table) Value(i int, col string) any {
	c, ok := t.index[col]
	if !ok {
		return nil
	}
	return t.rows[i][c]
}

// Set writes a cell, adding the column if needed.
func (t *Table) Set(i int, col string, v any) {
	c := t.addColumn(col)
	t.rows[i][c] = v
}

// Row returns a read-only view of row i.
func (t *Table) Row(i int) Row { return Row{t: t, i: i} }

// Column returns a copy of a column's values, or nil if it does not exist.
func (t *Table) Column(col string) []any {
	c, ok := t.index[col]
	if !ok {
		return nil
	}
	out := make([]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[c]
	}
	return out
}

// SetColumn adds or replaces a column. values must have one entry per row.
func (t *Table) SetColumn(col string, values []any) error {
	if len(values) != len(t.rows) {
		return eris.Errorf("table: column %s has %d values for %d rows", col, len(values), len(t.rows))
	}
	c := t.addColumn(col)
	for i, v := range values {
		t.rows[i][c] = v
	}
	return nil
}

// MapColumn replaces each value of an existing column with fn(value). It is a
// no-op when the column is absent.
func (t *Table) MapColumn(col string, fn func(any) any) {
	c, ok := t.index[col]
	if !ok {
		return
	}
	for _, r := range t.rows {
		r[c] = fn(r[c])
	}
}

// Rename renames columns in place and returns t. Columns absent from the
// mapping are untouched. When a new name is already taken, the renamed
// column is folded into the existing one, first non-null wins.
func (t *Table) Rename(mapping map[string]string) *Table {
	for _, old := range t.Columns() {
		name, ok := mapping[old]
		if !ok || name == old {
			continue
		}
		src := t.index[old]
		if dst, taken := t.index[name]; taken {
			for _, r := range t.rows {
				if IsNull(r[dst]) {
					r[dst] = r[src]
				}
			}
			t.Drop(old)
			continue
		}
		t.columns[src] = name
		delete(t.index, old)
		t.index[name] = src
	}
	return t
}

// Drop removes columns in place and returns t. Unknown names are ignored.
func (t *Table) Drop(cols ...string) *Table {
	drop := make(map[int]bool, len(cols))
	for _, c := range cols {
		if i, ok := t.index[c]; ok {
			drop[i] = true
		}
	}
	if len(drop) == 0 {
		return t
	}

	keep := make([]int, 0, len(t.columns)-len(drop))
	for i := range t.columns {
		if !drop[i] {
			keep = append(keep, i)
		}
	}

	columns := make([]string, len(keep))
	index := make(map[string]int, len(keep))
	for j, i := range keep {
		columns[j] = t.columns[i]
		index[columns[j]] = j
	}
	for r, row := range t.rows {
		next := make([]any, len(keep))
		for j, i := range keep {
			next[j] = row[i]
		}
		t.rows[r] = next
	}
	t.columns, t.index = columns, index
	return t
}

// Filter returns a new table holding the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := t.emptyLike()
	for i, r := range t.rows {
		if keep(Row{t: t, i: i}) {
			out.rows = append(out.rows, cloneRow(r))
		}
	}
	return out
}

// Clone returns a deep copy of the row storage. Cell values are shared.
func (t *Table) Clone() *Table {
	out := t.emptyLike()
	out.rows = make([][]any, len(t.rows))
	for i, r := range t.rows {
		out.rows[i] = cloneRow(r)
	}
	return out
}

// DropDuplicates keeps the first row for each distinct combination of keys.
func (t *Table) DropDuplicates(keys ...string) *Table {
	seen := make(map[string]bool, len(t.rows))
	return t.Filter(func(r Row) bool {
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = Key(r.Get(k))
		}
		k := strings.Join(parts, "\x1f")
		if seen[k] {
			return false
		}
		seen[k] = true
		return true
	})
}

func (t *Table) emptyLike() *Table {
	out := &Table{
		columns: t.Columns(),
		index:   make(map[string]int, len(t.columns)),
	}
	for k, v := range t.index {
		out.index[k] = v
	}
	return out
}

func cloneRow(r []any) []any {
	out := make([]any, len(r))
	copy(out, r)
	return out
}

// Row is a read-only view of one table row.
type Row struct {
	t *Table
	i int
}

// Index returns the row position in its table.
func (r Row) Index() int { return r.i }

// Get returns the value of col, or nil if the column is absent.
func (r Row) Get(col string) any { return r.t.Value(r.i, col) }
