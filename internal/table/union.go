package table

// Union concatenates tables row-wise, aligning on column name. The result has
// every column seen, in first-seen order; cells a source table lacks are null.
func Union(tables ...*Table) *Table {
	out := New()
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.columns {
			out.addColumn(c)
		}
	}
	for _, t := range tables {
		if t == nil {
			continue
		}
		pos := make([]int, len(t.columns))
		for i, c := range t.columns {
			pos[i] = out.index[c]
		}
		for _, r := range t.rows {
			row := make([]any, len(out.columns))
			for i, v := range r {
				row[pos[i]] = v
			}
			out.rows = append(out.rows, row)
		}
	}
	return out
}

// LeftJoin attaches the columns of right to every row of left whose leftKey
// matches right's rightKey. Only the first right row per key is used, so the
// row count of left is preserved. Unmatched rows, including rows with a null
// key, get nulls. Right columns whose names collide with left columns are
// suffixed; the right key column itself is not copied.
func (t *Table) LeftJoin(right *Table, leftKey, rightKey, suffix string) *Table {
	lookup := make(map[string]int, right.Len())
	for i := range right.rows {
		v := right.Value(i, rightKey)
		if IsNull(v) {
			continue
		}
		k := Key(v)
		if _, ok := lookup[k]; !ok {
			lookup[k] = i
		}
	}

	out := t.Clone()
	type target struct{ src, dst int }
	var targets []target
	for i, c := range right.columns {
		if c == rightKey {
			continue
		}
		name := c
		if out.Has(name) {
			name = c + suffix
		}
		targets = append(targets, target{src: i, dst: out.addColumn(name)})
	}

	for i, row := range out.rows {
		v := out.Value(i, leftKey)
		if IsNull(v) {
			continue
		}
		ri, ok := lookup[Key(v)]
		if !ok {
			continue
		}
		for _, tg := range targets {
			row[tg.dst] = right.rows[ri][tg.src]
		}
	}
	return out
}
