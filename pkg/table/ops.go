package table

// DropDuplicates removes rows whose key columns repeat an earlier row,
// keeping the first occurrence. It returns the new table and the number
// of rows removed.
func (t *Table) DropDuplicates(keyCols ...string) (*Table, int) {
	out := New(t.cols...)
	seen := make(map[string]struct{}, len(t.rows))
	removed := 0
	for _, r := range t.rows {
		vals := make([]any, len(keyCols))
		for i, c := range keyCols {
			idx, ok := t.index[c]
			if ok {
				vals[i] = r[idx]
			}
		}
		k := CompositeKey(vals...)
		if _, dup := seen[k]; dup {
			removed++
			continue
		}
		seen[k] = struct{}{}
		out.rows = append(out.rows, r)
	}
	return out, removed
}

// DropNulls removes rows with a null in any of the given columns.
func (t *Table) DropNulls(cols ...string) (*Table, int) {
	return t.Filter(func(r Row) bool {
		for _, c := range cols {
			if IsNull(r.Get(c)) {
				return false
			}
		}
		return true
	})
}

// Fill replaces nulls in the named column with the given value.
func (t *Table) Fill(col string, value any) *Table {
	return t.MapColumn(col, func(v any) any {
		if IsNull(v) {
			return value
		}
		return v
	})
}

// MapColumn applies fn to every value of the named column. Unknown
// columns return the table unchanged.
func (t *Table) MapColumn(col string, fn func(v any) any) *Table {
	idx, ok := t.index[col]
	if !ok {
		return t.Clone()
	}
	out := t.Clone()
	for _, r := range out.rows {
		r[idx] = fn(r[idx])
	}
	return out
}

// Select returns a new table holding only the named columns, in the
// given order. Unknown columns come back as all-null.
func (t *Table) Select(cols ...string) *Table {
	out := New(cols...)
	for _, r := range t.rows {
		row := make([]any, len(cols))
		for i, c := range cols {
			if idx, ok := t.index[c]; ok {
				row[i] = r[idx]
			}
		}
		out.rows = append(out.rows, row)
	}
	return out
}

// Filter keeps rows where keep returns true. It returns the new table
// and the number of rows dropped.
func (t *Table) Filter(keep func(r Row) bool) (*Table, int) {
	out := New(t.cols...)
	dropped := 0
	for i, r := range t.rows {
		if keep(t.At(i)) {
			out.rows = append(out.rows, r)
		} else {
			dropped++
		}
	}
	return out, dropped
}
