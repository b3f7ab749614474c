// Package table provides the in-memory tabular value passed between the
// pipeline's transform and validation layers: ordered columns, rows of any,
// and a set of pure cleaning operations that each return a new Table.
package table

import (
	"fmt"
)

// Table is an ordered-column, row-oriented slice of data. Null is Go nil.
type Table struct {
	cols  []string
	index map[string]int
	rows  [][]any
}

// New constructs an empty table with the given column order.
func New(cols ...string) *Table {
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}
	return &Table{cols: append([]string(nil), cols...), index: index}
}

// FromRows constructs a table from pre-built rows. Rows must match the
// column count.
func FromRows(cols []string, rows [][]any) (*Table, error) {
	t := New(cols...)
	for _, r := range rows {
		if err := t.Append(r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.cols...)
}

// Len returns the row count.
func (t *Table) Len() int {
	return len(t.rows)
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// ColumnIndex returns the position of the named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Append adds a row. The row length must match the column count.
func (t *Table) Append(row []any) error {
	if len(row) != len(t.cols) {
		return fmt.Errorf("row has %d values, table has %d columns", len(row), len(t.cols))
	}
	t.rows = append(t.rows, row)
	return nil
}

// Row returns the i-th row slice. Callers must not mutate it.
func (t *Table) Row(i int) []any {
	return t.rows[i]
}

// Value returns the value at row i, named column. Missing columns yield nil.
func (t *Table) Value(i int, col string) any {
	idx, ok := t.index[col]
	if !ok {
		return nil
	}
	return t.rows[i][idx]
}

// Column returns all values of the named column in row order.
func (t *Table) Column(name string) []any {
	idx, ok := t.index[name]
	if !ok {
		return nil
	}
	out := make([]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[idx]
	}
	return out
}

// At wraps row i as a Row view for predicate-style access.
func (t *Table) At(i int) Row {
	return Row{t: t, i: i}
}

// Row is a lightweight view over a single table row.
type Row struct {
	t *Table
	i int
}

// Get returns the named column's value for this row.
func (r Row) Get(col string) any {
	return r.t.Value(r.i, col)
}

// Index returns the row's position in the table.
func (r Row) Index() int {
	return r.i
}

// Clone deep-copies the table structure; values are copied by reference.
func (t *Table) Clone() *Table {
	out := New(t.cols...)
	out.rows = make([][]any, len(t.rows))
	for i, r := range t.rows {
		row := make([]any, len(r))
		copy(row, r)
		out.rows[i] = row
	}
	return out
}

// WithColumn returns a new table with one extra column whose value is
// computed per row.
func (t *Table) WithColumn(name string, fn func(r Row) any) *Table {
	out := New(append(t.Columns(), name)...)
	for i, r := range t.rows {
		row := make([]any, len(r)+1)
		copy(row, r)
		row[len(r)] = fn(t.At(i))
		out.rows = append(out.rows, row)
	}
	return out
}

// Maps renders the rows as column-keyed maps for bulk store writes.
func (t *Table) Maps() []map[string]any {
	out := make([]map[string]any, len(t.rows))
	for i, r := range t.rows {
		m := make(map[string]any, len(t.cols))
		for j, c := range t.cols {
			m[c] = r[j]
		}
		out[i] = m
	}
	return out
}
