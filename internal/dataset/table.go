package dataset

import (
	"fmt"
	"strconv"
)

// Table is an ordered collection of named, row-aligned columns.
// Cells are loosely typed: ingestion produces strings, derived columns hold
// float64 or string values. Tables handed to the core are treated as
// read-only; every transformation returns a new Table.
type Table struct {
	names []string
	cols  map[string][]any
	rows  int
}

// New creates an empty table with the given row count and no columns.
func New(rows int) *Table {
	return &Table{
		cols: make(map[string][]any),
		rows: rows,
	}
}

// FromRecords builds a table from a header row and string records.
// Short records are padded with empty strings, long records are truncated.
// Duplicate header names get a ".N" suffix so every column stays addressable.
func FromRecords(header []string, records [][]string) *Table {
	t := New(len(records))
	seen := make(map[string]int, len(header))
	for c, name := range header {
		key := name
		if n, dup := seen[name]; dup {
			key = name + "." + strconv.Itoa(n)
		}
		seen[name]++

		values := make([]any, len(records))
		for r, rec := range records {
			if c < len(rec) {
				values[r] = rec[c]
			} else {
				values[r] = ""
			}
		}
		t.names = append(t.names, key)
		t.cols[key] = values
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return t.rows
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Has reports whether a column with the exact name exists.
func (t *Table) Has(name string) bool {
	if t == nil {
		return false
	}
	_, ok := t.cols[name]
	return ok
}

// Column returns the values of the named column, or nil if absent.
// The returned slice must not be modified.
func (t *Table) Column(name string) []any {
	if t == nil {
		return nil
	}
	return t.cols[name]
}

// Value returns a single cell, or nil when the column does not exist.
func (t *Table) Value(name string, row int) any {
	col := t.Column(name)
	if col == nil || row < 0 || row >= len(col) {
		return nil
	}
	return col[row]
}

// Empty reports whether the table has no rows or no columns.
func (t *Table) Empty() bool {
	return t == nil || t.rows == 0 || len(t.names) == 0
}

// Clone returns a shallow copy: column slices are duplicated so the copy
// can be mutated without touching the original.
func (t *Table) Clone() *Table {
	if t == nil {
		return New(0)
	}
	out := New(t.rows)
	for _, name := range t.names {
		src := t.cols[name]
		dst := make([]any, len(src))
		copy(dst, src)
		out.names = append(out.names, name)
		out.cols[name] = dst
	}
	return out
}

// WithColumn returns a copy of the table with the named column added or
// replaced. The value count must equal the row count.
func (t *Table) WithColumn(name string, values []any) (*Table, error) {
	out := t.Clone()
	if err := out.Set(name, values); err != nil {
		return nil, err
	}
	return out, nil
}

// Set adds or replaces a column in place. Only call it on a table you own
// (freshly built or obtained from Clone); input tables are never mutated.
func (t *Table) Set(name string, values []any) error {
	if len(values) != t.rows {
		return fmt.Errorf("column %q has %d values, table has %d rows", name, len(values), t.rows)
	}
	if _, exists := t.cols[name]; !exists {
		t.names = append(t.names, name)
	}
	t.cols[name] = values
	return nil
}

// Filter returns a new table holding only the rows for which keep returns true.
func (t *Table) Filter(keep func(row int) bool) *Table {
	if t == nil {
		return New(0)
	}
	idx := make([]int, 0, t.rows)
	for r := 0; r < t.rows; r++ {
		if keep(r) {
			idx = append(idx, r)
		}
	}
	out := New(len(idx))
	for _, name := range t.names {
		src := t.cols[name]
		dst := make([]any, len(idx))
		for i, r := range idx {
			dst[i] = src[r]
		}
		out.names = append(out.names, name)
		out.cols[name] = dst
	}
	return out
}

// Builder assembles a table column by column. It is used by the joiner and
// by tests to construct fixtures.
type Builder struct {
	t   *Table
	err error
}

// NewBuilder starts a table with the given row count.
func NewBuilder(rows int) *Builder {
	return &Builder{t: New(rows)}
}

// Add appends (or replaces) a column. The first length mismatch is kept
// and reported by Build.
func (b *Builder) Add(name string, values ...any) *Builder {
	if b.err != nil {
		return b
	}
	b.err = b.t.Set(name, values)
	return b
}

// Build returns the assembled table.
func (b *Builder) Build() (*Table, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.t, nil
}

// MustBuild is like Build but panics on error. Intended for fixtures.
func (b *Builder) MustBuild() *Table {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}
