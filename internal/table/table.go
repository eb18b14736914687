// Package table holds the in-memory tabular model shared by the loaders, the
// splitter stages and the exporters.
//
// A Table is immutable once built. Every transformation returns a new Table and
// every accessor returns a copy, so a stage can hand its output to the next
// stage (or keep it as a snapshot) without anyone being able to change it.
package table

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("duplicate column name")
	// ErrUnknownColumn is returned when an operation names a column that does not exist.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrRowWidth is returned when a row does not have one cell per column.
	ErrRowWidth = errors.New("row width does not match column count")
)

// Cell is a single value. A cell is either a string or missing.
type Cell struct {
	Value string
	Valid bool
}

// Missing is the missing cell.
var Missing = Cell{}

// String returns a present cell holding s.
func String(s string) Cell {
	return Cell{Value: s, Valid: true}
}

// IsMissing reports whether the cell carries no value.
func (c Cell) IsMissing() bool {
	return !c.Valid
}

// IsBlank reports whether the cell is missing or only whitespace.
func (c Cell) IsBlank() bool {
	return !c.Valid || strings.TrimSpace(c.Value) == ""
}

// String returns the value, or "" for a missing cell.
func (c Cell) String() string {
	if !c.Valid {
		return ""
	}
	return c.Value
}

// Table is an ordered set of named columns and rows of cells.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]Cell
}

// New builds a table. Column names must be unique and every row must have
// exactly one cell per column. The inputs are copied.
func New(columns []string, rows [][]Cell) (*Table, error) {
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, name)
		}
		index[name] = i
	}

	copied := make([][]Cell, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrRowWidth, i, len(row), len(columns))
		}
		copied[i] = append([]Cell(nil), row...)
	}

	return &Table{
		columns: append([]string(nil), columns...),
		index:   index,
		rows:    copied,
	}, nil
}

// MustNew is like New but panics on error. Intended for tests and literals.
func MustNew(columns []string, rows [][]Cell) *Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// FromStrings builds a table from string records, treating values for which
// isMissing returns true as missing cells. A nil isMissing treats only the empty
// string as missing.
func FromStrings(columns []string, records [][]string, isMissing func(string) bool) (*Table, error) {
	if isMissing == nil {
		isMissing = func(s string) bool { return s == "" }
	}
	rows := make([][]Cell, len(records))
	for i, rec := range records {
		if len(rec) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrRowWidth, i, len(rec), len(columns))
		}
		row := make([]Cell, len(rec))
		for j, v := range rec {
			if isMissing(v) {
				row[j] = Missing
			} else {
				row[j] = String(v)
			}
		}
		rows[i] = row
	}
	return New(columns, rows)
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	return len(t.rows)
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int {
	return len(t.columns)
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// ColumnIndex returns the position of a column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// HasColumn reports whether the table has the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []Cell {
	return append([]Cell(nil), t.rows[i]...)
}

// Cell returns the cell at row i of the named column.
func (t *Table) Cell(i int, column string) (Cell, bool) {
	j, ok := t.index[column]
	if !ok || i < 0 || i >= len(t.rows) {
		return Missing, false
	}
	return t.rows[i][j], true
}

// Column returns a copy of all cells of the named column.
func (t *Table) Column(name string) ([]Cell, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	out := make([]Cell, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[j]
	}
	return out, nil
}

// Records returns the rows as strings, missing cells rendered as "".
func (t *Table) Records() [][]string {
	out := make([][]string, len(t.rows))
	for i, row := range t.rows {
		rec := make([]string, len(row))
		for j, c := range row {
			rec[j] = c.String()
		}
		out[i] = rec
	}
	return out
}

// SelectRows returns a new table holding the given rows in the given order.
func (t *Table) SelectRows(indices []int) *Table {
	rows := make([][]Cell, len(indices))
	for i, idx := range indices {
		rows[i] = append([]Cell(nil), t.rows[idx]...)
	}
	return &Table{columns: t.Columns(), index: copyIndex(t.index), rows: rows}
}

// DropColumns returns a new table without the named columns.
func (t *Table) DropColumns(names ...string) (*Table, error) {
	drop := make(map[int]bool, len(names))
	for _, name := range names {
		j, ok := t.index[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		drop[j] = true
	}

	keep := make([]int, 0, len(t.columns)-len(drop))
	for j := range t.columns {
		if !drop[j] {
			keep = append(keep, j)
		}
	}
	return t.project(keep), nil
}

// RenameColumns returns a new table with columns renamed per mapping
// (old name to new name). Every old name must exist and the result must not
// contain duplicates.
func (t *Table) RenameColumns(mapping map[string]string) (*Table, error) {
	columns := t.Columns()
	for from, to := range mapping {
		j, ok := t.index[from]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, from)
		}
		columns[j] = to
	}
	return New(columns, t.rows)
}

// MapColumn returns a new table where every cell of the named column is
// replaced by fn's result. The first error aborts the mapping.
func (t *Table) MapColumn(name string, fn func(row int, c Cell) (Cell, error)) (*Table, error) {
	j, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	rows := make([][]Cell, len(t.rows))
	for i, row := range t.rows {
		next := append([]Cell(nil), row...)
		c, err := fn(i, row[j])
		if err != nil {
			return nil, err
		}
		next[j] = c
		rows[i] = next
	}
	return &Table{columns: t.Columns(), index: copyIndex(t.index), rows: rows}, nil
}

// AllBlank reports whether every cell of the named column is missing or
// whitespace. An unknown column reports false.
func (t *Table) AllBlank(name string) bool {
	j, ok := t.index[name]
	if !ok {
		return false
	}
	for _, row := range t.rows {
		if !row[j].IsBlank() {
			return false
		}
	}
	return true
}

// Equal reports whether two tables have the same columns and cells.
func (t *Table) Equal(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.columns) != len(o.columns) || len(t.rows) != len(o.rows) {
		return false
	}
	for i := range t.columns {
		if t.columns[i] != o.columns[i] {
			return false
		}
	}
	for i := range t.rows {
		for j := range t.rows[i] {
			if t.rows[i][j] != o.rows[i][j] {
				return false
			}
		}
	}
	return true
}

func (t *Table) project(keep []int) *Table {
	columns := make([]string, len(keep))
	index := make(map[string]int, len(keep))
	for k, j := range keep {
		columns[k] = t.columns[j]
		index[t.columns[j]] = k
	}
	rows := make([][]Cell, len(t.rows))
	for i, row := range t.rows {
		next := make([]Cell, len(keep))
		for k, j := range keep {
			next[k] = row[j]
		}
		rows[i] = next
	}
	return &Table{columns: columns, index: index, rows: rows}
}

func copyIndex(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
