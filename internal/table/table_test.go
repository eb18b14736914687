package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) *Table {
	t.Helper()
	tbl, err := FromStrings(
		[]string{"Row Type", "A", "B"},
		[][]string{
			{"first name: Al", "1", ""},
			{"x", "3", "4"},
		},
		nil,
	)
	require.NoError(t, err)
	return tbl
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		rows    [][]Cell
		wantErr error
	}{
		{
			name:    "valid",
			columns: []string{"a", "b"},
			rows:    [][]Cell{{String("1"), Missing}},
		},
		{
			name:    "duplicate column",
			columns: []string{"a", "a"},
			wantErr: ErrDuplicateColumn,
		},
		{
			name:    "short row",
			columns: []string{"a", "b"},
			rows:    [][]Cell{{String("1")}},
			wantErr: ErrRowWidth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := New(tt.columns, tt.rows)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(tt.rows), tbl.NumRows())
			assert.Equal(t, len(tt.columns), tbl.NumColumns())
		})
	}
}

func TestFromStringsMissing(t *testing.T) {
	tbl := sample(t)

	c, ok := tbl.Cell(0, "B")
	require.True(t, ok)
	assert.True(t, c.IsMissing())

	c, ok = tbl.Cell(1, "B")
	require.True(t, ok)
	assert.Equal(t, String("4"), c)

	_, ok = tbl.Cell(0, "nope")
	assert.False(t, ok)
}

func TestImmutability(t *testing.T) {
	tbl := sample(t)

	cols := tbl.Columns()
	cols[0] = "changed"
	assert.Equal(t, "Row Type", tbl.Columns()[0])

	row := tbl.Row(0)
	row[1] = String("changed")
	c, _ := tbl.Cell(0, "A")
	assert.Equal(t, "1", c.Value)

	mapped, err := tbl.MapColumn("A", func(_ int, c Cell) (Cell, error) {
		return String(c.Value + "!"), nil
	})
	require.NoError(t, err)
	orig, _ := tbl.Cell(0, "A")
	next, _ := mapped.Cell(0, "A")
	assert.Equal(t, "1", orig.Value)
	assert.Equal(t, "1!", next.Value)
}

func TestDropAndRename(t *testing.T) {
	tbl := sample(t)

	dropped, err := tbl.DropColumns("B")
	require.NoError(t, err)
	assert.Equal(t, []string{"Row Type", "A"}, dropped.Columns())
	assert.Equal(t, [][]string{{"first name: Al", "1"}, {"x", "3"}}, dropped.Records())

	_, err = tbl.DropColumns("missing")
	assert.ErrorIs(t, err, ErrUnknownColumn)

	renamed, err := tbl.RenameColumns(map[string]string{"Row Type": "First Name"})
	require.NoError(t, err)
	assert.Equal(t, []string{"First Name", "A", "B"}, renamed.Columns())
	assert.True(t, renamed.HasColumn("First Name"))
	assert.False(t, renamed.HasColumn("Row Type"))

	_, err = tbl.RenameColumns(map[string]string{"A": "B"})
	assert.ErrorIs(t, err, ErrDuplicateColumn)
}

func TestSelectRowsAndAllBlank(t *testing.T) {
	tbl := sample(t)

	first := tbl.SelectRows([]int{0})
	assert.Equal(t, 1, first.NumRows())
	assert.True(t, first.AllBlank("B"))
	assert.False(t, tbl.AllBlank("B"))
	assert.False(t, tbl.AllBlank("unknown"))

	reversed := tbl.SelectRows([]int{1, 0})
	col, err := reversed.Column("Row Type")
	require.NoError(t, err)
	assert.Equal(t, []Cell{String("x"), String("first name: Al")}, col)
}

func TestEqual(t *testing.T) {
	a := sample(t)
	b := sample(t)
	assert.True(t, a.Equal(b))

	c, err := a.MapColumn("B", func(_ int, c Cell) (Cell, error) { return String(""), nil })
	require.NoError(t, err)
	assert.False(t, a.Equal(c), "present empty string differs from missing")

	var nilTable *Table
	assert.False(t, a.Equal(nilTable))
	assert.True(t, nilTable.Equal(nil))
}
