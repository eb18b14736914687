package splitter

import (
	"strconv"

	"stackedcsv/internal/table"
)

// RowType is the class of a row.
type RowType int

const (
	HeaderRepeat RowType = iota
	KeyRow
	ValueRow
)

// String returns the row type name.
func (t RowType) String() string {
	switch t {
	case HeaderRepeat:
		return "header_repeat"
	case KeyRow:
		return "key_row"
	case ValueRow:
		return "value_row"
	default:
		return "unknown"
	}
}

// Side names the side of the join a group is missing from.
type Side string

const (
	// KeyOnly groups have a key row but no value rows.
	KeyOnly Side = "key_only"
	// ValueOnly groups have value rows but no key row.
	ValueOnly Side = "value_only"
)

func (s Side) missing() string {
	if s == KeyOnly {
		return "value"
	}
	return "key"
}

// UnmatchedGroup is a group present on only one side of the join.
type UnmatchedGroup struct {
	GroupID int  `json:"group_id"`
	Side    Side `json:"side"`
}

// Partition is a subset of rows with their group ids and positions in the
// loaded table.
type Partition struct {
	Table      *table.Table
	GroupIDs   []int
	SourceRows []int
}

// Len returns the number of rows.
func (p Partition) Len() int {
	if p.Table == nil {
		return 0
	}
	return p.Table.NumRows()
}

// Detected is the output of the detect stage.
type Detected struct {
	// Rows holds the kept rows, the group id of each and its position in the
	// loaded table.
	Rows Partition
	// DroppedRows lists rows removed for a missing discriminator.
	DroppedRows []int
	// Groups is the number of key row markers seen.
	Groups int
}

// Classified is the output of the classify stage.
type Classified struct {
	Keys          Partition
	Values        Partition
	HeaderRepeats []int
	Orphans       []int
	Groups        int
}

// Normalized is the output of the normalize stage.
type Normalized struct {
	Keys              Partition
	Values            Partition
	DroppedKeyColumns []string
	Groups            int
}

// Merged is the output of the merge stage.
type Merged struct {
	Table     *table.Table
	GroupIDs  []int
	Unmatched []UnmatchedGroup
}

// Report aggregates the non-fatal findings of a run. Row numbers are 0-based
// indices into the loaded table.
type Report struct {
	RowsRead          int              `json:"rows_read"`
	DroppedRows       []int            `json:"dropped_rows,omitempty"`
	HeaderRepeats     []int            `json:"header_repeats,omitempty"`
	Orphans           []int            `json:"orphans,omitempty"`
	Groups            int              `json:"groups"`
	KeyRows           int              `json:"key_rows"`
	ValueRows         int              `json:"value_rows"`
	DroppedKeyColumns []string         `json:"dropped_key_columns,omitempty"`
	Unmatched         []UnmatchedGroup `json:"unmatched,omitempty"`
	UnifiedRows       int              `json:"unified_rows"`
	AlreadyUnified    bool             `json:"already_unified,omitempty"`
}

// Clean reports whether the run found neither orphans nor unmatched groups.
func (r Report) Clean() bool {
	return len(r.Orphans) == 0 && len(r.Unmatched) == 0
}

// Issues returns the aggregate findings as errors.
func (r Report) Issues() *ErrorList {
	list := &ErrorList{}
	for _, row := range r.Orphans {
		list.Add(NewOrphanRowError(row, ""))
	}
	for _, u := range r.Unmatched {
		list.Add(NewUnmatchedGroupError(u))
	}
	return list
}

// Snapshot is one stage output kept for inspection.
type Snapshot struct {
	Name  string
	Table *table.Table
}

// Result is the outcome of a successful run.
type Result struct {
	RunID     string
	Table     *table.Table
	Report    Report
	State     *RunState
	Snapshots []Snapshot
}

// GroupColumn is the name given to the group id column in snapshots.
const GroupColumn = "group_id"

// withGroupColumn appends the group ids as a column for snapshots.
func withGroupColumn(p Partition) *table.Table {
	if p.Table == nil {
		return nil
	}
	name := GroupColumn
	for p.Table.HasColumn(name) {
		name = "_" + name
	}
	columns := append(p.Table.Columns(), name)
	rows := make([][]table.Cell, p.Table.NumRows())
	for i := range rows {
		rows[i] = append(p.Table.Row(i), table.String(strconv.Itoa(p.GroupIDs[i])))
	}
	return table.MustNew(columns, rows)
}
