package splitter

import (
	"context"
	"errors"
	"io"

	"stackedcsv/internal/table"
)

// RecordSource yields the rows of a table one at a time. Next returns io.EOF
// after the last row.
type RecordSource interface {
	Columns() []string
	Next() ([]table.Cell, error)
}

// RowSink receives unified rows.
type RowSink interface {
	WriteHeader(columns []string) error
	WriteRow(cells []table.Cell) error
}

// Triple is one classified row of a stream. Row is its 0-based position in the
// source, Group is 0 for orphans.
type Triple struct {
	Row    int
	Group  int
	Type   RowType
	Record []table.Cell
}

// ctxCheckInterval is how many rows are read between context checks.
const ctxCheckInterval = 1024

// Stream is the single pass form of Detect and Classify. It calls fn for every
// row with a discriminator value, in source order, including header repeats
// and orphans. Rows without a discriminator are skipped.
func Stream(ctx context.Context, src RecordSource, cfg Config, fn func(Triple) error) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	columns := src.Columns()
	disc := -1
	for i, name := range columns {
		if name == cfg.Discriminator {
			disc = i
			break
		}
	}
	if disc < 0 {
		return NewMissingDiscriminatorError(cfg.Discriminator, columns)
	}

	group := 0
	for row := 0; ; row++ {
		if row%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return NewCancelledError(StageDetect, err)
			}
		}
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		c := rec[disc]
		if c.IsBlank() {
			continue
		}
		kind := ClassifyValue(c.Value, cfg)
		if kind == KeyRow {
			group++
		}
		if err := fn(Triple{Row: row, Group: group, Type: kind, Record: rec}); err != nil {
			return err
		}
	}
}

// StreamUnified runs the whole pipeline in one pass, writing unified rows to
// sink as soon as they are known. Key rows always precede their value rows,
// so only the current group's key row is held. Dropping empty key columns
// needs every key row up front and is rejected here.
func StreamUnified(ctx context.Context, src RecordSource, cfg Config, sink RowSink) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	cfg = cfg.withDefaults()
	if cfg.DropEmptyKeyColumns {
		return Report{}, NewInvalidConfigError("dropping empty key columns is not supported when streaming", nil)
	}

	columns := src.Columns()
	plan, err := newKeyPlan(columns, cfg.DropColumns, cfg)
	if err != nil {
		return Report{}, err
	}
	if err := sink.WriteHeader(unifiedColumns(plan.columns, columns, cfg.ValueSuffix)); err != nil {
		return Report{}, err
	}

	var (
		report    Report
		curKey    []table.Cell
		curGroup  int
		hasValues bool
		lastRow   = -1
	)

	closeGroup := func() error {
		if curKey == nil || hasValues {
			return nil
		}
		report.Unmatched = append(report.Unmatched, UnmatchedGroup{GroupID: curGroup, Side: KeyOnly})
		if cfg.Join != JoinLeft {
			return nil
		}
		report.UnifiedRows++
		return sink.WriteRow(append(append([]table.Cell(nil), curKey...), missingCells(len(columns))...))
	}

	counted := &countingSource{RecordSource: src}
	err = Stream(ctx, counted, cfg, func(tr Triple) error {
		for r := lastRow + 1; r < tr.Row; r++ {
			report.DroppedRows = append(report.DroppedRows, r)
		}
		lastRow = tr.Row

		switch {
		case tr.Type == HeaderRepeat:
			report.HeaderRepeats = append(report.HeaderRepeats, tr.Row)
		case tr.Group == 0:
			if cfg.FailOnOrphans {
				return NewOrphanRowError(tr.Row, tr.Record[indexOf(columns, cfg.Discriminator)].String())
			}
			report.Orphans = append(report.Orphans, tr.Row)
		case tr.Type == KeyRow:
			if err := closeGroup(); err != nil {
				return err
			}
			key, err := plan.apply(tr.Record, tr.Row, tr.Group)
			if err != nil {
				return err
			}
			curKey, curGroup, hasValues = key, tr.Group, false
			report.KeyRows++
			report.Groups = tr.Group
		default:
			hasValues = true
			report.ValueRows++
			report.UnifiedRows++
			return sink.WriteRow(append(append([]table.Cell(nil), curKey...), tr.Record...))
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	if err := closeGroup(); err != nil {
		return Report{}, err
	}
	for r := lastRow + 1; r < counted.rows; r++ {
		report.DroppedRows = append(report.DroppedRows, r)
	}
	report.RowsRead = counted.rows

	if cfg.FailOnUnmatched && len(report.Unmatched) > 0 {
		unmatched := NewUnmatchedGroupError(report.Unmatched[0])
		unmatched.Context["count"] = len(report.Unmatched)
		return Report{}, unmatched
	}
	return report, nil
}

func indexOf(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}

type countingSource struct {
	RecordSource
	rows int
}

func (c *countingSource) Next() ([]table.Cell, error) {
	rec, err := c.RecordSource.Next()
	if err == nil {
		c.rows++
	}
	return rec, err
}

// TableSource reads the rows of an in-memory table.
type TableSource struct {
	t    *table.Table
	next int
}

// NewTableSource returns a source over t.
func NewTableSource(t *table.Table) *TableSource {
	return &TableSource{t: t}
}

// Columns returns the table's column names.
func (s *TableSource) Columns() []string {
	return s.t.Columns()
}

// Next returns the next row or io.EOF.
func (s *TableSource) Next() ([]table.Cell, error) {
	if s.next >= s.t.NumRows() {
		return nil, io.EOF
	}
	row := s.t.Row(s.next)
	s.next++
	return row, nil
}

// TableSink collects unified rows in memory.
type TableSink struct {
	columns []string
	rows    [][]table.Cell
}

// WriteHeader records the output columns.
func (s *TableSink) WriteHeader(columns []string) error {
	s.columns = append([]string(nil), columns...)
	return nil
}

// WriteRow appends one row.
func (s *TableSink) WriteRow(cells []table.Cell) error {
	s.rows = append(s.rows, append([]table.Cell(nil), cells...))
	return nil
}

// Table returns the collected rows as a table.
func (s *TableSink) Table() (*table.Table, error) {
	return table.New(s.columns, s.rows)
}
