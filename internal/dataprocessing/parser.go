package dataprocessing

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "stackedcsv/internal/errors"
	"stackedcsv/internal/table"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported input format")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var unnamedPattern = regexp.MustCompile(`^Unnamed: \d+$`)

// LoadOptions control how an input file becomes a table.
type LoadOptions struct {
	// Sheet selects the XLSX sheet. Empty picks the first sheet whose header
	// row contains HeaderKeyword, or the first sheet.
	Sheet string
	// HeaderKeyword locates the header row of an XLSX sheet: the first row with
	// a cell equal to it. Empty uses the first non-empty row.
	HeaderKeyword string
	// NAValues are cell values read as missing in addition to "".
	NAValues []string
	// DropUnnamedEmpty removes columns with a blank header whose cells are all
	// missing.
	DropUnnamedEmpty bool
	// Comma is the CSV field delimiter; zero means ','.
	Comma rune
}

func (o LoadOptions) isMissing() func(string) bool {
	na := make(map[string]bool, len(o.NAValues)+1)
	na[""] = true
	for _, v := range o.NAValues {
		na[v] = true
	}
	return func(s string) bool { return na[s] }
}

// LoadFile loads a CSV or XLSX file by extension.
func LoadFile(path string, opts LoadOptions) (*table.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return LoadCSVFile(path, opts)
	case ".xlsx", ".xlsm":
		return LoadXLSX(path, opts)
	default:
		return nil, apperrors.NewParsingError(
			fmt.Sprintf("cannot load %s", filepath.Base(path)), ErrUnsupportedFormat)
	}
}

// LoadCSVFile opens path and loads it with LoadCSV.
func LoadCSVFile(path string, opts LoadOptions) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open file", err).WithContext("path", path)
	}
	defer f.Close()

	t, err := LoadCSV(f, opts)
	if err != nil {
		return nil, err
	}
	slog.Debug("csv loaded",
		slog.String("path", path),
		slog.Int("rows", t.NumRows()),
		slog.Int("columns", t.NumColumns()))
	return t, nil
}

// LoadCSV reads a CSV whose first record is the header. A leading UTF-8 BOM is
// skipped, short rows are padded with missing cells and rows longer than the
// header are rejected.
func LoadCSV(r io.Reader, opts LoadOptions) (*table.Table, error) {
	src, err := NewCSVSource(r, opts)
	if err != nil {
		return nil, err
	}

	var rows [][]table.Cell
	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	t, err := table.New(src.Columns(), rows)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to build table", err)
	}
	if opts.DropUnnamedEmpty {
		t, _ = DropUnnamedEmpty(t)
	}
	return t, nil
}

// CSVSource reads a CSV one row at a time.
type CSVSource struct {
	reader    *csv.Reader
	columns   []string
	isMissing func(string) bool
	line      int
}

// NewCSVSource reads the header of r and returns a source positioned on the
// first data row. Blank-header dropping needs the whole table and is ignored.
func NewCSVSource(r io.Reader, opts LoadOptions) (*CSVSource, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperrors.NewParsingError("input has no header row", err)
	}
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read header", err)
	}

	return &CSVSource{
		reader:    reader,
		columns:   NormalizeHeader(header),
		isMissing: opts.isMissing(),
		line:      1,
	}, nil
}

// Columns returns the normalized header.
func (s *CSVSource) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Next returns the next row or io.EOF.
func (s *CSVSource) Next() ([]table.Cell, error) {
	rec, err := s.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read CSV record", err)
	}
	s.line++
	return toCells(rec, len(s.columns), s.isMissing, s.line)
}

func toCells(rec []string, width int, isMissing func(string) bool, line int) ([]table.Cell, error) {
	if len(rec) > width {
		extra := rec[width:]
		for _, v := range extra {
			if !isMissing(v) {
				return nil, apperrors.NewParsingError(
					fmt.Sprintf("record on line %d has %d fields, header has %d", line, len(rec), width), nil).
					WithContext("line", line)
			}
		}
		rec = rec[:width]
	}
	row := make([]table.Cell, width)
	for j, v := range rec {
		if !isMissing(v) {
			row[j] = table.String(v)
		}
	}
	return row, nil
}

// NormalizeHeader names blank header cells "Unnamed: N" (N is the 0-based
// column position) and suffixes repeated names with ".1", ".2" and so on.
func NormalizeHeader(raw []string) []string {
	out := make([]string, len(raw))
	seen := make(map[string]int, len(raw))
	taken := make(map[string]bool, len(raw))
	for i, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		base := name
		for taken[name] {
			seen[base]++
			name = base + "." + strconv.Itoa(seen[base])
		}
		taken[name] = true
		out[i] = name
	}
	return out
}

// DropUnnamedEmpty removes "Unnamed: N" columns that hold no value and returns
// the names it dropped.
func DropUnnamedEmpty(t *table.Table) (*table.Table, []string) {
	var drop []string
	for _, name := range t.Columns() {
		if !unnamedPattern.MatchString(name) {
			continue
		}
		col, _ := t.Column(name)
		empty := true
		for _, c := range col {
			if !c.IsMissing() {
				empty = false
				break
			}
		}
		if empty {
			drop = append(drop, name)
		}
	}
	if len(drop) == 0 {
		return t, nil
	}
	out, err := t.DropColumns(drop...)
	if err != nil {
		return t, nil
	}
	return out, drop
}

// LoadXLSX reads one sheet of a workbook. Rows above the header row are
// ignored and trailing empty cells are read as missing.
func LoadXLSX(path string, opts LoadOptions) (*table.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open workbook", err).WithContext("path", path)
	}
	defer f.Close()

	sheet, rows, headerRow, err := findSheet(f, opts)
	if err != nil {
		return nil, err
	}

	columns := NormalizeHeader(rows[headerRow])
	isMissing := opts.isMissing()
	var cells [][]table.Cell
	for i := headerRow + 1; i < len(rows); i++ {
		row, err := toCells(rows[i], len(columns), isMissing, i+1)
		if err != nil {
			return nil, err
		}
		cells = append(cells, row)
	}

	t, err := table.New(columns, cells)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to build table", err)
	}
	if opts.DropUnnamedEmpty {
		t, _ = DropUnnamedEmpty(t)
	}

	slog.Debug("xlsx loaded",
		slog.String("path", path),
		slog.String("sheet", sheet),
		slog.Int("header_row", headerRow+1),
		slog.Int("rows", t.NumRows()))
	return t, nil
}

// findSheet picks the sheet and header row. A named sheet must exist; without
// one, sheets are scanned in order for the header keyword.
func findSheet(f *excelize.File, opts LoadOptions) (string, [][]string, int, error) {
	if opts.Sheet != "" {
		rows, err := f.GetRows(opts.Sheet)
		if err != nil {
			return "", nil, 0, apperrors.NewNotFoundError(fmt.Sprintf("sheet %q", opts.Sheet))
		}
		header := headerRowIndex(rows, opts.HeaderKeyword)
		if header < 0 {
			return "", nil, 0, apperrors.NewParsingError(
				fmt.Sprintf("no header row found in sheet %q", opts.Sheet), nil)
		}
		return opts.Sheet, rows, header, nil
	}

	sheets := f.GetSheetList()
	for _, name := range sheets {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		if header := headerRowIndex(rows, opts.HeaderKeyword); header >= 0 {
			return name, rows, header, nil
		}
	}
	return "", nil, 0, apperrors.NewParsingError("no sheet with a header row found", nil).
		WithContext("sheets", sheets)
}

// headerRowIndex returns the first row containing keyword as a whole cell, or
// the first non-empty row when keyword is empty.
func headerRowIndex(rows [][]string, keyword string) int {
	for i, row := range rows {
		for _, cell := range row {
			cell = strings.TrimSpace(cell)
			if keyword == "" && cell != "" {
				return i
			}
			if keyword != "" && cell == keyword {
				return i
			}
		}
	}
	return -1
}
