package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	apperrors "stackedcsv/internal/errors"
	"stackedcsv/internal/table"
)

// DefaultSheet is the sheet name used by WriteTable.
const DefaultSheet = "Unified"

// Sheet is one table written to a workbook.
type Sheet struct {
	Name  string
	Table *table.Table
}

// XLSXWriter writes tables to workbooks.
type XLSXWriter struct{}

// NewXLSXWriter creates an XLSX writer.
func NewXLSXWriter() *XLSXWriter {
	return &XLSXWriter{}
}

// WriteTable writes t to a single-sheet workbook.
func (w *XLSXWriter) WriteTable(path, sheet string, t *table.Table) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	return w.WriteWorkbook(path, []Sheet{{Name: sheet, Table: t}})
}

// WriteWorkbook writes each table to its own sheet, in order. The header row
// is bold and missing cells are left empty.
func (w *XLSXWriter) WriteWorkbook(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return apperrors.NewValidationError("workbook needs at least one sheet")
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return apperrors.NewStorageError("failed to create header style", err)
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.Name); err != nil {
				return apperrors.NewStorageError(fmt.Sprintf("invalid sheet name %q", s.Name), err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("invalid sheet name %q", s.Name), err)
		}
		if err := writeSheet(f, s, bold); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewStorageError("failed to create directory", err)
	}
	if err := f.SaveAs(path); err != nil {
		return apperrors.NewStorageError("failed to save workbook", err).WithContext("path", path)
	}

	slog.Debug("workbook written",
		slog.String("path", path),
		slog.Int("sheets", len(sheets)))
	return nil
}

func writeSheet(f *excelize.File, s Sheet, headerStyle int) error {
	sw, err := f.NewStreamWriter(s.Name)
	if err != nil {
		return apperrors.NewStorageError("failed to open sheet writer", err)
	}

	header := make([]interface{}, s.Table.NumColumns())
	for j, name := range s.Table.Columns() {
		header[j] = name
	}
	if err := sw.SetRow("A1", header, excelize.RowOpts{StyleID: headerStyle}); err != nil {
		return apperrors.NewStorageError("failed to write header row", err)
	}

	for i := 0; i < s.Table.NumRows(); i++ {
		row := s.Table.Row(i)
		values := make([]interface{}, len(row))
		for j, c := range row {
			if !c.IsMissing() {
				values[j] = c.Value
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return apperrors.NewStorageError("failed to address row", err)
		}
		if err := sw.SetRow(cell, values); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("failed to write row %d", i), err)
		}
	}

	if err := sw.Flush(); err != nil {
		return apperrors.NewStorageError("failed to flush sheet", err)
	}
	return nil
}
