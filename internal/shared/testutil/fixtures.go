package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// StackedCSV holds two groups separated by a repeated header.
const StackedCSV = `Row Type,A,B
first name: Al,1,2
x,3,4
Row Type,A,B
first name: Bo,5,6
y,7,8
`

// OrphanCSV starts with a value row that belongs to no group.
const OrphanCSV = `Row Type,A,B
stray,0,0
first name: Al,1,2
x,3,4
`

// StackedJobYAML is a job matching StackedCSV.
const StackedJobYAML = `discriminator: Row Type
key_marker: first name
rename:
  Row Type: First Name
prefixes:
  - field: First Name
    prefix: "first name: "
`

// UnifiedRecords is the unified table of StackedCSV under StackedJobYAML,
// header first.
var UnifiedRecords = [][]string{
	{"First Name", "A", "B", "Row Type", "A_value", "B_value"},
	{"Al", "1", "2", "x", "3", "4"},
	{"Bo", "5", "6", "y", "7", "8"},
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// WriteXLSX writes the CSV text content as sheet of a new workbook at path,
// below skip empty rows.
func WriteXLSX(t *testing.T, path, sheet, content string, skip int) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName("Sheet1", sheet))
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for i, line := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+1+skip)
		require.NoError(t, err)
		values := strings.Split(line, ",")
		row := make([]interface{}, len(values))
		for j, v := range values {
			row[j] = v
		}
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, f.SaveAs(path))
	return path
}
