package splitter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"stackedcsv/internal/table"
)

// scenarioTable is two stacked tables separated by a repeated header.
func scenarioTable(t *testing.T) *table.Table {
	t.Helper()
	return mustTable(t, []string{"Row Type", "A", "B"}, [][]string{
		{"first name: Al", "1", "2"},
		{"x", "3", "4"},
		{"Row Type", "A", "B"},
		{"first name: Bo", "5", "6"},
		{"y", "7", "8"},
	})
}

func scenarioConfig() Config {
	return Config{
		Discriminator: "Row Type",
		HeaderRepeat:  "Row Type",
		KeyMarker:     "first name",
		Rename:        map[string]string{"Row Type": "First Name"},
		Prefixes:      []PrefixRule{{Field: "First Name", Prefix: "first name: "}},
	}
}

func mustTable(t *testing.T, columns []string, records [][]string) *table.Table {
	t.Helper()
	tbl, err := table.FromStrings(columns, records, nil)
	require.NoError(t, err)
	return tbl
}
