// Package exporter writes unified tables to CSV, XLSX and SQLite.
//
// CSVWriter writes whole tables or, through StreamWriter, one row at a time;
// StreamWriter satisfies splitter.RowSink so a streaming run can write straight
// to disk. XLSXWriter writes one sheet per table. SQLiteWriter stores every
// column as TEXT with NULL for missing cells, and keeps a stackedcsv_runs
// table describing each load.
//
// Export picks the writer from Options.Format or the file extension:
//
//	err := exporter.Export(ctx, "out/runs.xlsx", result.Table, exporter.Options{})
package exporter
