// Package dataprocessing loads input files into tables and profiles them.
//
// # Loading
//
// LoadFile dispatches on the extension:
//
//	t, err := dataprocessing.LoadFile("runs.csv", dataprocessing.LoadOptions{
//	    NAValues:         []string{"NA"},
//	    DropUnnamedEmpty: true,
//	})
//
// CSV input may start with a UTF-8 BOM. Header cells are trimmed, blank header
// cells become "Unnamed: N" and repeated names get ".1", ".2" suffixes. Empty
// cells and NAValues are read as missing. CSVSource reads the same format one
// row at a time for streaming runs.
//
// XLSX input is read from one sheet. Rows above the header row (located by
// HeaderKeyword) are skipped, which lets a workbook carry a title block.
//
// # Profiling
//
// Profiler reproduces a quick data-details pass: column names, first and last
// rows, per column missing counts with numeric statistics, and a describe
// table.
package dataprocessing
