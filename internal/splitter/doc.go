// Package splitter turns a CSV made of several stacked tables into one table.
//
// Each stacked table starts with a key row (its discriminator value contains
// the key marker, for example "first name: Al") followed by value rows, and
// the tables may be separated by repeated header rows. The pipeline runs four
// pure stages:
//
//	Detect     drop rows without a discriminator, assign group ids
//	Classify   discard header repeats, split key rows from value rows
//	Normalize  drop, rename and prefix-strip the key columns
//	Merge      join each value row to its group's key row
//
// Group ids start at 1 and increase by one on every key row; rows before the
// first key row get group 0 and are reported as orphans. Fatal problems are
// returned as *StageError. Orphans and unmatched groups are collected on the
// Report.
//
// Stream and StreamUnified do the same work in a single pass over a
// RecordSource for inputs that should not be held in memory.
package splitter
