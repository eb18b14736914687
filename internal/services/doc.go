// Package services ties loading, splitting and exporting together.
//
// SplitService is the entry point used by the command line: SplitFile handles
// one input, RunBatch fans a directory of inputs out over a bounded errgroup
// and Inspect profiles an input without splitting it. Every file runs under a
// trace id (the files of one batch share it), writes a file_split log entry
// and, when metrics are enabled, records one observation on the run
// instruments.
//
// Failures are returned as they come from the lower layers so that
// errors.ExitCode can map them to the process exit code; BatchExitCode folds
// the per-file results of a batch into one code.
package services
