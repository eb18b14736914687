package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stackedcsv/internal/config"
	apperrors "stackedcsv/internal/errors"
	"stackedcsv/internal/exporter"
	"stackedcsv/internal/services"
	"stackedcsv/internal/validation"
)

// splitFlags are shared by split and batch.
type splitFlags struct {
	jobFile     string
	format      string
	sheet       string
	table       string
	snapshotDir string
	stream      bool
	bom         bool
	jsonOutput  bool
}

func (f *splitFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.jobFile, "job", "", "Job file (YAML); the built-in job is used when empty")
	cmd.Flags().StringVar(&f.format, "format", "", "Output format: csv|xlsx|sqlite (default: from the output extension)")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "Sheet name for xlsx output")
	cmd.Flags().StringVar(&f.table, "table", "", "Table name for sqlite output")
	cmd.Flags().StringVar(&f.snapshotDir, "snapshot-dir", "", "Write every stage's tables as CSV into this directory")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "Split in a single pass without loading the table (csv only)")
	cmd.Flags().BoolVar(&f.bom, "bom", false, "Prefix CSV output with a UTF-8 byte order mark")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print results as JSON")
}

func (f *splitFlags) options(cfg *config.Config) (services.SplitOptions, error) {
	job, err := loadJob(f.jobFile)
	if err != nil {
		return services.SplitOptions{}, err
	}
	opts := services.SplitOptions{
		Job:         job,
		Sheet:       f.sheet,
		TableName:   f.table,
		SnapshotDir: f.snapshotDir,
		Stream:      f.stream,
		BOM:         f.bom,
	}
	if opts.SnapshotDir == "" {
		opts.SnapshotDir = cfg.Paths.SnapshotDir
	}
	if f.format != "" {
		format, err := exporter.ParseFormat(f.format)
		if err != nil {
			return opts, apperrors.NewValidationError(err.Error())
		}
		opts.Format = format
	}
	return opts, nil
}

func newSplitCmd(a *app) *cobra.Command {
	var (
		flags  splitFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "split <input>",
		Short: "Split one CSV or XLSX file",
		Long: `Split one file into the unified table.

The output defaults to <input>_unified.<ext> next to the input. Orphan rows and
unmatched groups are reported as warnings unless the job makes them fatal, in
which case the exit code is 2.

Example: stackedcsv split runs.csv --job job.yaml --format sqlite --table runs`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd.Context()); err != nil {
				return err
			}
			opts, err := flags.options(a.cfg)
			if err != nil {
				return err
			}
			opts.Output = output

			res, err := a.service.SplitFile(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if flags.jsonOutput {
				return writeJSON(a.stdout, res)
			}
			printResult(a.stdout, res)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file")
	return cmd
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		flags       splitFlags
		outDir      string
		pattern     string
		concurrency int
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Split every matching file in a directory",
		Long: `Split every supported file in a directory that matches --pattern.

Files are processed concurrently; a failing file does not stop the others.
The exit code is 1 if any file failed fatally, 2 if files only failed data
quality checks, 0 otherwise.

Example: stackedcsv batch data/ --out-dir output --pattern "*.csv" --metrics-file stackedcsv.prom`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.setup(ctx); err != nil {
				return err
			}
			if outDir == "" {
				outDir = a.cfg.Paths.OutputDir
			}
			if pattern == "" {
				pattern = a.cfg.Batch.Pattern
			}
			opts, err := flags.options(a.cfg)
			if err != nil {
				return err
			}
			if concurrency > 0 {
				a.service = services.NewSplitService(a.logger, a.metrics, concurrency)
			}

			inputs, err := validation.NewFileValidator(a.logger).ListInputs(args[0], pattern)
			if err != nil {
				return err
			}
			if len(inputs) == 0 {
				fmt.Fprintf(a.stdout, "no files in %s match %s\n", args[0], pattern)
				return nil
			}

			results, batchErr := a.service.RunBatch(ctx, inputs, outDir, opts)
			if results == nil && batchErr != nil {
				return batchErr
			}

			if metricsFile != "" {
				if err := a.providers.WriteMetricsTextfile(metricsFile); err != nil {
					a.logger.Warn("metrics_textfile_failed",
						slog.String("path", metricsFile),
						slog.String("error", err.Error()))
				}
			}

			if flags.jsonOutput {
				if err := writeJSON(a.stdout, results); err != nil {
					return err
				}
			} else {
				printBatch(a.stdout, results)
			}

			if code := services.BatchExitCode(results); code != apperrors.ExitOK {
				return withCode(code, batchErr)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Output directory (default: paths.output_dir)")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Glob selecting input files (default: batch.pattern)")
	cmd.Flags().IntVar(&concurrency, "max-concurrent", 0, "Files processed at once (default: batch.max_concurrent)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile after the batch")
	return cmd
}

func newInspectCmd(a *app) *cobra.Command {
	var (
		jobFile    string
		rows       int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <input>",
		Short: "Describe a file before splitting it",
		Long: `Print the columns, first and last rows and per-column statistics of a file.

Example: stackedcsv inspect runs.xlsx --rows 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd.Context()); err != nil {
				return err
			}
			var job *config.JobConfig
			if jobFile != "" {
				j, err := config.LoadJob(jobFile)
				if err != nil {
					return err
				}
				job = j
			}

			prof, err := a.service.Inspect(cmd.Context(), args[0], job, rows)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(a.stdout, prof)
			}
			return prof.WriteText(a.stdout)
		},
	}

	cmd.Flags().StringVar(&jobFile, "job", "", "Job file whose input options are used to load the file")
	cmd.Flags().IntVar(&rows, "rows", 5, "Rows shown from the head and the tail")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the profile as JSON")
	return cmd
}

func newInitJobCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "init-job",
		Short: "Print the built-in job as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.DefaultJob().Marshal()
			if err != nil {
				return err
			}
			if output == "" {
				_, err = a.stdout.Write(data)
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
				return apperrors.NewStorageError("failed to create job directory", err)
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return apperrors.NewStorageError("failed to write job file", err).WithContext("path", output)
			}
			fmt.Fprintf(a.stdout, "wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the job to this file instead of stdout")
	return cmd
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, r *services.FileResult) {
	fmt.Fprintf(w, "%s -> %s: %d rows read, %d groups, %d unified rows\n",
		r.Input, r.Output, r.Report.RowsRead, r.Report.Groups, r.Report.UnifiedRows)
	if n := len(r.Report.Orphans); n > 0 {
		fmt.Fprintf(w, "warning: %d orphan rows before the first key row: %v\n", n, r.Report.Orphans)
	}
	if n := len(r.Report.Unmatched); n > 0 {
		fmt.Fprintf(w, "warning: %d unmatched groups\n", n)
		for _, u := range r.Report.Unmatched {
			fmt.Fprintf(w, "  group %d: %s\n", u.GroupID, u.Side)
		}
	}
	for _, p := range r.Snapshots {
		fmt.Fprintf(w, "snapshot %s\n", p)
	}
}

func printBatch(w io.Writer, results []*services.FileResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "input\tstatus\trows\tgroups\tunified\torphans\tunmatched\toutput")
	failed := 0
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "failed"
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			filepath.Base(r.Input), status, r.Report.RowsRead, r.Report.Groups,
			r.Report.UnifiedRows, len(r.Report.Orphans), len(r.Report.Unmatched), r.Output)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d files, %d failed\n", len(results), failed)
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%s: %s\n", filepath.Base(r.Input), r.Error)
		}
	}
}
