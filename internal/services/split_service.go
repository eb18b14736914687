package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"stackedcsv/internal/config"
	"stackedcsv/internal/dataprocessing"
	apperrors "stackedcsv/internal/errors"
	"stackedcsv/internal/exporter"
	"stackedcsv/internal/infrastructure"
	"stackedcsv/internal/splitter"
	"stackedcsv/internal/validation"
)

// ErrStreamUnsupported is returned when streaming is requested for a file
// layout that needs the whole table in memory.
var ErrStreamUnsupported = errors.New("streaming needs CSV input and CSV output")

// SplitOptions describe one split request.
type SplitOptions struct {
	Job *config.JobConfig
	// Output is the output file. Empty writes <input>_unified next to the input.
	Output string
	// Format of the output; empty follows the Output extension.
	Format exporter.Format
	// Sheet and TableName name the XLSX sheet and SQLite table.
	Sheet     string
	TableName string
	// SnapshotDir receives each stage's tables as CSV when set.
	SnapshotDir string
	// Stream runs the single-pass pipeline without loading the table.
	Stream bool
	BOM    bool
}

// FileResult is the outcome of one file.
type FileResult struct {
	Input     string          `json:"input"`
	Output    string          `json:"output,omitempty"`
	RunID     string          `json:"run_id,omitempty"`
	Report    splitter.Report `json:"report"`
	Snapshots []string        `json:"snapshots,omitempty"`
	Duration  time.Duration   `json:"duration_ns"`
	Error     string          `json:"error,omitempty"`
	Err       error           `json:"-"`
}

// SplitService loads, splits and exports files.
type SplitService struct {
	logger        *slog.Logger
	validator     *validation.FileValidator
	metrics       *infrastructure.SplitMetrics
	maxConcurrent int
}

// NewSplitService creates the service. metrics may be nil; maxConcurrent
// bounds RunBatch and defaults to 1.
func NewSplitService(logger *slog.Logger, metrics *infrastructure.SplitMetrics, maxConcurrent int) *SplitService {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	logger = infrastructure.WithComponent(logger, "split_service")
	return &SplitService{
		logger:        logger,
		validator:     validation.NewFileValidator(logger),
		metrics:       metrics,
		maxConcurrent: maxConcurrent,
	}
}

// SplitFile runs one input through validation, loading, the pipeline and the
// exporter. The returned result is never nil; on failure it carries the error
// and whatever was known.
func (s *SplitService) SplitFile(ctx context.Context, input string, opts SplitOptions) (*FileResult, error) {
	ctx = infrastructure.EnsureTraceID(ctx)
	start := time.Now()
	result := &FileResult{Input: input}

	err := s.splitFile(ctx, input, opts, result)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = err
		result.Error = err.Error()
	}
	if s.metrics != nil {
		s.metrics.RecordRun(ctx, input, result.Report, result.Duration, err)
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "file_split_failed",
			slog.String("input", input),
			slog.String("error", err.Error()),
			slog.Int("exit_code", apperrors.ExitCode(err)))
		return result, err
	}
	s.logger.InfoContext(ctx, "file_split",
		slog.String("input", input),
		slog.String("output", result.Output),
		slog.String("run_id", result.RunID),
		slog.Int("rows_read", result.Report.RowsRead),
		slog.Int("unified_rows", result.Report.UnifiedRows),
		slog.Int("groups", result.Report.Groups),
		slog.Int("orphans", len(result.Report.Orphans)),
		slog.Int("unmatched", len(result.Report.Unmatched)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

func (s *SplitService) splitFile(ctx context.Context, input string, opts SplitOptions, result *FileResult) error {
	job := opts.Job
	if job == nil {
		job = config.DefaultJob()
	}

	if err := s.validator.ValidateInputFile(input); err != nil {
		return err
	}

	format := opts.Format
	output := opts.Output
	if output == "" {
		if format == "" {
			format = exporter.FormatCSV
		}
		output = exporter.OutputPath(filepath.Dir(input), input, format)
	} else if format == "" {
		format = exporter.FormatFromPath(output)
	}
	if err := s.validator.ValidateOutputFile(input, output); err != nil {
		return err
	}
	result.Output = output

	cfg := job.ToSplitter()
	cfg.KeepSnapshots = opts.SnapshotDir != ""

	if opts.Stream {
		return s.streamFile(ctx, input, output, format, job, cfg, opts, result)
	}

	tbl, err := dataprocessing.LoadFile(input, job.LoadOptions())
	if err != nil {
		return err
	}

	pipeline, err := splitter.NewPipeline(cfg, s.logger)
	if err != nil {
		return apperrors.NewConfigError("invalid job", err)
	}
	res, err := pipeline.Run(ctx, tbl)
	if err != nil {
		result.Report.RowsRead = tbl.NumRows()
		return err
	}
	result.RunID = res.RunID
	result.Report = res.Report
	if s.metrics != nil {
		s.metrics.RecordStages(ctx, res.State)
	}

	if err := s.export(ctx, input, output, format, opts, res); err != nil {
		return err
	}

	if opts.SnapshotDir != "" {
		prefix := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		paths, err := exporter.WriteSnapshots(opts.SnapshotDir, prefix, res.Snapshots)
		result.Snapshots = paths
		if err != nil {
			return err
		}
	}
	return nil
}

// export writes the unified table. SQLite outputs also record the run.
func (s *SplitService) export(ctx context.Context, input, output string, format exporter.Format, opts SplitOptions, res *splitter.Result) error {
	if format != exporter.FormatSQLite {
		return exporter.Export(ctx, output, res.Table, exporter.Options{
			Format: format,
			Sheet:  opts.Sheet,
			BOM:    opts.BOM,
		})
	}

	db, err := exporter.OpenSQLite(ctx, output)
	if err != nil {
		return err
	}
	defer db.Close()

	name := opts.TableName
	if name == "" {
		name = exporter.DefaultTableName
	}
	if err := db.WriteTable(ctx, name, res.Table, true); err != nil {
		return err
	}
	return db.RecordRun(ctx, exporter.RunRecord{
		RunID:       res.RunID,
		Input:       input,
		TableName:   name,
		RowsRead:    res.Report.RowsRead,
		UnifiedRows: res.Report.UnifiedRows,
		Groups:      res.Report.Groups,
		Orphans:     len(res.Report.Orphans),
		Unmatched:   len(res.Report.Unmatched),
	})
}

// streamFile runs the single-pass pipeline from a CSV input into a CSV
// output. A failed run removes the partial output.
func (s *SplitService) streamFile(ctx context.Context, input, output string, format exporter.Format,
	job *config.JobConfig, cfg splitter.Config, opts SplitOptions, result *FileResult) error {
	if format != exporter.FormatCSV || exporter.FormatFromPath(input) != exporter.FormatCSV {
		return apperrors.NewValidationError(ErrStreamUnsupported.Error())
	}
	if opts.SnapshotDir != "" {
		s.logger.WarnContext(ctx, "snapshots_skipped",
			slog.String("input", input),
			slog.String("reason", "streaming keeps no stage tables"))
	}

	in, err := os.Open(input)
	if err != nil {
		return apperrors.NewStorageError("failed to open input", err).WithContext("path", input)
	}
	defer in.Close()

	src, err := dataprocessing.NewCSVSource(in, job.LoadOptions())
	if err != nil {
		return err
	}

	w := exporter.NewCSVWriter("")
	w.BOM = opts.BOM
	sink, err := w.CreateStreamWriter(output)
	if err != nil {
		return err
	}

	result.RunID = infrastructure.GenerateTraceID()
	report, err := splitter.StreamUnified(ctx, src, cfg, sink)
	closeErr := sink.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(output)
		return err
	}
	result.Report = report
	return nil
}

// RunBatch splits every input into outDir with at most maxConcurrent files in
// flight. A failing file does not stop the others; the returned error joins
// every per-file error.
func (s *SplitService) RunBatch(ctx context.Context, inputs []string, outDir string, opts SplitOptions) ([]*FileResult, error) {
	format := opts.Format
	if format == "" {
		format = exporter.FormatCSV
	}
	if err := s.validator.ValidateOutputDirectory(outDir); err != nil {
		return nil, err
	}

	ctx = infrastructure.EnsureTraceID(ctx)
	s.logger.InfoContext(ctx, "batch_start",
		slog.Int("files", len(inputs)),
		slog.Int("max_concurrent", s.maxConcurrent),
		slog.String("out_dir", outDir))
	start := time.Now()

	results := make([]*FileResult, len(inputs))
	var g errgroup.Group
	g.SetLimit(s.maxConcurrent)
	for i, input := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = &FileResult{Input: input, Err: err, Error: err.Error()}
				return nil
			}
			o := opts
			o.Format = format
			o.Output = exporter.OutputPath(outDir, input, format)
			results[i], _ = s.SplitFile(ctx, input, o)
			return nil
		})
	}
	g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(r.Input), r.Err))
		}
	}

	s.logger.InfoContext(ctx, "batch_complete",
		slog.Int("files", len(inputs)),
		slog.Int("failed", len(errs)),
		slog.Duration("duration", time.Since(start)))
	return results, errors.Join(errs...)
}

// BatchExitCode is the process exit code of a batch: fatal when any file
// failed fatally, the data quality code when only policy failures occurred.
func BatchExitCode(results []*FileResult) int {
	code := apperrors.ExitOK
	for _, r := range results {
		switch apperrors.ExitCode(r.Err) {
		case apperrors.ExitFatal:
			return apperrors.ExitFatal
		case apperrors.ExitDataQuality:
			code = apperrors.ExitDataQuality
		}
	}
	return code
}

// Inspect loads input and profiles it. A nil job loads with default options.
func (s *SplitService) Inspect(ctx context.Context, input string, job *config.JobConfig, headRows int) (*dataprocessing.TableProfile, error) {
	if err := s.validator.ValidateInputFile(input); err != nil {
		return nil, err
	}
	var opts dataprocessing.LoadOptions
	if job != nil {
		opts = job.LoadOptions()
	}
	tbl, err := dataprocessing.LoadFile(input, opts)
	if err != nil {
		return nil, err
	}
	cfg := dataprocessing.DefaultProfilerConfig()
	if headRows > 0 {
		cfg.HeadRows = headRows
	}
	return dataprocessing.NewProfiler(s.logger, cfg).Profile(ctx, tbl)
}
