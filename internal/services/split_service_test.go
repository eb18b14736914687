package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"stackedcsv/internal/config"
	apperrors "stackedcsv/internal/errors"
	"stackedcsv/internal/exporter"
	"stackedcsv/internal/infrastructure"
	"stackedcsv/internal/shared/testutil"
	"stackedcsv/internal/splitter"
)

const stackedCSV = testutil.StackedCSV

var unifiedRecords = testutil.UnifiedRecords

func testJob() *config.JobConfig {
	return &config.JobConfig{
		Discriminator: "Row Type",
		KeyMarker:     "first name",
		Rename:        map[string]string{"Row Type": "First Name"},
		Prefixes:      []config.PrefixConfig{{Field: "First Name", Prefix: "first name: "}},
		Join:          string(splitter.JoinInner),
	}
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	return testutil.WriteFile(t, filepath.Join(dir, name), content)
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func newTestService(t *testing.T, logs *bytes.Buffer) *SplitService {
	t.Helper()
	logger, _, err := infrastructure.NewLogger(config.LoggingConfig{Level: "debug", Format: "json", Output: "console"}, logs)
	require.NoError(t, err)
	return NewSplitService(logger, nil, 2)
}

func TestSplitFileCSV(t *testing.T) {
	var logs bytes.Buffer
	svc := newTestService(t, &logs)
	dir := t.TempDir()
	input := writeInput(t, dir, "runs.csv", stackedCSV)

	res, err := svc.SplitFile(context.Background(), input, SplitOptions{Job: testJob()})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "runs_unified.csv"), res.Output)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, res.Report.Groups)
	assert.Equal(t, 2, res.Report.UnifiedRows)
	assert.Empty(t, res.Error)
	assert.Equal(t, unifiedRecords, readCSV(t, res.Output))
	assert.Contains(t, logs.String(), `"msg":"file_split"`)
	assert.Contains(t, logs.String(), `"trace_id"`)
}

func TestSplitFileStreamMatchesTable(t *testing.T) {
	var logs bytes.Buffer
	svc := newTestService(t, &logs)
	dir := t.TempDir()
	input := writeInput(t, dir, "runs.csv", stackedCSV)

	tableOut := filepath.Join(dir, "out", "table.csv")
	streamOut := filepath.Join(dir, "out", "stream.csv")

	_, err := svc.SplitFile(context.Background(), input, SplitOptions{Job: testJob(), Output: tableOut})
	require.NoError(t, err)
	res, err := svc.SplitFile(context.Background(), input, SplitOptions{Job: testJob(), Output: streamOut, Stream: true})
	require.NoError(t, err)

	assert.Equal(t, readCSV(t, tableOut), readCSV(t, streamOut))
	assert.Equal(t, 2, res.Report.UnifiedRows)
	assert.NotEmpty(t, res.RunID)
}

func TestSplitFileStreamRejectsXLSX(t *testing.T) {
	var logs bytes.Buffer
	svc := newTestService(t, &logs)
	dir := t.TempDir()
	input := writeInput(t, dir, "runs.csv", stackedCSV)

	_, err := svc.SplitFile(context.Background(), input, SplitOptions{
		Job:    testJob(),
		Output: filepath.Join(dir, "runs.xlsx"),
		Stream: true,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
	assert.NoFileExists(t, filepath.Join(dir, "runs.xlsx"))
}

func TestSplitFileSQLite(t *testing.T) {
	var logs bytes.Buffer
	svc := newTestService(t, &logs)
	dir := t.TempDir()
	input := writeInput(t, dir, "runs.csv", stackedCSV)
	output := filepath.Join(dir, "runs.db")

	res, err := svc.SplitFile(context.Background(), input, SplitOptions{Job: testJob(), Output: output, TableName: "results"})
	require.NoError(t, err)

	ctx := context.Background()
	db, err := exporter.OpenSQLite(ctx, output)
	require.NoError(t, err)
	defer db.Close()

	tbl, err := db.ReadTable(ctx, "results")
	require.NoError(t, err)
	assert.Equal(t, unifiedRecords[1:], tbl.Records())

	runs, err := db.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].RunID)
	assert.Equal(t, "results", runs[0].TableName)
	assert.Equal(t, 2, runs[0].UnifiedRows)
}

func TestSplitFileSnapshots(t *testing.T) {
	var logs bytes.Buffer
	svc := newTestService(t, &logs)
	dir := t.TempDir()
	input := writeInput(t, dir, "runs.csv", stackedCSV)
	snapDir := filepath.Join(dir, "snapshots")

	res, err := svc.SplitFile(context.Background(), input, SplitOptions{Job: testJob(), SnapshotDir: snapDir})
	require.NoError(t, err)

	require.NotEmpty(t, res.Snapshots)
	for _, p := range res.Snapshots {
		assert.FileExists(t, p)
		assert.True(t, strings.HasPrefix(filepath.Base(p), "runs_"), p)
	}
	assert.Contains(t, res.Snapshots, filepath.Join(snapDir, "runs_merged.csv"))
}

func TestSplitFileFailures(t *testing.T) {
	dir := t.TempDir()
	orphaned := writeInput(t, dir, "orphans.csv", testutil.OrphanCSV)
	input := writeInput(t, dir, "runs.csv", stackedCSV)

	strict := testJob()
	strict.FailOnOrphans = true

	badPrefix := testJob()
	badPrefix.Prefixes[0].Prefix = "name: "

	tests := []struct {
		name     string
		input    string
		opts     SplitOptions
		wantExit int
	}{
		{name: "missing input", input: filepath.Join(dir, "absent.csv"), opts: SplitOptions{Job: testJob()}, wantExit: apperrors.ExitFatal},
		{name: "output overwrites input", input: input, opts: SplitOptions{Job: testJob(), Output: input}, wantExit: apperrors.ExitFatal},
		{name: "strict orphans", input: orphaned, opts: SplitOptions{Job: strict}, wantExit: apperrors.ExitDataQuality},
		{name: "prefix mismatch", input: input, opts: SplitOptions{Job: badPrefix, Output: filepath.Join(dir, "p.csv")}, wantExit: apperrors.ExitFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := testutil.NewTestLogger(t)
			svc := NewSplitService(logger, nil, 1)

			res, err := svc.SplitFile(context.Background(), tt.input, tt.opts)
			require.Error(t, err)
			require.NotNil(t, res)
			assert.Equal(t, err, res.Err)
			assert.NotEmpty(t, res.Error)
			assert.Equal(t, tt.wantExit, apperrors.ExitCode(err))

			rec := testutil.AssertLogged(t, logs, slog.LevelError, "file_split_failed")
			assert.Equal(t, int64(tt.wantExit), rec.Attrs["exit_code"])
			assert.Equal(t, "split_service", rec.Attrs["component"])
		})
	}
}

func TestRunBatch(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	svc := NewSplitService(logger, nil, 2)
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")

	inputs := []string{
		writeInput(t, in, "a.csv", stackedCSV),
		writeInput(t, in, "b.csv", stackedCSV),
		writeInput(t, in, "bad.csv", "Other,A\n1,2\n"),
	}

	results, err := svc.RunBatch(context.Background(), inputs, out, SplitOptions{Job: testJob()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.csv")
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, inputs[i], r.Input)
	}
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Error(t, results[2].Err)
	assert.Equal(t, unifiedRecords, readCSV(t, filepath.Join(out, "a_unified.csv")))
	assert.FileExists(t, filepath.Join(out, "b_unified.csv"))

	assert.Equal(t, apperrors.ExitFatal, BatchExitCode(results))
	assert.Equal(t, 2, logs.Count("file_split"))
	rec := testutil.AssertLogged(t, logs, slog.LevelInfo, "batch_complete")
	assert.Equal(t, int64(1), rec.Attrs["failed"])
}

func TestRunBatchCanceled(t *testing.T) {
	var logs bytes.Buffer
	svc := newTestService(t, &logs)
	in := t.TempDir()
	inputs := []string{writeInput(t, in, "a.csv", stackedCSV)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := svc.RunBatch(ctx, inputs, t.TempDir(), SplitOptions{Job: testJob()})
	require.Error(t, err)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestBatchExitCode(t *testing.T) {
	quality := apperrors.NewDataQualityError("orphans", nil)

	assert.Equal(t, apperrors.ExitOK, BatchExitCode([]*FileResult{{}, {}}))
	assert.Equal(t, apperrors.ExitDataQuality, BatchExitCode([]*FileResult{{}, {Err: quality}}))
	assert.Equal(t, apperrors.ExitFatal, BatchExitCode([]*FileResult{{Err: quality}, {Err: errors.New("boom")}}))
}

func TestSplitFileRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(ctx)

	m, err := infrastructure.NewSplitMetrics(mp.Meter("test"))
	require.NoError(t, err)

	logger, _ := testutil.NewTestLogger(t)
	svc := NewSplitService(logger, m, 1)

	input := writeInput(t, t.TempDir(), "runs.csv", stackedCSV)
	_, err = svc.SplitFile(ctx, input, SplitOptions{Job: testJob()})
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var unified int64
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			if metric.Name != "stackedcsv_unified_rows_total" {
				continue
			}
			for _, dp := range metric.Data.(metricdata.Sum[int64]).DataPoints {
				unified += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), unified)
}

func TestInspect(t *testing.T) {
	var logs bytes.Buffer
	svc := newTestService(t, &logs)
	input := writeInput(t, t.TempDir(), "runs.csv", stackedCSV)

	prof, err := svc.Inspect(context.Background(), input, testJob(), 2)
	require.NoError(t, err)
	assert.Equal(t, 5, prof.Rows)
	assert.Len(t, prof.Columns, 3)
	assert.Len(t, prof.Head, 2)

	_, err = svc.Inspect(context.Background(), filepath.Join(t.TempDir(), "absent.csv"), nil, 0)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestSplitFileXLSXInput(t *testing.T) {
	var logs bytes.Buffer
	svc := newTestService(t, &logs)
	dir := t.TempDir()
	input := testutil.WriteXLSX(t, filepath.Join(dir, "runs.xlsx"), "Log", stackedCSV, 2)

	res, err := svc.SplitFile(context.Background(), input, SplitOptions{Job: testJob()})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "runs_unified.csv"), res.Output)
	assert.Equal(t, unifiedRecords, readCSV(t, res.Output))
}
