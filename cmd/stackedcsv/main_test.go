package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackedcsv/internal/config"
	apperrors "stackedcsv/internal/errors"
	"stackedcsv/internal/services"
	"stackedcsv/internal/shared/testutil"
)

const (
	stackedCSV = testutil.StackedCSV
	orphanCSV  = testutil.OrphanCSV
	jobYAML    = testutil.StackedJobYAML
)

// workspace moves the test into an empty directory holding the job file.
func workspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "job.yaml"), []byte(jobYAML), 0644))
	return dir
}

func writeFile(t *testing.T, path, content string) string {
	return testutil.WriteFile(t, path, content)
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestInitJob(t *testing.T) {
	dir := workspace(t)

	code, out, _ := execute(t, "init-job")
	require.Equal(t, apperrors.ExitOK, code)
	job, err := config.ParseJob([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, config.DefaultJob(), job)

	path := filepath.Join(dir, "jobs", "default.yaml")
	code, out, _ = execute(t, "init-job", "-o", path)
	require.Equal(t, apperrors.ExitOK, code)
	assert.Contains(t, out, "wrote")
	_, err = config.LoadJob(path)
	assert.NoError(t, err)
}

func TestSplit(t *testing.T) {
	dir := workspace(t)
	input := writeFile(t, filepath.Join(dir, "runs.csv"), stackedCSV)

	code, out, stderr := execute(t, "split", input, "--job", "job.yaml")
	require.Equal(t, apperrors.ExitOK, code, stderr)
	assert.Contains(t, out, "2 groups, 2 unified rows")
	assert.FileExists(t, filepath.Join(dir, "runs_unified.csv"))
	assert.Contains(t, stderr, "file_split")
}

func TestSplitJSON(t *testing.T) {
	dir := workspace(t)
	input := writeFile(t, filepath.Join(dir, "runs.csv"), stackedCSV)
	output := filepath.Join(dir, "out", "runs.xlsx")

	code, out, stderr := execute(t, "split", input, "--job", "job.yaml", "-o", output, "--json")
	require.Equal(t, apperrors.ExitOK, code, stderr)

	var res services.FileResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, output, res.Output)
	assert.Equal(t, 2, res.Report.UnifiedRows)
	assert.NotEmpty(t, res.RunID)
	assert.FileExists(t, output)
}

func TestSplitExitCodes(t *testing.T) {
	dir := workspace(t)
	input := writeFile(t, filepath.Join(dir, "runs.csv"), stackedCSV)
	orphans := writeFile(t, filepath.Join(dir, "orphans.csv"), orphanCSV)
	writeFile(t, filepath.Join(dir, "strict.yaml"), jobYAML+"fail_on_orphans: true\n")
	writeFile(t, filepath.Join(dir, "broken.yaml"), "discriminator: Row Type\n")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"orphans are warnings", []string{"split", orphans, "--job", "job.yaml"}, apperrors.ExitOK},
		{"strict orphans", []string{"split", orphans, "--job", "strict.yaml", "-o", "strict.csv"}, apperrors.ExitDataQuality},
		{"missing input", []string{"split", filepath.Join(dir, "absent.csv")}, apperrors.ExitFatal},
		{"invalid job", []string{"split", input, "--job", "broken.yaml"}, apperrors.ExitFatal},
		{"unknown format", []string{"split", input, "--job", "job.yaml", "--format", "parquet"}, apperrors.ExitFatal},
		{"stream to xlsx", []string{"split", input, "--job", "job.yaml", "--stream", "-o", "runs.xlsx"}, apperrors.ExitFatal},
		{"no input", []string{"split"}, apperrors.ExitFatal},
		{"unknown command", []string{"merge"}, apperrors.ExitFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := execute(t, tt.args...)
			assert.Equal(t, tt.want, code, stderr)
		})
	}
}

func TestSplitOrphanWarning(t *testing.T) {
	dir := workspace(t)
	input := writeFile(t, filepath.Join(dir, "orphans.csv"), orphanCSV)

	code, out, _ := execute(t, "split", input, "--job", "job.yaml")
	require.Equal(t, apperrors.ExitOK, code)
	assert.Contains(t, out, "warning: 1 orphan rows")
}

func TestBatch(t *testing.T) {
	dir := workspace(t)
	in := filepath.Join(dir, "in")
	writeFile(t, filepath.Join(in, "a.csv"), stackedCSV)
	writeFile(t, filepath.Join(in, "b.csv"), stackedCSV)
	writeFile(t, filepath.Join(in, "notes.md"), "ignored")
	out := filepath.Join(dir, "out")
	metrics := filepath.Join(dir, "metrics", "stackedcsv.prom")

	code, stdout, stderr := execute(t, "batch", in, "--job", "job.yaml", "--out-dir", out, "--metrics-file", metrics)
	require.Equal(t, apperrors.ExitOK, code, stderr)
	assert.Contains(t, stdout, "2 files, 0 failed")
	assert.FileExists(t, filepath.Join(out, "a_unified.csv"))
	assert.FileExists(t, filepath.Join(out, "b_unified.csv"))

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "stackedcsv_runs_total")
}

func TestBatchExitCodes(t *testing.T) {
	dir := workspace(t)
	writeFile(t, filepath.Join(dir, "strict.yaml"), jobYAML+"fail_on_orphans: true\n")

	quality := filepath.Join(dir, "quality")
	writeFile(t, filepath.Join(quality, "a.csv"), stackedCSV)
	writeFile(t, filepath.Join(quality, "b.csv"), orphanCSV)

	fatal := filepath.Join(dir, "fatal")
	writeFile(t, filepath.Join(fatal, "a.csv"), orphanCSV)
	writeFile(t, filepath.Join(fatal, "b.csv"), "Other,A\n1,2\n")

	code, stdout, _ := execute(t, "batch", quality, "--job", "strict.yaml", "--out-dir", filepath.Join(dir, "out1"))
	assert.Equal(t, apperrors.ExitDataQuality, code)
	assert.Contains(t, stdout, "2 files, 1 failed")

	code, _, _ = execute(t, "batch", fatal, "--job", "strict.yaml", "--out-dir", filepath.Join(dir, "out2"), "--max-concurrent", "1")
	assert.Equal(t, apperrors.ExitFatal, code)

	code, stdout, _ = execute(t, "batch", quality, "--pattern", "*.txt", "--out-dir", filepath.Join(dir, "out3"))
	assert.Equal(t, apperrors.ExitOK, code)
	assert.Contains(t, stdout, "no files")
}

func TestInspect(t *testing.T) {
	dir := workspace(t)
	input := writeFile(t, filepath.Join(dir, "runs.csv"), stackedCSV)

	code, out, stderr := execute(t, "inspect", input, "--rows", "2")
	require.Equal(t, apperrors.ExitOK, code, stderr)
	assert.Contains(t, out, "rows: 5, columns: 3")

	code, out, _ = execute(t, "inspect", input, "--json")
	require.Equal(t, apperrors.ExitOK, code)
	var prof map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &prof))
	assert.Equal(t, float64(5), prof["rows"])
}

func TestConfigFlag(t *testing.T) {
	dir := workspace(t)
	input := writeFile(t, filepath.Join(dir, "runs.csv"), stackedCSV)
	cfgPath := writeFile(t, filepath.Join(dir, "cfg.yaml"), "logging:\n  level: error\n")

	code, _, stderr := execute(t, "split", input, "--job", "job.yaml", "--config", cfgPath)
	require.Equal(t, apperrors.ExitOK, code)
	assert.NotContains(t, stderr, "file_split")

	code, _, stderr = execute(t, "split", input, "--job", "job.yaml", "--config", cfgPath, "--log-level", "debug", "-o", "again.csv")
	require.Equal(t, apperrors.ExitOK, code)
	assert.Contains(t, stderr, "file_split")

	code, _, _ = execute(t, "split", input, "--config", filepath.Join(dir, "absent.yaml"))
	assert.Equal(t, apperrors.ExitFatal, code)
}
