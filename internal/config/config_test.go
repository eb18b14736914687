package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	file := writeFile(t, dir, "custom.yaml", `
logging:
  level: warn
batch:
  max_concurrent: 2
  pattern: "*.xlsx"
paths:
  output_dir: from-file
`)
	t.Setenv("STACKEDCSV_PATHS_OUTPUT_DIR", "from-env")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level, "file overrides defaults")
	assert.Equal(t, 2, cfg.Batch.MaxConcurrent)
	assert.Equal(t, "*.xlsx", cfg.Batch.Pattern)
	assert.Equal(t, "from-env", cfg.Paths.OutputDir, "env overrides file")
	assert.Equal(t, "json", cfg.Logging.Format, "untouched fields keep defaults")
}

func TestLoadSearchesConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0755))
	writeFile(t, filepath.Join(dir, "configs"), "stackedcsv.yaml", "batch:\n  max_concurrent: 7\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Batch.MaxConcurrent)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	writeFile(t, dir, ".env", "STACKEDCSV_LOGGING_LEVEL=debug\n")
	t.Cleanup(func() { os.Unsetenv("STACKEDCSV_LOGGING_LEVEL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "bad level", yaml: "logging:\n  level: loud\n"},
		{name: "bad format", yaml: "logging:\n  format: xml\n"},
		{name: "bad output", yaml: "logging:\n  output: printer\n"},
		{name: "file output without path", yaml: "logging:\n  output: file\n  file_path: \"\"\n"},
		{name: "bad trace exporter", yaml: "telemetry:\n  trace_exporter: jaeger\n"},
		{name: "zero concurrency", env: map[string]string{"STACKEDCSV_BATCH_MAX_CONCURRENT": "0"}},
		{name: "bad pattern", yaml: "batch:\n  pattern: \"[\"\n"},
		{name: "no output dir", yaml: "paths:\n  output_dir: \"\"\n"},
		{name: "malformed yaml", yaml: "logging: [\n"},
		{name: "env type error", env: map[string]string{"STACKEDCSV_BATCH_MAX_CONCURRENT": "many"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			t.Chdir(dir)
			file := ""
			if tt.yaml != "" {
				file = writeFile(t, dir, "c.yaml", tt.yaml)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(file)
			assert.Error(t, err)
		})
	}
}

func TestValidateNormalizesLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "DEBUG"
	require.NoError(t, cfg.validate())
	assert.Equal(t, "debug", cfg.Logging.Level)
}
