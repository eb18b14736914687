package splitter

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRunScenario(t *testing.T) {
	res, err := Run(context.Background(), scenarioTable(t), scenarioConfig())
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"Al", "1", "2", "x", "3", "4"},
		{"Bo", "5", "6", "y", "7", "8"},
	}, res.Table.Records())
	assert.Equal(t, 2, res.Report.Groups)
	assert.Empty(t, res.Report.Orphans)
	assert.Empty(t, res.Report.Unmatched)
	assert.Equal(t, []int{2}, res.Report.HeaderRepeats)
	assert.Equal(t, 5, res.Report.RowsRead)
	assert.Equal(t, 2, res.Report.UnifiedRows)
	assert.True(t, res.Report.Clean())

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, RunStatusCompleted, res.State.Status)
	assert.Equal(t, PhaseMerged, res.State.Phase)
	for _, s := range Stages {
		assert.Equal(t, StageStatusCompleted, res.State.Stages[s].Status, s)
	}
	assert.Nil(t, res.Snapshots)
}

func TestRunGroupCountMatchesMarkers(t *testing.T) {
	tbl := mustTable(t, []string{"Row Type", "A"}, [][]string{
		{"first name: A", "1"}, {"x", "1"},
		{"Row Type", "A"},
		{"first name: B", "2"}, {"x", "2"}, {"y", "2"},
		{"Row Type", "A"},
		{"first name: C", "3"}, {"x", "3"},
	})
	res, err := Run(context.Background(), tbl, scenarioConfig())
	require.NoError(t, err)

	col, err := res.Table.Column("First Name")
	require.NoError(t, err)
	distinct := map[string]bool{}
	for _, c := range col {
		distinct[c.Value] = true
	}
	assert.Len(t, distinct, 3)
	assert.Equal(t, 3, res.Report.Groups)
	assert.Equal(t, 4, res.Table.NumRows())
}

func TestRunIdempotent(t *testing.T) {
	cfg := scenarioConfig()
	cfg.AcceptUnified = true
	first, err := Run(context.Background(), scenarioTable(t), cfg)
	require.NoError(t, err)

	second, err := Run(context.Background(), first.Table, cfg)
	require.NoError(t, err)

	assert.True(t, second.Report.AlreadyUnified)
	assert.Equal(t, 1, second.Report.Groups)
	assert.True(t, first.Table.Equal(second.Table))
	assert.Equal(t, StageStatusSkipped, second.State.Stages[StageDetect].Status)
}

func TestRunZeroMarkers(t *testing.T) {
	tbl := mustTable(t, []string{"Row Type", "A"}, [][]string{
		{"a", "1"}, {"b", "2"}, {"c", "3"},
	})
	res, err := Run(context.Background(), tbl, scenarioConfig())
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, res.Report.Orphans)
	assert.Equal(t, 0, res.Report.Groups)
	assert.Equal(t, 0, res.Table.NumRows())
	assert.False(t, res.Report.Clean())
}

func TestRunZeroMarkersWithKeyColumnNames(t *testing.T) {
	tbl := mustTable(t, []string{"Row Type", "First Name", "A"}, [][]string{
		{"a", "q", "1"}, {"b", "r", "2"},
	})

	res, err := Run(context.Background(), tbl, scenarioConfig())
	require.NoError(t, err)
	assert.False(t, res.Report.AlreadyUnified)
	assert.Equal(t, []int{0, 1}, res.Report.Orphans)
	assert.Equal(t, 0, res.Report.Groups)
	assert.Equal(t, 0, res.Table.NumRows())
	assert.False(t, res.Report.Clean())

	cfg := scenarioConfig()
	cfg.FailOnOrphans = true
	_, err = Run(context.Background(), tbl, cfg)
	assert.ErrorIs(t, err, ErrOrphanRow)
}

func TestRunSingleTable(t *testing.T) {
	tbl := mustTable(t, []string{"Row Type", "A"}, [][]string{
		{"first name: Al", "1"}, {"x", "2"}, {"y", "3"},
	})
	res, err := Run(context.Background(), tbl, scenarioConfig())
	require.NoError(t, err)
	assert.Empty(t, res.Report.HeaderRepeats)
	assert.Empty(t, res.Report.Unmatched)
	assert.Equal(t, 2, res.Report.ValueRows)
	assert.Equal(t, 2, res.Table.NumRows())
}

func TestRunPolicies(t *testing.T) {
	orphaned := mustTable(t, []string{"Row Type", "A"}, [][]string{
		{"stray", "0"}, {"first name: Al", "1"}, {"x", "2"},
	})

	t.Run("fail on orphans", func(t *testing.T) {
		cfg := scenarioConfig()
		cfg.FailOnOrphans = true
		res, err := Run(context.Background(), orphaned, cfg)
		require.Error(t, err)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrOrphanRow)
		assert.Equal(t, KindOrphanRow, KindOf(err))

		var se *StageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 0, se.Row)
		assert.Equal(t, "stray", se.Value)
	})

	t.Run("fail on unmatched", func(t *testing.T) {
		cfg := scenarioConfig()
		cfg.FailOnUnmatched = true
		_, err := Run(context.Background(), keyOnlyTable(t), cfg)
		assert.ErrorIs(t, err, ErrUnmatchedGroup)
	})

	t.Run("reported by default", func(t *testing.T) {
		res, err := Run(context.Background(), orphaned, scenarioConfig())
		require.NoError(t, err)
		assert.Equal(t, []int{0}, res.Report.Orphans)
		issues := res.Report.Issues()
		assert.True(t, issues.HasErrors())
		assert.Len(t, issues.ByKind(KindOrphanRow), 1)
	})
}

func TestRunStageFailureHaltsRun(t *testing.T) {
	tbl := mustTable(t, []string{"Row Type", "A"}, [][]string{
		{"first name Al", "1"}, {"x", "2"},
	})
	p, err := NewPipeline(scenarioConfig(), slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)

	res, err := p.Run(context.Background(), tbl)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrFormatMismatch)
}

func TestRunMissingDiscriminator(t *testing.T) {
	tbl := mustTable(t, []string{"Kind"}, [][]string{{"x"}})
	_, err := Run(context.Background(), tbl, scenarioConfig())
	assert.ErrorIs(t, err, ErrMissingDiscriminator)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, scenarioTable(t), scenarioConfig())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunSnapshots(t *testing.T) {
	cfg := scenarioConfig()
	cfg.KeepSnapshots = true
	res, err := Run(context.Background(), scenarioTable(t), cfg)
	require.NoError(t, err)

	names := make([]string, len(res.Snapshots))
	for i, s := range res.Snapshots {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"detected", "keys", "values", "keys_normalized", "merged"}, names)

	detected := res.Snapshots[0].Table
	assert.Equal(t, []string{"Row Type", "A", "B", GroupColumn}, detected.Columns())
	ids, err := detected.Column(GroupColumn)
	require.NoError(t, err)
	assert.Equal(t, "2", ids[4].Value)
	assert.True(t, res.Snapshots[4].Table.Equal(res.Table))
}

func TestRunSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		tp.Shutdown(context.Background())
	})

	p, err := NewPipeline(scenarioConfig(), nil)
	require.NoError(t, err)
	_, err = p.Run(context.Background(), scenarioTable(t))
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, len(Stages)+1)
	names := make([]string, 0, len(spans))
	for _, s := range spans {
		assert.Equal(t, TracerName, s.InstrumentationScope().Name)
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "splitter.run")
	assert.Contains(t, names, "splitter.detect")
}

func TestRunLogsFindings(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p, err := NewPipeline(scenarioConfig(), logger)
	require.NoError(t, err)

	_, err = p.Run(context.Background(), keyOnlyTable(t))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"split_start"`)
	assert.Contains(t, out, `"msg":"unmatched_groups"`)
	assert.Contains(t, out, `"msg":"split_complete"`)
	assert.Equal(t, 4, strings.Count(out, `"msg":"stage_complete"`))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing discriminator", func(c *Config) { c.Discriminator = "" }},
		{"missing marker", func(c *Config) { c.KeyMarker = "" }},
		{"missing header repeat", func(c *Config) { c.HeaderRepeat = "" }},
		{"header repeat contains marker", func(c *Config) { c.HeaderRepeat = "first name" }},
		{"bad join", func(c *Config) { c.Join = "outer" }},
		{"duplicate rename target", func(c *Config) { c.Rename["A"] = "First Name" }},
		{"empty rename target", func(c *Config) { c.Rename["A"] = " " }},
		{"duplicate prefix field", func(c *Config) {
			c.Prefixes = append(c.Prefixes, PrefixRule{Field: "First Name", Prefix: "x"})
		}},
		{"empty prefix", func(c *Config) { c.Prefixes[0].Prefix = "" }},
		{"drop and rename", func(c *Config) { c.DropColumns = []string{"Row Type"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := scenarioConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)

			_, err = Run(context.Background(), scenarioTable(t), cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	assert.NoError(t, scenarioConfig().Validate())
}
