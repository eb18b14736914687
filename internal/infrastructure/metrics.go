package infrastructure

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"stackedcsv/internal/splitter"
)

// SplitMetrics are the instruments recorded for every split run.
type SplitMetrics struct {
	Runs            metric.Int64Counter
	RowsRead        metric.Int64Counter
	UnifiedRows     metric.Int64Counter
	OrphanRows      metric.Int64Counter
	UnmatchedGroups metric.Int64Counter
	StageFailures   metric.Int64Counter
	RunDuration     metric.Float64Histogram
	StageDuration   metric.Float64Histogram
	HeapAlloc       metric.Int64Gauge
}

// NewSplitMetrics creates the split instruments on meter.
func NewSplitMetrics(meter metric.Meter) (*SplitMetrics, error) {
	m := &SplitMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.Runs, "stackedcsv_runs_total", "Split runs by outcome"},
		{&m.RowsRead, "stackedcsv_rows_read_total", "Input rows read"},
		{&m.UnifiedRows, "stackedcsv_unified_rows_total", "Unified rows written"},
		{&m.OrphanRows, "stackedcsv_orphan_rows_total", "Rows found before the first key row"},
		{&m.UnmatchedGroups, "stackedcsv_unmatched_groups_total", "Groups with rows on one side only"},
		{&m.StageFailures, "stackedcsv_stage_failures_total", "Pipeline stage failures by stage and kind"},
	}
	for _, c := range counters {
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	m.RunDuration, err = meter.Float64Histogram(
		"stackedcsv_run_duration_seconds",
		metric.WithDescription("Duration of a split run, load and export included"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	m.StageDuration, err = meter.Float64Histogram(
		"stackedcsv_stage_duration_seconds",
		metric.WithDescription("Duration of one pipeline stage"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, err
	}

	m.HeapAlloc, err = meter.Int64Gauge(
		"stackedcsv_heap_alloc_bytes",
		metric.WithDescription("Heap bytes allocated after the last run"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRun records the outcome of one file. report may be partial when err
// is set. Runs are counted per input file name.
func (m *SplitMetrics) RecordRun(ctx context.Context, input string, report splitter.Report, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))

	m.Runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("input", filepath.Base(input)),
	))
	m.RunDuration.Record(ctx, duration.Seconds(), attrs)
	m.RowsRead.Add(ctx, int64(report.RowsRead))
	m.UnifiedRows.Add(ctx, int64(report.UnifiedRows))
	m.OrphanRows.Add(ctx, int64(len(report.Orphans)))
	m.UnmatchedGroups.Add(ctx, int64(len(report.Unmatched)))

	if err != nil {
		stage := "load"
		var se *splitter.StageError
		if errors.As(err, &se) && se.Stage != "" {
			stage = string(se.Stage)
		}
		m.StageFailures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("kind", string(splitter.KindOf(err))),
		))
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAlloc.Record(ctx, int64(ms.HeapAlloc))
}

// RecordStages records the duration of every stage of state that ran.
func (m *SplitMetrics) RecordStages(ctx context.Context, state *splitter.RunState) {
	if state == nil {
		return
	}
	for _, stage := range splitter.Stages {
		st, ok := state.Stages[stage]
		if !ok || st.StartTime == nil {
			continue
		}
		m.StageDuration.Record(ctx, st.Duration().Seconds(), metric.WithAttributes(
			attribute.String("stage", string(stage)),
			attribute.String("status", string(st.Status)),
		))
	}
}
