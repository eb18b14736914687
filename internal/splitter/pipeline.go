package splitter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stackedcsv/internal/table"
)

// TracerName is the instrumentation scope of the pipeline spans.
const TracerName = "stackedcsv.splitter"

// Pipeline runs the detect, classify, normalize and merge stages over one
// loaded table.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// NewPipeline validates cfg and returns a pipeline. A nil logger uses
// slog.Default.
func NewPipeline(cfg Config, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg.withDefaults(),
		logger: logger,
		tracer: otel.Tracer(TracerName),
	}, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run splits t with cfg using the default logger.
func Run(ctx context.Context, t *table.Table, cfg Config) (*Result, error) {
	p, err := NewPipeline(cfg, nil)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, t)
}

// Run executes every stage in order. A stage error stops the run and no table
// is returned. Orphans and unmatched groups are reported on the Result unless
// the configuration turns them into failures.
func (p *Pipeline) Run(ctx context.Context, t *table.Table) (*Result, error) {
	state := NewRunState(uuid.New().String())
	state.Start()

	ctx, span := p.tracer.Start(ctx, "splitter.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", state.ID),
			attribute.Int("rows.read", t.NumRows()),
		),
	)
	defer span.End()

	p.logRunStart(ctx, state.ID, t)

	result := &Result{RunID: state.ID, State: state}
	result.Report.RowsRead = t.NumRows()

	if p.alreadyUnified(t) {
		for _, s := range Stages {
			state.Stages[s].Skip("input already unified")
		}
		state.Phase = PhaseMerged
		state.Complete()
		result.Table = t
		result.Report.AlreadyUnified = true
		result.Report.UnifiedRows = t.NumRows()
		if t.NumRows() > 0 {
			result.Report.Groups = 1
		}
		p.logRunComplete(ctx, state, result.Report)
		return result, nil
	}

	var (
		detected   Detected
		classified Classified
		normalized Normalized
		merged     Merged
	)

	err := p.runStage(ctx, state, StageDetect, t.NumRows(), func() (int, error) {
		var err error
		detected, err = Detect(t, p.cfg)
		return detected.Rows.Len(), err
	})
	if err != nil {
		return p.fail(ctx, span, state, err)
	}

	err = p.runStage(ctx, state, StageClassify, detected.Rows.Len(), func() (int, error) {
		var err error
		classified, err = Classify(detected, p.cfg)
		if err != nil {
			return 0, err
		}
		if p.cfg.FailOnOrphans && len(classified.Orphans) > 0 {
			return 0, p.orphanFailure(t, classified.Orphans)
		}
		return classified.Keys.Len() + classified.Values.Len(), nil
	})
	if err != nil {
		return p.fail(ctx, span, state, err)
	}

	err = p.runStage(ctx, state, StageNormalize, classified.Keys.Len(), func() (int, error) {
		var err error
		normalized, err = Normalize(classified, p.cfg)
		return normalized.Keys.Len(), err
	})
	if err != nil {
		return p.fail(ctx, span, state, err)
	}

	err = p.runStage(ctx, state, StageMerge, normalized.Values.Len(), func() (int, error) {
		var err error
		merged, err = Merge(normalized, p.cfg)
		if err != nil {
			return 0, err
		}
		if p.cfg.FailOnUnmatched && len(merged.Unmatched) > 0 {
			unmatched := NewUnmatchedGroupError(merged.Unmatched[0])
			unmatched.Context["count"] = len(merged.Unmatched)
			return 0, unmatched
		}
		return merged.Table.NumRows(), nil
	})
	if err != nil {
		return p.fail(ctx, span, state, err)
	}

	state.Complete()

	result.Table = merged.Table
	result.Report = Report{
		RowsRead:          t.NumRows(),
		DroppedRows:       detected.DroppedRows,
		HeaderRepeats:     classified.HeaderRepeats,
		Orphans:           classified.Orphans,
		Groups:            detected.Groups,
		KeyRows:           classified.Keys.Len(),
		ValueRows:         classified.Values.Len(),
		DroppedKeyColumns: normalized.DroppedKeyColumns,
		Unmatched:         merged.Unmatched,
		UnifiedRows:       merged.Table.NumRows(),
	}
	if p.cfg.KeepSnapshots {
		result.Snapshots = []Snapshot{
			{Name: "detected", Table: withGroupColumn(detected.Rows)},
			{Name: "keys", Table: withGroupColumn(classified.Keys)},
			{Name: "values", Table: withGroupColumn(classified.Values)},
			{Name: "keys_normalized", Table: withGroupColumn(normalized.Keys)},
			{Name: "merged", Table: merged.Table},
		}
	}

	span.SetAttributes(
		attribute.Int("groups", result.Report.Groups),
		attribute.Int("rows.unified", result.Report.UnifiedRows),
		attribute.Int("rows.orphan", len(result.Report.Orphans)),
		attribute.Int("groups.unmatched", len(result.Report.Unmatched)),
	)
	p.logFindings(ctx, state.ID, result.Report)
	p.logRunComplete(ctx, state, result.Report)
	return result, nil
}

func (p *Pipeline) runStage(ctx context.Context, state *RunState, stage Stage, rowsIn int, fn func() (int, error)) error {
	if err := ctx.Err(); err != nil {
		cancelled := NewCancelledError(stage, err)
		state.Cancel(cancelled)
		return cancelled
	}

	ctx, span := p.tracer.Start(ctx, "splitter."+string(stage),
		trace.WithAttributes(
			attribute.String("run.id", state.ID),
			attribute.Int("rows.in", rowsIn),
		),
	)
	defer span.End()

	st := state.Stages[stage]
	st.Start(rowsIn)
	rowsOut, err := fn()
	if err != nil {
		st.Fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logStageError(ctx, state.ID, stage, err)
		return err
	}
	st.Complete(rowsOut)
	state.Advance(stage)
	span.SetAttributes(attribute.Int("rows.out", rowsOut))
	p.logStageComplete(ctx, state.ID, st)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, span trace.Span, state *RunState, err error) (*Result, error) {
	if state.Status != RunStatusCancelled {
		state.Fail(err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.logRunError(ctx, state.ID, err)
	return nil, err
}

func (p *Pipeline) orphanFailure(t *table.Table, orphans []int) *StageError {
	value, _ := t.Cell(orphans[0], p.cfg.Discriminator)
	err := NewOrphanRowError(orphans[0], value.String())
	err.Message = "rows appear before the first key row"
	err.Context = map[string]interface{}{"count": len(orphans)}
	return err
}

// alreadyUnified reports whether t looks like the output of a previous run:
// every semantic key column is present and no discriminator value carries the
// key marker. Only consulted when the configuration accepts unified input.
func (p *Pipeline) alreadyUnified(t *table.Table) bool {
	if !p.cfg.AcceptUnified || len(p.cfg.Rename) == 0 {
		return false
	}
	for _, name := range p.cfg.KeyColumns() {
		if !t.HasColumn(name) {
			return false
		}
	}
	col, err := t.Column(p.cfg.Discriminator)
	if err != nil {
		return false
	}
	for _, c := range col {
		if c.Valid && strings.Contains(c.Value, p.cfg.KeyMarker) {
			return false
		}
	}
	return true
}
