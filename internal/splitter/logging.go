package splitter

import (
	"context"
	"log/slog"

	"stackedcsv/internal/table"
)

// maxLoggedRows caps the row lists attached to warning records.
const maxLoggedRows = 20

func (p *Pipeline) logRunStart(ctx context.Context, runID string, t *table.Table) {
	p.logger.InfoContext(ctx, "split_start",
		slog.String("run_id", runID),
		slog.Int("rows", t.NumRows()),
		slog.Int("columns", t.NumColumns()),
		slog.String("discriminator", p.cfg.Discriminator),
		slog.String("join", string(p.cfg.Join)))
}

func (p *Pipeline) logRunComplete(ctx context.Context, state *RunState, r Report) {
	p.logger.InfoContext(ctx, "split_complete",
		slog.String("run_id", state.ID),
		slog.String("phase", string(state.Phase)),
		slog.Int("groups", r.Groups),
		slog.Int("unified_rows", r.UnifiedRows),
		slog.Bool("already_unified", r.AlreadyUnified),
		slog.Duration("duration", state.Duration()))
}

func (p *Pipeline) logRunError(ctx context.Context, runID string, err error) {
	p.logger.ErrorContext(ctx, "split_error",
		slog.String("run_id", runID),
		slog.String("kind", string(KindOf(err))),
		slog.String("error", err.Error()))
}

func (p *Pipeline) logStageComplete(ctx context.Context, runID string, st *StageState) {
	p.logger.DebugContext(ctx, "stage_complete",
		slog.String("run_id", runID),
		slog.String("stage", string(st.Stage)),
		slog.Int("rows_in", st.RowsIn),
		slog.Int("rows_out", st.RowsOut),
		slog.Duration("duration", st.Duration()))
}

func (p *Pipeline) logStageError(ctx context.Context, runID string, stage Stage, err error) {
	p.logger.ErrorContext(ctx, "stage_error",
		slog.String("run_id", runID),
		slog.String("stage", string(stage)),
		slog.String("error", err.Error()))
}

func (p *Pipeline) logFindings(ctx context.Context, runID string, r Report) {
	if len(r.DroppedRows) > 0 {
		p.logger.WarnContext(ctx, "rows_without_discriminator",
			slog.String("run_id", runID),
			slog.Int("count", len(r.DroppedRows)),
			slog.Any("rows", head(r.DroppedRows)))
	}
	if len(r.Orphans) > 0 {
		p.logger.WarnContext(ctx, "orphan_rows",
			slog.String("run_id", runID),
			slog.Int("count", len(r.Orphans)),
			slog.Any("rows", head(r.Orphans)))
	}
	if len(r.Unmatched) > 0 {
		p.logger.WarnContext(ctx, "unmatched_groups",
			slog.String("run_id", runID),
			slog.Int("count", len(r.Unmatched)),
			slog.Any("groups", r.Unmatched))
	}
}

func head(rows []int) []int {
	if len(rows) > maxLoggedRows {
		return rows[:maxLoggedRows]
	}
	return rows
}
