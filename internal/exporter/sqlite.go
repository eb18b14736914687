package exporter

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	apperrors "stackedcsv/internal/errors"
	"stackedcsv/internal/table"
)

// DefaultTableName is the table name used when none is configured.
const DefaultTableName = "unified"

const runsSchema = `
CREATE TABLE IF NOT EXISTS stackedcsv_runs (
	run_id        TEXT PRIMARY KEY,
	input         TEXT NOT NULL,
	table_name    TEXT NOT NULL,
	rows_read     INTEGER NOT NULL,
	unified_rows  INTEGER NOT NULL,
	group_count   INTEGER NOT NULL,
	orphans       INTEGER NOT NULL,
	unmatched     INTEGER NOT NULL,
	created_at    TIMESTAMP NOT NULL
)`

// RunRecord is the row kept in stackedcsv_runs for every table written.
type RunRecord struct {
	RunID       string    `db:"run_id"`
	Input       string    `db:"input"`
	TableName   string    `db:"table_name"`
	RowsRead    int       `db:"rows_read"`
	UnifiedRows int       `db:"unified_rows"`
	Groups      int       `db:"group_count"`
	Orphans     int       `db:"orphans"`
	Unmatched   int       `db:"unmatched"`
	CreatedAt   time.Time `db:"created_at"`
}

// SQLiteWriter stores tables in a SQLite database. Every column is TEXT and
// missing cells are NULL.
type SQLiteWriter struct {
	db *sqlx.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.NewStorageError("failed to create directory", err)
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)"
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open database", err).WithContext("path", path)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, runsSchema); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("failed to create runs table", err)
	}
	return &SQLiteWriter{db: db}, nil
}

// Close closes the database.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}

// WriteTable stores t as table name in one transaction. With replace an
// existing table is dropped first; otherwise rows are appended and the columns
// must already match.
func (w *SQLiteWriter) WriteTable(ctx context.Context, name string, t *table.Table, replace bool) error {
	if name == "" {
		name = DefaultTableName
	}
	columns := t.Columns()
	if len(columns) == 0 {
		return apperrors.NewValidationError("cannot store a table without columns")
	}

	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	ident := quoteIdent(name)
	if replace {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+ident); err != nil {
			return apperrors.NewStorageError("failed to drop table", err).WithContext("table", name)
		}
	}

	quoted := make([]string, len(columns))
	defs := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
		defs[i] = quoted[i] + " TEXT"
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", ident, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return apperrors.NewStorageError("failed to create table", err).WithContext("table", name)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ident, strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))
	stmt, err := tx.PreparexContext(ctx, insert)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare insert", err).WithContext("table", name)
	}
	defer stmt.Close()

	args := make([]interface{}, len(columns))
	for i := 0; i < t.NumRows(); i++ {
		for j, c := range t.Row(i) {
			args[j] = nil
			if !c.IsMissing() {
				args[j] = c.Value
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("failed to insert row %d", i), err).
				WithContext("table", name)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("failed to commit", err)
	}
	return nil
}

// ReadTable loads a stored table in insertion order. NULL reads as missing.
func (w *SQLiteWriter) ReadTable(ctx context.Context, name string) (*table.Table, error) {
	rows, err := w.db.QueryxContext(ctx, "SELECT * FROM "+quoteIdent(name)+" ORDER BY rowid")
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query table", err).WithContext("table", name)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read columns", err)
	}

	var cells [][]table.Cell
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, apperrors.NewStorageError("failed to scan row", err)
		}
		row := make([]table.Cell, len(columns))
		for i, v := range values {
			if v.Valid {
				row[i] = table.String(v.String)
			}
		}
		cells = append(cells, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to read rows", err)
	}

	t, err := table.New(columns, cells)
	if err != nil {
		return nil, apperrors.NewParsingError("stored table is malformed", err)
	}
	return t, nil
}

// RecordRun appends a run to stackedcsv_runs.
func (w *SQLiteWriter) RecordRun(ctx context.Context, r RunRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := w.db.NamedExecContext(ctx, `
		INSERT INTO stackedcsv_runs
			(run_id, input, table_name, rows_read, unified_rows, group_count, orphans, unmatched, created_at)
		VALUES
			(:run_id, :input, :table_name, :rows_read, :unified_rows, :group_count, :orphans, :unmatched, :created_at)
	`, r)
	if err != nil {
		return apperrors.NewStorageError("failed to record run", err).WithContext("run_id", r.RunID)
	}
	return nil
}

// Runs lists recorded runs, oldest first.
func (w *SQLiteWriter) Runs(ctx context.Context) ([]RunRecord, error) {
	var runs []RunRecord
	err := w.db.SelectContext(ctx, &runs, `
		SELECT run_id, input, table_name, rows_read, unified_rows, group_count, orphans, unmatched, created_at
		FROM stackedcsv_runs
		ORDER BY rowid
	`)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list runs", err)
	}
	return runs, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
