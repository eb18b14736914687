package exporter

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	apperrors "stackedcsv/internal/errors"
	"stackedcsv/internal/splitter"
	"stackedcsv/internal/table"
)

// Options select the destination inside the output file.
type Options struct {
	Format Format
	// Sheet names the XLSX sheet.
	Sheet string
	// TableName names the SQLite table.
	TableName string
	// BOM prefixes CSV output with a UTF-8 byte order mark.
	BOM bool
}

// Export writes t to path in the requested format. An empty format is taken
// from the extension.
func Export(ctx context.Context, path string, t *table.Table, opts Options) error {
	format := opts.Format
	if format == "" {
		format = FormatFromPath(path)
	}

	switch format {
	case FormatCSV:
		w := NewCSVWriter("")
		w.BOM = opts.BOM
		return w.WriteTable(path, t)
	case FormatXLSX:
		return NewXLSXWriter().WriteTable(path, opts.Sheet, t)
	case FormatSQLite:
		db, err := OpenSQLite(ctx, path)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.WriteTable(ctx, opts.TableName, t, true)
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown output format %q", format))
	}
}

// WriteSnapshots writes every snapshot to dir as <prefix>_<name>.csv and
// returns the paths in snapshot order.
func WriteSnapshots(dir, prefix string, snaps []splitter.Snapshot) ([]string, error) {
	w := NewCSVWriter(dir)
	paths := make([]string, 0, len(snaps))
	for _, s := range snaps {
		if s.Table == nil {
			continue
		}
		name := s.Name + ".csv"
		if prefix != "" {
			name = prefix + "_" + name
		}
		if err := w.WriteTable(name, s.Table); err != nil {
			return paths, err
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	return paths, nil
}

// OutputPath names the output of input inside dir, e.g. runs.csv becomes
// dir/runs_unified.csv.
func OutputPath(dir, input string, format Format) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(dir, base+"_unified"+format.Ext())
}
