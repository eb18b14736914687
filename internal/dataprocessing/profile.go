package dataprocessing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/montanaflynn/stats"

	apperrors "stackedcsv/internal/errors"
	"stackedcsv/internal/table"
)

// ColumnKind is the inferred kind of a column.
type ColumnKind string

const (
	KindNumeric ColumnKind = "numeric"
	KindText    ColumnKind = "text"
	KindEmpty   ColumnKind = "empty"
)

// ColumnProfile summarizes one column. The statistics are set for numeric
// columns only; StdDev is the sample standard deviation.
type ColumnProfile struct {
	Name       string     `json:"name"`
	Kind       ColumnKind `json:"kind"`
	NonMissing int        `json:"non_missing"`
	Missing    int        `json:"missing"`
	Unique     int        `json:"unique"`
	Mean       float64    `json:"mean,omitempty"`
	Median     float64    `json:"median,omitempty"`
	StdDev     float64    `json:"std_dev,omitempty"`
	Q25        float64    `json:"q25,omitempty"`
	Q75        float64    `json:"q75,omitempty"`
	Min        float64    `json:"min,omitempty"`
	Max        float64    `json:"max,omitempty"`
}

// TableProfile is the inspection summary of a table.
type TableProfile struct {
	Rows    int             `json:"rows"`
	Columns []ColumnProfile `json:"columns"`
	Head    [][]string      `json:"head"`
	Tail    [][]string      `json:"tail"`

	header   []string
	describe *dataframe.DataFrame
}

// Describe returns the describe table of the profiled data, or nil for an
// empty table.
func (p *TableProfile) Describe() *dataframe.DataFrame {
	return p.describe
}

// ProfilerConfig holds configuration options for the Profiler.
type ProfilerConfig struct {
	HeadRows int
	// NAValues are read as missing by the describe table.
	NAValues []string
}

// DefaultProfilerConfig returns the default profiler configuration.
func DefaultProfilerConfig() ProfilerConfig {
	return ProfilerConfig{
		HeadRows: 5,
		NAValues: []string{"", "NA", "NaN", "<nil>"},
	}
}

// Profiler builds inspection summaries of loaded tables.
type Profiler struct {
	logger   *slog.Logger
	headRows int
	na       []string
}

// NewProfiler creates a profiler. A nil logger uses slog.Default.
func NewProfiler(logger *slog.Logger, config ProfilerConfig) *Profiler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.HeadRows <= 0 {
		config.HeadRows = DefaultProfilerConfig().HeadRows
	}
	if len(config.NAValues) == 0 {
		config.NAValues = DefaultProfilerConfig().NAValues
	}
	return &Profiler{logger: logger, headRows: config.HeadRows, na: config.NAValues}
}

// Profile summarizes t: per column counts and statistics, the first and last
// rows and a describe table.
func (p *Profiler) Profile(ctx context.Context, t *table.Table) (*TableProfile, error) {
	records := t.Records()
	prof := &TableProfile{
		Rows:   t.NumRows(),
		header: t.Columns(),
	}

	n := p.headRows
	if n > len(records) {
		n = len(records)
	}
	prof.Head = records[:n]
	prof.Tail = records[len(records)-n:]

	for _, name := range t.Columns() {
		col, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		cp, err := profileColumn(name, col)
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("failed to profile column %q", name), err)
		}
		prof.Columns = append(prof.Columns, cp)
	}

	if t.NumRows() > 0 {
		df, err := describeFrame(t, prof.Columns, p.na)
		if err != nil {
			return nil, apperrors.NewParsingError("failed to build describe table", err)
		}
		if df != nil {
			desc := df.Describe()
			prof.describe = &desc
		}
	}

	p.logger.DebugContext(ctx, "table profiled",
		slog.Int("rows", prof.Rows),
		slog.Int("columns", len(prof.Columns)))
	return prof, nil
}

func profileColumn(name string, col []table.Cell) (ColumnProfile, error) {
	cp := ColumnProfile{Name: name}
	unique := make(map[string]bool)
	var values []float64
	numeric := true
	for _, c := range col {
		if c.IsMissing() {
			cp.Missing++
			continue
		}
		cp.NonMissing++
		unique[c.Value] = true
		if !numeric {
			continue
		}
		f, ok := parseNumber(c.Value)
		if !ok {
			numeric = false
			continue
		}
		values = append(values, f)
	}
	cp.Unique = len(unique)

	switch {
	case cp.NonMissing == 0:
		cp.Kind = KindEmpty
		return cp, nil
	case !numeric:
		cp.Kind = KindText
		return cp, nil
	}

	cp.Kind = KindNumeric
	var err error
	if cp.Mean, err = stats.Mean(values); err != nil {
		return cp, err
	}
	if cp.Median, err = stats.Median(values); err != nil {
		return cp, err
	}
	if cp.Min, err = stats.Min(values); err != nil {
		return cp, err
	}
	if cp.Max, err = stats.Max(values); err != nil {
		return cp, err
	}
	if cp.Q25, err = stats.Percentile(values, 25); err != nil {
		return cp, err
	}
	if cp.Q75, err = stats.Percentile(values, 75); err != nil {
		return cp, err
	}
	if len(values) > 1 {
		if cp.StdDev, err = stats.StandardDeviationSample(values); err != nil {
			return cp, err
		}
	}
	return cp, nil
}

// describeFrame loads the non-empty columns into a dataframe, numeric columns
// as floats with thousands separators removed.
func describeFrame(t *table.Table, profiles []ColumnProfile, na []string) (*dataframe.DataFrame, error) {
	types := make(map[string]series.Type)
	var names []string
	var cols [][]string
	for _, cp := range profiles {
		if cp.Kind == KindEmpty {
			continue
		}
		col, err := t.Column(cp.Name)
		if err != nil {
			return nil, err
		}
		values := make([]string, len(col))
		for i, c := range col {
			values[i] = c.String()
			if cp.Kind == KindNumeric && c.Valid {
				f, _ := parseNumber(c.Value)
				values[i] = strconv.FormatFloat(f, 'f', -1, 64)
			}
		}
		types[cp.Name] = series.String
		if cp.Kind == KindNumeric {
			types[cp.Name] = series.Float
		}
		names = append(names, cp.Name)
		cols = append(cols, values)
	}
	if len(names) == 0 {
		return nil, nil
	}

	records := make([][]string, t.NumRows()+1)
	records[0] = names
	for i := 1; i < len(records); i++ {
		rec := make([]string, len(cols))
		for j := range cols {
			rec[j] = cols[j][i-1]
		}
		records[i] = rec
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.WithTypes(types),
		dataframe.NaNValues(na),
	)
	if df.Err != nil {
		return nil, df.Err
	}
	return &df, nil
}

// parseNumber accepts numbers with thousands separators.
func parseNumber(s string) (float64, bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// WriteText prints the profile the way an analyst reads it: columns, head,
// tail, per column info and the describe table.
func (p *TableProfile) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "rows: %d, columns: %d\n", p.Rows, len(p.Columns))
	fmt.Fprintf(tw, "columns: %s\n", strings.Join(p.header, ", "))
	writeRecords(tw, "head", p.header, p.Head)
	writeRecords(tw, "tail", p.header, p.Tail)

	fmt.Fprintln(tw, "column\tkind\tnon-missing\tmissing\tunique\tmean\tmedian\tstd\tmin\tmax")
	for _, c := range p.Columns {
		if c.Kind == KindNumeric {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%g\t%g\t%g\t%g\t%g\n",
				c.Name, c.Kind, c.NonMissing, c.Missing, c.Unique, c.Mean, c.Median, c.StdDev, c.Min, c.Max)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t\t\t\t\t\n", c.Name, c.Kind, c.NonMissing, c.Missing, c.Unique)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if p.describe != nil {
		if _, err := fmt.Fprintf(w, "\n%v\n", *p.describe); err != nil {
			return err
		}
	}
	return nil
}

func writeRecords(w io.Writer, title string, header []string, records [][]string) {
	fmt.Fprintf(w, "\n%s (%d rows)\n", title, len(records))
	fmt.Fprintf(w, "%s\n", strings.Join(header, "\t"))
	for _, rec := range records {
		fmt.Fprintf(w, "%s\n", strings.Join(rec, "\t"))
	}
	fmt.Fprintln(w)
}

// WriteJSON writes the profile as indented JSON.
func (p *Profiler) WriteJSON(ctx context.Context, path string, prof *TableProfile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.NewStorageError("failed to create directory", err)
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return apperrors.NewParsingError("failed to encode profile", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return apperrors.NewStorageError("failed to write profile", err).WithContext("path", path)
	}
	p.logger.InfoContext(ctx, "profile written", slog.String("path", path))
	return nil
}
