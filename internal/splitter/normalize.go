package splitter

import (
	"fmt"
	"strings"

	"stackedcsv/internal/table"
)

// keyPlan maps a raw key row onto the normalized key columns.
type keyPlan struct {
	columns []string
	source  []int
	rules   map[int]PrefixRule
	trim    bool
}

// newKeyPlan builds the plan for the given raw columns. drop lists the raw
// columns to remove; every drop, rename and prefix field must exist.
func newKeyPlan(raw []string, drop []string, cfg Config) (*keyPlan, error) {
	index := make(map[string]int, len(raw))
	for i, name := range raw {
		index[name] = i
	}

	dropped := make(map[string]bool, len(drop))
	for _, name := range drop {
		if _, ok := index[name]; !ok {
			return nil, configErrorAt(StageNormalize, fmt.Sprintf("cannot drop unknown column %q", name))
		}
		dropped[name] = true
	}
	for from := range cfg.Rename {
		if _, ok := index[from]; !ok {
			return nil, configErrorAt(StageNormalize, fmt.Sprintf("cannot rename unknown column %q", from))
		}
	}

	plan := &keyPlan{rules: make(map[int]PrefixRule), trim: cfg.TrimSpace}
	seen := make(map[string]bool, len(raw))
	for i, name := range raw {
		if dropped[name] {
			continue
		}
		out := name
		if to, ok := cfg.Rename[name]; ok {
			out = to
		}
		if seen[out] {
			return nil, configErrorAt(StageNormalize, fmt.Sprintf("key column %q appears twice after renaming", out))
		}
		seen[out] = true
		plan.columns = append(plan.columns, out)
		plan.source = append(plan.source, i)
	}

	for _, rule := range cfg.Prefixes {
		pos := -1
		for k, name := range plan.columns {
			if name == rule.Field {
				pos = k
				break
			}
		}
		if pos < 0 {
			return nil, configErrorAt(StageNormalize, fmt.Sprintf("prefix field %q is not a key column", rule.Field))
		}
		plan.rules[pos] = rule
	}
	return plan, nil
}

// apply normalizes one raw key row. row and group identify it in errors.
func (p *keyPlan) apply(raw []table.Cell, row, group int) ([]table.Cell, error) {
	out := make([]table.Cell, len(p.columns))
	for k, i := range p.source {
		c := raw[i]
		if rule, ok := p.rules[k]; ok {
			stripped, err := StripPrefix(c, rule.Prefix, p.trim)
			if err != nil {
				return nil, NewFormatMismatchError(row, group, rule.Field, c.Value, rule.Prefix)
			}
			c = stripped
		}
		out[k] = c
	}
	return out, nil
}

// StripPrefix removes a literal prefix from a cell. A missing cell or one that
// does not start with the prefix is an ErrFormatMismatch. An empty remainder
// becomes a missing cell.
func StripPrefix(c table.Cell, prefix string, trim bool) (table.Cell, error) {
	if c.IsMissing() || !strings.HasPrefix(c.Value, prefix) {
		return table.Missing, ErrFormatMismatch
	}
	rest := strings.TrimPrefix(c.Value, prefix)
	if trim {
		rest = strings.TrimSpace(rest)
	}
	if rest == "" {
		return table.Missing, nil
	}
	return table.String(rest), nil
}

// Normalize drops, renames and prefix-strips the key row columns. Value rows
// pass through unchanged.
func Normalize(c Classified, cfg Config) (Normalized, error) {
	keys := c.Keys.Table
	drop := append([]string(nil), cfg.DropColumns...)
	emptied := emptyKeyColumns(keys, cfg)
	drop = append(drop, emptied...)

	plan, err := newKeyPlan(keys.Columns(), drop, cfg)
	if err != nil {
		return Normalized{}, err
	}

	rows := make([][]table.Cell, keys.NumRows())
	for i := range rows {
		rows[i], err = plan.apply(keys.Row(i), c.Keys.SourceRows[i], c.Keys.GroupIDs[i])
		if err != nil {
			return Normalized{}, err
		}
	}
	normalized, err := table.New(plan.columns, rows)
	if err != nil {
		return Normalized{}, configErrorAt(StageNormalize, err.Error())
	}

	return Normalized{
		Keys: Partition{
			Table:      normalized,
			GroupIDs:   c.Keys.GroupIDs,
			SourceRows: c.Keys.SourceRows,
		},
		Values:            c.Values,
		DroppedKeyColumns: drop,
		Groups:            c.Groups,
	}, nil
}

// emptyKeyColumns lists the columns blank on every key row, when enabled. The
// discriminator, renamed columns and prefix fields are kept. No key rows means
// nothing is structurally empty.
func emptyKeyColumns(keys *table.Table, cfg Config) []string {
	if !cfg.DropEmptyKeyColumns || keys.NumRows() == 0 {
		return nil
	}
	skip := make(map[string]bool, len(cfg.DropColumns))
	for _, name := range cfg.DropColumns {
		skip[name] = true
	}
	for _, rule := range cfg.Prefixes {
		skip[rule.Field] = true
	}

	var out []string
	for _, name := range keys.Columns() {
		if name == cfg.Discriminator || skip[name] {
			continue
		}
		if _, renamed := cfg.Rename[name]; renamed {
			continue
		}
		if keys.AllBlank(name) {
			out = append(out, name)
		}
	}
	return out
}

func configErrorAt(stage Stage, message string) *StageError {
	err := NewInvalidConfigError(message, nil)
	err.Stage = stage
	return err
}
