package splitter

import (
	"fmt"
	"sort"
	"strings"
)

// JoinMode selects how key and value rows are merged.
type JoinMode string

const (
	// JoinInner keeps only groups present on both sides.
	JoinInner JoinMode = "inner"
	// JoinLeft also keeps key-only groups as one record with missing value cells.
	JoinLeft JoinMode = "left"
)

// DefaultValueSuffix is appended to value column names that collide with a key column.
const DefaultValueSuffix = "_value"

// PrefixRule strips a literal prefix from a key field. Field is the column name
// after renaming.
type PrefixRule struct {
	Field  string
	Prefix string
}

// Config drives a pipeline run.
type Config struct {
	// Discriminator is the column whose value identifies the row type.
	Discriminator string
	// HeaderRepeat is the exact discriminator value of a repeated header row.
	HeaderRepeat string
	// KeyMarker is the substring marking a key row.
	KeyMarker string

	// DropColumns are removed from the key rows before renaming.
	DropColumns []string
	// DropEmptyKeyColumns also removes columns blank on every key row.
	DropEmptyKeyColumns bool
	// Rename maps raw key column names to semantic names.
	Rename map[string]string
	// Prefixes are applied in order after renaming.
	Prefixes []PrefixRule
	// TrimSpace trims whitespace around a stripped value.
	TrimSpace bool

	Join        JoinMode
	ValueSuffix string

	FailOnOrphans   bool
	FailOnUnmatched bool

	// AcceptUnified returns a table already in the unified layout unchanged
	// instead of splitting it.
	AcceptUnified bool

	// KeepSnapshots retains every stage's output tables on the Result.
	KeepSnapshots bool
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.Join == "" {
		c.Join = JoinInner
	}
	if c.ValueSuffix == "" {
		c.ValueSuffix = DefaultValueSuffix
	}
	return c
}

// Validate checks the configuration. Every problem is an InvalidConfig error.
func (c Config) Validate() error {
	c = c.withDefaults()

	if strings.TrimSpace(c.Discriminator) == "" {
		return NewInvalidConfigError("discriminator column is required", nil)
	}
	if c.KeyMarker == "" {
		return NewInvalidConfigError("key row marker is required", nil)
	}
	if c.HeaderRepeat == "" {
		return NewInvalidConfigError("header repeat value is required", nil)
	}
	if strings.Contains(c.HeaderRepeat, c.KeyMarker) {
		return NewInvalidConfigError(
			fmt.Sprintf("header repeat %q contains the key marker %q", c.HeaderRepeat, c.KeyMarker), nil)
	}
	if c.Join != JoinInner && c.Join != JoinLeft {
		return NewInvalidConfigError(fmt.Sprintf("unknown join mode %q", c.Join), nil)
	}

	targets := make(map[string]string, len(c.Rename))
	for from, to := range c.Rename {
		if strings.TrimSpace(to) == "" {
			return NewInvalidConfigError(fmt.Sprintf("rename of %q has an empty target", from), nil)
		}
		if prev, dup := targets[to]; dup {
			return NewInvalidConfigError(
				fmt.Sprintf("columns %q and %q are both renamed to %q", prev, from, to), nil)
		}
		targets[to] = from
	}

	seen := make(map[string]bool, len(c.Prefixes))
	for _, p := range c.Prefixes {
		if p.Field == "" || p.Prefix == "" {
			return NewInvalidConfigError("prefix rules need a field and a prefix", nil)
		}
		if seen[p.Field] {
			return NewInvalidConfigError(fmt.Sprintf("field %q has more than one prefix rule", p.Field), nil)
		}
		seen[p.Field] = true
	}

	for _, col := range c.DropColumns {
		if _, renamed := c.Rename[col]; renamed {
			return NewInvalidConfigError(
				fmt.Sprintf("column %q is both dropped and renamed", col), nil)
		}
	}

	return nil
}

// KeyColumns returns the sorted rename targets.
func (c Config) KeyColumns() []string {
	out := make([]string, 0, len(c.Rename))
	for _, to := range c.Rename {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}
