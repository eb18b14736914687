package splitter

import (
	"math"
	"sort"

	"stackedcsv/internal/table"
)

// unifiedColumns returns the key columns followed by the value columns. A value
// column that collides with a key column, or with an earlier suffixed name,
// gets suffix appended until it is unique.
func unifiedColumns(keyCols, valueCols []string, suffix string) []string {
	taken := make(map[string]bool, len(keyCols)+len(valueCols))
	out := make([]string, 0, len(keyCols)+len(valueCols))
	for _, name := range keyCols {
		taken[name] = true
		out = append(out, name)
	}
	for _, name := range valueCols {
		for taken[name] {
			name += suffix
		}
		taken[name] = true
		out = append(out, name)
	}
	return out
}

// Merge joins every value row to the key row of its group, in value row order.
// Groups found on only one side are reported as unmatched; with JoinLeft a
// key-only group still yields one record with missing value cells, placed
// where its group falls in group order.
func Merge(n Normalized, cfg Config) (Merged, error) {
	cfg = cfg.withDefaults()
	keys, values := n.Keys, n.Values

	keyByGroup := make(map[int]int, keys.Len())
	for i, g := range keys.GroupIDs {
		keyByGroup[g] = i
	}
	valueGroups := make(map[int]bool)
	for _, g := range values.GroupIDs {
		valueGroups[g] = true
	}

	columns := unifiedColumns(keys.Table.Columns(), values.Table.Columns(), cfg.ValueSuffix)
	valueWidth := values.Table.NumColumns()

	var (
		rows      [][]table.Cell
		groupIDs  []int
		unmatched []UnmatchedGroup
	)

	keyOnly := make(map[int]bool)
	for _, g := range keys.GroupIDs {
		if !valueGroups[g] {
			keyOnly[g] = true
		}
	}

	emitKeyOnlyBefore := func(group int) {}
	if cfg.Join == JoinLeft {
		pending := sortedGroups(keyOnly)
		emitKeyOnlyBefore = func(group int) {
			for len(pending) > 0 && pending[0] < group {
				g := pending[0]
				pending = pending[1:]
				row := append(keys.Table.Row(keyByGroup[g]), missingCells(valueWidth)...)
				rows = append(rows, row)
				groupIDs = append(groupIDs, g)
			}
		}
	}

	valueOnly := make(map[int]bool)
	for i, g := range values.GroupIDs {
		emitKeyOnlyBefore(g)
		k, ok := keyByGroup[g]
		if !ok {
			valueOnly[g] = true
			continue
		}
		rows = append(rows, append(keys.Table.Row(k), values.Table.Row(i)...))
		groupIDs = append(groupIDs, g)
	}
	emitKeyOnlyBefore(math.MaxInt)

	for g := range keyOnly {
		unmatched = append(unmatched, UnmatchedGroup{GroupID: g, Side: KeyOnly})
	}
	for g := range valueOnly {
		unmatched = append(unmatched, UnmatchedGroup{GroupID: g, Side: ValueOnly})
	}
	sort.Slice(unmatched, func(i, j int) bool { return unmatched[i].GroupID < unmatched[j].GroupID })

	out, err := table.New(columns, rows)
	if err != nil {
		return Merged{}, configErrorAt(StageMerge, err.Error())
	}
	return Merged{Table: out, GroupIDs: groupIDs, Unmatched: unmatched}, nil
}

func sortedGroups(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for g := range set {
		out = append(out, g)
	}
	sort.Ints(out)
	return out
}

func missingCells(n int) []table.Cell {
	return make([]table.Cell, n)
}
