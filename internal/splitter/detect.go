package splitter

import (
	"strings"

	"stackedcsv/internal/table"
)

// AssignGroupIDs folds the discriminator values into group ids. The counter
// starts at 0 and increments on every value containing marker; each row gets
// the counter after its own increment, so a key row belongs to the table it
// opens and rows before the first key row get 0.
func AssignGroupIDs(values []string, marker string) []int {
	ids := make([]int, len(values))
	group := 0
	for i, v := range values {
		if strings.Contains(v, marker) {
			group++
		}
		ids[i] = group
	}
	return ids
}

// Detect drops rows without a discriminator value and assigns a group id to
// every remaining row.
func Detect(t *table.Table, cfg Config) (Detected, error) {
	col, err := t.Column(cfg.Discriminator)
	if err != nil {
		return Detected{}, NewMissingDiscriminatorError(cfg.Discriminator, t.Columns())
	}

	var (
		kept    []int
		dropped []int
		values  []string
	)
	for i, c := range col {
		if c.IsBlank() {
			dropped = append(dropped, i)
			continue
		}
		kept = append(kept, i)
		values = append(values, c.Value)
	}

	ids := AssignGroupIDs(values, cfg.KeyMarker)
	groups := 0
	if len(ids) > 0 {
		groups = ids[len(ids)-1]
	}

	return Detected{
		Rows: Partition{
			Table:      t.SelectRows(kept),
			GroupIDs:   ids,
			SourceRows: kept,
		},
		DroppedRows: dropped,
		Groups:      groups,
	}, nil
}
