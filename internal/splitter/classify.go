package splitter

import (
	"strings"
)

// ClassifyValue returns the row type for a discriminator value. The header
// repeat rule is checked first.
func ClassifyValue(value string, cfg Config) RowType {
	switch {
	case value == cfg.HeaderRepeat:
		return HeaderRepeat
	case strings.Contains(value, cfg.KeyMarker):
		return KeyRow
	default:
		return ValueRow
	}
}

// Classify partitions the detected rows into key rows and value rows.
// Header repeats are discarded and orphans (group 0) are set aside; both are
// listed by source row.
func Classify(d Detected, cfg Config) (Classified, error) {
	rows := d.Rows
	col, err := rows.Table.Column(cfg.Discriminator)
	if err != nil {
		return Classified{}, NewMissingDiscriminatorError(cfg.Discriminator, rows.Table.Columns())
	}

	var (
		keyIdx, valueIdx []int
		repeats, orphans []int
	)
	for i, c := range col {
		src := rows.SourceRows[i]
		kind := ClassifyValue(c.Value, cfg)
		switch {
		case kind == HeaderRepeat:
			repeats = append(repeats, src)
		case rows.GroupIDs[i] == 0:
			orphans = append(orphans, src)
		case kind == KeyRow:
			keyIdx = append(keyIdx, i)
		default:
			valueIdx = append(valueIdx, i)
		}
	}

	return Classified{
		Keys:          subset(rows, keyIdx),
		Values:        subset(rows, valueIdx),
		HeaderRepeats: repeats,
		Orphans:       orphans,
		Groups:        d.Groups,
	}, nil
}

func subset(p Partition, idx []int) Partition {
	ids := make([]int, len(idx))
	src := make([]int, len(idx))
	for k, i := range idx {
		ids[k] = p.GroupIDs[i]
		src[k] = p.SourceRows[i]
	}
	return Partition{
		Table:      p.Table.SelectRows(idx),
		GroupIDs:   ids,
		SourceRows: src,
	}
}
