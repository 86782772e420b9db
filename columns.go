package sqlbridge

import (
	"strconv"
	"strings"
)

// ColumnName normalizes a driver column label. Unlabeled expressions become
// col_<ordinal>, purely numeric labels become col_<label> with '-' and '.'
// turned into '_', and every other label is kept as is.
func ColumnName(label string, ordinal int) string {
	switch label {
	case "", "?column?", "?":
		return "col_" + strconv.Itoa(ordinal)
	}
	if isNumericLabel(label) {
		name := "col_" + strings.NewReplacer("-", "_", ".", "_").Replace(label)
		return strings.ReplaceAll(name, "__", "_")
	}
	return label
}

func isNumericLabel(s string) bool {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// columnNamer hands out unique names within one row. Duplicates after the
// first get a _<n> suffix, n counting collisions in the row from 1.
type columnNamer struct {
	seen  map[string]struct{}
	count int
}

func newColumnNamer(n int) *columnNamer {
	return &columnNamer{seen: make(map[string]struct{}, n)}
}

func (c *columnNamer) next(label string, ordinal int) string {
	name := ColumnName(label, ordinal)
	for {
		if _, dup := c.seen[name]; !dup {
			break
		}
		c.count++
		name = ColumnName(label, ordinal) + "_" + strconv.Itoa(c.count)
	}
	c.seen[name] = struct{}{}
	return name
}

// ColumnNames normalizes a full row of labels, resolving collisions.
func ColumnNames(labels []string) []string {
	namer := newColumnNamer(len(labels))
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = namer.next(l, i)
	}
	return out
}
