package sqlbridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Row maps normalized column names to values.
type Row map[string]Value

// Columns returns the column names of the row, sorted.
func (r Row) Columns() []string {
	return slices.Sorted(maps.Keys(r))
}

// Interface projects the row onto plain Go values.
func (r Row) Interface() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = v.Interface()
	}
	return out
}

// ColumnTypes maps column names to the type tag of their first-row value.
type ColumnTypes map[string]string

// RawRow is one driver row: the column labels as reported and one cell per
// column.
type RawRow struct {
	Columns []string
	Cells   []Cell
}

// Result is a decoded result set. Column types are inferred from the first
// row only; later rows are assumed to match.
type Result struct {
	rows         []Row
	types        ColumnTypes
	lastInsertID *uint64
	rowsAffected int64
}

// BuildRow decodes one driver row. Column labels are normalized with
// ColumnName and duplicates get a numeric suffix.
func BuildRow(columns []string, cells []Cell) (Row, error) {
	if len(columns) != len(cells) {
		return nil, fmt.Errorf("%w: %d columns, %d cells", ErrColumnMismatch, len(columns), len(cells))
	}
	namer := newColumnNamer(len(columns))
	row := make(Row, len(columns))
	for i, c := range cells {
		name := namer.next(columns[i], i)
		v, err := Decode(c)
		if err != nil {
			var ce *ConversionError
			if errors.As(err, &ce) {
				cc := *ce
				cc.Column = name
				return nil, &cc
			}
			return nil, err
		}
		row[name] = v
	}
	return row, nil
}

// BuildResult decodes every row and attaches lastInsertID unchanged.
func BuildResult(rows []RawRow, lastInsertID *uint64) (*Result, error) {
	out := &Result{rows: make([]Row, 0, len(rows)), types: ColumnTypes{}}
	for _, raw := range rows {
		row, err := BuildRow(raw.Columns, raw.Cells)
		if err != nil {
			return nil, err
		}
		out.rows = append(out.rows, row)
	}
	if len(out.rows) > 0 {
		for name, v := range out.rows[0] {
			out.types[name] = v.TypeTag()
		}
	}
	if lastInsertID != nil {
		id := *lastInsertID
		out.lastInsertID = &id
	}
	return out, nil
}

// Rows returns the decoded rows.
func (r *Result) Rows() []Row { return slices.Clone(r.rows) }

// Types returns a copy of the column type tags.
func (r *Result) Types() ColumnTypes { return maps.Clone(r.types) }

// First returns the first row, if any.
func (r *Result) First() (Row, bool) {
	if len(r.rows) == 0 {
		return nil, false
	}
	return r.rows[0], true
}

// LastInsertID returns the id reported by the driver, if any.
func (r *Result) LastInsertID() (uint64, bool) {
	if r.lastInsertID == nil {
		return 0, false
	}
	return *r.lastInsertID, true
}

// RowsAffected is set by Statement.ExecResultContext.
func (r *Result) RowsAffected() int64 { return r.rowsAffected }

// Len returns the number of rows.
func (r *Result) Len() int { return len(r.rows) }

// IsEmpty reports whether the result has no rows.
func (r *Result) IsEmpty() bool { return len(r.rows) == 0 }

// String summarizes the result for logs.
func (r *Result) String() string {
	var b strings.Builder
	b.WriteString("Result(rows=")
	b.WriteString(strconv.Itoa(len(r.rows)))
	if r.lastInsertID != nil {
		b.WriteString(", last_insert_id=")
		b.WriteString(strconv.FormatUint(*r.lastInsertID, 10))
	}
	if len(r.types) > 0 {
		b.WriteString(", types={")
		for i, name := range slices.Sorted(maps.Keys(r.types)) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(name)
			b.WriteByte(':')
			b.WriteString(r.types[name])
		}
		b.WriteByte('}')
	}
	b.WriteByte(')')
	return b.String()
}

type resultJSON struct {
	Rows         []Row       `json:"rows"`
	ColumnTypes  ColumnTypes `json:"column_types"`
	LastInsertID *uint64     `json:"last_insert_id,omitempty"`
	RowsAffected int64       `json:"rows_affected,omitempty"`
}

// MarshalJSON writes rows with their untagged projections plus the column
// types and metadata.
func (r *Result) MarshalJSON() ([]byte, error) {
	rows := r.rows
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(resultJSON{
		Rows:         rows,
		ColumnTypes:  r.types,
		LastInsertID: r.lastInsertID,
		RowsAffected: r.rowsAffected,
	})
}
