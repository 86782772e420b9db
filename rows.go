package sqlbridge

import (
	"database/sql"
)

// scanResult drains rows into a Result. Column kinds come from the driver's
// type names; every cell is scanned into an untyped sink and decoded.
func scanResult(rows *sql.Rows, d Dialect) (*Result, error) {
	cts, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(cts))
	kinds := make([]ColumnKind, len(cts))
	elems := make([]ColumnKind, len(cts))
	for i, ct := range cts {
		names[i] = ct.Name()
		kinds[i], elems[i] = ColumnKindOf(d, ct.DatabaseTypeName())
	}

	var raw []RawRow
	for rows.Next() {
		sinks := make([]any, len(cts))
		ptrs := make([]any, len(cts))
		for i := range sinks {
			ptrs[i] = &sinks[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		cells := make([]Cell, len(cts))
		for i, v := range sinks {
			cells[i] = Cell{Kind: kinds[i], Elem: elems[i], Value: driverCell(d, kinds[i], v)}
		}
		raw = append(raw, RawRow{Columns: names, Cells: cells})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return BuildResult(raw, nil)
}

// driverCell fixes up payloads whose layout depends on the dialect.
func driverCell(d Dialect, k ColumnKind, v any) any {
	if d == SQLServer && k == ColumnUUID {
		if b, ok := v.([]byte); ok && len(b) == 16 {
			if u, err := sqlServerUUID(b); err == nil {
				return u
			}
		}
	}
	return v
}
