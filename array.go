package sqlbridge

import (
	"database/sql"
	"encoding/hex"
	"reflect"
	"strings"

	"github.com/lib/pq"
)

// decodeArray decodes an Array column. Postgres sends arrays as text
// literals; drivers that hand out Go slices are walked recursively, keeping
// the nesting.
func decodeArray(v any, elem ColumnKind) (Value, error) {
	if s, ok := textOf(v); ok {
		return decodeArrayText(s, elem)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return Value{}, conversionErr(v, ColumnArray, "")
	}
	out := make([]Value, rv.Len())
	for i := range out {
		e := rv.Index(i).Interface()
		var (
			ev  Value
			err error
		)
		if isNestedSlice(e) {
			ev, err = decodeArray(e, elem)
		} else {
			ev, err = Decode(Cell{Kind: elem, Value: e})
		}
		if err != nil {
			return Value{}, err
		}
		out[i] = ev
	}
	return Value{kind: KindArray, v: out}, nil
}

// isNestedSlice reports whether an array element is itself an array, as
// opposed to a scalar that happens to be a slice.
func isNestedSlice(e any) bool {
	if e == nil {
		return false
	}
	switch e.(type) {
	case []byte, string:
		return false
	}
	k := reflect.TypeOf(e).Kind()
	if k == reflect.Array {
		// uuid.UUID and friends are fixed byte arrays
		return reflect.TypeOf(e).Elem().Kind() != reflect.Uint8
	}
	return k == reflect.Slice
}

// decodeArrayText parses a postgres array literal. pq scans one dimension
// at a time, so nested literals are split into their sub-arrays first.
func decodeArrayText(s string, elem ColumnKind) (Value, error) {
	inner, nested := subArrays(s)
	if !nested {
		var flat []sql.NullString
		if err := (pq.GenericArray{A: &flat}).Scan([]byte(s)); err != nil {
			return Value{}, conversionErr(s, ColumnArray, err.Error())
		}
		return arrayOfText(flat, elem)
	}
	rows := make([]Value, len(inner))
	for i, sub := range inner {
		rv, err := decodeArrayText(sub, elem)
		if err != nil {
			return Value{}, err
		}
		rows[i] = rv
	}
	return Value{kind: KindArray, v: rows}, nil
}

// subArrays splits "{{1,2},{3,4}}" into "{1,2}" and "{3,4}". It reports
// false when the literal holds scalars.
func subArrays(s string) ([]string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, false
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" || body[0] != '{' {
		return nil, false
	}
	var (
		parts  []string
		depth  int
		start  int
		quoted bool
	)
	for i := 0; i < len(body); i++ {
		switch c := body[i]; {
		case quoted && c == '\\':
			i++
		case c == '"':
			quoted = !quoted
		case quoted:
		case c == '{':
			if depth == 0 {
				start = i
			}
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				parts = append(parts, body[start:i+1])
			}
		}
	}
	return parts, true
}

func arrayOfText(items []sql.NullString, elem ColumnKind) (Value, error) {
	out := make([]Value, len(items))
	for i, item := range items {
		if !item.Valid {
			continue
		}
		var payload any = item.String
		if elem == ColumnBytes {
			b, err := byteaText(item.String)
			if err != nil {
				return Value{}, conversionErr(item.String, ColumnBytes, err.Error())
			}
			payload = b
		}
		ev, err := Decode(Cell{Kind: elem, Value: payload})
		if err != nil {
			return Value{}, err
		}
		out[i] = ev
	}
	return Value{kind: KindArray, v: out}, nil
}

// byteaText decodes the hex output format of bytea array elements.
func byteaText(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, `\x`); ok {
		return hex.DecodeString(rest)
	}
	return []byte(s), nil
}

// decodeEnumArray decodes an array of enum labels. Labels are never NULL.
func decodeEnumArray(v any) (Value, error) {
	switch x := v.(type) {
	case []string:
		return EnumArray(x...), nil
	case pq.StringArray:
		return EnumArray(x...), nil
	}
	if s, ok := textOf(v); ok {
		var items []sql.NullString
		if err := (pq.GenericArray{A: &items}).Scan([]byte(s)); err != nil {
			return Value{}, conversionErr(v, ColumnEnumArray, err.Error())
		}
		names := make([]string, len(items))
		for i, item := range items {
			if !item.Valid {
				return Value{}, conversionErr(v, ColumnEnumArray, "enum arrays cannot hold NULL")
			}
			names[i] = item.String
		}
		return Value{kind: KindEnumArray, v: names}, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return Value{}, conversionErr(v, ColumnEnumArray, "")
	}
	names := make([]string, rv.Len())
	for i := range names {
		s, ok := textOf(rv.Index(i).Interface())
		if !ok {
			return Value{}, conversionErr(v, ColumnEnumArray, "enum labels must be text")
		}
		names[i] = s
	}
	return Value{kind: KindEnumArray, v: names}, nil
}

// leafKind returns the column kind of the first non-null scalar found in a
// possibly nested array.
func leafKind(arr []Value) ColumnKind {
	for _, e := range arr {
		switch e.kind {
		case KindNull:
			continue
		case KindArray:
			if k := leafKind(e.v.([]Value)); k != ColumnUnknown {
				return k
			}
		default:
			return e.Cell().Kind
		}
	}
	return ColumnUnknown
}

// cellValues flattens Values back into driver payloads, keeping nesting.
func cellValues(arr []Value) []any {
	out := make([]any, len(arr))
	for i, e := range arr {
		if e.kind == KindArray {
			out[i] = cellValues(e.v.([]Value))
			continue
		}
		out[i] = e.Cell().Value
	}
	return out
}
