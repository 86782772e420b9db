package sqlbridge

import (
	"bytes"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Kind is the discriminant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindString
	KindEnum
	KindEnumArray
	KindInt
	KindArray
	KindJSON
	KindXML
	KindUUID
	KindTime
	KindDate
	KindDateTime
	KindFloat
	KindBytes
	KindNumeric
)

var kindNames = [...]string{
	KindNull:      "Null",
	KindBoolean:   "Boolean",
	KindString:    "String",
	KindEnum:      "Enum",
	KindEnumArray: "EnumArray",
	KindInt:       "Int",
	KindArray:     "Array",
	KindJSON:      "Json",
	KindXML:       "Xml",
	KindUUID:      "Uuid",
	KindTime:      "Time",
	KindDate:      "Date",
	KindDateTime:  "DateTime",
	KindFloat:     "Float",
	KindBytes:     "Bytes",
	KindNumeric:   "Numeric",
}

// String returns the variant name of the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// DateTimeLayout is the textual projection of DateTime values. It keeps the
// zone offset and every fractional digit the instant carries.
const DateTimeLayout = time.RFC3339Nano

// Value is a single database value: exactly one variant is active, selected
// by Kind. The zero Value is Null.
//
// Values are immutable; constructors and accessors copy slices so a Value
// can be handed between rows and statements without aliasing.
type Value struct {
	kind Kind
	v    any
}

// Null returns the SQL NULL, which is also the zero Value.
func Null() Value { return Value{} }

// Bool returns a Boolean Value.
func Bool(b bool) Value { return Value{kind: KindBoolean, v: b} }

// String returns a text Value.
func String(s string) Value { return Value{kind: KindString, v: s} }

// Enum returns an enum label.
func Enum(name string) Value { return Value{kind: KindEnum, v: name} }

// Int returns a 64-bit integer Value.
func Int(i int64) Value { return Value{kind: KindInt, v: i} }

// XML returns an XML document held as text.
func XML(s string) Value { return Value{kind: KindXML, v: s} }

// UUID returns a Uuid Value.
func UUID(u uuid.UUID) Value { return Value{kind: KindUUID, v: u} }

// Time returns a time of day without a date or zone.
func Time(t civil.Time) Value { return Value{kind: KindTime, v: t} }

// Date returns a calendar date.
func Date(d civil.Date) Value { return Value{kind: KindDate, v: d} }

// DateTime returns an instant; its zone offset is kept.
func DateTime(t time.Time) Value { return Value{kind: KindDateTime, v: t} }

// Float returns a 64-bit float Value.
func Float(f float64) Value { return Value{kind: KindFloat, v: f} }

// Numeric returns an arbitrary precision decimal.
func Numeric(d decimal.Decimal) Value { return Value{kind: KindNumeric, v: d} }

// EnumArray returns an array of enum labels.
func EnumArray(names ...string) Value {
	return Value{kind: KindEnumArray, v: slices.Clone(names)}
}

// Array returns an array Value. Elements are expected to share one kind,
// but this is not enforced.
func Array(vals ...Value) Value {
	return Value{kind: KindArray, v: slices.Clone(vals)}
}

// Bytes returns a Bytes Value holding a copy of b.
func Bytes(b []byte) Value {
	return Value{kind: KindBytes, v: bytes.Clone(b)}
}

// JSON wraps a canonical JSON tree: nil, bool, json.Number, string, []any or
// map[string]any, as produced by encoding/json with UseNumber. Use
// ParseJSON or Encode to build one from arbitrary input.
func JSON(tree any) Value {
	return Value{kind: KindJSON, v: tree}
}

// ParseJSON decodes data into a canonical JSON tree.
func ParseJSON(data []byte) (Value, error) {
	tree, err := decodeJSONTree(data)
	if err != nil {
		return Value{}, err
	}
	return JSON(tree), nil
}

func decodeJSONTree(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// Kind reports the active variant.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the payload of a Boolean value.
func (v Value) AsBool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok && v.kind == KindBoolean
}

// AsString returns the text of String, Enum and Xml values.
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case KindString, KindEnum, KindXML:
		return v.v.(string), true
	}
	return "", false
}

// AsEnumArray returns a copy of the labels of an EnumArray value.
func (v Value) AsEnumArray() ([]string, bool) {
	if v.kind != KindEnumArray {
		return nil, false
	}
	return slices.Clone(v.v.([]string)), true
}

// AsInt returns the payload of an Int value.
func (v Value) AsInt() (int64, bool) {
	i, ok := v.v.(int64)
	return i, ok && v.kind == KindInt
}

// AsArray returns a copy of the elements of an Array value.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return slices.Clone(v.v.([]Value)), true
}

// AsJSON returns the canonical JSON tree.
func (v Value) AsJSON() (any, bool) {
	if v.kind != KindJSON {
		return nil, false
	}
	return v.v, true
}

// AsUUID returns the payload of a Uuid value.
func (v Value) AsUUID() (uuid.UUID, bool) {
	u, ok := v.v.(uuid.UUID)
	return u, ok && v.kind == KindUUID
}

// AsTime returns the payload of a Time value.
func (v Value) AsTime() (civil.Time, bool) {
	t, ok := v.v.(civil.Time)
	return t, ok && v.kind == KindTime
}

// AsDate returns the payload of a Date value.
func (v Value) AsDate() (civil.Date, bool) {
	d, ok := v.v.(civil.Date)
	return d, ok && v.kind == KindDate
}

// AsDateTime returns the payload of a DateTime value.
func (v Value) AsDateTime() (time.Time, bool) {
	t, ok := v.v.(time.Time)
	return t, ok && v.kind == KindDateTime
}

// AsFloat returns the payload of a Float value.
func (v Value) AsFloat() (float64, bool) {
	f, ok := v.v.(float64)
	return f, ok && v.kind == KindFloat
}

// AsBytes returns a copy of the payload of a Bytes value.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return bytes.Clone(v.v.([]byte)), true
}

// AsNumeric returns the payload of a Numeric value.
func (v Value) AsNumeric() (decimal.Decimal, bool) {
	d, ok := v.v.(decimal.Decimal)
	return d, ok && v.kind == KindNumeric
}

// Equal reports structural equality. DateTime values must denote the same
// instant with the same zone offset; Numeric values compare numerically.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindEnumArray:
		return slices.Equal(v.v.([]string), o.v.([]string))
	case KindArray:
		a, b := v.v.([]Value), o.v.([]Value)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case KindJSON:
		return reflect.DeepEqual(v.v, o.v)
	case KindBytes:
		return bytes.Equal(v.v.([]byte), o.v.([]byte))
	case KindDateTime:
		a, b := v.v.(time.Time), o.v.(time.Time)
		_, offA := a.Zone()
		_, offB := b.Zone()
		return a.Equal(b) && offA == offB
	case KindNumeric:
		return v.v.(decimal.Decimal).Equal(o.v.(decimal.Decimal))
	case KindFloat:
		a, b := v.v.(float64), o.v.(float64)
		return a == b || (math.IsNaN(a) && math.IsNaN(b))
	default:
		return v.v == o.v
	}
}

// Interface projects v onto plain Go values: bool, string, []string, int64,
// []any, the JSON tree, uuid.UUID, civil.Time, civil.Date, time.Time,
// float64, []byte, decimal.Decimal, or nil for Null.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindEnumArray:
		return slices.Clone(v.v.([]string))
	case KindArray:
		arr := v.v.([]Value)
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = e.Interface()
		}
		return out
	case KindBytes:
		return bytes.Clone(v.v.([]byte))
	default:
		return v.v
	}
}

// TypeTag returns the short type name used in ColumnTypes.
func (v Value) TypeTag() string {
	switch v.kind {
	case KindBoolean:
		return "bool"
	case KindString, KindEnum, KindXML:
		return "str"
	case KindEnumArray:
		if len(v.v.([]string)) == 0 {
			return "array"
		}
		return "array_str"
	case KindInt:
		return "int"
	case KindArray:
		arr := v.v.([]Value)
		if len(arr) == 0 {
			return "array"
		}
		return "array_" + arr[0].TypeTag()
	case KindJSON:
		return "json"
	case KindUUID:
		return "uuid"
	case KindTime:
		return "time"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindFloat:
		return "float"
	case KindBytes:
		return "bytes"
	case KindNumeric:
		return "decimal"
	default:
		return "null"
	}
}

// String renders v for logs.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindBoolean:
		return strconv.FormatBool(v.v.(bool))
	case KindString, KindEnum, KindXML:
		return strconv.Quote(v.v.(string))
	case KindEnumArray:
		names := v.v.([]string)
		parts := make([]string, len(names))
		for i, n := range names {
			parts[i] = strconv.Quote(n)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindInt:
		return strconv.FormatInt(v.v.(int64), 10)
	case KindArray:
		arr := v.v.([]Value)
		parts := make([]string, len(arr))
		for i, e := range arr {
			parts[i] = e.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindJSON:
		b, err := json.Marshal(v.v)
		if err != nil {
			return fmt.Sprintf("%v", v.v)
		}
		return string(b)
	case KindDateTime:
		return v.v.(time.Time).Format(DateTimeLayout)
	case KindFloat:
		return strconv.FormatFloat(v.v.(float64), 'g', -1, 64)
	case KindBytes:
		return fmt.Sprintf("\\x%x", v.v.([]byte))
	default:
		return fmt.Sprint(v.v)
	}
}

// MarshalJSON writes the untagged projection of v: numbers, strings, arrays
// and the JSON tree as-is; bytes in base64; uuid, decimal and temporal values
// as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	p, err := v.projection()
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

func (v Value) projection() (any, error) {
	switch v.kind {
	case KindArray:
		arr := v.v.([]Value)
		out := make([]any, len(arr))
		for i, e := range arr {
			p, err := e.projection()
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	case KindUUID:
		return v.v.(uuid.UUID).String(), nil
	case KindTime:
		return v.v.(civil.Time).String(), nil
	case KindDate:
		return v.v.(civil.Date).String(), nil
	case KindDateTime:
		return v.v.(time.Time).Format(DateTimeLayout), nil
	case KindFloat:
		f := v.v.(float64)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &ConversionError{From: "float", To: "json", Details: fmt.Sprintf("%v has no JSON representation", f)}
		}
		return f, nil
	case KindBytes:
		return base64.StdEncoding.EncodeToString(v.v.([]byte)), nil
	case KindNumeric:
		return v.v.(decimal.Decimal).String(), nil
	default:
		return v.Interface(), nil
	}
}

// Value implements driver.Valuer so Statement arguments can be handed to
// database/sql directly. Arrays are rendered as postgres array literals.
func (v Value) Value() (driver.Value, error) {
	switch v.kind {
	case KindNull:
		return nil, nil
	case KindDate:
		return v.v.(civil.Date).String(), nil
	case KindTime:
		return v.v.(civil.Time).String(), nil
	case KindUUID:
		return v.v.(uuid.UUID).String(), nil
	case KindNumeric:
		return v.v.(decimal.Decimal).String(), nil
	case KindJSON:
		b, err := json.Marshal(v.v)
		if err != nil {
			return nil, &ConversionError{From: "json", To: "driver value", Details: err.Error()}
		}
		return string(b), nil
	case KindEnumArray:
		names := v.v.([]string)
		if len(names) == 0 {
			return "{}", nil
		}
		return pq.StringArray(names).Value()
	case KindArray:
		arr := v.v.([]Value)
		if len(arr) == 0 {
			return "{}", nil
		}
		for _, e := range arr {
			if e.kind == KindArray || e.kind == KindEnumArray {
				return nil, &ConversionError{From: "array", To: "driver value", Details: "multidimensional array parameters are not supported"}
			}
		}
		return pq.GenericArray{A: arr}.Value()
	case KindBytes:
		return bytes.Clone(v.v.([]byte)), nil
	default:
		return v.v, nil
	}
}
