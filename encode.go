package sqlbridge

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"reflect"
	"slices"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Encode converts v into a Value following the verdict k produced by
// Classify for the same dialect. An unsupported verdict, or a value that does
// not match k, yields a *ClassificationError.
func Encode(v any, k ParamKind, d Dialect) (Value, error) {
	if k.Unsupported {
		return Value{}, k.err()
	}
	v = resolve(v)
	if x, ok := v.(Value); ok {
		return x, nil
	}

	switch k.Kind {
	case KindNull:
		return Null(), nil
	case KindEnum:
		if e, ok := v.(Enumerator); ok {
			name, err := enumLabel(e)
			if err != nil {
				return Value{}, err
			}
			return Enum(name), nil
		}
	case KindEnumArray:
		return encodeEnumArray(v)
	case KindArray:
		return encodeArray(v, d)
	case KindJSON:
		tree, err := jsonDocument(v)
		if err != nil {
			return Value{}, err
		}
		return JSON(tree), nil
	case KindDateTime:
		switch x := v.(type) {
		case time.Time:
			return DateTime(x), nil
		case civil.DateTime:
			return DateTime(x.In(time.UTC)), nil
		}
	case KindDate:
		if x, ok := v.(civil.Date); ok {
			return Date(x), nil
		}
	case KindTime:
		if x, ok := v.(civil.Time); ok {
			return Time(x), nil
		}
	case KindUUID:
		if x, ok := v.(uuid.UUID); ok {
			return UUID(x), nil
		}
	case KindNumeric:
		switch x := v.(type) {
		case decimal.Decimal:
			return Numeric(x), nil
		case json.Number:
			dec, err := decimal.NewFromString(x.String())
			if err != nil {
				return Value{}, &ClassificationError{From: "json.Number", To: "decimal", Details: err.Error()}
			}
			return Numeric(dec), nil
		}
	default:
		return encodeBasic(v, k.Kind)
	}
	return Value{}, mismatch(v, k.Kind)
}

// ValueOf classifies and encodes v in one step.
func ValueOf(v any, d Dialect) (Value, error) {
	return Encode(v, Classify(v, d), d)
}

// EncodeParams encodes every entry of params. Keys are visited in sorted
// order so the reported failure is deterministic; the failing key is
// attached to the returned error.
func EncodeParams(params map[string]any, d Dialect) (map[string]Value, error) {
	out := make(map[string]Value, len(params))
	for _, key := range slices.Sorted(maps.Keys(params)) {
		v, err := ValueOf(params[key], d)
		if err != nil {
			var ce *ClassificationError
			if errors.As(err, &ce) {
				return nil, ce.withField(key)
			}
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidParam, key, err)
		}
		out[key] = v
	}
	return out, nil
}

// encodeBasic handles kinds whose host values may be named types.
func encodeBasic(v any, k Kind) (Value, error) {
	rv := reflect.ValueOf(v)
	switch k {
	case KindBoolean:
		if rv.Kind() == reflect.Bool {
			return Bool(rv.Bool()), nil
		}
	case KindString:
		if rv.Kind() == reflect.String {
			return String(rv.String()), nil
		}
	case KindXML:
		if rv.Kind() == reflect.String {
			return XML(rv.String()), nil
		}
	case KindInt:
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return Int(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			u := rv.Uint()
			if u > math.MaxInt64 {
				return Value{}, &ClassificationError{
					From:    typeName(v),
					To:      "int",
					Details: fmt.Sprintf("%d overflows a 64-bit signed integer", u),
				}
			}
			return Int(int64(u)), nil
		}
	case KindFloat:
		switch rv.Kind() {
		case reflect.Float32:
			return Float(widenFloat32(float32(rv.Float()))), nil
		case reflect.Float64:
			return Float(rv.Float()), nil
		}
	case KindBytes:
		if b, ok := v.([]byte); ok {
			return Bytes(b), nil
		}
		if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() == reflect.Uint8 {
			return Value{kind: KindBytes, v: byteCopy(rv)}, nil
		}
	}
	return Value{}, mismatch(v, k)
}

func encodeArray(v any, d Dialect) (Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return Value{}, mismatch(v, KindArray)
	}
	out := make([]Value, rv.Len())
	for i := range out {
		elem := rv.Index(i).Interface()
		ev, err := Encode(elem, Classify(elem, d), d)
		if err != nil {
			var ce *ClassificationError
			if errors.As(err, &ce) {
				c := *ce
				c.Details = fmt.Sprintf("array item %d: %s", i, ce.Details)
				return Value{}, &c
			}
			return Value{}, err
		}
		out[i] = ev
	}
	return Value{kind: KindArray, v: out}, nil
}

func encodeEnumArray(v any) (Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return Value{}, mismatch(v, KindEnumArray)
	}
	names := make([]string, rv.Len())
	for i := range names {
		e, ok := rv.Index(i).Interface().(Enumerator)
		if !ok {
			return Value{}, mismatch(rv.Index(i).Interface(), KindEnum)
		}
		name, err := enumLabel(e)
		if err != nil {
			return Value{}, err
		}
		names[i] = name
	}
	return Value{kind: KindEnumArray, v: names}, nil
}

// enumLabel returns the label sent for an enum member: its declared value
// when textual, its name when numeric.
func enumLabel(e Enumerator) (string, error) {
	ev := e.EnumValue()
	rv := reflect.ValueOf(ev)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return e.EnumName(), nil
	}
	return "", &ClassificationError{
		From:    "enum",
		To:      "string",
		Details: fmt.Sprintf("enum member %s has a %s value, expected a string or a number", e.EnumName(), typeName(ev)),
	}
}

// resolve strips the wrappers Classify looks through: non-nil pointers and
// foreign driver.Valuer implementations. Types with a rule of their own are
// returned unchanged.
func resolve(v any) any {
	for {
		if isNilPointer(v) {
			return nil
		}
		switch x := v.(type) {
		case nil, Value, Enumerator, XMLText, jsonParam, json.RawMessage,
			bool, string, int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64, float32, float64, []byte,
			time.Time, civil.Date, civil.Time, civil.DateTime,
			uuid.UUID, decimal.Decimal, json.Number:
			return v
		case driver.Valuer:
			dv, err := x.Value()
			if err != nil {
				return v
			}
			v = dv
			continue
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
			v = rv.Elem().Interface()
			continue
		}
		return v
	}
}

func mismatch(v any, k Kind) *ClassificationError {
	return &ClassificationError{From: typeName(v), To: k.String(), Details: "value does not match its classification"}
}

// widenFloat32 converts through the shortest decimal form, so 0.1f becomes
// 0.1 rather than 0.10000000149011612.
func widenFloat32(f float32) float64 {
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return float64(f)
	}
	w, err := strconv.ParseFloat(strconv.FormatFloat(float64(f), 'g', -1, 32), 64)
	if err != nil {
		return float64(f)
	}
	return w
}

func byteCopy(rv reflect.Value) []byte {
	b := make([]byte, rv.Len())
	for i := range b {
		b[i] = byte(rv.Index(i).Uint())
	}
	return b
}
