package sqlbridge

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Enumerator is implemented by enumeration types bound as parameters.
//
// EnumValue is the member's declared value. A textual value is sent as the
// enum label; a numeric value is replaced by EnumName. Any other value is
// rejected.
type Enumerator interface {
	EnumName() string
	EnumValue() any
}

// XMLText marks a string parameter as an XML document.
type XMLText string

// jsonParam is a wrapper to force JSON binding semantics.
type jsonParam struct {
	v any
}

// AsJSON wraps v so it is bound as a JSON document, whatever its Go type.
// Slices are otherwise bound as arrays and structs are otherwise rejected.
func AsJSON(v any) any {
	return jsonParam{v: v}
}

// ParamKind is the classifier's verdict for one parameter: the Value kind
// the parameter converts to, or an unsupported verdict carrying the
// offending type, the expected category and the reason.
type ParamKind struct {
	Kind        Kind
	Unsupported bool
	TypeName    string
	Expected    string
	Reason      string
}

func kindOf(k Kind) ParamKind {
	return ParamKind{Kind: k}
}

func unsupported(typeName, expected, reason string) ParamKind {
	return ParamKind{Unsupported: true, TypeName: typeName, Expected: expected, Reason: reason}
}

// String returns the kind name, or a description of the rejection.
func (k ParamKind) String() string {
	if k.Unsupported {
		return fmt.Sprintf("Unsupported(%s: %s)", k.TypeName, k.Reason)
	}
	return k.Kind.String()
}

// err converts an unsupported verdict into a ClassificationError.
func (k ParamKind) err() *ClassificationError {
	return &ClassificationError{From: k.TypeName, To: k.Expected, Details: k.Reason}
}

const expectedScalar = "bool|string|int|float|bytes|time|date|datetime|uuid|decimal|enum|json|array"

var enumeratorIface = reflect.TypeOf((*Enumerator)(nil)).Elem()

// typeName returns the Go type name used in classification errors.
func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

// Classify inspects the dynamic type of v and reports which conversion rule
// applies when binding it for dialect d. It never fails: parameters without a
// rule get an unsupported verdict, which Encode turns into a
// ClassificationError.
func Classify(v any, d Dialect) ParamKind {
	if isNilPointer(v) {
		return kindOf(KindNull)
	}
	switch x := v.(type) {
	case nil:
		return kindOf(KindNull)
	case Value:
		if (x.kind == KindArray || x.kind == KindEnumArray) && !d.SupportsArrays() {
			return unsupported(x.kind.String(), "array", arraysReason(d))
		}
		return kindOf(x.kind)
	case Enumerator:
		return kindOf(KindEnum)
	case XMLText:
		return kindOf(KindXML)
	case jsonParam, json.RawMessage:
		return kindOf(KindJSON)
	case bool:
		return kindOf(KindBoolean)
	case string:
		return kindOf(KindString)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return kindOf(KindInt)
	case float32, float64:
		return kindOf(KindFloat)
	case []byte:
		return kindOf(KindBytes)
	case time.Time, civil.DateTime:
		return kindOf(KindDateTime)
	case civil.Date:
		return kindOf(KindDate)
	case civil.Time:
		return kindOf(KindTime)
	case uuid.UUID:
		return kindOf(KindUUID)
	case decimal.Decimal, json.Number:
		return kindOf(KindNumeric)
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return unsupported(typeName(v), expectedScalar, "driver.Valuer failed: "+err.Error())
		}
		return Classify(dv, d)
	}
	return classifyReflect(reflect.ValueOf(v), d)
}

// classifyReflect handles named types, pointers, maps and slices.
func classifyReflect(rv reflect.Value, d Dialect) ParamKind {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return kindOf(KindNull)
		}
		return Classify(rv.Elem().Interface(), d)
	case reflect.Bool:
		return kindOf(KindBoolean)
	case reflect.String:
		return kindOf(KindString)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return kindOf(KindInt)
	case reflect.Float32, reflect.Float64:
		return kindOf(KindFloat)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return kindOf(KindJSON)
		}
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return kindOf(KindBytes)
		}
		return classifyTuple(rv, d)
	}
	return unsupported(rv.Type().String(), expectedScalar, "unsupported type")
}

// classifyTuple applies the array rules: arrays exist only on dialects with
// native array columns, every element must share one dynamic type, and an
// array made only of enumerators becomes an EnumArray.
func classifyTuple(rv reflect.Value, d Dialect) ParamKind {
	if !d.SupportsArrays() {
		return unsupported(rv.Type().String(), "array", arraysReason(d))
	}
	if rv.Len() == 0 {
		return kindOf(KindArray)
	}
	first := elemTypeName(rv.Index(0))
	for i := 1; i < rv.Len(); i++ {
		if t := elemTypeName(rv.Index(i)); t != first {
			return unsupported(first, "array", fmt.Sprintf(
				"the array must have the same type, the first item is a %s and the item at position %d is a %s",
				first, i, t))
		}
	}
	if isEnumerator(rv.Index(0)) {
		return kindOf(KindEnumArray)
	}
	return kindOf(KindArray)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// elemTypeName returns the dynamic type name of a slice element, looking
// through interface elements.
func elemTypeName(ev reflect.Value) string {
	if ev.Kind() == reflect.Interface {
		if ev.IsNil() {
			return "nil"
		}
		ev = ev.Elem()
	}
	return ev.Type().String()
}

func isEnumerator(ev reflect.Value) bool {
	if ev.Kind() == reflect.Interface {
		if ev.IsNil() {
			return false
		}
		ev = ev.Elem()
	}
	return ev.Type().Implements(enumeratorIface)
}

func arraysReason(d Dialect) string {
	return fmt.Sprintf("arrays are only supported by %s, not %s", Postgres, d)
}
