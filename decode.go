package sqlbridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ColumnKind is the declared type of a result column, as far as decoding is
// concerned.
type ColumnKind uint8

const (
	ColumnUnknown ColumnKind = iota
	ColumnInt32
	ColumnInt64
	ColumnFloat
	ColumnDouble
	ColumnNumeric
	ColumnText
	ColumnChar
	ColumnEnum
	ColumnEnumArray
	ColumnBytes
	ColumnBoolean
	ColumnArray
	ColumnJSON
	ColumnXML
	ColumnUUID
	ColumnTime
	ColumnDate
	ColumnDateTime
)

var columnKindNames = [...]string{
	ColumnUnknown:   "unknown",
	ColumnInt32:     "int32",
	ColumnInt64:     "int64",
	ColumnFloat:     "float",
	ColumnDouble:    "double",
	ColumnNumeric:   "numeric",
	ColumnText:      "text",
	ColumnChar:      "char",
	ColumnEnum:      "enum",
	ColumnEnumArray: "enum array",
	ColumnBytes:     "bytes",
	ColumnBoolean:   "boolean",
	ColumnArray:     "array",
	ColumnJSON:      "json",
	ColumnXML:       "xml",
	ColumnUUID:      "uuid",
	ColumnTime:      "time",
	ColumnDate:      "date",
	ColumnDateTime:  "datetime",
}

func (k ColumnKind) String() string {
	if int(k) < len(columnKindNames) {
		return columnKindNames[k]
	}
	return "unknown"
}

// Cell is one driver value together with the declared type of its column.
// Elem is the element type of Array columns.
type Cell struct {
	Kind  ColumnKind
	Elem  ColumnKind
	Value any
}

// Decode converts a driver cell into a Value. A nil payload is Null whatever
// the column type; a payload that cannot represent the declared type
// losslessly yields a *ConversionError.
func Decode(c Cell) (Value, error) {
	if c.Value == nil {
		return Null(), nil
	}
	switch c.Kind {
	case ColumnInt32, ColumnInt64:
		return decodeInt(c.Value, c.Kind)
	case ColumnFloat:
		return decodeFloat(c.Value, c.Kind)
	case ColumnDouble:
		return decodeFloat(c.Value, c.Kind)
	case ColumnNumeric:
		return decodeNumeric(c.Value)
	case ColumnText, ColumnChar:
		s, err := decodeText(c.Value, c.Kind)
		return String(s), err
	case ColumnXML:
		s, err := decodeText(c.Value, c.Kind)
		return XML(s), err
	case ColumnEnum:
		s, err := decodeText(c.Value, c.Kind)
		return Enum(s), err
	case ColumnEnumArray:
		return decodeEnumArray(c.Value)
	case ColumnArray:
		return decodeArray(c.Value, c.Elem)
	case ColumnBytes:
		return decodeBytes(c.Value)
	case ColumnBoolean:
		return decodeBool(c.Value)
	case ColumnJSON:
		return decodeJSON(c.Value)
	case ColumnUUID:
		return decodeUUID(c.Value)
	case ColumnTime, ColumnDate, ColumnDateTime:
		return decodeTemporal(c.Value, c.Kind)
	default:
		return decodeDynamic(c.Value)
	}
}

// textOf returns the text of string and []byte payloads.
func textOf(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}

func decodeInt(v any, k ColumnKind) (Value, error) {
	switch x := v.(type) {
	case int64:
		return Int(x), nil
	case bool:
		return Value{}, conversionErr(v, k, "boolean is not an integer")
	case float64:
		if x != math.Trunc(x) || x >= 0x1p63 || x < -0x1p63 {
			return Value{}, conversionErr(v, k, fmt.Sprintf("%v is not a whole 64-bit number", x))
		}
		return Int(int64(x)), nil
	}
	if s, ok := textOf(v); ok {
		// decimal only: a leading zero is padding, not an octal prefix
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Value{}, conversionErr(v, k, err.Error())
		}
		return Int(i), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if rv.Uint() > math.MaxInt64 {
			return Value{}, conversionErr(v, k, fmt.Sprintf("%d overflows a 64-bit signed integer", rv.Uint()))
		}
		return Int(int64(rv.Uint())), nil
	}
	return Value{}, conversionErr(v, k, "")
}

func decodeFloat(v any, k ColumnKind) (Value, error) {
	switch x := v.(type) {
	case float64:
		return Float(x), nil
	case float32:
		return Float(widenFloat32(x)), nil
	case int64:
		return Float(float64(x)), nil
	case bool:
		return Value{}, conversionErr(v, k, "boolean is not a number")
	}
	if s, ok := textOf(v); ok {
		f, err := cast.ToFloat64E(strings.TrimSpace(s))
		if err != nil {
			return Value{}, conversionErr(v, k, err.Error())
		}
		return Float(f), nil
	}
	return Value{}, conversionErr(v, k, "")
}

func decodeNumeric(v any) (Value, error) {
	switch x := v.(type) {
	case decimal.Decimal:
		return Numeric(x), nil
	case int64:
		return Numeric(decimal.NewFromInt(x)), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return Value{}, conversionErr(v, ColumnNumeric, fmt.Sprintf("%v has no decimal representation", x))
		}
		return Numeric(decimal.NewFromFloat(x)), nil
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return Value{}, conversionErr(v, ColumnNumeric, fmt.Sprintf("%v has no decimal representation", x))
		}
		return Numeric(decimal.NewFromFloat32(x)), nil
	}
	if s, ok := textOf(v); ok {
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return Value{}, conversionErr(v, ColumnNumeric, err.Error())
		}
		return Numeric(d), nil
	}
	return Value{}, conversionErr(v, ColumnNumeric, "")
}

func decodeText(v any, k ColumnKind) (string, error) {
	if s, ok := textOf(v); ok {
		return s, nil
	}
	switch v.(type) {
	case int64, float64, bool:
		s, err := cast.ToStringE(v)
		if err != nil {
			return "", conversionErr(v, k, err.Error())
		}
		return s, nil
	}
	return "", conversionErr(v, k, "")
}

func decodeBytes(v any) (Value, error) {
	switch x := v.(type) {
	case []byte:
		return Bytes(x), nil
	case string:
		return Bytes([]byte(x)), nil
	}
	return Value{}, conversionErr(v, ColumnBytes, "")
}

func decodeBool(v any) (Value, error) {
	switch x := v.(type) {
	case bool:
		return Bool(x), nil
	case int64:
		return Bool(x != 0), nil
	}
	if s, ok := textOf(v); ok {
		b, err := cast.ToBoolE(strings.TrimSpace(s))
		if err != nil {
			return Value{}, conversionErr(v, ColumnBoolean, err.Error())
		}
		return Bool(b), nil
	}
	return Value{}, conversionErr(v, ColumnBoolean, "")
}

func decodeJSON(v any) (Value, error) {
	if s, ok := textOf(v); ok {
		tree, err := decodeJSONTree([]byte(s))
		if err != nil {
			return Value{}, conversionErr(v, ColumnJSON, err.Error())
		}
		return JSON(tree), nil
	}
	tree, err := jsonTree(v)
	if err != nil {
		return Value{}, conversionErr(v, ColumnJSON, err.Error())
	}
	return JSON(tree), nil
}

func decodeUUID(v any) (Value, error) {
	switch x := v.(type) {
	case uuid.UUID:
		return UUID(x), nil
	case mssql.UniqueIdentifier:
		return UUID(uuid.UUID(x)), nil
	case [16]byte:
		return UUID(uuid.UUID(x)), nil
	case []byte:
		if len(x) == 16 {
			u, err := uuid.FromBytes(x)
			if err != nil {
				return Value{}, conversionErr(v, ColumnUUID, err.Error())
			}
			return UUID(u), nil
		}
		u, err := uuid.ParseBytes(x)
		if err != nil {
			return Value{}, conversionErr(v, ColumnUUID, err.Error())
		}
		return UUID(u), nil
	case string:
		u, err := uuid.Parse(x)
		if err != nil {
			return Value{}, conversionErr(v, ColumnUUID, err.Error())
		}
		return UUID(u), nil
	}
	return Value{}, conversionErr(v, ColumnUUID, "")
}

// sqlServerUUID reorders the mixed-endian bytes of a UNIQUEIDENTIFIER.
func sqlServerUUID(b []byte) (mssql.UniqueIdentifier, error) {
	var u mssql.UniqueIdentifier
	err := u.Scan(b)
	return u, err
}

// dateTimeLayouts are tried in order when a temporal column arrives as text.
// Layouts without an offset are read as UTC.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func decodeTemporal(v any, k ColumnKind) (Value, error) {
	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case civil.DateTime:
		t = x.In(time.UTC)
	case civil.Date:
		if k == ColumnDate {
			return Date(x), nil
		}
		t = x.In(time.UTC)
	case civil.Time:
		if k == ColumnTime {
			return Time(x), nil
		}
		return Value{}, conversionErr(v, k, "a time of day has no date")
	case int64:
		t = time.Unix(x, 0).UTC()
	default:
		s, ok := textOf(v)
		if !ok {
			return Value{}, conversionErr(v, k, "")
		}
		switch k {
		case ColumnDate:
			if d, err := civil.ParseDate(strings.TrimSpace(s)); err == nil {
				return Date(d), nil
			}
		case ColumnTime:
			if tod, err := civil.ParseTime(strings.TrimSpace(s)); err == nil {
				return Time(tod), nil
			}
		}
		parsed, err := parseDateTime(s)
		if err != nil {
			return Value{}, conversionErr(v, k, err.Error())
		}
		t = parsed
	}

	switch k {
	case ColumnDate:
		return Date(civil.DateOf(t)), nil
	case ColumnTime:
		return Time(civil.TimeOf(t)), nil
	default:
		return DateTime(t), nil
	}
}

// decodeDynamic decodes a cell of unknown column type by its Go type.
func decodeDynamic(v any) (Value, error) {
	switch x := v.(type) {
	case bool:
		return Bool(x), nil
	case int64:
		return Int(x), nil
	case float64:
		return Float(x), nil
	case float32:
		return Float(widenFloat32(x)), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case time.Time:
		return DateTime(x), nil
	case civil.Date:
		return Date(x), nil
	case civil.Time:
		return Time(x), nil
	case civil.DateTime:
		return DateTime(x.In(time.UTC)), nil
	case uuid.UUID:
		return UUID(x), nil
	case mssql.UniqueIdentifier:
		return UUID(uuid.UUID(x)), nil
	case decimal.Decimal:
		return Numeric(x), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Uint,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return decodeInt(v, ColumnInt64)
	case reflect.Float32:
		return Float(widenFloat32(float32(rv.Float()))), nil
	case reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Map:
		return decodeJSON(v)
	case reflect.Slice, reflect.Array:
		return decodeArray(v, ColumnUnknown)
	}
	return Value{}, conversionErr(v, ColumnUnknown, "no decoding rule for this type")
}

// Cell returns the driver cell that decodes back to v.
func (v Value) Cell() Cell {
	switch v.kind {
	case KindBoolean:
		return Cell{Kind: ColumnBoolean, Value: v.v}
	case KindString:
		return Cell{Kind: ColumnText, Value: v.v}
	case KindEnum:
		return Cell{Kind: ColumnEnum, Value: v.v}
	case KindXML:
		return Cell{Kind: ColumnXML, Value: v.v}
	case KindEnumArray:
		return Cell{Kind: ColumnEnumArray, Value: slices.Clone(v.v.([]string))}
	case KindInt:
		return Cell{Kind: ColumnInt64, Value: v.v}
	case KindArray:
		arr := v.v.([]Value)
		return Cell{Kind: ColumnArray, Elem: leafKind(arr), Value: cellValues(arr)}
	case KindJSON:
		data, err := json.Marshal(v.v)
		if err != nil {
			return Cell{Kind: ColumnJSON}
		}
		return Cell{Kind: ColumnJSON, Value: string(data)}
	case KindUUID:
		return Cell{Kind: ColumnUUID, Value: v.v}
	case KindTime:
		return Cell{Kind: ColumnTime, Value: v.v}
	case KindDate:
		return Cell{Kind: ColumnDate, Value: v.v}
	case KindDateTime:
		return Cell{Kind: ColumnDateTime, Value: v.v}
	case KindFloat:
		return Cell{Kind: ColumnDouble, Value: v.v}
	case KindBytes:
		return Cell{Kind: ColumnBytes, Value: bytes.Clone(v.v.([]byte))}
	case KindNumeric:
		return Cell{Kind: ColumnNumeric, Value: v.v}
	default:
		return Cell{}
	}
}

var columnKinds = map[string]ColumnKind{
	"INT2": ColumnInt32, "INT4": ColumnInt32, "SMALLINT": ColumnInt32, "INT": ColumnInt32,
	"INTEGER": ColumnInt32, "MEDIUMINT": ColumnInt32, "TINYINT": ColumnInt32, "YEAR": ColumnInt32,
	"SERIAL": ColumnInt32,
	"INT8": ColumnInt64, "BIGINT": ColumnInt64, "BIGSERIAL": ColumnInt64, "OID": ColumnInt64,
	"FLOAT4": ColumnFloat, "REAL": ColumnFloat,
	"FLOAT8": ColumnDouble, "DOUBLE": ColumnDouble, "DOUBLE PRECISION": ColumnDouble, "FLOAT": ColumnDouble,
	"NUMERIC": ColumnNumeric, "DECIMAL": ColumnNumeric, "MONEY": ColumnNumeric, "SMALLMONEY": ColumnNumeric,
	"TEXT": ColumnText, "VARCHAR": ColumnText, "NVARCHAR": ColumnText, "NTEXT": ColumnText,
	"TINYTEXT": ColumnText, "MEDIUMTEXT": ColumnText, "LONGTEXT": ColumnText, "NAME": ColumnText,
	"CITEXT": ColumnText, "SET": ColumnText,
	"CHAR": ColumnChar, "BPCHAR": ColumnChar, "NCHAR": ColumnChar,
	"ENUM": ColumnEnum,
	"BYTEA": ColumnBytes, "BLOB": ColumnBytes, "BINARY": ColumnBytes, "VARBINARY": ColumnBytes,
	"TINYBLOB": ColumnBytes, "MEDIUMBLOB": ColumnBytes, "LONGBLOB": ColumnBytes, "IMAGE": ColumnBytes,
	"BIT": ColumnBytes,
	"BOOL": ColumnBoolean, "BOOLEAN": ColumnBoolean,
	"JSON": ColumnJSON, "JSONB": ColumnJSON,
	"XML": ColumnXML,
	"UUID": ColumnUUID, "UNIQUEIDENTIFIER": ColumnUUID,
	"TIME": ColumnTime, "TIMETZ": ColumnTime,
	"DATE": ColumnDate,
	"TIMESTAMP": ColumnDateTime, "TIMESTAMPTZ": ColumnDateTime, "DATETIME": ColumnDateTime,
	"DATETIME2": ColumnDateTime, "SMALLDATETIME": ColumnDateTime, "DATETIMEOFFSET": ColumnDateTime,
}

// dialectColumnKinds holds the names whose meaning differs between dialects.
var dialectColumnKinds = map[Dialect]map[string]ColumnKind{
	Postgres:  {"MONEY": ColumnText},
	MySQL:     {"FLOAT": ColumnFloat, "DOUBLE": ColumnDouble},
	SQLite:    {"REAL": ColumnDouble, "FLOAT": ColumnDouble},
	SQLServer: {"BIT": ColumnBoolean, "FLOAT": ColumnDouble, "REAL": ColumnFloat},
}

// ColumnKindOf maps a driver type name, as reported by
// sql.ColumnType.DatabaseTypeName, to a column kind. Postgres array types
// ("_INT4", "_TEXT", ...) map to ColumnArray with their element kind.
// Unknown names map to ColumnUnknown and decode by Go type.
func ColumnKindOf(d Dialect, dbType string) (kind, elem ColumnKind) {
	name := strings.ToUpper(strings.TrimSpace(dbType))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	name = strings.TrimPrefix(name, "UNSIGNED ")
	if d == Postgres && strings.HasPrefix(name, "_") {
		e, _ := ColumnKindOf(d, name[1:])
		return ColumnArray, e
	}
	if k, ok := dialectColumnKinds[d][name]; ok {
		return k, ColumnUnknown
	}
	return columnKinds[name], ColumnUnknown
}
