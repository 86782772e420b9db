package sqlbridge

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

func mustDecode(t *testing.T, c Cell) Value {
	t.Helper()
	v, err := Decode(c)
	assertNoError(t, err)
	return v
}

func TestDecode_RoundTrip(t *testing.T) {
	samples := sampleValues()
	samples["nested array"] = Array(Array(Int(1), Null()), Array(Int(3), Int(4)))
	samples["text array"] = Array(String("a"), Null())
	samples["empty array"] = Array()
	samples["json scalar"] = JSON("just a string")
	samples["json null"] = JSON(nil)
	samples["empty bytes"] = Bytes([]byte{})

	for name, v := range samples {
		t.Run(name, func(t *testing.T) {
			got := mustDecode(t, v.Cell())
			if !got.Equal(v) {
				t.Fatalf("Decode(%s.Cell()) = %s (%s), want %s (%s)", name, got, got.Kind(), v, v.Kind())
			}
		})
	}
}

func TestDecode_NilIsNullForEveryKind(t *testing.T) {
	for k := ColumnUnknown; k <= ColumnDateTime; k++ {
		if v := mustDecode(t, Cell{Kind: k}); !v.IsNull() {
			t.Fatalf("%s: nil decoded to %s", k, v)
		}
	}
}

func TestDecode_Numbers(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		want Value
	}{
		{"int from text", Cell{Kind: ColumnInt32, Value: []byte(" 42 ")}, Int(42)},
		{"zero padded int", Cell{Kind: ColumnInt32, Value: []byte("0010")}, Int(10)},
		{"zero padded negative", Cell{Kind: ColumnInt64, Value: "-007"}, Int(-7)},
		{"int from float at lower bound", Cell{Kind: ColumnInt64, Value: -0x1p63}, Int(math.MinInt64)},
		{"int from whole float", Cell{Kind: ColumnInt64, Value: float64(7)}, Int(7)},
		{"int from int32", Cell{Kind: ColumnInt32, Value: int32(-3)}, Int(-3)},
		{"float4 widened", Cell{Kind: ColumnFloat, Value: float32(0.1)}, Float(0.1)},
		{"double from text", Cell{Kind: ColumnDouble, Value: "2.5"}, Float(2.5)},
		{"double from int", Cell{Kind: ColumnDouble, Value: int64(2)}, Float(2)},
		{"numeric from text", Cell{Kind: ColumnNumeric, Value: []byte("123456789012345678901234567890.12")},
			Numeric(decimal.RequireFromString("123456789012345678901234567890.12"))},
		{"numeric from float", Cell{Kind: ColumnNumeric, Value: 0.1}, Numeric(decimal.RequireFromString("0.1"))},
		{"numeric from int", Cell{Kind: ColumnNumeric, Value: int64(5)}, Numeric(decimal.NewFromInt(5))},
		{"bool from int", Cell{Kind: ColumnBoolean, Value: int64(1)}, Bool(true)},
		{"bool from text", Cell{Kind: ColumnBoolean, Value: []byte("f")}, Bool(false)},
		{"text from int", Cell{Kind: ColumnText, Value: int64(9)}, String("9")},
		{"char", Cell{Kind: ColumnChar, Value: []byte("ab")}, String("ab")},
		{"enum", Cell{Kind: ColumnEnum, Value: []byte("ON")}, Enum("ON")},
		{"xml", Cell{Kind: ColumnXML, Value: "<a/>"}, XML("<a/>")},
		{"bytes from text", Cell{Kind: ColumnBytes, Value: "ab"}, Bytes([]byte("ab"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustDecode(t, tt.cell); !got.Equal(tt.want) {
				t.Fatalf("Decode = %s (%s), want %s (%s)", got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

func TestDecode_ConversionErrors(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
	}{
		{"numeric nan", Cell{Kind: ColumnNumeric, Value: math.NaN()}},
		{"numeric inf", Cell{Kind: ColumnNumeric, Value: math.Inf(1)}},
		{"fractional int", Cell{Kind: ColumnInt64, Value: 1.5}},
		{"int text", Cell{Kind: ColumnInt64, Value: "abc"}},
		{"hex int text", Cell{Kind: ColumnInt32, Value: []byte("0x1F")}},
		{"float at 2^63", Cell{Kind: ColumnInt64, Value: float64(math.MaxInt64)}},
		{"float infinity", Cell{Kind: ColumnInt64, Value: math.Inf(-1)}},
		{"uint overflow", Cell{Kind: ColumnInt64, Value: uint64(math.MaxUint64)}},
		{"bad bool", Cell{Kind: ColumnBoolean, Value: "maybe"}},
		{"bad json", Cell{Kind: ColumnJSON, Value: "{"}},
		{"bad uuid", Cell{Kind: ColumnUUID, Value: "nope"}},
		{"bad date", Cell{Kind: ColumnDate, Value: "yesterday"}},
		{"time as datetime", Cell{Kind: ColumnDateTime, Value: civil.Time{Hour: 1}}},
		{"unknown type", Cell{Kind: ColumnUnknown, Value: struct{}{}}},
		{"enum array null", Cell{Kind: ColumnEnumArray, Value: "{A,NULL}"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.cell)
			var ce *ConversionError
			if !errors.As(err, &ce) || !errors.Is(err, ErrConversion) {
				t.Fatalf("expected ConversionError, got %v", err)
			}
		})
	}
}

func TestDecode_JSON(t *testing.T) {
	v := mustDecode(t, Cell{Kind: ColumnJSON, Value: []byte(`{"a":[1,2.50],"b":null}`)})
	tree, _ := v.AsJSON()
	m := tree.(map[string]any)
	if a := m["a"].([]any); a[0] != json.Number("1") || a[1] != json.Number("2.50") {
		t.Fatalf("a = %#v", a)
	}
	if _, ok := m["b"]; !ok || m["b"] != nil {
		t.Fatalf("b = %#v", m["b"])
	}

	v = mustDecode(t, Cell{Kind: ColumnJSON, Value: map[string]any{"k": 1}})
	if v.String() != `{"k":1}` {
		t.Fatalf("map payload = %s", v)
	}
}

func TestDecode_UUID(t *testing.T) {
	raw := testUUID[:]
	tests := []struct {
		name string
		in   any
	}{
		{"uuid", testUUID},
		{"text", testUUID.String()},
		{"text bytes", []byte(testUUID.String())},
		{"raw bytes", append([]byte(nil), raw...)},
		{"array", [16]byte(testUUID)},
	}
	for _, tt := range tests {
		if got := mustDecode(t, Cell{Kind: ColumnUUID, Value: tt.in}); !got.Equal(UUID(testUUID)) {
			t.Fatalf("%s: got %s", tt.name, got)
		}
	}
}

func TestDecode_SQLServerUUIDByteOrder(t *testing.T) {
	// UNIQUEIDENTIFIER stores the first three groups little-endian
	wire := []byte{
		0x10, 0xb8, 0xa7, 0x6b,
		0xad, 0x9d,
		0xd1, 0x11,
		0x80, 0xb4, 0x00, 0xc0, 0x4f, 0xd4, 0x30, 0xc8,
	}
	u, err := sqlServerUUID(wire)
	assertNoError(t, err)
	if got := mustDecode(t, Cell{Kind: ColumnUUID, Value: u}); !got.Equal(UUID(testUUID)) {
		t.Fatalf("got %s, want %s", got, testUUID)
	}

	fixed := driverCell(SQLServer, ColumnUUID, wire)
	if _, ok := fixed.(mssql.UniqueIdentifier); !ok {
		t.Fatalf("driverCell did not reorder: %T", fixed)
	}
	if same := driverCell(Postgres, ColumnUUID, wire); !isSameBytes(same, wire) {
		t.Fatalf("postgres bytes must pass through")
	}
}

func isSameBytes(v any, b []byte) bool {
	got, ok := v.([]byte)
	return ok && string(got) == string(b)
}

func TestDecode_Temporal(t *testing.T) {
	plus2 := time.FixedZone("", 2*3600)
	tests := []struct {
		name string
		cell Cell
		want Value
	}{
		{"datetime rfc3339", Cell{Kind: ColumnDateTime, Value: "2024-03-01T10:30:00.0000005+02:00"},
			DateTime(time.Date(2024, 3, 1, 10, 30, 0, 500, plus2))},
		{"postgres timestamptz text", Cell{Kind: ColumnDateTime, Value: []byte("2024-03-01 10:30:00+02")},
			DateTime(time.Date(2024, 3, 1, 10, 30, 0, 0, plus2))},
		{"naive text is utc", Cell{Kind: ColumnDateTime, Value: "2024-03-01 10:30:00.25"},
			DateTime(time.Date(2024, 3, 1, 10, 30, 0, 250000000, time.UTC))},
		{"sqlite epoch", Cell{Kind: ColumnDateTime, Value: int64(0)},
			DateTime(time.Unix(0, 0).UTC())},
		{"date text", Cell{Kind: ColumnDate, Value: "2024-02-29"}, Date(testDate)},
		{"date from time", Cell{Kind: ColumnDate, Value: time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)}, Date(testDate)},
		{"time text", Cell{Kind: ColumnTime, Value: []byte("13:45:07.12")}, Time(testTime)},
		{"time from timestamp", Cell{Kind: ColumnTime, Value: time.Date(0, 1, 1, 13, 45, 7, 120000000, time.UTC)}, Time(testTime)},
		{"civil datetime", Cell{Kind: ColumnDateTime, Value: civil.DateTime{Date: testDate}},
			DateTime(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustDecode(t, tt.cell); !got.Equal(tt.want) {
				t.Fatalf("Decode = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDecode_PostgresArrayText(t *testing.T) {
	tests := []struct {
		name string
		cell Cell
		want Value
	}{
		{"ints", Cell{Kind: ColumnArray, Elem: ColumnInt32, Value: []byte("{1,2,NULL}")},
			Array(Int(1), Int(2), Null())},
		{"quoted text", Cell{Kind: ColumnArray, Elem: ColumnText, Value: []byte(`{"a,b","c\"d",plain}`)},
			Array(String("a,b"), String(`c"d`), String("plain"))},
		{"empty", Cell{Kind: ColumnArray, Elem: ColumnInt64, Value: "{}"}, Array()},
		{"two dimensions", Cell{Kind: ColumnArray, Elem: ColumnInt32, Value: "{{1,2},{3,4}}"},
			Array(Array(Int(1), Int(2)), Array(Int(3), Int(4)))},
		{"two dimensions text with braces", Cell{Kind: ColumnArray, Elem: ColumnText, Value: `{{"{x}",y},{"}",NULL}}`},
			Array(Array(String("{x}"), String("y")), Array(String("}"), Null()))},
		{"bytea", Cell{Kind: ColumnArray, Elem: ColumnBytes, Value: `{"\\x6869"}`},
			Array(Bytes([]byte("hi")))},
		{"dates", Cell{Kind: ColumnArray, Elem: ColumnDate, Value: "{2024-02-29}"},
			Array(Date(testDate))},
		{"numeric", Cell{Kind: ColumnArray, Elem: ColumnNumeric, Value: "{1.50,2}"},
			Array(Numeric(decimal.RequireFromString("1.5")), Numeric(decimal.NewFromInt(2)))},
		{"go slices keep nesting", Cell{Kind: ColumnArray, Elem: ColumnInt64, Value: []any{[]any{int64(1)}, []any{int64(2)}}},
			Array(Array(Int(1)), Array(Int(2)))},
		{"enum array text", Cell{Kind: ColumnEnumArray, Value: []byte("{A,B}")}, EnumArray("A", "B")},
		{"enum array pq", Cell{Kind: ColumnEnumArray, Value: pq.StringArray{"X"}}, EnumArray("X")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustDecode(t, tt.cell); !got.Equal(tt.want) {
				t.Fatalf("Decode = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSubArrays(t *testing.T) {
	parts, nested := subArrays(`{{1,2}, {"a}",3}}`)
	if !nested || len(parts) != 2 || parts[0] != "{1,2}" || parts[1] != `{"a}",3}` {
		t.Fatalf("subArrays = %q, %v", parts, nested)
	}
	if _, nested := subArrays("{1,2}"); nested {
		t.Fatalf("flat literal reported as nested")
	}
	if _, nested := subArrays("{}"); nested {
		t.Fatalf("empty literal reported as nested")
	}
}

type celsius float64

func TestDecode_UnknownKindByGoType(t *testing.T) {
	tests := []struct {
		in   any
		want Value
	}{
		{true, Bool(true)},
		{int64(3), Int(3)},
		{int32(3), Int(3)},
		{2.5, Float(2.5)},
		{"s", String("s")},
		{[]byte("b"), Bytes([]byte("b"))},
		{testUUID, UUID(testUUID)},
		{decimal.NewFromInt(1), Numeric(decimal.NewFromInt(1))},
		{testDT, DateTime(testDT)},
		{[]any{int64(1), "a"}, Array(Int(1), String("a"))},
		{time.Duration(5), Int(5)},
		{celsius(21.5), Float(21.5)},
		{color("red"), String("red")},
	}
	for _, tt := range tests {
		if got := mustDecode(t, Cell{Value: tt.in}); !got.Equal(tt.want) {
			t.Fatalf("Decode(%#v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestColumnKindOf(t *testing.T) {
	tests := []struct {
		d          Dialect
		name       string
		kind, elem ColumnKind
	}{
		{Postgres, "INT4", ColumnInt32, ColumnUnknown},
		{Postgres, "int8", ColumnInt64, ColumnUnknown},
		{Postgres, "_INT4", ColumnArray, ColumnInt32},
		{Postgres, "_TEXT", ColumnArray, ColumnText},
		{Postgres, "_BYTEA", ColumnArray, ColumnBytes},
		{Postgres, "MONEY", ColumnText, ColumnUnknown},
		{Postgres, "JSONB", ColumnJSON, ColumnUnknown},
		{Postgres, "TIMESTAMPTZ", ColumnDateTime, ColumnUnknown},
		{Postgres, "my_enum_type", ColumnUnknown, ColumnUnknown},
		{MySQL, "VARCHAR(255)", ColumnText, ColumnUnknown},
		{MySQL, "UNSIGNED BIGINT", ColumnInt64, ColumnUnknown},
		{MySQL, "FLOAT", ColumnFloat, ColumnUnknown},
		{MySQL, "DECIMAL", ColumnNumeric, ColumnUnknown},
		{MySQL, "_INT4", ColumnUnknown, ColumnUnknown},
		{SQLite, "REAL", ColumnDouble, ColumnUnknown},
		{SQLite, "", ColumnUnknown, ColumnUnknown},
		{SQLServer, "BIT", ColumnBoolean, ColumnUnknown},
		{SQLServer, "UNIQUEIDENTIFIER", ColumnUUID, ColumnUnknown},
		{SQLServer, "DATETIMEOFFSET", ColumnDateTime, ColumnUnknown},
		{SQLServer, "NVARCHAR", ColumnText, ColumnUnknown},
	}
	for _, tt := range tests {
		kind, elem := ColumnKindOf(tt.d, tt.name)
		if kind != tt.kind || elem != tt.elem {
			t.Fatalf("ColumnKindOf(%s, %q) = (%s, %s), want (%s, %s)", tt.d, tt.name, kind, elem, tt.kind, tt.elem)
		}
	}
}
