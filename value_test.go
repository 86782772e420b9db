package sqlbridge

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	testUUID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	testDate = civil.Date{Year: 2024, Month: time.February, Day: 29}
	testTime = civil.Time{Hour: 13, Minute: 45, Second: 7, Nanosecond: 120000000}
	testZone = time.FixedZone("", 2*3600)
	testDT   = time.Date(2024, time.March, 1, 10, 30, 0, 500, testZone)
)

// sampleValues holds one representative Value per variant.
func sampleValues() map[string]Value {
	tree, _ := ParseJSON([]byte(`{"a":[1,2.5,"x",null,true],"b":{"c":{}}}`))
	return map[string]Value{
		"null":       Null(),
		"bool":       Bool(true),
		"string":     String("héllo"),
		"enum":       Enum("ACTIVE"),
		"enum_array": EnumArray("A", "B"),
		"int":        Int(-42),
		"array":      Array(Int(1), Int(2)),
		"json":       tree,
		"xml":        XML("<a/>"),
		"uuid":       UUID(testUUID),
		"time":       Time(testTime),
		"date":       Date(testDate),
		"datetime":   DateTime(testDT),
		"float":      Float(1.25),
		"bytes":      Bytes([]byte{0, 1, 0xff}),
		"numeric":    Numeric(decimal.RequireFromString("12345.6789")),
	}
}

func TestValue_ZeroIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() || v.Kind() != KindNull || v.TypeTag() != "null" || v.Interface() != nil {
		t.Fatalf("zero Value is not Null: %v", v)
	}
}

func TestValue_TypeTags(t *testing.T) {
	want := map[string]string{
		"null":       "null",
		"bool":       "bool",
		"string":     "str",
		"enum":       "str",
		"enum_array": "array_str",
		"int":        "int",
		"array":      "array_int",
		"json":       "json",
		"xml":        "str",
		"uuid":       "uuid",
		"time":       "time",
		"date":       "date",
		"datetime":   "datetime",
		"float":      "float",
		"bytes":      "bytes",
		"numeric":    "decimal",
	}
	for name, v := range sampleValues() {
		if got := v.TypeTag(); got != want[name] {
			t.Fatalf("%s: TypeTag() = %q, want %q", name, got, want[name])
		}
	}
	if got := Array().TypeTag(); got != "array" {
		t.Fatalf("empty array tag = %q", got)
	}
	if got := EnumArray().TypeTag(); got != "array" {
		t.Fatalf("empty enum array tag = %q", got)
	}
}

func TestValue_Accessors(t *testing.T) {
	if s, ok := XML("<a/>").AsString(); !ok || s != "<a/>" {
		t.Fatalf("AsString on Xml = %q, %v", s, ok)
	}
	if _, ok := Int(1).AsString(); ok {
		t.Fatalf("AsString on Int must fail")
	}
	if _, ok := Float(1).AsInt(); ok {
		t.Fatalf("AsInt on Float must fail")
	}
	if d, ok := Date(testDate).AsDate(); !ok || d != testDate {
		t.Fatalf("AsDate = %v, %v", d, ok)
	}
	if n, ok := Numeric(decimal.NewFromInt(3)).AsNumeric(); !ok || !n.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("AsNumeric = %v, %v", n, ok)
	}
}

func TestValue_CopiesSlices(t *testing.T) {
	raw := []byte{1, 2, 3}
	v := Bytes(raw)
	raw[0] = 9
	got, _ := v.AsBytes()
	if got[0] != 1 {
		t.Fatalf("Bytes aliases its input")
	}
	got[1] = 9
	again, _ := v.AsBytes()
	if again[1] != 2 {
		t.Fatalf("AsBytes aliases the payload")
	}

	names := []string{"a"}
	e := EnumArray(names...)
	names[0] = "z"
	if got, _ := e.AsEnumArray(); got[0] != "a" {
		t.Fatalf("EnumArray aliases its input")
	}
}

func TestValue_Equal(t *testing.T) {
	samples := sampleValues()
	for name, v := range samples {
		if !v.Equal(v) {
			t.Fatalf("%s: value not equal to itself", name)
		}
	}

	utc := DateTime(testDT.UTC())
	if utc.Equal(DateTime(testDT)) {
		t.Fatalf("datetimes with different offsets must differ")
	}
	if !DateTime(testDT).Equal(DateTime(testDT.In(time.FixedZone("X", 7200)))) {
		t.Fatalf("same instant and offset must be equal")
	}
	if !Numeric(decimal.RequireFromString("1.50")).Equal(Numeric(decimal.RequireFromString("1.5"))) {
		t.Fatalf("numerics compare numerically")
	}
	if Int(1).Equal(Float(1)) {
		t.Fatalf("different kinds are never equal")
	}
	if !Float(math.NaN()).Equal(Float(math.NaN())) {
		t.Fatalf("NaN floats compare equal for structural equality")
	}
	if Enum("A").Equal(String("A")) {
		t.Fatalf("Enum and String are distinct variants")
	}
}

func TestValue_String(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Null(), "NULL"},
		{String(`a"b`), `"a\"b"`},
		{Int(7), "7"},
		{Float(0.1), "0.1"},
		{Array(Int(1), String("x")), `[1, "x"]`},
		{EnumArray("A"), `["A"]`},
		{Bytes([]byte{0xde, 0xad}), `\xdead`},
		{Date(testDate), "2024-02-29"},
		{DateTime(testDT), "2024-03-01T10:30:00.0000005+02:00"},
	}
	for _, tt := range tests {
		if got := tt.v.String(); got != tt.want {
			t.Fatalf("%s.String() = %q, want %q", tt.v.Kind(), got, tt.want)
		}
	}
}

func TestValue_MarshalJSON(t *testing.T) {
	row := map[string]Value{
		"b":  Bytes([]byte("hi")),
		"d":  Date(testDate),
		"dt": DateTime(testDT),
		"j":  JSON(map[string]any{"k": json.Number("1.0")}),
		"n":  Numeric(decimal.RequireFromString("0.10")),
		"t":  Time(testTime),
		"u":  UUID(testUUID),
		"z":  Null(),
		"a":  Array(Date(testDate), Null()),
	}
	data, err := json.Marshal(row)
	assertNoError(t, err)
	want := `{"a":["2024-02-29",null],"b":"aGk=","d":"2024-02-29","dt":"2024-03-01T10:30:00.0000005+02:00",` +
		`"j":{"k":1.0},"n":"0.1","t":"13:45:07.120000000","u":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","z":null}`
	if string(data) != want {
		t.Fatalf("MarshalJSON =\n%s\nwant\n%s", data, want)
	}

	_, err = json.Marshal(Float(math.Inf(1)))
	var ce *ConversionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConversionError for +Inf, got %v", err)
	}
}

func TestValue_DriverValue(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want any
	}{
		{"null", Null(), nil},
		{"int", Int(3), int64(3)},
		{"uuid", UUID(testUUID), testUUID.String()},
		{"date", Date(testDate), "2024-02-29"},
		{"time", Time(testTime), "13:45:07.120000000"},
		{"numeric", Numeric(decimal.RequireFromString("1.5")), "1.5"},
		{"json", JSON(map[string]any{"a": []any{json.Number("1")}}), `{"a":[1]}`},
		{"enum array", EnumArray("a", "b c"), `{"a","b c"}`},
		{"empty array", Array(), "{}"},
		{"int array", Array(Int(1), Null(), Int(3)), "{1,NULL,3}"},
		{"text array", Array(String("x"), String("y,z")), `{"x","y,z"}`},
	}
	for _, tt := range tests {
		got, err := tt.v.Value()
		assertNoError(t, err)
		if got != tt.want {
			t.Fatalf("%s: Value() = %#v, want %#v", tt.name, got, tt.want)
		}
	}

	if _, err := Array(Array(Int(1))).Value(); !errors.Is(err, ErrConversion) {
		t.Fatalf("nested array parameters must be rejected, got %v", err)
	}
}

func TestValue_Interface(t *testing.T) {
	arr, ok := Array(Int(1), String("a")).Interface().([]any)
	if !ok || len(arr) != 2 || arr[0] != int64(1) || arr[1] != "a" {
		t.Fatalf("Array.Interface() = %#v", arr)
	}
	if got := Enum("X").Interface(); got != "X" {
		t.Fatalf("Enum.Interface() = %#v", got)
	}
	row := Row{"a": Int(1), "b": Null()}
	m := row.Interface()
	if m["a"] != int64(1) || m["b"] != nil {
		t.Fatalf("Row.Interface() = %#v", m)
	}
}

func TestParseJSON_UsesNumbers(t *testing.T) {
	v, err := ParseJSON([]byte(`{"big":12345678901234567890}`))
	assertNoError(t, err)
	tree, _ := v.AsJSON()
	if n := tree.(map[string]any)["big"]; n != json.Number("12345678901234567890") {
		t.Fatalf("big = %#v", n)
	}
	if _, err := ParseJSON([]byte(`{`)); err == nil {
		t.Fatalf("expected a syntax error")
	}
}

func TestKindString(t *testing.T) {
	if KindJSON.String() != "Json" || KindNull.String() != "Null" || Kind(200).String() != "Unknown" {
		t.Fatalf("unexpected kind names")
	}
}
