package sqlbridge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// jsonDocument converts a Json-classified parameter into a canonical tree.
// Structs are accepted only at the top of an AsJSON wrapper, where they go
// through encoding/json and their json tags.
func jsonDocument(v any) (any, error) {
	if p, ok := v.(jsonParam); ok {
		inner := resolve(p.v)
		if inner != nil && reflect.TypeOf(inner).Kind() == reflect.Struct && !isJSONLeaf(inner) {
			data, err := json.Marshal(inner)
			if err != nil {
				return nil, &ClassificationError{From: typeName(inner), To: "json", Details: err.Error()}
			}
			return decodeJSONTree(data)
		}
		return jsonTree(inner)
	}
	return jsonTree(v)
}

func isJSONLeaf(v any) bool {
	switch v.(type) {
	case Value, time.Time, civil.Date, civil.Time, civil.DateTime, uuid.UUID, decimal.Decimal:
		return true
	}
	return false
}

// jsonTree walks maps, slices and scalars, projecting every leaf onto the
// canonical JSON tree.
func jsonTree(v any) (any, error) {
	v = resolve(v)
	switch x := v.(type) {
	case nil:
		return nil, nil
	case Value:
		if x.kind == KindJSON {
			return x.v, nil
		}
		p, err := x.projection()
		if err != nil {
			return nil, err
		}
		return jsonTree(p)
	case jsonParam:
		return jsonDocument(x)
	case json.RawMessage:
		tree, err := decodeJSONTree(x)
		if err != nil {
			return nil, &ClassificationError{From: "json.RawMessage", To: "json", Details: err.Error()}
		}
		return tree, nil
	case json.Number:
		return x, nil
	case bool:
		return x, nil
	case string:
		return x, nil
	case Enumerator:
		return jsonTree(x.EnumValue())
	case time.Time:
		return x.Format(DateTimeLayout), nil
	case civil.Date:
		return x.String(), nil
	case civil.Time:
		return x.String(), nil
	case civil.DateTime:
		return x.In(time.UTC).Format(DateTimeLayout), nil
	case uuid.UUID:
		return x.String(), nil
	case []byte:
		return base64.StdEncoding.EncodeToString(x), nil
	case decimal.Decimal:
		return x.String(), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return json.Number(strconv.FormatInt(rv.Int(), 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return json.Number(strconv.FormatUint(rv.Uint(), 10)), nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &ClassificationError{From: typeName(v), To: "json", Details: fmt.Sprintf("%v has no JSON representation", f)}
		}
		bits := 64
		if rv.Kind() == reflect.Float32 {
			bits = 32
		}
		return json.Number(strconv.FormatFloat(f, 'g', -1, bits)), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			leaf, err := jsonTree(iter.Value().Interface())
			if err != nil {
				return nil, jsonPathErr(err, key)
			}
			out[key] = leaf
		}
		return out, nil
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return base64.StdEncoding.EncodeToString(byteCopy(rv)), nil
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, nil
		}
		out := make([]any, rv.Len())
		for i := range out {
			leaf, err := jsonTree(rv.Index(i).Interface())
			if err != nil {
				return nil, jsonPathErr(err, strconv.Itoa(i))
			}
			out[i] = leaf
		}
		return out, nil
	}
	return nil, &ClassificationError{From: typeName(v), To: "json", Details: "no JSON representation"}
}

// jsonPathErr prefixes the location of a failing leaf.
func jsonPathErr(err error, step string) error {
	ce, ok := err.(*ClassificationError)
	if !ok {
		return err
	}
	c := *ce
	if c.Details == "" {
		c.Details = "at " + step
	} else {
		c.Details = "at " + step + ": " + c.Details
	}
	return &c
}
