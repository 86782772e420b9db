package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// parseParams merges a JSON object and key=value pairs into one parameter
// map; pairs win. Values are JSON literals: integers become int64, other
// numbers float64, arrays []any and objects map[string]any. A value that is
// not valid JSON is taken as a plain string.
func parseParams(object string, pairs []string) (map[string]any, error) {
	params := make(map[string]any)
	if strings.TrimSpace(object) != "" {
		v, err := decodeLiteral(object)
		if err != nil {
			return nil, fmt.Errorf("--params: %w", err)
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("--params must be a JSON object, got %T", v)
		}
		for k, val := range m {
			params[k] = val
		}
	}
	for _, pair := range pairs {
		k, raw, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--param %q: expected key=value", pair)
		}
		v, err := decodeLiteral(raw)
		if err != nil {
			v = raw
		}
		params[k] = v
	}
	return params, nil
}

func decodeLiteral(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return normalize(v), nil
}

// normalize replaces json.Number with int64 or float64 so numbers bind as
// Int and Float rather than Numeric.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalize(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = normalize(x[k])
		}
		return x
	}
	return v
}
