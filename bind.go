package sqlbridge

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
)

var (
	scannerIface    = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	valuerIface     = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
	valueStructType = reflect.TypeOf(Value{})
)

var structIndexCache = newFieldCache(cacheSize)

// collectParams merges the Bind inputs into a single parameter map. Later
// inputs override earlier ones. A struct field name shared by several
// embedded structs is an error only when sql references it.
func collectParams(sql string, inputs []any) (map[string]any, error) {
	out := make(map[string]any)
	for _, in := range inputs {
		if err := mergeInput(out, sql, in); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func mergeInput(out map[string]any, sql string, in any) error {
	switch m := in.(type) {
	case map[string]any:
		for k, v := range m {
			out[k] = v
		}
		return nil
	case map[string]Value:
		for k, v := range m {
			out[k] = v
		}
		return nil
	}

	rv := deIndirect(reflect.ValueOf(in))
	if !rv.IsValid() || isNilRef(rv) {
		return nil
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: Bind map keys must be strings, got %s", ErrInvalidParam, rv.Type())
		}
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return nil
	case reflect.Struct:
		for name, fi := range fieldIndexMap(rv.Type()) {
			if fi.ambiguous {
				if indexPlaceholder(sql, ":"+name, 0) >= 0 {
					return fmt.Errorf("%w: %q", ErrFieldAmbiguous, name)
				}
				continue
			}
			v, ok := fieldValue(rv, fi.index)
			if !ok {
				continue
			}
			if fi.json && v != nil {
				v = AsJSON(v)
			}
			out[name] = v
		}
		return nil
	}
	return fmt.Errorf("%w: cannot bind %s, expected a map or a struct", ErrInvalidParam, rv.Type())
}

// fieldIndexMap returns a mapping from parameter name → fieldInfo for the given type.
// It flattens nested structs (excluding value-like structs such as time.Time),
// honors `db:"name"` tags, and supports `db:"name,json"` to bind the field as
// a JSON document.
// The result is cached in a two-tier cache.
func fieldIndexMap(t reflect.Type) map[string]fieldInfo {
	if m, ok := structIndexCache.get(t); ok {
		return m
	}

	// Normalize to struct
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	if base.Kind() != reflect.Struct {
		m := make(map[string]fieldInfo)
		structIndexCache.put(t, m)
		return m
	}

	m := make(map[string]fieldInfo, base.NumField())

	visited := map[reflect.Type]bool{}
	var walk func(rt reflect.Type, path []int)

	walk = func(rt reflect.Type, path []int) {
		for rt.Kind() == reflect.Pointer {
			rt = rt.Elem()
		}
		if rt.Kind() != reflect.Struct {
			return
		}
		if visited[rt] {
			return
		}
		visited[rt] = true
		defer delete(visited, rt)

		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			if f.PkgPath != "" { // unexported
				continue
			}
			tag := f.Tag.Get("db")
			if tag == "-" {
				continue
			}
			name := f.Name
			asJSON := false
			if tag != "" {
				parts := strings.Split(tag, ",")
				if parts[0] != "" {
					name = parts[0]
				}
				for _, p := range parts[1:] {
					if strings.TrimSpace(p) == "json" {
						asJSON = true
					}
				}
			}

			ft := f.Type

			if !asJSON && shouldFlatten(ft) {
				walk(ft, slices.Concat(path, []int{i}))
				continue
			}

			// Leaf: handle collisions
			if prev, exists := m[name]; exists {
				if !prev.ambiguous {
					m[name] = fieldInfo{ambiguous: true}
				}
				continue
			}
			m[name] = fieldInfo{index: slices.Concat(path, []int{i}), json: asJSON}
		}
	}

	walk(base, nil)
	structIndexCache.put(t, m)
	return m
}

// shouldFlatten decides whether to descend into ft (struct or *struct).
// Structs that carry a single database value are leaves.
func shouldFlatten(ft reflect.Type) bool {
	for _, iface := range []reflect.Type{scannerIface, valuerIface, enumeratorIface} {
		if reflect.PointerTo(ft).Implements(iface) || ft.Implements(iface) {
			return false
		}
	}
	tt := ft
	if tt.Kind() == reflect.Pointer {
		tt = tt.Elem()
	}
	if tt.Kind() != reflect.Struct || tt == valueStructType {
		return false
	}
	switch tt.PkgPath() {
	case "time", "cloud.google.com/go/civil":
		return false
	}
	return true
}

// fieldInfo is one bindable name of a struct type: the index path of its
// leaf field and whether the leaf binds as JSON.
type fieldInfo struct {
	index     []int
	json      bool
	ambiguous bool // several fields flatten to the same name
}

// fieldCache keeps two generations of per-type field maps. When the young
// generation fills up it becomes the old one; a hit in the old generation
// moves the entry back.
type fieldCache struct {
	mu    sync.RWMutex
	young map[reflect.Type]map[string]fieldInfo
	old   map[reflect.Type]map[string]fieldInfo
	limit int
}

func newFieldCache(limit int) *fieldCache {
	if limit <= 0 {
		limit = cacheSize
	}
	return &fieldCache{
		young: make(map[reflect.Type]map[string]fieldInfo, limit/2),
		old:   map[reflect.Type]map[string]fieldInfo{},
		limit: limit,
	}
}

func (c *fieldCache) get(t reflect.Type) (map[string]fieldInfo, bool) {
	c.mu.RLock()
	m, young := c.young[t]
	if !young {
		m = c.old[t]
	}
	c.mu.RUnlock()
	if m == nil {
		return nil, false
	}
	if !young {
		c.put(t, m)
	}
	return m, true
}

func (c *fieldCache) put(t reflect.Type, fields map[string]fieldInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.young) >= c.limit {
		c.old, c.young = c.young, make(map[reflect.Type]map[string]fieldInfo, c.limit/2)
	}
	c.young[t] = fields
}

// deIndirect follows interfaces and pointers; a nil one is returned as is.
func deIndirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) && !v.IsNil() {
		v = v.Elem()
	}
	return v
}

// fieldValue reads the field at path below root. A nil pointer on the way,
// or at the leaf, reads as NULL. ok is false when path does not fit root.
func fieldValue(root reflect.Value, path []int) (v any, ok bool) {
	rv := root
	for _, idx := range path {
		rv = deIndirect(rv)
		if isNilRef(rv) {
			return nil, true
		}
		if rv.Kind() != reflect.Struct {
			return nil, false
		}
		rv = rv.Field(idx)
	}
	for rv.Kind() == reflect.Interface && !rv.IsNil() {
		rv = rv.Elem()
	}
	if !rv.IsValid() || isNilRef(rv) {
		return nil, true
	}
	return rv.Interface(), true
}

func isNilRef(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		return v.IsNil()
	}
	return false
}
