package postgres

import (
	"reflect"
	"sync"
)

// columnCache maps a struct type to the indices and names of its db-tagged fields.
var columnCache sync.Map // map[reflect.Type][]column

type column struct {
	index int
	name  string
}

func columnsOf(t reflect.Type) []column {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]column)
	}

	var cols []column
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			tag := t.Field(i).Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			cols = append(cols, column{index: i, name: tag})
		}
	}
	columnCache.Store(t, cols)
	return cols
}

// ExtractDBColumns returns the column names of T's "db" tags in field order.
//
// Usage:
//
//	columns := ExtractDBColumns[product.Product]()
//	// Returns: ["id", "tenant_id", "name", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	cols := columnsOf(reflect.TypeOf(zero))
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.name
	}
	return out
}

// StructToMap converts a struct to a column -> value map using "db" tags.
// Fields tagged "-" (for example document lines) are skipped.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	cols := columnsOf(rv.Type())
	res := make(map[string]any, len(cols))
	for _, c := range cols {
		res[c.name] = rv.Field(c.index).Interface()
	}
	return res
}

// Without returns cols minus the excluded names.
func Without(cols []string, exclude ...string) []string {
	out := make([]string, 0, len(cols))
outer:
	for _, c := range cols {
		for _, e := range exclude {
			if c == e {
				continue outer
			}
		}
		out = append(out, c)
	}
	return out
}
