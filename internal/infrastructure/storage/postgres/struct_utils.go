package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns lists the "db" tags of T in field order, descending into
// embedded structs. Fields tagged "-" are skipped.
//
// Usage:
//
//	columns := ExtractDBColumns[fiscal.Attempt]()
//	// Returns: ["id", "sale_id", "company_id", "environment", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	meta := typeMetadataFor(reflect.TypeOf(zero))
	if meta == nil {
		return nil
	}
	return meta.columns()
}

// fieldInfo is a tagged struct field.
type fieldInfo struct {
	index int
	dbTag string
}

// typeMetadata is the cached reflection result for one struct type.
type typeMetadata struct {
	typ      reflect.Type
	fields   []fieldInfo
	embedded []int
}

func (m *typeMetadata) columns() []string {
	cols := make([]string, 0, len(m.fields))
	for i := 0; i < m.typ.NumField(); i++ {
		for _, f := range m.fields {
			if f.index == i {
				cols = append(cols, f.dbTag)
			}
		}
		for _, e := range m.embedded {
			if e == i {
				if inner := typeMetadataFor(m.typ.Field(i).Type); inner != nil {
					cols = append(cols, inner.columns()...)
				}
			}
		}
	}
	return cols
}

// typeCache holds *typeMetadata per reflect.Type.
var typeCache sync.Map

// typeMetadataFor returns the metadata of t (pointer types are dereferenced),
// or nil when t is not a struct.
func typeMetadataFor(t reflect.Type) *typeMetadata {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{typ: t}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous {
			meta.embedded = append(meta.embedded, i)
			continue
		}
		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		meta.fields = append(meta.fields, fieldInfo{index: i, dbTag: tag})
	}

	actual, _ := typeCache.LoadOrStore(t, meta)
	return actual.(*typeMetadata)
}

// StructToMap converts a struct to a column map using its "db" tags, ready for
// squirrel's SetMap. Untagged and "-" fields are left out.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}

	meta := typeMetadataFor(rv.Type())
	if meta == nil {
		return nil
	}

	res := make(map[string]any, len(meta.fields))
	for _, fi := range meta.fields {
		res[fi.dbTag] = rv.Field(fi.index).Interface()
	}
	for _, idx := range meta.embedded {
		for k, v := range StructToMap(rv.Field(idx).Interface()) {
			res[k] = v
		}
	}
	return res
}
