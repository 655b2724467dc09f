package optimistic

import (
	"fmt"
	"reflect"
	"strings"

	logs "github.com/danmuck/smplog"
)

// FieldKey identifies list items by the named field, compared after string
// conversion. name matches an exported struct field by Go name, json tag or
// toml tag, or a key of a string-keyed map item.
func FieldKey[T any](name string) KeyFunc[T] {
	return func(item T) string {
		v, ok := fieldValue(reflect.ValueOf(item), name)
		if !ok {
			return ""
		}
		return fmt.Sprint(v.Interface())
	}
}

func fieldValue(v reflect.Value, name string) (reflect.Value, bool) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		kt := v.Type().Key()
		if kt.Kind() != reflect.String {
			return reflect.Value{}, false
		}
		fv := v.MapIndex(reflect.ValueOf(name).Convert(kt))
		if !fv.IsValid() {
			return reflect.Value{}, false
		}
		return fv, true
	case reflect.Struct:
		if i, ok := structField(v.Type(), name); ok {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// structField finds the exported field called name, by Go name, json tag or
// toml tag.
func structField(t reflect.Type, name string) (int, bool) {
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		if sf.Name == name || tagName(sf, "json") == name || tagName(sf, "toml") == name {
			return i, true
		}
	}
	return 0, false
}

func tagName(sf reflect.StructField, key string) string {
	tag, _, _ := strings.Cut(sf.Tag.Get(key), ",")
	return tag
}

// MergeFields returns a patch that overlays fields on an item; fields not
// named keep their current values and types. Struct items (or pointers to
// them) are copied by value with only the named fields set, unexported
// fields included in the copy. String-keyed map items are cloned and the
// keys written over, adding any that were missing. The copy is shallow.
// If a field is unknown or a value does not fit its field, the item is
// returned unchanged and the failure logged.
func MergeFields[T any](fields map[string]any) func(T) T {
	return func(item T) T {
		merged, err := overlay(reflect.ValueOf(&item).Elem(), fields)
		if err != nil {
			logs.Warnf("MergeFields(): %v", err)
			return item
		}
		return merged.Interface().(T)
	}
}

func overlay(v reflect.Value, fields map[string]any) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return v, fmt.Errorf("cannot overlay fields on nil %s", v.Type())
		}
		inner, err := overlay(v.Elem(), fields)
		if err != nil {
			return v, err
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out, nil
	case reflect.Pointer:
		if v.IsNil() || v.Elem().Kind() != reflect.Struct {
			return v, fmt.Errorf("cannot overlay fields on %s", v.Type())
		}
		inner, err := overlay(v.Elem(), fields)
		if err != nil {
			return v, err
		}
		out := reflect.New(inner.Type())
		out.Elem().Set(inner)
		return out.Convert(v.Type()), nil
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		for name, raw := range fields {
			i, ok := structField(v.Type(), name)
			if !ok {
				return v, fmt.Errorf("no field %q in %s", name, v.Type())
			}
			fv, err := fieldAssignable(raw, out.Field(i).Type())
			if err != nil {
				return v, fmt.Errorf("field %q: %w", name, err)
			}
			out.Field(i).Set(fv)
		}
		return out, nil
	case reflect.Map:
		t := v.Type()
		if t.Key().Kind() != reflect.String {
			return v, fmt.Errorf("cannot overlay fields on %s", t)
		}
		out := reflect.MakeMapWithSize(t, v.Len()+len(fields))
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), iter.Value())
		}
		for name, raw := range fields {
			fv, err := fieldAssignable(raw, t.Elem())
			if err != nil {
				return v, fmt.Errorf("key %q: %w", name, err)
			}
			out.SetMapIndex(reflect.ValueOf(name).Convert(t.Key()), fv)
		}
		return out, nil
	}
	return v, fmt.Errorf("cannot overlay fields on %s", v.Type())
}

// fieldAssignable converts raw to t. Values assign directly when their type
// allows it; numbers convert between numeric kinds only when nothing is lost.
func fieldAssignable(raw any, t reflect.Type) (reflect.Value, error) {
	if raw == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("nil is not a valid %s", t)
	}
	rv := reflect.ValueOf(raw)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}
	if rv.Kind() == t.Kind() && rv.CanConvert(t) {
		return rv.Convert(t), nil
	}
	if isNumber(rv.Kind()) && isNumber(t.Kind()) {
		negative := (rv.CanInt() && rv.Int() < 0) || (rv.CanFloat() && rv.Float() < 0)
		out := rv.Convert(t)
		if (negative && out.CanUint()) || !out.Convert(rv.Type()).Equal(rv) {
			return reflect.Value{}, fmt.Errorf("%v does not fit %s", raw, t)
		}
		return out, nil
	}
	return reflect.Value{}, fmt.Errorf("%T is not assignable to %s", raw, t)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
