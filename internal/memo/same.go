package memo

import "reflect"

// Same reports reference identity for values the engine treats as immutable
// snapshots. Maps, pointers, and channels compare by address; slices by
// backing array and length; structs and arrays field by field; other
// comparable values by ==. Anything else is never the same, which only
// costs a reallocation.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return same(reflect.ValueOf(a), reflect.ValueOf(b))
}

func same(va, vb reflect.Value) bool {
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	case reflect.Func:
		return false
	case reflect.Interface:
		if va.IsNil() || vb.IsNil() {
			return va.IsNil() && vb.IsNil()
		}
		return same(va.Elem(), vb.Elem())
	case reflect.Struct:
		for i := range va.NumField() {
			if !same(va.Field(i), vb.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Array:
		for i := range va.Len() {
			if !same(va.Index(i), vb.Index(i)) {
				return false
			}
		}
		return true
	}
	return va.Comparable() && va.Equal(vb)
}
