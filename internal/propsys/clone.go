package propsys

import "reflect"

// CopyValue deep-copies src into dst. Both must share a type and dst must be
// settable. Object references are copied as pointers; everything else gets
// fresh backing storage so later mutation cannot alias a class default.
func CopyValue(dst, src reflect.Value) {
	switch src.Kind() {
	case reflect.Slice:
		if src.IsNil() {
			dst.Set(reflect.Zero(src.Type()))
			return
		}
		out := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			CopyValue(out.Index(i), src.Index(i))
		}
		dst.Set(out)
	case reflect.Map:
		if src.IsNil() {
			dst.Set(reflect.Zero(src.Type()))
			return
		}
		out := reflect.MakeMapWithSize(src.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			ev := reflect.New(src.Type().Elem()).Elem()
			CopyValue(ev, iter.Value())
			out.SetMapIndex(iter.Key(), ev)
		}
		dst.Set(out)
	case reflect.Struct:
		for i := 0; i < src.NumField(); i++ {
			if !src.Type().Field(i).IsExported() {
				continue
			}
			CopyValue(dst.Field(i), src.Field(i))
		}
	default:
		dst.Set(src)
	}
}
