package propsys

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/forgebridge/forgebridge/internal/protocol"
)

// SetFromJSON assigns a decoded JSON value to a settable reflect value,
// converting per the value's property kind. Numeric properties accept JSON
// strings, bool accepts numbers, enums accept names or numbers, and object
// references resolve paths through the resolver. A non-nil diagnostic aborts
// the caller's patch batch.
func (r *Registry) SetFromJSON(v reflect.Value, jsonVal any, res Resolver) *protocol.Diagnostic {
	if !v.CanSet() {
		return unsupported("value is not settable")
	}

	switch r.KindOf(v.Type()) {
	case KindBool:
		switch val := jsonVal.(type) {
		case bool:
			v.SetBool(val)
		case float64:
			v.SetBool(val != 0)
		default:
			return unsupported(fmt.Sprintf("cannot convert %T to bool", jsonVal))
		}

	case KindInt:
		switch val := jsonVal.(type) {
		case float64:
			v.SetInt(int64(val))
		case string:
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return unsupported(fmt.Sprintf("cannot parse %q as integer", val))
			}
			v.SetInt(n)
		default:
			return unsupported(fmt.Sprintf("cannot convert %T to integer", jsonVal))
		}

	case KindUint:
		switch val := jsonVal.(type) {
		case float64:
			if val < 0 {
				return unsupported("negative value for unsigned property")
			}
			v.SetUint(uint64(val))
		case string:
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return unsupported(fmt.Sprintf("cannot parse %q as unsigned integer", val))
			}
			v.SetUint(n)
		default:
			return unsupported(fmt.Sprintf("cannot convert %T to unsigned integer", jsonVal))
		}

	case KindFloat:
		switch val := jsonVal.(type) {
		case float64:
			v.SetFloat(val)
		case string:
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return unsupported(fmt.Sprintf("cannot parse %q as float", val))
			}
			v.SetFloat(f)
		default:
			return unsupported(fmt.Sprintf("cannot convert %T to float", jsonVal))
		}

	case KindString:
		val, ok := jsonVal.(string)
		if !ok {
			return unsupported(fmt.Sprintf("cannot convert %T to string", jsonVal))
		}
		v.SetString(val)

	case KindEnum:
		return r.setEnum(v, jsonVal)

	case KindObjectRef:
		return r.setObjectRef(v, jsonVal, res)

	case KindSoftRef:
		switch val := jsonVal.(type) {
		case nil:
			v.Set(reflect.Zero(v.Type()))
		case string:
			v.Set(reflect.ValueOf(SoftRef{Path: val}))
		default:
			return unsupported(fmt.Sprintf("cannot convert %T to soft reference", jsonVal))
		}

	case KindStruct:
		obj, ok := jsonVal.(map[string]any)
		if !ok {
			return unsupported(fmt.Sprintf("cannot convert %T to struct", jsonVal))
		}
		v.Set(reflect.Zero(v.Type()))
		return r.applyStructFields(v, obj, res)

	case KindArray:
		arr, ok := jsonVal.([]any)
		if !ok {
			return unsupported(fmt.Sprintf("cannot convert %T to array", jsonVal))
		}
		out := reflect.MakeSlice(v.Type(), len(arr), len(arr))
		for i, elem := range arr {
			if d := r.SetFromJSON(out.Index(i), elem, res); d != nil {
				return d
			}
		}
		v.Set(out)

	case KindMap:
		obj, ok := jsonVal.(map[string]any)
		if !ok {
			return unsupported(fmt.Sprintf("cannot convert %T to map", jsonVal))
		}
		out := reflect.MakeMapWithSize(v.Type(), len(obj))
		for key, elem := range obj {
			kv, d := r.KeyFromString(key, v.Type().Key())
			if d != nil {
				return d
			}
			ev := reflect.New(v.Type().Elem()).Elem()
			if d := r.SetFromJSON(ev, elem, res); d != nil {
				return d
			}
			out.SetMapIndex(kv, ev)
		}
		v.Set(out)

	case KindSet:
		arr, ok := jsonVal.([]any)
		if !ok {
			return unsupported(fmt.Sprintf("cannot convert %T to set", jsonVal))
		}
		out := reflect.MakeMapWithSize(v.Type(), len(arr))
		for _, elem := range arr {
			kv := reflect.New(v.Type().Key()).Elem()
			if d := r.SetFromJSON(kv, elem, res); d != nil {
				return d
			}
			out.SetMapIndex(kv, reflect.ValueOf(struct{}{}))
		}
		v.Set(out)

	default:
		return unsupported(fmt.Sprintf("property type %s is not serializable", v.Type()))
	}
	return nil
}

// MergeFromJSON applies only the keys present in a JSON object onto an
// existing struct or map value, leaving everything else untouched.
func (r *Registry) MergeFromJSON(v reflect.Value, jsonVal any, res Resolver) *protocol.Diagnostic {
	obj, ok := jsonVal.(map[string]any)
	if !ok {
		return r.SetFromJSON(v, jsonVal, res)
	}
	switch r.KindOf(v.Type()) {
	case KindStruct:
		return r.applyStructFields(v, obj, res)
	case KindMap:
		if v.IsNil() {
			v.Set(reflect.MakeMap(v.Type()))
		}
		for key, elem := range obj {
			kv, d := r.KeyFromString(key, v.Type().Key())
			if d != nil {
				return d
			}
			ev := reflect.New(v.Type().Elem()).Elem()
			if d := r.SetFromJSON(ev, elem, res); d != nil {
				return d
			}
			v.SetMapIndex(kv, ev)
		}
		return nil
	default:
		return r.SetFromJSON(v, jsonVal, res)
	}
}

func (r *Registry) setEnum(v reflect.Value, jsonVal any) *protocol.Diagnostic {
	r.mu.RLock()
	info := r.enums[v.Type()]
	r.mu.RUnlock()

	var num int64
	switch val := jsonVal.(type) {
	case string:
		n, ok := info.byName[val]
		if !ok {
			return unsupported(fmt.Sprintf("unknown value %q for enum %s", val, info.name))
		}
		num = n
	case float64:
		num = int64(val)
	default:
		return unsupported(fmt.Sprintf("cannot convert %T to enum %s", jsonVal, info.name))
	}

	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v.SetUint(uint64(num))
	default:
		v.SetInt(num)
	}
	return nil
}

func (r *Registry) setObjectRef(v reflect.Value, jsonVal any, res Resolver) *protocol.Diagnostic {
	switch val := jsonVal.(type) {
	case nil:
		v.Set(reflect.Zero(v.Type()))
		return nil
	case string:
		if val == "" {
			v.Set(reflect.Zero(v.Type()))
			return nil
		}
		if res == nil {
			return unsupported("no resolver available for object reference")
		}
		obj, ok := res.ResolveObject(val)
		if !ok {
			d := protocol.Errorf(protocol.CodeObjectNotFound, fmt.Sprintf("object %q not found", val))
			return &d
		}
		ov := reflect.ValueOf(obj)
		if !ov.Type().AssignableTo(v.Type()) {
			return unsupported(fmt.Sprintf("object %q has type %s, want %s", val, ov.Type(), v.Type()))
		}
		v.Set(ov)
		return nil
	default:
		return unsupported(fmt.Sprintf("cannot convert %T to object reference", jsonVal))
	}
}

func (r *Registry) applyStructFields(v reflect.Value, obj map[string]any, res Resolver) *protocol.Diagnostic {
	for key, elem := range obj {
		prop, ok := r.Lookup(v.Type(), key)
		if !ok {
			// Unknown keys are ignored so older clients can send richer
			// payloads against newer host types.
			continue
		}
		if d := r.SetFromJSON(v.Field(prop.Index), elem, res); d != nil {
			return d
		}
	}
	return nil
}

// KeyFromString converts a JSON object key into a map key value. Only string
// and numeric key types participate in patching.
func (r *Registry) KeyFromString(key string, t reflect.Type) (reflect.Value, *protocol.Diagnostic) {
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(key).Convert(t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return reflect.Value{}, unsupported(fmt.Sprintf("cannot parse map key %q as integer", key))
		}
		kv := reflect.New(t).Elem()
		kv.SetInt(n)
		return kv, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return reflect.Value{}, unsupported(fmt.Sprintf("cannot parse map key %q as unsigned integer", key))
		}
		kv := reflect.New(t).Elem()
		kv.SetUint(n)
		return kv, nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(key, 64)
		if err != nil {
			return reflect.Value{}, unsupported(fmt.Sprintf("cannot parse map key %q as float", key))
		}
		kv := reflect.New(t).Elem()
		kv.SetFloat(f)
		return kv, nil
	default:
		return reflect.Value{}, unsupported(fmt.Sprintf("map key type %s is not patchable", t))
	}
}
