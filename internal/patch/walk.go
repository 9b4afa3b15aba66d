package patch

import (
	"reflect"

	"github.com/forgebridge/forgebridge/internal/propsys"
	"github.com/forgebridge/forgebridge/internal/protocol"
)

func (e *Engine) walk(v reflect.Value, tokens []string, op Op, root string, changed *[]string) *protocol.Diagnostic {
	if len(tokens) == 0 {
		return e.applyLeaf(v, op, root, changed)
	}

	token := tokens[0]
	last := len(tokens) == 1

	switch e.reg.KindOf(v.Type()) {
	case propsys.KindStruct:
		prop, ok := e.reg.Lookup(v.Type(), token)
		if !ok {
			return invalidParams("patch path does not match a struct field", token)
		}
		return e.walk(v.Field(prop.Index), tokens[1:], op, root, changed)

	case propsys.KindArray:
		return e.walkArray(v, tokens, op, root, changed)

	case propsys.KindMap:
		return e.walkMap(v, tokens, op, root, changed)

	case propsys.KindSet:
		return e.walkSet(v, token, last, op, root, changed)

	default:
		d := protocol.Errorf(protocol.CodeSerializeUnsupported, "patch path traversal is unsupported for this property type")
		d.Detail = v.Type().String()
		return &d
	}
}

func (e *Engine) walkArray(v reflect.Value, tokens []string, op Op, root string, changed *[]string) *protocol.Diagnostic {
	token := tokens[0]
	last := len(tokens) == 1

	if token == "-" && last && opIs(op.Op, "add", "replace") {
		elem := reflect.New(v.Type().Elem()).Elem()
		if d := e.reg.SetFromJSON(elem, op.Value, e.res); d != nil {
			return d
		}
		v.Set(reflect.Append(v, elem))
		*changed = appendUnique(*changed, root)
		return nil
	}

	idx, ok := parseIndex(token)
	if !ok {
		return invalidParams("array path token must be a non-negative integer index", token)
	}

	canAppend := opIs(op.Op, "add", "replace", "merge")
	if idx >= v.Len() {
		if !canAppend || idx != v.Len() {
			return invalidParams("array index is out of range", token)
		}
		v.Set(reflect.Append(v, reflect.New(v.Type().Elem()).Elem()))
	}

	if last && opIs(op.Op, "remove") {
		out := reflect.MakeSlice(v.Type(), 0, v.Len()-1)
		out = reflect.AppendSlice(out, v.Slice(0, idx))
		out = reflect.AppendSlice(out, v.Slice(idx+1, v.Len()))
		v.Set(out)
		*changed = appendUnique(*changed, root)
		return nil
	}

	return e.walk(v.Index(idx), tokens[1:], op, root, changed)
}

func (e *Engine) walkMap(v reflect.Value, tokens []string, op Op, root string, changed *[]string) *protocol.Diagnostic {
	token := tokens[0]
	last := len(tokens) == 1

	key, d := e.reg.KeyFromString(token, v.Type().Key())
	if d != nil {
		return d
	}

	exists := v.IsValid() && !v.IsNil() && v.MapIndex(key).IsValid()
	canCreate := opIs(op.Op, "add", "replace", "merge")
	if !exists && !canCreate {
		return invalidParams("map key is not found", token)
	}

	if last && opIs(op.Op, "remove") {
		v.SetMapIndex(key, reflect.Value{})
		*changed = appendUnique(*changed, root)
		return nil
	}

	// Map values are not addressable; mutate a copy and write it back.
	elem := reflect.New(v.Type().Elem()).Elem()
	if exists {
		propsys.CopyValue(elem, v.MapIndex(key))
	}
	if d := e.walk(elem, tokens[1:], op, root, changed); d != nil {
		return d
	}
	if v.IsNil() {
		v.Set(reflect.MakeMap(v.Type()))
	}
	v.SetMapIndex(key, elem)
	return nil
}

func (e *Engine) walkSet(v reflect.Value, token string, last bool, op Op, root string, changed *[]string) *protocol.Diagnostic {
	if !last {
		d := protocol.Errorf(protocol.CodeSerializeUnsupported, "nested set traversal is not supported")
		d.Detail = token
		return &d
	}

	if opIs(op.Op, "remove") {
		iter := v.MapRange()
		for iter.Next() {
			text, d := e.setElemText(iter.Key())
			if d != nil {
				return d
			}
			if text == token {
				v.SetMapIndex(iter.Key(), reflect.Value{})
				*changed = appendUnique(*changed, root)
				return nil
			}
		}
		return invalidParams("set element is not found", token)
	}

	if opIs(op.Op, "add", "replace") {
		elem := reflect.New(v.Type().Key()).Elem()
		if d := e.reg.SetFromJSON(elem, op.Value, e.res); d != nil {
			return d
		}
		if v.IsNil() {
			v.Set(reflect.MakeMap(v.Type()))
		}
		v.SetMapIndex(elem, reflect.ValueOf(struct{}{}))
		*changed = appendUnique(*changed, root)
		return nil
	}

	return invalidParams("unsupported operation for set property", op.Op)
}

// setElemText renders a set element for token matching. Plain strings and
// enum names match without JSON quoting; everything else matches on its
// canonical JSON form.
func (e *Engine) setElemText(key reflect.Value) (string, *protocol.Diagnostic) {
	val, d := e.reg.ExportValue(key, -1)
	if d != nil {
		return "", d
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	text, err := protocol.CanonicalJSON(val)
	if err != nil {
		d := protocol.Errorf(protocol.CodeSerializeUnsupported, err.Error())
		return "", &d
	}
	return text, nil
}

func (e *Engine) applyLeaf(v reflect.Value, op Op, root string, changed *[]string) *protocol.Diagnostic {
	switch {
	case opIs(op.Op, "remove"):
		v.Set(reflect.Zero(v.Type()))
		*changed = appendUnique(*changed, root)
		return nil

	case opIs(op.Op, "inc"):
		delta, ok := op.Value.(float64)
		if !ok {
			return invalidParams("inc operation requires numeric value", fmtDetail("%T", op.Value))
		}
		switch e.reg.KindOf(v.Type()) {
		case propsys.KindInt:
			v.SetInt(v.Int() + int64(delta))
		case propsys.KindUint:
			v.SetUint(uint64(int64(v.Uint()) + int64(delta)))
		case propsys.KindFloat:
			v.SetFloat(v.Float() + delta)
		default:
			return invalidParams("inc operation requires numeric property", v.Type().String())
		}
		*changed = appendUnique(*changed, root)
		return nil

	case opIs(op.Op, "test"):
		current, d := e.reg.ExportText(v)
		if d != nil {
			return d
		}
		scratch := reflect.New(v.Type()).Elem()
		if d := e.reg.SetFromJSON(scratch, op.Value, e.res); d != nil {
			return d
		}
		want, d := e.reg.ExportText(scratch)
		if d != nil {
			return d
		}
		if current != want {
			return invalidParams("test operation failed", root)
		}
		return nil

	case opIs(op.Op, "merge"):
		if d := e.reg.MergeFromJSON(v, op.Value, e.res); d != nil {
			return d
		}
		*changed = appendUnique(*changed, root)
		return nil

	case opIs(op.Op, "add", "replace"):
		if d := e.reg.SetFromJSON(v, op.Value, e.res); d != nil {
			return d
		}
		*changed = appendUnique(*changed, root)
		return nil

	default:
		return invalidParams("unsupported patch operation", op.Op)
	}
}
