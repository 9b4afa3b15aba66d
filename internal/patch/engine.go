package patch

import (
	"reflect"

	"github.com/forgebridge/forgebridge/internal/propsys"
	"github.com/forgebridge/forgebridge/internal/protocol"
)

// Engine applies patch batches against host objects through the property
// system. The resolver is used whenever a patch value assigns an object
// reference by path.
type Engine struct {
	reg *propsys.Registry
	res propsys.Resolver
}

func NewEngine(reg *propsys.Registry, res propsys.Resolver) *Engine {
	return &Engine{reg: reg, res: res}
}

func targetValue(target any) (reflect.Value, *protocol.Diagnostic) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, invalidParams("patch target and patch operations are required", "")
	}
	return v.Elem(), nil
}

// ApplyFlat runs the first-generation engine: one top-level property per
// operation, add/replace/remove only. remove resets the property to its
// class-default value. The first failing op aborts the batch.
func (e *Engine) ApplyFlat(target any, ops []Op) ([]string, *protocol.Diagnostic) {
	elem, diag := targetValue(target)
	if diag != nil {
		return nil, diag
	}
	changed := []string{}

	for _, op := range ops {
		tokens := splitPath(op.Path)
		if len(tokens) != 1 {
			d := protocol.Errorf(protocol.CodeSerializeUnsupported, "only top-level property patch paths are supported")
			d.Detail = op.Path
			d.Suggestion = "use object.patch.v2 for nested paths"
			return nil, &d
		}

		name := tokens[0]
		prop, ok := e.reg.Lookup(elem.Type(), name)
		if !ok {
			return nil, invalidParams("patch path does not match a property", op.Path)
		}
		if !prop.Editable {
			return nil, notEditable(name)
		}

		field := elem.Field(prop.Index)
		if opIs(op.Op, "remove") {
			def, ok := e.reg.DefaultOf(elem.Type())
			if !ok {
				d := protocol.Errorf(protocol.CodeInternalException, "no class default registered for target type")
				d.Detail = elem.Type().String()
				return nil, &d
			}
			propsys.CopyValue(field, def.Elem().Field(prop.Index))
			changed = appendUnique(changed, name)
			continue
		}

		if !opIs(op.Op, "add", "replace") {
			return nil, invalidParams("unsupported patch operation", op.Op)
		}
		if !op.HasValue {
			return nil, invalidParams("patch operation requires value for add/replace", name)
		}
		if d := e.reg.SetFromJSON(field, op.Value, e.res); d != nil {
			return nil, d
		}
		changed = appendUnique(changed, name)
	}
	return changed, nil
}

// Apply runs the second-generation engine with recursive path traversal and
// the extended op set (add/replace/merge/remove/inc/test). Editability is
// enforced on the root property of every path; the first failing op aborts
// the batch.
func (e *Engine) Apply(target any, ops []Op) ([]string, *protocol.Diagnostic) {
	elem, diag := targetValue(target)
	if diag != nil {
		return nil, diag
	}
	changed := []string{}

	for _, op := range ops {
		tokens := splitPath(op.Path)
		if len(tokens) == 0 {
			return nil, invalidParams("patch path is invalid", op.Path)
		}

		root := tokens[0]
		prop, ok := e.reg.Lookup(elem.Type(), root)
		if !ok {
			return nil, invalidParams("patch path does not match a property", op.Path)
		}
		if !prop.Editable {
			return nil, notEditable(root)
		}
		if needsValue(op.Op) && !op.HasValue {
			return nil, invalidParams("patch operation requires value", op.Path)
		}

		if d := e.walk(elem.Field(prop.Index), tokens[1:], op, root, &changed); d != nil {
			return nil, d
		}
	}
	return changed, nil
}
