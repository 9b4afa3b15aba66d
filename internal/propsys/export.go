package propsys

import (
	"fmt"
	"path"
	"reflect"
	"sort"
	"strconv"

	"github.com/forgebridge/forgebridge/internal/protocol"
)

// ExportValue renders a property value as JSON-ready data. depth limits
// container recursion; a negative depth means unlimited, and containers at
// depth zero collapse to a placeholder string.
func (r *Registry) ExportValue(v reflect.Value, depth int) (any, *protocol.Diagnostic) {
	switch r.KindOf(v.Type()) {
	case KindBool:
		return v.Bool(), nil
	case KindInt:
		return v.Int(), nil
	case KindUint:
		return v.Uint(), nil
	case KindFloat:
		return v.Float(), nil
	case KindString:
		return v.String(), nil

	case KindEnum:
		r.mu.RLock()
		info := r.enums[v.Type()]
		r.mu.RUnlock()
		var num int64
		switch v.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			num = int64(v.Uint())
		default:
			num = v.Int()
		}
		if name, ok := info.byValue[num]; ok {
			return name, nil
		}
		return num, nil

	case KindObjectRef:
		if v.IsNil() {
			return nil, nil
		}
		p, ok := MetaPath(v.Interface())
		if !ok {
			return nil, unsupported(fmt.Sprintf("referenced type %s carries no object metadata", v.Type()))
		}
		return p, nil

	case KindSoftRef:
		ref := v.Interface().(SoftRef)
		if ref.Path == "" {
			return nil, nil
		}
		return ref.Path, nil

	case KindStruct:
		if depth == 0 {
			return "{...}", nil
		}
		out := make(map[string]any)
		for _, prop := range r.Properties(v.Type()) {
			val, d := r.ExportValue(v.Field(prop.Index), depth-1)
			if d != nil {
				return nil, d
			}
			out[prop.Name] = val
		}
		return out, nil

	case KindArray:
		if depth == 0 {
			return "[...]", nil
		}
		out := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			val, d := r.ExportValue(v.Index(i), depth-1)
			if d != nil {
				return nil, d
			}
			out[i] = val
		}
		return out, nil

	case KindMap:
		if depth == 0 {
			return "{...}", nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			val, d := r.ExportValue(iter.Value(), depth-1)
			if d != nil {
				return nil, d
			}
			out[keyToString(iter.Key())] = val
		}
		return out, nil

	case KindSet:
		if depth == 0 {
			return "[...]", nil
		}
		elems := make([]any, 0, v.Len())
		texts := make([]string, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			val, d := r.ExportValue(iter.Key(), depth-1)
			if d != nil {
				return nil, d
			}
			text, err := protocol.CanonicalJSON(val)
			if err != nil {
				return nil, unsupported(err.Error())
			}
			elems = append(elems, val)
			texts = append(texts, text)
		}
		sort.Sort(&setOrder{texts: texts, elems: elems})
		return elems, nil

	default:
		return nil, unsupported(fmt.Sprintf("property type %s is not serializable", v.Type()))
	}
}

// ExportText renders a value as canonical JSON with unlimited depth. Used
// for test-op comparison and set element matching.
func (r *Registry) ExportText(v reflect.Value) (string, *protocol.Diagnostic) {
	val, d := r.ExportValue(v, -1)
	if d != nil {
		return "", d
	}
	text, err := protocol.CanonicalJSON(val)
	if err != nil {
		return "", unsupported(err.Error())
	}
	return text, nil
}

func keyToString(k reflect.Value) string {
	switch k.Kind() {
	case reflect.String:
		return k.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(k.Float(), 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", k.Interface())
	}
}

type setOrder struct {
	texts []string
	elems []any
}

func (s *setOrder) Len() int           { return len(s.texts) }
func (s *setOrder) Less(i, j int) bool { return s.texts[i] < s.texts[j] }
func (s *setOrder) Swap(i, j int) {
	s.texts[i], s.texts[j] = s.texts[j], s.texts[i]
	s.elems[i], s.elems[j] = s.elems[j], s.elems[i]
}

// Descriptor is one row of an object.inspect listing.
type Descriptor struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Category  string `json:"category,omitempty"`
	Editable  bool   `json:"editable"`
	Transient bool   `json:"transient"`
	Value     any    `json:"value"`
}

// InspectOptions filter and shape an inspect listing.
type InspectOptions struct {
	OnlyEditable     bool
	IncludeTransient bool
	CategoryGlob     string
	NameGlob         string
	Depth            int
}

// Inspect lists the properties of a host object with their current values.
func (r *Registry) Inspect(obj any, opts InspectOptions) ([]Descriptor, *protocol.Diagnostic) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil, unsupported("inspect target must be a struct pointer")
	}
	if opts.Depth == 0 {
		opts.Depth = 2
	}

	elem := v.Elem()
	out := []Descriptor{}
	for _, prop := range r.Properties(elem.Type()) {
		if opts.OnlyEditable && !prop.Editable {
			continue
		}
		if prop.Transient && !opts.IncludeTransient {
			continue
		}
		if opts.CategoryGlob != "" {
			if ok, _ := path.Match(opts.CategoryGlob, prop.Category); !ok {
				continue
			}
		}
		if opts.NameGlob != "" {
			if ok, _ := path.Match(opts.NameGlob, prop.Name); !ok {
				continue
			}
		}
		val, d := r.ExportValue(elem.Field(prop.Index), opts.Depth)
		if d != nil {
			val = nil
		}
		out = append(out, Descriptor{
			Name:      prop.Name,
			Kind:      prop.Kind.String(),
			Category:  prop.Category,
			Editable:  prop.Editable,
			Transient: prop.Transient,
			Value:     val,
		})
	}
	return out, nil
}
