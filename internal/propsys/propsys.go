// Package propsys is the bridge's view of host object properties. It walks
// registered Go struct types with reflection, classifies every field into a
// property kind, and carries the editability metadata that gates mutation.
//
// Field metadata lives in the `bridge` struct tag:
//
//	DisplayName string `json:"display_name" bridge:"edit,category=Identity"`
//	CachedBounds Box   `json:"cached_bounds" bridge:"transient"`
//
// Fields without an `edit` marker are readable but refuse patches. The wire
// name of a property comes from the json tag when present.
package propsys

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/forgebridge/forgebridge/internal/protocol"
)

// Kind classifies a property for conversion and patch traversal.
type Kind int

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindEnum
	KindObjectRef
	KindSoftRef
	KindStruct
	KindArray
	KindMap
	KindSet
)

var kindNames = map[Kind]string{
	KindInvalid:   "invalid",
	KindBool:      "bool",
	KindInt:       "int",
	KindUint:      "uint",
	KindFloat:     "float",
	KindString:    "string",
	KindEnum:      "enum",
	KindObjectRef: "object_ref",
	KindSoftRef:   "soft_ref",
	KindStruct:    "struct",
	KindArray:     "array",
	KindMap:       "map",
	KindSet:       "set",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "invalid"
}

// SoftRef stores an object path without resolving it. Assignment never
// touches the resolver and never fails on a dangling path.
type SoftRef struct {
	Path string `json:"path"`
}

// ObjectMeta is embedded by every registered host object type so references
// to it can be exported back to a stable path.
type ObjectMeta struct {
	Path string
}

// MetaPath extracts the embedded ObjectMeta path from a host object pointer.
func MetaPath(obj any) (string, bool) {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return "", false
	}
	f := v.Elem().FieldByName("ObjectMeta")
	if !f.IsValid() || f.Type() != reflect.TypeOf(ObjectMeta{}) {
		return "", false
	}
	return f.Interface().(ObjectMeta).Path, true
}

// Resolver resolves object paths to live host instances for reference
// assignment. Implemented by the host's object table.
type Resolver interface {
	ResolveObject(path string) (any, bool)
}

// Property describes one exported struct field.
type Property struct {
	Name      string
	FieldName string
	Index     int
	Kind      Kind
	Category  string
	Editable  bool
	Transient bool
	Type      reflect.Type
}

type enumInfo struct {
	name    string
	byName  map[string]int64
	byValue map[int64]string
}

type typeInfo struct {
	name string
	def  reflect.Value // pointer to the pristine default instance
}

// Registry holds registered object types, their class defaults, and enum
// name tables. A single registry is shared by the host and both patch
// engines.
type Registry struct {
	mu    sync.RWMutex
	types map[reflect.Type]*typeInfo
	enums map[reflect.Type]*enumInfo
	props map[reflect.Type][]Property
}

func NewRegistry() *Registry {
	return &Registry{
		types: make(map[reflect.Type]*typeInfo),
		enums: make(map[reflect.Type]*enumInfo),
		props: make(map[reflect.Type][]Property),
	}
}

// RegisterType records an object type and its class default. defaultInstance
// must be a non-nil pointer to a struct; its field values become the reset
// targets for flat-patch remove operations.
func (r *Registry) RegisterType(name string, defaultInstance any) error {
	v := reflect.ValueOf(defaultInstance)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("propsys: default for %q must be a non-nil struct pointer", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[v.Elem().Type()] = &typeInfo{name: name, def: v}
	return nil
}

// RegisterEnum records the name table for a named integer type. sample is any
// value of the enum type.
func (r *Registry) RegisterEnum(name string, sample any, values map[string]int64) error {
	t := reflect.TypeOf(sample)
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return fmt.Errorf("propsys: enum %q must be an integer type, got %s", name, t.Kind())
	}
	info := &enumInfo{name: name, byName: make(map[string]int64, len(values)), byValue: make(map[int64]string, len(values))}
	for n, val := range values {
		info.byName[n] = val
		info.byValue[val] = n
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enums[t] = info
	return nil
}

// TypeName returns the registered name for a struct type.
func (r *Registry) TypeName(t reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.types[t]
	if !ok {
		return "", false
	}
	return info.name, true
}

// DefaultOf returns the class-default instance pointer for a struct type.
func (r *Registry) DefaultOf(t reflect.Type) (reflect.Value, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.types[t]
	if !ok {
		return reflect.Value{}, false
	}
	return info.def, true
}

// KindOf classifies a Go type into a property kind.
func (r *Registry) KindOf(t reflect.Type) Kind {
	if t == reflect.TypeOf(SoftRef{}) {
		return KindSoftRef
	}
	r.mu.RLock()
	_, isEnum := r.enums[t]
	r.mu.RUnlock()
	if isEnum {
		return KindEnum
	}
	switch t.Kind() {
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return KindInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindUint
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.String:
		return KindString
	case reflect.Pointer:
		if t.Elem().Kind() == reflect.Struct {
			return KindObjectRef
		}
	case reflect.Struct:
		return KindStruct
	case reflect.Slice:
		return KindArray
	case reflect.Map:
		if t.Elem() == reflect.TypeOf(struct{}{}) {
			return KindSet
		}
		return KindMap
	}
	return KindInvalid
}

// Properties lists the property descriptors for a struct type. Results are
// cached; anonymous and unexported fields are skipped.
func (r *Registry) Properties(t reflect.Type) []Property {
	r.mu.RLock()
	cached, ok := r.props[t]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	var out []Property
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous || !f.IsExported() {
			continue
		}
		p := Property{
			Name:      wireName(f),
			FieldName: f.Name,
			Index:     i,
			Kind:      r.KindOf(f.Type),
			Type:      f.Type,
		}
		p.Editable, p.Transient, p.Category = parseBridgeTag(f.Tag.Get("bridge"))
		out = append(out, p)
	}

	r.mu.Lock()
	r.props[t] = out
	r.mu.Unlock()
	return out
}

// Lookup finds a property by wire name on a struct type.
func (r *Registry) Lookup(t reflect.Type, name string) (Property, bool) {
	for _, p := range r.Properties(t) {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

func wireName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return f.Name
	}
	if i := strings.Index(tag, ","); i >= 0 {
		tag = tag[:i]
	}
	if tag == "" {
		return f.Name
	}
	return tag
}

func parseBridgeTag(tag string) (editable, transient bool, category string) {
	for _, part := range strings.Split(tag, ",") {
		switch {
		case part == "edit":
			editable = true
		case part == "transient":
			transient = true
		case strings.HasPrefix(part, "category="):
			category = strings.TrimPrefix(part, "category=")
		}
	}
	return
}

func unsupported(msg string) *protocol.Diagnostic {
	d := protocol.Errorf(protocol.CodeSerializeUnsupported, msg)
	return &d
}
