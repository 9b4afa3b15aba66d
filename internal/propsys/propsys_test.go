package propsys_test

import (
	"reflect"
	"testing"

	"github.com/forgebridge/forgebridge/internal/host"
	"github.com/forgebridge/forgebridge/internal/propsys"
)

func newWorld(t *testing.T) (*propsys.Registry, *host.Host, *host.SceneActor) {
	t.Helper()
	reg := propsys.NewRegistry()
	if err := host.RegisterWorldTypes(reg); err != nil {
		t.Fatalf("register types: %v", err)
	}
	h := host.New(reg)
	if err := host.SeedDemoWorld(h); err != nil {
		t.Fatalf("seed world: %v", err)
	}
	obj, _ := h.ResolveObject("/Game/Maps/Arena.Arena:Lamp1")
	return reg, h, obj.(*host.SceneActor)
}

func TestKindClassification(t *testing.T) {
	reg, _, lamp := newWorld(t)
	typ := reflect.TypeOf(*lamp)

	cases := []struct {
		prop string
		want propsys.Kind
	}{
		{"display_name", propsys.KindString},
		{"visible", propsys.KindBool},
		{"intensity", propsys.KindFloat},
		{"lod_bias", propsys.KindInt},
		{"mobility", propsys.KindEnum},
		{"transform", propsys.KindStruct},
		{"tags", propsys.KindArray},
		{"metadata", propsys.KindMap},
		{"badges", propsys.KindSet},
		{"attach_parent", propsys.KindObjectRef},
		{"mesh_ref", propsys.KindSoftRef},
	}
	for _, tc := range cases {
		prop, ok := reg.Lookup(typ, tc.prop)
		if !ok {
			t.Errorf("property %q not found", tc.prop)
			continue
		}
		if prop.Kind != tc.want {
			t.Errorf("%s kind = %s, want %s", tc.prop, prop.Kind, tc.want)
		}
	}
}

func TestBridgeTagMetadata(t *testing.T) {
	reg, _, lamp := newWorld(t)
	typ := reflect.TypeOf(*lamp)

	name, _ := reg.Lookup(typ, "display_name")
	if !name.Editable || name.Transient || name.Category != "Identity" {
		t.Errorf("display_name metadata = %+v", name)
	}
	internal, _ := reg.Lookup(typ, "internal_id")
	if internal.Editable {
		t.Error("internal_id should not be editable")
	}
	bounds, _ := reg.Lookup(typ, "cached_bounds")
	if !bounds.Transient {
		t.Error("cached_bounds should be transient")
	}
	if _, ok := reg.Lookup(typ, "ObjectMeta"); ok {
		t.Error("embedded metadata should not be listed as a property")
	}
}

func TestExportValueEnumAndRefs(t *testing.T) {
	reg, h, lamp := newWorld(t)

	val, d := reg.ExportValue(reflect.ValueOf(lamp.Mobility), -1)
	if d != nil || val != "Stationary" {
		t.Errorf("mobility export = %v (%+v)", val, d)
	}

	obj, _ := h.ResolveObject("/Game/Maps/Arena.Arena:Crate1")
	crate := obj.(*host.SceneActor)
	val, d = reg.ExportValue(reflect.ValueOf(crate.MeshRef), -1)
	if d != nil || val != "/Game/Meshes/Crate" {
		t.Errorf("soft ref export = %v (%+v)", val, d)
	}

	lamp.AttachParent = crate
	val, d = reg.ExportValue(reflect.ValueOf(lamp.AttachParent), -1)
	if d != nil || val != "/Game/Maps/Arena.Arena:Crate1" {
		t.Errorf("object ref export = %v (%+v)", val, d)
	}
	lamp.AttachParent = nil
	val, d = reg.ExportValue(reflect.ValueOf(lamp).Elem().FieldByName("AttachParent"), -1)
	if d != nil || val != nil {
		t.Errorf("nil ref export = %v (%+v)", val, d)
	}
}

func TestExportValueDepthPlaceholders(t *testing.T) {
	reg, _, lamp := newWorld(t)

	val, d := reg.ExportValue(reflect.ValueOf(lamp.Transform), 0)
	if d != nil || val != "{...}" {
		t.Errorf("struct at depth 0 = %v", val)
	}
	val, d = reg.ExportValue(reflect.ValueOf(lamp.Tags), 0)
	if d != nil || val != "[...]" {
		t.Errorf("array at depth 0 = %v", val)
	}

	full, d := reg.ExportValue(reflect.ValueOf(lamp.Transform), -1)
	if d != nil {
		t.Fatalf("full export: %+v", d)
	}
	loc := full.(map[string]any)["location"].(map[string]any)
	if loc["x"] != float64(100) {
		t.Errorf("location = %v", loc)
	}
}

func TestSetExportIsSorted(t *testing.T) {
	reg, _, lamp := newWorld(t)
	lamp.Badges = map[string]struct{}{"zeta": {}, "alpha": {}, "mid": {}}

	val, d := reg.ExportValue(reflect.ValueOf(lamp.Badges), -1)
	if d != nil {
		t.Fatalf("export: %+v", d)
	}
	got := val.([]any)
	if len(got) != 3 || got[0] != "alpha" || got[1] != "mid" || got[2] != "zeta" {
		t.Errorf("set export = %v, want sorted", got)
	}
}

func TestInspectFilters(t *testing.T) {
	reg, _, lamp := newWorld(t)

	all, d := reg.Inspect(lamp, propsys.InspectOptions{})
	if d != nil {
		t.Fatalf("inspect: %+v", d)
	}
	for _, desc := range all {
		if desc.Name == "cached_bounds" {
			t.Error("transient property listed without IncludeTransient")
		}
	}

	editable, _ := reg.Inspect(lamp, propsys.InspectOptions{OnlyEditable: true})
	for _, desc := range editable {
		if !desc.Editable {
			t.Errorf("non-editable property %q in editable listing", desc.Name)
		}
	}

	rendering, _ := reg.Inspect(lamp, propsys.InspectOptions{CategoryGlob: "Rendering"})
	if len(rendering) == 0 {
		t.Fatal("category filter returned nothing")
	}
	for _, desc := range rendering {
		if desc.Category != "Rendering" {
			t.Errorf("category = %q", desc.Category)
		}
	}

	named, _ := reg.Inspect(lamp, propsys.InspectOptions{NameGlob: "intensity"})
	if len(named) != 1 || named[0].Value != float64(5000) {
		t.Errorf("name filter = %+v", named)
	}
}

func TestCopyValueDeep(t *testing.T) {
	_, _, lamp := newWorld(t)

	src := reflect.ValueOf(lamp).Elem()
	dst := reflect.New(src.Type()).Elem()
	propsys.CopyValue(dst, src)

	clone := dst.Addr().Interface().(*host.SceneActor)
	clone.Tags[0] = "changed"
	clone.Metadata["zone"] = "changed"
	if lamp.Tags[0] != "light" {
		t.Error("slice backing array shared after copy")
	}
	if lamp.Metadata["zone"] != "lobby" {
		t.Error("map shared after copy")
	}
}
