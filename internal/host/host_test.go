package host_test

import (
	"testing"

	"github.com/forgebridge/forgebridge/internal/host"
	"github.com/forgebridge/forgebridge/internal/propsys"
)

const lampPath = "/Game/Maps/Arena.Arena:Lamp1"

func newHost(t *testing.T) *host.Host {
	t.Helper()
	reg := propsys.NewRegistry()
	if err := host.RegisterWorldTypes(reg); err != nil {
		t.Fatalf("register types: %v", err)
	}
	h := host.New(reg)
	if err := host.SeedDemoWorld(h); err != nil {
		t.Fatalf("seed world: %v", err)
	}
	return h
}

func TestPackageNameOf(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/Game/Maps/Arena.Arena:Lamp1", "/Game/Maps/Arena"},
		{"/Game/Maps/Arena.Arena", "/Game/Maps/Arena"},
		{"/Game/Maps/Arena", "/Game/Maps/Arena"},
		{"/Project/Settings.ProjectSettings", "/Project/Settings"},
	}
	for _, tc := range cases {
		if got := host.PackageNameOf(tc.in); got != tc.want {
			t.Errorf("PackageNameOf(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAddObjectStampsMetaAndRejectsDuplicates(t *testing.T) {
	h := newHost(t)

	obj, ok := h.ResolveObject(lampPath)
	if !ok {
		t.Fatal("seeded lamp not resolvable")
	}
	if path, ok := propsys.MetaPath(obj); !ok || path != lampPath {
		t.Errorf("meta path = %q, want %q", path, lampPath)
	}

	if err := h.AddObject(lampPath, &host.SceneActor{}); err == nil {
		t.Error("duplicate path should be rejected")
	}
	if err := h.AddObject("/Game/Bad.Thing", struct{}{}); err == nil {
		t.Error("non-pointer object should be rejected")
	}
}

func TestRenameObject(t *testing.T) {
	h := newHost(t)
	newPath := "/Game/Maps/Vault.Vault:Lamp1"

	if err := h.SetSelection([]string{lampPath}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := h.RenameObject(lampPath, newPath); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, ok := h.ResolveObject(lampPath); ok {
		t.Error("old path should be gone")
	}
	obj, ok := h.ResolveObject(newPath)
	if !ok {
		t.Fatal("new path not resolvable")
	}
	if path, _ := propsys.MetaPath(obj); path != newPath {
		t.Errorf("meta path = %q after rename", path)
	}
	if sel := h.Selection(); len(sel) != 0 {
		t.Errorf("renamed object should leave the selection: %v", sel)
	}

	dirty := map[string]bool{}
	for _, pkg := range h.Packages() {
		dirty[pkg.Path] = pkg.Dirty
	}
	if !dirty["/Game/Maps/Arena"] || !dirty["/Game/Maps/Vault"] {
		t.Errorf("both packages should be dirty: %v", dirty)
	}
}

func TestDeleteObjectRemovesEmptyPackage(t *testing.T) {
	h := newHost(t)

	if !h.DeleteObject("/Project/Settings.ProjectSettings") {
		t.Fatal("delete failed")
	}
	for _, pkg := range h.Packages() {
		if pkg.Path == "/Project/Settings" {
			t.Error("package with no objects should be removed")
		}
	}

	// Arena still has other actors, so deleting one keeps the package dirty.
	if !h.DeleteObject(lampPath) {
		t.Fatal("delete lamp failed")
	}
	found := false
	for _, pkg := range h.Packages() {
		if pkg.Path == "/Game/Maps/Arena" {
			found = true
			if !pkg.Dirty {
				t.Error("package should be dirty after member deletion")
			}
		}
	}
	if !found {
		t.Error("package with remaining objects should survive")
	}

	if h.DeleteObject("/Game/Missing.Thing") {
		t.Error("deleting a missing object should fail")
	}
}

func TestSavePackageClearsDirty(t *testing.T) {
	h := newHost(t)
	h.MarkDirty(lampPath)

	if !h.SavePackage("/Game/Maps/Arena") {
		t.Fatal("save failed")
	}
	for _, pkg := range h.Packages() {
		if pkg.Path == "/Game/Maps/Arena" {
			if pkg.Dirty {
				t.Error("save should clear the dirty flag")
			}
			if pkg.SavedAt.IsZero() {
				t.Error("save should stamp SavedAt")
			}
		}
	}
	if h.SavePackage("/Game/Nope") {
		t.Error("saving an unknown package should fail")
	}
}

func TestSetSelectionValidates(t *testing.T) {
	h := newHost(t)
	if err := h.SetSelection([]string{lampPath, "/Game/Missing.Thing"}); err == nil {
		t.Error("selection with unknown path should fail")
	}
	if err := h.SetSelection([]string{lampPath}); err != nil {
		t.Errorf("valid selection rejected: %v", err)
	}
	if got := h.Selection(); len(got) != 1 || got[0] != lampPath {
		t.Errorf("selection = %v", got)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	h := newHost(t)

	snap, err := h.SnapshotObject(lampPath)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	obj, _ := h.ResolveObject(lampPath)
	lamp := obj.(*host.SceneActor)
	lamp.Intensity = 99
	lamp.Tags = []string{"mutated"}

	if err := h.RestoreObject(lampPath, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if lamp.Intensity != 5000 {
		t.Errorf("intensity = %v, want 5000", lamp.Intensity)
	}
	if len(lamp.Tags) != 2 || lamp.Tags[0] != "light" {
		t.Errorf("tags = %v", lamp.Tags)
	}
	if path, _ := propsys.MetaPath(lamp); path != lampPath {
		t.Errorf("restore lost object metadata: %q", path)
	}
}

func TestTransactionCancelRestores(t *testing.T) {
	h := newHost(t)

	tx := h.Begin("Test Edit")
	if err := tx.Modify(lampPath); err != nil {
		t.Fatalf("modify: %v", err)
	}

	obj, _ := h.ResolveObject(lampPath)
	lamp := obj.(*host.SceneActor)
	lamp.DisplayName = "Broken"
	tx.Cancel()

	if lamp.DisplayName != "Lamp1" {
		t.Errorf("display name = %q, want rollback to Lamp1", lamp.DisplayName)
	}
}

func TestTransactionCommitKeepsChanges(t *testing.T) {
	h := newHost(t)

	tx := h.Begin("Test Edit")
	if err := tx.Modify(lampPath); err != nil {
		t.Fatalf("modify: %v", err)
	}
	obj, _ := h.ResolveObject(lampPath)
	lamp := obj.(*host.SceneActor)
	lamp.DisplayName = "Kept"
	tx.Commit()
	tx.Cancel() // deferred cancels after commit are no-ops

	if lamp.DisplayName != "Kept" {
		t.Errorf("display name = %q, want Kept", lamp.DisplayName)
	}
	if snaps := tx.Snapshots(); len(snaps) != 1 {
		t.Errorf("snapshots = %d, want 1", len(snaps))
	}
}

func TestObjectPathsGlob(t *testing.T) {
	h := newHost(t)

	all := h.ObjectPaths("")
	if len(all) != 4 {
		t.Fatalf("objects = %d, want 4", len(all))
	}
	lamps := h.ObjectPaths("*Lamp*")
	if len(lamps) != 1 || lamps[0] != lampPath {
		t.Errorf("lamps = %v", lamps)
	}
}
