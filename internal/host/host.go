// Package host is the in-memory editor the bridge drives: an object table
// keyed by path, package dirty tracking, the selection set, and the
// simulation flag that puts the bridge into safe mode. In a real embedding
// this package fronts the editor's own object model; standalone it carries
// the full state itself.
package host

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/forgebridge/forgebridge/internal/glob"
	"github.com/forgebridge/forgebridge/internal/propsys"
	"github.com/forgebridge/forgebridge/internal/protocol"
)

// PackageState tracks dirtiness for one content package.
type PackageState struct {
	Path    string    `json:"path"`
	Dirty   bool      `json:"dirty"`
	SavedAt time.Time `json:"saved_at,omitzero"`
}

// Host owns all live editor state.
type Host struct {
	mu         sync.RWMutex
	reg        *propsys.Registry
	objects    map[string]any
	packages   map[string]*PackageState
	selection  []string
	simulating bool
}

func New(reg *propsys.Registry) *Host {
	return &Host{
		reg:      reg,
		objects:  make(map[string]any),
		packages: make(map[string]*PackageState),
	}
}

// Registry exposes the property registry shared with the patch engines.
func (h *Host) Registry() *propsys.Registry { return h.reg }

// PackageNameOf reduces an object path to its owning package path:
// /Game/Maps/Arena.Arena:Lamp1 becomes /Game/Maps/Arena.
func PackageNameOf(objectPath string) string {
	p := objectPath
	if i := strings.Index(p, ":"); i >= 0 {
		p = p[:i]
	}
	if i := strings.Index(p, "."); i >= 0 {
		p = p[:i]
	}
	return p
}

// AddObject registers a host object under path. obj must be a pointer to a
// struct embedding propsys.ObjectMeta; the meta path is stamped here.
func (h *Host) AddObject(path string, obj any) error {
	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("host: object at %q must be a struct pointer", path)
	}
	meta := v.Elem().FieldByName("ObjectMeta")
	if !meta.IsValid() || meta.Type() != reflect.TypeOf(propsys.ObjectMeta{}) {
		return fmt.Errorf("host: object at %q does not embed propsys.ObjectMeta", path)
	}
	meta.Set(reflect.ValueOf(propsys.ObjectMeta{Path: path}))

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.objects[path]; exists {
		return fmt.Errorf("host: object %q already exists", path)
	}
	h.objects[path] = obj
	h.ensurePackageLocked(PackageNameOf(path))
	return nil
}

// ResolveObject implements propsys.Resolver.
func (h *Host) ResolveObject(path string) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	obj, ok := h.objects[path]
	return obj, ok
}

// ResolveTarget resolves a tool target. Component targets use the
// path:Component convention and resolve against the full path like any
// other object.
func (h *Host) ResolveTarget(targetType, path string) (any, *protocol.Diagnostic) {
	if path == "" {
		d := protocol.Errorf(protocol.CodeSchemaInvalidParams, "target.path is required")
		return nil, &d
	}
	obj, ok := h.ResolveObject(path)
	if !ok {
		d := protocol.Errorf(protocol.CodeObjectNotFound, "failed to resolve target object")
		d.Detail = fmt.Sprintf("type=%s path=%s", targetType, path)
		d.Suggestion = "verify object path and target type"
		return nil, &d
	}
	return obj, nil
}

// ObjectPaths lists object paths matching pattern, sorted. An empty pattern
// lists everything.
func (h *Host) ObjectPaths(pattern string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := []string{}
	for path := range h.objects {
		if glob.Match(pattern, path) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// RenameObject moves an object to a new path, dirtying both packages.
func (h *Host) RenameObject(oldPath, newPath string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	obj, ok := h.objects[oldPath]
	if !ok {
		return fmt.Errorf("host: object %q not found", oldPath)
	}
	if _, exists := h.objects[newPath]; exists {
		return fmt.Errorf("host: object %q already exists", newPath)
	}

	reflect.ValueOf(obj).Elem().FieldByName("ObjectMeta").
		Set(reflect.ValueOf(propsys.ObjectMeta{Path: newPath}))
	delete(h.objects, oldPath)
	h.objects[newPath] = obj

	h.markDirtyLocked(PackageNameOf(oldPath))
	h.markDirtyLocked(PackageNameOf(newPath))
	h.dropSelectionLocked(oldPath)
	return nil
}

// DeleteObject removes an object. The owning package disappears with its
// last object.
func (h *Host) DeleteObject(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.objects[path]; !ok {
		return false
	}
	delete(h.objects, path)
	h.dropSelectionLocked(path)

	pkg := PackageNameOf(path)
	remaining := false
	for p := range h.objects {
		if PackageNameOf(p) == pkg {
			remaining = true
			break
		}
	}
	if remaining {
		h.markDirtyLocked(pkg)
	} else {
		delete(h.packages, pkg)
	}
	return true
}

// MarkDirty flags the package owning objectPath as having unsaved changes.
func (h *Host) MarkDirty(objectPath string) {
	h.mu.Lock()
	h.markDirtyLocked(PackageNameOf(objectPath))
	h.mu.Unlock()
}

// SavePackage clears a package's dirty flag. Unknown packages fail.
func (h *Host) SavePackage(pkg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.packages[pkg]
	if !ok {
		return false
	}
	state.Dirty = false
	state.SavedAt = time.Now().UTC()
	return true
}

// Packages lists package states sorted by path.
func (h *Host) Packages() []PackageState {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]PackageState, 0, len(h.packages))
	for _, state := range h.packages {
		out = append(out, *state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Selection returns the selected object paths.
func (h *Host) Selection() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.selection))
	copy(out, h.selection)
	return out
}

// SetSelection replaces the selection. Every path must resolve.
func (h *Host) SetSelection(paths []string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range paths {
		if _, ok := h.objects[p]; !ok {
			return fmt.Errorf("host: object %q not found", p)
		}
	}
	h.selection = append([]string(nil), paths...)
	return nil
}

// SetSimulating toggles the live simulation session flag. While simulating,
// policy holds every write tool in safe mode.
func (h *Host) SetSimulating(on bool) {
	h.mu.Lock()
	h.simulating = on
	h.mu.Unlock()
	log.Info().Bool("simulating", on).Msg("host simulation state changed")
}

func (h *Host) Simulating() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.simulating
}

// SnapshotObject captures an object's full state as canonical JSON.
func (h *Host) SnapshotObject(path string) (string, error) {
	obj, ok := h.ResolveObject(path)
	if !ok {
		return "", fmt.Errorf("host: object %q not found", path)
	}
	val, diag := h.reg.ExportValue(reflect.ValueOf(obj).Elem(), -1)
	if diag != nil {
		return "", fmt.Errorf("host: snapshot of %q failed: %s", path, diag.Message)
	}
	return protocol.CanonicalJSON(val)
}

// RestoreObject overwrites an object's state from a snapshot produced by
// SnapshotObject.
func (h *Host) RestoreObject(path, snapshot string) error {
	obj, ok := h.ResolveObject(path)
	if !ok {
		return fmt.Errorf("host: object %q not found", path)
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(snapshot), &fields); err != nil {
		return fmt.Errorf("host: snapshot for %q is not valid JSON: %w", path, err)
	}
	// Merge rather than replace so the embedded object metadata survives.
	// Snapshots carry every exported property, so a merge is a full restore.
	if diag := h.reg.MergeFromJSON(reflect.ValueOf(obj).Elem(), fields, h); diag != nil {
		return fmt.Errorf("host: restore of %q failed: %s", path, diag.Message)
	}
	return nil
}

func (h *Host) ensurePackageLocked(pkg string) {
	if _, ok := h.packages[pkg]; !ok {
		h.packages[pkg] = &PackageState{Path: pkg}
	}
}

func (h *Host) markDirtyLocked(pkg string) {
	h.ensurePackageLocked(pkg)
	h.packages[pkg].Dirty = true
}

func (h *Host) dropSelectionLocked(path string) {
	for i, p := range h.selection {
		if p == path {
			h.selection = append(h.selection[:i], h.selection[i+1:]...)
			return
		}
	}
}
