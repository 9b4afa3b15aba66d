package host

import (
	"fmt"

	"github.com/forgebridge/forgebridge/internal/propsys"
)

// ProjectSettingsPath is where the singleton project settings object lives.
const ProjectSettingsPath = "/Project/Settings.ProjectSettings"

// Mobility mirrors the editor's actor mobility enum.
type Mobility int

const (
	MobilityStatic Mobility = iota
	MobilityStationary
	MobilityMovable
)

// Vector is a 3-component vector.
type Vector struct {
	X float64 `json:"x" bridge:"edit"`
	Y float64 `json:"y" bridge:"edit"`
	Z float64 `json:"z" bridge:"edit"`
}

// Color is a linear RGBA color.
type Color struct {
	R float64 `json:"r" bridge:"edit"`
	G float64 `json:"g" bridge:"edit"`
	B float64 `json:"b" bridge:"edit"`
	A float64 `json:"a" bridge:"edit"`
}

// Transform is an actor transform.
type Transform struct {
	Location Vector `json:"location" bridge:"edit"`
	Rotation Vector `json:"rotation" bridge:"edit"`
	Scale    Vector `json:"scale" bridge:"edit"`
}

// MaterialSlot is one material binding on an actor.
type MaterialSlot struct {
	Name      string  `json:"name" bridge:"edit"`
	Tint      Color   `json:"tint" bridge:"edit"`
	Roughness float64 `json:"roughness" bridge:"edit"`
}

// SceneActor is the demo world's actor type, covering every property kind
// the patch engines traverse.
type SceneActor struct {
	propsys.ObjectMeta
	DisplayName  string              `json:"display_name" bridge:"edit,category=Identity"`
	Folder       string              `json:"folder" bridge:"edit,category=Identity"`
	Visible      bool                `json:"visible" bridge:"edit,category=Rendering"`
	Intensity    float64             `json:"intensity" bridge:"edit,category=Rendering"`
	LODBias      int                 `json:"lod_bias" bridge:"edit,category=Rendering"`
	Mobility     Mobility            `json:"mobility" bridge:"edit,category=Transform"`
	Transform    Transform           `json:"transform" bridge:"edit,category=Transform"`
	Tags         []string            `json:"tags" bridge:"edit,category=Identity"`
	Materials    []MaterialSlot      `json:"materials" bridge:"edit,category=Rendering"`
	Metadata     map[string]string   `json:"metadata" bridge:"edit,category=Identity"`
	Badges       map[string]struct{} `json:"badges" bridge:"edit,category=Identity"`
	AttachParent *SceneActor         `json:"attach_parent" bridge:"edit,category=Transform"`
	MeshRef      propsys.SoftRef     `json:"mesh_ref" bridge:"edit,category=Rendering"`
	InternalID   string              `json:"internal_id" bridge:"category=Internal"`
	CachedBounds Vector              `json:"cached_bounds" bridge:"transient"`
}

// ProjectSettings is the singleton settings object behind the
// settings.project tools.
type ProjectSettings struct {
	propsys.ObjectMeta
	ProjectName       string            `json:"project_name" bridge:"edit,category=General"`
	DefaultMap        string            `json:"default_map" bridge:"edit,category=Maps"`
	GameMode          propsys.SoftRef   `json:"game_mode" bridge:"edit,category=Maps"`
	MaxPlayers        int               `json:"max_players" bridge:"edit,category=Gameplay"`
	StreamingDistance float64           `json:"streaming_distance" bridge:"edit,category=Rendering"`
	EnabledPlugins    []string          `json:"enabled_plugins" bridge:"edit,category=General"`
	ConsoleVariables  map[string]string `json:"console_variables" bridge:"edit,category=General"`
	EngineVersion     string            `json:"engine_version" bridge:"category=General"`
}

// RegisterWorldTypes registers the demo world's types, class defaults, and
// enums on a property registry.
func RegisterWorldTypes(reg *propsys.Registry) error {
	if err := reg.RegisterEnum("Mobility", Mobility(0), map[string]int64{
		"Static":     int64(MobilityStatic),
		"Stationary": int64(MobilityStationary),
		"Movable":    int64(MobilityMovable),
	}); err != nil {
		return err
	}
	if err := reg.RegisterType("SceneActor", defaultSceneActor()); err != nil {
		return err
	}
	return reg.RegisterType("ProjectSettings", defaultProjectSettings())
}

func defaultSceneActor() *SceneActor {
	return &SceneActor{
		Visible:   true,
		Intensity: 1.0,
		Mobility:  MobilityStatic,
		Transform: Transform{Scale: Vector{X: 1, Y: 1, Z: 1}},
	}
}

func defaultProjectSettings() *ProjectSettings {
	return &ProjectSettings{
		ProjectName:   "Untitled",
		MaxPlayers:    4,
		EngineVersion: "5.4",
	}
}

// SeedDemoWorld populates a host with a small scene and the project settings
// singleton. Used by the standalone server and tests.
func SeedDemoWorld(h *Host) error {
	settings := defaultProjectSettings()
	settings.ProjectName = "ForgeDemo"
	settings.DefaultMap = "/Game/Maps/Arena"
	if err := h.AddObject(ProjectSettingsPath, settings); err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}

	actors := map[string]*SceneActor{
		"/Game/Maps/Arena.Arena:Lamp1": {
			DisplayName: "Lamp1",
			Folder:      "Lighting",
			Visible:     true,
			Intensity:   5000,
			Mobility:    MobilityStationary,
			Transform:   Transform{Location: Vector{X: 100, Y: 200, Z: 300}, Scale: Vector{X: 1, Y: 1, Z: 1}},
			Tags:        []string{"light", "interior"},
			Metadata:    map[string]string{"zone": "lobby"},
		},
		"/Game/Maps/Arena.Arena:Crate1": {
			DisplayName: "Crate1",
			Folder:      "Props",
			Visible:     true,
			Intensity:   1,
			Transform:   Transform{Scale: Vector{X: 1, Y: 1, Z: 1}},
			Materials:   []MaterialSlot{{Name: "Wood", Roughness: 0.8, Tint: Color{R: 0.6, G: 0.4, B: 0.2, A: 1}}},
			MeshRef:     propsys.SoftRef{Path: "/Game/Meshes/Crate"},
		},
		"/Game/Maps/Arena.Arena:Spawn1": {
			DisplayName: "Spawn1",
			Folder:      "Gameplay",
			Visible:     true,
			Intensity:   1,
			Mobility:    MobilityMovable,
			Transform:   Transform{Location: Vector{Z: 50}, Scale: Vector{X: 1, Y: 1, Z: 1}},
			Tags:        []string{"spawn"},
		},
	}
	for path, actor := range actors {
		if err := h.AddObject(path, actor); err != nil {
			return fmt.Errorf("seed actor %s: %w", path, err)
		}
	}
	return nil
}
