package tools

import (
	"reflect"

	"github.com/forgebridge/forgebridge/internal/host"
	"github.com/forgebridge/forgebridge/internal/patch"
	"github.com/forgebridge/forgebridge/internal/propsys"
	"github.com/forgebridge/forgebridge/internal/protocol"
	"github.com/forgebridge/forgebridge/internal/registry"
)

var patchParamsSchema = map[string]any{
	"type":     "object",
	"required": []any{"target", "patch"},
	"properties": map[string]any{
		"target": map[string]any{
			"type":     "object",
			"required": []any{"path"},
			"properties": map[string]any{
				"type": map[string]any{"type": "string"},
				"path": map[string]any{"type": "string"},
			},
		},
		"patch": map[string]any{
			"type":     "array",
			"minItems": float64(1),
			"items":    map[string]any{"type": "object"},
		},
		"transaction": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"label": map[string]any{"type": "string"},
			},
		},
	},
	"additionalProperties": false,
}

func registerObjectTools(d Deps) error {
	if err := d.Registry.Register(registry.Definition{
		Name:    "object.inspect",
		Domain:  "object",
		Version: "1.0.0",
		Enabled: true,
		ParamsSchema: map[string]any{
			"type":     "object",
			"required": []any{"target"},
			"properties": map[string]any{
				"target":  map[string]any{"type": "object"},
				"filters": map[string]any{"type": "object"},
				"depth":   map[string]any{"type": "integer"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			handleObjectInspect(d, env, result)
		},
	}); err != nil {
		return err
	}

	if err := d.Registry.Register(registry.Definition{
		Name:         "object.patch",
		Domain:       "object",
		Version:      "1.0.0",
		Enabled:      true,
		Write:        true,
		ParamsSchema: patchParamsSchema,
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			handleObjectPatch(d, env, result, d.Patch.ApplyFlat)
		},
	}); err != nil {
		return err
	}

	return d.Registry.Register(registry.Definition{
		Name:         "object.patch.v2",
		Domain:       "object",
		Version:      "2.0.0",
		Enabled:      true,
		Write:        true,
		ParamsSchema: patchParamsSchema,
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			handleObjectPatch(d, env, result, d.Patch.Apply)
		},
	})
}

func handleObjectInspect(d Deps, env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
	target := paramObject(env.Params, "target")
	obj, diag := d.Host.ResolveTarget(paramString(target, "type"), paramString(target, "path"))
	if diag != nil {
		result.Fail(*diag)
		return
	}

	filters := paramObject(env.Params, "filters")
	opts := propsys.InspectOptions{
		OnlyEditable:     paramBool(filters, "only_editable", true),
		IncludeTransient: paramBool(filters, "include_transient", false),
		CategoryGlob:     paramString(filters, "category_glob"),
		NameGlob:         paramString(filters, "property_name_glob"),
		Depth:            paramInt(env.Params, "depth", 2),
	}

	descriptors, diag := d.Host.Registry().Inspect(obj, opts)
	if diag != nil {
		result.Fail(*diag)
		return
	}

	path := paramString(target, "path")
	result.Result["object_path"] = path
	if name, ok := d.Host.Registry().TypeName(reflect.TypeOf(obj).Elem()); ok {
		result.Result["class"] = name
	}
	result.Result["properties"] = descriptors
}

type applyFunc func(target any, ops []patch.Op) ([]string, *protocol.Diagnostic)

func handleObjectPatch(d Deps, env *protocol.RequestEnvelope, result *protocol.ExecutionResult, apply applyFunc) {
	target := paramObject(env.Params, "target")
	path := paramString(target, "path")
	obj, diag := d.Host.ResolveTarget(paramString(target, "type"), path)
	if diag != nil {
		result.Fail(*diag)
		return
	}

	rawOps, ok := paramArray(env.Params, "patch")
	if !ok {
		result.Fail(protocol.Errorf(protocol.CodeSchemaInvalidParams, "patch array is required"))
		return
	}
	ops, diag := patch.ParseOps(rawOps)
	if diag != nil {
		result.Fail(*diag)
		return
	}

	if env.DryRun {
		roots, diag := patch.DryRunRoots(ops)
		if diag != nil {
			result.Fail(*diag)
			return
		}
		result.Result["dry_run"] = true
		result.Result["changed_properties"] = roots
		return
	}

	label := paramString(paramObject(env.Params, "transaction"), "label")
	if label == "" {
		label = "Object Patch"
	}
	tx := d.Host.Begin(label)
	defer tx.Cancel()

	if err := tx.Modify(path); err != nil {
		fail := protocol.Errorf(protocol.CodeInternalException, "failed to snapshot target object")
		fail.Detail = err.Error()
		result.Fail(fail)
		return
	}

	changed, diag := apply(obj, ops)
	if diag != nil {
		result.Fail(*diag)
		return
	}
	result.Snapshots = tx.Snapshots()
	tx.Commit()

	result.ChangedProperties = changed
	result.Result["changed_properties"] = changed
	result.Touch(host.PackageNameOf(path))
	result.Artifacts = append(result.Artifacts, protocol.Artifact{ObjectPath: path, Action: "modified"})
}
