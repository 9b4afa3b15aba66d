package tools

import (
	"github.com/forgebridge/forgebridge/internal/protocol"
	"github.com/forgebridge/forgebridge/internal/registry"
)

func registerWorldTools(d Deps) error {
	if err := d.Registry.Register(registry.Definition{
		Name:    "world.outliner.list",
		Domain:  "world",
		Version: "1.0.0",
		Enabled: true,
		ParamsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path_glob": map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			paths := d.Host.ObjectPaths(paramString(env.Params, "path_glob"))
			result.Result["object_paths"] = paths
			result.Result["count"] = len(paths)
		},
	}); err != nil {
		return err
	}

	if err := d.Registry.Register(registry.Definition{
		Name:    "world.selection.get",
		Domain:  "world",
		Version: "1.0.0",
		Enabled: true,
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			result.Result["selected"] = d.Host.Selection()
		},
	}); err != nil {
		return err
	}

	return d.Registry.Register(registry.Definition{
		Name:    "world.selection.set",
		Domain:  "world",
		Version: "1.0.0",
		Enabled: true,
		Write:   true,
		ParamsSchema: map[string]any{
			"type":     "object",
			"required": []any{"object_paths"},
			"properties": map[string]any{
				"object_paths": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			raw, _ := paramArray(env.Params, "object_paths")
			paths := make([]string, 0, len(raw))
			for _, entry := range raw {
				if p, ok := entry.(string); ok {
					paths = append(paths, p)
				}
			}
			if err := d.Host.SetSelection(paths); err != nil {
				fail := protocol.Errorf(protocol.CodeObjectNotFound, "selection contains an unknown object")
				fail.Detail = err.Error()
				result.Fail(fail)
				return
			}
			result.Result["selected"] = paths
		},
	})
}
