package tools

import (
	"github.com/forgebridge/forgebridge/internal/changeset"
	"github.com/forgebridge/forgebridge/internal/protocol"
	"github.com/forgebridge/forgebridge/internal/registry"
)

func registerChangeSetTools(d Deps) error {
	if err := d.Registry.Register(registry.Definition{
		Name:    "changeset.list",
		Domain:  "changeset",
		Version: "1.0.0",
		Enabled: true,
		ParamsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"limit":         map[string]any{"type": "integer"},
				"cursor":        map[string]any{"type": "integer"},
				"status_filter": map[string]any{"type": "string"},
				"tool_glob":     map[string]any{"type": "string"},
				"session_id":    map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			records, nextCursor := d.ChangeSets.List(changeset.ListOptions{
				Limit:     paramInt(env.Params, "limit", 0),
				Cursor:    uint64(paramInt(env.Params, "cursor", 0)),
				Status:    paramString(env.Params, "status_filter"),
				ToolGlob:  paramString(env.Params, "tool_glob"),
				SessionID: paramString(env.Params, "session_id"),
			})
			result.Result["changesets"] = records
			result.Result["next_cursor"] = nextCursor
		},
	}); err != nil {
		return err
	}

	if err := d.Registry.Register(registry.Definition{
		Name:    "changeset.get",
		Domain:  "changeset",
		Version: "1.0.0",
		Enabled: true,
		ParamsSchema: map[string]any{
			"type":     "object",
			"required": []any{"changeset_id"},
			"properties": map[string]any{
				"changeset_id":      map[string]any{"type": "string"},
				"include_snapshots": map[string]any{"type": "boolean"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			rec, ok := d.ChangeSets.Get(
				paramString(env.Params, "changeset_id"),
				paramBool(env.Params, "include_snapshots", false),
			)
			if !ok {
				fail := protocol.Errorf(protocol.CodeChangeSetNotFound, "changeset not found")
				fail.Detail = paramString(env.Params, "changeset_id")
				result.Fail(fail)
				return
			}
			result.Result["changeset"] = rec
		},
	}); err != nil {
		return err
	}

	if err := d.Registry.Register(registry.Definition{
		Name:    "changeset.rollback.preview",
		Domain:  "changeset",
		Version: "1.0.0",
		Enabled: true,
		ParamsSchema: map[string]any{
			"type":     "object",
			"required": []any{"changeset_id"},
			"properties": map[string]any{
				"changeset_id": map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			plan, diag := d.ChangeSets.PreviewRollback(paramString(env.Params, "changeset_id"))
			if diag != nil {
				result.Fail(*diag)
				return
			}
			result.Result["plan"] = plan
		},
	}); err != nil {
		return err
	}

	return d.Registry.Register(registry.Definition{
		Name:    "changeset.rollback.apply",
		Domain:  "changeset",
		Version: "1.0.0",
		Enabled: true,
		Write:   true,
		ParamsSchema: map[string]any{
			"type":     "object",
			"required": []any{"changeset_id"},
			"properties": map[string]any{
				"changeset_id": map[string]any{"type": "string"},
				"force":        map[string]any{"type": "boolean"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			report, diag := d.ChangeSets.ApplyRollback(
				paramString(env.Params, "changeset_id"),
				paramBool(env.Params, "force", false),
			)
			if diag != nil {
				d.Metrics.RecordRollback(false)
				result.Fail(*diag)
				return
			}
			d.Metrics.RecordRollback(true)

			if touched, ok := report["touched_packages"].([]string); ok {
				for _, pkg := range touched {
					result.Touch(pkg)
				}
			}
			if restored, ok := report["restored_objects"].([]string); ok {
				for _, path := range restored {
					result.Artifacts = append(result.Artifacts, protocol.Artifact{ObjectPath: path, Action: "restored"})
				}
			}
			result.Result["rollback"] = report
		},
	})
}
