package tools

import (
	"github.com/google/uuid"

	"github.com/forgebridge/forgebridge/internal/host"
	"github.com/forgebridge/forgebridge/internal/patch"
	"github.com/forgebridge/forgebridge/internal/propsys"
	"github.com/forgebridge/forgebridge/internal/protocol"
	"github.com/forgebridge/forgebridge/internal/registry"
)

func registerSettingsTools(d Deps) error {
	if err := d.Registry.Register(registry.Definition{
		Name:    "settings.project.get",
		Domain:  "settings",
		Version: "1.0.0",
		Enabled: true,
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			obj, diag := d.Host.ResolveTarget("object", host.ProjectSettingsPath)
			if diag != nil {
				result.Fail(*diag)
				return
			}
			descriptors, diag := d.Host.Registry().Inspect(obj, propsys.InspectOptions{
				OnlyEditable: false,
				Depth:        3,
			})
			if diag != nil {
				result.Fail(*diag)
				return
			}
			result.Result["object_path"] = host.ProjectSettingsPath
			result.Result["properties"] = descriptors
		},
	}); err != nil {
		return err
	}

	if err := d.Registry.Register(registry.Definition{
		Name:    "settings.project.patch",
		Domain:  "settings",
		Version: "1.0.0",
		Enabled: true,
		Write:   true,
		ParamsSchema: map[string]any{
			"type":     "object",
			"required": []any{"patch"},
			"properties": map[string]any{
				"patch": map[string]any{
					"type":     "array",
					"minItems": float64(1),
					"items":    map[string]any{"type": "object"},
				},
				"transaction": map[string]any{"type": "object"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			handleSettingsPatch(d, env, result)
		},
	}); err != nil {
		return err
	}

	return d.Registry.Register(registry.Definition{
		Name:    "settings.project.apply",
		Domain:  "settings",
		Version: "1.0.0",
		Enabled: true,
		Write:   true,
		ParamsSchema: map[string]any{
			"type":     "object",
			"required": []any{"patch"},
			"properties": map[string]any{
				"patch": map[string]any{
					"type":     "array",
					"minItems": float64(1),
					"items":    map[string]any{"type": "object"},
				},
				"confirm_token": map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			handleSettingsApply(d, env, result)
		},
	})
}

func handleSettingsPatch(d Deps, env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
	rawOps, _ := paramArray(env.Params, "patch")
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
	applySettingsOps(d, result, ops, "Project Settings Patch")
}

// handleSettingsApply is the confirmed variant: the first call returns a
// token bound to the exact patch batch; the retry with the token applies it.
// A retry with a different batch invalidates the token.
func handleSettingsApply(d Deps, env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
	rawOps, _ := paramArray(env.Params, "patch")
	ops, diag := patch.ParseOps(rawOps)
	if diag != nil {
		result.Fail(*diag)
		return
	}

	signature := "settings|" + protocol.HashParams(map[string]any{"patch": rawOps})
	token := paramString(env.Params, "confirm_token")
	if token == "" {
		issued := uuid.NewString()
		expires := d.confirmations.issue(issued, signature)
		result.Result["confirm_token"] = issued
		result.Result["expires_at"] = expires

		fail := protocol.Errorf(protocol.CodeConfirmationRequired, "settings batch requires confirmation")
		fail.Suggestion = "retry with the issued confirm_token and the identical patch"
		result.Fail(fail)
		return
	}
	if !d.confirmations.consume(token, signature) {
		fail := protocol.Errorf(protocol.CodeSchemaInvalidParams, "confirmation token is invalid, expired, or bound to a different batch")
		result.Fail(fail)
		return
	}

	applySettingsOps(d, result, ops, "Project Settings Apply")
}

func applySettingsOps(d Deps, result *protocol.ExecutionResult, ops []patch.Op, label string) {
	obj, diag := d.Host.ResolveTarget("object", host.ProjectSettingsPath)
	if diag != nil {
		result.Fail(*diag)
		return
	}

	tx := d.Host.Begin(label)
	defer tx.Cancel()
	if err := tx.Modify(host.ProjectSettingsPath); err != nil {
		fail := protocol.Errorf(protocol.CodeInternalException, "failed to snapshot project settings")
		fail.Detail = err.Error()
		result.Fail(fail)
		return
	}

	changed, diag := d.Patch.Apply(obj, ops)
	if diag != nil {
		result.Fail(*diag)
		return
	}
	result.Snapshots = tx.Snapshots()
	tx.Commit()

	result.ChangedProperties = changed
	result.Result["changed_properties"] = changed
	result.Touch(host.PackageNameOf(host.ProjectSettingsPath))
	result.Artifacts = append(result.Artifacts, protocol.Artifact{ObjectPath: host.ProjectSettingsPath, Action: "modified"})
}
