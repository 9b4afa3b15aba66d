package tools

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/forgebridge/forgebridge/internal/host"
	"github.com/forgebridge/forgebridge/internal/protocol"
	"github.com/forgebridge/forgebridge/internal/registry"
)

func registerAssetTools(d Deps) error {
	if err := d.Registry.Register(registry.Definition{
		Name:    "asset.find",
		Domain:  "asset",
		Version: "1.0.0",
		Enabled: true,
		ParamsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			paths := d.Host.ObjectPaths(paramString(env.Params, "query"))
			if limit := paramInt(env.Params, "limit", 0); limit > 0 && len(paths) > limit {
				paths = paths[:limit]
			}
			result.Result["assets"] = paths
			result.Result["count"] = len(paths)
		},
	}); err != nil {
		return err
	}

	if err := d.Registry.Register(registry.Definition{
		Name:         "asset.save",
		Domain:       "asset",
		Version:      "1.0.0",
		Enabled:      true,
		Write:        true,
		LockKeyParam: "package_path",
		ParamsSchema: map[string]any{
			"type":     "object",
			"required": []any{"package_path"},
			"properties": map[string]any{
				"package_path": map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			pkg := paramString(env.Params, "package_path")
			if !d.Host.SavePackage(pkg) {
				fail := protocol.Errorf(protocol.CodeAssetNotFound, "package not found")
				fail.Detail = pkg
				result.Fail(fail)
				return
			}
			result.Touch(pkg)
			result.Result["saved"] = true
			result.Result["package_path"] = pkg
		},
	}); err != nil {
		return err
	}

	if err := d.Registry.Register(registry.Definition{
		Name:         "asset.rename",
		Domain:       "asset",
		Version:      "1.0.0",
		Enabled:      true,
		Write:        true,
		LockKeyParam: "object_path",
		ParamsSchema: map[string]any{
			"type":     "object",
			"required": []any{"object_path", "new_object_path"},
			"properties": map[string]any{
				"object_path":     map[string]any{"type": "string"},
				"new_object_path": map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			handleAssetRename(d, env, result)
		},
	}); err != nil {
		return err
	}

	return d.Registry.Register(registry.Definition{
		Name:         "asset.delete",
		Domain:       "asset",
		Version:      "1.0.0",
		Enabled:      true,
		Write:        true,
		LockKeyParam: "object_path",
		ParamsSchema: map[string]any{
			"type":     "object",
			"required": []any{"object_path"},
			"properties": map[string]any{
				"object_path":   map[string]any{"type": "string"},
				"confirm_token": map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			handleAssetDelete(d, env, result)
		},
	})
}

func handleAssetRename(d Deps, env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
	oldPath := paramString(env.Params, "object_path")
	newPath := paramString(env.Params, "new_object_path")

	if _, ok := d.Host.ResolveObject(oldPath); !ok {
		fail := protocol.Errorf(protocol.CodeAssetNotFound, "source object not found")
		fail.Detail = oldPath
		result.Fail(fail)
		return
	}
	if _, exists := d.Host.ResolveObject(newPath); exists {
		fail := protocol.Errorf(protocol.CodeAssetAlreadyExists, "destination object already exists")
		fail.Detail = newPath
		result.Fail(fail)
		return
	}
	if env.DryRun {
		result.Result["dry_run"] = true
		result.Result["would_rename"] = map[string]any{"from": oldPath, "to": newPath}
		return
	}
	if err := d.Host.RenameObject(oldPath, newPath); err != nil {
		fail := protocol.Errorf(protocol.CodeInternalException, "rename failed")
		fail.Detail = err.Error()
		result.Fail(fail)
		return
	}

	result.Touch(host.PackageNameOf(oldPath))
	result.Touch(host.PackageNameOf(newPath))
	result.Artifacts = append(result.Artifacts, protocol.Artifact{ObjectPath: newPath, Action: "renamed"})
	result.Result["object_path"] = newPath
}

// handleAssetDelete is two-phase: the first call issues a confirmation token
// and fails with CONFIRMATION_REQUIRED; the retry carrying the token
// performs the deletion. Tokens are single use and expire.
func handleAssetDelete(d Deps, env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
	path := paramString(env.Params, "object_path")
	if _, ok := d.Host.ResolveObject(path); !ok {
		fail := protocol.Errorf(protocol.CodeAssetNotFound, "object not found")
		fail.Detail = path
		result.Fail(fail)
		return
	}
	if env.DryRun {
		result.Result["dry_run"] = true
		result.Result["would_delete"] = path
		return
	}

	token := paramString(env.Params, "confirm_token")
	if token == "" {
		issued := uuid.NewString()
		expires := d.confirmations.issue(issued, "delete|"+path)
		result.Result["confirm_token"] = issued
		result.Result["expires_at"] = expires

		fail := protocol.Errorf(protocol.CodeConfirmationRequired, "deletion requires confirmation")
		fail.Detail = path
		fail.Suggestion = "retry with the issued confirm_token"
		result.Fail(fail)
		return
	}

	if !d.confirmations.consume(token, "delete|"+path) {
		fail := protocol.Errorf(protocol.CodeAssetDeleteFailed, "confirmation token is invalid or expired")
		fail.Detail = path
		result.Fail(fail)
		return
	}
	if !d.Host.DeleteObject(path) {
		fail := protocol.Errorf(protocol.CodeAssetDeleteFailed, "object disappeared before deletion")
		fail.Detail = path
		result.Fail(fail)
		return
	}

	log.Info().Str("path", path).Msg("asset deleted")
	result.Touch(host.PackageNameOf(path))
	result.Artifacts = append(result.Artifacts, protocol.Artifact{ObjectPath: path, Action: "deleted"})
	result.Result["deleted"] = true
}
