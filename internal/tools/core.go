package tools

import (
	"github.com/forgebridge/forgebridge/internal/protocol"
	"github.com/forgebridge/forgebridge/internal/registry"
)

func registerCoreTools(d Deps) error {
	if err := d.Registry.Register(registry.Definition{
		Name:    "tools.list",
		Domain:  "core",
		Version: "1.0.0",
		Enabled: true,
		ParamsSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"include_schemas": map[string]any{"type": "boolean"},
				"domain_filter":   map[string]any{"type": "string"},
			},
			"additionalProperties": false,
		},
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			includeSchemas := paramBool(env.Params, "include_schemas", true)
			domainFilter := paramString(env.Params, "domain_filter")

			result.Result["protocol_version"] = protocol.DefaultProtocol
			result.Result["schema_hash"] = d.Registry.SchemaHash()
			result.Result["capabilities"] = d.Registry.Capabilities()
			result.Result["tools"] = d.Registry.BuildToolsList(includeSchemas, domainFilter)
		},
	}); err != nil {
		return err
	}

	return d.Registry.Register(registry.Definition{
		Name:    "system.health",
		Domain:  "core",
		Version: "1.0.0",
		Enabled: true,
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			result.Result["bridge_version"] = d.Version
			result.Result["protocol_version"] = protocol.DefaultProtocol
			result.Result["safe_mode"] = d.Host.Simulating()
			result.Result["event_stream"] = d.Stream.Snapshot(8)
			result.Result["observability"] = d.Metrics.Snapshot(d.Jobs.StatusCounts())
			result.Result["locks_held"] = len(d.Locks.Held())
			result.Result["package_count"] = len(d.Host.Packages())
		},
	})
}
