package tools

import (
	"github.com/forgebridge/forgebridge/internal/protocol"
	"github.com/forgebridge/forgebridge/internal/registry"
)

var jobParamsSchema = map[string]any{
	"type":     "object",
	"required": []any{"job_id"},
	"properties": map[string]any{
		"job_id": map[string]any{"type": "string"},
	},
	"additionalProperties": false,
}

func registerJobTools(d Deps) error {
	if err := d.Registry.Register(registry.Definition{
		Name:         "job.get",
		Domain:       "job",
		Version:      "1.0.0",
		Enabled:      true,
		ParamsSchema: jobParamsSchema,
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			rec, ok := d.Jobs.Get(paramString(env.Params, "job_id"))
			if !ok {
				fail := protocol.Errorf(protocol.CodeJobNotFound, "job not found")
				fail.Detail = paramString(env.Params, "job_id")
				result.Fail(fail)
				return
			}
			result.Result["job"] = rec
		},
	}); err != nil {
		return err
	}

	return d.Registry.Register(registry.Definition{
		Name:         "job.cancel",
		Domain:       "job",
		Version:      "1.0.0",
		Enabled:      true,
		Write:        true,
		ParamsSchema: jobParamsSchema,
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			rec, ok := d.Jobs.Cancel(paramString(env.Params, "job_id"))
			if !ok {
				fail := protocol.Errorf(protocol.CodeJobNotFound, "job not found")
				fail.Detail = paramString(env.Params, "job_id")
				result.Fail(fail)
				return
			}
			result.Result["job"] = rec
		},
	})
}
