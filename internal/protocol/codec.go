package protocol

import (
	"encoding/json"
	"strings"
)

// ParseRequest decodes a raw request body into an envelope, applying the
// documented defaults for optional fields. A nil diagnostic means the
// envelope is usable; otherwise the diagnostic describes the first problem.
func ParseRequest(raw string) (*RequestEnvelope, *Diagnostic) {
	var body map[string]any
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		d := Errorf(CodeSchemaInvalidParams, "request body is not valid JSON")
		d.Detail = err.Error()
		return nil, &d
	}

	env := &RequestEnvelope{
		Protocol:  DefaultProtocol,
		SessionID: DefaultSessionID,
		TimeoutMs: DefaultTimeoutMs,
		Params:    map[string]any{},
	}

	if v, ok := body["protocol"].(string); ok && v != "" {
		env.Protocol = v
	}
	if v, ok := body["session_id"].(string); ok && v != "" {
		env.SessionID = v
	}

	v, ok := body["request_id"].(string)
	if !ok || v == "" {
		d := Errorf(CodeSchemaInvalidParams, "request_id is required")
		return nil, &d
	}
	env.RequestID = v

	v, ok = body["tool"].(string)
	if !ok || v == "" {
		d := Errorf(CodeSchemaInvalidParams, "tool is required")
		return nil, &d
	}
	env.Tool = v

	if p, ok := body["params"].(map[string]any); ok {
		env.Params = p
	}
	if c, ok := body["context"].(map[string]any); ok {
		parseContext(c, env)
	}
	return env, nil
}

// parseContext reads the execution controls nested under the request's
// "context" object.
func parseContext(ctx map[string]any, env *RequestEnvelope) {
	if v, ok := ctx["project_id"].(string); ok {
		env.ProjectID = v
	}
	if v, ok := ctx["workspace_id"].(string); ok {
		env.WorkspaceID = v
	}
	if v, ok := ctx["engine_version"].(string); ok {
		env.EngineVersion = v
	}
	if v, ok := ctx["deterministic"].(bool); ok {
		env.Deterministic = v
	}
	if v, ok := ctx["dry_run"].(bool); ok {
		env.DryRun = v
	}
	if v, ok := ctx["idempotency_key"].(string); ok {
		env.IdempotencyKey = v
	}
	if v, ok := ctx["timeout_ms"].(float64); ok {
		env.TimeoutMs = int64(v)
		env.HasTimeoutOverride = true
	}
	if v, ok := ctx["cancel_token"].(string); ok {
		env.CancelToken = v
		env.HasCancelToken = true
	}
}

// ValidateProtocol reports whether the envelope's protocol string carries the
// accepted major-version prefix.
func ValidateProtocol(proto string) bool {
	return strings.HasPrefix(proto, ProtocolPrefix)
}

type diagnosticsPayload struct {
	Errors   []Diagnostic `json:"errors"`
	Warnings []Diagnostic `json:"warnings"`
	Infos    []Diagnostic `json:"infos"`
}

type metricsPayload struct {
	DurationMs int64 `json:"duration_ms"`
}

type responsePayload struct {
	RequestID        string             `json:"request_id"`
	Status           Status             `json:"status"`
	Result           map[string]any     `json:"result"`
	ChangeSetID      *string            `json:"changeset_id"`
	TouchedPackages  []string           `json:"touched_packages"`
	Diagnostics      diagnosticsPayload `json:"diagnostics"`
	Artifacts        []Artifact         `json:"artifacts"`
	Metrics          metricsPayload     `json:"metrics"`
	IdempotentReplay bool               `json:"idempotent_replay"`
}

// BuildResponse serializes a result into the response envelope. Diagnostics
// with an unknown severity land in the errors bucket so they are never
// silently dropped.
func BuildResponse(requestID string, result *ExecutionResult, durationMs int64) string {
	payload := responsePayload{
		RequestID:        requestID,
		Status:           result.Status,
		Result:           result.Result,
		TouchedPackages:  result.TouchedResources,
		Artifacts:        result.Artifacts,
		Metrics:          metricsPayload{DurationMs: durationMs},
		IdempotentReplay: result.IdempotentReplay,
	}
	if payload.Result == nil {
		payload.Result = map[string]any{}
	}
	if payload.TouchedPackages == nil {
		payload.TouchedPackages = []string{}
	}
	if payload.Artifacts == nil {
		payload.Artifacts = []Artifact{}
	}
	if result.ChangeSetID != "" {
		id := result.ChangeSetID
		payload.ChangeSetID = &id
	}
	payload.Diagnostics = diagnosticsPayload{
		Errors:   []Diagnostic{},
		Warnings: []Diagnostic{},
		Infos:    []Diagnostic{},
	}
	for _, d := range result.Diagnostics {
		switch d.Severity {
		case SeverityWarning:
			payload.Diagnostics.Warnings = append(payload.Diagnostics.Warnings, d)
		case SeverityInfo:
			payload.Diagnostics.Infos = append(payload.Diagnostics.Infos, d)
		default:
			payload.Diagnostics.Errors = append(payload.Diagnostics.Errors, d)
		}
	}

	out, err := json.Marshal(payload)
	if err != nil {
		// Marshal of this shape cannot fail with well-formed inputs; keep a
		// minimal envelope rather than panic in the request path.
		fallback, _ := json.Marshal(map[string]any{
			"request_id": requestID,
			"status":     StatusError,
		})
		return string(fallback)
	}
	return string(out)
}
