// Package router orchestrates request execution: parse, protocol and schema
// validation, cancel-token and idempotency checks, policy preflight, lock
// acquisition, tool dispatch, timeout downgrade, change-set capture, job
// finalization, and metrics.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/forgebridge/forgebridge/internal/changeset"
	"github.com/forgebridge/forgebridge/internal/events"
	"github.com/forgebridge/forgebridge/internal/host"
	"github.com/forgebridge/forgebridge/internal/idempotency"
	"github.com/forgebridge/forgebridge/internal/jobs"
	"github.com/forgebridge/forgebridge/internal/lock"
	"github.com/forgebridge/forgebridge/internal/observability"
	"github.com/forgebridge/forgebridge/internal/policy"
	"github.com/forgebridge/forgebridge/internal/protocol"
	"github.com/forgebridge/forgebridge/internal/registry"
)

// Config wires the router's collaborators.
type Config struct {
	Registry   *registry.Registry
	Policy     policy.Policy
	Locks      *lock.Manager
	Cache      *idempotency.Cache
	Jobs       *jobs.Tracker
	ChangeSets changeset.Store
	Stream     *events.Stream
	Metrics    *observability.Metrics
}

// Router executes requests end to end.
type Router struct {
	cfg    Config
	tracer trace.Tracer
}

func New(cfg Config) *Router {
	return &Router{cfg: cfg, tracer: otel.Tracer("forgebridge/router")}
}

// Execute runs one raw request through the pipeline and returns the response
// JSON plus whether the request succeeded (status is not error).
func (r *Router) Execute(ctx context.Context, raw string) (string, bool) {
	start := time.Now()

	_, span := r.tracer.Start(ctx, "mcp.request")
	defer span.End()

	if name := r.cfg.missingCollaborator(); name != "" {
		requestID := "invalid-request"
		if env, d := protocol.ParseRequest(raw); d == nil {
			requestID = env.RequestID
		}
		result := protocol.NewResult()
		d := protocol.Errorf(protocol.CodeInternalException, "bridge subsystem is unavailable")
		d.Detail = name
		result.Fail(d)
		log.Error().Str("request_id", requestID).Str("subsystem", name).Msg("request refused")
		return protocol.BuildResponse(requestID, result, durationMs(start)), false
	}

	env, parseDiag := protocol.ParseRequest(raw)
	if parseDiag != nil {
		r.cfg.Metrics.RecordSchemaInvalid()
		result := protocol.NewResult()
		result.Fail(*parseDiag)
		resp := protocol.BuildResponse("invalid-request", result, durationMs(start))
		r.cfg.Metrics.RecordRequest("unknown", protocol.StatusError, durationMs(start), false)
		return resp, false
	}

	span.SetAttributes(
		attribute.String("mcp.tool", env.Tool),
		attribute.String("mcp.request_id", env.RequestID),
		attribute.String("mcp.session_id", env.SessionID),
	)

	r.cfg.Stream.Progress(env.RequestID, "", 5, "request.parsed")
	r.cfg.Stream.Log(env.RequestID, "info", "received request for tool "+env.Tool)

	if !protocol.ValidateProtocol(env.Protocol) {
		d := protocol.Errorf(protocol.CodeSchemaInvalidParams, "protocol version is not supported")
		d.Detail = env.Protocol
		d.Suggestion = "use protocol " + protocol.DefaultProtocol
		return r.failStage(env, start, "protocol", d, false), false
	}

	if d := r.cfg.Registry.ValidateRequest(env); d != nil {
		r.cfg.Metrics.RecordSchemaInvalid()
		return r.failStage(env, start, "schema", *d, true), false
	}
	r.cfg.Stream.Progress(env.RequestID, "", 20, "request.schema_validated")

	if env.HasCancelToken && r.cfg.Jobs.IsTokenCanceled(env.CancelToken) {
		r.cfg.Metrics.RecordCancelRejected()
		d := protocol.Errorf(protocol.CodeJobCanceled, "request was canceled before execution")
		d.Detail = env.CancelToken
		return r.failStage(env, start, "canceled", d, true), false
	}

	paramsHash := protocol.HashParams(env.Params)
	baseKey := ""
	if env.IdempotencyKey != "" {
		baseKey = idempotency.BaseKey(env.SessionID, env.Tool, env.IdempotencyKey)
		switch outcome, cached := r.cfg.Cache.Check(baseKey, paramsHash); outcome {
		case idempotency.Replay:
			return r.replay(env, start, cached), true
		case idempotency.Conflict:
			r.cfg.Metrics.RecordIdempotencyConflict()
			d := protocol.Errorf(protocol.CodeIdempotencyConflict, "idempotency key was reused with different params")
			d.Detail = env.IdempotencyKey
			return r.failStage(env, start, "idempotency", d, true), false
		}
	}

	if env.HasTimeoutOverride && env.TimeoutMs <= 0 {
		r.cfg.Metrics.RecordSchemaInvalid()
		d := protocol.Errorf(protocol.CodeSchemaInvalidParams, "timeout_ms must be a positive integer")
		return r.failStage(env, start, "timeout", d, true), false
	}

	write := r.cfg.Registry.IsWriteTool(env.Tool)
	if write {
		r.cfg.Stream.Progress(env.RequestID, "", 30, "request.write_preflight")
	}
	if d := r.cfg.Policy.PreflightAuthorize(env, write); d != nil {
		if d.Code == protocol.CodeEditorUnsafeState {
			r.cfg.Metrics.RecordSafeModeBlock()
		} else {
			r.cfg.Metrics.RecordPolicyDeny()
		}
		return r.failStage(env, start, "policy", *d, true), false
	}

	if write {
		r.cfg.Metrics.RecordStaleReclaimed(r.cfg.Locks.ReclaimStale())

		lockKey := r.resolveLockKey(env)
		lockStart := time.Now()
		acquired, holder := r.cfg.Locks.Acquire(lockKey, env.RequestID, lock.DefaultLease)
		if !acquired {
			r.cfg.Metrics.RecordLockConflict()
			d := protocol.Errorf(protocol.CodeLockConflict, "resource is locked by another request")
			d.Retriable = true
			d.Detail = fmt.Sprintf("lock_key=%s owner=%s", lockKey, holder.Owner)
			d.Suggestion = "retry after the lease expires"
			return r.failStage(env, start, "lock", d, true), false
		}
		r.cfg.Metrics.RecordLockWait(time.Since(lockStart).Milliseconds())
		defer r.cfg.Locks.Release(lockKey, env.RequestID)
		r.cfg.Stream.Progress(env.RequestID, "", 45, "request.lock_acquired")
	}

	jobID := ""
	if env.HasTimeoutOverride || env.HasCancelToken {
		job := r.cfg.Jobs.Create(env.RequestID, env.SessionID, env.Tool, env.CancelToken)
		jobID = job.ID
		r.cfg.Jobs.Start(jobID)
	}

	r.cfg.Stream.Progress(env.RequestID, jobID, 55, "request.executing_tool")
	if jobID != "" {
		r.cfg.Jobs.UpdateProgress(jobID, 55, "executing tool")
	}

	result := protocol.NewResult()
	execStart := time.Now()
	r.cfg.Registry.Execute(env, result)
	execMs := time.Since(execStart).Milliseconds()

	r.cfg.Stream.Progress(env.RequestID, jobID, 75, "request.tool_executed")

	if execMs > env.TimeoutMs && result.Status == protocol.StatusOk {
		r.cfg.Metrics.RecordTimeoutExceeded()
		d := protocol.Warnf(protocol.CodeJobTimeout, "tool execution exceeded the requested timeout")
		d.Retriable = true
		d.Detail = fmt.Sprintf("timeout_ms=%d duration_ms=%d", env.TimeoutMs, execMs)
		result.Warn(d)
		result.Status = protocol.StatusPartial
	}

	r.cfg.Stream.Progress(env.RequestID, jobID, 88, "request.postflight")
	r.cfg.Policy.PostflightApply(env, result)

	if write && !env.DryRun && result.Status != protocol.StatusError {
		rec, d := r.cfg.ChangeSets.Create(env, result, r.cfg.Policy.Version(), r.cfg.Registry.SchemaHash())
		if d != nil {
			result.Fail(*d)
		} else {
			result.ChangeSetID = rec.ID
			r.cfg.Metrics.RecordChangeSet(rec.SizeBytes, len(rec.Snapshots))
			r.cfg.Stream.Publish(events.Event{
				Type:      events.TypeChangeSetCreated,
				RequestID: env.RequestID,
				JobID:     jobID,
				SessionID: env.SessionID,
				Payload:   map[string]any{"changeset_id": rec.ID, "tool": env.Tool},
			})
		}
	}

	if jobID != "" {
		result.Result["job_id"] = jobID
		r.cfg.Jobs.Finalize(jobID, result.Status != protocol.StatusError, string(result.Status), result.Result, result.Diagnostics)
	}

	for _, pkg := range result.TouchedResources {
		r.cfg.Stream.Publish(events.Event{
			Type:      events.TypeArtifact,
			RequestID: env.RequestID,
			JobID:     jobID,
			SessionID: env.SessionID,
			Payload:   map[string]any{"touched_package": pkg},
		})
	}
	for _, artifact := range result.Artifacts {
		r.cfg.Stream.Publish(events.Event{
			Type:      events.TypeArtifact,
			RequestID: env.RequestID,
			JobID:     jobID,
			SessionID: env.SessionID,
			Payload:   map[string]any{"object_path": artifact.ObjectPath, "action": artifact.Action},
		})
	}

	r.cfg.Stream.Progress(env.RequestID, jobID, 100, "request.completed")

	total := durationMs(start)
	resp := protocol.BuildResponse(env.RequestID, result, total)
	r.cfg.Metrics.RecordRequest(env.Tool, result.Status, total, false)
	if baseKey != "" {
		r.cfg.Cache.Store(baseKey, paramsHash, resp)
	}

	span.SetAttributes(attribute.String("mcp.status", string(result.Status)))
	log.Info().
		Str("request_id", env.RequestID).
		Str("tool", env.Tool).
		Str("status", string(result.Status)).
		Int64("duration_ms", total).
		Msg("request completed")
	return resp, result.Status != protocol.StatusError
}

// missingCollaborator names the first unwired collaborator, empty when the
// pipeline is fully resolvable.
func (c Config) missingCollaborator() string {
	switch {
	case c.Registry == nil:
		return "registry"
	case c.Policy == nil:
		return "policy"
	case c.Locks == nil:
		return "locks"
	case c.Cache == nil:
		return "idempotency"
	case c.Jobs == nil:
		return "jobs"
	case c.ChangeSets == nil:
		return "changesets"
	case c.Stream == nil:
		return "events"
	case c.Metrics == nil:
		return "observability"
	}
	return ""
}

// failStage terminates the pipeline before tool execution. Deterministic
// stage outcomes for keyed requests are cached so retries replay them.
func (r *Router) failStage(env *protocol.RequestEnvelope, start time.Time, stage string, d protocol.Diagnostic, cache bool) string {
	result := protocol.NewResult()
	result.Fail(d)

	r.cfg.Stream.Progress(env.RequestID, "", 100, "request.failed."+stage)

	total := durationMs(start)
	resp := protocol.BuildResponse(env.RequestID, result, total)
	r.cfg.Metrics.RecordRequest(env.Tool, protocol.StatusError, total, false)
	if cache && env.IdempotencyKey != "" {
		r.cfg.Cache.Store(
			idempotency.BaseKey(env.SessionID, env.Tool, env.IdempotencyKey),
			protocol.HashParams(env.Params),
			resp,
		)
	}

	log.Warn().
		Str("request_id", env.RequestID).
		Str("tool", env.Tool).
		Str("stage", stage).
		Str("code", d.Code).
		Msg("request failed")
	return resp
}

func (r *Router) replay(env *protocol.RequestEnvelope, start time.Time, cached string) string {
	resp := idempotency.InjectReplayFlag(cached)
	r.cfg.Metrics.RecordRequest(env.Tool, responseStatus(resp), durationMs(start), true)
	r.cfg.Stream.Progress(env.RequestID, "", 100, "request.idempotent_replay")
	log.Info().
		Str("request_id", env.RequestID).
		Str("tool", env.Tool).
		Msg("idempotent replay")
	return resp
}

// resolveLockKey picks the lock key for a write tool: the tool's declared
// param when present, otherwise the conventional param chain, normalized to
// the owning package. A tool-wide key is the last resort.
func (r *Router) resolveLockKey(env *protocol.RequestEnvelope) string {
	if def, ok := r.cfg.Registry.Get(env.Tool); ok && def.LockKeyParam != "" {
		if v, ok := env.Params[def.LockKeyParam].(string); ok && v != "" {
			return host.PackageNameOf(v)
		}
	}

	if target, ok := env.Params["target"].(map[string]any); ok {
		if path, ok := target["path"].(string); ok && path != "" {
			return host.PackageNameOf(path)
		}
	}
	for _, key := range []string{"object_path", "package_path", "dest_package_path", "new_package_path", "source_object_path"} {
		if v, ok := env.Params[key].(string); ok && v != "" {
			return host.PackageNameOf(v)
		}
	}
	if paths, ok := env.Params["object_paths"].([]any); ok && len(paths) > 0 {
		if v, ok := paths[0].(string); ok && v != "" {
			return host.PackageNameOf(v)
		}
	}
	return "tool:" + env.Tool
}

func responseStatus(resp string) protocol.Status {
	var body struct {
		Status protocol.Status `json:"status"`
	}
	if err := json.Unmarshal([]byte(resp), &body); err != nil || body.Status == "" {
		return protocol.StatusOk
	}
	return body.Status
}

func durationMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
