package router_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/forgebridge/forgebridge/internal/changeset"
	"github.com/forgebridge/forgebridge/internal/events"
	"github.com/forgebridge/forgebridge/internal/host"
	"github.com/forgebridge/forgebridge/internal/idempotency"
	"github.com/forgebridge/forgebridge/internal/jobs"
	"github.com/forgebridge/forgebridge/internal/lock"
	"github.com/forgebridge/forgebridge/internal/observability"
	"github.com/forgebridge/forgebridge/internal/patch"
	"github.com/forgebridge/forgebridge/internal/policy"
	"github.com/forgebridge/forgebridge/internal/propsys"
	"github.com/forgebridge/forgebridge/internal/protocol"
	"github.com/forgebridge/forgebridge/internal/registry"
	"github.com/forgebridge/forgebridge/internal/router"
	"github.com/forgebridge/forgebridge/internal/tools"
)

const lampPath = "/Game/Maps/Arena.Arena:Lamp1"

type bridge struct {
	router  *router.Router
	host    *host.Host
	reg     *registry.Registry
	tracker *jobs.Tracker
	locks   *lock.Manager
	stream  *events.Stream
}

func newBridge(t *testing.T) *bridge {
	t.Helper()

	types := propsys.NewRegistry()
	if err := host.RegisterWorldTypes(types); err != nil {
		t.Fatalf("register types: %v", err)
	}
	h := host.New(types)
	if err := host.SeedDemoWorld(h); err != nil {
		t.Fatalf("seed world: %v", err)
	}

	stream := events.NewStream(128)
	tracker := jobs.NewTracker(stream)
	locks := lock.New()
	metrics := observability.New()
	changeSets := changeset.NewMemoryStore(h)
	reg := registry.New()

	err := tools.RegisterBuiltins(tools.Deps{
		Host:       h,
		Patch:      patch.NewEngine(types, h),
		Registry:   reg,
		Jobs:       tracker,
		ChangeSets: changeSets,
		Stream:     stream,
		Locks:      locks,
		Metrics:    metrics,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("register tools: %v", err)
	}

	rt := router.New(router.Config{
		Registry:   reg,
		Policy:     policy.New(h, "ForgeDemo"),
		Locks:      locks,
		Cache:      idempotency.New(),
		Jobs:       tracker,
		ChangeSets: changeSets,
		Stream:     stream,
		Metrics:    metrics,
	})

	return &bridge{router: rt, host: h, reg: reg, tracker: tracker, locks: locks, stream: stream}
}

func (b *bridge) execute(t *testing.T, raw string) (map[string]any, bool) {
	t.Helper()
	resp, ok := b.router.Execute(context.Background(), raw)
	var body map[string]any
	if err := json.Unmarshal([]byte(resp), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, resp)
	}
	return body, ok
}

func request(id, tool string, params map[string]any, reqCtx map[string]any) string {
	body := map[string]any{
		"protocol":   protocol.DefaultProtocol,
		"request_id": id,
		"tool":       tool,
	}
	if params != nil {
		body["params"] = params
	}
	if reqCtx != nil {
		body["context"] = reqCtx
	}
	raw, _ := json.Marshal(body)
	return string(raw)
}

func firstError(body map[string]any) map[string]any {
	errs := body["diagnostics"].(map[string]any)["errors"].([]any)
	if len(errs) == 0 {
		return nil
	}
	return errs[0].(map[string]any)
}

func TestToolsListSucceeds(t *testing.T) {
	b := newBridge(t)

	body, ok := b.execute(t, request("req-1", "tools.list", nil, nil))
	if !ok || body["status"] != "ok" {
		t.Fatalf("status = %v", body["status"])
	}
	result := body["result"].(map[string]any)
	if result["protocol_version"] != protocol.DefaultProtocol {
		t.Errorf("protocol_version = %v", result["protocol_version"])
	}
	if len(result["tools"].([]any)) == 0 {
		t.Error("tools listing is empty")
	}
	if body["changeset_id"] != nil {
		t.Errorf("read tool should not create a changeset: %v", body["changeset_id"])
	}
}

func TestMissingCollaboratorFailsClosed(t *testing.T) {
	rt := router.New(router.Config{})

	resp, ok := rt.Execute(context.Background(), request("req-1", "tools.list", nil, nil))
	if ok {
		t.Fatal("unwired router should refuse requests")
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(resp), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if body["request_id"] != "req-1" || body["status"] != "error" {
		t.Errorf("body = %v", body)
	}
	if diag := firstError(body); diag["code"] != "INTERNAL_EXCEPTION" {
		t.Errorf("diag = %v", diag)
	}
}

func TestParseFailure(t *testing.T) {
	b := newBridge(t)

	body, ok := b.execute(t, "{broken")
	if ok || body["status"] != "error" {
		t.Fatalf("status = %v", body["status"])
	}
	if body["request_id"] != "invalid-request" {
		t.Errorf("request_id = %v", body["request_id"])
	}
}

func TestProtocolMismatch(t *testing.T) {
	b := newBridge(t)

	raw := `{"protocol":"other-proto/9.0","request_id":"req-1","tool":"tools.list"}`
	body, ok := b.execute(t, raw)
	if ok {
		t.Fatal("foreign protocol should fail")
	}
	diag := firstError(body)
	if diag["code"] != "SCHEMA_INVALID_PARAMS" || diag["detail"] != "other-proto/9.0" {
		t.Errorf("diag = %v", diag)
	}
}

func TestUnknownTool(t *testing.T) {
	b := newBridge(t)

	body, _ := b.execute(t, request("req-1", "no.such.tool", nil, nil))
	if diag := firstError(body); diag["code"] != "TOOL_NOT_FOUND" {
		t.Errorf("diag = %v", diag)
	}
}

func TestWritePatchCreatesChangeSet(t *testing.T) {
	b := newBridge(t)

	body, ok := b.execute(t, request("req-1", "object.patch.v2", map[string]any{
		"target": map[string]any{"type": "object", "path": lampPath},
		"patch": []any{
			map[string]any{"op": "replace", "path": "/intensity", "value": float64(750)},
		},
	}, nil))
	if !ok || body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
	if body["changeset_id"] == nil {
		t.Error("write should create a changeset")
	}
	touched := body["touched_packages"].([]any)
	if len(touched) != 1 || touched[0] != "/Game/Maps/Arena" {
		t.Errorf("touched = %v", touched)
	}
	artifacts := body["artifacts"].([]any)
	if len(artifacts) != 1 || artifacts[0].(map[string]any)["action"] != "modified" {
		t.Errorf("artifacts = %v", artifacts)
	}

	obj, _ := b.host.ResolveObject(lampPath)
	if obj.(*host.SceneActor).Intensity != 750 {
		t.Error("patch did not mutate the object")
	}

	// The changeset is visible and can roll the change back.
	csID := body["changeset_id"].(string)
	body, _ = b.execute(t, request("req-2", "changeset.rollback.apply", map[string]any{"changeset_id": csID}, nil))
	if body["status"] != "ok" {
		t.Fatalf("rollback = %v", body)
	}
	if obj.(*host.SceneActor).Intensity != 5000 {
		t.Error("rollback did not restore the object")
	}
}

func TestDryRunSkipsChangeSet(t *testing.T) {
	b := newBridge(t)

	body, ok := b.execute(t, request("req-1", "object.patch.v2", map[string]any{
		"target": map[string]any{"type": "object", "path": lampPath},
		"patch": []any{
			map[string]any{"op": "replace", "path": "/intensity", "value": float64(750)},
		},
	}, map[string]any{"dry_run": true}))
	if !ok {
		t.Fatalf("body = %v", body)
	}
	if body["changeset_id"] != nil {
		t.Error("dry run should not create a changeset")
	}
	result := body["result"].(map[string]any)
	if result["dry_run"] != true {
		t.Errorf("result = %v", result)
	}
	obj, _ := b.host.ResolveObject(lampPath)
	if obj.(*host.SceneActor).Intensity != 5000 {
		t.Error("dry run mutated the object")
	}
}

func TestSafeModeBlocksWriteTools(t *testing.T) {
	b := newBridge(t)
	b.host.SetSimulating(true)

	body, ok := b.execute(t, request("req-1", "asset.save", map[string]any{"package_path": "/Game/Maps/Arena"}, nil))
	if ok {
		t.Fatal("write should be blocked in safe mode")
	}
	diag := firstError(body)
	if diag["code"] != "EDITOR_UNSAFE_STATE" || diag["retriable"] != true {
		t.Errorf("diag = %v", diag)
	}

	// Reads still run.
	if _, ok := b.execute(t, request("req-2", "system.health", nil, nil)); !ok {
		t.Error("read blocked in safe mode")
	}
}

func TestIdempotentReplay(t *testing.T) {
	b := newBridge(t)
	raw := request("req-1", "asset.save", map[string]any{"package_path": "/Game/Maps/Arena"},
		map[string]any{"idempotency_key": "save-1"})

	first, ok := b.execute(t, raw)
	if !ok {
		t.Fatalf("first = %v", first)
	}
	if first["idempotent_replay"] != false {
		t.Error("first execution should not be a replay")
	}

	second, ok := b.execute(t, raw)
	if !ok {
		t.Fatalf("second = %v", second)
	}
	if second["idempotent_replay"] != true {
		t.Error("second execution should replay")
	}
	if fmt.Sprint(second["result"]) != fmt.Sprint(first["result"]) {
		t.Errorf("replayed result differs: %v vs %v", second["result"], first["result"])
	}
}

func TestIdempotencyConflict(t *testing.T) {
	b := newBridge(t)
	extra := map[string]any{"idempotency_key": "save-1"}

	if _, ok := b.execute(t, request("req-1", "asset.save", map[string]any{"package_path": "/Game/Maps/Arena"}, extra)); !ok {
		t.Fatal("first execution failed")
	}

	body, ok := b.execute(t, request("req-2", "asset.save", map[string]any{"package_path": "/Project/Settings"}, extra))
	if ok {
		t.Fatal("key reuse with different params should conflict")
	}
	if diag := firstError(body); diag["code"] != "IDEMPOTENCY_CONFLICT" {
		t.Errorf("diag = %v", diag)
	}
}

func TestLockConflict(t *testing.T) {
	b := newBridge(t)
	b.locks.Acquire("/Game/Maps/Arena", "other-request", lock.DefaultLease)

	body, ok := b.execute(t, request("req-1", "object.patch.v2", map[string]any{
		"target": map[string]any{"type": "object", "path": lampPath},
		"patch": []any{
			map[string]any{"op": "replace", "path": "/intensity", "value": float64(1)},
		},
	}, nil))
	if ok {
		t.Fatal("held lock should block the write")
	}
	diag := firstError(body)
	if diag["code"] != "LOCK_CONFLICT" || diag["retriable"] != true {
		t.Errorf("diag = %v", diag)
	}

	b.locks.Release("/Game/Maps/Arena", "other-request")
	if _, ok := b.execute(t, request("req-2", "asset.save", map[string]any{"package_path": "/Game/Maps/Arena"}, nil)); !ok {
		t.Error("released lock should unblock writes")
	}
}

func TestCancelTokenRejection(t *testing.T) {
	b := newBridge(t)
	b.tracker.CancelToken("tok-1")

	body, ok := b.execute(t, request("req-1", "tools.list", nil, map[string]any{"cancel_token": "tok-1"}))
	if ok {
		t.Fatal("canceled token should reject the request")
	}
	if diag := firstError(body); diag["code"] != "JOB_CANCELED" {
		t.Errorf("diag = %v", diag)
	}
}

func TestTimeoutValidation(t *testing.T) {
	b := newBridge(t)

	body, ok := b.execute(t, request("req-1", "tools.list", nil, map[string]any{"timeout_ms": float64(0)}))
	if ok {
		t.Fatal("zero timeout should fail validation")
	}
	if diag := firstError(body); diag["code"] != "SCHEMA_INVALID_PARAMS" {
		t.Errorf("diag = %v", diag)
	}
}

func TestTimeoutDowngradesToPartial(t *testing.T) {
	b := newBridge(t)
	err := b.reg.Register(registry.Definition{
		Name:    "debug.sleep",
		Domain:  "core",
		Version: "1.0.0",
		Enabled: true,
		Handler: func(env *protocol.RequestEnvelope, result *protocol.ExecutionResult) {
			time.Sleep(25 * time.Millisecond)
			result.Result["slept"] = true
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	body, ok := b.execute(t, request("req-1", "debug.sleep", nil, map[string]any{"timeout_ms": float64(1)}))
	if !ok {
		t.Fatalf("partial responses still count as non-error: %v", body)
	}
	if body["status"] != "partial" {
		t.Fatalf("status = %v, want partial", body["status"])
	}

	warnings := body["diagnostics"].(map[string]any)["warnings"].([]any)
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v", warnings)
	}
	warn := warnings[0].(map[string]any)
	if warn["code"] != "JOB_TIMEOUT" || warn["retriable"] != true {
		t.Errorf("warn = %v", warn)
	}

	// A timeout override forces job tracking and a job_id in the result.
	result := body["result"].(map[string]any)
	jobID, _ := result["job_id"].(string)
	if jobID == "" {
		t.Fatal("timeout override should create a job")
	}
	rec, found := b.tracker.Get(jobID)
	if !found || rec.Status != jobs.StatusSucceeded {
		t.Errorf("job = %+v", rec)
	}
	if rec.Result["slept"] != true {
		t.Errorf("finalized job should carry the execution result, got %+v", rec.Result)
	}
}

func TestConfirmationFlow(t *testing.T) {
	b := newBridge(t)
	params := map[string]any{"object_path": "/Game/Maps/Arena.Arena:Spawn1"}

	body, ok := b.execute(t, request("req-1", "asset.delete", params, nil))
	if ok {
		t.Fatal("first delete call should require confirmation")
	}
	if diag := firstError(body); diag["code"] != "CONFIRMATION_REQUIRED" {
		t.Fatalf("diag = %v", diag)
	}
	token, _ := body["result"].(map[string]any)["confirm_token"].(string)
	if token == "" {
		t.Fatal("no confirm token issued")
	}

	params["confirm_token"] = token
	body, ok = b.execute(t, request("req-2", "asset.delete", params, nil))
	if !ok || body["status"] != "ok" {
		t.Fatalf("confirmed delete failed: %v", body)
	}
	if _, exists := b.host.ResolveObject("/Game/Maps/Arena.Arena:Spawn1"); exists {
		t.Error("object still present after confirmed delete")
	}

	// Tokens are single use.
	body, ok = b.execute(t, request("req-3", "asset.delete", params, nil))
	if ok {
		t.Error("reused token should not delete again")
	}
	if diag := firstError(body); diag["code"] != "ASSET_NOT_FOUND" {
		t.Errorf("diag = %v", diag)
	}
}

func TestProgressEventsEmitted(t *testing.T) {
	b := newBridge(t)
	b.execute(t, request("req-1", "tools.list", nil, nil))

	phases := map[string]bool{}
	for _, ev := range b.stream.Recent(0) {
		if ev.Type == events.TypeProgress && ev.RequestID == "req-1" {
			phases[ev.Payload["phase"].(string)] = true
		}
	}
	for _, want := range []string{"request.parsed", "request.schema_validated", "request.executing_tool", "request.completed"} {
		if !phases[want] {
			t.Errorf("missing progress phase %q (got %v)", want, phases)
		}
	}

	received := false
	for _, ev := range b.stream.Recent(0) {
		if ev.Type == events.TypeLog && ev.RequestID == "req-1" {
			if msg, _ := ev.Payload["message"].(string); msg == "received request for tool tools.list" {
				received = true
			}
		}
	}
	if !received {
		t.Error("no received log entry emitted")
	}
}

func TestJobCancelViaRouter(t *testing.T) {
	b := newBridge(t)

	// Run a request with a cancel token so a job record exists.
	body, ok := b.execute(t, request("req-1", "tools.list", nil, map[string]any{"cancel_token": "tok-9"}))
	if !ok {
		t.Fatalf("body = %v", body)
	}
	jobID := body["result"].(map[string]any)["job_id"].(string)

	body, ok = b.execute(t, request("req-2", "job.get", map[string]any{"job_id": jobID}, nil))
	if !ok {
		t.Fatalf("job.get = %v", body)
	}
	job := body["result"].(map[string]any)["job"].(map[string]any)
	if job["status"] != "succeeded" {
		t.Errorf("job = %v", job)
	}

	// Terminal jobs cancel as a no-op success; the record stays unchanged.
	if _, ok := b.execute(t, request("req-3", "job.cancel", map[string]any{"job_id": jobID}, nil)); !ok {
		t.Error("cancel of a finished job should still succeed")
	}
}
