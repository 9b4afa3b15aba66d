package observability_test

import (
	"testing"

	"github.com/forgebridge/forgebridge/internal/observability"
	"github.com/forgebridge/forgebridge/internal/protocol"
)

func TestToolMetricsAggregation(t *testing.T) {
	m := observability.New()
	m.RecordRequest("asset.save", protocol.StatusOk, 10, false)
	m.RecordRequest("asset.save", protocol.StatusError, 30, false)
	m.RecordRequest("asset.save", protocol.StatusPartial, 20, false)
	m.RecordRequest("asset.save", protocol.StatusOk, 4, true)
	m.RecordRequest("tools.list", protocol.StatusOk, 1, false)

	snap := m.Snapshot(nil)
	rows := snap["tool_metrics"].([]map[string]any)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	// Sorted by tool name.
	row := rows[0]
	if row["tool"] != "asset.save" {
		t.Fatalf("first row = %v", row["tool"])
	}
	if row["total_requests"] != uint64(4) || row["ok"] != uint64(2) ||
		row["error"] != uint64(1) || row["partial"] != uint64(1) || row["replay"] != uint64(1) {
		t.Errorf("counters = %+v", row)
	}
	if row["avg_duration_ms"] != int64(16) || row["max_duration_ms"] != int64(30) || row["last_duration_ms"] != int64(4) {
		t.Errorf("durations = %+v", row)
	}
}

func TestCounterGroups(t *testing.T) {
	m := observability.New()
	m.RecordPolicyDeny()
	m.RecordSafeModeBlock()
	m.RecordSafeModeBlock()
	m.RecordLockConflict()
	m.RecordLockWait(10)
	m.RecordLockWait(30)
	m.RecordStaleReclaimed(3)
	m.RecordStaleReclaimed(0)
	m.RecordSchemaInvalid()
	m.RecordTimeoutExceeded()
	m.RecordCancelRejected()
	m.RecordIdempotencyConflict()
	m.RecordChangeSet(128, 2)
	m.RecordRollback(true)
	m.RecordRollback(false)

	snap := m.Snapshot(map[string]int{"running": 1, "queued": 2})

	policy := snap["policy"].(map[string]any)
	if policy["deny_count"] != uint64(1) || policy["safe_mode_block_count"] != uint64(2) {
		t.Errorf("policy = %v", policy)
	}
	lock := snap["lock"].(map[string]any)
	if lock["conflict_count"] != uint64(1) || lock["wait_sample_count"] != uint64(2) ||
		lock["avg_wait_ms"] != int64(20) || lock["stale_reclaimed_count"] != uint64(3) {
		t.Errorf("lock = %v", lock)
	}
	errs := snap["request_errors"].(map[string]any)
	for _, key := range []string{"schema_invalid_params", "timeout_exceeded", "cancel_rejected", "idempotency_conflict"} {
		if errs[key] != uint64(1) {
			t.Errorf("request_errors[%s] = %v, want 1", key, errs[key])
		}
	}
	cs := snap["changeset"].(map[string]any)
	if cs["created_count"] != uint64(1) || cs["bytes"] != uint64(128) || cs["snapshot_count"] != uint64(2) ||
		cs["rollback_success_count"] != uint64(1) || cs["rollback_failed_count"] != uint64(1) {
		t.Errorf("changeset = %v", cs)
	}

	jobRows := snap["job_status_counts"].([]map[string]any)
	if len(jobRows) != 2 || jobRows[0]["status"] != "queued" || jobRows[1]["status"] != "running" {
		t.Errorf("job rows not sorted: %v", jobRows)
	}
}
