// Package observability accumulates in-process counters for the bridge and
// renders them as a wire-stable JSON snapshot. This is deliberately not a
// scrape surface; clients read the snapshot through system.health or the
// /metrics endpoint.
package observability

import (
	"sort"
	"sync"

	"github.com/forgebridge/forgebridge/internal/protocol"
)

type toolMetrics struct {
	total      uint64
	ok         uint64
	errored    uint64
	partial    uint64
	replay     uint64
	totalDurMs int64
	maxDurMs   int64
	lastDurMs  int64
}

// Metrics is the counter store. All methods are safe for concurrent use.
type Metrics struct {
	mu    sync.Mutex
	tools map[string]*toolMetrics

	policyDeny    uint64
	safeModeBlock uint64

	lockConflict    uint64
	lockWaitSamples uint64
	lockWaitTotalMs int64
	staleReclaimed  uint64

	errSchemaInvalid uint64
	errTimeout       uint64
	errCancelReject  uint64
	errIdemConflict  uint64

	csCreated        uint64
	csBytes          uint64
	csSnapshots      uint64
	csRollbackOk     uint64
	csRollbackFailed uint64
}

func New() *Metrics {
	return &Metrics{tools: make(map[string]*toolMetrics)}
}

// RecordRequest accumulates per-tool counters for one completed request.
func (m *Metrics) RecordRequest(tool string, status protocol.Status, durationMs int64, replay bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tm, ok := m.tools[tool]
	if !ok {
		tm = &toolMetrics{}
		m.tools[tool] = tm
	}
	tm.total++
	switch status {
	case protocol.StatusOk:
		tm.ok++
	case protocol.StatusPartial:
		tm.partial++
	default:
		tm.errored++
	}
	if replay {
		tm.replay++
	}
	tm.totalDurMs += durationMs
	tm.lastDurMs = durationMs
	if durationMs > tm.maxDurMs {
		tm.maxDurMs = durationMs
	}
}

func (m *Metrics) RecordPolicyDeny() {
	m.mu.Lock()
	m.policyDeny++
	m.mu.Unlock()
}

func (m *Metrics) RecordSafeModeBlock() {
	m.mu.Lock()
	m.safeModeBlock++
	m.mu.Unlock()
}

func (m *Metrics) RecordLockConflict() {
	m.mu.Lock()
	m.lockConflict++
	m.mu.Unlock()
}

// RecordLockWait samples how long a request waited for its lock.
func (m *Metrics) RecordLockWait(waitMs int64) {
	m.mu.Lock()
	m.lockWaitSamples++
	m.lockWaitTotalMs += waitMs
	m.mu.Unlock()
}

func (m *Metrics) RecordStaleReclaimed(count int) {
	if count <= 0 {
		return
	}
	m.mu.Lock()
	m.staleReclaimed += uint64(count)
	m.mu.Unlock()
}

func (m *Metrics) RecordSchemaInvalid() {
	m.mu.Lock()
	m.errSchemaInvalid++
	m.mu.Unlock()
}

func (m *Metrics) RecordTimeoutExceeded() {
	m.mu.Lock()
	m.errTimeout++
	m.mu.Unlock()
}

func (m *Metrics) RecordCancelRejected() {
	m.mu.Lock()
	m.errCancelReject++
	m.mu.Unlock()
}

func (m *Metrics) RecordIdempotencyConflict() {
	m.mu.Lock()
	m.errIdemConflict++
	m.mu.Unlock()
}

// RecordChangeSet accounts for one created change-set record.
func (m *Metrics) RecordChangeSet(sizeBytes, snapshotCount int) {
	m.mu.Lock()
	m.csCreated++
	m.csBytes += uint64(sizeBytes)
	m.csSnapshots += uint64(snapshotCount)
	m.mu.Unlock()
}

func (m *Metrics) RecordRollback(success bool) {
	m.mu.Lock()
	if success {
		m.csRollbackOk++
	} else {
		m.csRollbackFailed++
	}
	m.mu.Unlock()
}

// Snapshot renders every counter group. jobStatusCounts comes from the job
// tracker so the snapshot shows live job distribution.
func (m *Metrics) Snapshot(jobStatusCounts map[string]int) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	toolNames := make([]string, 0, len(m.tools))
	for name := range m.tools {
		toolNames = append(toolNames, name)
	}
	sort.Strings(toolNames)

	toolRows := make([]map[string]any, 0, len(toolNames))
	for _, name := range toolNames {
		tm := m.tools[name]
		var avg int64
		if tm.total > 0 {
			avg = tm.totalDurMs / int64(tm.total)
		}
		toolRows = append(toolRows, map[string]any{
			"tool":             name,
			"total_requests":   tm.total,
			"ok":               tm.ok,
			"error":            tm.errored,
			"partial":          tm.partial,
			"replay":           tm.replay,
			"avg_duration_ms":  avg,
			"max_duration_ms":  tm.maxDurMs,
			"last_duration_ms": tm.lastDurMs,
		})
	}

	var avgWait int64
	if m.lockWaitSamples > 0 {
		avgWait = m.lockWaitTotalMs / int64(m.lockWaitSamples)
	}

	jobRows := make([]map[string]any, 0, len(jobStatusCounts))
	statuses := make([]string, 0, len(jobStatusCounts))
	for status := range jobStatusCounts {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		jobRows = append(jobRows, map[string]any{
			"status": status,
			"count":  jobStatusCounts[status],
		})
	}

	return map[string]any{
		"tool_metrics": toolRows,
		"policy": map[string]any{
			"deny_count":            m.policyDeny,
			"safe_mode_block_count": m.safeModeBlock,
		},
		"lock": map[string]any{
			"conflict_count":        m.lockConflict,
			"wait_sample_count":     m.lockWaitSamples,
			"avg_wait_ms":           avgWait,
			"stale_reclaimed_count": m.staleReclaimed,
		},
		"request_errors": map[string]any{
			"schema_invalid_params": m.errSchemaInvalid,
			"timeout_exceeded":      m.errTimeout,
			"cancel_rejected":       m.errCancelReject,
			"idempotency_conflict":  m.errIdemConflict,
		},
		"changeset": map[string]any{
			"created_count":          m.csCreated,
			"bytes":                  m.csBytes,
			"snapshot_count":         m.csSnapshots,
			"rollback_success_count": m.csRollbackOk,
			"rollback_failed_count":  m.csRollbackFailed,
		},
		"job_status_counts": jobRows,
	}
}
