// Package changeset records what every successful write tool changed:
// provenance (tool, session, params hash, policy and schema versions),
// touched packages, and pre-mutation snapshots that rollback restores.
package changeset

import (
	"time"

	"github.com/forgebridge/forgebridge/internal/protocol"
)

// Record is one change-set entry.
type Record struct {
	ID                string            `json:"id"`
	CreatedAt         time.Time         `json:"created_at"`
	RequestID         string            `json:"request_id"`
	SessionID         string            `json:"session_id"`
	Tool              string            `json:"tool"`
	Status            protocol.Status   `json:"status"`
	ParamsHash        string            `json:"params_hash"`
	PolicyVersion     string            `json:"policy_version"`
	SchemaHash        string            `json:"schema_hash"`
	TouchedPackages   []string          `json:"touched_packages"`
	ChangedProperties []string          `json:"changed_properties,omitempty"`
	Snapshots         map[string]string `json:"snapshots,omitempty"`
	SizeBytes         int               `json:"size_bytes"`
	RolledBackAt      time.Time         `json:"rolled_back_at,omitzero"`

	seq uint64
}

// ListOptions filter a change-set listing. Cursor is the seq to continue
// from, zero for the newest.
type ListOptions struct {
	Limit     int
	Cursor    uint64
	Status    string
	ToolGlob  string
	SessionID string
}

// Restorer is the host surface rollback needs.
type Restorer interface {
	RestoreObject(path, snapshot string) error
	MarkDirty(objectPath string)
}

// Store is the change-set interface the router and tools depend on. The
// in-memory implementation is the only one shipped; the interface keeps tool
// code independent of where records live.
type Store interface {
	// Create records a completed write execution and returns the record.
	Create(env *protocol.RequestEnvelope, result *protocol.ExecutionResult, policyVersion, schemaHash string) (Record, *protocol.Diagnostic)

	// List returns records newest-first plus the cursor for the next page,
	// zero when exhausted.
	List(opts ListOptions) ([]Record, uint64)

	// Get fetches one record, optionally with its snapshots.
	Get(id string, includeSnapshots bool) (Record, bool)

	// PreviewRollback reports what ApplyRollback would restore.
	PreviewRollback(id string) (map[string]any, *protocol.Diagnostic)

	// ApplyRollback restores the record's snapshots through the host.
	// Re-rolling back an already rolled back record requires force.
	ApplyRollback(id string, force bool) (map[string]any, *protocol.Diagnostic)
}
