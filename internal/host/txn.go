package host

import (
	"github.com/rs/zerolog/log"
)

// Transaction is a scoped undo guard. Tools call Modify before mutating an
// object; Cancel restores every modified object to its pre-transaction
// snapshot, Commit keeps the changes. A transaction that is never committed
// must be canceled.
type Transaction struct {
	h         *Host
	label     string
	snapshots map[string]string
	order     []string
	done      bool
}

// Begin opens a transaction. The label is informational, mirroring editor
// undo history entries.
func (h *Host) Begin(label string) *Transaction {
	return &Transaction{h: h, label: label, snapshots: make(map[string]string)}
}

// Modify snapshots an object ahead of mutation and dirties its package.
// Repeat calls for the same path are free.
func (tx *Transaction) Modify(path string) error {
	if _, ok := tx.snapshots[path]; ok {
		return nil
	}
	snap, err := tx.h.SnapshotObject(path)
	if err != nil {
		return err
	}
	tx.snapshots[path] = snap
	tx.order = append(tx.order, path)
	tx.h.MarkDirty(path)
	return nil
}

// Snapshots returns the pre-transaction snapshots keyed by object path.
// Change-set records keep these for rollback.
func (tx *Transaction) Snapshots() map[string]string {
	out := make(map[string]string, len(tx.snapshots))
	for k, v := range tx.snapshots {
		out[k] = v
	}
	return out
}

// Commit keeps all changes.
func (tx *Transaction) Commit() {
	tx.done = true
}

// Cancel restores every modified object. Safe to call after Commit, where it
// does nothing, so callers can defer it.
func (tx *Transaction) Cancel() {
	if tx.done {
		return
	}
	tx.done = true
	for i := len(tx.order) - 1; i >= 0; i-- {
		path := tx.order[i]
		if err := tx.h.RestoreObject(path, tx.snapshots[path]); err != nil {
			log.Warn().Err(err).Str("path", path).Str("label", tx.label).Msg("transaction rollback failed for object")
		}
	}
}
