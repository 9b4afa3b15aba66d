package changeset

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/forgebridge/forgebridge/internal/glob"
	"github.com/forgebridge/forgebridge/internal/protocol"
)

// MemoryStore keeps change-set records in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]*Record
	restorer Restorer
	nextSeq  uint64
}

func NewMemoryStore(restorer Restorer) *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record), restorer: restorer}
}

func (s *MemoryStore) Create(env *protocol.RequestEnvelope, result *protocol.ExecutionResult, policyVersion, schemaHash string) (Record, *protocol.Diagnostic) {
	rec := Record{
		ID:                "cs-" + uuid.NewString(),
		CreatedAt:         time.Now().UTC(),
		RequestID:         env.RequestID,
		SessionID:         env.SessionID,
		Tool:              env.Tool,
		Status:            result.Status,
		ParamsHash:        protocol.HashParams(env.Params),
		PolicyVersion:     policyVersion,
		SchemaHash:        schemaHash,
		TouchedPackages:   append([]string(nil), result.TouchedResources...),
		ChangedProperties: append([]string(nil), result.ChangedProperties...),
	}
	if len(result.Snapshots) > 0 {
		rec.Snapshots = make(map[string]string, len(result.Snapshots))
		for path, snap := range result.Snapshots {
			rec.Snapshots[path] = snap
		}
	}
	if encoded, err := json.Marshal(rec); err == nil {
		rec.SizeBytes = len(encoded)
	}

	s.mu.Lock()
	s.nextSeq++
	rec.seq = s.nextSeq
	stored := rec
	s.records[rec.ID] = &stored
	s.mu.Unlock()

	log.Info().Str("changeset_id", rec.ID).Str("tool", rec.Tool).Int("size_bytes", rec.SizeBytes).Msg("changeset recorded")
	return rec, nil
}

func (s *MemoryStore) List(opts ListOptions) ([]Record, uint64) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}

	s.mu.RLock()
	all := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, rec)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].seq > all[j].seq })

	out := []Record{}
	var nextCursor uint64
	for _, rec := range all {
		if opts.Cursor != 0 && rec.seq >= opts.Cursor {
			continue
		}
		if opts.Status != "" && string(rec.Status) != opts.Status {
			continue
		}
		if opts.SessionID != "" && rec.SessionID != opts.SessionID {
			continue
		}
		if !glob.Match(opts.ToolGlob, rec.Tool) {
			continue
		}
		if len(out) == opts.Limit {
			nextCursor = out[len(out)-1].seq
			break
		}
		summary := *rec
		summary.Snapshots = nil
		out = append(out, summary)
	}
	return out, nextCursor
}

func (s *MemoryStore) Get(id string, includeSnapshots bool) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	out := *rec
	if !includeSnapshots {
		out.Snapshots = nil
	}
	return out, true
}

func (s *MemoryStore) PreviewRollback(id string) (map[string]any, *protocol.Diagnostic) {
	rec, ok := s.Get(id, true)
	if !ok {
		return nil, notFound(id)
	}

	objects := make([]string, 0, len(rec.Snapshots))
	for path := range rec.Snapshots {
		objects = append(objects, path)
	}
	sort.Strings(objects)

	return map[string]any{
		"changeset_id":     rec.ID,
		"objects":          objects,
		"touched_packages": rec.TouchedPackages,
		"already_applied":  !rec.RolledBackAt.IsZero(),
	}, nil
}

func (s *MemoryStore) ApplyRollback(id string, force bool) (map[string]any, *protocol.Diagnostic) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return nil, notFound(id)
	}
	if !rec.RolledBackAt.IsZero() && !force {
		s.mu.Unlock()
		d := protocol.Errorf(protocol.CodeRollbackFailed, "changeset was already rolled back")
		d.Suggestion = "pass force to roll back again"
		return nil, &d
	}
	snapshots := make(map[string]string, len(rec.Snapshots))
	for path, snap := range rec.Snapshots {
		snapshots[path] = snap
	}
	s.mu.Unlock()

	if len(snapshots) == 0 {
		d := protocol.Errorf(protocol.CodeRollbackFailed, "changeset carries no snapshots to restore")
		return nil, &d
	}

	restored := make([]string, 0, len(snapshots))
	for path, snap := range snapshots {
		if err := s.restorer.RestoreObject(path, snap); err != nil {
			log.Warn().Err(err).Str("path", path).Str("changeset_id", id).Msg("rollback restore failed")
			d := protocol.Errorf(protocol.CodeRollbackFailed, "failed to restore object from snapshot")
			d.Detail = path
			return nil, &d
		}
		s.restorer.MarkDirty(path)
		restored = append(restored, path)
	}
	sort.Strings(restored)

	s.mu.Lock()
	rec.RolledBackAt = time.Now().UTC()
	touched := append([]string(nil), rec.TouchedPackages...)
	s.mu.Unlock()

	return map[string]any{
		"changeset_id":     id,
		"restored_objects": restored,
		"touched_packages": touched,
	}, nil
}

func notFound(id string) *protocol.Diagnostic {
	d := protocol.Errorf(protocol.CodeChangeSetNotFound, "changeset not found")
	d.Detail = id
	return &d
}
