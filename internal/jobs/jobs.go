// Package jobs tracks the lifecycle of long-running requests. Terminal
// states are sticky: once a job succeeds, fails, or is canceled, nothing
// moves it again. Status transitions publish event.job.status entries, always
// outside the tracker mutex.
package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/forgebridge/forgebridge/internal/events"
	"github.com/forgebridge/forgebridge/internal/protocol"
)

// Status of a tracked job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether a status is final.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// Record is the tracked state of one job. Result and Diagnostics are filled
// at finalization so job.get on a finished job returns its payload.
type Record struct {
	ID          string                `json:"id"`
	RequestID   string                `json:"request_id"`
	SessionID   string                `json:"session_id"`
	Tool        string                `json:"tool"`
	Status      Status                `json:"status"`
	Progress    int                   `json:"progress"`
	Message     string                `json:"message,omitempty"`
	Result      map[string]any        `json:"result,omitempty"`
	Diagnostics []protocol.Diagnostic `json:"diagnostics,omitempty"`
	CancelToken string                `json:"-"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Tracker owns all job records plus the set of canceled cancel tokens.
type Tracker struct {
	mu             sync.RWMutex
	jobs           map[string]*Record
	canceledTokens map[string]struct{}
	stream         *events.Stream
}

func NewTracker(stream *events.Stream) *Tracker {
	return &Tracker{
		jobs:           make(map[string]*Record),
		canceledTokens: make(map[string]struct{}),
		stream:         stream,
	}
}

// Create registers a queued job and announces it.
func (t *Tracker) Create(requestID, sessionID, tool, cancelToken string) Record {
	now := time.Now().UTC()
	rec := &Record{
		ID:          "job-" + uuid.NewString(),
		RequestID:   requestID,
		SessionID:   sessionID,
		Tool:        tool,
		Status:      StatusQueued,
		CancelToken: cancelToken,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	t.mu.Lock()
	t.jobs[rec.ID] = rec
	snapshot := *rec
	t.mu.Unlock()

	t.publishStatus(snapshot)
	return snapshot
}

// Start moves a queued job to running.
func (t *Tracker) Start(jobID string) {
	t.transition(jobID, StatusRunning, "")
}

// UpdateProgress clamps percent to [0,100] and records it. Terminal jobs
// ignore progress updates.
func (t *Tracker) UpdateProgress(jobID string, percent int, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.jobs[jobID]
	if !ok || rec.Status.Terminal() {
		return
	}
	rec.Progress = percent
	if message != "" {
		rec.Message = message
	}
	rec.UpdatedAt = time.Now().UTC()
}

// Finalize moves a job to succeeded or failed and stores the execution's
// result and diagnostics on the record. Success forces progress to 100.
// Finalizing an already terminal job is a no-op.
func (t *Tracker) Finalize(jobID string, success bool, message string, result map[string]any, diags []protocol.Diagnostic) Record {
	status := StatusFailed
	if success {
		status = StatusSucceeded
	}

	t.mu.Lock()
	rec, ok := t.jobs[jobID]
	if !ok {
		t.mu.Unlock()
		return Record{}
	}
	if rec.Status.Terminal() {
		snapshot := *rec
		t.mu.Unlock()
		return snapshot
	}
	rec.Status = status
	if message != "" {
		rec.Message = message
	}
	if status == StatusSucceeded {
		rec.Progress = 100
	}
	rec.Result = result
	rec.Diagnostics = diags
	rec.UpdatedAt = time.Now().UTC()
	snapshot := *rec
	t.mu.Unlock()

	t.publishStatus(snapshot)
	return snapshot
}

// Cancel marks a job canceled and blacklists its cancel token. Canceling a
// terminal job returns the record unchanged and still succeeds.
func (t *Tracker) Cancel(jobID string) (Record, bool) {
	t.mu.Lock()
	rec, ok := t.jobs[jobID]
	if !ok {
		t.mu.Unlock()
		return Record{}, false
	}
	if rec.Status.Terminal() {
		snapshot := *rec
		t.mu.Unlock()
		return snapshot, true
	}
	rec.Status = StatusCanceled
	rec.UpdatedAt = time.Now().UTC()
	if rec.CancelToken != "" {
		t.canceledTokens[rec.CancelToken] = struct{}{}
	}
	snapshot := *rec
	t.mu.Unlock()

	log.Info().Str("job_id", jobID).Msg("job canceled")
	t.publishStatus(snapshot)
	return snapshot, true
}

// CancelToken blacklists a cancel token directly so future requests carrying
// it are rejected before execution.
func (t *Tracker) CancelToken(token string) {
	if token == "" {
		return
	}
	t.mu.Lock()
	t.canceledTokens[token] = struct{}{}
	t.mu.Unlock()
}

// IsTokenCanceled reports whether a cancel token has been blacklisted.
func (t *Tracker) IsTokenCanceled(token string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.canceledTokens[token]
	return ok
}

// Get returns a copy of a job record.
func (t *Tracker) Get(jobID string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.jobs[jobID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// StatusCounts tallies jobs per status for the observability snapshot.
func (t *Tracker) StatusCounts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int)
	for _, rec := range t.jobs {
		out[string(rec.Status)]++
	}
	return out
}

func (t *Tracker) transition(jobID string, status Status, message string) Record {
	t.mu.Lock()
	rec, ok := t.jobs[jobID]
	if !ok {
		t.mu.Unlock()
		return Record{}
	}
	if rec.Status.Terminal() {
		snapshot := *rec
		t.mu.Unlock()
		return snapshot
	}
	rec.Status = status
	if message != "" {
		rec.Message = message
	}
	if status == StatusSucceeded {
		rec.Progress = 100
	}
	rec.UpdatedAt = time.Now().UTC()
	snapshot := *rec
	t.mu.Unlock()

	t.publishStatus(snapshot)
	return snapshot
}

func (t *Tracker) publishStatus(rec Record) {
	if t.stream == nil {
		return
	}
	t.stream.Publish(events.Event{
		Type:      events.TypeJobStatus,
		RequestID: rec.RequestID,
		JobID:     rec.ID,
		SessionID: rec.SessionID,
		Payload: map[string]any{
			"status":   string(rec.Status),
			"progress": rec.Progress,
			"tool":     rec.Tool,
		},
	})
}
