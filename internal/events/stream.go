// Package events is the bridge's bounded event stream: a thread-safe ring
// buffer that retains the most recent events and supports real-time fan-out
// to transport subscribers. When the ring is full the oldest event is dropped
// and counted; total emission and drop counters survive for the process
// lifetime.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the ring size used when the config does not override it.
const DefaultCapacity = 256

// Event types emitted by the pipeline and tools.
const (
	TypeProgress         = "event.progress"
	TypeLog              = "event.log"
	TypeArtifact         = "event.artifact"
	TypeJobStatus        = "event.job.status"
	TypeChangeSetCreated = "event.changeset.created"
)

// Event is a single stream entry.
type Event struct {
	ID          string         `json:"event_id"`
	Type        string         `json:"event_type"`
	TimestampMs int64          `json:"timestamp_ms"`
	RequestID   string         `json:"request_id,omitempty"`
	JobID       string         `json:"job_id,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	Payload     map[string]any `json:"payload"`
}

// Stream is the ring buffer plus subscriber registry.
type Stream struct {
	mu          sync.RWMutex
	buf         []Event
	capacity    int
	total       uint64
	dropped     uint64
	subscribers map[chan Event]struct{}
}

func NewStream(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Stream{
		buf:         make([]Event, 0, capacity),
		capacity:    capacity,
		subscribers: make(map[chan Event]struct{}),
	}
}

// Publish stamps id and timestamp on the event, appends it to the ring, and
// broadcasts it to all subscribers without blocking. Slow subscribers miss
// events; the ring stays authoritative.
func (s *Stream) Publish(ev Event) Event {
	ev.ID = "evt-" + uuid.NewString()
	ev.TimestampMs = time.Now().UnixMilli()
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}

	s.mu.Lock()
	if len(s.buf) >= s.capacity {
		s.buf = s.buf[1:]
		s.dropped++
	}
	s.buf = append(s.buf, ev)
	s.total++

	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
	return ev
}

// Progress publishes a pipeline progress event.
func (s *Stream) Progress(requestID, jobID string, percent int, phase string) {
	s.Publish(Event{
		Type:      TypeProgress,
		RequestID: requestID,
		JobID:     jobID,
		Payload:   map[string]any{"percent": percent, "phase": phase},
	})
}

// Log publishes an event.log entry.
func (s *Stream) Log(requestID, level, message string) {
	s.Publish(Event{
		Type:      TypeLog,
		RequestID: requestID,
		Payload:   map[string]any{"level": level, "message": message},
	})
}

// Recent returns the newest n events, oldest first.
func (s *Stream) Recent(n int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.buf)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]Event, n)
	copy(out, s.buf[total-n:])
	return out
}

// Snapshot summarizes the stream state for system.health.
func (s *Stream) Snapshot(recentLimit int) map[string]any {
	recent := s.Recent(recentLimit)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"supported":                 true,
		"buffered_event_count":      len(s.buf),
		"total_emitted_event_count": s.total,
		"dropped_event_count":       s.dropped,
		"recent_events":             recent,
	}
}

// Subscribe registers a channel that receives every new event. Call
// Unsubscribe when done to avoid leaks.
func (s *Stream) Subscribe() chan Event {
	ch := make(chan Event, 64)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (s *Stream) Unsubscribe(ch chan Event) {
	s.mu.Lock()
	delete(s.subscribers, ch)
	s.mu.Unlock()
	close(ch)
}
