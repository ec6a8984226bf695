package webhook

import (
	"context"
	"sync"
	"time"
)

// Event is an immutable, append-only record of one inbound provider callback.
//
// Invariants:
// - Events are never updated or deleted.
// - Every delivery is recorded, matched to a job or not.
// - Appending is best-effort; callback handling does not fail on audit errors.

type Event struct {
	ID      string `json:"id" db:"id"`
	CallRef string `json:"call_ref,omitempty" db:"call_ref"`
	JobID   string `json:"job_id,omitempty" db:"job_id"`

	// Matched reports whether the delivery correlated to an active job.
	Matched bool `json:"matched" db:"matched"`

	// Payload is the raw request body as received, stored verbatim for
	// replay and forensics.
	Payload string `json:"payload" db:"payload"`

	// RemoteIP is the resolved client IP of the delivery, best-effort.
	RemoteIP string `json:"remote_ip,omitempty" db:"remote_ip"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// EventRepository is the persistence contract for callback audit events.
//
// It MUST be append-only. No Update/Delete methods are provided.
type EventRepository interface {
	Append(ctx context.Context, e Event) error
}

// MemoryEventRepo is a simple in-memory append-only repository useful for
// tests. It is not intended for production use.
type MemoryEventRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryEventRepo() *MemoryEventRepo { return &MemoryEventRepo{} }

func (r *MemoryEventRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryEventRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
