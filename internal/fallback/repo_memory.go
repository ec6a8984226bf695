package fallback

import (
	"context"
	"sync"
)

// MemoryRepo is a simple in-memory insert-only repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu   sync.Mutex
	rows []SequenceEnrollment
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Insert(ctx context.Context, e SequenceEnrollment) error {
	if e.ID == "" || e.JobID == "" || e.BusinessID == "" {
		return ErrInvalidEnrollment
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, e)
	return nil
}

func (r *MemoryRepo) All() []SequenceEnrollment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SequenceEnrollment, len(r.rows))
	copy(out, r.rows)
	return out
}

func (r *MemoryRepo) ByJobID(jobID string) []SequenceEnrollment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SequenceEnrollment
	for _, e := range r.rows {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out
}
