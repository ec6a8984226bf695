package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store useful for tests.
// It is not intended for production use, but it honors the same claim
// exclusivity and status-guard semantics as the Postgres store: every write
// happens under one mutex, so concurrent ClaimJobs calls are disjoint.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string]*VerificationJob
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: map[string]*VerificationJob{}, clock: time.Now}
}

// SetClock overrides the store clock for deterministic tests.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) Insert(ctx context.Context, job VerificationJob) error {
	if job.ID == "" || job.BusinessID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	job.UpdatedAt = now
	cp := job
	s.rows[job.ID] = &cp
	return nil
}

func (s *MemoryStore) ClaimJobs(ctx context.Context, workerID string, batchSize int) ([]VerificationJob, error) {
	if workerID == "" || batchSize <= 0 {
		return nil, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	queued := make([]*VerificationJob, 0)
	for _, j := range s.rows {
		if j.Status == StatusQueued {
			queued = append(queued, j)
		}
	}
	sort.Slice(queued, func(i, k int) bool { return queued[i].CreatedAt.Before(queued[k].CreatedAt) })
	if len(queued) > batchSize {
		queued = queued[:batchSize]
	}

	now := s.clock().UTC()
	out := make([]VerificationJob, 0, len(queued))
	for _, j := range queued {
		j.Status = StatusProcessing
		j.ClaimedBy = workerID
		t := now
		j.ClaimedAt = &t
		j.UpdatedAt = now
		out = append(out, *j)
	}
	return out, nil
}

func (s *MemoryStore) MarkAwaitingCallback(ctx context.Context, jobID, callRef, callStatus string) error {
	if jobID == "" || callRef == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.rows[jobID]
	if !ok || j.Status != StatusProcessing {
		return ErrNotFound
	}
	now := s.clock().UTC()
	j.Status = StatusAwaitingCallback
	j.CallRef = callRef
	j.CallStatus = callStatus
	t := now
	j.DispatchedAt = &t
	j.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Complete(ctx context.Context, jobID string, status JobStatus, callStatus, reason string) (bool, error) {
	if jobID == "" || !status.Terminal() {
		return false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.rows[jobID]
	if !ok {
		return false, nil
	}
	if j.Status != StatusProcessing && j.Status != StatusAwaitingCallback {
		return false, nil
	}
	now := s.clock().UTC()
	j.Status = status
	if callStatus != "" {
		j.CallStatus = callStatus
	}
	j.OutcomeReason = reason
	t := now
	j.CompletedAt = &t
	j.UpdatedAt = now
	return true, nil
}

func (s *MemoryStore) FindActiveByCallRef(ctx context.Context, callRef string) (VerificationJob, bool, error) {
	if callRef == "" {
		return VerificationJob{}, false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *VerificationJob
	for _, j := range s.rows {
		if j.CallRef != callRef {
			continue
		}
		if j.Status != StatusProcessing && j.Status != StatusAwaitingCallback {
			continue
		}
		if best == nil || j.CreatedAt.After(best.CreatedAt) {
			best = j
		}
	}
	if best == nil {
		return VerificationJob{}, false, nil
	}
	return *best, true, nil
}

func (s *MemoryStore) SweepAwaitingCallback(ctx context.Context, workerID string, cutoff time.Time, limit int) ([]VerificationJob, error) {
	if workerID == "" || limit <= 0 {
		return nil, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stale := make([]*VerificationJob, 0)
	for _, j := range s.rows {
		if j.Status == StatusAwaitingCallback && j.DispatchedAt != nil && j.DispatchedAt.Before(cutoff) {
			stale = append(stale, j)
		}
	}
	sort.Slice(stale, func(i, k int) bool { return stale[i].DispatchedAt.Before(*stale[k].DispatchedAt) })
	if len(stale) > limit {
		stale = stale[:limit]
	}

	now := s.clock().UTC()
	out := make([]VerificationJob, 0, len(stale))
	for _, j := range stale {
		j.Status = StatusProcessing
		j.ClaimedBy = workerID
		j.UpdatedAt = now
		out = append(out, *j)
	}
	return out, nil
}

// Get returns a snapshot of one job. Test helper.
func (s *MemoryStore) Get(id string) (VerificationJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.rows[id]
	if !ok {
		return VerificationJob{}, false
	}
	return *j, true
}
