package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PostgresStore persists jobs in the verification_jobs table.
//
// Claim exclusivity relies on a single locking statement
// (FOR UPDATE SKIP LOCKED inside one UPDATE); a read-then-write claim would
// race under concurrent dispatch invocations.
//
// Assumed schema:
//   verification_jobs (
//     id UUID PRIMARY KEY,
//     business_id UUID NOT NULL,
//     contact_id UUID,
//     status TEXT NOT NULL,
//     claimed_by TEXT,
//     call_ref TEXT,
//     call_status TEXT,
//     outcome_reason TEXT,
//     payload JSONB NOT NULL DEFAULT '{}',
//     created_at TIMESTAMPTZ NOT NULL,
//     claimed_at TIMESTAMPTZ,
//     dispatched_at TIMESTAMPTZ,
//     completed_at TIMESTAMPTZ,
//     updated_at TIMESTAMPTZ NOT NULL
//   )
//   with an index on (status, created_at) and on (call_ref) WHERE call_ref IS NOT NULL.
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const jobColumns = `id, business_id, contact_id, status, claimed_by, call_ref, call_status, outcome_reason, payload, created_at, claimed_at, dispatched_at, completed_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, job VerificationJob) error {
	if job.ID == "" || job.BusinessID == "" {
		return ErrInvalidArgument
	}
	now := s.clock().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}

	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO verification_jobs (
  id, business_id, contact_id, status, payload, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7
)
`
	_, err = s.db.ExecContext(ctx, q,
		job.ID,
		job.BusinessID,
		nullString(job.ContactID),
		job.Status,
		payload,
		job.CreatedAt,
		now,
	)
	return err
}

func (s *PostgresStore) ClaimJobs(ctx context.Context, workerID string, batchSize int) ([]VerificationJob, error) {
	if workerID == "" || batchSize <= 0 {
		return nil, ErrInvalidArgument
	}
	now := s.clock().UTC()

	// Single atomic statement: competing claimers skip each other's locked
	// rows instead of blocking or double-claiming.
	const q = `
UPDATE verification_jobs
SET status = $1, claimed_by = $2, claimed_at = $3, updated_at = $3
WHERE id IN (
  SELECT id FROM verification_jobs
  WHERE status = $4
  ORDER BY created_at
  LIMIT $5
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns

	rows, err := s.db.QueryContext(ctx, q, StatusProcessing, workerID, now, StatusQueued, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]VerificationJob, 0, batchSize)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkAwaitingCallback(ctx context.Context, jobID, callRef, callStatus string) error {
	if jobID == "" || callRef == "" {
		return ErrInvalidArgument
	}
	now := s.clock().UTC()

	const q = `
UPDATE verification_jobs
SET status = $1, call_ref = $2, call_status = $3, dispatched_at = $4, updated_at = $4
WHERE id = $5 AND status = $6
`
	res, err := s.db.ExecContext(ctx, q, StatusAwaitingCallback, callRef, nullString(callStatus), now, jobID, StatusProcessing)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, jobID string, status JobStatus, callStatus, reason string) (bool, error) {
	if jobID == "" || !status.Terminal() {
		return false, ErrInvalidArgument
	}
	now := s.clock().UTC()

	// Status guard doubles as the idempotency barrier: a job already in a
	// completed_* status is never rewritten.
	const q = `
UPDATE verification_jobs
SET status = $1,
    call_status = COALESCE(NULLIF($2, ''), call_status),
    outcome_reason = $3,
    completed_at = $4,
    updated_at = $4
WHERE id = $5 AND status IN ($6, $7)
`
	res, err := s.db.ExecContext(ctx, q, status, callStatus, reason, now, jobID, StatusProcessing, StatusAwaitingCallback)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) FindActiveByCallRef(ctx context.Context, callRef string) (VerificationJob, bool, error) {
	if callRef == "" {
		return VerificationJob{}, false, ErrInvalidArgument
	}

	const q = `
SELECT ` + jobColumns + `
FROM verification_jobs
WHERE call_ref = $1 AND status IN ($2, $3)
ORDER BY created_at DESC
LIMIT 1
`
	row := s.db.QueryRowContext(ctx, q, callRef, StatusProcessing, StatusAwaitingCallback)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VerificationJob{}, false, nil
		}
		return VerificationJob{}, false, err
	}
	return j, true, nil
}

func (s *PostgresStore) SweepAwaitingCallback(ctx context.Context, workerID string, cutoff time.Time, limit int) ([]VerificationJob, error) {
	if workerID == "" || limit <= 0 {
		return nil, ErrInvalidArgument
	}
	now := s.clock().UTC()

	const q = `
UPDATE verification_jobs
SET status = $1, claimed_by = $2, updated_at = $3
WHERE id IN (
  SELECT id FROM verification_jobs
  WHERE status = $4 AND dispatched_at < $5
  ORDER BY dispatched_at
  LIMIT $6
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns

	rows, err := s.db.QueryContext(ctx, q, StatusProcessing, workerID, now, StatusAwaitingCallback, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VerificationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (VerificationJob, error) {
	var (
		j             VerificationJob
		contactID     sql.NullString
		claimedBy     sql.NullString
		callRef       sql.NullString
		callStatus    sql.NullString
		outcomeReason sql.NullString
		payload       []byte
		claimedAt     sql.NullTime
		dispatchedAt  sql.NullTime
		completedAt   sql.NullTime
	)
	if err := r.Scan(
		&j.ID,
		&j.BusinessID,
		&contactID,
		&j.Status,
		&claimedBy,
		&callRef,
		&callStatus,
		&outcomeReason,
		&payload,
		&j.CreatedAt,
		&claimedAt,
		&dispatchedAt,
		&completedAt,
		&j.UpdatedAt,
	); err != nil {
		return VerificationJob{}, err
	}

	j.ContactID = contactID.String
	j.ClaimedBy = claimedBy.String
	j.CallRef = callRef.String
	j.CallStatus = callStatus.String
	j.OutcomeReason = outcomeReason.String
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return VerificationJob{}, err
		}
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		j.ClaimedAt = &t
	}
	if dispatchedAt.Valid {
		t := dispatchedAt.Time
		j.DispatchedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return j, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
