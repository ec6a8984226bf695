package fallback

import (
	"context"
	"database/sql"
)

// PostgresRepo appends enrollments to the sequence_enrollments table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, e SequenceEnrollment) error {
	if e.ID == "" || e.JobID == "" || e.BusinessID == "" {
		return ErrInvalidEnrollment
	}
	const q = `
INSERT INTO sequence_enrollments (
  id, job_id, business_id, contact_id, campaign, email, status, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	var contactID, email sql.NullString
	if e.ContactID != "" {
		contactID = sql.NullString{String: e.ContactID, Valid: true}
	}
	if e.Email != nil {
		email = sql.NullString{String: *e.Email, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.JobID,
		e.BusinessID,
		contactID,
		e.Campaign,
		email,
		e.Status,
		e.CreatedAt,
	)
	return err
}
