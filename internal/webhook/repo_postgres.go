package webhook

import (
	"context"
	"database/sql"
)

// PostgresEventRepo appends callback events to the webhook_events table.
// The table is INSERT-only; consider a trigger preventing UPDATE/DELETE and
// time partitioning for retention.
type PostgresEventRepo struct {
	db *sql.DB
}

func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo { return &PostgresEventRepo{db: db} }

func (r *PostgresEventRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO webhook_events (
  id, call_ref, job_id, matched, payload, remote_ip, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7
)
`
	var callRef, jobID, remoteIP sql.NullString
	if e.CallRef != "" {
		callRef = sql.NullString{String: e.CallRef, Valid: true}
	}
	if e.JobID != "" {
		jobID = sql.NullString{String: e.JobID, Valid: true}
	}
	if e.RemoteIP != "" {
		remoteIP = sql.NullString{String: e.RemoteIP, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		callRef,
		jobID,
		e.Matched,
		e.Payload,
		remoteIP,
		e.CreatedAt,
	)
	return err
}
