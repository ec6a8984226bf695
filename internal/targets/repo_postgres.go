package targets

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo reads and updates businesses and contacts.
//
// Assumed tables: businesses, contacts (schema owned by the upstream
// discovery service; this orchestrator only reads rows and advances statuses).
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

func (r *PostgresRepo) GetBusiness(ctx context.Context, id string) (Business, bool, error) {
	if id == "" {
		return Business{}, false, ErrInvalidArgument
	}
	const q = `
SELECT id, name, phone, manager_email, owner_email, email, status, created_at, updated_at
FROM businesses
WHERE id = $1
`
	var (
		b            Business
		phone        sql.NullString
		managerEmail sql.NullString
		ownerEmail   sql.NullString
		email        sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID,
		&b.Name,
		&phone,
		&managerEmail,
		&ownerEmail,
		&email,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Business{}, false, nil
		}
		return Business{}, false, err
	}
	b.Phone = phone.String
	b.ManagerEmail = managerEmail.String
	b.OwnerEmail = ownerEmail.String
	b.Email = email.String
	return b, true, nil
}

func (r *PostgresRepo) GetContact(ctx context.Context, id string) (Contact, bool, error) {
	if id == "" {
		return Contact{}, false, ErrInvalidArgument
	}
	const q = `
SELECT id, business_id, first_name, last_name, email, status, created_at, updated_at
FROM contacts
WHERE id = $1
`
	var (
		c         Contact
		firstName sql.NullString
		lastName  sql.NullString
		email     sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&c.ID,
		&c.BusinessID,
		&firstName,
		&lastName,
		&email,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, false, nil
		}
		return Contact{}, false, err
	}
	c.FirstName = firstName.String
	c.LastName = lastName.String
	c.Email = email.String
	return c, true, nil
}

func (r *PostgresRepo) SetBusinessStatus(ctx context.Context, id string, status BusinessStatus) error {
	if id == "" || status == "" {
		return ErrInvalidArgument
	}
	const q = `UPDATE businesses SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, q, status, r.clock().UTC(), id)
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

func (r *PostgresRepo) SetContactStatus(ctx context.Context, id string, status ContactStatus) error {
	if id == "" || status == "" {
		return ErrInvalidArgument
	}
	const q = `UPDATE contacts SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, q, status, r.clock().UTC(), id)
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
