package fallback

import "time"

// SequenceEnrollment is one insert-only row handed to the messaging-sequence
// provider. Its delivery logic is out of scope; this orchestrator only records
// the enrollment.
//
// Workflow invariant: exactly one enrollment per fallback-completed job,
// enforced by the claim/finalize workflow rather than a DB constraint.
type SequenceEnrollment struct {
	ID         string `json:"id" db:"id"`
	JobID      string `json:"job_id" db:"job_id"`
	BusinessID string `json:"business_id" db:"business_id"`
	ContactID  string `json:"contact_id,omitempty" db:"contact_id"`

	Campaign string `json:"campaign" db:"campaign"`

	// Email may be nil; an email-less enrollment is still recorded.
	Email *string `json:"email,omitempty" db:"email"`

	Status EnrollmentStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EnrollmentStatus string

const (
	EnrollmentStatusQueued EnrollmentStatus = "queued"
)
