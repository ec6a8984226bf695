package jobs

import "time"

// VerificationJob is one unit of "verify this business by phone" work.
//
// Lifecycle invariants:
// - queued -> processing -> awaiting_callback -> completed_success | completed_fallback
// - queued -> processing -> completed_fallback (dispatch never reached the provider)
// - awaiting_callback -> processing happens only via the timeout sweep re-claim.
// - At most one job may be in {processing, awaiting_callback} per call_ref.
// - A completed job is immutable; replayed webhooks must be no-ops against it.
//
// No job is ever deleted; completed rows are the audit trail.
type VerificationJob struct {
	ID         string `json:"id" db:"id"`
	BusinessID string `json:"business_id" db:"business_id"`
	// ContactID is the associated decision-maker record, if any.
	ContactID string `json:"contact_id,omitempty" db:"contact_id"`

	Status JobStatus `json:"status" db:"status"`

	// ClaimedBy is the worker identity holding the claim; empty until claimed.
	ClaimedBy string `json:"claimed_by,omitempty" db:"claimed_by"`

	// CallRef is the provider-assigned call identifier; empty until dispatched.
	CallRef string `json:"call_ref,omitempty" db:"call_ref"`

	CallStatus    string `json:"call_status,omitempty" db:"call_status"`
	OutcomeReason string `json:"outcome_reason,omitempty" db:"outcome_reason"`

	// Payload is an immutable snapshot captured at enqueue time so downstream
	// steps do not re-fetch data that may have changed since.
	Payload Payload `json:"payload" db:"payload"`

	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	ClaimedAt    *time.Time `json:"claimed_at,omitempty" db:"claimed_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty" db:"dispatched_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// Payload is the enqueue-time snapshot. Stored as JSONB.
type Payload struct {
	BusinessName     string `json:"business_name,omitempty"`
	ContactFirstName string `json:"contact_first_name,omitempty"`
}

type JobStatus string

const (
	StatusQueued            JobStatus = "queued"
	StatusProcessing        JobStatus = "processing"
	StatusAwaitingCallback  JobStatus = "awaiting_callback"
	StatusCompletedSuccess  JobStatus = "completed_success"
	StatusCompletedFallback JobStatus = "completed_fallback"
)

// Terminal reports whether the status is one of the two completed states.
func (s JobStatus) Terminal() bool {
	return s == StatusCompletedSuccess || s == StatusCompletedFallback
}
