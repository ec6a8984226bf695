package targets

import "time"

// Business is the entity being verified by phone.
//
// NOTE: This is a domain model only. Discovery/scoring fields live upstream
// and are not mixed into this core model.
type Business struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	// Phone is the raw number on file; canonicalization happens in the resolver.
	Phone string `json:"phone,omitempty" db:"phone"`

	// Email fields feed the fallback waterfall, most-validated first.
	ManagerEmail string `json:"manager_email,omitempty" db:"manager_email"`
	OwnerEmail   string `json:"owner_email,omitempty" db:"owner_email"`
	Email        string `json:"email,omitempty" db:"email"`

	Status BusinessStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type BusinessStatus string

const (
	BusinessStatusPending    BusinessStatus = "pending_verification"
	BusinessStatusVerified   BusinessStatus = "verified_active"
	BusinessStatusInFallback BusinessStatus = "in_fallback_sequence"
)

// Contact is the decision-maker associated with a business, if known.
type Contact struct {
	ID         string `json:"id" db:"id"`
	BusinessID string `json:"business_id" db:"business_id"`

	FirstName string `json:"first_name,omitempty" db:"first_name"`
	LastName  string `json:"last_name,omitempty" db:"last_name"`

	// Email is the decision-maker address; highest priority in the waterfall.
	Email string `json:"email,omitempty" db:"email"`

	Status ContactStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type ContactStatus string

const (
	ContactStatusNew           ContactStatus = "new"
	ContactStatusFollowUp      ContactStatus = "follow_up"
	ContactStatusQualified     ContactStatus = "qualified"
	ContactStatusCustomer      ContactStatus = "customer"
	ContactStatusNotInterested ContactStatus = "not_interested"
)

// TerminalOutcome reports whether a contact already has a settled outcome.
// Fallback never downgrades these to follow_up.
func (s ContactStatus) TerminalOutcome() bool {
	return s == ContactStatusQualified || s == ContactStatusCustomer || s == ContactStatusNotInterested
}
