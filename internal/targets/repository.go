package targets

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("targets: not found")
	ErrInvalidArgument = errors.New("targets: invalid argument")
)

// Repository abstracts business/contact persistence.
// Implementations must treat status updates as plain writes; workflow rules
// (when a status may advance) live in the callers.
type Repository interface {
	GetBusiness(ctx context.Context, id string) (Business, bool, error)
	GetContact(ctx context.Context, id string) (Contact, bool, error)

	SetBusinessStatus(ctx context.Context, id string, status BusinessStatus) error
	SetContactStatus(ctx context.Context, id string, status ContactStatus) error
}
