package fallback

import (
	"context"
	"errors"
)

var ErrInvalidEnrollment = errors.New("fallback: invalid enrollment")

// Repository is the persistence contract for sequence enrollments.
//
// It MUST be insert-only. No Update/Delete methods are provided by design.
type Repository interface {
	Insert(ctx context.Context, e SequenceEnrollment) error
}
