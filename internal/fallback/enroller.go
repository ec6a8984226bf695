package fallback

import (
	"context"
	"errors"
	"time"

	"verify-orchestrator/internal/jobs"
	"verify-orchestrator/internal/targets"

	"github.com/google/uuid"
)

// Enroller routes a job that could not be confirmed positive into the
// messaging sequence. It is reached from dispatch-time failures, webhook
// non-positive outcomes, and the callback-timeout sweep, and behaves
// identically regardless of caller.
type Enroller struct {
	enrollments Repository
	targets     targets.Repository
	store       jobs.Store

	campaign string
	clock    func() time.Time
}

func NewEnroller(enrollments Repository, targetRepo targets.Repository, store jobs.Store, campaign string) *Enroller {
	if campaign == "" {
		campaign = "onboarding_drip"
	}
	return &Enroller{
		enrollments: enrollments,
		targets:     targetRepo,
		store:       store,
		campaign:    campaign,
		clock:       time.Now,
	}
}

// SetClock overrides the clock for deterministic tests.
func (e *Enroller) SetClock(clock func() time.Time) { e.clock = clock }

// Enqueue finalizes the job as completed_fallback with the supplied reason,
// records one SequenceEnrollment, marks the business as in the fallback
// sequence, and advances a non-settled contact to follow_up.
//
// The guarded terminal write runs first and gates everything else: when two
// callers race over the same job (a provider redelivering a webhook), only
// the one whose write applies produces an enrollment; the loser no-ops. The
// job is terminal before any side effect, so partial failures afterwards
// never leave it stuck.
func (e *Enroller) Enqueue(ctx context.Context, job jobs.VerificationJob, email *string, reason string) error {
	if job.ID == "" || job.BusinessID == "" {
		return ErrInvalidEnrollment
	}

	applied, err := e.store.Complete(ctx, job.ID, jobs.StatusCompletedFallback, "", reason)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	var errs []error

	enrollment := SequenceEnrollment{
		ID:         uuid.NewString(),
		JobID:      job.ID,
		BusinessID: job.BusinessID,
		ContactID:  job.ContactID,
		Campaign:   e.campaign,
		Email:      email,
		Status:     EnrollmentStatusQueued,
		CreatedAt:  e.clock().UTC(),
	}
	if err := e.enrollments.Insert(ctx, enrollment); err != nil {
		errs = append(errs, err)
	}

	if err := e.targets.SetBusinessStatus(ctx, job.BusinessID, targets.BusinessStatusInFallback); err != nil {
		errs = append(errs, err)
	}

	if job.ContactID != "" {
		contact, ok, err := e.targets.GetContact(ctx, job.ContactID)
		switch {
		case err != nil:
			errs = append(errs, err)
		case ok && !contact.Status.TerminalOutcome():
			if err := e.targets.SetContactStatus(ctx, job.ContactID, targets.ContactStatusFollowUp); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}
