package webhook

import (
	"context"
	"log/slog"
	"time"

	"verify-orchestrator/internal/classify"
	"verify-orchestrator/internal/fallback"
	"verify-orchestrator/internal/jobs"
	"verify-orchestrator/internal/targets"

	"github.com/google/uuid"
)

// Service processes inbound call-completion callbacks.
//
// Correctness under provider retries rests entirely on the job store: at most
// one job is ever active per call ref, and Complete only applies while the
// job is non-terminal. A replayed delivery misses the active lookup (or loses
// the guarded write) and acknowledges as a no-op.
type Service struct {
	events   EventRepository
	store    jobs.Store
	targets  targets.Repository
	resolver *targets.Resolver
	enroller *fallback.Enroller
	clock    func() time.Time
	log      *slog.Logger
}

func NewService(events EventRepository, store jobs.Store, targetRepo targets.Repository, resolver *targets.Resolver, enroller *fallback.Enroller, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		events:   events,
		store:    store,
		targets:  targetRepo,
		resolver: resolver,
		enroller: enroller,
		clock:    time.Now,
		log:      log,
	}
}

// SetClock overrides the service clock for deterministic tests.
func (s *Service) SetClock(clock func() time.Time) { s.clock = clock }

// Receipt summarizes what a callback delivery did. Every delivery is
// acknowledged; Receipt tells the caller (and tests) which branch ran.
type Receipt struct {
	CallRef  string `json:"call_ref,omitempty"`
	Matched  bool   `json:"matched"`
	JobID    string `json:"job_id,omitempty"`
	Positive bool   `json:"positive,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// HandleCallback ingests one raw provider delivery. It never returns an error
// for payloads it cannot act on; only infrastructure failures (store reads,
// finalization writes) surface as errors so the provider retries.
func (s *Service) HandleCallback(ctx context.Context, raw []byte, remoteIP string) (Receipt, error) {
	res, parsed := ParseCallResult(raw)

	job, matched, err := s.correlate(ctx, res, parsed)
	if err != nil {
		s.audit(ctx, res.CallRef, "", false, raw, remoteIP)
		return Receipt{CallRef: res.CallRef}, err
	}

	jobID := ""
	if matched {
		jobID = job.ID
	}
	s.audit(ctx, res.CallRef, jobID, matched, raw, remoteIP)

	if !matched {
		s.log.Info("callback without an active job, acknowledged",
			"call_ref", res.CallRef, "parsed", parsed)
		return Receipt{CallRef: res.CallRef}, nil
	}

	outcome := classify.Classify(classify.CallResult{
		Status:          res.Status,
		DurationSeconds: res.DurationSeconds,
		Summary:         res.Summary,
	})
	log := s.log.With("job_id", job.ID, "call_ref", res.CallRef)

	if !outcome.Positive {
		log.Info("call outcome not positive, enrolling fallback", "reason", outcome.Reason)
		if err := s.enroller.Enqueue(ctx, job, s.fallbackEmail(ctx, job), outcome.Reason); err != nil {
			return Receipt{CallRef: res.CallRef, Matched: true, JobID: job.ID, Reason: outcome.Reason}, err
		}
		return Receipt{CallRef: res.CallRef, Matched: true, JobID: job.ID, Reason: outcome.Reason}, nil
	}

	applied, err := s.store.Complete(ctx, job.ID, jobs.StatusCompletedSuccess, res.Status, outcome.Reason)
	if err != nil {
		return Receipt{CallRef: res.CallRef, Matched: true, JobID: job.ID}, err
	}
	if !applied {
		// Lost the race to another delivery; its effects stand.
		log.Info("job finalized concurrently, acknowledged")
		return Receipt{CallRef: res.CallRef, Matched: true, JobID: job.ID}, nil
	}

	if err := s.targets.SetBusinessStatus(ctx, job.BusinessID, targets.BusinessStatusVerified); err != nil {
		log.Error("business status update failed after success", "business_id", job.BusinessID, "err", err)
	}
	if job.ContactID != "" {
		if err := s.targets.SetContactStatus(ctx, job.ContactID, targets.ContactStatusQualified); err != nil {
			log.Error("contact status update failed after success", "contact_id", job.ContactID, "err", err)
		}
	}
	log.Info("verification call succeeded", "reason", outcome.Reason)
	return Receipt{CallRef: res.CallRef, Matched: true, JobID: job.ID, Positive: true, Reason: outcome.Reason}, nil
}

// correlate finds the active job for the delivery, if any.
func (s *Service) correlate(ctx context.Context, res CallResult, parsed bool) (jobs.VerificationJob, bool, error) {
	if !parsed || res.CallRef == "" {
		return jobs.VerificationJob{}, false, nil
	}
	job, ok, err := s.store.FindActiveByCallRef(ctx, res.CallRef)
	if err != nil {
		return jobs.VerificationJob{}, false, err
	}
	return job, ok, nil
}

// fallbackEmail re-resolves the target's email waterfall for the enrollment.
// Resolution failures degrade to a nil email rather than blocking fallback.
func (s *Service) fallbackEmail(ctx context.Context, job jobs.VerificationJob) *string {
	resolved, err := s.resolver.Resolve(ctx, job)
	if err != nil {
		s.log.Warn("email resolution failed for fallback enrollment", "job_id", job.ID, "err", err)
		return nil
	}
	return resolved.FallbackEmail
}

// audit appends the delivery to the append-only event log. Best-effort:
// callback handling never fails on audit errors.
func (s *Service) audit(ctx context.Context, callRef, jobID string, matched bool, raw []byte, remoteIP string) {
	if s.events == nil {
		return
	}
	err := s.events.Append(ctx, Event{
		ID:        uuid.NewString(),
		CallRef:   callRef,
		JobID:     jobID,
		Matched:   matched,
		Payload:   string(raw),
		RemoteIP:  remoteIP,
		CreatedAt: s.clock().UTC(),
	})
	if err != nil {
		s.log.Error("webhook audit append failed", "call_ref", callRef, "err", err)
	}
}
