package sweep

import (
	"context"
	"log/slog"
	"time"

	"verify-orchestrator/internal/fallback"
	"verify-orchestrator/internal/jobs"
	"verify-orchestrator/internal/targets"
)

// Sweeper reclaims jobs parked in awaiting_callback whose callback never
// arrived and routes them to the fallback sequence. The provider going
// silent is treated as dispatch-success-but-unknown-outcome, not an error.
type Sweeper struct {
	store    jobs.Store
	resolver *targets.Resolver
	enroller *fallback.Enroller

	workerID string
	maxAge   time.Duration
	clock    func() time.Time
	log      *slog.Logger
}

// ReasonCallbackTimeout is stamped on every swept job.
const ReasonCallbackTimeout = "callback timeout"

const defaultMaxAge = 15 * time.Minute

func New(store jobs.Store, resolver *targets.Resolver, enroller *fallback.Enroller, workerID string, maxAge time.Duration, log *slog.Logger) *Sweeper {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		store:    store,
		resolver: resolver,
		enroller: enroller,
		workerID: workerID,
		maxAge:   maxAge,
		clock:    time.Now,
		log:      log,
	}
}

// SetClock overrides the sweeper clock for deterministic tests.
func (s *Sweeper) SetClock(clock func() time.Time) { s.clock = clock }

// Run reclaims up to limit stale jobs and finalizes each into fallback.
// A webhook that arrives for a job mid-sweep loses the guarded write race
// and no-ops, or wins it and the sweep's enrollment no-ops; either way the
// job ends terminal exactly once.
func (s *Sweeper) Run(ctx context.Context, limit int) (int, error) {
	cutoff := s.clock().UTC().Add(-s.maxAge)
	stale, err := s.store.SweepAwaitingCallback(ctx, s.workerID, cutoff, limit)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, job := range stale {
		email := s.fallbackEmail(ctx, job)
		if err := s.enroller.Enqueue(ctx, job, email, ReasonCallbackTimeout); err != nil {
			s.log.Error("sweep enrollment failed", "job_id", job.ID, "err", err)
			continue
		}
		s.log.Info("stale job swept to fallback",
			"job_id", job.ID, "call_ref", job.CallRef, "dispatched_at", job.DispatchedAt)
		swept++
	}
	return swept, nil
}

func (s *Sweeper) fallbackEmail(ctx context.Context, job jobs.VerificationJob) *string {
	resolved, err := s.resolver.Resolve(ctx, job)
	if err != nil {
		s.log.Warn("email resolution failed during sweep", "job_id", job.ID, "err", err)
		return nil
	}
	return resolved.FallbackEmail
}
