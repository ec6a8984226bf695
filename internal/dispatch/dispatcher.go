package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"verify-orchestrator/internal/fallback"
	"verify-orchestrator/internal/jobs"
	"verify-orchestrator/internal/queuectrl"
	"verify-orchestrator/internal/targets"
	"verify-orchestrator/internal/telephony"
)

// Dispatcher claims queued verification jobs, places outbound calls, and
// routes undialable jobs to fallback. Multiple invocations may run
// concurrently across instances; exclusivity comes solely from the store's
// atomic claim.
type Dispatcher struct {
	store    jobs.Store
	resolver *targets.Resolver
	provider telephony.CallProvider
	enroller *fallback.Enroller
	control  queuectrl.Control
	limiter  CycleLimiter

	workerID string
	// workers bounds in-cycle parallelism. 1 means sequential, which is the
	// default: the provider is a shared rate-limited resource.
	workers int

	log *slog.Logger
}

// CycleSummary is the only cycle-level result surfaced to callers; individual
// job failures are routed to fallback, not escalated.
type CycleSummary struct {
	Claimed    int  `json:"claimed"`
	Dispatched int  `json:"dispatched"`
	Fallback   int  `json:"fallback"`
	Paused     bool `json:"paused"`
	Throttled  bool `json:"throttled"`
}

type Options struct {
	WorkerID string
	Workers  int
	Limiter  CycleLimiter
	Logger   *slog.Logger
}

func New(store jobs.Store, resolver *targets.Resolver, provider telephony.CallProvider, enroller *fallback.Enroller, control queuectrl.Control, opts Options) *Dispatcher {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > 4 {
		workers = 4
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		store:    store,
		resolver: resolver,
		provider: provider,
		enroller: enroller,
		control:  control,
		limiter:  opts.Limiter,
		workerID: opts.WorkerID,
		workers:  workers,
		log:      log,
	}
}

// Run executes one dispatch cycle. Every claimed job leaves the cycle in a
// persisted state: awaiting_callback on successful dispatch, or
// completed_fallback on any failure along the way.
func (d *Dispatcher) Run(ctx context.Context, batchSize int) (CycleSummary, error) {
	if batchSize <= 0 {
		return CycleSummary{}, jobs.ErrInvalidArgument
	}

	paused, err := d.control.IsPaused(ctx)
	if err != nil {
		// Fail closed: a flag-store outage must not bypass an operator pause.
		return CycleSummary{}, err
	}
	if paused {
		return CycleSummary{Paused: true}, nil
	}

	if d.limiter != nil {
		ok, err := d.limiter.Acquire(ctx)
		if err != nil {
			return CycleSummary{}, err
		}
		if !ok {
			return CycleSummary{Throttled: true}, nil
		}
		defer func() {
			if err := d.limiter.Release(context.WithoutCancel(ctx)); err != nil {
				d.log.Warn("cycle limiter release failed", "err", err)
			}
		}()
	}

	claimed, err := d.store.ClaimJobs(ctx, d.workerID, batchSize)
	if err != nil {
		return CycleSummary{}, err
	}

	summary := CycleSummary{Claimed: len(claimed)}
	if len(claimed) == 0 {
		return summary, nil
	}

	var dispatched, fellBack int64
	if d.workers == 1 {
		for _, job := range claimed {
			if d.processJob(ctx, job) {
				dispatched++
			} else {
				fellBack++
			}
		}
	} else {
		jobCh := make(chan jobs.VerificationJob)
		var wg sync.WaitGroup
		for i := 0; i < d.workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for job := range jobCh {
					if d.processJob(ctx, job) {
						atomic.AddInt64(&dispatched, 1)
					} else {
						atomic.AddInt64(&fellBack, 1)
					}
				}
			}()
		}
		for _, job := range claimed {
			jobCh <- job
		}
		close(jobCh)
		wg.Wait()
	}

	summary.Dispatched = int(dispatched)
	summary.Fallback = int(fellBack)
	return summary, nil
}

// processJob takes one claimed job to a persisted state. Returns true when
// the job was handed to the provider and parked awaiting its callback.
func (d *Dispatcher) processJob(ctx context.Context, job jobs.VerificationJob) bool {
	log := d.log.With("job_id", job.ID, "business_id", job.BusinessID)

	resolved, err := d.resolver.Resolve(ctx, job)
	if err != nil {
		d.fallBack(ctx, job, nil, fmt.Sprintf("target resolution failed: %v", err))
		return false
	}

	if resolved.Phone == nil {
		d.fallBack(ctx, job, resolved.FallbackEmail, "no usable phone")
		return false
	}
	if d.provider == nil || !d.provider.Configured() {
		d.fallBack(ctx, job, resolved.FallbackEmail, "provider unavailable")
		return false
	}

	res, err := d.provider.PlaceCall(ctx, telephony.PlaceCallRequest{
		Number:       *resolved.Phone,
		CustomerName: resolved.DisplayName,
		FirstMessage: openingLine(resolved.DisplayName, resolved.ContactFirstName),
		Variables: map[string]string{
			"business_name":      resolved.DisplayName,
			"contact_first_name": resolved.ContactFirstName,
		},
	})
	if err != nil {
		d.fallBack(ctx, job, resolved.FallbackEmail, err.Error())
		return false
	}

	if err := d.store.MarkAwaitingCallback(ctx, job.ID, res.CallRef, res.Status); err != nil {
		// The call was placed but the state write failed; fall back rather
		// than leave the job stranded in processing. The webhook handler's
		// active-job lookup will miss and no-op.
		log.Error("awaiting-callback write failed after dispatch", "call_ref", res.CallRef, "err", err)
		d.fallBack(ctx, job, resolved.FallbackEmail, fmt.Sprintf("dispatch state write failed: %v", err))
		return false
	}

	log.Info("call dispatched", "call_ref", res.CallRef, "call_status", res.Status)
	return true
}

func (d *Dispatcher) fallBack(ctx context.Context, job jobs.VerificationJob, email *string, reason string) {
	if err := d.enroller.Enqueue(ctx, job, email, reason); err != nil {
		// Logged, not escalated: one job's failure never aborts the batch.
		d.log.Error("fallback enrollment failed", "job_id", job.ID, "reason", reason, "err", err)
	}
}

// openingLine builds the personalized first message for the call agent.
func openingLine(displayName, contactFirstName string) string {
	if contactFirstName != "" {
		return fmt.Sprintf("Hi %s! I'm calling to verify the business listing for %s. Do you have a quick moment?", contactFirstName, displayName)
	}
	return fmt.Sprintf("Hi! I'm calling to verify the business listing for %s. Do you have a quick moment?", displayName)
}
