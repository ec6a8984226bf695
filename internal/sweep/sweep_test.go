package sweep

import (
	"context"
	"testing"
	"time"

	"verify-orchestrator/internal/fallback"
	"verify-orchestrator/internal/jobs"
	"verify-orchestrator/internal/targets"
)

type fixture struct {
	store       *jobs.MemoryStore
	targets     *targets.MemoryRepo
	enrollments *fallback.MemoryRepo
	sweeper     *Sweeper
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       jobs.NewMemoryStore(),
		targets:     targets.NewMemoryRepo(),
		enrollments: fallback.NewMemoryRepo(),
		now:         time.Unix(1700000000, 0).UTC(),
	}
	resolver := targets.NewResolver(f.targets, "US")
	enroller := fallback.NewEnroller(f.enrollments, f.targets, f.store, "onboarding_drip")
	f.sweeper = New(f.store, resolver, enroller, "sweep-worker", 15*time.Minute, nil)
	f.sweeper.SetClock(func() time.Time { return f.now })
	f.targets.PutBusiness(targets.Business{ID: "b1", Name: "Acme", Email: "info@acme.test"})
	return f
}

// park inserts a job awaiting its callback, dispatched at the given age.
func (f *fixture) park(t *testing.T, jobID, callRef string, age time.Duration) {
	t.Helper()
	dispatched := f.now.Add(-age)
	err := f.store.Insert(context.Background(), jobs.VerificationJob{
		ID:           jobID,
		BusinessID:   "b1",
		Status:       jobs.StatusAwaitingCallback,
		CallRef:      callRef,
		DispatchedAt: &dispatched,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestRun_SweepsOnlyStaleJobs(t *testing.T) {
	f := newFixture(t)
	f.park(t, "stale", "call-1", 30*time.Minute)
	f.park(t, "fresh", "call-2", 5*time.Minute)

	swept, err := f.sweeper.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected one job swept, got %d", swept)
	}

	staleJob, _ := f.store.Get("stale")
	if staleJob.Status != jobs.StatusCompletedFallback || staleJob.OutcomeReason != ReasonCallbackTimeout {
		t.Fatalf("stale job not routed to fallback: %+v", staleJob)
	}
	freshJob, _ := f.store.Get("fresh")
	if freshJob.Status != jobs.StatusAwaitingCallback {
		t.Fatalf("fresh job must stay parked: %+v", freshJob)
	}

	rows := f.enrollments.ByJobID("stale")
	if len(rows) != 1 {
		t.Fatalf("expected one enrollment, got %d", len(rows))
	}
	if rows[0].Email == nil || *rows[0].Email != "info@acme.test" {
		t.Fatalf("expected waterfall email on enrollment: %+v", rows[0])
	}
}

func TestRun_RespectsLimitOldestFirst(t *testing.T) {
	f := newFixture(t)
	f.park(t, "older", "call-1", 60*time.Minute)
	f.park(t, "newer", "call-2", 20*time.Minute)

	swept, err := f.sweeper.Run(context.Background(), 1)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected one job swept, got %d", swept)
	}
	older, _ := f.store.Get("older")
	if older.Status != jobs.StatusCompletedFallback {
		t.Fatalf("oldest stale job not swept first: %+v", older)
	}
	newer, _ := f.store.Get("newer")
	if newer.Status != jobs.StatusAwaitingCallback {
		t.Fatalf("limit exceeded: %+v", newer)
	}
}

func TestRun_EmptyQueueIsANoOp(t *testing.T) {
	f := newFixture(t)
	swept, err := f.sweeper.Run(context.Background(), 10)
	if err != nil || swept != 0 {
		t.Fatalf("expected clean no-op, got %d, %v", swept, err)
	}
}

func TestRun_SweptJobLosingRaceToWebhookStaysFinalizedOnce(t *testing.T) {
	f := newFixture(t)
	f.park(t, "j1", "call-1", 30*time.Minute)

	// A late webhook finalizes the job between reclaim and enrollment.
	stale, err := f.store.SweepAwaitingCallback(context.Background(), "sweep-worker", f.now.Add(-15*time.Minute), 10)
	if err != nil || len(stale) != 1 {
		t.Fatalf("reclaim: %v (%d)", err, len(stale))
	}
	if _, err := f.store.Complete(context.Background(), "j1", jobs.StatusCompletedSuccess, "ended", "positive signal"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	enroller := fallback.NewEnroller(f.enrollments, f.targets, f.store, "onboarding_drip")
	if err := enroller.Enqueue(context.Background(), stale[0], nil, ReasonCallbackTimeout); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	j, _ := f.store.Get("j1")
	if j.Status != jobs.StatusCompletedSuccess {
		t.Fatalf("sweep overwrote a webhook finalization: %+v", j)
	}
	if len(f.enrollments.ByJobID("j1")) != 0 {
		t.Fatalf("losing sweep still enrolled")
	}
}
