package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"verify-orchestrator/internal/fallback"
	"verify-orchestrator/internal/jobs"
	"verify-orchestrator/internal/queuectrl"
	"verify-orchestrator/internal/targets"
	"verify-orchestrator/internal/telephony"
)

type fakeProvider struct {
	mu         sync.Mutex
	configured bool
	placeErr   error
	calls      []telephony.PlaceCallRequest
	refs       int
}

func (p *fakeProvider) Name() string                          { return "fake" }
func (p *fakeProvider) Configured() bool                      { return p.configured }
func (p *fakeProvider) HealthCheck(ctx context.Context) error { return nil }

func (p *fakeProvider) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (telephony.PlaceCallResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.placeErr != nil {
		return telephony.PlaceCallResult{}, p.placeErr
	}
	p.calls = append(p.calls, req)
	p.refs++
	return telephony.PlaceCallResult{CallRef: fmt.Sprintf("call-%d", p.refs), Status: "queued"}, nil
}

func (p *fakeProvider) placed() []telephony.PlaceCallRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]telephony.PlaceCallRequest, len(p.calls))
	copy(out, p.calls)
	return out
}

type fixture struct {
	store       *jobs.MemoryStore
	targets     *targets.MemoryRepo
	enrollments *fallback.MemoryRepo
	control     *queuectrl.MemoryControl
	provider    *fakeProvider
	dispatcher  *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       jobs.NewMemoryStore(),
		targets:     targets.NewMemoryRepo(),
		enrollments: fallback.NewMemoryRepo(),
		control:     queuectrl.NewMemoryControl(),
		provider:    &fakeProvider{configured: true},
	}
	resolver := targets.NewResolver(f.targets, "US")
	enroller := fallback.NewEnroller(f.enrollments, f.targets, f.store, "onboarding_drip")
	f.dispatcher = New(f.store, resolver, f.provider, enroller, f.control, Options{WorkerID: "test-worker"})
	return f
}

func (f *fixture) seedJob(t *testing.T, id, bizID string, biz targets.Business) {
	t.Helper()
	biz.ID = bizID
	f.targets.PutBusiness(biz)
	err := f.store.Insert(context.Background(), jobs.VerificationJob{
		ID:         id,
		BusinessID: bizID,
		CreatedAt:  time.Unix(1700000000, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func TestRun_PausedClaimsNothing(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, "j1", "b1", targets.Business{Name: "Acme", Phone: "+12128675309"})
	_ = f.control.SetPaused(context.Background(), true)

	for i := 0; i < 3; i++ {
		sum, err := f.dispatcher.Run(context.Background(), 5)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if !sum.Paused || sum.Claimed != 0 {
			t.Fatalf("expected paused cycle with zero claims, got %+v", sum)
		}
	}
	j, _ := f.store.Get("j1")
	if j.Status != jobs.StatusQueued {
		t.Fatalf("paused dispatch touched a job: %+v", j)
	}
}

func TestRun_PauseFlagReadErrorFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, "j1", "b1", targets.Business{Name: "Acme", Phone: "+12128675309"})
	f.control.Err = errors.New("flag store down")

	if _, err := f.dispatcher.Run(context.Background(), 5); err == nil {
		t.Fatalf("expected error when pause flag is unreadable")
	}
	j, _ := f.store.Get("j1")
	if j.Status != jobs.StatusQueued {
		t.Fatalf("dispatch ran despite unreadable pause flag: %+v", j)
	}
}

func TestRun_SuccessfulDispatchParksJob(t *testing.T) {
	f := newFixture(t)
	f.targets.PutContact(targets.Contact{ID: "c1", BusinessID: "b1", FirstName: "Dana"})
	f.targets.PutBusiness(targets.Business{ID: "b1", Name: "Acme Plumbing", Phone: "+12128675309"})
	err := f.store.Insert(context.Background(), jobs.VerificationJob{ID: "j1", BusinessID: "b1", ContactID: "c1"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	sum, err := f.dispatcher.Run(context.Background(), 5)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Claimed != 1 || sum.Dispatched != 1 || sum.Fallback != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	j, _ := f.store.Get("j1")
	if j.Status != jobs.StatusAwaitingCallback || j.CallRef != "call-1" || j.DispatchedAt == nil {
		t.Fatalf("job not parked: %+v", j)
	}

	placed := f.provider.placed()
	if len(placed) != 1 {
		t.Fatalf("expected one provider call, got %d", len(placed))
	}
	if placed[0].Number != "+12128675309" || placed[0].CustomerName != "Acme Plumbing" {
		t.Fatalf("unexpected call request: %+v", placed[0])
	}
	if !strings.Contains(placed[0].FirstMessage, "Dana") || !strings.Contains(placed[0].FirstMessage, "Acme Plumbing") {
		t.Fatalf("expected personalized opening line, got %q", placed[0].FirstMessage)
	}
	if len(f.enrollments.All()) != 0 {
		t.Fatalf("successful dispatch must not enroll")
	}
}

func TestRun_NoPhoneGoesStraightToFallback(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, "j1", "b1", targets.Business{Name: "Acme", Email: "info@acme.test"})

	sum, err := f.dispatcher.Run(context.Background(), 5)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Fallback != 1 || sum.Dispatched != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	j, _ := f.store.Get("j1")
	if j.Status != jobs.StatusCompletedFallback || j.OutcomeReason != "no usable phone" {
		t.Fatalf("unexpected job: %+v", j)
	}
	rows := f.enrollments.ByJobID("j1")
	if len(rows) != 1 {
		t.Fatalf("expected exactly one enrollment, got %d", len(rows))
	}
	if rows[0].Email == nil || *rows[0].Email != "info@acme.test" {
		t.Fatalf("expected waterfall email on enrollment: %+v", rows[0])
	}
	if len(f.provider.placed()) != 0 {
		t.Fatalf("provider must not be called without a phone")
	}
}

func TestRun_UnconfiguredProviderFallsBack(t *testing.T) {
	f := newFixture(t)
	f.provider.configured = false
	f.seedJob(t, "j1", "b1", targets.Business{Name: "Acme", Phone: "+12128675309"})

	if _, err := f.dispatcher.Run(context.Background(), 5); err != nil {
		t.Fatalf("run: %v", err)
	}
	j, _ := f.store.Get("j1")
	if j.Status != jobs.StatusCompletedFallback || j.OutcomeReason != "provider unavailable" {
		t.Fatalf("unexpected job: %+v", j)
	}
}

func TestRun_ProviderErrorPreservedAsReason(t *testing.T) {
	f := newFixture(t)
	f.provider.placeErr = errors.New("telephony: vapi call status 429: rate limited")
	f.seedJob(t, "j1", "b1", targets.Business{Name: "Acme", Phone: "+12128675309"})

	sum, err := f.dispatcher.Run(context.Background(), 5)
	if err != nil {
		t.Fatalf("one job's failure must not fail the cycle: %v", err)
	}
	if sum.Fallback != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	j, _ := f.store.Get("j1")
	if !strings.Contains(j.OutcomeReason, "429") {
		t.Fatalf("expected provider error text preserved, got %q", j.OutcomeReason)
	}
}

func TestRun_OneJobFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	// j1 has no phone; j2 is dialable.
	f.seedJob(t, "j1", "b1", targets.Business{Name: "NoPhone Inc"})
	f.targets.PutBusiness(targets.Business{ID: "b2", Name: "Acme", Phone: "+12128675309"})
	err := f.store.Insert(context.Background(), jobs.VerificationJob{
		ID: "j2", BusinessID: "b2", CreatedAt: time.Unix(1700000001, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	sum, err := f.dispatcher.Run(context.Background(), 5)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Claimed != 2 || sum.Dispatched != 1 || sum.Fallback != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	j2, _ := f.store.Get("j2")
	if j2.Status != jobs.StatusAwaitingCallback {
		t.Fatalf("second job not dispatched: %+v", j2)
	}
}

func TestRun_ConcurrentCyclesClaimDisjointJobs(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		f.targets.PutBusiness(targets.Business{ID: fmt.Sprintf("b%d", i), Name: "Acme", Phone: "+12128675309"})
		err := f.store.Insert(context.Background(), jobs.VerificationJob{
			ID:         fmt.Sprintf("j%d", i),
			BusinessID: fmt.Sprintf("b%d", i),
			CreatedAt:  time.Unix(1700000000, 0).UTC().Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	resolver := targets.NewResolver(f.targets, "US")
	enroller := fallback.NewEnroller(f.enrollments, f.targets, f.store, "onboarding_drip")
	d2 := New(f.store, resolver, f.provider, enroller, f.control, Options{WorkerID: "second-worker"})

	var wg sync.WaitGroup
	sums := make([]CycleSummary, 2)
	for i, d := range []*Dispatcher{f.dispatcher, d2} {
		wg.Add(1)
		go func(i int, d *Dispatcher) {
			defer wg.Done()
			sum, err := d.Run(context.Background(), 5)
			if err != nil {
				t.Errorf("run: %v", err)
				return
			}
			sums[i] = sum
		}(i, d)
	}
	wg.Wait()

	if sums[0].Claimed+sums[1].Claimed != 10 {
		t.Fatalf("expected all 10 jobs claimed across cycles, got %+v", sums)
	}
	for i := 0; i < 10; i++ {
		j, _ := f.store.Get(fmt.Sprintf("j%d", i))
		if j.Status != jobs.StatusAwaitingCallback {
			t.Fatalf("job %d not dispatched exactly once: %+v", i, j)
		}
	}
	if len(f.provider.placed()) != 10 {
		t.Fatalf("expected 10 provider calls, got %d", len(f.provider.placed()))
	}
}

type stubLimiter struct {
	allow    bool
	acquired int
	released int
}

func (l *stubLimiter) Acquire(ctx context.Context) (bool, error) {
	l.acquired++
	return l.allow, nil
}
func (l *stubLimiter) Release(ctx context.Context) error {
	l.released++
	return nil
}

func TestRun_ThrottledCycleClaimsNothing(t *testing.T) {
	f := newFixture(t)
	f.seedJob(t, "j1", "b1", targets.Business{Name: "Acme", Phone: "+12128675309"})

	lim := &stubLimiter{allow: false}
	resolver := targets.NewResolver(f.targets, "US")
	enroller := fallback.NewEnroller(f.enrollments, f.targets, f.store, "onboarding_drip")
	d := New(f.store, resolver, f.provider, enroller, f.control, Options{WorkerID: "w", Limiter: lim})

	sum, err := d.Run(context.Background(), 5)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !sum.Throttled || sum.Claimed != 0 {
		t.Fatalf("expected throttled cycle, got %+v", sum)
	}
	if lim.released != 0 {
		t.Fatalf("unacquired slot must not be released")
	}
}

func TestRun_BoundedWorkerPoolProcessesAllJobs(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 6; i++ {
		f.targets.PutBusiness(targets.Business{ID: fmt.Sprintf("b%d", i), Name: "Acme", Phone: "+12128675309"})
		err := f.store.Insert(context.Background(), jobs.VerificationJob{ID: fmt.Sprintf("j%d", i), BusinessID: fmt.Sprintf("b%d", i)})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	resolver := targets.NewResolver(f.targets, "US")
	enroller := fallback.NewEnroller(f.enrollments, f.targets, f.store, "onboarding_drip")
	d := New(f.store, resolver, f.provider, enroller, f.control, Options{WorkerID: "w", Workers: 3})

	sum, err := d.Run(context.Background(), 6)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Claimed != 6 || sum.Dispatched != 6 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}
