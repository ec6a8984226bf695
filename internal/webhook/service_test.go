package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"verify-orchestrator/internal/fallback"
	"verify-orchestrator/internal/jobs"
	"verify-orchestrator/internal/targets"

	"github.com/gin-gonic/gin"
)

type fixture struct {
	store       *jobs.MemoryStore
	targets     *targets.MemoryRepo
	enrollments *fallback.MemoryRepo
	events      *MemoryEventRepo
	svc         *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       jobs.NewMemoryStore(),
		targets:     targets.NewMemoryRepo(),
		enrollments: fallback.NewMemoryRepo(),
		events:      NewMemoryEventRepo(),
	}
	resolver := targets.NewResolver(f.targets, "US")
	enroller := fallback.NewEnroller(f.enrollments, f.targets, f.store, "onboarding_drip")
	f.svc = NewService(f.events, f.store, f.targets, resolver, enroller, nil)
	return f
}

// seedAwaiting parks a job in awaiting_callback for the given call ref.
func (f *fixture) seedAwaiting(t *testing.T, jobID, callRef string) {
	t.Helper()
	f.targets.PutBusiness(targets.Business{ID: "b1", Name: "Acme Plumbing", Email: "info@acme.test"})
	f.targets.PutContact(targets.Contact{ID: "c1", BusinessID: "b1", FirstName: "Dana", Status: targets.ContactStatusNew})
	err := f.store.Insert(context.Background(), jobs.VerificationJob{
		ID:         jobID,
		BusinessID: "b1",
		ContactID:  "c1",
		Status:     jobs.StatusAwaitingCallback,
		CallRef:    callRef,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func payload(callRef, status, summary string, duration float64) []byte {
	raw, _ := json.Marshal(map[string]any{
		"message": map[string]any{
			"type": "end-of-call-report",
			"call": map[string]any{
				"id":       callRef,
				"status":   status,
				"duration": duration,
				"summary":  summary,
			},
		},
	})
	return raw
}

func TestHandleCallback_PositiveOutcomeFinalizesJob(t *testing.T) {
	f := newFixture(t)
	f.seedAwaiting(t, "j1", "call-1")

	receipt, err := f.svc.HandleCallback(context.Background(),
		payload("call-1", "ended", "very interested, let's schedule a call", 40), "203.0.113.9")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !receipt.Matched || !receipt.Positive || receipt.JobID != "j1" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	j, _ := f.store.Get("j1")
	if j.Status != jobs.StatusCompletedSuccess || j.CompletedAt == nil {
		t.Fatalf("job not finalized: %+v", j)
	}
	if j.CallStatus != "ended" {
		t.Fatalf("call status not recorded: %+v", j)
	}

	biz, _, _ := f.targets.GetBusiness(context.Background(), "b1")
	if biz.Status != targets.BusinessStatusVerified {
		t.Fatalf("business not verified: %+v", biz)
	}
	contact, _, _ := f.targets.GetContact(context.Background(), "c1")
	if contact.Status != targets.ContactStatusQualified {
		t.Fatalf("contact not qualified: %+v", contact)
	}
	if len(f.enrollments.All()) != 0 {
		t.Fatalf("positive outcome must not enroll")
	}
	events := f.events.Events()
	if len(events) != 1 || !events[0].Matched || events[0].CallRef != "call-1" {
		t.Fatalf("unexpected audit trail: %+v", events)
	}
}

func TestHandleCallback_NegativeOutcomeEnrollsFallback(t *testing.T) {
	f := newFixture(t)
	f.seedAwaiting(t, "j1", "call-1")

	receipt, err := f.svc.HandleCallback(context.Background(),
		payload("call-1", "ended", "not interested, please don't call again", 35), "")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !receipt.Matched || receipt.Positive {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}

	j, _ := f.store.Get("j1")
	if j.Status != jobs.StatusCompletedFallback {
		t.Fatalf("job not routed to fallback: %+v", j)
	}
	rows := f.enrollments.ByJobID("j1")
	if len(rows) != 1 {
		t.Fatalf("expected exactly one enrollment, got %d", len(rows))
	}
	if rows[0].Email == nil || *rows[0].Email != "info@acme.test" {
		t.Fatalf("expected waterfall email on enrollment: %+v", rows[0])
	}
	contact, _, _ := f.targets.GetContact(context.Background(), "c1")
	if contact.Status != targets.ContactStatusFollowUp {
		t.Fatalf("contact not advanced: %+v", contact)
	}
}

func TestHandleCallback_DisconnectedCallEnrollsFallback(t *testing.T) {
	f := newFixture(t)
	f.seedAwaiting(t, "j1", "call-1")

	if _, err := f.svc.HandleCallback(context.Background(),
		payload("call-1", "no-answer", "", 0), ""); err != nil {
		t.Fatalf("handle: %v", err)
	}
	j, _ := f.store.Get("j1")
	if j.Status != jobs.StatusCompletedFallback || j.OutcomeReason != "call did not connect" {
		t.Fatalf("unexpected job: %+v", j)
	}
}

func TestHandleCallback_ReplayAfterFinalizationIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.seedAwaiting(t, "j1", "call-1")
	raw := payload("call-1", "ended", "very interested, let's schedule a call", 40)

	if _, err := f.svc.HandleCallback(context.Background(), raw, ""); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	before, _ := f.store.Get("j1")

	receipt, err := f.svc.HandleCallback(context.Background(), raw, "")
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if receipt.Matched {
		t.Fatalf("replay matched a finalized job: %+v", receipt)
	}

	after, _ := f.store.Get("j1")
	if after != before {
		t.Fatalf("replay mutated the job: before %+v after %+v", before, after)
	}
	if len(f.enrollments.All()) != 0 {
		t.Fatalf("replay created enrollments")
	}
	if got := len(f.events.Events()); got != 2 {
		t.Fatalf("expected both deliveries audited, got %d", got)
	}
}

func TestHandleCallback_ReplayAfterFallbackCreatesNoSecondEnrollment(t *testing.T) {
	f := newFixture(t)
	f.seedAwaiting(t, "j1", "call-1")
	raw := payload("call-1", "ended", "wrong number", 5)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.HandleCallback(context.Background(), raw, ""); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if got := len(f.enrollments.ByJobID("j1")); got != 1 {
		t.Fatalf("expected one enrollment across replays, got %d", got)
	}
}

func TestHandleCallback_UnknownCallRefAcknowledged(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.svc.HandleCallback(context.Background(),
		payload("call-404", "ended", "hello", 10), "")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if receipt.Matched {
		t.Fatalf("unexpected match: %+v", receipt)
	}
	events := f.events.Events()
	if len(events) != 1 || events[0].Matched || events[0].CallRef != "call-404" {
		t.Fatalf("unmatched delivery must still be audited: %+v", events)
	}
}

func TestHandleCallback_MalformedPayloadAcknowledgedAndAudited(t *testing.T) {
	f := newFixture(t)

	receipt, err := f.svc.HandleCallback(context.Background(), []byte(`{"event":"ping"}`), "")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if receipt.Matched {
		t.Fatalf("unexpected match: %+v", receipt)
	}
	if got := len(f.events.Events()); got != 1 {
		t.Fatalf("malformed delivery must be audited, got %d events", got)
	}
}

func TestCallbackHandler_HTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	f.seedAwaiting(t, "j1", "call-1")

	r := gin.New()
	r.POST("/webhooks/vapi/calls", CallbackHandler(f.svc))

	body := payload("call-1", "ended", "very interested, signing up today", 55)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/vapi/calls", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var resp struct {
		Ack     bool `json:"ack"`
		Matched bool `json:"matched"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ack || !resp.Matched {
		t.Fatalf("unexpected response: %+v", resp)
	}
	j, _ := f.store.Get("j1")
	if j.Status != jobs.StatusCompletedSuccess {
		t.Fatalf("job not finalized over HTTP: %+v", j)
	}
}

func TestHandleCallback_ConcurrentDuplicateDeliveries(t *testing.T) {
	f := newFixture(t)
	f.seedAwaiting(t, "j1", "call-1")
	raw := payload("call-1", "ended", "busy signal the whole time", 0)

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			_, err := f.svc.HandleCallback(context.Background(), raw, "")
			done <- err
		}()
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Fatalf("delivery: %v", err)
		}
	}
	if got := len(f.enrollments.ByJobID("j1")); got != 1 {
		t.Fatalf("expected one enrollment under concurrent deliveries, got %d", got)
	}
	j, _ := f.store.Get("j1")
	if j.Status != jobs.StatusCompletedFallback {
		t.Fatalf("unexpected job: %+v", j)
	}
}
