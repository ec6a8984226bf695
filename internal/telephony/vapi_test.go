package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"verify-orchestrator/internal/config"
)

func vapiTestConfig(baseURL string) config.VapiConfig {
	return config.VapiConfig{
		APIKey:        "test-key",
		AssistantID:   "asst-1",
		PhoneNumberID: "line-1",
		BaseURL:       baseURL,
	}
}

func TestVapiPlaceCall_SendsExpectedShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/call" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer auth")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"call-123","status":"queued"}`))
	}))
	defer srv.Close()

	p := NewVapiProvider(vapiTestConfig(srv.URL))
	res, err := p.PlaceCall(context.Background(), PlaceCallRequest{
		Number:       "+12128675309",
		CustomerName: "Acme Plumbing",
		FirstMessage: "Hi, am I speaking with someone at Acme Plumbing?",
		Variables:    map[string]string{"business_name": "Acme Plumbing"},
	})
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	if res.CallRef != "call-123" || res.Status != "queued" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if got["assistantId"] != "asst-1" || got["phoneNumberId"] != "line-1" {
		t.Fatalf("unexpected ids in body: %+v", got)
	}
	cust, _ := got["customer"].(map[string]any)
	if cust["number"] != "+12128675309" || cust["name"] != "Acme Plumbing" {
		t.Fatalf("unexpected customer: %+v", cust)
	}
	ov, _ := got["assistantOverrides"].(map[string]any)
	if ov["firstMessage"] == "" {
		t.Fatalf("expected firstMessage override")
	}
}

func TestVapiPlaceCall_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer srv.Close()

	p := NewVapiProvider(vapiTestConfig(srv.URL))
	if _, err := p.PlaceCall(context.Background(), PlaceCallRequest{Number: "+12128675309"}); err == nil {
		t.Fatalf("expected error for 429 response")
	}
}

func TestVapiPlaceCall_UnconfiguredIsError(t *testing.T) {
	p := NewVapiProvider(config.VapiConfig{BaseURL: "https://api.vapi.ai"})
	if p.Configured() {
		t.Fatalf("expected unconfigured provider")
	}
	if _, err := p.PlaceCall(context.Background(), PlaceCallRequest{Number: "+12128675309"}); err == nil {
		t.Fatalf("expected error for unconfigured provider")
	}
}
