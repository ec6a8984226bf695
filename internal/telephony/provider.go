package telephony

import "context"

// CallProvider defines the provider-agnostic interface used by the dispatcher.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Keep request/response types provider-agnostic; raw provider payloads
//   belong in the webhook audit log, not here.
type CallProvider interface {
	Name() string

	// Configured reports whether credentials are present. The dispatcher
	// treats an unconfigured provider as a per-job fallback trigger rather
	// than a cycle failure.
	Configured() bool

	HealthCheck(ctx context.Context) error

	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
}

// PlaceCallRequest asks the provider to dial an outbound verification call.
type PlaceCallRequest struct {
	// Number is E.164.
	Number string `json:"number"`

	// CustomerName is the provider-bound display name for the callee.
	CustomerName string `json:"customer_name"`

	// FirstMessage is the personalized opening line for the call agent.
	FirstMessage string `json:"first_message,omitempty"`

	// Variables are template values exposed to the call agent.
	Variables map[string]string `json:"variables,omitempty"`
}

// PlaceCallResult is the provider's synchronous acknowledgment. The call
// outcome arrives later via webhook, keyed by CallRef.
type PlaceCallResult struct {
	CallRef string `json:"call_ref"`
	Status  string `json:"status"`
}
