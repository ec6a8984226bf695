package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"verify-orchestrator/internal/config"
)

// VapiProvider places outbound calls through the Vapi REST API.
type VapiProvider struct {
	cfg    config.VapiConfig
	client *http.Client
}

func NewVapiProvider(cfg config.VapiConfig) *VapiProvider {
	return &VapiProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *VapiProvider) Name() string { return "vapi" }

func (p *VapiProvider) Configured() bool {
	return p.cfg.APIKey != "" && p.cfg.AssistantID != "" && p.cfg.PhoneNumberID != ""
}

func (p *VapiProvider) HealthCheck(ctx context.Context) error {
	if !p.Configured() {
		return errors.New("telephony: vapi credentials not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/assistant/"+p.cfg.AssistantID, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telephony: vapi health check status %d", resp.StatusCode)
	}
	return nil
}

// vapiCallRequest is the wire shape for POST /call.
type vapiCallRequest struct {
	AssistantID   string        `json:"assistantId"`
	PhoneNumberID string        `json:"phoneNumberId"`
	Customer      vapiCustomer  `json:"customer"`
	Overrides     vapiOverrides `json:"assistantOverrides"`
}

type vapiCustomer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

type vapiOverrides struct {
	FirstMessage   string            `json:"firstMessage,omitempty"`
	VariableValues map[string]string `json:"variableValues,omitempty"`
}

type vapiCallResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (p *VapiProvider) PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error) {
	if !p.Configured() {
		return PlaceCallResult{}, errors.New("telephony: vapi credentials not configured")
	}
	if strings.TrimSpace(req.Number) == "" {
		return PlaceCallResult{}, errors.New("telephony: number is required")
	}

	body, err := json.Marshal(vapiCallRequest{
		AssistantID:   p.cfg.AssistantID,
		PhoneNumberID: p.cfg.PhoneNumberID,
		Customer:      vapiCustomer{Number: req.Number, Name: req.CustomerName},
		Overrides: vapiOverrides{
			FirstMessage:   req.FirstMessage,
			VariableValues: req.Variables,
		},
	})
	if err != nil {
		return PlaceCallResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return PlaceCallResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return PlaceCallResult{}, fmt.Errorf("telephony: vapi call request failed: %w", err)
	}
	defer resp.Body.Close()

	// Cap the error body; provider errors can be verbose.
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return PlaceCallResult{}, fmt.Errorf("telephony: vapi call status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out vapiCallResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return PlaceCallResult{}, fmt.Errorf("telephony: vapi call response decode failed: %w", err)
	}
	if out.ID == "" {
		return PlaceCallResult{}, errors.New("telephony: vapi call response missing id")
	}
	return PlaceCallResult{CallRef: out.ID, Status: out.Status}, nil
}
