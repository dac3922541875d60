package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGatePayment(t *testing.T) {
	if err := gatePayment("completed"); err != nil {
		t.Fatalf("completed appointment should accept payment, got %v", err)
	}

	// Confirmed is not enough: the groom has not happened yet.
	for _, status := range []string{"pending_confirmation", "confirmed", "in_progress", "cancelled"} {
		err := gatePayment(status)
		var invalid invalidStateError
		if !errors.As(err, &invalid) {
			t.Fatalf("status %s: expected invalidStateError, got %v", status, err)
		}
		if invalid.status != status {
			t.Fatalf("error carries status %q, want %q", invalid.status, status)
		}
	}
}

func TestRecordPayment_RejectsBadRequests(t *testing.T) {
	h := &Handler{}

	cases := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"invalid json", "{", http.StatusBadRequest},
		{"missing appointment_id", `{"amount_cents":4500}`, http.StatusBadRequest},
		{"missing amount", `{"appointment_id":"a1"}`, http.StatusBadRequest},
		{"negative amount", `{"appointment_id":"a1","amount_cents":-1}`, http.StatusBadRequest},
		{"invalid paid_at", `{"appointment_id":"a1","amount_cents":4500,"paid_at":"yesterday"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.RecordPayment(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestGatewayWebhook_RejectsBadRequests(t *testing.T) {
	h := &Handler{gatewayWebhookSecret: "whsec_test"}

	req := httptest.NewRequest(http.MethodGet, "/webhooks/payment-gateway", nil)
	rec := httptest.NewRecorder()
	h.GatewayWebhook(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/payment-gateway", strings.NewReader("{}"))
	rec = httptest.NewRecorder()
	h.GatewayWebhook(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing signature status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/payment-gateway", strings.NewReader("{}"))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")
	rec = httptest.NewRecorder()
	h.GatewayWebhook(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad signature status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGatewayWebhook_UnconfiguredReturns503(t *testing.T) {
	h := &Handler{}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment-gateway", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.GatewayWebhook(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
