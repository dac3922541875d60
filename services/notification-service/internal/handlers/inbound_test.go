package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInbound_RejectsBadRequests(t *testing.T) {
	h := &NotificationHandler{}

	cases := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{", http.StatusBadRequest},
		{"missing from_phone", http.MethodPost, `{"body":"YES"}`, http.StatusBadRequest},
		{"blank from_phone", http.MethodPost, `{"from_phone":"  ","body":"YES"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/webhooks/sms", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.Inbound(rec, req)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestSendEndpoints_RejectBadRequests(t *testing.T) {
	h := &NotificationHandler{}

	for _, endpoint := range []struct {
		name string
		fn   http.HandlerFunc
	}{
		{"confirmation", h.Confirmation},
		{"reminder", h.Reminder},
	} {
		t.Run(endpoint.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/x", nil)
			rec := httptest.NewRecorder()
			endpoint.fn(rec, req)
			if rec.Code != http.StatusMethodNotAllowed {
				t.Fatalf("GET status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
			}

			req = httptest.NewRequest(http.MethodPost, "/api/v1/notifications/x", strings.NewReader(`{"appointment_id":""}`))
			rec = httptest.NewRecorder()
			endpoint.fn(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("blank appointment_id status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
		})
	}
}
