package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/pawsitive-labs/groombook/services/notification-service/internal/storage"
)

func pendingAppointment() storage.CachedAppointment {
	return storage.CachedAppointment{
		AppointmentID: "a1",
		BusinessID:    "biz-1",
		CustomerID:    "c1",
		CustomerName:  "Maria",
		Phone:         "+15550001111",
		SMSConsent:    true,
		Status:        "pending_confirmation",
		ScheduledAt:   time.Date(2025, 1, 7, 16, 0, 0, 0, time.UTC),
		Services:      []string{"full groom"},
	}
}

func TestGateConfirmation(t *testing.T) {
	a := pendingAppointment()
	if err := GateConfirmation(a); err != nil {
		t.Fatalf("expected pending appointment to pass, got %v", err)
	}

	a.SMSConsent = false
	if err := GateConfirmation(a); !errors.Is(err, ErrConsentRequired) {
		t.Fatalf("expected ErrConsentRequired, got %v", err)
	}

	for _, status := range []string{"confirmed", "in_progress", "completed", "cancelled"} {
		a := pendingAppointment()
		a.Status = status
		err := GateConfirmation(a)
		var invalid InvalidStateError
		if !errors.As(err, &invalid) {
			t.Fatalf("status %s: expected InvalidStateError, got %v", status, err)
		}
		if invalid.Status != status {
			t.Fatalf("error carries status %q, want %q", invalid.Status, status)
		}
	}
}

func TestGateReminder(t *testing.T) {
	now := time.Date(2025, 1, 7, 8, 0, 0, 0, time.UTC)
	lead := 24 * time.Hour

	a := pendingAppointment()
	a.Status = "confirmed"
	a.ScheduledAt = now.Add(6 * time.Hour)
	if err := GateReminder(a, now, lead); err != nil {
		t.Fatalf("expected confirmed appointment inside window to pass, got %v", err)
	}

	a.Status = "pending_confirmation"
	var invalid InvalidStateError
	if err := GateReminder(a, now, lead); !errors.As(err, &invalid) {
		t.Fatalf("unconfirmed appointment: expected InvalidStateError, got %v", err)
	}

	a.Status = "confirmed"
	a.ScheduledAt = now.Add(48 * time.Hour)
	if err := GateReminder(a, now, lead); !errors.As(err, &invalid) {
		t.Fatalf("outside window: expected InvalidStateError, got %v", err)
	}

	a.ScheduledAt = now.Add(-time.Hour)
	if err := GateReminder(a, now, lead); !errors.As(err, &invalid) {
		t.Fatalf("past appointment: expected InvalidStateError, got %v", err)
	}
}

func TestWithinLeadWindow(t *testing.T) {
	now := time.Date(2025, 1, 7, 8, 0, 0, 0, time.UTC)
	window := 24 * time.Hour

	cases := []struct {
		name        string
		scheduledAt time.Time
		want        bool
	}{
		{"one hour out", now.Add(time.Hour), true},
		{"exactly at window edge", now.Add(window), true},
		{"just past window edge", now.Add(window + time.Minute), false},
		{"already started", now, false},
		{"in the past", now.Add(-time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WithinLeadWindow(tc.scheduledAt, now, window); got != tc.want {
				t.Fatalf("WithinLeadWindow = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDedupeToken(t *testing.T) {
	if got := DedupeToken("a1", 1); got != "a1:1" {
		t.Fatalf("DedupeToken = %q, want %q", got, "a1:1")
	}
	// Ordinal, not retry counter: a second notification for the same
	// appointment gets the next number regardless of delivery outcomes.
	if got := DedupeToken("a1", 2); got != "a1:2" {
		t.Fatalf("DedupeToken = %q, want %q", got, "a1:2")
	}
}
