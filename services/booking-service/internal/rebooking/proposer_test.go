package rebooking

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/pawsitive-labs/groombook/libs/outbox"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/model"
)

func TestNextScheduledAt(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	cases := []struct {
		name         string
		paidAt       time.Time
		fulfilledAt  time.Time
		intervalDays int
		want         time.Time
	}{
		{
			name:         "four weeks out, same clock time",
			paidAt:       time.Date(2025, 1, 7, 17, 12, 0, 0, time.UTC), // 11:12 in Chicago
			fulfilledAt:  time.Date(2025, 1, 7, 16, 0, 0, 0, time.UTC),  // 10:00 in Chicago
			intervalDays: 28,
			want:         time.Date(2025, 2, 4, 10, 0, 0, 0, chicago),
		},
		{
			name:         "month rollover",
			paidAt:       time.Date(2025, 1, 30, 20, 0, 0, 0, time.UTC),
			fulfilledAt:  time.Date(2025, 1, 30, 15, 30, 0, 0, time.UTC), // 09:30 in Chicago
			intervalDays: 14,
			want:         time.Date(2025, 2, 13, 9, 30, 0, 0, chicago),
		},
		{
			name: "paid late evening UTC lands on previous local day",
			// 2025-03-02 02:30 UTC is 2025-03-01 20:30 in Chicago.
			paidAt:       time.Date(2025, 3, 2, 2, 30, 0, 0, time.UTC),
			fulfilledAt:  time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC), // 14:00 in Chicago
			intervalDays: 28,
			want:         time.Date(2025, 3, 29, 14, 0, 0, 0, chicago),
		},
		{
			name: "interval crosses spring DST change",
			// 2025-03-09 is the US DST switch; the local clock time must hold.
			paidAt:       time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC),
			fulfilledAt:  time.Date(2025, 3, 1, 16, 0, 0, 0, time.UTC), // 10:00 CST
			intervalDays: 28,
			want:         time.Date(2025, 3, 29, 10, 0, 0, 0, chicago), // 10:00 CDT
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextScheduledAt(tc.paidAt, tc.fulfilledAt, tc.intervalDays, chicago)
			if !got.Equal(tc.want) {
				t.Fatalf("NextScheduledAt = %s, want %s", got, tc.want)
			}
			if got.Location() != chicago {
				t.Fatalf("result location = %v, want %v", got.Location(), chicago)
			}
		})
	}
}

func TestNextScheduledAt_SecondsDropped(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	fulfilled := time.Date(2025, 1, 7, 16, 0, 42, 500, time.UTC)
	got := NextScheduledAt(time.Date(2025, 1, 7, 17, 0, 0, 0, time.UTC), fulfilled, 7, chicago)
	if got.Second() != 0 || got.Nanosecond() != 0 {
		t.Fatalf("expected slot aligned to the minute, got %s", got)
	}
}

type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeStore struct {
	claims  map[string]string
	created []*model.Appointment
}

func (s *fakeStore) Begin(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (s *fakeStore) ClaimRebooking(_ context.Context, _ pgx.Tx, paymentID, appointmentID string) (bool, error) {
	if _, claimed := s.claims[paymentID]; claimed {
		return false, nil
	}
	s.claims[paymentID] = appointmentID
	return true, nil
}

func (s *fakeStore) GetRebooking(_ context.Context, _ pgx.Tx, paymentID string) (string, error) {
	return s.claims[paymentID], nil
}

func (s *fakeStore) CreateAppointment(_ context.Context, _ pgx.Tx, appt *model.Appointment) (string, error) {
	s.created = append(s.created, appt)
	return appt.ID, nil
}

type fakeCustomers struct{}

func (fakeCustomers) GetCustomer(_ context.Context, businessID, customerID string) (model.Customer, error) {
	return model.Customer{
		ID:         customerID,
		BusinessID: businessID,
		Name:       "Maria",
		Phone:      "+15550001111",
		SMSConsent: true,
	}, nil
}

type fakeEvents struct {
	events []outbox.Event
}

func (e *fakeEvents) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	e.events = append(e.events, evt)
	return nil
}

func paymentRecordedMessage(t *testing.T) kafka.Message {
	t.Helper()
	value, err := json.Marshal(map[string]any{
		"payment_id":               "pay-1",
		"business_id":              "biz-1",
		"appointment_id":           "appt-done",
		"customer_id":              "cust-1",
		"dog_id":                   "dog-1",
		"services":                 []string{"full groom"},
		"paid_at":                  "2025-01-07T17:12:00Z",
		"appointment_scheduled_at": "2025-01-07T16:00:00Z",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return kafka.Message{Topic: "billing.payment.recorded.v1", Value: value}
}

// A redelivered payment event must not create a second follow-up: the second
// run re-emits the link with the same appointment id and touches nothing else.
func TestHandlePaymentRecorded_DuplicatePaymentKeepsAppointmentID(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	store := &fakeStore{claims: map[string]string{}}
	events := &fakeEvents{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	p := NewProposer(store, fakeCustomers{}, events, logger, 28, chicago)

	msg := paymentRecordedMessage(t)
	if err := p.HandlePaymentRecorded(context.Background(), msg); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := p.HandlePaymentRecorded(context.Background(), msg); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("created %d appointments, want 1", len(store.created))
	}
	firstID := store.created[0].ID
	if firstID == "" {
		t.Fatal("created appointment has no id")
	}

	var proposedIDs []string
	for _, evt := range events.events {
		if evt.EventType != "booking.rebooking.proposed.v1" {
			continue
		}
		var payload struct {
			PaymentID         string `json:"payment_id"`
			NextAppointmentID string `json:"next_appointment_id"`
		}
		if err := json.Unmarshal(evt.Payload, &payload); err != nil {
			t.Fatalf("unmarshal proposed event: %v", err)
		}
		if payload.PaymentID != "pay-1" {
			t.Fatalf("proposed event payment_id = %q, want %q", payload.PaymentID, "pay-1")
		}
		proposedIDs = append(proposedIDs, payload.NextAppointmentID)
	}
	if len(proposedIDs) != 2 {
		t.Fatalf("got %d proposed events, want 2 (one per delivery)", len(proposedIDs))
	}
	if proposedIDs[0] != firstID || proposedIDs[1] != firstID {
		t.Fatalf("proposed ids %v, want both %q", proposedIDs, firstID)
	}
}

func TestHandlePaymentRecorded_SchedulesFourWeeksOut(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	store := &fakeStore{claims: map[string]string{}}
	events := &fakeEvents{}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	p := NewProposer(store, fakeCustomers{}, events, logger, 28, chicago)

	if err := p.HandlePaymentRecorded(context.Background(), paymentRecordedMessage(t)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("created %d appointments, want 1", len(store.created))
	}
	appt := store.created[0]
	want := time.Date(2025, 2, 4, 10, 0, 0, 0, chicago)
	if !appt.ScheduledAt.Equal(want) {
		t.Fatalf("scheduled_at = %s, want %s", appt.ScheduledAt, want)
	}
	if appt.Status != "pending_confirmation" {
		t.Fatalf("status = %s, want pending_confirmation", appt.Status)
	}
}
