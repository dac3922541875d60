// Package rebooking proposes the follow-up appointment after a payment is
// recorded. It is the only path besides explicit booking that creates an
// appointment.
package rebooking

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/pawsitive-labs/groombook/libs/outbox"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/lifecycle"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/model"
)

// Store is the slice of the booking repository the proposer needs. The
// rebookings claim keyed by payment id is the idempotency guard.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	ClaimRebooking(ctx context.Context, tx pgx.Tx, paymentID, appointmentID string) (bool, error)
	GetRebooking(ctx context.Context, tx pgx.Tx, paymentID string) (string, error)
	CreateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error)
}

type CustomerStore interface {
	GetCustomer(ctx context.Context, businessID, customerID string) (model.Customer, error)
}

type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

// NextScheduledAt computes the proposed slot: the calendar day is anchored on
// paidAt plus the interval, the clock time carries over from the fulfilled
// appointment, both evaluated in the business's timezone.
func NextScheduledAt(paidAt, fulfilledAt time.Time, intervalDays int, loc *time.Location) time.Time {
	day := paidAt.In(loc).AddDate(0, 0, intervalDays)
	clock := fulfilledAt.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
}

type Proposer struct {
	repo         Store
	customers    CustomerStore
	events       EventWriter
	logger       *slog.Logger
	intervalDays int
	loc          *time.Location
}

func NewProposer(repo Store, customers CustomerStore, events EventWriter, logger *slog.Logger, intervalDays int, loc *time.Location) *Proposer {
	if intervalDays <= 0 {
		intervalDays = 28
	}
	return &Proposer{
		repo:         repo,
		customers:    customers,
		events:       events,
		logger:       logger,
		intervalDays: intervalDays,
		loc:          loc,
	}
}

type paymentRecordedPayload struct {
	PaymentID              string   `json:"payment_id"`
	BusinessID             string   `json:"business_id"`
	AppointmentID          string   `json:"appointment_id"`
	CustomerID             string   `json:"customer_id"`
	DogID                  string   `json:"dog_id"`
	Services               []string `json:"services"`
	PaidAt                 string   `json:"paid_at"`
	AppointmentScheduledAt string   `json:"appointment_scheduled_at"`
}

// HandlePaymentRecorded consumes billing.payment.recorded.v1. The rebookings
// claim keyed by payment id makes the proposal exactly-once: a payment that
// already has a linked follow-up only gets its link event re-emitted, never a
// second appointment.
func (p *Proposer) HandlePaymentRecorded(ctx context.Context, msg kafka.Message) error {
	var payload paymentRecordedPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		p.logger.Error("invalid payment event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if payload.PaymentID == "" || payload.BusinessID == "" || payload.CustomerID == "" || payload.DogID == "" {
		p.logger.Error("missing required payment event fields", "topic", msg.Topic)
		return nil
	}
	paidAt, err := time.Parse(time.RFC3339, payload.PaidAt)
	if err != nil {
		p.logger.Error("invalid paid_at on payment event", "err", err)
		return nil
	}
	fulfilledAt, err := time.Parse(time.RFC3339, payload.AppointmentScheduledAt)
	if err != nil {
		p.logger.Error("invalid appointment_scheduled_at on payment event", "err", err)
		return nil
	}

	tx, err := p.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	nextID := uuid.NewString()
	claimed, err := p.repo.ClaimRebooking(ctx, tx, payload.PaymentID, nextID)
	if err != nil {
		return err
	}
	if !claimed {
		existingID, err := p.repo.GetRebooking(ctx, tx, payload.PaymentID)
		if err != nil {
			return err
		}
		p.logger.Info("rebooking already proposed", "payment_id", payload.PaymentID, "appointment_id", existingID)
		// Re-emit the link so a lost event cannot leave the payment unlinked;
		// billing only stamps next_appointment_id when it is still null.
		if err := p.insertProposedEvent(ctx, tx, payload.PaymentID, existingID, payload.BusinessID); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	customer, err := p.customers.GetCustomer(ctx, payload.BusinessID, payload.CustomerID)
	if err != nil {
		return err
	}

	appt := &model.Appointment{
		ID:          nextID,
		BusinessID:  payload.BusinessID,
		CustomerID:  payload.CustomerID,
		DogID:       payload.DogID,
		ScheduledAt: NextScheduledAt(paidAt, fulfilledAt, p.intervalDays, p.loc),
		Status:      lifecycle.StatusPendingConfirmation,
		Services:    payload.Services,
	}
	if _, err := p.repo.CreateAppointment(ctx, tx, appt); err != nil {
		return err
	}

	createdPayload, err := json.Marshal(map[string]any{
		"appointment_id": nextID,
		"business_id":    appt.BusinessID,
		"customer_id":    appt.CustomerID,
		"dog_id":         appt.DogID,
		"customer_name":  customer.Name,
		"customer_phone": customer.Phone,
		"sms_consent":    customer.SMSConsent,
		"scheduled_at":   appt.ScheduledAt.UTC().Format(time.RFC3339),
		"services":       appt.Services,
		"status":         string(appt.Status),
		"source":         "rebooking",
	})
	if err != nil {
		return err
	}
	if err := p.events.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   nextID,
		EventType:     "booking.appointment.created.v1",
		Payload:       createdPayload,
	}); err != nil {
		return err
	}

	if err := p.insertProposedEvent(ctx, tx, payload.PaymentID, nextID, payload.BusinessID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	p.logger.Info("rebooking proposed",
		"payment_id", payload.PaymentID,
		"appointment_id", nextID,
		"scheduled_at", appt.ScheduledAt.UTC().Format(time.RFC3339),
	)
	return nil
}

func (p *Proposer) insertProposedEvent(ctx context.Context, tx pgx.Tx, paymentID, appointmentID, businessID string) error {
	payload, err := json.Marshal(map[string]any{
		"payment_id":          paymentID,
		"next_appointment_id": appointmentID,
		"business_id":         businessID,
	})
	if err != nil {
		return err
	}
	return p.events.Insert(ctx, tx, outbox.Event{
		AggregateType: "payment",
		AggregateID:   paymentID,
		EventType:     "booking.rebooking.proposed.v1",
		Payload:       payload,
	})
}
