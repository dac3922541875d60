package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pawsitive-labs/groombook/libs/outbox"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/model"
)

// Appointment events carry customer contact and consent so downstream
// services never read booking-owned tables.
func insertAppointmentCreatedEvent(ctx context.Context, tx pgx.Tx, outboxRepo *outbox.Repository, appointmentID string, appt *model.Appointment, customer model.Customer, source string) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": appointmentID,
		"business_id":    appt.BusinessID,
		"customer_id":    appt.CustomerID,
		"dog_id":         appt.DogID,
		"customer_name":  customer.Name,
		"customer_phone": customer.Phone,
		"sms_consent":    customer.SMSConsent,
		"scheduled_at":   appt.ScheduledAt.UTC().Format(time.RFC3339),
		"services":       appt.Services,
		"status":         string(appt.Status),
		"source":         source,
	})
	if err != nil {
		return err
	}
	return outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appointmentID,
		EventType:     "booking.appointment.created.v1",
		Payload:       payload,
	})
}

func insertAppointmentTransitionedEvent(ctx context.Context, tx pgx.Tx, outboxRepo *outbox.Repository, appt model.Appointment, actor string) error {
	body := map[string]any{
		"appointment_id": appt.ID,
		"business_id":    appt.BusinessID,
		"status":         string(appt.Status),
		"scheduled_at":   appt.ScheduledAt.UTC().Format(time.RFC3339),
		"actor":          actor,
	}
	if appt.ConfirmedAt != nil {
		body["confirmed_at"] = appt.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	if appt.CancelledAt != nil {
		body["cancelled_at"] = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     "booking.appointment.transitioned.v1",
		Payload:       payload,
	})
}
