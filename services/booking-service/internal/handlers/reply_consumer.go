package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/pawsitive-labs/groombook/services/booking-service/internal/lifecycle"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/storage"
)

type replyResolvedPayload struct {
	BusinessID     string `json:"business_id"`
	AppointmentID  string `json:"appointment_id"`
	NotificationID string `json:"notification_id"`
	Decision       string `json:"decision"`
}

// HandleReplyResolved consumes notify.reply.resolved.v1 and applies the
// customer's SMS decision to the appointment. Replies that arrive after the
// appointment moved on (staff confirmed it by phone, groom already started)
// are logged and dropped rather than retried: the state machine, not the
// reply, is authoritative.
func (h *BookingHandler) HandleReplyResolved(ctx context.Context, msg kafka.Message) error {
	var payload replyResolvedPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.Error("invalid reply event payload", "err", err, "topic", msg.Topic)
		return nil
	}
	if payload.BusinessID == "" || payload.AppointmentID == "" {
		h.logger.Error("missing required reply event fields", "topic", msg.Topic)
		return nil
	}

	var target lifecycle.Status
	switch payload.Decision {
	case "confirm":
		target = lifecycle.StatusConfirmed
	case "cancel":
		target = lifecycle.StatusCancelled
	default:
		h.logger.Error("unknown reply decision", "decision", payload.Decision)
		return nil
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, applied, err := h.repo.Transition(ctx, tx, payload.BusinessID, payload.AppointmentID, target, "sms_reply")
	if err != nil {
		if storage.IsNotFound(err) {
			h.logger.Warn("reply for unknown appointment", "appointment_id", payload.AppointmentID)
			return nil
		}
		if illegal, ok := lateReply(err); ok {
			h.logger.Info("reply arrived too late to apply",
				"appointment_id", payload.AppointmentID,
				"from", illegal.From, "to", illegal.To,
			)
			return nil
		}
		return err
	}
	if applied {
		if err := insertAppointmentTransitionedEvent(ctx, tx, h.outboxRepo, appt, "sms_reply"); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	h.logger.Info("sms reply applied",
		"appointment_id", payload.AppointmentID,
		"decision", payload.Decision,
		"applied", applied,
		"notification_id", payload.NotificationID,
	)
	return nil
}

// lateReply classifies a transition failure caused by the appointment having
// moved on before the reply landed. Such replies are dropped, not retried.
func lateReply(err error) (*lifecycle.IllegalTransitionError, bool) {
	var illegal *lifecycle.IllegalTransitionError
	if errors.As(err, &illegal) {
		return illegal, true
	}
	return nil, false
}
