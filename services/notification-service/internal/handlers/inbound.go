package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pawsitive-labs/groombook/libs/outbox"
	"github.com/pawsitive-labs/groombook/services/notification-service/internal/correlate"
	"github.com/pawsitive-labs/groombook/services/notification-service/internal/storage"
)

type inboundRequest struct {
	ThreadRef  string `json:"thread_ref"`
	FromPhone  string `json:"from_phone"`
	Body       string `json:"body"`
	ReceivedAt string `json:"received_at"`
}

type inboundResponse struct {
	Outcome string `json:"outcome"`
}

// Inbound handles replies forwarded by the SMS relay. It never returns an
// error status for a reply we cannot use: the relay would retry, and a retry
// cannot make an orphaned or late reply any less so.
func (h *NotificationHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req inboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.FromPhone = strings.TrimSpace(req.FromPhone)
	if req.FromPhone == "" {
		http.Error(w, "from_phone is required", http.StatusBadRequest)
		return
	}
	receivedAt := time.Now().UTC()
	if req.ReceivedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, req.ReceivedAt); err == nil {
			receivedAt = parsed
		}
	}

	ctx := r.Context()
	reply := correlate.Normalize(req.Body)

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	notif, found, err := h.repo.FindByThreadRef(ctx, tx, strings.TrimSpace(req.ThreadRef))
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if !found {
		notif, found, err = h.repo.FindLatestUnanswered(ctx, tx, req.FromPhone)
		if err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
	}

	match := correlate.Match{Found: found}
	if found {
		match.AlreadyAnswered = notif.Response != nil
		appt, err := h.repo.GetAppointment(ctx, notif.AppointmentID)
		switch {
		case err == nil:
			match.AppointmentTerminal = appt.Status == "completed" || appt.Status == "cancelled"
		case errors.Is(err, pgx.ErrNoRows):
			// Cache gap; let the decision ride on the notification alone.
		default:
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
	}

	outcome := correlate.Decide(reply, match)
	switch outcome {
	case correlate.OutcomeNeedsReview:
		if err := h.repo.InsertReview(ctx, notif.BusinessID, req.ThreadRef, req.FromPhone, req.Body, receivedAt); err != nil {
			http.Error(w, "db error", http.StatusInternalServerError)
			return
		}
		h.logger.Info("reply queued for review", "from", req.FromPhone, "thread_ref", req.ThreadRef)
		writeOutcome(w, http.StatusAccepted, outcome)
		return

	case correlate.OutcomeOrphaned:
		h.logger.Info("orphaned reply dropped", "from", req.FromPhone, "thread_ref", req.ThreadRef)
		writeOutcome(w, http.StatusOK, outcome)
		return

	case correlate.OutcomeAlreadyResolved:
		h.logger.Info("reply for already-resolved request dropped",
			"from", req.FromPhone, "notification_id", notif.ID)
		writeOutcome(w, http.StatusOK, outcome)
		return
	}

	// Confirm or cancel: stamp the answer and hand the decision to booking
	// through the outbox, all in one transaction.
	response := "YES"
	if outcome == correlate.OutcomeCancel {
		response = "NO"
	}
	stamped, err := h.repo.StampResponse(ctx, tx, notif.ID, response, receivedAt)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if !stamped {
		// Lost the race to another reply; first answer wins.
		writeOutcome(w, http.StatusOK, correlate.OutcomeAlreadyResolved)
		return
	}
	if err := h.insertReplyResolvedEvent(ctx, tx, notif, string(outcome), receivedAt); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.logger.Info("reply resolved",
		"notification_id", notif.ID,
		"appointment_id", notif.AppointmentID,
		"decision", outcome,
	)
	writeOutcome(w, http.StatusOK, outcome)
}

func (h *NotificationHandler) insertReplyResolvedEvent(ctx context.Context, tx pgx.Tx, notif storage.Notification, decision string, respondedAt time.Time) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id":  notif.AppointmentID,
		"business_id":     notif.BusinessID,
		"decision":        decision,
		"notification_id": notif.ID,
		"responded_at":    respondedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   notif.AppointmentID,
		EventType:     "notify.reply.resolved.v1",
		Payload:       payload,
	})
}

func writeOutcome(w http.ResponseWriter, status int, outcome correlate.Outcome) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(inboundResponse{Outcome: string(outcome)})
}
