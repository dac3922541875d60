package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/pawsitive-labs/groombook/services/billing-service/internal/storage"
)

// GatewayWebhook handles card-terminal payment webhooks (no other auth;
// signature verification is the auth). Replays are deduped on the provider
// event id before any money is recorded.
func (h *Handler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.gatewayWebhookSecret) == "" {
		http.Error(w, "payment gateway webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.gatewayWebhookSecret, h.gatewayWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	occurredAt := time.Unix(evt.Created, 0).UTC()
	evtType := string(evt.Type)
	h.logger.Info("payment gateway event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", occurredAt.Format(time.RFC3339),
	)

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	// Idempotency: ignore replayed gateway events. The dedupe row and the
	// payment commit together, so a failure here leaves the event replayable.
	if err := h.repo.InsertProviderEvent(r.Context(), tx, storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("payment gateway event duplicate ignored", "provider_event_id", evt.ID, "event_type", evtType)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	if evtType != "payment_intent.succeeded" {
		if err := tx.Commit(r.Context()); err != nil {
			http.Error(w, "failed to commit", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
		h.logger.Error("gateway: invalid payment intent payload", "err", err)
		http.Error(w, "invalid payment intent payload", http.StatusBadRequest)
		return
	}
	appointmentID := strings.TrimSpace(intent.Metadata["appointment_id"])
	if appointmentID == "" {
		h.logger.Warn("gateway: missing appointment_id metadata on payment intent", "provider_event_id", evt.ID)
		http.Error(w, "missing appointment_id metadata", http.StatusBadRequest)
		return
	}
	var services []string
	if raw := strings.TrimSpace(intent.Metadata["services"]); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				services = append(services, s)
			}
		}
	}
	amountCents := intent.Amount
	if raw := strings.TrimSpace(intent.Metadata["amount_cents"]); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			amountCents = parsed
		}
	}

	result, err := h.recordPaymentTx(r.Context(), tx, appointmentID, amountCents, services, occurredAt)
	if err != nil {
		var invalid invalidStateError
		switch {
		case errors.Is(err, errAppointmentNotFound):
			// Cache may be behind the gateway; ask for a retry.
			http.Error(w, "appointment not yet known", http.StatusConflict)
		case errors.As(err, &invalid):
			http.Error(w, invalid.Error(), http.StatusConflict)
		default:
			h.logger.Error("gateway payment record failed", "appointment_id", appointmentID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"payment_id":     result.PaymentID,
		"receipt_number": result.ReceiptNumber,
	})
}
