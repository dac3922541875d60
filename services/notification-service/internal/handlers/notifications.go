package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pawsitive-labs/groombook/libs/outbox"
	"github.com/pawsitive-labs/groombook/services/notification-service/internal/dispatch"
	"github.com/pawsitive-labs/groombook/services/notification-service/internal/storage"
)

type NotificationHandler struct {
	dispatcher *dispatch.Dispatcher
	repo       *storage.Repository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
}

func NewNotificationHandler(dispatcher *dispatch.Dispatcher, repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		dispatcher: dispatcher,
		repo:       repo,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

type sendRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type sendResponse struct {
	NotificationID string `json:"notification_id"`
	DedupeToken    string `json:"dedupe_token"`
	Delivered      bool   `json:"delivered"`
}

func (h *NotificationHandler) Confirmation(w http.ResponseWriter, r *http.Request) {
	h.handleSend(w, r, h.dispatcher.SendConfirmation)
}

func (h *NotificationHandler) Reminder(w http.ResponseWriter, r *http.Request) {
	h.handleSend(w, r, h.dispatcher.SendReminder)
}

func (h *NotificationHandler) handleSend(w http.ResponseWriter, r *http.Request, send func(ctx context.Context, appointmentID string) (dispatch.Result, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	result, err := send(r.Context(), req.AppointmentID)
	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, dispatch.ErrConsentRequired):
			http.Error(w, "customer has not consented to sms", http.StatusForbidden)
		case isInvalidState(err):
			http.Error(w, err.Error(), http.StatusConflict)
		case isDeliveryError(err):
			http.Error(w, "sms delivery failed; will be retried", http.StatusBadGateway)
		default:
			h.logger.Error("send failed", "appointment_id", req.AppointmentID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(sendResponse{
		NotificationID: result.NotificationID,
		DedupeToken:    result.DedupeToken,
		Delivered:      result.Delivered,
	})
}

func isInvalidState(err error) bool {
	var invalid dispatch.InvalidStateError
	return errors.As(err, &invalid)
}

func isDeliveryError(err error) bool {
	var delivery dispatch.DeliveryError
	return errors.As(err, &delivery)
}
