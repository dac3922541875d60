package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/pawsitive-labs/groombook/services/booking-service/internal/lifecycle"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/model"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/storage"
)

type transitionRequest struct {
	BusinessID    string `json:"business_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Actor         string `json:"actor"`
}

type transitionResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Applied       bool   `json:"applied"`
	ConfirmedAt   string `json:"confirmed_at,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
}

func (h *BookingHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	req.Actor = strings.TrimSpace(req.Actor)
	if req.BusinessID == "" || req.AppointmentID == "" {
		http.Error(w, "business_id and appointment_id required", http.StatusBadRequest)
		return
	}
	if req.Actor == "" {
		req.Actor = "staff"
	}

	target, err := lifecycle.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, applied, err := h.repo.Transition(ctx, tx, req.BusinessID, req.AppointmentID, target, req.Actor)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		var illegal *lifecycle.IllegalTransitionError
		if errors.As(err, &illegal) {
			http.Error(w, illegal.Error(), http.StatusConflict)
			return
		}
		http.Error(w, "failed to apply transition", http.StatusInternalServerError)
		return
	}

	if applied {
		if err := insertAppointmentTransitionedEvent(ctx, tx, h.outboxRepo, appt, req.Actor); err != nil {
			http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	writeTransitionResponse(w, appt, applied)
}

func writeTransitionResponse(w http.ResponseWriter, appt model.Appointment, applied bool) {
	resp := transitionResponse{
		AppointmentID: appt.ID,
		Status:        string(appt.Status),
		Applied:       applied,
	}
	if appt.ConfirmedAt != nil {
		resp.ConfirmedAt = appt.ConfirmedAt.UTC().Format(time.RFC3339)
	}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
