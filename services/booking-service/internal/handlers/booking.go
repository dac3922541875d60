package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pawsitive-labs/groombook/libs/outbox"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/lifecycle"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/model"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/storage"
)

type BookingHandler struct {
	repo       *storage.BookingRepository
	customers  *storage.CustomerRepository
	outboxRepo *outbox.Repository
	logger     *slog.Logger
	loc        *time.Location
}

func NewBookingHandler(repo *storage.BookingRepository, customers *storage.CustomerRepository, outboxRepo *outbox.Repository, logger *slog.Logger, loc *time.Location) *BookingHandler {
	return &BookingHandler{
		repo:       repo,
		customers:  customers,
		outboxRepo: outboxRepo,
		logger:     logger,
		loc:        loc,
	}
}

type createAppointmentRequest struct {
	BusinessID  string   `json:"business_id"`
	CustomerID  string   `json:"customer_id"`
	DogID       string   `json:"dog_id"`
	ScheduledAt string   `json:"scheduled_at"`
	Services    []string `json:"services"`
	Notes       string   `json:"notes"`
}

type createAppointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

type appointmentItem struct {
	AppointmentID string   `json:"appointment_id"`
	CustomerID    string   `json:"customer_id"`
	DogID         string   `json:"dog_id"`
	ScheduledAt   string   `json:"scheduled_at"`
	Status        string   `json:"status"`
	Services      []string `json:"services"`
	Notes         string   `json:"notes,omitempty"`
	ConfirmedAt   string   `json:"confirmed_at,omitempty"`
	CancelledAt   string   `json:"cancelled_at,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.DogID = strings.TrimSpace(req.DogID)
	if req.BusinessID == "" || req.CustomerID == "" || req.DogID == "" {
		http.Error(w, "business_id, customer_id, and dog_id are required", http.StatusBadRequest)
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
		return
	}
	if err := lifecycle.ValidateCreate(scheduledAt, time.Now().UTC(), req.Services); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	customer, err := h.customers.GetCustomer(ctx, req.BusinessID, req.CustomerID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "customer not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load customer", http.StatusInternalServerError)
		return
	}
	dog, err := h.customers.GetDog(ctx, req.BusinessID, req.DogID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "dog not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load dog", http.StatusInternalServerError)
		return
	}
	if dog.CustomerID != customer.ID {
		http.Error(w, "dog does not belong to customer", http.StatusBadRequest)
		return
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, req.BusinessID, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if exists && rec.StatusCode > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.ResponsePayload)
			return
		}
	}

	appt := &model.Appointment{
		BusinessID:  req.BusinessID,
		CustomerID:  customer.ID,
		DogID:       dog.ID,
		ScheduledAt: scheduledAt,
		Status:      lifecycle.StatusPendingConfirmation,
		Services:    req.Services,
		Notes:       strings.TrimSpace(req.Notes),
	}

	id, err := h.repo.CreateAppointment(ctx, tx, appt)
	if err != nil {
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	if err := insertAppointmentCreatedEvent(ctx, tx, h.outboxRepo, id, appt, customer, "booking"); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	respBody, err := json.Marshal(createAppointmentResponse{
		AppointmentID: id,
		Status:        string(appt.Status),
	})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, req.BusinessID, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := requestBusinessID(r)
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.repo.ListByBusiness(r.Context(), businessID, limit)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeAppointmentItems(w, appts)
}

// Today lists appointments falling on the reference calendar day in the
// business's timezone. The optional date parameter (YYYY-MM-DD) substitutes
// for "now" so the endpoint is testable with a fixed day.
func (h *BookingHandler) Today(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	businessID := requestBusinessID(r)
	if businessID == "" {
		http.Error(w, "business_id required", http.StatusBadRequest)
		return
	}

	ref := time.Now()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		day, err := time.ParseInLocation("2006-01-02", raw, h.loc)
		if err != nil {
			http.Error(w, "invalid date", http.StatusBadRequest)
			return
		}
		ref = day
	}

	start, end := lifecycle.DayBounds(ref, h.loc)
	appts, err := h.repo.ListBetween(r.Context(), businessID, start, end)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}
	writeAppointmentItems(w, appts)
}

func requestBusinessID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Business-Id")); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("business_id"))
}

func writeAppointmentItems(w http.ResponseWriter, appts []model.Appointment) {
	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		item := appointmentItem{
			AppointmentID: appt.ID,
			CustomerID:    appt.CustomerID,
			DogID:         appt.DogID,
			ScheduledAt:   appt.ScheduledAt.UTC().Format(time.RFC3339),
			Status:        string(appt.Status),
			Services:      appt.Services,
			Notes:         appt.Notes,
			CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
		}
		if appt.ConfirmedAt != nil {
			item.ConfirmedAt = appt.ConfirmedAt.UTC().Format(time.RFC3339)
		}
		if appt.CancelledAt != nil {
			item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}

	body, err := json.Marshal(items)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
