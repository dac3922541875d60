package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pawsitive-labs/groombook/libs/outbox"
	"github.com/pawsitive-labs/groombook/services/billing-service/internal/receipt"
	"github.com/pawsitive-labs/groombook/services/billing-service/internal/storage"
)

type Handler struct {
	repo          *storage.Repository
	outboxRepo    *outbox.Repository
	logger        *slog.Logger
	loc           *time.Location
	receiptPrefix string

	gatewayWebhookSecret    string
	gatewayWebhookTolerance time.Duration
}

func NewHandler(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, loc *time.Location, receiptPrefix, gatewayWebhookSecret string, gatewayWebhookTolerance time.Duration) *Handler {
	if receiptPrefix == "" {
		receiptPrefix = "GG"
	}
	if gatewayWebhookTolerance <= 0 {
		gatewayWebhookTolerance = 5 * time.Minute
	}
	return &Handler{
		repo:                    repo,
		outboxRepo:              outboxRepo,
		logger:                  logger,
		loc:                     loc,
		receiptPrefix:           receiptPrefix,
		gatewayWebhookSecret:    gatewayWebhookSecret,
		gatewayWebhookTolerance: gatewayWebhookTolerance,
	}
}

var errAppointmentNotFound = errors.New("appointment not known to billing cache")

type invalidStateError struct {
	status string
}

func (e invalidStateError) Error() string {
	return fmt.Sprintf("appointment status is %q, want \"completed\"", e.status)
}

// gatePayment admits only fulfilled work: money is recorded against a groom
// that happened, never against a booking that might still cancel.
func gatePayment(status string) error {
	if status != "completed" {
		return invalidStateError{status: status}
	}
	return nil
}

type recordResult struct {
	PaymentID     string
	ReceiptNumber string
}

// recordPayment is the single write path for both the API and the gateway
// webhook. Receipt sequence, payment row and outbox event commit together.
func (h *Handler) recordPayment(ctx context.Context, appointmentID string, amountCents int64, services []string, paidAt time.Time) (recordResult, error) {
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		return recordResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := h.recordPaymentTx(ctx, tx, appointmentID, amountCents, services, paidAt)
	if err != nil {
		return recordResult{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return recordResult{}, err
	}
	return result, nil
}

func (h *Handler) recordPaymentTx(ctx context.Context, tx pgx.Tx, appointmentID string, amountCents int64, services []string, paidAt time.Time) (recordResult, error) {
	appt, err := h.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return recordResult{}, errAppointmentNotFound
		}
		return recordResult{}, err
	}
	if err := gatePayment(appt.Status); err != nil {
		return recordResult{}, err
	}
	if len(services) == 0 {
		services = appt.Services
	}

	localDay := paidAt.In(h.loc)
	day := time.Date(localDay.Year(), localDay.Month(), localDay.Day(), 0, 0, 0, 0, time.UTC)
	seq, err := h.repo.NextReceiptSeq(ctx, tx, appt.BusinessID, day)
	if err != nil {
		return recordResult{}, err
	}
	number := receipt.Number(h.receiptPrefix, day, seq)

	paymentID, err := h.repo.InsertPayment(ctx, tx, storage.Payment{
		BusinessID:    appt.BusinessID,
		AppointmentID: appt.AppointmentID,
		CustomerID:    appt.CustomerID,
		AmountCents:   amountCents,
		Services:      services,
		ReceiptNumber: number,
		PaidAt:        paidAt,
	})
	if err != nil {
		return recordResult{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"payment_id":               paymentID,
		"business_id":              appt.BusinessID,
		"appointment_id":           appt.AppointmentID,
		"customer_id":              appt.CustomerID,
		"dog_id":                   appt.DogID,
		"amount_cents":             amountCents,
		"services":                 services,
		"receipt_number":           number,
		"paid_at":                  paidAt.UTC().Format(time.RFC3339),
		"appointment_scheduled_at": appt.ScheduledAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return recordResult{}, err
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "payment",
		AggregateID:   paymentID,
		EventType:     "billing.payment.recorded.v1",
		Payload:       payload,
	}); err != nil {
		return recordResult{}, err
	}

	h.logger.Info("payment recorded",
		"payment_id", paymentID,
		"appointment_id", appt.AppointmentID,
		"amount_cents", amountCents,
		"receipt_number", number,
	)
	return recordResult{PaymentID: paymentID, ReceiptNumber: number}, nil
}

type recordPaymentRequest struct {
	AppointmentID string   `json:"appointment_id"`
	AmountCents   *int64   `json:"amount_cents"`
	Services      []string `json:"services"`
	PaidAt        string   `json:"paid_at"`
}

type recordPaymentResponse struct {
	PaymentID     string `json:"payment_id"`
	ReceiptNumber string `json:"receipt_number"`
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}
	if req.AmountCents == nil || *req.AmountCents < 0 {
		http.Error(w, "amount_cents must be a non-negative integer", http.StatusBadRequest)
		return
	}
	paidAt := time.Now().UTC()
	if req.PaidAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.PaidAt)
		if err != nil {
			http.Error(w, "invalid paid_at", http.StatusBadRequest)
			return
		}
		paidAt = parsed
	}

	result, err := h.recordPayment(r.Context(), req.AppointmentID, *req.AmountCents, req.Services, paidAt)
	if err != nil {
		var invalid invalidStateError
		switch {
		case errors.Is(err, errAppointmentNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.As(err, &invalid):
			http.Error(w, invalid.Error(), http.StatusConflict)
		default:
			h.logger.Error("record payment failed", "appointment_id", req.AppointmentID, "err", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, recordPaymentResponse{
		PaymentID:     result.PaymentID,
		ReceiptNumber: result.ReceiptNumber,
	})
}

type paymentItem struct {
	PaymentID         string   `json:"payment_id"`
	AppointmentID     string   `json:"appointment_id"`
	CustomerID        string   `json:"customer_id"`
	AmountCents       int64    `json:"amount_cents"`
	Services          []string `json:"services"`
	ReceiptNumber     string   `json:"receipt_number"`
	PaidAt            string   `json:"paid_at"`
	NextAppointmentID string   `json:"next_appointment_id,omitempty"`
}

func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	businessID := strings.TrimSpace(r.Header.Get("X-Business-Id"))
	if businessID == "" {
		businessID = strings.TrimSpace(r.URL.Query().Get("business_id"))
	}
	if businessID == "" {
		http.Error(w, "business_id is required", http.StatusBadRequest)
		return
	}

	payments, err := h.repo.ListPayments(r.Context(), businessID, 0)
	if err != nil {
		h.logger.Error("list payments failed", "business_id", businessID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	items := make([]paymentItem, 0, len(payments))
	for _, p := range payments {
		item := paymentItem{
			PaymentID:     p.ID,
			AppointmentID: p.AppointmentID,
			CustomerID:    p.CustomerID,
			AmountCents:   p.AmountCents,
			Services:      p.Services,
			ReceiptNumber: p.ReceiptNumber,
			PaidAt:        p.PaidAt.UTC().Format(time.RFC3339),
		}
		if p.NextAppointmentID != nil {
			item.NextAppointmentID = *p.NextAppointmentID
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": items})
}

// Payments routes by method; the mux pattern covers both verbs.
func (h *Handler) Payments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.RecordPayment(w, r)
	case http.MethodGet:
		h.ListPayments(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
