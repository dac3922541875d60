package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pawsitive-labs/groombook/services/booking-service/internal/model"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/storage"
)

type createCustomerRequest struct {
	BusinessID string `json:"business_id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	SMSConsent bool   `json:"sms_consent"`
}

type updateContactRequest struct {
	BusinessID string `json:"business_id"`
	CustomerID string `json:"customer_id"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
}

type createDogRequest struct {
	BusinessID    string `json:"business_id"`
	CustomerID    string `json:"customer_id"`
	Name          string `json:"name"`
	Breed         string `json:"breed"`
	GroomingNotes string `json:"grooming_notes"`
}

func (h *BookingHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.BusinessID == "" || req.Name == "" || req.Phone == "" {
		http.Error(w, "business_id, name, and phone are required", http.StatusBadRequest)
		return
	}

	id, err := h.customers.CreateCustomer(r.Context(), &model.Customer{
		BusinessID: req.BusinessID,
		Name:       req.Name,
		Phone:      req.Phone,
		Email:      strings.TrimSpace(req.Email),
		SMSConsent: req.SMSConsent,
	})
	if err != nil {
		http.Error(w, "failed to create customer", http.StatusInternalServerError)
		return
	}

	writeID(w, http.StatusCreated, "customer_id", id)
}

// UpdateContact corrects contact details; every other customer field is
// immutable once created.
func (h *BookingHandler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req updateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.BusinessID == "" || req.CustomerID == "" || req.Phone == "" {
		http.Error(w, "business_id, customer_id, and phone are required", http.StatusBadRequest)
		return
	}

	err := h.customers.UpdateContact(r.Context(), req.BusinessID, req.CustomerID, req.Phone, strings.TrimSpace(req.Email))
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "customer not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update contact", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) CreateDog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createDogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BusinessID = strings.TrimSpace(req.BusinessID)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.Name = strings.TrimSpace(req.Name)
	if req.BusinessID == "" || req.CustomerID == "" || req.Name == "" {
		http.Error(w, "business_id, customer_id, and name are required", http.StatusBadRequest)
		return
	}

	if _, err := h.customers.GetCustomer(r.Context(), req.BusinessID, req.CustomerID); err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "customer not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load customer", http.StatusInternalServerError)
		return
	}

	id, err := h.customers.CreateDog(r.Context(), &model.Dog{
		BusinessID:    req.BusinessID,
		CustomerID:    req.CustomerID,
		Name:          req.Name,
		Breed:         strings.TrimSpace(req.Breed),
		GroomingNotes: strings.TrimSpace(req.GroomingNotes),
	})
	if err != nil {
		http.Error(w, "failed to create dog", http.StatusInternalServerError)
		return
	}

	writeID(w, http.StatusCreated, "dog_id", id)
}

func writeID(w http.ResponseWriter, status int, field, id string) {
	body, err := json.Marshal(map[string]string{field: id})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
