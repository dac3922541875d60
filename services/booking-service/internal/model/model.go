package model

import (
	"time"

	"github.com/pawsitive-labs/groombook/services/booking-service/internal/lifecycle"
)

type Customer struct {
	ID         string
	BusinessID string
	Name       string
	Phone      string
	Email      string
	SMSConsent bool
	CreatedAt  time.Time
}

// Dog belongs to exactly one customer.
type Dog struct {
	ID            string
	BusinessID    string
	CustomerID    string
	Name          string
	Breed         string
	GroomingNotes string
	CreatedAt     time.Time
}

type Appointment struct {
	ID          string
	BusinessID  string
	CustomerID  string
	DogID       string
	ScheduledAt time.Time
	Status      lifecycle.Status
	Services    []string
	Notes       string
	ConfirmedAt *time.Time
	CancelledAt *time.Time
	CreatedAt   time.Time
}
