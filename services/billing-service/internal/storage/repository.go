package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pawsitive-labs/groombook/libs/db"
)

type Payment struct {
	ID                string
	BusinessID        string
	AppointmentID     string
	CustomerID        string
	AmountCents       int64
	Services          []string
	ReceiptNumber     string
	PaidAt            time.Time
	NextAppointmentID *string
	CreatedAt         time.Time
}

// CachedAppointment mirrors booking-service state carried over events.
type CachedAppointment struct {
	AppointmentID string
	BusinessID    string
	CustomerID    string
	DogID         string
	Status        string
	ScheduledAt   time.Time
	Services      []string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) UpsertAppointment(ctx context.Context, tx pgx.Tx, a CachedAppointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO billing_appointments
			(appointment_id, business_id, customer_id, dog_id, status, scheduled_at, services, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (appointment_id) DO UPDATE SET
			status = EXCLUDED.status,
			scheduled_at = EXCLUDED.scheduled_at,
			services = EXCLUDED.services,
			updated_at = now()
	`, a.AppointmentID, a.BusinessID, a.CustomerID, a.DogID, a.Status, a.ScheduledAt, a.Services)
	return err
}

func (r *Repository) UpdateAppointmentStatus(ctx context.Context, tx pgx.Tx, appointmentID, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE billing_appointments SET status = $2, updated_at = now()
		WHERE appointment_id = $1
	`, appointmentID, status)
	return err
}

func (r *Repository) GetAppointment(ctx context.Context, appointmentID string) (CachedAppointment, error) {
	var a CachedAppointment
	err := r.pool.QueryRow(ctx, `
		SELECT appointment_id, business_id, customer_id, dog_id, status, scheduled_at, services
		FROM billing_appointments
		WHERE appointment_id = $1
	`, appointmentID).Scan(
		&a.AppointmentID, &a.BusinessID, &a.CustomerID, &a.DogID,
		&a.Status, &a.ScheduledAt, &a.Services,
	)
	return a, err
}

// NextReceiptSeq hands out the next sequence for a business day. The counter
// row is the serialization point: concurrent payments on the same day queue
// on its lock, so two payments can never share a number.
func (r *Repository) NextReceiptSeq(ctx context.Context, tx pgx.Tx, businessID string, day time.Time) (int, error) {
	var seq int
	err := tx.QueryRow(ctx, `
		INSERT INTO receipt_counters (business_id, day, last_seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (business_id, day)
		DO UPDATE SET last_seq = receipt_counters.last_seq + 1
		RETURNING last_seq
	`, businessID, day).Scan(&seq)
	return seq, err
}

func (r *Repository) InsertPayment(ctx context.Context, tx pgx.Tx, p Payment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO payments
			(business_id, appointment_id, customer_id, amount_cents, services, receipt_number, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, p.BusinessID, p.AppointmentID, p.CustomerID, p.AmountCents, p.Services, p.ReceiptNumber, p.PaidAt).Scan(&id)
	return id, err
}

func (r *Repository) ListPayments(ctx context.Context, businessID string, limit int) ([]Payment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, appointment_id, customer_id, amount_cents, services,
		       receipt_number, paid_at, next_appointment_id, created_at
		FROM payments
		WHERE business_id = $1
		ORDER BY paid_at DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(
			&p.ID, &p.BusinessID, &p.AppointmentID, &p.CustomerID, &p.AmountCents,
			&p.Services, &p.ReceiptNumber, &p.PaidAt, &p.NextAppointmentID, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// StampNextAppointment links a payment to its proposed follow-up. The link is
// write-once: replayed link events find the column set and change nothing.
func (r *Repository) StampNextAppointment(ctx context.Context, tx pgx.Tx, paymentID, appointmentID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE payments SET next_appointment_id = $2
		WHERE id = $1 AND next_appointment_id IS NULL
	`, paymentID, appointmentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

var ErrDuplicateProviderEvent = errors.New("duplicate provider event")

func (r *Repository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	var payload any
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		// keep raw JSON error as a hard failure: webhook should be well-formed.
		return err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}
