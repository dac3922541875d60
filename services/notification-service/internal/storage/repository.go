package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pawsitive-labs/groombook/libs/db"
)

type Notification struct {
	ID            string
	BusinessID    string
	AppointmentID string
	CustomerID    string
	Phone         string
	Type          string
	Body          string
	DedupeToken   string
	ThreadRef     string
	Delivered     bool
	SentAt        time.Time
	Response      *string
	RespondedAt   *time.Time
}

// CachedAppointment mirrors booking-service state carried over events. It is
// eventually consistent; gating decisions read it instead of booking tables.
type CachedAppointment struct {
	AppointmentID string
	BusinessID    string
	CustomerID    string
	CustomerName  string
	Phone         string
	SMSConsent    bool
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
		INSERT INTO notify_appointments
			(appointment_id, business_id, customer_id, customer_name, phone, sms_consent, status, scheduled_at, services, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (appointment_id) DO UPDATE SET
			customer_name = EXCLUDED.customer_name,
			phone = EXCLUDED.phone,
			sms_consent = EXCLUDED.sms_consent,
			status = EXCLUDED.status,
			scheduled_at = EXCLUDED.scheduled_at,
			services = EXCLUDED.services,
			updated_at = now()
	`, a.AppointmentID, a.BusinessID, a.CustomerID, a.CustomerName, a.Phone, a.SMSConsent, a.Status, a.ScheduledAt, a.Services)
	return err
}

func (r *Repository) UpdateAppointmentStatus(ctx context.Context, tx pgx.Tx, appointmentID, status string) error {
	_, err := tx.Exec(ctx, `
		UPDATE notify_appointments SET status = $2, updated_at = now()
		WHERE appointment_id = $1
	`, appointmentID, status)
	return err
}

func (r *Repository) GetAppointment(ctx context.Context, appointmentID string) (CachedAppointment, error) {
	var a CachedAppointment
	err := r.pool.QueryRow(ctx, `
		SELECT appointment_id, business_id, customer_id, customer_name, phone, sms_consent, status, scheduled_at, services
		FROM notify_appointments
		WHERE appointment_id = $1
	`, appointmentID).Scan(
		&a.AppointmentID, &a.BusinessID, &a.CustomerID, &a.CustomerName,
		&a.Phone, &a.SMSConsent, &a.Status, &a.ScheduledAt, &a.Services,
	)
	return a, err
}

const notificationColumns = `
	id, business_id, appointment_id, customer_id, phone, type, body,
	dedupe_token, thread_ref, delivered, sent_at, customer_response, responded_at`

func scanNotification(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID, &n.BusinessID, &n.AppointmentID, &n.CustomerID, &n.Phone,
		&n.Type, &n.Body, &n.DedupeToken, &n.ThreadRef, &n.Delivered,
		&n.SentAt, &n.Response, &n.RespondedAt,
	)
	return n, err
}

// LatestUndelivered returns the newest undelivered notification of the given
// type for an appointment, so a retried send reuses its dedupe token instead
// of minting a new one.
func (r *Repository) LatestUndelivered(ctx context.Context, tx pgx.Tx, appointmentID, notifType string) (Notification, bool, error) {
	n, err := scanNotification(tx.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM sms_notifications
		WHERE appointment_id = $1 AND type = $2 AND delivered = false
		ORDER BY sent_at DESC
		LIMIT 1
		FOR UPDATE
	`, appointmentID, notifType))
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, false, nil
	}
	if err != nil {
		return Notification{}, false, err
	}
	return n, true, nil
}

func (r *Repository) CountForAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) (int, error) {
	var count int
	err := tx.QueryRow(ctx, `
		SELECT count(*) FROM sms_notifications WHERE appointment_id = $1
	`, appointmentID).Scan(&count)
	return count, err
}

func (r *Repository) InsertNotification(ctx context.Context, tx pgx.Tx, n Notification) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO sms_notifications
			(business_id, appointment_id, customer_id, phone, type, body, dedupe_token, delivered, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, now())
		RETURNING id
	`, n.BusinessID, n.AppointmentID, n.CustomerID, n.Phone, n.Type, n.Body, n.DedupeToken).Scan(&id)
	return id, err
}

func (r *Repository) MarkDelivered(ctx context.Context, notificationID, threadRef string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sms_notifications
		SET delivered = true, thread_ref = $2, sent_at = now()
		WHERE id = $1
	`, notificationID, threadRef)
	return err
}

func (r *Repository) FindByThreadRef(ctx context.Context, tx pgx.Tx, threadRef string) (Notification, bool, error) {
	if threadRef == "" {
		return Notification{}, false, nil
	}
	n, err := scanNotification(tx.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM sms_notifications
		WHERE thread_ref = $1
		ORDER BY sent_at DESC
		LIMIT 1
		FOR UPDATE
	`, threadRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, false, nil
	}
	if err != nil {
		return Notification{}, false, err
	}
	return n, true, nil
}

// FindLatestUnanswered is the phone fallback when the reply carries no usable
// thread reference.
func (r *Repository) FindLatestUnanswered(ctx context.Context, tx pgx.Tx, phone string) (Notification, bool, error) {
	n, err := scanNotification(tx.QueryRow(ctx, `
		SELECT `+notificationColumns+`
		FROM sms_notifications
		WHERE phone = $1 AND type = 'confirmation_request' AND customer_response IS NULL AND delivered = true
		ORDER BY sent_at DESC
		LIMIT 1
		FOR UPDATE
	`, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, false, nil
	}
	if err != nil {
		return Notification{}, false, err
	}
	return n, true, nil
}

// StampResponse records the customer's answer exactly once; a second reply to
// the same notification leaves the first answer in place.
func (r *Repository) StampResponse(ctx context.Context, tx pgx.Tx, notificationID, response string, respondedAt time.Time) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE sms_notifications
		SET customer_response = $2, responded_at = $3
		WHERE id = $1 AND customer_response IS NULL
	`, notificationID, response, respondedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) InsertReview(ctx context.Context, businessID, threadRef, fromPhone, body string, receivedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO review_queue (business_id, thread_ref, from_phone, body, received_at)
		VALUES ($1, $2, $3, $4, $5)
	`, businessID, threadRef, fromPhone, body, receivedAt)
	return err
}
