package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pawsitive-labs/groombook/libs/db"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/lifecycle"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/model"
)

type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const appointmentColumns = `
	id, business_id, customer_id, dog_id, scheduled_at, status, services,
	notes, confirmed_at, cancelled_at, created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var status string
	var confirmedAt, cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.BusinessID,
		&appt.CustomerID,
		&appt.DogID,
		&appt.ScheduledAt,
		&status,
		&appt.Services,
		&appt.Notes,
		&confirmedAt,
		&cancelledAt,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Status = lifecycle.Status(status)
	appt.ConfirmedAt = confirmedAt
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func (r *BookingRepository) CreateAppointment(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	var id string
	// An empty appt.ID lets the database assign one; the rebooking proposer
	// pre-generates the id so it can claim the payment link first.
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, business_id, customer_id, dog_id, scheduled_at, status, services, notes)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, appt.ID, appt.BusinessID, appt.CustomerID, appt.DogID, appt.ScheduledAt, string(appt.Status), appt.Services, appt.Notes).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BookingRepository) GetAppointmentForUpdate(ctx context.Context, tx pgx.Tx, businessID, appointmentID string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, appointmentID, businessID))
}

// Transition applies one state-machine step under the appointment's row lock,
// so concurrent transitions for the same appointment serialize and only one
// of two conflicting edges can win. Returns applied=false (and no error) when
// the record already is in the requested state. Illegal edges come back as
// *lifecycle.IllegalTransitionError with the row untouched.
func (r *BookingRepository) Transition(ctx context.Context, tx pgx.Tx, businessID, appointmentID string, target lifecycle.Status, actor string) (model.Appointment, bool, error) {
	appt, err := r.GetAppointmentForUpdate(ctx, tx, businessID, appointmentID)
	if err != nil {
		return model.Appointment{}, false, err
	}

	stamp, err := lifecycle.Step(appt.Status, target)
	if errors.Is(err, lifecycle.ErrAlreadyApplied) {
		return appt, false, nil
	}
	if err != nil {
		return model.Appointment{}, false, err
	}

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			confirmed_at = CASE WHEN $4 THEN now() ELSE confirmed_at END,
			cancelled_at = CASE WHEN $5 THEN now() ELSE cancelled_at END
		WHERE id = $1 AND business_id = $2
		RETURNING`+appointmentColumns+`
	`, appointmentID, businessID, string(target),
		stamp == lifecycle.StampConfirmedAt,
		stamp == lifecycle.StampCancelledAt))
	if err != nil {
		return model.Appointment{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointment_transitions (appointment_id, from_status, to_status, actor)
		VALUES ($1, $2, $3, $4)
	`, appointmentID, string(appt.Status), string(target), actor)
	if err != nil {
		return model.Appointment{}, false, err
	}

	return updated, true, nil
}

func (r *BookingRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.listAppointments(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2
	`, businessID, limit)
}

// ListBetween returns appointments scheduled within [start, end), oldest first.
func (r *BookingRepository) ListBetween(ctx context.Context, businessID string, start, end time.Time) ([]model.Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at ASC
	`, businessID, start, end)
}

func (r *BookingRepository) listAppointments(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
