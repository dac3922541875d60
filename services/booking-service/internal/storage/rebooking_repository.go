package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// ClaimRebooking links a payment to its proposed follow-up appointment.
// The payment_id primary key makes the claim exactly-once: the second return
// is false when another proposal already holds the payment, and the caller
// must not create anything.
func (r *BookingRepository) ClaimRebooking(ctx context.Context, tx pgx.Tx, paymentID, appointmentID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO rebookings (payment_id, appointment_id)
		VALUES ($1, $2)
		ON CONFLICT (payment_id) DO NOTHING
	`, paymentID, appointmentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *BookingRepository) GetRebooking(ctx context.Context, tx pgx.Tx, paymentID string) (string, error) {
	var appointmentID string
	err := tx.QueryRow(ctx, `
		SELECT appointment_id
		FROM rebookings
		WHERE payment_id = $1
	`, paymentID).Scan(&appointmentID)
	if err != nil {
		return "", err
	}
	return appointmentID, nil
}
