package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pawsitive-labs/groombook/libs/db"
	"github.com/pawsitive-labs/groombook/services/booking-service/internal/model"
)

type CustomerRepository struct {
	pool *db.Pool
}

func NewCustomerRepository(pool *db.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

func (r *CustomerRepository) CreateCustomer(ctx context.Context, c *model.Customer) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO customers (business_id, name, phone, email, sms_consent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, c.BusinessID, c.Name, c.Phone, c.Email, c.SMSConsent).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *CustomerRepository) GetCustomer(ctx context.Context, businessID, customerID string) (model.Customer, error) {
	var c model.Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id, business_id, name, phone, email, sms_consent, created_at
		FROM customers
		WHERE id = $1 AND business_id = $2
	`, customerID, businessID).Scan(&c.ID, &c.BusinessID, &c.Name, &c.Phone, &c.Email, &c.SMSConsent, &c.CreatedAt)
	if err != nil {
		return model.Customer{}, err
	}
	return c, nil
}

// UpdateContact is the only permitted mutation of a customer record.
func (r *CustomerRepository) UpdateContact(ctx context.Context, businessID, customerID, phone, email string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers
		SET phone = $3, email = $4
		WHERE id = $1 AND business_id = $2
	`, customerID, businessID, phone, email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *CustomerRepository) CreateDog(ctx context.Context, d *model.Dog) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO dogs (business_id, customer_id, name, breed, grooming_notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, d.BusinessID, d.CustomerID, d.Name, d.Breed, d.GroomingNotes).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *CustomerRepository) GetDog(ctx context.Context, businessID, dogID string) (model.Dog, error) {
	var d model.Dog
	err := r.pool.QueryRow(ctx, `
		SELECT id, business_id, customer_id, name, breed, grooming_notes, created_at
		FROM dogs
		WHERE id = $1 AND business_id = $2
	`, dogID, businessID).Scan(&d.ID, &d.BusinessID, &d.CustomerID, &d.Name, &d.Breed, &d.GroomingNotes, &d.CreatedAt)
	if err != nil {
		return model.Dog{}, err
	}
	return d, nil
}
