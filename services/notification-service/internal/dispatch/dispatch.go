// Package dispatch decides whether an SMS may go out and drives the relay.
// Rows are written outbox-first: the sms_notifications row lands undelivered
// before the relay is called, so a crash between the two leaves a retryable
// record instead of a silent gap.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pawsitive-labs/groombook/services/notification-service/internal/sms"
	"github.com/pawsitive-labs/groombook/services/notification-service/internal/storage"
)

const (
	TypeConfirmation = "confirmation_request"
	TypeReminder     = "reminder"
)

var (
	ErrNotFound        = errors.New("appointment not known to notification cache")
	ErrConsentRequired = errors.New("customer has not consented to sms")
)

type InvalidStateError struct {
	Status string
	Want   string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("appointment status is %q, want %q", e.Status, e.Want)
}

type DeliveryError struct {
	Err error
}

func (e DeliveryError) Error() string { return "sms delivery failed: " + e.Err.Error() }
func (e DeliveryError) Unwrap() error { return e.Err }

// DedupeToken is stable across resends of the same logical message: attempt
// is the per-appointment notification ordinal, not a retry counter.
func DedupeToken(appointmentID string, attempt int) string {
	return fmt.Sprintf("%s:%d", appointmentID, attempt)
}

func GateConfirmation(a storage.CachedAppointment) error {
	if a.Status != "pending_confirmation" {
		return InvalidStateError{Status: a.Status, Want: "pending_confirmation"}
	}
	if !a.SMSConsent {
		return ErrConsentRequired
	}
	return nil
}

func GateReminder(a storage.CachedAppointment, now time.Time, leadWindow time.Duration) error {
	if a.Status != "confirmed" {
		return InvalidStateError{Status: a.Status, Want: "confirmed"}
	}
	if !a.SMSConsent {
		return ErrConsentRequired
	}
	if !WithinLeadWindow(a.ScheduledAt, now, leadWindow) {
		return InvalidStateError{Status: "outside_reminder_window", Want: "confirmed"}
	}
	return nil
}

// WithinLeadWindow reports whether scheduledAt falls inside (now, now+window].
// Appointments already in the past get no reminder.
func WithinLeadWindow(scheduledAt, now time.Time, window time.Duration) bool {
	return scheduledAt.After(now) && !scheduledAt.After(now.Add(window))
}

type Result struct {
	NotificationID string
	DedupeToken    string
	Delivered      bool
}

type Dispatcher struct {
	repo       *storage.Repository
	relay      sms.Relay
	logger     *slog.Logger
	leadWindow time.Duration
	loc        *time.Location
	now        func() time.Time
}

func NewDispatcher(repo *storage.Repository, relay sms.Relay, logger *slog.Logger, leadWindow time.Duration, loc *time.Location) *Dispatcher {
	if leadWindow <= 0 {
		leadWindow = 24 * time.Hour
	}
	return &Dispatcher{
		repo:       repo,
		relay:      relay,
		logger:     logger,
		leadWindow: leadWindow,
		loc:        loc,
		now:        time.Now,
	}
}

func (d *Dispatcher) SendConfirmation(ctx context.Context, appointmentID string) (Result, error) {
	a, err := d.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if err := GateConfirmation(a); err != nil {
		return Result{}, err
	}
	body := confirmationBody(a, d.loc)
	return d.send(ctx, a, TypeConfirmation, body)
}

func (d *Dispatcher) SendReminder(ctx context.Context, appointmentID string) (Result, error) {
	a, err := d.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	if err := GateReminder(a, d.now(), d.leadWindow); err != nil {
		return Result{}, err
	}
	body := reminderBody(a, d.loc)
	return d.send(ctx, a, TypeReminder, body)
}

func (d *Dispatcher) send(ctx context.Context, a storage.CachedAppointment, notifType, body string) (Result, error) {
	tx, err := d.repo.Begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var notificationID, token string
	pending, found, err := d.repo.LatestUndelivered(ctx, tx, a.AppointmentID, notifType)
	if err != nil {
		return Result{}, err
	}
	if found {
		notificationID = pending.ID
		token = pending.DedupeToken
	} else {
		count, err := d.repo.CountForAppointment(ctx, tx, a.AppointmentID)
		if err != nil {
			return Result{}, err
		}
		token = DedupeToken(a.AppointmentID, count+1)
		notificationID, err = d.repo.InsertNotification(ctx, tx, storage.Notification{
			BusinessID:    a.BusinessID,
			AppointmentID: a.AppointmentID,
			CustomerID:    a.CustomerID,
			Phone:         a.Phone,
			Type:          notifType,
			Body:          body,
			DedupeToken:   token,
		})
		if err != nil {
			return Result{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, err
	}

	delivered, threadRef, err := d.relay.Send(ctx, a.Phone, body, token)
	if err != nil {
		d.logger.Error("sms relay send failed",
			"notification_id", notificationID,
			"appointment_id", a.AppointmentID,
			"err", err,
		)
		return Result{NotificationID: notificationID, DedupeToken: token}, DeliveryError{Err: err}
	}
	if delivered {
		if err := d.repo.MarkDelivered(ctx, notificationID, threadRef); err != nil {
			return Result{}, err
		}
	}

	d.logger.Info("sms dispatched",
		"notification_id", notificationID,
		"appointment_id", a.AppointmentID,
		"type", notifType,
		"delivered", delivered,
	)
	return Result{NotificationID: notificationID, DedupeToken: token, Delivered: delivered}, nil
}

func confirmationBody(a storage.CachedAppointment, loc *time.Location) string {
	return fmt.Sprintf("Hi %s! %s for %s. Reply YES to confirm or NO to cancel.",
		a.CustomerName,
		formatSlot(a.ScheduledAt, loc),
		strings.Join(a.Services, ", "),
	)
}

func reminderBody(a storage.CachedAppointment, loc *time.Location) string {
	return fmt.Sprintf("Hi %s! Reminder: %s for %s. See you then!",
		a.CustomerName,
		formatSlot(a.ScheduledAt, loc),
		strings.Join(a.Services, ", "),
	)
}

func formatSlot(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("Mon Jan 2 at 3:04 PM")
}
