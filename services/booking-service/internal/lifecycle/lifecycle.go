// Package lifecycle holds the appointment state machine: the closed status
// set, the legal-edge table, and the calendar-day helpers used for "is this
// today" decisions. Everything here is pure so it can be tested with
// injected clocks.
package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusConfirmed           Status = "confirmed"
	StatusInProgress          Status = "in_progress"
	StatusCompleted           Status = "completed"
	StatusCancelled           Status = "cancelled"
)

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	switch s {
	case StatusPendingConfirmation, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
}

// Terminal reports whether no further transition is permitted out of s.
func Terminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Stamp names the timestamp side effect of a transition.
type Stamp int

const (
	StampNone Stamp = iota
	StampConfirmedAt
	StampCancelledAt
)

// legalEdges is the full adjacency table. An edge absent here is illegal;
// there is no other status comparison anywhere in the system.
var legalEdges = map[Status]map[Status]Stamp{
	StatusPendingConfirmation: {
		StatusConfirmed: StampConfirmedAt,
		StatusCancelled: StampCancelledAt,
	},
	StatusConfirmed: {
		StatusInProgress: StampNone,
		StatusCancelled:  StampCancelledAt,
	},
	StatusInProgress: {
		StatusCompleted: StampNone,
		StatusCancelled: StampCancelledAt,
	},
}

// ErrAlreadyApplied means the record already is in the requested state.
// Callers treat it as a no-op success; it tolerates duplicate delivery of
// the triggering event.
var ErrAlreadyApplied = errors.New("transition already applied")

// ErrValidation marks malformed input with no side effect.
var ErrValidation = errors.New("validation failed")

// IllegalTransitionError names both ends of a rejected edge.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}

// Step decides a single transition. It returns the stamp to apply, or
// ErrAlreadyApplied for an idempotent re-application, or an
// IllegalTransitionError for any edge outside the table.
func Step(current, target Status) (Stamp, error) {
	if current == target {
		return StampNone, ErrAlreadyApplied
	}
	stamp, ok := legalEdges[current][target]
	if !ok {
		return StampNone, &IllegalTransitionError{From: current, To: target}
	}
	return stamp, nil
}

// ValidateCreate checks booking input. scheduledAt must be a present-or-future
// instant and at least one service must be requested.
func ValidateCreate(scheduledAt, now time.Time, services []string) error {
	if scheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduled_at is required", ErrValidation)
	}
	if scheduledAt.Before(now) {
		return fmt.Errorf("%w: scheduled_at must not be in the past", ErrValidation)
	}
	if len(services) == 0 {
		return fmt.Errorf("%w: at least one service is required", ErrValidation)
	}
	for _, s := range services {
		if s == "" {
			return fmt.Errorf("%w: service labels must not be empty", ErrValidation)
		}
	}
	return nil
}

// IsSameDay reports whether t falls on the same calendar day as ref when both
// are evaluated in loc. Comparing UTC days instead misclassifies appointments
// near midnight for businesses outside UTC.
func IsSameDay(t, ref time.Time, loc *time.Location) bool {
	ty, tm, td := t.In(loc).Date()
	ry, rm, rd := ref.In(loc).Date()
	return ty == ry && tm == rm && td == rd
}

// DayBounds returns the half-open interval [start, end) covering ref's
// calendar day in loc.
func DayBounds(ref time.Time, loc *time.Location) (time.Time, time.Time) {
	y, m, d := ref.In(loc).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
