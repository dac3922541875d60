package lifecycle

import (
	"errors"
	"testing"
	"time"
)

func TestStep_LegalEdges(t *testing.T) {
	cases := []struct {
		from  Status
		to    Status
		stamp Stamp
	}{
		{StatusPendingConfirmation, StatusConfirmed, StampConfirmedAt},
		{StatusPendingConfirmation, StatusCancelled, StampCancelledAt},
		{StatusConfirmed, StatusInProgress, StampNone},
		{StatusConfirmed, StatusCancelled, StampCancelledAt},
		{StatusInProgress, StatusCompleted, StampNone},
		{StatusInProgress, StatusCancelled, StampCancelledAt},
	}
	for _, c := range cases {
		stamp, err := Step(c.from, c.to)
		if err != nil {
			t.Fatalf("%s -> %s should be legal, got %v", c.from, c.to, err)
		}
		if stamp != c.stamp {
			t.Fatalf("%s -> %s: expected stamp %v, got %v", c.from, c.to, c.stamp, stamp)
		}
	}
}

func TestStep_IllegalEdges(t *testing.T) {
	all := []Status{StatusPendingConfirmation, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled}
	legal := map[Status]map[Status]bool{
		StatusPendingConfirmation: {StatusConfirmed: true, StatusCancelled: true},
		StatusConfirmed:           {StatusInProgress: true, StatusCancelled: true},
		StatusInProgress:          {StatusCompleted: true, StatusCancelled: true},
	}
	for _, from := range all {
		for _, to := range all {
			if from == to || legal[from][to] {
				continue
			}
			_, err := Step(from, to)
			var illegal *IllegalTransitionError
			if !errors.As(err, &illegal) {
				t.Fatalf("%s -> %s should be illegal, got %v", from, to, err)
			}
			if illegal.From != from || illegal.To != to {
				t.Fatalf("error should name both states, got %v", illegal)
			}
		}
	}
}

func TestStep_IdempotentReapply(t *testing.T) {
	for _, s := range []Status{StatusPendingConfirmation, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled} {
		_, err := Step(s, s)
		if !errors.Is(err, ErrAlreadyApplied) {
			t.Fatalf("%s -> %s: expected ErrAlreadyApplied, got %v", s, s, err)
		}
	}
}

func TestStep_TerminalStates(t *testing.T) {
	for _, terminal := range []Status{StatusCompleted, StatusCancelled} {
		if !Terminal(terminal) {
			t.Fatalf("%s should be terminal", terminal)
		}
		for _, to := range []Status{StatusPendingConfirmation, StatusConfirmed, StatusInProgress} {
			if _, err := Step(terminal, to); err == nil {
				t.Fatalf("%s -> %s should fail", terminal, to)
			}
		}
	}
}

func TestValidateCreate(t *testing.T) {
	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

	if err := ValidateCreate(now.Add(24*time.Hour), now, []string{"full groom"}); err != nil {
		t.Fatalf("future appointment should validate: %v", err)
	}
	if err := ValidateCreate(now, now, []string{"bath"}); err != nil {
		t.Fatalf("present instant should validate: %v", err)
	}
	if err := ValidateCreate(now.Add(-time.Minute), now, []string{"bath"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("past appointment should fail validation, got %v", err)
	}
	if err := ValidateCreate(now.Add(time.Hour), now, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty services should fail validation, got %v", err)
	}
	if err := ValidateCreate(now.Add(time.Hour), now, []string{""}); !errors.Is(err, ErrValidation) {
		t.Fatalf("blank service label should fail validation, got %v", err)
	}
}

func TestIsSameDay_BusinessTimezone(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	// 2025-01-08 03:30 UTC is still 2025-01-07 late evening in Chicago.
	instant := time.Date(2025, 1, 8, 3, 30, 0, 0, time.UTC)
	ref := time.Date(2025, 1, 7, 18, 0, 0, 0, chicago)

	if !IsSameDay(instant, ref, chicago) {
		t.Fatal("instant should be the same Chicago day as ref")
	}
	if IsSameDay(instant, ref, time.UTC) {
		t.Fatal("instant is a different UTC day than ref")
	}
}

func TestDayBounds(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	ref := time.Date(2025, 1, 8, 3, 30, 0, 0, time.UTC) // Jan 7 in Chicago
	start, end := DayBounds(ref, chicago)
	if !start.Equal(time.Date(2025, 1, 7, 0, 0, 0, 0, chicago)) {
		t.Fatalf("unexpected day start %s", start)
	}
	if !end.Equal(time.Date(2025, 1, 8, 0, 0, 0, 0, chicago)) {
		t.Fatalf("unexpected day end %s", end)
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("confirmed"); err != nil {
		t.Fatalf("confirmed should parse: %v", err)
	}
	if _, err := ParseStatus("booked"); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown status should fail validation, got %v", err)
	}
}
