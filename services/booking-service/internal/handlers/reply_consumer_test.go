package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pawsitive-labs/groombook/services/booking-service/internal/lifecycle"
)

// A reply that lands after staff already cancelled (or the groom finished)
// must be classified as late and dropped, never crash the consumer.
func TestLateReply(t *testing.T) {
	cases := []struct {
		name string
		from lifecycle.Status
		to   lifecycle.Status
	}{
		{"reply after staff cancellation", lifecycle.StatusCancelled, lifecycle.StatusConfirmed},
		{"reply after completion", lifecycle.StatusCompleted, lifecycle.StatusCancelled},
		{"confirm reply mid-groom", lifecycle.StatusInProgress, lifecycle.StatusConfirmed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := lifecycle.Step(tc.from, tc.to)
			if err == nil {
				t.Fatalf("Step(%s, %s) unexpectedly legal", tc.from, tc.to)
			}
			illegal, ok := lateReply(err)
			if !ok {
				t.Fatalf("lateReply did not classify %v", err)
			}
			if illegal.From != tc.from || illegal.To != tc.to {
				t.Fatalf("classified edge %s->%s, want %s->%s", illegal.From, illegal.To, tc.from, tc.to)
			}
		})
	}
}

func TestLateReply_WrappedAndUnrelatedErrors(t *testing.T) {
	_, err := lifecycle.Step(lifecycle.StatusCancelled, lifecycle.StatusConfirmed)
	wrapped := fmt.Errorf("apply transition: %w", err)
	if _, ok := lateReply(wrapped); !ok {
		t.Fatalf("wrapped illegal-transition error not classified: %v", wrapped)
	}

	if _, ok := lateReply(errors.New("connection reset")); ok {
		t.Fatal("unrelated error classified as late reply")
	}
	if _, ok := lateReply(lifecycle.ErrAlreadyApplied); ok {
		t.Fatal("idempotent re-apply classified as late reply")
	}
}
