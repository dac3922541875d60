// Package correlate maps free-form SMS reply bodies onto the confirmation
// request that prompted them.
package correlate

import "strings"

type Reply string

const (
	ReplyYes          Reply = "YES"
	ReplyNo           Reply = "NO"
	ReplyUnrecognized Reply = "UNRECOGNIZED"
)

// Normalize folds a raw reply body into YES, NO or UNRECOGNIZED. Matching is
// whole-body after trimming; "yes please" is a human's job, not ours.
func Normalize(body string) Reply {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case "y", "yes", "confirm", "ok":
		return ReplyYes
	case "n", "no", "cancel":
		return ReplyNo
	default:
		return ReplyUnrecognized
	}
}

type Outcome string

const (
	OutcomeConfirm         Outcome = "confirm"
	OutcomeCancel          Outcome = "cancel"
	OutcomeAlreadyResolved Outcome = "already_resolved"
	OutcomeOrphaned        Outcome = "orphaned"
	OutcomeNeedsReview     Outcome = "needs_review"
)

// Match describes what the lookup found for an inbound reply: first by
// thread reference, then by the most recent unanswered confirmation request
// for the sender's phone.
type Match struct {
	Found               bool
	AlreadyAnswered     bool
	AppointmentTerminal bool
}

// Decide applies the correlation rules. Unrecognized bodies always go to a
// human, even when nothing matched, so typos never silently vanish.
func Decide(reply Reply, m Match) Outcome {
	if reply == ReplyUnrecognized {
		return OutcomeNeedsReview
	}
	if !m.Found {
		return OutcomeOrphaned
	}
	if m.AlreadyAnswered || m.AppointmentTerminal {
		return OutcomeAlreadyResolved
	}
	if reply == ReplyYes {
		return OutcomeConfirm
	}
	return OutcomeCancel
}
