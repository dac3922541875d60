package correlate

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		body string
		want Reply
	}{
		{"YES", ReplyYes},
		{"yes", ReplyYes},
		{"  Yes  ", ReplyYes},
		{"y", ReplyYes},
		{"confirm", ReplyYes},
		{"OK", ReplyYes},
		{"NO", ReplyNo},
		{"no", ReplyNo},
		{"n", ReplyNo},
		{"Cancel", ReplyNo},
		{"", ReplyUnrecognized},
		{"maybe", ReplyUnrecognized},
		{"yes please", ReplyUnrecognized},
		{"noon works", ReplyUnrecognized},
		{"👍", ReplyUnrecognized},
	}
	for _, tc := range cases {
		if got := Normalize(tc.body); got != tc.want {
			t.Errorf("Normalize(%q) = %s, want %s", tc.body, got, tc.want)
		}
	}
}

func TestDecide(t *testing.T) {
	cases := []struct {
		name  string
		reply Reply
		match Match
		want  Outcome
	}{
		{"yes with open request", ReplyYes, Match{Found: true}, OutcomeConfirm},
		{"no with open request", ReplyNo, Match{Found: true}, OutcomeCancel},
		{"yes with no match", ReplyYes, Match{}, OutcomeOrphaned},
		{"no with no match", ReplyNo, Match{}, OutcomeOrphaned},
		{"yes already answered", ReplyYes, Match{Found: true, AlreadyAnswered: true}, OutcomeAlreadyResolved},
		{"no against terminal appointment", ReplyNo, Match{Found: true, AppointmentTerminal: true}, OutcomeAlreadyResolved},
		{"unrecognized goes to review even unmatched", ReplyUnrecognized, Match{}, OutcomeNeedsReview},
		{"unrecognized goes to review when matched", ReplyUnrecognized, Match{Found: true}, OutcomeNeedsReview},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.reply, tc.match); got != tc.want {
				t.Fatalf("Decide(%s, %+v) = %s, want %s", tc.reply, tc.match, got, tc.want)
			}
		})
	}
}
