package receipt

import (
	"testing"
	"time"
)

func TestNumber(t *testing.T) {
	day := time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		prefix string
		seq    int
		want   string
	}{
		{"GG", 1, "GG-20250107-001"},
		{"GG", 42, "GG-20250107-042"},
		{"GG", 999, "GG-20250107-999"},
		{"GG", 1000, "GG-20250107-1000"},
		{"PAWS", 7, "PAWS-20250107-007"},
	}
	for _, tc := range cases {
		if got := Number(tc.prefix, day, tc.seq); got != tc.want {
			t.Errorf("Number(%q, day, %d) = %q, want %q", tc.prefix, tc.seq, got, tc.want)
		}
	}
}

func TestNumber_DayScoping(t *testing.T) {
	a := Number("GG", time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), 1)
	b := Number("GG", time.Date(2025, 1, 8, 0, 0, 0, 0, time.UTC), 1)
	if a == b {
		t.Fatalf("same number across days: %q", a)
	}
	if b != "GG-20250108-001" {
		t.Fatalf("new day should restart at 001, got %q", b)
	}
}
