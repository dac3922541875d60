// Package receipt formats sequential receipt numbers.
package receipt

import (
	"fmt"
	"time"
)

// Number renders PREFIX-YYYYMMDD-NNN. The sequence is zero-padded to three
// digits and widens past 999 instead of wrapping; uniqueness comes from the
// per-business-day counter that hands out seq, the format is just display.
func Number(prefix string, day time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%03d", prefix, day.Format("20060102"), seq)
}
