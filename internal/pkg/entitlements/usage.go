package entitlements

import (
	"time"

	"github.com/jaat-ai/ledger/app/models"
)

// ResetPolicy decides where a usage period ends.
type ResetPolicy interface {
	// Next returns the first boundary strictly after now.
	Next(now time.Time) time.Time
}

// CalendarMonthly resets at local midnight on the first day of the next
// calendar month in Location.
type CalendarMonthly struct {
	Location *time.Location
}

func (p CalendarMonthly) Next(now time.Time) time.Time {
	loc := p.Location
	if loc == nil {
		loc = time.Local
	}
	t := now.In(loc)
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
}

// Rolling resets every Period, anchored at the previous boundary.
type Rolling struct {
	Period time.Duration
}

func (p Rolling) Next(now time.Time) time.Time {
	return now.Add(p.Period)
}

// ensureFreshPeriod applies the period reset to u and reports whether u changed.
// Applying it twice at the same instant is a no-op.
func ensureFreshPeriod(u *models.UsageCounters, now time.Time, policy ResetPolicy) bool {
	if u.PeriodResetAt.IsZero() {
		u.PeriodResetAt = policy.Next(now)
		return true
	}
	if now.Before(u.PeriodResetAt) {
		return false
	}
	next := policy.Next(now)
	if r, ok := policy.(Rolling); ok && r.Period > 0 {
		// Keep rolling boundaries on their original cadence.
		steps := now.Sub(u.PeriodResetAt)/r.Period + 1
		next = u.PeriodResetAt.Add(steps * r.Period)
	}
	u.Reset(next)
	return true
}
