// Package calendar holds the pure date arithmetic behind delay detection:
// business-day math, delivery-date projection, and deadline/lateness checks.
// Everything operates on calendar days normalized to midnight UTC; merchant-
// local display is the caller's problem. None of these functions read the
// system clock: "now" is always an argument.
package calendar

import (
	"time"

	"github.com/pkg/errors"

	"shipwatch/internal/domain"
)

// ErrNegativeBusinessDays rejects negative business-day counts. This is a
// caller bug, never a retry case.
var ErrNegativeBusinessDays = errors.New("business day count must not be negative")

// DefaultGraceHours is the buffer past end-of-day before a shipment counts as
// delayed, absorbing normal last-mile timing noise.
const DefaultGraceHours = 8

// highUrgencyWindow bounds the "due soon" band used by ClassifyUrgency.
const highUrgencyWindow = 24 * time.Hour

// DayUTC truncates t to midnight UTC of its calendar day.
func DayUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsBusinessDay reports whether t falls on Monday through Friday. There is no
// holiday calendar.
func IsBusinessDay(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// NextBusinessDay is the identity for Monday through Friday and rolls Saturday
// or Sunday forward to the following Monday. Idempotent.
func NextBusinessDay(t time.Time) time.Time {
	d := DayUTC(t)
	for !IsBusinessDay(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// AddBusinessDays advances t by exactly n business days, skipping weekends.
// A weekend start is first rolled to the next business day and that roll
// consumes no count, so Saturday plus one business day lands on Tuesday.
// n = 0 returns the normalized start.
func AddBusinessDays(t time.Time, n int) (time.Time, error) {
	if n < 0 {
		return time.Time{}, errors.Wrapf(ErrNegativeBusinessDays, "add %d business days", n)
	}
	d := NextBusinessDay(t)
	for i := 0; i < n; i++ {
		d = d.AddDate(0, 0, 1)
		for !IsBusinessDay(d) {
			d = d.AddDate(0, 0, 1)
		}
	}
	return d, nil
}

// DiffBusinessDays counts business days in the half-open interval [a, b),
// walking forward from a. When b precedes a the same count runs in reverse
// and the result is negative. Same calendar day yields 0.
func DiffBusinessDays(a, b time.Time) int {
	from, to := DayUTC(a), DayUTC(b)
	if to.Before(from) {
		return -DiffBusinessDays(b, a)
	}
	n := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			n++
		}
	}
	return n
}

// ExpectedDeliveryDate projects the ETA for a shipment handed to the carrier
// on shipDate with the given transit time in business days.
func ExpectedDeliveryDate(shipDate time.Time, transitBusinessDays int) (time.Time, error) {
	return AddBusinessDays(shipDate, transitBusinessDays)
}

// IsPastDeadline reports whether now is strictly past the delay deadline: the
// end of the expected delivery calendar day (23:59:59.999 UTC) plus a grace
// window. A shipment is on time until end-of-day, then the grace buffer
// swallows last-mile variance before anything gets flagged.
func IsPastDeadline(expected time.Time, grace time.Duration, now time.Time) bool {
	deadline := DayUTC(expected).Add(24*time.Hour - time.Millisecond).Add(grace)
	return now.After(deadline)
}

// DaysDelayed counts whole calendar days strictly after the expected delivery
// date's own day. It stays 0 through the entire expected day regardless of
// time-of-day, and is never negative. Unlike IsPastDeadline there is no grace
// window here: this is a magnitude for urgency and reporting, not the flag
// gate.
func DaysDelayed(expected, now time.Time) int {
	days := int(DayUTC(now).Sub(DayUTC(expected)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ClassifyUrgency maps a shipment's ETA to the tier its poll job is queued
// under. Unknown ETA polls at the lowest urgency; a passed ETA polls first;
// an ETA inside the next 24 hours polls next. TierMedium is intentionally
// unreachable here.
func ClassifyUrgency(eta *time.Time, now time.Time) domain.UrgencyTier {
	if eta == nil {
		return domain.TierLow
	}
	switch {
	case eta.Before(now):
		return domain.TierUrgent
	case eta.Sub(now) <= highUrgencyWindow:
		return domain.TierHigh
	}
	return domain.TierLow
}
