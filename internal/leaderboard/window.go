package leaderboard

import (
	"time"

	"github.com/playforge/warehouse/internal/ports"
)

// Window computes the current [start, end] for a timeframe. Boundaries are
// aligned to integer multiples of the period elapsed since StartDate, not to
// calendar boundaries; day, week and month periods additionally snap to day
// boundaries. End is inclusive (one second before the next window opens).
func Window(tf ports.Timeframe, now time.Time) (time.Time, time.Time) {
	base := tf.StartDate.UTC()
	now = now.UTC()

	switch tf.PeriodUnit {
	case "minute", "hour":
		unit := time.Minute
		if tf.PeriodUnit == "hour" {
			unit = time.Hour
		}
		period := time.Duration(max(tf.PeriodCount, 1)) * unit
		start := slide(base, period, now)
		return start, start.Add(period - time.Second)
	case "day", "week":
		days := max(tf.PeriodCount, 1)
		if tf.PeriodUnit == "week" {
			days *= 7
		}
		base = dayStart(base)
		period := time.Duration(days) * 24 * time.Hour
		start := slide(base, period, now)
		return start, start.Add(period - time.Second)
	case "month":
		base = dayStart(base)
		count := max(tf.PeriodCount, 1)
		months := monthsBetween(base, now)
		if months < 0 {
			months = 0
		}
		periods := months / count
		start := base.AddDate(0, periods*count, 0)
		return start, start.AddDate(0, count, 0).Add(-time.Second)
	}
	// Unknown units behave like a single open-ended day window.
	start := dayStart(base)
	return start, start.Add(24*time.Hour - time.Second)
}

// slide floor-divides the elapsed time into whole periods.
func slide(base time.Time, period time.Duration, now time.Time) time.Time {
	if now.Before(base) {
		return base
	}
	periods := now.Sub(base) / period
	return base.Add(periods * period)
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// monthsBetween counts whole calendar months from base to now.
func monthsBetween(base, now time.Time) int {
	months := (now.Year()-base.Year())*12 + int(now.Month()) - int(base.Month())
	anchored := base.AddDate(0, months, 0)
	if anchored.After(now) {
		months--
	}
	return months
}
