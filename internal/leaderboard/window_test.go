package leaderboard

import (
	"testing"
	"time"

	"github.com/playforge/warehouse/internal/ports"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestWindowDailyIsDayAligned(t *testing.T) {
	tf := ports.Timeframe{PeriodUnit: "day", PeriodCount: 1, StartDate: date(2024, 1, 1, 0, 0)}
	start, end := Window(tf, date(2024, 1, 5, 10, 0))
	if !start.Equal(date(2024, 1, 5, 0, 0)) {
		t.Fatalf("start: %v", start)
	}
	if !end.Equal(time.Date(2024, 1, 5, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("end: %v", end)
	}
}

func TestWindowSnapsStartDateToDayBoundary(t *testing.T) {
	// A start date with a time component still yields midnight-aligned
	// daily windows.
	tf := ports.Timeframe{PeriodUnit: "day", PeriodCount: 1, StartDate: date(2024, 1, 1, 15, 30)}
	start, _ := Window(tf, date(2024, 1, 5, 10, 0))
	if !start.Equal(date(2024, 1, 5, 0, 0)) {
		t.Fatalf("start: %v", start)
	}
}

func TestWindowMultiDay(t *testing.T) {
	tf := ports.Timeframe{PeriodUnit: "day", PeriodCount: 3, StartDate: date(2024, 1, 1, 0, 0)}
	start, end := Window(tf, date(2024, 1, 5, 10, 0))
	// Windows: Jan 1-3, Jan 4-6.
	if !start.Equal(date(2024, 1, 4, 0, 0)) {
		t.Fatalf("start: %v", start)
	}
	if !end.Equal(time.Date(2024, 1, 6, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("end: %v", end)
	}
}

func TestWindowHourly(t *testing.T) {
	tf := ports.Timeframe{PeriodUnit: "hour", PeriodCount: 2, StartDate: date(2024, 1, 1, 0, 0)}
	start, end := Window(tf, date(2024, 1, 1, 5, 30))
	if !start.Equal(date(2024, 1, 1, 4, 0)) {
		t.Fatalf("start: %v", start)
	}
	if !end.Equal(time.Date(2024, 1, 1, 5, 59, 59, 0, time.UTC)) {
		t.Fatalf("end: %v", end)
	}
}

func TestWindowMinute(t *testing.T) {
	tf := ports.Timeframe{PeriodUnit: "minute", PeriodCount: 10, StartDate: date(2024, 1, 1, 0, 0)}
	start, _ := Window(tf, date(2024, 1, 1, 0, 25))
	if !start.Equal(date(2024, 1, 1, 0, 20)) {
		t.Fatalf("start: %v", start)
	}
}

func TestWindowWeekly(t *testing.T) {
	// Weeks run from StartDate, not from calendar Mondays.
	tf := ports.Timeframe{PeriodUnit: "week", PeriodCount: 1, StartDate: date(2024, 1, 3, 0, 0)}
	start, end := Window(tf, date(2024, 1, 12, 9, 0))
	if !start.Equal(date(2024, 1, 10, 0, 0)) {
		t.Fatalf("start: %v", start)
	}
	if !end.Equal(time.Date(2024, 1, 16, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("end: %v", end)
	}
}

func TestWindowMonthly(t *testing.T) {
	tf := ports.Timeframe{PeriodUnit: "month", PeriodCount: 1, StartDate: date(2024, 1, 15, 0, 0)}
	start, end := Window(tf, date(2024, 3, 20, 12, 0))
	if !start.Equal(date(2024, 3, 15, 0, 0)) {
		t.Fatalf("start: %v", start)
	}
	if !end.Equal(time.Date(2024, 4, 14, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("end: %v", end)
	}
}

func TestWindowBeforeStartDate(t *testing.T) {
	tf := ports.Timeframe{PeriodUnit: "day", PeriodCount: 1, StartDate: date(2024, 6, 1, 0, 0)}
	start, _ := Window(tf, date(2024, 1, 5, 10, 0))
	if !start.Equal(date(2024, 6, 1, 0, 0)) {
		t.Fatalf("a pre-start now should land in the first window, got %v", start)
	}
}

func TestWindowZeroPeriodCountTreatedAsOne(t *testing.T) {
	tf := ports.Timeframe{PeriodUnit: "day", PeriodCount: 0, StartDate: date(2024, 1, 1, 0, 0)}
	start, end := Window(tf, date(2024, 1, 5, 10, 0))
	if !start.Equal(date(2024, 1, 5, 0, 0)) || !end.Equal(time.Date(2024, 1, 5, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("window: [%v, %v]", start, end)
	}
}
