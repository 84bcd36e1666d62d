package recurrence

import (
	"testing"
	"time"
)

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestDaysInMonth(t *testing.T) {
	t.Parallel()

	cases := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2026, time.January, 31},
		{2026, time.February, 28},
		{2024, time.February, 29},
		{1900, time.February, 28},
		{2000, time.February, 29},
		{2026, time.April, 30},
		{2026, time.September, 30},
		{2026, time.December, 31},
	}

	for _, tc := range cases {
		if got := DaysInMonth(tc.year, tc.month); got != tc.want {
			t.Fatalf("DaysInMonth(%d, %s): expected %d, got %d", tc.year, tc.month, tc.want, got)
		}
	}
}

func TestClampDayOfMonth(t *testing.T) {
	t.Parallel()

	if got := ClampDayOfMonth(2026, time.February, 31); got != 28 {
		t.Fatalf("expected 28, got %d", got)
	}
	if got := ClampDayOfMonth(2024, time.February, 30); got != 29 {
		t.Fatalf("expected 29, got %d", got)
	}
	if got := ClampDayOfMonth(2026, time.March, 15); got != 15 {
		t.Fatalf("expected 15, got %d", got)
	}
}

func TestAddMonthsPreservingDay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		from     time.Time
		months   int
		explicit int
		want     time.Time
	}{
		{"source day clamps into february", date(2026, time.January, 31), 1, 0, date(2026, time.February, 28)},
		{"explicit day clamps", date(2026, time.January, 31), 1, 31, date(2026, time.February, 28)},
		{"explicit day restored after short month", date(2026, time.February, 28), 1, 31, date(2026, time.March, 31)},
		{"last day sentinel", date(2026, time.March, 31), 1, LastDayOfMonth, date(2026, time.April, 30)},
		{"leap february", date(2024, time.January, 30), 1, 0, date(2024, time.February, 29)},
		{"year carry", date(2026, time.December, 15), 1, 0, date(2027, time.January, 15)},
		{"multi year carry", date(2026, time.November, 10), 14, 0, date(2028, time.January, 10)},
		{"negative months", date(2026, time.January, 31), -2, 0, date(2025, time.November, 30)},
		{"zero months applies explicit day", date(2026, time.June, 3), 0, 20, date(2026, time.June, 20)},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := AddMonthsPreservingDay(tc.from, tc.months, tc.explicit)
			if !got.Equal(tc.want) {
				t.Fatalf("expected %s, got %s", tc.want.Format(DateLayout), got.Format(DateLayout))
			}
		})
	}
}

func TestAddYears(t *testing.T) {
	t.Parallel()

	if got := AddYears(date(2024, time.February, 29), 1); !got.Equal(date(2025, time.February, 28)) {
		t.Fatalf("expected 2025-02-28, got %s", got.Format(DateLayout))
	}
	if got := AddYears(date(2024, time.February, 29), 4); !got.Equal(date(2028, time.February, 29)) {
		t.Fatalf("expected 2028-02-29, got %s", got.Format(DateLayout))
	}
	if got := AddYears(date(2026, time.July, 4), 1); !got.Equal(date(2027, time.July, 4)) {
		t.Fatalf("expected 2027-07-04, got %s", got.Format(DateLayout))
	}
}

func TestNextMatchingWeekday(t *testing.T) {
	t.Parallel()

	monday := date(2026, time.January, 5)

	t.Run("finds next member strictly after date", func(t *testing.T) {
		t.Parallel()
		got := NextMatchingWeekday(monday, []Weekday{Monday, Wednesday})
		if !got.Equal(date(2026, time.January, 7)) {
			t.Fatalf("expected Wednesday 2026-01-07, got %s", got.Format(DateLayout))
		}
	})

	t.Run("wraps a full week for a single weekday", func(t *testing.T) {
		t.Parallel()
		got := NextMatchingWeekday(monday, []Weekday{Monday})
		if !got.Equal(date(2026, time.January, 12)) {
			t.Fatalf("expected 2026-01-12, got %s", got.Format(DateLayout))
		}
	})

	t.Run("handles sunday as seven", func(t *testing.T) {
		t.Parallel()
		got := NextMatchingWeekday(monday, []Weekday{Sunday})
		if !got.Equal(date(2026, time.January, 11)) {
			t.Fatalf("expected Sunday 2026-01-11, got %s", got.Format(DateLayout))
		}
	})

	t.Run("panics on empty set", func(t *testing.T) {
		t.Parallel()
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic for empty weekday set")
			}
		}()
		NextMatchingWeekday(monday, []Weekday{})
	})
}

func TestISOWeekdayOf(t *testing.T) {
	t.Parallel()

	if got := ISOWeekdayOf(date(2026, time.January, 5)); got != Monday {
		t.Fatalf("expected Monday, got %v", got)
	}
	if got := ISOWeekdayOf(date(2026, time.January, 11)); got != Sunday {
		t.Fatalf("expected Sunday, got %v", got)
	}
	if Sunday.Std() != time.Sunday || Monday.Std() != time.Monday {
		t.Fatal("unexpected conversion to time.Weekday")
	}
}

func TestDateOfKeepsLocalCalendarDay(t *testing.T) {
	t.Parallel()

	tokyo := time.FixedZone("JST", 9*60*60)
	instant := time.Date(2026, time.March, 1, 1, 30, 0, 0, tokyo)

	if got := DateOf(instant); !got.Equal(date(2026, time.March, 1)) {
		t.Fatalf("expected 2026-03-01, got %s", got.Format(DateLayout))
	}
	if got := DateOf(instant.UTC()); !got.Equal(date(2026, time.February, 28)) {
		t.Fatalf("expected 2026-02-28 in UTC, got %s", got.Format(DateLayout))
	}
}
