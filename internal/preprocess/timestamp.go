package preprocess

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/firerisk-cli/internal/table"
)

// EraCutoffYear is the incomplete reporting year excluded from incidents.
const EraCutoffYear = 2024

// Derived timestamp columns.
const (
	ColDayOfWeek = "day_of_week"
	ColMonth     = "month"
	ColYear      = "year"
	ColHour      = "hour"
	ColTimeOfDay = "time_of_day"
)

// Time-of-day buckets.
const (
	Morning   = "morning"
	Afternoon = "afternoon"
	Evening   = "evening"
	Night     = "night"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05-0700",
}

// ParseTimestamp parses a flexible-format timestamp. It accepts time.Time
// cells as-is. Zoned inputs keep their wall-clock fields.
func ParseTimestamp(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// TimeOfDay buckets an hour: [5,12) morning, [12,17) afternoon,
// [17,21) evening, otherwise night.
func TimeOfDay(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 17:
		return Afternoon
	case hour >= 17 && hour < 21:
		return Evening
	default:
		return Night
	}
}

// DayOfWeek returns 0 for Monday through 6 for Sunday.
func DayOfWeek(ts time.Time) int {
	return (int(ts.Weekday()) + 6) % 7
}

// FormatDate renders the calendar date as YYYY-MM-DD.
func FormatDate(ts time.Time) string {
	return ts.Format(time.DateOnly)
}

// FormatClock renders the wall-clock time as HH:MM:SS, with microseconds
// appended only when non-zero.
func FormatClock(ts time.Time) string {
	if us := ts.Nanosecond() / 1000; us != 0 {
		return fmt.Sprintf("%s.%06d", ts.Format(time.TimeOnly), us)
	}
	return ts.Format(time.TimeOnly)
}

// DecomposeTimestamp parses col and writes dateCol, timeCol and the derived
// day_of_week, month, year, hour and time_of_day columns, then drops col.
// Unparseable or null timestamps leave every derived field null.
func DecomposeTimestamp(t *table.Table, col, dateCol, timeCol string) *table.Table {
	n := t.Len()
	var (
		dates = make([]any, n)
		times = make([]any, n)
		dow   = make([]any, n)
		month = make([]any, n)
		year  = make([]any, n)
		hour  = make([]any, n)
		tod   = make([]any, n)
	)
	for i := 0; i < n; i++ {
		ts, ok := ParseTimestamp(t.Value(i, col))
		if !ok {
			continue
		}
		dates[i] = FormatDate(ts)
		times[i] = FormatClock(ts)
		dow[i] = int64(DayOfWeek(ts))
		month[i] = int64(ts.Month())
		year[i] = int64(ts.Year())
		hour[i] = int64(ts.Hour())
		tod[i] = TimeOfDay(ts.Hour())
	}

	for _, c := range []struct {
		name   string
		values []any
	}{
		{dateCol, dates},
		{timeCol, times},
		{ColDayOfWeek, dow},
		{ColMonth, month},
		{ColYear, year},
		{ColHour, hour},
		{ColTimeOfDay, tod},
	} {
		_ = t.SetColumn(c.name, c.values)
	}
	return t.Drop(col)
}

// ParseDates reduces each named column to its calendar date (YYYY-MM-DD).
// Values that do not parse become null.
func ParseDates(t *table.Table, cols ...string) *table.Table {
	for _, c := range cols {
		t.MapColumn(c, func(v any) any {
			ts, ok := ParseTimestamp(v)
			if !ok {
				return nil
			}
			return FormatDate(ts)
		})
	}
	return t
}

// DropEra removes rows whose yearCol equals EraCutoffYear. Rows with a null
// year are kept.
func DropEra(t *table.Table, yearCol string) *table.Table {
	return RemoveOutliers(t, Outlier{Column: yearCol, Value: int64(EraCutoffYear)})
}
