// ABOUTME: Local-calendar day arithmetic for streaks, rollup windows, and reminders
// ABOUTME: Day boundaries follow the user's time zone, never UTC midnight
package calendar

import (
	"time"
)

// DayLayout is the storage format for entry dates
const DayLayout = "2006-01-02"

// Calendar resolves local dates in a fixed location
type Calendar struct {
	Loc *time.Location
}

// New returns a calendar for loc (nil means time.Local)
func New(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.Local
	}
	return Calendar{Loc: loc}
}

// DayKey formats t as the local calendar date
func (c Calendar) DayKey(t time.Time) string {
	return t.In(c.Loc).Format(DayLayout)
}

// StartOfDay returns local midnight for t
func (c Calendar) StartOfDay(t time.Time) time.Time {
	lt := t.In(c.Loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, c.Loc)
}

// ParseDay parses a YYYY-MM-DD key as local midnight
func (c Calendar) ParseDay(key string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, key, c.Loc)
}

// AddDays shifts a day key by n calendar days (DST-safe)
func (c Calendar) AddDays(key string, n int) string {
	d, err := c.ParseDay(key)
	if err != nil {
		return key
	}
	return d.AddDate(0, 0, n).Format(DayLayout)
}

// WeekBounds returns the Monday-start week containing t as [start, end) instants
// plus the inclusive first and last day keys
func (c Calendar) WeekBounds(t time.Time) (start, end time.Time, firstDay, lastDay string) {
	day := c.StartOfDay(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	start = day.AddDate(0, 0, -offset)
	end = start.AddDate(0, 0, 7)
	return start, end, start.Format(DayLayout), start.AddDate(0, 0, 6).Format(DayLayout)
}

// MonthBounds returns the calendar month containing t as [start, end) instants
// plus the inclusive first and last day keys
func (c Calendar) MonthBounds(t time.Time) (start, end time.Time, firstDay, lastDay string) {
	lt := t.In(c.Loc)
	start = time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, c.Loc)
	end = start.AddDate(0, 1, 0)
	return start, end, start.Format(DayLayout), end.AddDate(0, 0, -1).Format(DayLayout)
}

// PreviousDays returns the n day keys before t's local date, most recent first.
// The day containing t is not included.
func (c Calendar) PreviousDays(t time.Time, n int) []string {
	day := c.StartOfDay(t)
	out := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, day.AddDate(0, 0, -i).Format(DayLayout))
	}
	return out
}

// IsYesterday reports whether prev is the calendar day immediately before day
func (c Calendar) IsYesterday(prev, day string) bool {
	return c.AddDays(day, -1) == prev
}
