// Package calendar implements working-day predicates and business-day
// arithmetic over a recurring vacation table.
//
// A working day is a weekday that is neither a vacation day nor a bridge
// day. A bridge day is a weekday stranded between a vacation day and a
// weekend; it is non-working by policy and must stay so for numerical parity
// with historical reports.
package calendar

import (
	"math"
	"time"
)

// daysPerYearKeys counts every month/day key, Feb 29 included.
const daysPerYearKeys = 366

// Calendar evaluates dates against one vacation table.
type Calendar struct {
	vacations *VacationTable
}

// Skipped summarizes non-working days crossed while adding business days.
type Skipped struct {
	Weekend   int       `json:"weekend"`
	Vacations int       `json:"vacations"`
	Bridge    int       `json:"bridge"`
	End       time.Time `json:"end"`
}

// Total returns the number of skipped calendar days.
func (s Skipped) Total() int {
	return s.Weekend + s.Vacations + s.Bridge
}

// New builds a calendar over a copy of the table.
func New(table *VacationTable) (*Calendar, error) {
	table = table.Clone()
	if table.Len() >= daysPerYearKeys {
		return nil, ErrNoWorkingDays
	}
	return &Calendar{vacations: table}, nil
}

// MustNew is New for tables known to be valid.
func MustNew(table *VacationTable) *Calendar {
	cal, err := New(table)
	if err != nil {
		panic(err)
	}
	return cal
}

// Vacations returns a copy of the calendar's vacation table.
func (c *Calendar) Vacations() *VacationTable {
	return c.vacations.Clone()
}

// IsWeekend reports whether the date is a Saturday or a Sunday.
func IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsWeekend reports whether the date is a Saturday or a Sunday.
func (c *Calendar) IsWeekend(date time.Time) bool {
	return IsWeekend(date)
}

// IsVacation reports whether the date is a registered vacation day.
func (c *Calendar) IsVacation(date time.Time) bool {
	return c.vacations.IsVacation(date)
}

// IsBridge reports whether the date is a weekday isolated between a vacation day and a weekend.
func (c *Calendar) IsBridge(date time.Time) bool {
	if IsWeekend(date) || c.IsVacation(date) {
		return false
	}
	yesterday := date.AddDate(0, 0, -1)
	tomorrow := date.AddDate(0, 0, 1)
	if c.IsVacation(yesterday) && IsWeekend(tomorrow) {
		return true
	}
	if c.IsVacation(tomorrow) && IsWeekend(yesterday) {
		return true
	}
	return false
}

// IsWorkingDay reports whether the date is neither weekend, vacation nor bridge.
func (c *Calendar) IsWorkingDay(date time.Time) bool {
	return !IsWeekend(date) && !c.IsVacation(date) && !c.IsBridge(date)
}

// NonBusinessDays walks forward n working days from date and counts what it skipped.
func (c *Calendar) NonBusinessDays(date time.Time, n int) Skipped {
	out := Skipped{End: date}
	cursor := date
	for counted := 0; counted < n; {
		cursor = cursor.AddDate(0, 0, 1)
		switch {
		case c.IsWorkingDay(cursor):
			counted++
		case IsWeekend(cursor):
			out.Weekend++
		case c.IsBridge(cursor):
			out.Bridge++
		default:
			out.Vacations++
		}
	}
	out.End = cursor
	return out
}

// AddBusinessDays returns the n-th working day after date.
// The result is date + n + skipped calendar days; n == 0 returns date.
func (c *Calendar) AddBusinessDays(date time.Time, n int) time.Time {
	if n < 0 {
		return c.SubtractBusinessDays(date, -n)
	}
	if n == 0 {
		return date
	}
	skipped := c.NonBusinessDays(date, n)
	return date.AddDate(0, 0, n+skipped.Total())
}

// SubtractBusinessDays walks backward n working days and always lands on a working day.
func (c *Calendar) SubtractBusinessDays(date time.Time, n int) time.Time {
	if n < 0 {
		return c.AddBusinessDays(date, -n)
	}
	cursor := date
	for range n {
		for !c.IsWorkingDay(cursor) {
			cursor = cursor.AddDate(0, 0, -1)
		}
		cursor = cursor.AddDate(0, 0, -1)
	}
	for !c.IsWorkingDay(cursor) {
		cursor = cursor.AddDate(0, 0, -1)
	}
	return cursor
}

// BusinessDaysBetween counts working days in [d1, d2], both ends included.
// The count is negated when d2 is before d1.
func (c *Calendar) BusinessDaysBetween(d1, d2 time.Time) int {
	from, to := dateOf(d1), dateOf(d2)
	if to.Before(from) {
		return -c.BusinessDaysBetween(d2, d1)
	}
	count := 0
	for cursor := from; !cursor.After(to); cursor = cursor.AddDate(0, 0, 1) {
		if c.IsWorkingDay(cursor) {
			count++
		}
	}
	return count
}

// CalendarDaysBetween returns the inclusive calendar-day distance from d1 to d2.
// A same-day span has distance 1; a backward span is negative.
func CalendarDaysBetween(d1, d2 time.Time) int {
	diff := int(math.Ceil(d2.Sub(d1).Hours() / 24))
	if diff >= 0 {
		return diff + 1
	}
	return diff - 1
}

// Weekday returns the first three letters of the English weekday name.
func Weekday(date time.Time) string {
	return date.Weekday().String()[:3]
}

// Date builds a midnight date in UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// dateOf drops the time of day, keeping the location.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
