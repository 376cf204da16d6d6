package calendar

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// daysInMonth uses a leap year so Feb 29 can be registered as a recurring day.
var daysInMonth = [13]int{0, 31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// VacationDay describes one recurring vacation registration.
type VacationDay struct {
	Month       time.Month
	Day         int
	Description string
}

// VacationTable stores recurring vacation days keyed by month*100+day.
type VacationTable struct {
	days map[int]string
}

// NewVacationTable returns an empty table: only weekends are non-working.
func NewVacationTable() *VacationTable {
	return &VacationTable{days: map[int]string{}}
}

// AddRecurringDay registers a vacation day that repeats every year.
func (v *VacationTable) AddRecurringDay(description string, day, month int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: month %d", ErrInvalidVacationDay, month)
	}
	if day < 1 || day > daysInMonth[month] {
		return fmt.Errorf("%w: day %d of month %d", ErrInvalidVacationDay, day, month)
	}
	v.days[vacationKey(time.Month(month), day)] = strings.TrimSpace(description)
	return nil
}

// IsVacation reports whether the date's month/day is registered, whatever the year.
func (v *VacationTable) IsVacation(date time.Time) bool {
	if v == nil {
		return false
	}
	_, ok := v.days[vacationKey(date.Month(), date.Day())]
	return ok
}

// Len returns the number of registered recurring days.
func (v *VacationTable) Len() int {
	if v == nil {
		return 0
	}
	return len(v.days)
}

// Days returns the registered days ordered by month then day.
func (v *VacationTable) Days() []VacationDay {
	if v == nil {
		return nil
	}
	keys := make([]int, 0, len(v.days))
	for key := range v.days {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	out := make([]VacationDay, 0, len(keys))
	for _, key := range keys {
		out = append(out, VacationDay{
			Month:       time.Month(key / 100),
			Day:         key % 100,
			Description: v.days[key],
		})
	}
	return out
}

// Clone returns an independent copy of the table.
func (v *VacationTable) Clone() *VacationTable {
	out := NewVacationTable()
	if v == nil {
		return out
	}
	for key, description := range v.days {
		out.days[key] = description
	}
	return out
}

func vacationKey(month time.Month, day int) int {
	return int(month)*100 + day
}

// DefaultVacationTable returns the French public holidays plus the summer shutdown.
func DefaultVacationTable() *VacationTable {
	v := NewVacationTable()
	fixed := []struct {
		description string
		day, month  int
	}{
		{"1st of Jan", 1, 1},
		{"Fête du travail", 1, 5},
		{"8 Mai", 8, 5},
		{"14 Juillet", 14, 7},
		{"15 Aout", 15, 8},
		{"11 Novembre", 11, 11},
		{"Christmas", 25, 12},
		{"Boxing day", 26, 12},
		{"31 décembre", 31, 12},
	}
	for _, h := range fixed {
		_ = v.AddRecurringDay(h.description, h.day, h.month)
	}
	for day := 20; day <= 31; day++ {
		_ = v.AddRecurringDay("End of July", day, 7)
	}
	for day := 1; day <= 14; day++ {
		_ = v.AddRecurringDay("August", day, 8)
	}
	return v
}
