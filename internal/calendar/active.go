package calendar

import "sync/atomic"

// active holds the process-wide calendar used by Default.
var active atomic.Pointer[Calendar]

func init() {
	active.Store(MustNew(DefaultVacationTable()))
}

// Default returns the calendar over the active vacation table.
func Default() *Calendar {
	return active.Load()
}

// Install makes table the active vacation table and returns the previous one.
func Install(table *VacationTable) (*VacationTable, error) {
	cal, err := New(table)
	if err != nil {
		return nil, err
	}
	previous := active.Swap(cal)
	return previous.vacations.Clone(), nil
}

// Override installs table until the returned restore func runs.
//
//	restore, err := calendar.Override(calendar.NewVacationTable())
//	if err != nil { ... }
//	t.Cleanup(restore)
func Override(table *VacationTable) (func(), error) {
	cal, err := New(table)
	if err != nil {
		return nil, err
	}
	previous := active.Swap(cal)
	return func() {
		active.Store(previous)
	}, nil
}
