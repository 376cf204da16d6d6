package calendar

import "errors"

// ErrInvalidVacationDay and related errors describe calendar configuration and timeline failures.
var (
	ErrInvalidVacationDay = errors.New("invalid vacation day")
	ErrNoWorkingDays      = errors.New("vacation table leaves no working day")
	ErrInvalidTimeline    = errors.New("invalid timeline bounds")
	ErrTimelineTooLarge   = errors.New("timeline too large")
)
