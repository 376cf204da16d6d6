package kpi

import "errors"

// ErrInvalidWidth and related errors describe KPI failures.
var (
	ErrInvalidWidth    = errors.New("invalid averaging width")
	ErrZeroBase        = errors.New("zero base")
	ErrInvalidPolicy   = errors.New("invalid forecast policy")
	ErrInvalidIncoming = errors.New("invalid incoming story count")
	ErrMissingDate     = errors.New("missing reference date")
	ErrNilCalendar     = errors.New("nil calendar")
)
