package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrDuplicateID       = errors.New("duplicate id")
	ErrInvalidKind       = errors.New("invalid kind")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidComplexity = errors.New("invalid complexity")
	ErrInvalidDoneRatio  = errors.New("invalid done ratio")
	ErrInvalidDate       = errors.New("invalid date")
	ErrChronology        = errors.New("journal entry predates last update")
	ErrParentCycle       = errors.New("parent cycle")
)
