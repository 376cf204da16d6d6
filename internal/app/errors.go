package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	ErrInvalidRange    = errors.New("invalid date range")
	ErrEmptyProject    = errors.New("project has no work items")
)
