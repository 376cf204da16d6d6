// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/evanschultz/kanmetrics/internal/app"
	"github.com/evanschultz/kanmetrics/internal/calendar"
	"github.com/evanschultz/kanmetrics/internal/domain"
	"github.com/evanschultz/kanmetrics/internal/kpi"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ReportService is the app surface exposed by the server transports.
type ReportService interface {
	BuildReport(ctx context.Context, opts app.ReportOptions) (app.Report, error)
	ProgressBars(ctx context.Context, from, to time.Time) ([]app.ProgressBar, error)
	Timeline(from, to time.Time) ([]time.Time, error)
	ExportSnapshot(ctx context.Context) (app.Snapshot, error)
	ImportSnapshot(ctx context.Context, snap app.Snapshot) error
}

// ReportQuery holds raw report parameters as they arrive from a transport.
// Nil numbers keep the defaults handed to Options.
type ReportQuery struct {
	Today           string
	ETAExpected     string
	From            string
	IncomingStories *int
	LeadTimeWindow  *int
	ThroughputWidth *int
}

// Options parses q over defaults.
func (q ReportQuery) Options(defaults app.ReportOptions) (app.ReportOptions, error) {
	opts := defaults
	var err error
	if opts.Today, err = ParseDate("today", q.Today, opts.Today); err != nil {
		return app.ReportOptions{}, err
	}
	if opts.ETAExpected, err = ParseDate("eta", q.ETAExpected, opts.ETAExpected); err != nil {
		return app.ReportOptions{}, err
	}
	if opts.From, err = ParseDate("from", q.From, opts.From); err != nil {
		return app.ReportOptions{}, err
	}
	if q.IncomingStories != nil {
		opts.IncomingStories = *q.IncomingStories
	}
	if q.LeadTimeWindow != nil {
		opts.LeadTimeWindow = *q.LeadTimeWindow
	}
	if q.ThroughputWidth != nil {
		opts.ThroughputWidth = *q.ThroughputWidth
	}
	return opts, nil
}

// ParseDate parses one YYYY-MM-DD parameter, returning fallback when raw is blank.
func ParseDate(name, raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	date, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD: %q", ErrInvalidRequest, name, raw)
	}
	return date, nil
}

// Error codes shared by HTTP envelopes and MCP tool errors.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeInternal       = "internal_error"
)

// ErrorCode classifies one service error for transport responses.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return CodeInternal
	case errors.Is(err, app.ErrNotFound), errors.Is(err, app.ErrEmptyProject):
		return CodeNotFound
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, app.ErrInvalidRange),
		errors.Is(err, app.ErrInvalidSnapshot),
		errors.Is(err, calendar.ErrInvalidTimeline),
		errors.Is(err, calendar.ErrTimelineTooLarge),
		errors.Is(err, kpi.ErrInvalidIncoming),
		errors.Is(err, kpi.ErrInvalidWidth),
		errors.Is(err, domain.ErrChronology):
		return CodeInvalidRequest
	default:
		return CodeInternal
	}
}
