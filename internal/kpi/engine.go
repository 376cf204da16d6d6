// Package kpi aggregates work item ledgers into kanban time series,
// lead-time statistics, velocities and completion forecasts.
package kpi

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/evanschultz/kanmetrics/internal/calendar"
)

// Logger is the subset of a structured logger the engine writes to.
// *log.Logger from charmbracelet/log satisfies it.
type Logger interface {
	Debug(msg any, keyvals ...any)
	Warn(msg any, keyvals ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(any, ...any) {}
func (nopLogger) Warn(any, ...any)  {}

// Engine computes KPIs against one calendar and forecast policy.
type Engine struct {
	cal         *calendar.Calendar
	policy      Policy
	logger      Logger
	parallelism int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger routes engine diagnostics to logger.
func WithLogger(logger Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithParallelism bounds the number of timeline dates evaluated concurrently.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// NewEngine validates policy and builds an engine over cal.
func NewEngine(cal *calendar.Calendar, policy Policy, opts ...Option) (*Engine, error) {
	if cal == nil {
		return nil, ErrNilCalendar
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cal:         cal,
		policy:      policy,
		logger:      nopLogger{},
		parallelism: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Calendar returns the engine calendar.
func (e *Engine) Calendar() *calendar.Calendar {
	return e.cal
}

// Policy returns the engine forecast policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// fanOut evaluates fn for every timeline date, at most e.parallelism at a time.
// Results keep timeline order.
func fanOut[T any](ctx context.Context, e *Engine, timeline []time.Time, fn func(time.Time) T) ([]T, error) {
	out := make([]T, len(timeline))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, date := range timeline {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = fn(date)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluate timeline: %w", err)
	}
	return out, nil
}
