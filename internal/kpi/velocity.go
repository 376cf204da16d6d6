package kpi

import (
	"context"
	"fmt"
	"time"

	"github.com/evanschultz/kanmetrics/internal/domain"
)

// Velocity window constants.
const (
	VelocityTimelineDays = 40
	VelocityWidth        = 20
	// MinVelocity keeps forecasts finite when nothing was delivered.
	MinVelocity = 0.01
)

// Velocity returns the delivery rate, in items per business day, over the
// VelocityTimelineDays ending at end. It is the larger of the mean nonzero
// outflow and the latest outflow, and never less than MinVelocity.
func (e *Engine) Velocity(ctx context.Context, items []*domain.WorkItem, end time.Time) (float64, error) {
	start := e.cal.SubtractBusinessDays(end, VelocityTimelineDays)
	timeline, err := e.cal.BuildTimeline(start, end)
	if err != nil {
		return 0, fmt.Errorf("velocity timeline: %w", err)
	}
	tp, err := e.ThroughputProgression(ctx, items, timeline, VelocityWidth)
	if err != nil {
		return 0, err
	}

	var sum float64
	nonZero := 0
	for _, v := range tp.Outflow {
		if v != 0 {
			sum += v
			nonZero++
		}
	}
	var averaged float64
	if nonZero > 0 {
		averaged = sum / float64(nonZero)
	}
	latest := tp.Outflow[len(tp.Outflow)-1]

	velocity := roundTo(max(averaged, latest), 2)
	if velocity <= 0 {
		velocity = MinVelocity
	}
	e.logger.Debug("velocity", "start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly), "items", len(items), "velocity", velocity)
	return velocity, nil
}
