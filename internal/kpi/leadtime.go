package kpi

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/evanschultz/kanmetrics/internal/domain"
)

// LeadTimeKPIWidth is the averaging window, in business days, of LeadTimeKPI.
const LeadTimeKPIWidth = 20

// LeadTimeStats summarizes lead times sampled around a pivot date.
type LeadTimeStats struct {
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Count  int     `json:"count"`
}

// AverageLeadTime samples the lead time at pivot of the items active in the
// window of width business days centred on pivot. Count and the divisors of
// Mean and StdDev cover every active item, including those with no lead time
// yet. Sums, Min and Max only cover defined lead times.
func (e *Engine) AverageLeadTime(items []*domain.WorkItem, pivot time.Time, width int) LeadTimeStats {
	if width <= 1 {
		width = 2
	}
	half := width / 2
	low := e.cal.SubtractBusinessDays(pivot, half)
	high := e.cal.AddBusinessDays(pivot, half)

	values := make([]int, 0, len(items))
	active := 0
	for _, item := range items {
		if item.Unplanned() || item.CreatedOn.After(high) {
			continue
		}
		if item.StatusAt(high) == domain.StatusUnknown {
			continue
		}
		if item.StatusAt(low) == domain.StatusDone {
			continue
		}
		active++
		if v, ok := item.LeadTime(e.cal, pivot, false); ok {
			values = append(values, v)
		}
	}
	return summarize(values, active)
}

// summarize folds the defined lead times of count active items.
func summarize(values []int, count int) LeadTimeStats {
	if count == 0 {
		return LeadTimeStats{}
	}
	n := float64(count)
	sum := 0
	for _, v := range values {
		sum += v
	}
	mean := float64(sum) / n

	var stddev float64
	if count > 1 {
		var variance float64
		for _, v := range values {
			d := float64(v) - mean
			variance += d * d
		}
		stddev = math.Sqrt(variance / (n - 1))
	}
	stats := LeadTimeStats{
		Mean:   roundTo(mean, 1),
		StdDev: stddev,
		Count:  count,
	}
	if len(values) > 0 {
		stats.Min = slices.Min(values)
		stats.Max = slices.Max(values)
	}
	return stats
}

// LeadTimeKPI is the mean lead time over a LeadTimeKPIWidth window ending at end.
func (e *Engine) LeadTimeKPI(items []*domain.WorkItem, end time.Time) float64 {
	return roundTo(e.AverageLeadTime(items, end, LeadTimeKPIWidth).Mean, 2)
}

// LeadTimeProgression evaluates AverageLeadTime at every timeline date.
func (e *Engine) LeadTimeProgression(ctx context.Context, items []*domain.WorkItem, timeline []time.Time, width int) ([]LeadTimeStats, error) {
	return fanOut(ctx, e, timeline, func(date time.Time) LeadTimeStats {
		return e.AverageLeadTime(items, date, width)
	})
}
