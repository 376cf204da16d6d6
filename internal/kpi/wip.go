package kpi

import (
	"context"
	"fmt"
	"time"

	"github.com/evanschultz/kanmetrics/internal/domain"
)

// WIP counts work items per bucket at one date.
type WIP struct {
	Date       time.Time `json:"date"`
	Proposed   int       `json:"proposed"`
	Planned    int       `json:"planned"`
	InProgress int       `json:"in_progress"`
	Done       int       `json:"done"`
}

// Total counts the planned work, which excludes proposed items.
func (w WIP) Total() int {
	return w.Planned + w.InProgress + w.Done
}

// WorkInProgress partitions items by their status at date. Items unknown
// at date are left out.
func WorkInProgress(items []*domain.WorkItem, date time.Time) WIP {
	wip := WIP{Date: date}
	for _, item := range items {
		switch item.StatusAt(date) {
		case domain.StatusNew:
			if item.Unplanned() {
				wip.Proposed++
			} else {
				wip.Planned++
			}
		case domain.StatusInProgress:
			wip.InProgress++
		case domain.StatusDone:
			wip.Done++
		}
	}
	return wip
}

// WIPProgression evaluates WorkInProgress for every timeline date.
func (e *Engine) WIPProgression(ctx context.Context, items []*domain.WorkItem, timeline []time.Time) ([]WIP, error) {
	return fanOut(ctx, e, timeline, func(date time.Time) WIP {
		return WorkInProgress(items, date)
	})
}

// AverageWIPProgression returns planned plus in-progress counts per timeline date.
func (e *Engine) AverageWIPProgression(ctx context.Context, items []*domain.WorkItem, timeline []time.Time) ([]int, error) {
	wips, err := e.WIPProgression(ctx, items, timeline)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(wips))
	for i, w := range wips {
		out[i] = w.Planned + w.InProgress
	}
	return out, nil
}

// Throughput holds per-day inflow and outflow rates along a timeline.
type Throughput struct {
	Inflow  []float64 `json:"inflow"`
	Outflow []float64 `json:"outflow"`
}

// ThroughputProgression compares WIP totals width entries apart and divides
// the differences by width. Entries at index <= width are warm-up zeros.
func (e *Engine) ThroughputProgression(ctx context.Context, items []*domain.WorkItem, timeline []time.Time, width int) (Throughput, error) {
	if width < 1 {
		return Throughput{}, fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
	wips, err := e.WIPProgression(ctx, items, timeline)
	if err != nil {
		return Throughput{}, err
	}
	return throughputOf(wips, width), nil
}

func throughputOf(wips []WIP, width int) Throughput {
	out := Throughput{
		Inflow:  make([]float64, len(wips)),
		Outflow: make([]float64, len(wips)),
	}
	w := float64(width)
	for i := width + 1; i < len(wips); i++ {
		before, current := wips[i-width], wips[i]
		out.Inflow[i] = float64(current.Total()-before.Total()) / w
		out.Outflow[i] = float64(current.Done-before.Done) / w
	}
	return out
}
