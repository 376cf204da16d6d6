package domain

import (
	"time"

	"github.com/evanschultz/kanmetrics/internal/calendar"
)

// OpenItemGraceDays is the business-day grace added to the lead time of items still open.
const OpenItemGraceDays = 2

// doneThreshold tolerates rounding when deciding an item is complete.
const doneThreshold = 99.999

// PercentDone returns the consolidated completion of the item in [0, 100].
func (w *WorkItem) PercentDone() float64 {
	switch w.Kind {
	case KindUseCase:
		if len(w.Children) == 0 {
			return 0
		}
		return weightedPercentDone(w.Children, 0, 0)
	case KindUserStory:
		if len(w.UserStories()) > 0 {
			return weightedPercentDone(w.Children, 0, 0)
		}
		// Leaf story: its own ratio folded with the attached defects.
		return weightedPercentDone(w.Children, w.Weight()*w.adjustedDoneRatio(), w.Weight())
	default:
		return w.adjustedDoneRatio()
	}
}

// IsDone reports whether the item is complete.
func (w *WorkItem) IsDone() bool {
	return w.PercentDone() > doneThreshold
}

// IsInProgress reports whether work has started but not finished.
func (w *WorkItem) IsInProgress() bool {
	if w.CurrentStatus == StatusInProgress {
		return true
	}
	ratio := w.adjustedDoneRatio()
	return ratio > 0 && ratio < 100
}

// adjustedDoneRatio is 100 for Done items, else the raw ratio.
func (w *WorkItem) adjustedDoneRatio() float64 {
	if w.CurrentStatus == StatusDone {
		return 100
	}
	return float64(w.DoneRatio)
}

// weightedPercentDone averages planned items by weight, seeded with an optional own share.
func weightedPercentDone(items []*WorkItem, total, weight float64) float64 {
	for _, item := range items {
		if item.Unplanned() {
			continue
		}
		total += item.Weight() * item.PercentDone()
		weight += item.Weight()
	}
	if weight == 0 {
		return 0
	}
	return total / weight
}

// LeadTime returns the business days from creation (or start of work) to
// completion, or to ref plus the grace period for items still open.
func (w *WorkItem) LeadTime(cal *calendar.Calendar, ref time.Time, useStartOfWork bool) (int, bool) {
	if !w.IsDone() && !w.IsInProgress() {
		return 0, false
	}
	start := w.CreatedOn
	if useStartOfWork {
		var ok bool
		if start, ok = w.StartingDate(); !ok {
			return 0, false
		}
	}
	if !ref.After(start) {
		return 0, true
	}
	if len(w.journal) <= 1 {
		// Created already closed.
		return 1, true
	}

	end := cal.AddBusinessDays(ref, OpenItemGraceDays)
	if w.StatusAt(ref) == StatusDone {
		end = w.journal[len(w.journal)-1].Date
	}
	return cal.BusinessDaysBetween(start, end), true
}

// ProgressBar renders one glyph per timeline date. Only the day the item
// became Done shows D; the following Done days render as settled dots.
func (w *WorkItem) ProgressBar(timeline []time.Time) string {
	bar := make([]byte, len(timeline))
	foundDone := false
	for i, date := range timeline {
		c := w.StatusAt(date).Letter()
		if c == 'D' {
			if foundDone {
				c = '.'
			}
			foundDone = true
		} else {
			foundDone = false
		}
		bar[i] = c
	}
	return string(bar)
}
