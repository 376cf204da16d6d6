package calendar

import (
	"fmt"
	"time"
)

// MaxTimelineLength bounds the number of working days a timeline may hold.
const MaxTimelineLength = 1000

// BuildTimeline returns the working days from start through end.
// A non-working start rewinds to the preceding working day.
func (c *Calendar) BuildTimeline(start, end time.Time) ([]time.Time, error) {
	start, end = dateOf(start), dateOf(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidTimeline, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	cursor := start
	for !c.IsWorkingDay(cursor) {
		cursor = cursor.AddDate(0, 0, -1)
	}

	timeline := make([]time.Time, 0, min(MaxTimelineLength, CalendarDaysBetween(cursor, end)))
	for !cursor.After(end) {
		if c.IsWorkingDay(cursor) {
			if len(timeline) == MaxTimelineLength {
				return nil, fmt.Errorf("%w: more than %d working days between %s and %s", ErrTimelineTooLarge, MaxTimelineLength, start.Format(time.DateOnly), end.Format(time.DateOnly))
			}
			timeline = append(timeline, cursor)
		}
		cursor = cursor.AddDate(0, 0, 1)
	}
	return timeline, nil
}
