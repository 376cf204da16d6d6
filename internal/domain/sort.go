package domain

import (
	"cmp"
	"slices"
	"strings"
)

// SortForDisplay returns a sorted copy: Done first, planned before
// unplanned, then fixed version, descending percent done and status.
// Unplanned items keep their relative order.
func SortForDisplay(items []*WorkItem) []*WorkItem {
	out := append([]*WorkItem(nil), items...)
	slices.SortStableFunc(out, compareForDisplay)
	return out
}

func compareForDisplay(a, b *WorkItem) int {
	aDone, bDone := a.CurrentStatus == StatusDone, b.CurrentStatus == StatusDone
	switch {
	case aDone && !bDone:
		return -1
	case bDone && !aDone:
		return 1
	}
	aUnplanned, bUnplanned := a.Unplanned(), b.Unplanned()
	switch {
	case aUnplanned && bUnplanned:
		return 0
	case aUnplanned:
		return 1
	case bUnplanned:
		return -1
	}
	if v := strings.Compare(a.FixedVersion, b.FixedVersion); v != 0 {
		return v
	}
	if v := cmp.Compare(b.PercentDone(), a.PercentDone()); v != 0 {
		return v
	}
	return strings.Compare(string(a.CurrentStatus), string(b.CurrentStatus))
}
