package kpi

import "github.com/evanschultz/kanmetrics/internal/domain"

// DefectCounts tallies the defects attached to one work item.
type DefectCounts struct {
	Total     int `json:"total"`
	Done      int `json:"done"`
	Planned   int `json:"planned"`
	Unplanned int `json:"unplanned"`
}

func (d *DefectCounts) merge(other DefectCounts) {
	d.Total += other.Total
	d.Done += other.Done
	d.Planned += other.Planned
	d.Unplanned += other.Unplanned
}

// DefectBreakdown counts the defects directly attached to item.
func DefectBreakdown(item *domain.WorkItem) DefectCounts {
	var out DefectCounts
	for _, defect := range item.Defects() {
		out.Total++
		switch {
		case defect.Unplanned():
			out.Unplanned++
		case defect.IsDone():
			out.Done++
		default:
			out.Planned++
		}
	}
	return out
}

// UseCaseCounts tallies the stories and defects below a use case.
type UseCaseCounts struct {
	PercentDone      float64      `json:"percent_done"`
	Stories          int          `json:"stories"`
	StoriesPlanned   int          `json:"stories_planned"`
	StoriesUnplanned int          `json:"stories_unplanned"`
	StoriesDone      int          `json:"stories_done"`
	Defects          DefectCounts `json:"defects"`
}

// UseCaseBreakdown counts the children of useCase and the defects attached to
// it and to its planned children.
func UseCaseBreakdown(useCase *domain.WorkItem) UseCaseCounts {
	out := UseCaseCounts{
		PercentDone: useCase.PercentDone(),
		Defects:     DefectBreakdown(useCase),
	}
	for _, child := range useCase.Children {
		if child.Kind == domain.KindBug {
			continue
		}
		out.Stories++
		if child.Unplanned() {
			out.StoriesUnplanned++
			continue
		}
		out.Defects.merge(DefectBreakdown(child))
		if child.IsDone() {
			out.StoriesDone++
		} else {
			out.StoriesPlanned++
		}
	}
	return out
}
