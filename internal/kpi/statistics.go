package kpi

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/evanschultz/kanmetrics/internal/domain"
)

// LastMonthOffset is the business-day lookback of the month-over-month figures.
const LastMonthOffset = 20

// KPI names used in Statistics.Failures.
const (
	KPIDefectsPerStory         = "defects_per_story"
	KPIDefectVelocity          = "defect_velocity"
	KPIDefectVelocityLastMonth = "defect_velocity_last_month"
	KPIDefectVelocityTrend     = "defect_velocity_trend"
	KPIStoryVelocity           = "story_velocity"
	KPIStoryVelocityLastMonth  = "story_velocity_last_month"
	KPIStoryVelocityTrend      = "story_velocity_trend"
	KPIDefectLeadTimeTrend     = "defect_lead_time_trend"
	KPIStoryLeadTimeTrend      = "story_lead_time_trend"
)

// StatisticsOptions holds the reference dates of a statistics run.
type StatisticsOptions struct {
	Today       time.Time
	ETAExpected time.Time // defaults to Today
	StartDate   time.Time // defaults to the earliest creation date
}

// Bucket counts items of one family by status at the reference date.
type Bucket struct {
	Known      int `json:"known"`
	Unplanned  int `json:"unplanned"`
	New        int `json:"new"`
	InProgress int `json:"in_progress"`
	Delivered  int `json:"delivered"`
}

func (b *Bucket) add(status domain.Status) {
	if status == domain.StatusUnknown {
		return
	}
	b.Known++
	switch status {
	case domain.StatusUnplanned:
		b.Unplanned++
	case domain.StatusNew:
		b.New++
	case domain.StatusInProgress:
		b.InProgress++
	case domain.StatusDone:
		b.Delivered++
	}
}

// Failure records a KPI that could not be computed.
type Failure struct {
	KPI   string `json:"kpi"`
	Error string `json:"error"`
}

// Statistics is the aggregate snapshot of a project at a reference date.
type Statistics struct {
	ReferenceDate time.Time `json:"reference_date"`
	LastMonth     time.Time `json:"last_month"`
	ETAExpected   time.Time `json:"eta_expected"`
	StartDate     time.Time `json:"start_date"`

	Stories Bucket `json:"stories"`
	Defects Bucket `json:"defects"`

	DefectsPerStory float64 `json:"defects_per_story"`

	DefectVelocity          float64 `json:"defect_velocity"`
	DefectVelocityLastMonth float64 `json:"defect_velocity_last_month"`
	DefectVelocityTrend     string  `json:"defect_velocity_trend,omitempty"`
	StoryVelocity           float64 `json:"story_velocity"`
	StoryVelocityLastMonth  float64 `json:"story_velocity_last_month"`
	StoryVelocityTrend      string  `json:"story_velocity_trend,omitempty"`

	DefectLeadTime          float64 `json:"defect_lead_time"`
	DefectLeadTimeLastMonth float64 `json:"defect_lead_time_last_month"`
	DefectLeadTimeTrend     string  `json:"defect_lead_time_trend,omitempty"`
	StoryLeadTime           float64 `json:"story_lead_time"`
	StoryLeadTimeLastMonth  float64 `json:"story_lead_time_last_month"`
	StoryLeadTimeTrend      string  `json:"story_lead_time_trend,omitempty"`

	Failures []Failure `json:"failures,omitempty"`

	engine *Engine
	errs   map[string]error
}

// Err returns the failure recorded for kpi, if any.
func (s *Statistics) Err(kpi string) error {
	return s.errs[kpi]
}

func (s *Statistics) fail(kpi string, err error) {
	if s.errs == nil {
		s.errs = map[string]error{}
	}
	s.errs[kpi] = err
	s.Failures = append(s.Failures, Failure{KPI: kpi, Error: err.Error()})
	s.engine.logger.Warn("kpi failed", "kpi", kpi, "err", err)
}

// Trend renders the relative change from previous to current as a
// percentage with one decimal, e.g. "12.5%".
func Trend(previous, current float64) (string, error) {
	if previous == 0 {
		return "", fmt.Errorf("%w: trend from %v to %v", ErrZeroBase, previous, current)
	}
	variation := roundTo((current-previous)/previous*100, 1)
	return strconv.FormatFloat(variation, 'f', -1, 64) + "%", nil
}

// Statistics classifies items into story and defect families and computes
// velocities, lead times and their monthly trends. A KPI that fails is
// recorded in Failures and does not prevent the others; only context
// cancellation and a missing reference date abort the run.
func (e *Engine) Statistics(ctx context.Context, items []*domain.WorkItem, opts StatisticsOptions) (*Statistics, error) {
	if opts.Today.IsZero() {
		return nil, ErrMissingDate
	}
	if opts.ETAExpected.IsZero() {
		opts.ETAExpected = opts.Today
	}
	if opts.StartDate.IsZero() {
		opts.StartDate = earliestCreation(items, opts.Today)
	}

	s := &Statistics{
		ReferenceDate: opts.Today,
		LastMonth:     e.cal.SubtractBusinessDays(opts.Today, LastMonthOffset),
		ETAExpected:   opts.ETAExpected,
		StartDate:     opts.StartDate,
		engine:        e,
	}
	e.logger.Debug("statistics", "today", s.ReferenceDate.Format(time.DateOnly), "last_month", s.LastMonth.Format(time.DateOnly), "eta_expected", s.ETAExpected.Format(time.DateOnly))

	var stories, defects []*domain.WorkItem
	for _, item := range items {
		status := item.StatusAt(s.ReferenceDate)
		switch {
		case item.Kind.IsStoryLike():
			stories = append(stories, item)
			s.Stories.add(status)
		case item.Kind.IsDefectLike():
			defects = append(defects, item)
			s.Defects.add(status)
		}
	}

	if s.Stories.Delivered == 0 {
		s.fail(KPIDefectsPerStory, fmt.Errorf("%w: no delivered stories", ErrZeroBase))
	} else {
		s.DefectsPerStory = roundTo(float64(s.Defects.Known)/float64(s.Stories.Delivered), 2)
	}

	velocity := func(name string, family []*domain.WorkItem, at time.Time, floor float64) (float64, error) {
		v, err := e.Velocity(ctx, family, at)
		if err != nil {
			if ctx.Err() != nil {
				return 0, err
			}
			s.fail(name, err)
			return floor, nil
		}
		return max(v, floor), nil
	}
	var err error
	if s.DefectVelocity, err = velocity(KPIDefectVelocity, defects, s.ReferenceDate, e.policy.MinDefectVelocity); err != nil {
		return nil, err
	}
	if s.DefectVelocityLastMonth, err = velocity(KPIDefectVelocityLastMonth, defects, s.LastMonth, e.policy.MinDefectVelocity); err != nil {
		return nil, err
	}
	if s.StoryVelocity, err = velocity(KPIStoryVelocity, stories, s.ReferenceDate, e.policy.MinStoryVelocity); err != nil {
		return nil, err
	}
	if s.StoryVelocityLastMonth, err = velocity(KPIStoryVelocityLastMonth, stories, s.LastMonth, e.policy.MinStoryVelocity); err != nil {
		return nil, err
	}

	s.DefectLeadTime = e.LeadTimeKPI(defects, s.ReferenceDate)
	s.DefectLeadTimeLastMonth = e.LeadTimeKPI(defects, s.LastMonth)
	s.StoryLeadTime = e.LeadTimeKPI(stories, s.ReferenceDate)
	s.StoryLeadTimeLastMonth = e.LeadTimeKPI(stories, s.LastMonth)

	s.DefectVelocityTrend = s.trend(KPIDefectVelocityTrend, s.DefectVelocityLastMonth, s.DefectVelocity)
	s.StoryVelocityTrend = s.trend(KPIStoryVelocityTrend, s.StoryVelocityLastMonth, s.StoryVelocity)
	s.DefectLeadTimeTrend = s.trend(KPIDefectLeadTimeTrend, s.DefectLeadTimeLastMonth, s.DefectLeadTime)
	s.StoryLeadTimeTrend = s.trend(KPIStoryLeadTimeTrend, s.StoryLeadTimeLastMonth, s.StoryLeadTime)
	return s, nil
}

func (s *Statistics) trend(name string, previous, current float64) string {
	v, err := Trend(previous, current)
	if err != nil {
		s.fail(name, err)
	}
	return v
}

func earliestCreation(items []*domain.WorkItem, fallback time.Time) time.Time {
	first := fallback
	for _, item := range items {
		if item.CreatedOn.Before(first) {
			first = item.CreatedOn
		}
	}
	return first
}
