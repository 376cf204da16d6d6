package kpi

import (
	"fmt"
	"time"

	"github.com/evanschultz/kanmetrics/internal/calendar"
)

// Forecast is the multi-scenario completion estimate of a project.
type Forecast struct {
	IncomingStories int `json:"incoming_stories"`
	BacklogSize     int `json:"backlog_size"`

	InProgressDefectCoefficient float64 `json:"in_progress_defect_coefficient"`
	DeliveredDefectCoefficient  float64 `json:"delivered_defect_coefficient"`
	BacklogDefectCoefficient    float64 `json:"backlog_defect_coefficient"`

	EstimatedFutureDefects      int     `json:"estimated_future_defects"`
	AveragedDefectsToCompletion float64 `json:"averaged_defects_to_completion"`

	// Completion driven by defect velocity alone.
	DefectDaysToCompletion         int `json:"defect_days_to_completion"`
	DefectCalendarDaysToCompletion int `json:"defect_calendar_days_to_completion"`
	// Completion of story work, defects being fixed alongside.
	StoryDaysToCompletion         int `json:"story_days_to_completion"`
	StoryCalendarDaysToCompletion int `json:"story_calendar_days_to_completion"`

	DefectsFixedDuringMixedPeriod int     `json:"defects_fixed_during_mixed_period"`
	RemainingDefectsFastPeriod    float64 `json:"remaining_defects_fast_period"`
	FastRemediationDays           int     `json:"fast_remediation_days"`
	SlowRemediationDays           int     `json:"slow_remediation_days"`

	ETAVeryOptimistic time.Time `json:"eta_very_optimistic"`
	ETAOptimistic     time.Time `json:"eta_optimistic"`
	ETAProbable       time.Time `json:"eta_probable"`
	ETAPessimistic    time.Time `json:"eta_pessimistic"`

	// DeltaETA is the inclusive calendar-day distance from the expected to the probable ETA.
	DeltaETA        int              `json:"delta_eta"`
	NonBusinessDays calendar.Skipped `json:"non_business_days"`

	PercentComplete                 float64 `json:"percent_complete"`
	PercentExpectedDurationConsumed float64 `json:"percent_expected_duration_consumed"`
	PercentOverrun                  float64 `json:"percent_overrun"`
}

// Forecast estimates completion assuming incoming stories, unknown today,
// will join the backlog. It fails when the defects-per-story ratio is unavailable.
func (s *Statistics) Forecast(incoming int) (Forecast, error) {
	if incoming < 0 {
		return Forecast{}, fmt.Errorf("%w: %d", ErrInvalidIncoming, incoming)
	}
	if err := s.Err(KPIDefectsPerStory); err != nil {
		return Forecast{}, fmt.Errorf("forecast: %w", err)
	}
	p := s.engine.policy
	cal := s.engine.cal
	vDefects, vStories := s.DefectVelocity, s.StoryVelocity
	if vDefects <= 0 || vStories <= 0 {
		return Forecast{}, fmt.Errorf("%w: velocity defects=%v stories=%v", ErrZeroBase, vDefects, vStories)
	}

	f := Forecast{
		IncomingStories:             incoming,
		BacklogSize:                 s.Stories.New + incoming,
		InProgressDefectCoefficient: p.InProgressDefectCoefficient * s.DefectsPerStory,
		DeliveredDefectCoefficient:  p.DeliveredDefectCoefficient * s.DefectsPerStory,
		BacklogDefectCoefficient:    p.BacklogDefectCoefficient * s.DefectsPerStory,
	}
	f.EstimatedFutureDefects = roundInt(f.InProgressDefectCoefficient*float64(s.Stories.InProgress) +
		f.DeliveredDefectCoefficient*float64(s.Stories.Delivered) +
		f.BacklogDefectCoefficient*float64(f.BacklogSize))
	f.AveragedDefectsToCompletion = float64(s.Defects.InProgress)*p.InProgressDefectCompletion +
		float64(s.Defects.New) + float64(f.EstimatedFutureDefects)

	f.DefectDaysToCompletion = roundInt(f.AveragedDefectsToCompletion / vDefects)
	f.DefectCalendarDaysToCompletion = calendarDays(f.DefectDaysToCompletion)

	f.StoryDaysToCompletion = roundInt((float64(s.Stories.InProgress)*p.InProgressStoryCompletion + float64(f.BacklogSize)) / vStories)
	f.StoryCalendarDaysToCompletion = calendarDays(f.StoryDaysToCompletion)

	// Once stories are over the team clears the remaining defects faster.
	f.DefectsFixedDuringMixedPeriod = roundInt(float64(f.StoryDaysToCompletion) * vDefects)
	f.RemainingDefectsFastPeriod = max(f.AveragedDefectsToCompletion-float64(f.DefectsFixedDuringMixedPeriod), p.MinRemainingDefects)
	f.FastRemediationDays = roundInt(f.RemainingDefectsFastPeriod / (vDefects * p.FastSpeedup))
	f.SlowRemediationDays = roundInt(f.RemainingDefectsFastPeriod / (vDefects * p.SlowSpeedup))

	today := s.ReferenceDate
	probableDays := f.StoryDaysToCompletion + f.FastRemediationDays
	f.ETAVeryOptimistic = cal.AddBusinessDays(today, f.StoryDaysToCompletion)
	f.ETAOptimistic = cal.AddBusinessDays(today, f.StoryDaysToCompletion+p.StabilizationDays)
	f.ETAProbable = cal.AddBusinessDays(today, probableDays)
	f.ETAPessimistic = cal.AddBusinessDays(today, f.StoryDaysToCompletion+f.SlowRemediationDays)
	f.DeltaETA = calendar.CalendarDaysBetween(s.ETAExpected, f.ETAProbable)
	f.NonBusinessDays = cal.NonBusinessDays(today, probableDays)

	scope := s.Stories.Delivered + s.Stories.InProgress + f.BacklogSize
	if scope == 0 {
		return Forecast{}, fmt.Errorf("%w: no planned stories", ErrZeroBase)
	}
	f.PercentComplete = roundTo(100*float64(s.Stories.Delivered)/float64(scope), 1)

	expected := cal.BusinessDaysBetween(s.StartDate, s.ETAExpected)
	if expected <= 0 {
		return Forecast{}, fmt.Errorf("%w: expected duration from %s to %s", ErrZeroBase, s.StartDate.Format(time.DateOnly), s.ETAExpected.Format(time.DateOnly))
	}
	elapsed := cal.BusinessDaysBetween(s.StartDate, today)
	probable := cal.BusinessDaysBetween(s.StartDate, f.ETAProbable)
	f.PercentExpectedDurationConsumed = roundTo(100*float64(elapsed)/float64(expected), 1)
	f.PercentOverrun = roundTo(100*float64(probable-expected)/float64(expected), 1)

	s.engine.logger.Debug("forecast", "incoming", incoming, "eta_probable", f.ETAProbable.Format(time.DateOnly), "delta_eta", f.DeltaETA)
	return f, nil
}

// calendarDays converts business days to calendar days at five working days a week.
func calendarDays(businessDays int) int {
	return roundInt(float64(businessDays) * 7 / 5)
}
