package kpi

import (
	"fmt"
	"math"
)

// Policy holds the forecast heuristics. They are business choices an
// operator may tune, not derived constants.
type Policy struct {
	// Defect generation per story, as multiples of the defects-per-story ratio.
	InProgressDefectCoefficient float64 `json:"in_progress_defect_coefficient"`
	DeliveredDefectCoefficient  float64 `json:"delivered_defect_coefficient"`
	BacklogDefectCoefficient    float64 `json:"backlog_defect_coefficient"`

	// Share of in-progress work assumed already complete.
	InProgressStoryCompletion  float64 `json:"in_progress_story_completion"`
	InProgressDefectCompletion float64 `json:"in_progress_defect_completion"`

	// Defect velocity multipliers once story work is over.
	FastSpeedup float64 `json:"fast_speedup"`
	SlowSpeedup float64 `json:"slow_speedup"`

	MinRemainingDefects float64 `json:"min_remaining_defects"`
	StabilizationDays   int     `json:"stabilization_days"`

	MinStoryVelocity  float64 `json:"min_story_velocity"`
	MinDefectVelocity float64 `json:"min_defect_velocity"`
}

// DefaultPolicy returns the heuristics historical forecasts were computed with.
func DefaultPolicy() Policy {
	return Policy{
		InProgressDefectCoefficient: 1.00,
		DeliveredDefectCoefficient:  0.01,
		BacklogDefectCoefficient:    1.20,
		InProgressStoryCompletion:   0.5,
		InProgressDefectCompletion:  0.5,
		FastSpeedup:                 5,
		SlowSpeedup:                 2,
		MinRemainingDefects:         10,
		StabilizationDays:           31,
		MinStoryVelocity:            MinVelocity,
		MinDefectVelocity:           MinVelocity,
	}
}

// Validate checks that every heuristic keeps the forecast finite.
func (p Policy) Validate() error {
	nonNegative := map[string]float64{
		"in_progress_defect_coefficient": p.InProgressDefectCoefficient,
		"delivered_defect_coefficient":   p.DeliveredDefectCoefficient,
		"backlog_defect_coefficient":     p.BacklogDefectCoefficient,
		"min_remaining_defects":          p.MinRemainingDefects,
	}
	for name, v := range nonNegative {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s = %v", ErrInvalidPolicy, name, v)
		}
	}
	ratios := map[string]float64{
		"in_progress_story_completion":  p.InProgressStoryCompletion,
		"in_progress_defect_completion": p.InProgressDefectCompletion,
	}
	for name, v := range ratios {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s = %v must be within [0, 1]", ErrInvalidPolicy, name, v)
		}
	}
	positive := map[string]float64{
		"fast_speedup":        p.FastSpeedup,
		"slow_speedup":        p.SlowSpeedup,
		"min_story_velocity":  p.MinStoryVelocity,
		"min_defect_velocity": p.MinDefectVelocity,
	}
	for name, v := range positive {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s = %v must be positive", ErrInvalidPolicy, name, v)
		}
	}
	if p.StabilizationDays < 0 {
		return fmt.Errorf("%w: stabilization_days = %d", ErrInvalidPolicy, p.StabilizationDays)
	}
	return nil
}
