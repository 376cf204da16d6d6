package kpi

import "math"

// roundTo rounds half away from negative infinity, matching the rounding
// historical reports were produced with.
func roundTo(x float64, places int) float64 {
	p := math.Pow10(places)
	return math.Floor(x*p+0.5) / p
}

func roundInt(x float64) int {
	return int(math.Floor(x + 0.5))
}
