package services

import "nexus/internal/types"

// VitalThreshold holds the inclusive upper bounds of the good and needs-improvement buckets
type VitalThreshold struct {
	Good             float64
	NeedsImprovement float64
}

// Thresholds published by the web-vitals project. CLS is unitless, the rest are milliseconds.
var VitalThresholds = map[string]VitalThreshold{
	"CLS":  {Good: 0.1, NeedsImprovement: 0.25},
	"LCP":  {Good: 2500, NeedsImprovement: 4000},
	"TTFB": {Good: 800, NeedsImprovement: 1800},
	"INP":  {Good: 200, NeedsImprovement: 500},
	"FCP":  {Good: 1800, NeedsImprovement: 3000},
	"FID":  {Good: 100, NeedsImprovement: 300},
}

// NormalizeRating keeps a valid client rating, otherwise derives one from the value.
// Metrics without thresholds fall back to needs-improvement.
func NormalizeRating(name string, value float64, rating string) types.Rating {
	if r, ok := types.ParseRating(rating); ok {
		return r
	}

	threshold, ok := VitalThresholds[name]
	if !ok {
		return types.RatingNeedsImprovement
	}

	switch {
	case value <= threshold.Good:
		return types.RatingGood
	case value <= threshold.NeedsImprovement:
		return types.RatingNeedsImprovement
	default:
		return types.RatingPoor
	}
}
