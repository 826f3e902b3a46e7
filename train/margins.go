package train

import "math"

// marginGap is the smallest score among true labels minus the largest score
// among false labels. A side with no labels counts as +Inf or -Inf.
func marginGap(scores, labels []float64) float64 {
	minTrue, maxFalse := math.Inf(1), math.Inf(-1)
	for i, l := range labels {
		switch {
		case l == 1 && scores[i] < minTrue:
			minTrue = scores[i]
		case l == 0 && scores[i] > maxFalse:
			maxFalse = scores[i]
		}
	}
	return minTrue - maxFalse
}

// MarginWorseThan reports whether the true/false score gap is below margin.
func MarginWorseThan(margin float64, scores, labels []float64) bool {
	return marginGap(scores, labels) < margin
}

// MarginBetterThan reports whether the true/false score gap is above margin.
func MarginBetterThan(margin float64, scores, labels []float64) bool {
	return marginGap(scores, labels) > margin
}
