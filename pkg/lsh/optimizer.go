package lsh

import "math"

// The banding scheme retrieves an item when at least one of its b bands
// matches the query exactly across all r rows, which happens with probability
// 1 - (1 - s^r)^b for true similarity s. The optimizer searches every (b, r)
// with b*r <= numPerm for the pair minimizing the weighted sum of the
// probability mass on the wrong side of the threshold:
//
//	FP area: integral over [0, t] of    1 - (1 - s^r)^b
//	FN area: integral over [t, 1] of 1 - (1 - (1 - s^r)^b)
//
// This is a one-time search at construction, not a hot path.

// integrationPrecision is the midpoint-rule step width.
const integrationPrecision = 0.001

func integrate(f func(float64) float64, a, b float64) float64 {
	area := 0.0
	for x := a + 0.5*integrationPrecision; x < b; x += integrationPrecision {
		area += f(x) * integrationPrecision
	}
	return area
}

// collisionProbability is the S-curve: the chance that a pair with true
// similarity s collides in at least one band.
func collisionProbability(s float64, b, r int) float64 {
	return 1 - math.Pow(1-math.Pow(s, float64(r)), float64(b))
}

func falsePositiveArea(threshold float64, b, r int) float64 {
	return integrate(func(s float64) float64 {
		return collisionProbability(s, b, r)
	}, 0, threshold)
}

func falseNegativeArea(threshold float64, b, r int) float64 {
	return integrate(func(s float64) float64 {
		return 1 - collisionProbability(s, b, r)
	}, threshold, 1)
}

// optimalParams returns the band count and rows per band minimizing
// fpWeight*FP + fnWeight*FN over all divisor pairs with b*r <= numPerm.
func optimalParams(threshold float64, numPerm int, fpWeight, fnWeight float64) (bands, rows int) {
	minError := math.Inf(1)
	for b := 1; b <= numPerm; b++ {
		maxR := numPerm / b
		for r := 1; r <= maxR; r++ {
			fp := falsePositiveArea(threshold, b, r)
			fn := falseNegativeArea(threshold, b, r)
			e := fpWeight*fp + fnWeight*fn
			if e < minError {
				minError = e
				bands, rows = b, r
			}
		}
	}
	return bands, rows
}
