package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// MAPE returns the mean absolute percentage error of forecast against actual:
//
//	MAPE = mean(|A[i] - F[i]| / A[i]) × 100    over i where A[i] != 0
//
// Periods with a zero actual are masked out. When every period is masked the
// result is 0 rather than NaN.
func MAPE(actual, forecast []float64) (float64, error) {
	if len(actual) != len(forecast) {
		return 0, &DimensionMismatchError{Actual: len(actual), Forecast: len(forecast)}
	}

	ratios := make([]float64, 0, len(actual))
	for i, a := range actual {
		if a == 0 {
			continue
		}
		ratios = append(ratios, math.Abs((a-forecast[i])/a))
	}
	if len(ratios) == 0 {
		return 0, nil
	}
	return stat.Mean(ratios, nil) * 100, nil
}
