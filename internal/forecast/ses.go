package forecast

import (
	"fmt"
	"math"
	"strconv"
)

// Smooth returns the single exponential smoothing one-step-ahead forecasts of
// actuals:
//
//	F[0] = A[0]
//	F[i] = α·A[i-1] + (1-α)·F[i-1]
//
// Alpha is used as given. Values outside [0,1] are accepted and only change the
// shape of the curve.
func Smooth(actuals []float64, alpha float64) ([]float64, error) {
	if len(actuals) == 0 {
		return nil, invalidInput("empty series")
	}

	forecasts := make([]float64, len(actuals))
	forecasts[0] = actuals[0]
	for i := 1; i < len(actuals); i++ {
		forecasts[i] = step(alpha, actuals[i-1], forecasts[i-1])
	}
	return forecasts, nil
}

// NextPeriod extrapolates one period past the end of the series from the last
// actual and the last in-sample forecast.
func NextPeriod(actuals, forecasts []float64, alpha float64) (float64, error) {
	if len(actuals) == 0 {
		return 0, invalidInput("empty series")
	}
	if len(actuals) != len(forecasts) {
		return 0, &DimensionMismatchError{Actual: len(actuals), Forecast: len(forecasts)}
	}
	n := len(actuals)
	return step(alpha, actuals[n-1], forecasts[n-1]), nil
}

func step(alpha, prevActual, prevForecast float64) float64 {
	return alpha*prevActual + (1-alpha)*prevForecast
}

// ForecastPoint is one row of the derivation trace.
type ForecastPoint struct {
	Period       int     `json:"period"`
	OrderKey     string  `json:"date"`
	Actual       float64 `json:"actual"`
	Forecast     float64 `json:"forecast"`
	Alpha        float64 `json:"alpha"`
	PrevActual   float64 `json:"prev_actual"`
	PrevForecast float64 `json:"prev_forecast"`
	Formula      string  `json:"formula"`
	Calculation  string  `json:"calculation"`
	Result       float64 `json:"result"`
	Error        float64 `json:"error"`
	ErrorPct     float64 `json:"error_pct"`
}

// BuildTrace renders the step-by-step derivation of forecasts. It never
// recomputes the recurrence, so the traced values are exactly those in
// forecasts. orderKeys may be nil, in which case periods are labelled 1..n.
func BuildTrace(actuals, forecasts []float64, orderKeys []string, alpha float64) ([]ForecastPoint, error) {
	if len(actuals) == 0 {
		return nil, invalidInput("empty series")
	}
	if len(actuals) != len(forecasts) {
		return nil, &DimensionMismatchError{Actual: len(actuals), Forecast: len(forecasts)}
	}
	if orderKeys != nil && len(orderKeys) != len(actuals) {
		return nil, invalidInput("%d order keys for %d values", len(orderKeys), len(actuals))
	}

	trace := make([]ForecastPoint, len(actuals))
	for i := range actuals {
		p := ForecastPoint{
			Period:   i + 1,
			OrderKey: strconv.Itoa(i + 1),
			Actual:   actuals[i],
			Forecast: forecasts[i],
			Alpha:    alpha,
			Result:   forecasts[i],
		}
		if orderKeys != nil {
			p.OrderKey = orderKeys[i]
		}

		if i == 0 {
			p.PrevActual = actuals[0]
			p.PrevForecast = actuals[0]
			p.Formula = "F1 = A1 (initial)"
			p.Calculation = fmt.Sprintf("F1 = %s", formatNum(actuals[0]))
		} else {
			p.PrevActual = actuals[i-1]
			p.PrevForecast = forecasts[i-1]
			p.Formula = fmt.Sprintf("F%d = α × A%d + (1 - α) × F%d", i+1, i, i)
			p.Calculation = fmt.Sprintf("%s × %s + %s × %s",
				formatNum(alpha), formatNum(p.PrevActual), formatNum(1-alpha), formatNum(p.PrevForecast))
		}

		p.Error, p.ErrorPct = pointError(p.Actual, p.Forecast)
		trace[i] = p
	}
	return trace, nil
}

// pointError returns |actual-forecast| and its percentage of actual (0 when actual is 0).
func pointError(actual, forecast float64) (float64, float64) {
	e := math.Abs(actual - forecast)
	if actual == 0 {
		return e, 0
	}
	return e, e / actual * 100
}

// formatNum prints at most four decimals and drops trailing zeros. Magnitudes
// of 1e15 and above carry no decimals worth rounding and are printed as is,
// since scaling them by 1e4 can overflow.
func formatNum(v float64) string {
	if math.Abs(v) >= 1e15 || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}
