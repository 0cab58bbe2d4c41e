// Package forecast computes single exponential smoothing (SES) forecasts for
// per-entity sales series.
//
// A batch of flat observations is grouped into series (Grouper), each series is
// smoothed (Smooth), scored (MAPE) and extrapolated one period ahead
// (NextPeriod). The overall accuracy of a batch is the unweighted mean of the
// per-entity MAPE values, so short series count as much as long ones.
//
// Everything in this package is a pure function of its arguments: there is no
// state between calls and independent batches may be computed concurrently.
package forecast

import (
	"fmt"
	"math"

	"github.com/rewired-gh/salesforecast/internal/logger"
)

// Result is the forecast of a single entity.
type Result struct {
	EntityKey          string          `json:"entity_key"`
	OrderKeys          []string        `json:"dates"`
	Actuals            []float64       `json:"actuals"`
	Forecasts          []float64       `json:"forecasts"`
	Trace              []ForecastPoint `json:"steps,omitempty"`
	MAPE               float64         `json:"mape"`
	NextPeriodForecast float64         `json:"next_period_forecast"`
	NextPeriodLabel    string          `json:"next_period_label,omitempty"`
}

// BatchResult holds every entity of a batch and their mean accuracy.
type BatchResult struct {
	Alpha       float64            `json:"alpha"`
	Results     map[string]*Result `json:"results"`
	OverallMAPE float64            `json:"overall_mape"`
}

// Aggregator runs the forecast over every entity of a batch.
type Aggregator struct {
	Grouper Grouper
	// WithTrace attaches the step-by-step derivation to each Result.
	WithTrace bool
	// NextPeriodLabel is copied onto each Result for display; it is not parsed.
	NextPeriodLabel string
}

// ComputeBatch forecasts every entity found in observations, with trace.
func ComputeBatch(observations []Observation, alpha float64) (*BatchResult, error) {
	return Aggregator{WithTrace: true}.Compute(observations, alpha)
}

// ComputeSeries forecasts a single, already ordered series. orderKeys may be
// nil; otherwise it labels each value and must match it in length.
func ComputeSeries(values []float64, orderKeys []string, alpha float64, withTrace bool) (*Result, error) {
	if orderKeys != nil && len(orderKeys) != len(values) {
		return nil, invalidInput("%d order keys for %d values", len(orderKeys), len(values))
	}
	s := Series{Values: append([]float64(nil), values...)}
	if orderKeys != nil {
		s.OrderKeys = append([]string(nil), orderKeys...)
	}
	return computeSeries(s, alpha, withTrace)
}

// Compute groups observations and forecasts each entity. A failure on any
// entity fails the whole batch.
func (a Aggregator) Compute(observations []Observation, alpha float64) (*BatchResult, error) {
	series, err := a.Grouper.Group(observations)
	if err != nil {
		return nil, err
	}

	batch := &BatchResult{
		Alpha:   alpha,
		Results: make(map[string]*Result, len(series)),
	}

	var totalMAPE float64
	count := 0
	for _, s := range series {
		result, err := computeSeries(s, alpha, a.WithTrace)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", s.EntityKey, err)
		}
		result.NextPeriodLabel = a.NextPeriodLabel
		batch.Results[s.EntityKey] = result

		if math.IsNaN(result.MAPE) || math.IsInf(result.MAPE, 0) {
			logger.Warn("Entity %s produced non-finite MAPE, excluded from overall", s.EntityKey)
			continue
		}
		totalMAPE += result.MAPE
		count++
	}

	if count > 0 {
		batch.OverallMAPE = totalMAPE / float64(count)
	}

	logger.Debug("Computed batch: observations=%d entities=%d scored=%d alpha=%g overall_mape=%.4f",
		len(observations), len(series), count, alpha, batch.OverallMAPE)

	return batch, nil
}

func computeSeries(s Series, alpha float64, withTrace bool) (*Result, error) {
	if s.Len() == 0 {
		return nil, invalidInput("empty series")
	}

	forecasts, err := Smooth(s.Values, alpha)
	if err != nil {
		return nil, err
	}
	mape, err := MAPE(s.Values, forecasts)
	if err != nil {
		return nil, err
	}
	next, err := NextPeriod(s.Values, forecasts, alpha)
	if err != nil {
		return nil, err
	}

	result := &Result{
		EntityKey:          s.EntityKey,
		OrderKeys:          s.OrderKeys,
		Actuals:            s.Values,
		Forecasts:          forecasts,
		MAPE:               mape,
		NextPeriodForecast: next,
	}
	if withTrace {
		trace, err := BuildTrace(s.Values, forecasts, s.OrderKeys, alpha)
		if err != nil {
			return nil, err
		}
		result.Trace = trace
	}
	return result, nil
}
