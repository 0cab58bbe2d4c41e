package forecast

import (
	"encoding/json"
	"math"
	"strconv"
)

// Float is a float64 whose JSON form survives NaN and ±Inf, which
// encoding/json refuses. Non-finite values are written as the strings
// "NaN", "+Inf" and "-Inf"; finite values stay plain JSON numbers.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte(strconv.Quote(strconv.FormatFloat(v, 'g', -1, 64))), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

func (f *Float) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) > 0 && s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		s = unquoted
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}

// Floats converts values for JSON encoding.
func Floats(values []float64) []Float {
	if values == nil {
		return nil
	}
	out := make([]Float, len(values))
	for i, v := range values {
		out[i] = Float(v)
	}
	return out
}

// Float64s is the inverse of Floats.
func Float64s(values []Float) []float64 {
	if values == nil {
		return nil
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

type pointJSON struct {
	Period       int    `json:"period"`
	OrderKey     string `json:"date"`
	Actual       Float  `json:"actual"`
	Forecast     Float  `json:"forecast"`
	Alpha        Float  `json:"alpha"`
	PrevActual   Float  `json:"prev_actual"`
	PrevForecast Float  `json:"prev_forecast"`
	Formula      string `json:"formula"`
	Calculation  string `json:"calculation"`
	Result       Float  `json:"result"`
	Error        Float  `json:"error"`
	ErrorPct     Float  `json:"error_pct"`
}

func (p ForecastPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(pointJSON{
		Period:       p.Period,
		OrderKey:     p.OrderKey,
		Actual:       Float(p.Actual),
		Forecast:     Float(p.Forecast),
		Alpha:        Float(p.Alpha),
		PrevActual:   Float(p.PrevActual),
		PrevForecast: Float(p.PrevForecast),
		Formula:      p.Formula,
		Calculation:  p.Calculation,
		Result:       Float(p.Result),
		Error:        Float(p.Error),
		ErrorPct:     Float(p.ErrorPct),
	})
}

func (p *ForecastPoint) UnmarshalJSON(data []byte) error {
	var v pointJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = ForecastPoint{
		Period:       v.Period,
		OrderKey:     v.OrderKey,
		Actual:       float64(v.Actual),
		Forecast:     float64(v.Forecast),
		Alpha:        float64(v.Alpha),
		PrevActual:   float64(v.PrevActual),
		PrevForecast: float64(v.PrevForecast),
		Formula:      v.Formula,
		Calculation:  v.Calculation,
		Result:       float64(v.Result),
		Error:        float64(v.Error),
		ErrorPct:     float64(v.ErrorPct),
	}
	return nil
}

type resultJSON struct {
	EntityKey          string          `json:"entity_key"`
	OrderKeys          []string        `json:"dates"`
	Actuals            []Float         `json:"actuals"`
	Forecasts          []Float         `json:"forecasts"`
	Trace              []ForecastPoint `json:"steps,omitempty"`
	MAPE               Float           `json:"mape"`
	NextPeriodForecast Float           `json:"next_period_forecast"`
	NextPeriodLabel    string          `json:"next_period_label,omitempty"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		EntityKey:          r.EntityKey,
		OrderKeys:          r.OrderKeys,
		Actuals:            Floats(r.Actuals),
		Forecasts:          Floats(r.Forecasts),
		Trace:              r.Trace,
		MAPE:               Float(r.MAPE),
		NextPeriodForecast: Float(r.NextPeriodForecast),
		NextPeriodLabel:    r.NextPeriodLabel,
	})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var v resultJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = Result{
		EntityKey:          v.EntityKey,
		OrderKeys:          v.OrderKeys,
		Actuals:            Float64s(v.Actuals),
		Forecasts:          Float64s(v.Forecasts),
		Trace:              v.Trace,
		MAPE:               float64(v.MAPE),
		NextPeriodForecast: float64(v.NextPeriodForecast),
		NextPeriodLabel:    v.NextPeriodLabel,
	}
	return nil
}

type batchJSON struct {
	Alpha       Float              `json:"alpha"`
	Results     map[string]*Result `json:"results"`
	OverallMAPE Float              `json:"overall_mape"`
}

func (b BatchResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(batchJSON{
		Alpha:       Float(b.Alpha),
		Results:     b.Results,
		OverallMAPE: Float(b.OverallMAPE),
	})
}

func (b *BatchResult) UnmarshalJSON(data []byte) error {
	var v batchJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = BatchResult{
		Alpha:       float64(v.Alpha),
		Results:     v.Results,
		OverallMAPE: float64(v.OverallMAPE),
	}
	return nil
}
