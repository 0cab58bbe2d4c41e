package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/salesforecast/internal/forecast"
)

// ForecastRecord is the persisted forecast of one product from a committed run.
// Records of the same run share RunID; records saved under a project name can
// be listed and reopened later.
type ForecastRecord struct {
	ID                 string                   `json:"id"`
	RunID              string                   `json:"run_id"`
	ProjectName        string                   `json:"project_name,omitempty"`
	CreatedBy          string                   `json:"created_by,omitempty"`
	CreatedAt          time.Time                `json:"created_at"`
	Alpha              float64                  `json:"alpha"`
	ProductName        string                   `json:"product_name"`
	Dates              []string                 `json:"dates"`
	Actuals            []float64                `json:"actuals"`
	Forecasts          []float64                `json:"forecasts"`
	Steps              []forecast.ForecastPoint `json:"steps,omitempty"`
	MAPE               float64                  `json:"mape"`
	NextPeriodForecast float64                  `json:"next_period_forecast"`
	NextPeriodLabel    string                   `json:"next_period_label,omitempty"`
}

// Validate checks that all record fields are valid
func (r *ForecastRecord) Validate() error {
	if r.ID == "" {
		return errors.New("record ID must not be empty")
	}
	if r.RunID == "" {
		return errors.New("run ID must not be empty")
	}
	if r.ProductName == "" {
		return errors.New("product name must not be empty")
	}
	if len(r.Actuals) == 0 {
		return errors.New("actuals must not be empty")
	}
	if len(r.Forecasts) != len(r.Actuals) {
		return fmt.Errorf("forecasts length %d must equal actuals length %d", len(r.Forecasts), len(r.Actuals))
	}
	if len(r.Dates) != len(r.Actuals) {
		return fmt.Errorf("dates length %d must equal actuals length %d", len(r.Dates), len(r.Actuals))
	}
	if r.Forecasts[0] != r.Actuals[0] {
		return errors.New("first forecast must equal first actual")
	}
	if r.CreatedAt.After(time.Now()) {
		return errors.New("created at must not be in the future")
	}
	return nil
}

// RunMeta describes who committed a run and under which project.
type RunMeta struct {
	ProjectName string
	CreatedBy   string
	CreatedAt   time.Time
}

// RecordsFromBatch turns a computed batch into records sharing a fresh run ID,
// ordered by product name.
func RecordsFromBatch(batch *forecast.BatchResult, meta RunMeta) []ForecastRecord {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	runID := uuid.New().String()

	names := make([]string, 0, len(batch.Results))
	for name := range batch.Results {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]ForecastRecord, 0, len(names))
	for _, name := range names {
		res := batch.Results[name]
		records = append(records, ForecastRecord{
			ID:                 uuid.New().String(),
			RunID:              runID,
			ProjectName:        meta.ProjectName,
			CreatedBy:          meta.CreatedBy,
			CreatedAt:          meta.CreatedAt,
			Alpha:              batch.Alpha,
			ProductName:        name,
			Dates:              res.OrderKeys,
			Actuals:            res.Actuals,
			Forecasts:          res.Forecasts,
			Steps:              res.Trace,
			MAPE:               res.MAPE,
			NextPeriodForecast: res.NextPeriodForecast,
			NextPeriodLabel:    res.NextPeriodLabel,
		})
	}
	return records
}

// Project summarises the records saved under one project name.
type Project struct {
	Name          string    `json:"project_name"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedBy     string    `json:"created_by"`
	Alpha         float64   `json:"alpha"`
	ForecastCount int       `json:"forecast_count"`
	OverallMAPE   float64   `json:"overall_mape"`
}
