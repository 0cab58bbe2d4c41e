package forecast

import "fmt"

// InvalidInputError is returned when a batch or series cannot be forecast at all,
// e.g. an empty observation collection or an empty series.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// DimensionMismatchError is returned when actual and forecast series differ in length.
type DimensionMismatchError struct {
	Actual   int
	Forecast int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: %d actuals vs %d forecasts", e.Actual, e.Forecast)
}

func invalidInput(format string, args ...interface{}) error {
	return &InvalidInputError{Reason: fmt.Sprintf(format, args...)}
}
