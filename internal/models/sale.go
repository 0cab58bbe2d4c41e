// Package models defines the core domain entities for the sales forecasting tools.
// Sales are the raw daily quantities per product; forecast records are the
// persisted outcome of a committed forecasting run.
// All models include built-in validation to ensure data integrity throughout the application.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/salesforecast/internal/forecast"
)

// Sale is the quantity of one product sold on one date.
//
// Date is kept as a string (YYYY-MM-DD) and ordered as such when series are
// built, so Validate rejects any other form.
type Sale struct {
	ID          int64     `json:"id"`
	Date        string    `json:"date"`
	ProductName string    `json:"product_name"`
	Qty         int       `json:"qty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DateLayout is the only accepted sale date form. It sorts chronologically as a string.
const DateLayout = "2006-01-02"

// Validate checks that all sale fields are valid
func (s *Sale) Validate() error {
	if strings.TrimSpace(s.Date) == "" {
		return errors.New("sale date must not be empty")
	}
	if _, err := time.Parse(DateLayout, s.Date); err != nil {
		return fmt.Errorf("sale date %q must be YYYY-MM-DD", s.Date)
	}
	if strings.TrimSpace(s.ProductName) == "" {
		return errors.New("product name must not be empty")
	}
	if s.Qty < 0 {
		return errors.New("quantity must not be negative")
	}
	return nil
}

// Observation converts the sale into forecasting input.
func (s *Sale) Observation() forecast.Observation {
	return forecast.Observation{
		EntityKey: s.ProductName,
		OrderKey:  s.Date,
		Value:     float64(s.Qty),
	}
}

// Observations converts a slice of sales.
func Observations(sales []Sale) []forecast.Observation {
	out := make([]forecast.Observation, len(sales))
	for i := range sales {
		out[i] = sales[i].Observation()
	}
	return out
}

// Product is a sellable item that sales may refer to.
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that all product fields are valid
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("product name must not be empty")
	}
	return nil
}
