package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rewired-gh/salesforecast/internal/logger"
	"github.com/rewired-gh/salesforecast/internal/models"
)

// ClientConfig holds the retry behaviour of the HTTP sales feed.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Client fetches sales from an HTTP endpoint serving
// {"data": [{"date": ..., "product_name": ..., "qty": ...}, ...]}.
type Client struct {
	url            string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

type salesPayload struct {
	Data []struct {
		Date        string `json:"date"`
		ProductName string `json:"product_name"`
		Qty         int    `json:"qty"`
	} `json:"data"`
}

// NewClient creates a new sales feed client
func NewClient(url string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	return &Client{
		url:            url,
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// FetchSales downloads and validates the feed.
func (c *Client) FetchSales(ctx context.Context) ([]models.Sale, error) {
	resp, err := c.doRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sales: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var payload salesPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode sales: %w", err)
	}

	sales := make([]models.Sale, 0, len(payload.Data))
	var errs []error
	for i, d := range payload.Data {
		sale := models.Sale{Date: d.Date, ProductName: d.ProductName, Qty: d.Qty}
		if err := sale.Validate(); err != nil {
			errs = append(errs, RowError{Row: i + 1, Err: err})
			continue
		}
		sales = append(sales, sale)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	logger.Debug("Fetched %d sales from %s", len(sales), c.url)
	return sales, nil
}

// doRequest performs the GET, retrying transport errors and 5xx responses
// with a linearly growing delay.
func (c *Client) doRequest(ctx context.Context) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			logger.Warn("Sales feed request failed (attempt %d/%d): %v", i+1, c.maxRetries, err)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			logger.Warn("Sales feed returned %d (attempt %d/%d)", resp.StatusCode, i+1, c.maxRetries)
			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
