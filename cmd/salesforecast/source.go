package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rewired-gh/salesforecast/internal/config"
	"github.com/rewired-gh/salesforecast/internal/ingest"
	"github.com/rewired-gh/salesforecast/internal/models"
)

// readSales loads sales from a non-database source.
func readSales(ctx context.Context, src config.SourceConfig) ([]models.Sale, error) {
	switch src.Type {
	case "csv":
		return ingest.LoadCSV(src.Path)
	case "xlsx":
		return ingest.LoadXLSX(src.Path, src.Sheet)
	case "http":
		client := ingest.NewClient(src.URL, src.Timeout, ingest.ClientConfig{
			MaxRetries:     src.MaxRetries,
			RetryDelayBase: src.RetryDelayBase,
		})
		return client.FetchSales(ctx)
	default:
		return nil, fmt.Errorf("source %q cannot be read directly", src.Type)
	}
}

// fileSource picks the loader for an explicit file from its extension.
func fileSource(path, sheet string) config.SourceConfig {
	src := config.SourceConfig{Type: "csv", Path: path, Sheet: sheet}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		src.Type = "xlsx"
	}
	return src
}
