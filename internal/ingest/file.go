// Package ingest reads sales from outside the database: CSV exports, Excel
// workbooks and an HTTP JSON feed. Every loader returns validated
// []models.Sale; a file with any bad row is rejected as a whole.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rewired-gh/salesforecast/internal/models"
	"github.com/xuri/excelize/v2"
)

// Header is the column layout expected in CSV files and workbooks.
var Header = []string{"date", "product_name", "qty"}

// RowError reports a problem with one input row (1-based, header included).
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// LoadCSV reads sales from a CSV file with a date,product_name,qty header.
func LoadCSV(path string) ([]models.Sale, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sales file %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read sales CSV: %w", err)
	}
	return parseRows(records)
}

// LoadXLSX reads sales from a workbook sheet laid out like the CSV format.
// An empty sheet name selects the first sheet.
func LoadXLSX(path, sheet string) ([]models.Sale, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	// Raw values keep date cells as serial numbers instead of the locale
	// dependent display text, so they can be converted to YYYY-MM-DD.
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	date1904 := false
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		date1904 = *props.Date1904
	}
	for i := 1; i < len(rows); i++ {
		if len(rows[i]) > 0 {
			rows[i][0] = excelDate(rows[i][0], date1904)
		}
	}
	return parseRows(rows)
}

// excelDate turns a date serial into YYYY-MM-DD. Text cells are returned
// unchanged and left to Sale.Validate.
func excelDate(cell string, date1904 bool) string {
	serial, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return cell
	}
	t, err := excelize.ExcelDateToTime(serial, date1904)
	if err != nil {
		return cell
	}
	return t.Format(models.DateLayout)
}

func parseRows(rows [][]string) ([]models.Sale, error) {
	if len(rows) < 2 {
		return nil, errors.New("sales data must have a header and at least one row")
	}
	if !validateHeader(rows[0]) {
		return nil, fmt.Errorf("sales header mismatch. Expected: %v, Got: %v", Header, rows[0])
	}

	var (
		sales []models.Sale
		errs  []error
	)
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		sale, err := parseSale(row)
		if err != nil {
			errs = append(errs, RowError{Row: i + 2, Err: err})
			continue
		}
		sales = append(sales, sale)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if len(sales) == 0 {
		return nil, errors.New("sales data has no rows")
	}
	return sales, nil
}

func parseSale(row []string) (models.Sale, error) {
	if len(row) < len(Header) {
		return models.Sale{}, fmt.Errorf("expected %d columns, got %d", len(Header), len(row))
	}
	qty, err := strconv.Atoi(strings.TrimSpace(row[2]))
	if err != nil {
		return models.Sale{}, fmt.Errorf("invalid qty %q", row[2])
	}
	sale := models.Sale{
		Date:        strings.TrimSpace(row[0]),
		ProductName: strings.TrimSpace(row[1]),
		Qty:         qty,
	}
	if err := sale.Validate(); err != nil {
		return models.Sale{}, err
	}
	return sale, nil
}

func validateHeader(header []string) bool {
	if len(header) < len(Header) {
		return false
	}
	for i, col := range Header {
		if !strings.EqualFold(strings.TrimSpace(header[i]), col) {
			return false
		}
	}
	return true
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
