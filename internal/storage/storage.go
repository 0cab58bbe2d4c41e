// Package storage provides SQLite-backed persistence for sales, products and
// committed forecast runs.
//
// The database is opened through the pure-Go modernc.org/sqlite driver, so no
// cgo toolchain is needed. Passing ":memory:" as the path gives a throwaway
// database, which is what the tests use.
//
// A forecast run is the set of per-product records produced by one committed
// batch. Runs saved under a project name are kept until the project is deleted;
// anonymous runs are rotated so that at most maxRuns of them are retained.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rewired-gh/salesforecast/internal/forecast"
	"github.com/rewired-gh/salesforecast/internal/models"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Floating point columns are text so that NaN and ±Inf, which an out-of-range
// alpha can produce, survive the round trip; SQLite turns a NaN REAL into NULL.
const schema = `
CREATE TABLE IF NOT EXISTS sales (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	date         TEXT    NOT NULL,
	product_name TEXT    NOT NULL,
	qty          INTEGER NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sales_product ON sales(product_name, date);

CREATE TABLE IF NOT EXISTS products (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT    NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS forecasts (
	id                   TEXT PRIMARY KEY,
	run_id               TEXT    NOT NULL,
	project_name         TEXT    NOT NULL DEFAULT '',
	created_by           TEXT    NOT NULL DEFAULT '',
	created_at           INTEGER NOT NULL,
	alpha                TEXT    NOT NULL,
	product_name         TEXT    NOT NULL,
	dates                TEXT    NOT NULL,
	actuals              TEXT    NOT NULL,
	forecasts            TEXT    NOT NULL,
	steps                TEXT    NOT NULL DEFAULT '[]',
	mape                 TEXT    NOT NULL,
	next_period_forecast TEXT    NOT NULL,
	next_period_label    TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_forecasts_run ON forecasts(run_id);
CREATE INDEX IF NOT EXISTS idx_forecasts_project ON forecasts(project_name);
`

// Storage is a handle on the forecasting database. It is safe for concurrent use.
type Storage struct {
	db      *sql.DB
	maxRuns int
}

// New opens (and if needed creates) the database at dbPath.
// If dbPath is empty, a file in the OS tmp directory is used.
func New(maxRuns int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "salesforecast", "salesforecast.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers anyway, and every :memory: connection would
	// otherwise see its own empty database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Storage{db: db, maxRuns: maxRuns}, nil
}

// Close releases the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

// AddSale inserts a sale and fills in its ID and CreatedAt.
func (s *Storage) AddSale(ctx context.Context, sale *models.Sale) error {
	if err := sale.Validate(); err != nil {
		return fmt.Errorf("invalid sale: %w", err)
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sales (date, product_name, qty, created_at) VALUES (?, ?, ?, ?)`,
		sale.Date, sale.ProductName, sale.Qty, sale.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read sale ID: %w", err)
	}
	sale.ID = id
	return nil
}

// AddSales inserts sales in a single transaction: either every row is stored
// or none is. progress, when non-nil, is called after each inserted row.
func (s *Storage) AddSales(ctx context.Context, sales []models.Sale, progress func()) error {
	for i := range sales {
		if err := sales[i].Validate(); err != nil {
			return fmt.Errorf("invalid sale %d: %w", i+1, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sales (date, product_name, qty, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := range sales {
		sale := &sales[i]
		if sale.CreatedAt.IsZero() {
			sale.CreatedAt = now
		}
		res, err := stmt.ExecContext(ctx, sale.Date, sale.ProductName, sale.Qty, sale.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert sale %d: %w", i+1, err)
		}
		if sale.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("failed to read sale ID: %w", err)
		}
		if progress != nil {
			progress()
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sales: %w", err)
	}
	return nil
}

// GetSales returns the sales of product ordered by date, or of every product
// when product is empty.
func (s *Storage) GetSales(ctx context.Context, product string) ([]models.Sale, error) {
	query := `SELECT id, date, product_name, qty, created_at FROM sales`
	var args []any
	if product != "" {
		query += ` WHERE product_name = ?`
		args = append(args, product)
	}
	query += ` ORDER BY product_name, date, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var sales []models.Sale
	for rows.Next() {
		var (
			sale    models.Sale
			created int64
		)
		if err := rows.Scan(&sale.ID, &sale.Date, &sale.ProductName, &sale.Qty, &created); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sale.CreatedAt = time.Unix(0, created)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sales: %w", err)
	}
	return sales, nil
}

// Observations returns the sales of product (all products when empty) as forecasting input.
func (s *Storage) Observations(ctx context.Context, product string) ([]forecast.Observation, error) {
	sales, err := s.GetSales(ctx, product)
	if err != nil {
		return nil, err
	}
	return models.Observations(sales), nil
}

// DeleteSale removes a sale by ID.
func (s *Storage) DeleteSale(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}
	return expectAffected(res, fmt.Sprintf("sale %d", id))
}

// AddProduct inserts a product and fills in its ID and CreatedAt.
func (s *Storage) AddProduct(ctx context.Context, product *models.Product) error {
	if err := product.Validate(); err != nil {
		return fmt.Errorf("invalid product: %w", err)
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (name, created_at) VALUES (?, ?)`,
		product.Name, product.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert product %s: %w", product.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read product ID: %w", err)
	}
	product.ID = id
	return nil
}

// GetProducts returns every product ordered by name.
func (s *Storage) GetProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var (
			p       models.Product
			created int64
		)
		if err := rows.Scan(&p.ID, &p.Name, &created); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.CreatedAt = time.Unix(0, created)
		products = append(products, p)
	}
	return products, rows.Err()
}

// DeleteProduct removes a product by ID. Its sales are kept.
func (s *Storage) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return expectAffected(res, fmt.Sprintf("product %d", id))
}

// SaveRun stores the records of one run atomically. When the run carries a
// project name, earlier records of that project are replaced.
func (s *Storage) SaveRun(ctx context.Context, records []models.ForecastRecord) error {
	if len(records) == 0 {
		return errors.New("run has no records")
	}
	runID := records[0].RunID
	project := records[0].ProjectName
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return fmt.Errorf("invalid record %s: %w", records[i].ProductName, err)
		}
		if records[i].RunID != runID || records[i].ProjectName != project {
			return errors.New("records must belong to a single run")
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if project != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM forecasts WHERE project_name = ?`, project); err != nil {
			return fmt.Errorf("failed to replace project %s: %w", project, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO forecasts (
		id, run_id, project_name, created_by, created_at, alpha, product_name,
		dates, actuals, forecasts, steps, mape, next_period_forecast, next_period_label
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		dates, actuals, forecasts, steps, err := encodeSeries(r)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", r.ProductName, err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.RunID, r.ProjectName, r.CreatedBy, r.CreatedAt.UnixNano(), formatFloat(r.Alpha), r.ProductName,
			dates, actuals, forecasts, steps, formatFloat(r.MAPE), formatFloat(r.NextPeriodForecast), r.NextPeriodLabel,
		); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.ProductName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetLatestRun returns the records of the most recently committed run.
func (s *Storage) GetLatestRun(ctx context.Context) ([]models.ForecastRecord, error) {
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id FROM forecasts ORDER BY created_at DESC, rowid DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no forecast runs: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}
	return s.queryRecords(ctx, `WHERE run_id = ?`, runID)
}

// GetProject returns the records saved under a project name.
func (s *Storage) GetProject(ctx context.Context, name string) ([]models.ForecastRecord, error) {
	records, err := s.queryRecords(ctx, `WHERE project_name = ?`, name)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("project %s: %w", name, ErrNotFound)
	}
	return records, nil
}

// ListProjects summarises every named project, newest first.
func (s *Storage) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_name, created_by, created_at, alpha, mape FROM forecasts WHERE project_name != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	type acc struct {
		project models.Project
		sum     float64
		scored  int
	}
	byName := make(map[string]*acc)
	for rows.Next() {
		var (
			name, createdBy string
			created         int64
			alphaText       string
			mapeText        string
		)
		if err := rows.Scan(&name, &createdBy, &created, &alphaText, &mapeText); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		alpha, err := parseFloat(alphaText)
		if err != nil {
			return nil, fmt.Errorf("invalid alpha of project %s: %w", name, err)
		}
		mape, err := parseFloat(mapeText)
		if err != nil {
			return nil, fmt.Errorf("invalid MAPE of project %s: %w", name, err)
		}
		a, ok := byName[name]
		if !ok {
			a = &acc{project: models.Project{
				Name:      name,
				CreatedBy: createdBy,
				CreatedAt: time.Unix(0, created),
				Alpha:     alpha,
			}}
			byName[name] = a
		}
		a.project.ForecastCount++
		if isFinite(mape) {
			a.sum += mape
			a.scored++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read projects: %w", err)
	}

	projects := make([]models.Project, 0, len(byName))
	for _, a := range byName {
		if a.scored > 0 {
			a.project.OverallMAPE = a.sum / float64(a.scored)
		}
		projects = append(projects, a.project)
	}
	sort.Slice(projects, func(i, j int) bool {
		if !projects[i].CreatedAt.Equal(projects[j].CreatedAt) {
			return projects[i].CreatedAt.After(projects[j].CreatedAt)
		}
		return projects[i].Name < projects[j].Name
	})
	return projects, nil
}

// RenameProject moves every record of a project to a new name.
func (s *Storage) RenameProject(ctx context.Context, oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return errors.New("new project name must not be empty")
	}

	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM forecasts WHERE project_name = ?`, newName).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check project %s: %w", newName, err)
	}
	if exists > 0 {
		return fmt.Errorf("project %s already exists", newName)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE forecasts SET project_name = ? WHERE project_name = ?`, newName, oldName)
	if err != nil {
		return fmt.Errorf("failed to rename project: %w", err)
	}
	return expectAffected(res, "project "+oldName)
}

// DeleteProject removes every record of a project.
func (s *Storage) DeleteProject(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM forecasts WHERE project_name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	return expectAffected(res, "project "+name)
}

// RotateForecasts deletes the oldest anonymous runs beyond maxRuns.
func (s *Storage) RotateForecasts(ctx context.Context) error {
	if s.maxRuns <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM forecasts
		WHERE project_name = '' AND run_id NOT IN (
			SELECT run_id FROM forecasts
			WHERE project_name = ''
			GROUP BY run_id
			ORDER BY MAX(created_at) DESC
			LIMIT ?
		)`, s.maxRuns)
	if err != nil {
		return fmt.Errorf("failed to rotate forecasts: %w", err)
	}
	return nil
}

func (s *Storage) queryRecords(ctx context.Context, where string, args ...any) ([]models.ForecastRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, run_id, project_name, created_by, created_at, alpha, product_name,
		dates, actuals, forecasts, steps, mape, next_period_forecast, next_period_label
		FROM forecasts `+where+` ORDER BY product_name`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	var records []models.ForecastRecord
	for rows.Next() {
		var (
			r                                models.ForecastRecord
			created                          int64
			dates, actuals, forecasts, steps string
			alpha, mape, next                string
		)
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.ProjectName, &r.CreatedBy, &created, &alpha, &r.ProductName,
			&dates, &actuals, &forecasts, &steps, &mape, &next, &r.NextPeriodLabel,
		); err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		r.CreatedAt = time.Unix(0, created)
		var err error
		if r.Alpha, err = parseFloat(alpha); err != nil {
			return nil, fmt.Errorf("failed to decode forecast %s: %w", r.ID, err)
		}
		if r.MAPE, err = parseFloat(mape); err != nil {
			return nil, fmt.Errorf("failed to decode forecast %s: %w", r.ID, err)
		}
		if r.NextPeriodForecast, err = parseFloat(next); err != nil {
			return nil, fmt.Errorf("failed to decode forecast %s: %w", r.ID, err)
		}
		if err := decodeSeries(&r, dates, actuals, forecasts, steps); err != nil {
			return nil, fmt.Errorf("failed to decode forecast %s: %w", r.ID, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read forecasts: %w", err)
	}
	return records, nil
}

func encodeSeries(r models.ForecastRecord) (dates, actuals, forecasts, steps string, err error) {
	parts := []any{r.Dates, forecast.Floats(r.Actuals), forecast.Floats(r.Forecasts), r.Steps}
	out := make([]string, len(parts))
	for i, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			return "", "", "", "", err
		}
		out[i] = string(b)
	}
	if r.Steps == nil {
		out[3] = "[]"
	}
	return out[0], out[1], out[2], out[3], nil
}

func decodeSeries(r *models.ForecastRecord, dates, actuals, forecasts, steps string) error {
	if err := json.Unmarshal([]byte(dates), &r.Dates); err != nil {
		return err
	}
	var a, f []forecast.Float
	if err := json.Unmarshal([]byte(actuals), &a); err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(forecasts), &f); err != nil {
		return err
	}
	r.Actuals, r.Forecasts = forecast.Float64s(a), forecast.Float64s(f)
	if err := json.Unmarshal([]byte(steps), &r.Steps); err != nil {
		return err
	}
	if len(r.Steps) == 0 {
		r.Steps = nil
	}
	return nil
}

func expectAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// formatFloat writes NaN and ±Inf as "NaN", "+Inf" and "-Inf", which
// parseFloat reads back.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
