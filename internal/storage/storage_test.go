package storage

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/salesforecast/internal/forecast"
	"github.com/rewired-gh/salesforecast/internal/models"
)

func mustStorage(t *testing.T, maxRuns int) *Storage {
	t.Helper()
	s, err := New(maxRuns, ":memory:")
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedSales(t *testing.T, s *Storage) {
	t.Helper()
	sales := []models.Sale{
		{Date: "2024-05-03", ProductName: "Soto Ayam", Qty: 30},
		{Date: "2024-05-01", ProductName: "Soto Ayam", Qty: 10},
		{Date: "2024-05-02", ProductName: "Soto Ayam", Qty: 20},
		{Date: "2024-05-01", ProductName: "Es Teh", Qty: 40},
		{Date: "2024-05-02", ProductName: "Es Teh", Qty: 0},
	}
	if err := s.AddSales(context.Background(), sales, nil); err != nil {
		t.Fatalf("AddSales failed: %v", err)
	}
}

func runRecords(t *testing.T, s *Storage, meta models.RunMeta) []models.ForecastRecord {
	t.Helper()
	obs, err := s.Observations(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	batch, err := forecast.ComputeBatch(obs, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	return models.RecordsFromBatch(batch, meta)
}

func TestStorage_Sales(t *testing.T) {
	s := mustStorage(t, 10)
	ctx := context.Background()

	sale := &models.Sale{Date: "2024-05-01", ProductName: "Nasi Lele", Qty: 7}
	if err := s.AddSale(ctx, sale); err != nil {
		t.Fatalf("AddSale failed: %v", err)
	}
	if sale.ID == 0 || sale.CreatedAt.IsZero() {
		t.Errorf("ID and CreatedAt must be filled in: %+v", sale)
	}

	seedSales(t, s)

	all, err := s.GetSales(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 sales, got %d", len(all))
	}

	soto, err := s.GetSales(ctx, "Soto Ayam")
	if err != nil {
		t.Fatal(err)
	}
	if len(soto) != 3 || soto[0].Date != "2024-05-01" || soto[2].Qty != 30 {
		t.Errorf("unexpected Soto Ayam sales: %+v", soto)
	}

	if err := s.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("DeleteSale failed: %v", err)
	}
	if err := s.DeleteSale(ctx, sale.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStorage_AddSalesIsAtomic(t *testing.T) {
	s := mustStorage(t, 10)
	ctx := context.Background()

	bad := []models.Sale{
		{Date: "2024-05-01", ProductName: "Es Jeruk", Qty: 1},
		{Date: "2024-05-02", ProductName: "", Qty: 1},
	}
	if err := s.AddSales(ctx, bad, nil); err == nil {
		t.Fatal("expected validation error")
	}
	sales, err := s.GetSales(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 0 {
		t.Errorf("expected no sales after failed import, got %d", len(sales))
	}

	calls := 0
	good := []models.Sale{
		{Date: "2024-05-01", ProductName: "Es Jeruk", Qty: 1},
		{Date: "2024-05-02", ProductName: "Es Jeruk", Qty: 2},
	}
	if err := s.AddSales(ctx, good, func() { calls++ }); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected 2 progress calls, got %d", calls)
	}
	if good[0].ID == 0 || good[1].ID == 0 {
		t.Error("IDs must be filled in")
	}
}

func TestStorage_Products(t *testing.T) {
	s := mustStorage(t, 10)
	ctx := context.Background()

	for _, name := range []string{"Nasi Goreng Jawa", "Es Teh"} {
		if err := s.AddProduct(ctx, &models.Product{Name: name}); err != nil {
			t.Fatalf("AddProduct(%s) failed: %v", name, err)
		}
	}
	if err := s.AddProduct(ctx, &models.Product{Name: "Es Teh"}); err == nil {
		t.Error("expected duplicate product error")
	}

	products, err := s.GetProducts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 2 || products[0].Name != "Es Teh" {
		t.Fatalf("unexpected products: %+v", products)
	}

	if err := s.DeleteProduct(ctx, products[0].ID); err != nil {
		t.Fatalf("DeleteProduct failed: %v", err)
	}
	if err := s.DeleteProduct(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStorage_SaveAndLoadRun(t *testing.T) {
	s := mustStorage(t, 10)
	ctx := context.Background()
	seedSales(t, s)

	records := runRecords(t, s, models.RunMeta{CreatedBy: "owner", CreatedAt: time.Now().Add(-time.Minute)})
	if err := s.SaveRun(ctx, records); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	latest, err := s.GetLatestRun(ctx)
	if err != nil {
		t.Fatalf("GetLatestRun failed: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 records, got %d", len(latest))
	}

	soto := latest[1]
	if soto.ProductName != "Soto Ayam" {
		t.Fatalf("unexpected order: %s", soto.ProductName)
	}
	want := []float64{10, 10, 15}
	for i, f := range want {
		if soto.Forecasts[i] != f {
			t.Errorf("forecast[%d] = %v, want %v", i, soto.Forecasts[i], f)
		}
	}
	if soto.NextPeriodForecast != 22.5 {
		t.Errorf("next = %v, want 22.5", soto.NextPeriodForecast)
	}
	if len(soto.Steps) != 3 || soto.Steps[2].Calculation != "0.5 × 20 + 0.5 × 10" {
		t.Errorf("steps not round-tripped: %+v", soto.Steps)
	}
	if soto.Dates[0] != "2024-05-01" {
		t.Errorf("dates not round-tripped: %v", soto.Dates)
	}
}

func TestStorage_LatestRunEmpty(t *testing.T) {
	s := mustStorage(t, 10)
	if _, err := s.GetLatestRun(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStorage_Projects(t *testing.T) {
	s := mustStorage(t, 10)
	ctx := context.Background()
	seedSales(t, s)

	first := runRecords(t, s, models.RunMeta{ProjectName: "Q1", CreatedBy: "admin", CreatedAt: time.Now().Add(-2 * time.Hour)})
	if err := s.SaveRun(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := runRecords(t, s, models.RunMeta{ProjectName: "Q2", CreatedBy: "admin", CreatedAt: time.Now().Add(-time.Hour)})
	if err := s.SaveRun(ctx, second); err != nil {
		t.Fatal(err)
	}

	projects, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(projects) != 2 || projects[0].Name != "Q2" {
		t.Fatalf("unexpected projects: %+v", projects)
	}
	if projects[0].ForecastCount != 2 || projects[0].Alpha != 0.5 {
		t.Errorf("unexpected summary: %+v", projects[0])
	}
	wantMAPE := (first[0].MAPE + first[1].MAPE) / 2
	if diff := projects[1].OverallMAPE - wantMAPE; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("OverallMAPE = %v, want %v", projects[1].OverallMAPE, wantMAPE)
	}

	// Saving under an existing name replaces the project.
	again := runRecords(t, s, models.RunMeta{ProjectName: "Q1", CreatedAt: time.Now().Add(-time.Minute)})
	if err := s.SaveRun(ctx, again); err != nil {
		t.Fatal(err)
	}
	q1, err := s.GetProject(ctx, "Q1")
	if err != nil {
		t.Fatal(err)
	}
	if len(q1) != 2 || q1[0].RunID != again[0].RunID {
		t.Errorf("project not replaced: %+v", q1)
	}

	if err := s.RenameProject(ctx, "Q1", "Q2"); err == nil {
		t.Error("expected error renaming onto an existing project")
	}
	if err := s.RenameProject(ctx, "Q1", "Q3"); err != nil {
		t.Fatalf("RenameProject failed: %v", err)
	}
	if _, err := s.GetProject(ctx, "Q1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for renamed project, got %v", err)
	}

	if err := s.DeleteProject(ctx, "Q3"); err != nil {
		t.Fatalf("DeleteProject failed: %v", err)
	}
	if err := s.DeleteProject(ctx, "Q3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStorage_RotateForecasts(t *testing.T) {
	s := mustStorage(t, 2)
	ctx := context.Background()
	seedSales(t, s)

	base := time.Now().Add(-time.Hour)
	var runIDs []string
	for i := 0; i < 4; i++ {
		records := runRecords(t, s, models.RunMeta{CreatedAt: base.Add(time.Duration(i) * time.Minute)})
		if err := s.SaveRun(ctx, records); err != nil {
			t.Fatal(err)
		}
		runIDs = append(runIDs, records[0].RunID)
	}
	project := runRecords(t, s, models.RunMeta{ProjectName: "keep", CreatedAt: base.Add(-time.Hour)})
	if err := s.SaveRun(ctx, project); err != nil {
		t.Fatal(err)
	}

	if err := s.RotateForecasts(ctx); err != nil {
		t.Fatalf("RotateForecasts failed: %v", err)
	}

	var runs int
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT run_id) FROM forecasts WHERE project_name = ''`).Scan(&runs); err != nil {
		t.Fatal(err)
	}
	if runs != 2 {
		t.Errorf("expected 2 anonymous runs after rotation, got %d", runs)
	}

	latest, err := s.GetLatestRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest[0].RunID != runIDs[3] {
		t.Errorf("latest run was rotated away")
	}
	if _, err := s.GetProject(ctx, "keep"); err != nil {
		t.Errorf("named project must survive rotation: %v", err)
	}
}

func TestStorage_FilePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sales.db")
	s, err := New(5, path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	seedSales(t, s)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(5, path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	sales, err := reopened.GetSales(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(sales) != 5 {
		t.Errorf("expected 5 persisted sales, got %d", len(sales))
	}
}

func TestStorage_NonFiniteRun(t *testing.T) {
	s := mustStorage(t, 10)
	ctx := context.Background()

	batch, err := forecast.ComputeBatch([]forecast.Observation{
		{EntityKey: "a", OrderKey: "1", Value: 10},
		{EntityKey: "a", OrderKey: "2", Value: 20},
		{EntityKey: "a", OrderKey: "3", Value: 30},
	}, 1e308)
	if err != nil {
		t.Fatalf("ComputeBatch failed: %v", err)
	}

	records := models.RecordsFromBatch(batch, models.RunMeta{ProjectName: "overflow"})
	if err := s.SaveRun(ctx, records); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	loaded, err := s.GetProject(ctx, "overflow")
	if err != nil {
		t.Fatalf("GetProject failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 record, got %d", len(loaded))
	}
	r := loaded[0]
	if r.Alpha != 1e308 {
		t.Errorf("alpha = %v, want 1e308", r.Alpha)
	}
	if r.Forecasts[0] != 10 || !math.IsNaN(r.Forecasts[1]) || !math.IsNaN(r.Forecasts[2]) {
		t.Errorf("unexpected forecasts: %v", r.Forecasts)
	}
	if !math.IsNaN(r.MAPE) || !math.IsNaN(r.NextPeriodForecast) {
		t.Errorf("expected NaN MAPE and next period, got %v / %v", r.MAPE, r.NextPeriodForecast)
	}
	if len(r.Steps) != 3 || !math.IsNaN(r.Steps[2].Forecast) {
		t.Errorf("unexpected steps: %+v", r.Steps)
	}

	projects, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects failed: %v", err)
	}
	if len(projects) != 1 || projects[0].OverallMAPE != 0 || projects[0].Alpha != 1e308 {
		t.Errorf("unexpected projects: %+v", projects)
	}
}

func TestFormatFloat_RoundTrip(t *testing.T) {
	for _, v := range []float64{0, 0.1, -2.5, 1e308, math.Inf(1), math.Inf(-1)} {
		got, err := parseFloat(formatFloat(v))
		if err != nil || got != v {
			t.Errorf("round trip of %v gave %v (%v)", v, got, err)
		}
	}
	got, err := parseFloat(formatFloat(math.NaN()))
	if err != nil || !math.IsNaN(got) {
		t.Errorf("round trip of NaN gave %v (%v)", got, err)
	}
}
