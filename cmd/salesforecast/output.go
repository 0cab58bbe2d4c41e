package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/rewired-gh/salesforecast/internal/forecast"
	"github.com/rewired-gh/salesforecast/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func formatPct(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v)
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func printBatch(w io.Writer, batch *forecast.BatchResult, withTrace bool) {
	keys := make([]string, 0, len(batch.Results))
	for k := range batch.Results {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tPOINTS\tMAPE\tNEXT")
	for _, k := range keys {
		r := batch.Results[k]
		next := formatQty(r.NextPeriodForecast)
		if r.NextPeriodLabel != "" {
			next += " (" + r.NextPeriodLabel + ")"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", k, len(r.Actuals), formatPct(r.MAPE), next)
	}
	tw.Flush()

	fmt.Fprintf(w, "\nalpha %s, overall MAPE %s\n", strconv.FormatFloat(batch.Alpha, 'g', -1, 64), formatPct(batch.OverallMAPE))

	if !withTrace {
		return
	}
	for _, k := range keys {
		fmt.Fprintf(w, "\n== %s ==\n", k)
		printTrace(w, batch.Results[k].Trace)
	}
}

func printTrace(w io.Writer, steps []forecast.ForecastPoint) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tDATE\tACTUAL\tFORECAST\tCALCULATION\tERROR %")
	for _, p := range steps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			p.Period, p.OrderKey, formatQty(p.Actual), formatQty(p.Forecast), p.Calculation, formatPct(p.ErrorPct))
	}
	tw.Flush()
}

func printRecords(w io.Writer, records []models.ForecastRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No forecasts")
		return
	}
	first := records[0]
	name := first.ProjectName
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(w, "Run %s  project %s  alpha %s  %s\n\n",
		first.RunID, name, strconv.FormatFloat(first.Alpha, 'g', -1, 64), first.CreatedAt.Format(timeLayout))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PRODUCT\tPOINTS\tLAST DATE\tMAPE\tNEXT")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n",
			r.ProductName, len(r.Actuals), r.Dates[len(r.Dates)-1], formatPct(r.MAPE), formatQty(r.NextPeriodForecast))
	}
	tw.Flush()
}

func printProjects(w io.Writer, projects []models.Project) {
	if len(projects) == 0 {
		fmt.Fprintln(w, "No projects")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCREATED\tBY\tALPHA\tPRODUCTS\tMAPE")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			p.Name, p.CreatedAt.Format(timeLayout), p.CreatedBy,
			strconv.FormatFloat(p.Alpha, 'g', -1, 64), p.ForecastCount, formatPct(p.OverallMAPE))
	}
	tw.Flush()
}

func printSales(w io.Writer, sales []models.Sale) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tPRODUCT\tQTY")
	for _, s := range sales {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", s.ID, s.Date, s.ProductName, s.Qty)
	}
	tw.Flush()
}

func printProducts(w io.Writer, products []models.Product) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREATED")
	for _, p := range products {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Name, p.CreatedAt.Format(timeLayout))
	}
	tw.Flush()
}
