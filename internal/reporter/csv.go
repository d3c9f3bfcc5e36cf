package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"forecast-reconciliation-service/internal/reconciler"
)

var csvHeaders = []string{
	"Type",
	"Project",
	"Rubro",
	"Line_Item",
	"Month",
	"Category",
	"Is_Labor",
	"Planned",
	"Forecast",
	"Actual",
	"Variance",
	"Variance_Actual",
	"Data_Source",
	"Notes",
}

// generateCSVReport writes one row per forecast cell followed by one row per
// unmatched invoice
func (rg *ReportGenerator) generateCSVReport(results []*reconciler.Result, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, result := range results {
		if rg.config.IncludeCells {
			for _, c := range rg.selectCells(result) {
				variance := ""
				if c.VarianceActual.Valid {
					variance = c.VarianceActual.Decimal.StringFixed(2)
				}
				record := []string{
					"Forecast Cell",
					result.ProjectID,
					c.CostLineID,
					c.LineItemID,
					strconv.Itoa(c.Month),
					c.Category,
					strconv.FormatBool(c.IsLabor),
					c.Planned.StringFixed(2),
					c.Forecast.StringFixed(2),
					c.Actual.StringFixed(2),
					c.Variance.StringFixed(2),
					variance,
					string(c.DataSource),
					c.Description,
				}
				if err := csvWriter.Write(record); err != nil {
					return fmt.Errorf("failed to write cell record: %w", err)
				}
			}
		}

		if rg.config.IncludeUnmatched {
			for _, inv := range result.UnmatchedInvoices {
				amount := ""
				if inv.Amount.Valid {
					amount = inv.Amount.Decimal.StringFixed(2)
				}
				record := []string{
					"Unmatched Invoice",
					result.ProjectID,
					strings.Join(inv.Identifiers(), "|"),
					inv.ID,
					strconv.Itoa(inv.Month()),
					"",
					"",
					"",
					"",
					amount,
					"",
					"",
					"",
					strings.TrimSpace(inv.Status + " " + inv.Description),
				}
				if err := csvWriter.Write(record); err != nil {
					return fmt.Errorf("failed to write unmatched invoice record: %w", err)
				}
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
