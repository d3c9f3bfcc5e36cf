package reporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"forecast-reconciliation-service/internal/reconciler"
)

const (
	sheetProjects  = "Projects"
	sheetCells     = "Cells"
	sheetUnmatched = "Unmatched"
	sheetErrors    = "Errors"
)

// generateSpreadsheet writes an xlsx workbook with a summary sheet and, as
// configured, the cells, unmatched invoices and record errors
func (rg *ReportGenerator) generateSpreadsheet(results []*reconciler.Result, batch *reconciler.BatchResult, writer io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetProjects); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	w := &sheetWriter{file: f, headerStyle: headerStyle}

	w.header(sheetProjects, "Project", "Status", "Data Source", "Cells", "Planned", "Forecast", "Actual",
		"Matched", "Unmatched", "First Month", "Last Month", "Error")
	if batch != nil {
		for _, o := range batch.Outcomes {
			if o.Result == nil {
				w.row(sheetProjects, o.ProjectID, "failed", "", "", "", "", "", "", "", "", "", o.Error)
				continue
			}
			w.row(sheetProjects, summaryRow(o.Result)...)
		}
	} else {
		for _, result := range results {
			w.row(sheetProjects, summaryRow(result)...)
		}
	}

	if rg.config.IncludeCells {
		if _, err := f.NewSheet(sheetCells); err != nil {
			return fmt.Errorf("failed to create cells sheet: %w", err)
		}
		w.header(sheetCells, "Project", "Rubro", "Line Item", "Month", "Category", "Description", "Labor",
			"Planned", "Forecast", "Actual", "Variance", "Variance Actual", "Data Source")
		for _, result := range results {
			for _, c := range rg.selectCells(result) {
				var varianceActual interface{}
				if c.VarianceActual.Valid {
					varianceActual = c.VarianceActual.Decimal.InexactFloat64()
				}
				w.row(sheetCells, result.ProjectID, c.CostLineID, c.LineItemID, c.Month, c.Category, c.Description,
					c.IsLabor, c.Planned.InexactFloat64(), c.Forecast.InexactFloat64(), c.Actual.InexactFloat64(),
					c.Variance.InexactFloat64(), varianceActual, string(c.DataSource))
			}
		}
	}

	if rg.config.IncludeUnmatched {
		if _, err := f.NewSheet(sheetUnmatched); err != nil {
			return fmt.Errorf("failed to create unmatched sheet: %w", err)
		}
		w.header(sheetUnmatched, "Project", "Invoice", "Identifiers", "Month", "Amount", "Currency", "Status", "Description")
		for _, result := range results {
			for _, inv := range result.UnmatchedInvoices {
				var amount interface{}
				if inv.Amount.Valid {
					amount = inv.Amount.Decimal.InexactFloat64()
				}
				w.row(sheetUnmatched, result.ProjectID, inv.ID, fmt.Sprint(inv.Identifiers()), inv.Month(), amount,
					inv.Currency, inv.Status, inv.Description)
			}
		}
	}

	if rg.config.IncludeDiagnostics {
		if _, err := f.NewSheet(sheetErrors); err != nil {
			return fmt.Errorf("failed to create errors sheet: %w", err)
		}
		w.header(sheetErrors, "Project", "Source", "Index", "Code", "Message")
		for _, result := range results {
			if result.Diagnostics == nil {
				continue
			}
			for kind, msg := range result.Diagnostics.SourceErrors {
				w.row(sheetErrors, result.ProjectID, string(kind), "", "source_unavailable", msg)
			}
			for _, e := range result.Diagnostics.RecordErrors {
				source, index := "", 0
				if e.Record != nil {
					source, index = e.Record.Source, e.Record.Index
				}
				w.row(sheetErrors, result.ProjectID, source, index, string(e.Code), e.Message)
			}
		}
	}

	if w.err != nil {
		return w.err
	}
	if _, err := f.WriteTo(writer); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func summaryRow(result *reconciler.Result) []interface{} {
	row := []interface{}{result.ProjectID, "ok", string(result.DataSource)}
	if s := result.Summary; s != nil {
		row = append(row, s.Total.Cells, s.Total.Planned.InexactFloat64(), s.Total.Forecast.InexactFloat64(),
			s.Total.Actual.InexactFloat64(), s.MatchedAmount.InexactFloat64(), s.UnmatchedAmount.InexactFloat64(),
			s.FirstMonth, s.LastMonth, "")
	}
	return row
}

// sheetWriter appends rows to sheets and keeps the first error
type sheetWriter struct {
	file        *excelize.File
	headerStyle int
	next        map[string]int
	err         error
}

func (w *sheetWriter) header(sheet string, titles ...string) {
	values := make([]interface{}, len(titles))
	for i, t := range titles {
		values[i] = t
	}
	w.row(sheet, values...)
	if w.err != nil {
		return
	}
	end, err := excelize.CoordinatesToCellName(len(titles), 1)
	if err != nil {
		w.err = err
		return
	}
	if err := w.file.SetCellStyle(sheet, "A1", end, w.headerStyle); err != nil {
		w.err = err
	}
}

func (w *sheetWriter) row(sheet string, values ...interface{}) {
	if w.err != nil {
		return
	}
	if w.next == nil {
		w.next = make(map[string]int)
	}
	w.next[sheet]++
	cell, err := excelize.CoordinatesToCellName(1, w.next[sheet])
	if err != nil {
		w.err = err
		return
	}
	if err := w.file.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("failed to write %s row %d: %w", sheet, w.next[sheet], err)
	}
}
