package reconciler

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"forecast-reconciliation-service/internal/matcher"
	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/internal/source"
	"forecast-reconciliation-service/pkg/errors"
	"forecast-reconciliation-service/pkg/logger"
)

// fetched holds the upstream records of one run. A failed fetch leaves its
// slice empty and records the error.
type fetched struct {
	budgetLines    []*models.BudgetLine
	allocations    []*models.Allocation
	serverForecast []*models.ForecastCell
	invoices       []*models.Invoice
	errs           map[source.Kind]error
}

// tierErrors maps fetch failures onto the forecast tiers they feed
func (f *fetched) tierErrors() map[models.DataSource]error {
	out := make(map[models.DataSource]error)
	if err := f.errs[source.KindServerForecast]; err != nil {
		out[models.DataSourceServerForecast] = err
	}
	if err := f.errs[source.KindAllocations]; err != nil {
		out[models.DataSourceAllocations] = err
	}
	if err := f.errs[source.KindBudgetLines]; err != nil {
		out[models.DataSourceBudgetLines] = err
	}
	return out
}

func (f *fetched) errorMessages() map[source.Kind]string {
	if len(f.errs) == 0 {
		return nil
	}
	out := make(map[source.Kind]string, len(f.errs))
	for kind, err := range f.errs {
		out[kind] = err.Error()
	}
	return out
}

// fetch runs the four upstream reads concurrently. Each failure is kept
// local to its record set; only a panic in a source fails the fetch.
func (s *Service) fetch(ctx context.Context, projectID string) (*fetched, error) {
	if s.config.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.FetchTimeout)
		defer cancel()
	}

	var data fetched
	var budgetErr, allocErr, forecastErr, invoicesErr error

	var wg conc.WaitGroup
	wg.Go(func() {
		data.budgetLines, budgetErr = s.source.BudgetLines(ctx, projectID)
	})
	wg.Go(func() {
		data.allocations, allocErr = s.source.Allocations(ctx, projectID)
	})
	wg.Go(func() {
		data.serverForecast, forecastErr = s.source.ServerForecast(ctx, projectID)
	})
	wg.Go(func() {
		data.invoices, invoicesErr = s.source.Invoices(ctx, projectID)
	})
	if recovered := wg.WaitAndRecover(); recovered != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "fetch", recovered.AsError()).
			WithContext("project_id", projectID)
	}

	data.errs = make(map[source.Kind]error)
	for kind, err := range map[source.Kind]error{
		source.KindBudgetLines:    budgetErr,
		source.KindAllocations:    allocErr,
		source.KindServerForecast: forecastErr,
		source.KindInvoices:       invoicesErr,
	} {
		if err == nil {
			continue
		}
		data.errs[kind] = err
		s.logger.WithError(err).WithFields(logger.Fields{
			"project_id": projectID,
			"source":     kind,
		}).Warn("Upstream fetch failed")
	}

	return &data, nil
}

// buildSummary totals the reconciled cells, split by labor and non-labor
func buildSummary(cells []*models.ForecastCell, report *matcher.MatchReport) *ResultSummary {
	summary := &ResultSummary{
		Total:           newTotals(),
		Labor:           newTotals(),
		NonLabor:        newTotals(),
		MatchedAmount:   report.Summary.AmountMatched,
		UnmatchedAmount: report.Summary.AmountUnmatched,
	}

	for _, cell := range cells {
		summary.Total.add(cell)
		if cell.IsLabor {
			summary.Labor.add(cell)
		} else {
			summary.NonLabor.add(cell)
		}

		if cell.Month == 0 {
			continue
		}
		if summary.FirstMonth == 0 || cell.Month < summary.FirstMonth {
			summary.FirstMonth = cell.Month
		}
		if cell.Month > summary.LastMonth {
			summary.LastMonth = cell.Month
		}
	}

	return summary
}

func newTotals() Totals {
	return Totals{Planned: decimal.Zero, Forecast: decimal.Zero, Actual: decimal.Zero}
}

func (t *Totals) add(cell *models.ForecastCell) {
	t.Cells++
	t.Planned = t.Planned.Add(cell.Planned)
	t.Forecast = t.Forecast.Add(cell.Forecast)
	t.Actual = t.Actual.Add(cell.Actual)
}
