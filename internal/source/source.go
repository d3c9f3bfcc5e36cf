// Package source reads the upstream records a reconciliation run needs:
// budget lines, allocations, the server forecast and invoices.
//
// A Source only fetches. Tier selection, resolution and matching happen in
// the forecast and matcher packages. Records that cannot be decoded are
// skipped and reported through the RecordErrorCollector carried by the
// request context, so one bad record never fails a fetch.
package source

import (
	"context"
	"encoding/json"
	"strings"

	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/pkg/errors"
)

// Kind names one of the upstream record sets
type Kind string

const (
	KindBudgetLines    Kind = "budget_lines"
	KindAllocations    Kind = "allocations"
	KindServerForecast Kind = "forecast"
	KindInvoices       Kind = "invoices"
)

// Kinds lists every record set in fetch order
var Kinds = []Kind{KindBudgetLines, KindAllocations, KindServerForecast, KindInvoices}

// Source provides the upstream records of one project
type Source interface {
	BudgetLines(ctx context.Context, projectID string) ([]*models.BudgetLine, error)
	Allocations(ctx context.Context, projectID string) ([]*models.Allocation, error)
	ServerForecast(ctx context.Context, projectID string) ([]*models.ForecastCell, error)
	Invoices(ctx context.Context, projectID string) ([]*models.Invoice, error)
}

type collectorKey struct{}

// WithRecordErrors returns a context that collects per-record decode errors
// into collector
func WithRecordErrors(ctx context.Context, collector *errors.RecordErrorCollector) context.Context {
	return context.WithValue(ctx, collectorKey{}, collector)
}

// RecordErrorsFrom returns the collector carried by ctx, or nil
func RecordErrorsFrom(ctx context.Context) *errors.RecordErrorCollector {
	if ctx == nil {
		return nil
	}
	collector, _ := ctx.Value(collectorKey{}).(*errors.RecordErrorCollector)
	return collector
}

func reportRecordError(ctx context.Context, err *errors.RecordError) {
	if collector := RecordErrorsFrom(ctx); collector != nil {
		collector.Add(err)
	}
}

// SameProject reports whether a record's project id belongs to projectID.
// Records without a project id, and requests without one, always match.
func SameProject(recordProject, projectID string) bool {
	a := strings.TrimSpace(recordProject)
	b := strings.TrimSpace(projectID)
	return a == "" || b == "" || strings.EqualFold(a, b)
}

// decodeRecords decodes each raw element into a T. Elements that fail are
// reported against name and index and skipped.
func decodeRecords[T any](ctx context.Context, name string, items []json.RawMessage, project func(*T) string, projectID string) []*T {
	out := make([]*T, 0, len(items))
	for i, item := range items {
		record := new(T)
		if err := json.Unmarshal(item, record); err != nil {
			reportRecordError(ctx, errors.DecodeError(name, i, err))
			continue
		}
		if !SameProject(project(record), projectID) {
			continue
		}
		out = append(out, record)
	}
	return out
}

// DecodeBudgetLines decodes raw budget line records of projectID
func DecodeBudgetLines(ctx context.Context, name string, items []json.RawMessage, projectID string) []*models.BudgetLine {
	return decodeRecords(ctx, name, items, func(b *models.BudgetLine) string { return b.ProjectID }, projectID)
}

// DecodeAllocations decodes raw allocation records of projectID
func DecodeAllocations(ctx context.Context, name string, items []json.RawMessage, projectID string) []*models.Allocation {
	return decodeRecords(ctx, name, items, func(a *models.Allocation) string { return a.ProjectID }, projectID)
}

// DecodeForecastCells decodes raw server forecast cells of projectID
func DecodeForecastCells(ctx context.Context, name string, items []json.RawMessage, projectID string) []*models.ForecastCell {
	return decodeRecords(ctx, name, items, func(c *models.ForecastCell) string { return c.ProjectID }, projectID)
}

// DecodeInvoices decodes raw invoice records of projectID
func DecodeInvoices(ctx context.Context, name string, items []json.RawMessage, projectID string) []*models.Invoice {
	return decodeRecords(ctx, name, items, func(inv *models.Invoice) string { return inv.ProjectID }, projectID)
}
