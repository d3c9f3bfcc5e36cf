package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"forecast-reconciliation-service/internal/period"
	"forecast-reconciliation-service/internal/taxonomy"
)

// DataSource tells consumers which derivation tier produced a cell
type DataSource string

const (
	DataSourceServerForecast DataSource = "serverForecast"
	DataSourceAllocations    DataSource = "allocationsFallback"
	DataSourceBudgetLines    DataSource = "rubrosFallback"
)

// String returns the string representation of DataSource
func (d DataSource) String() string {
	return string(d)
}

// IsValid checks if the data source is one of the known tiers
func (d DataSource) IsValid() bool {
	switch d {
	case DataSourceServerForecast, DataSourceAllocations, DataSourceBudgetLines:
		return true
	}
	return false
}

// ForecastCell is one (project, cost line, month) row of the working forecast
type ForecastCell struct {
	ProjectID string `json:"projectId,omitempty"`
	// CostLineID is the canonical cost-line identity of the cell
	CostLineID string `json:"rubroId"`
	// LineItemID is the raw line-item id the cell was delivered under
	LineItemID string `json:"line_item_id,omitempty"`
	Month      int    `json:"month"`

	Planned          decimal.Decimal     `json:"planned"`
	Forecast         decimal.Decimal     `json:"forecast"`
	Actual           decimal.Decimal     `json:"actual"`
	Variance         decimal.Decimal     `json:"variance"`
	VarianceForecast decimal.Decimal     `json:"varianceForecast"`
	VarianceActual   decimal.NullDecimal `json:"varianceActual"`

	Description    string `json:"description,omitempty"`
	Category       string `json:"category,omitempty"`
	Notes          string `json:"notes,omitempty"`
	VarianceReason string `json:"varianceReason,omitempty"`
	IsLabor        bool   `json:"isLabor"`

	MatchingIDs []string   `json:"matchingIds"`
	LastUpdated time.Time  `json:"lastUpdated,omitempty"`
	DataSource  DataSource `json:"dataSource,omitempty"`
}

// UnmarshalJSON decodes a server forecast row. The month may be an index,
// a YYYY-MM string, an ISO date or an M<n> token; an explicit month_index
// takes precedence. Unusable months decode to 0.
func (c *ForecastCell) UnmarshalJSON(data []byte) error {
	r, err := decodeRaw(data)
	if err != nil {
		return err
	}

	cell := ForecastCell{
		ProjectID:      r.str("projectId", "project_id"),
		CostLineID:     r.str("rubroId", "rubro_id"),
		LineItemID:     r.str("line_item_id", "lineItemId"),
		Description:    r.str("description", "descripcion"),
		Category:       r.str("category", "categoria"),
		Notes:          r.str("notes"),
		VarianceReason: r.str("varianceReason", "variance_reason"),
		IsLabor:        r.boolean("isLabor", "is_labor"),
		MatchingIDs:    r.strs("matchingIds", "matching_ids"),
		LastUpdated:    r.timestamp("lastUpdated", "last_updated", "updatedAt", "updated_at"),
		DataSource:     DataSource(r.str("dataSource", "data_source")),
	}
	if cell.CostLineID == "" {
		cell.CostLineID = cell.LineItemID
	}
	if cell.LineItemID == "" {
		cell.LineItemID = cell.CostLineID
	}

	if v := r.value("month_index", "monthIndex"); v != nil {
		cell.Month = period.Normalize(v)
	} else {
		cell.Month = period.Normalize(r.value("month", "period"))
	}

	if cell.Planned, err = r.amountOrZero("planned"); err != nil {
		return err
	}
	if cell.Forecast, err = r.amountOrZero("forecast"); err != nil {
		return err
	}
	if cell.Actual, err = r.amountOrZero("actual"); err != nil {
		return err
	}
	if cell.Variance, err = r.amountOrZero("variance"); err != nil {
		return err
	}
	if cell.VarianceForecast, err = r.amountOrZero("varianceForecast", "variance_forecast"); err != nil {
		return err
	}
	if cell.VarianceActual, err = r.amount("varianceActual", "variance_actual"); err != nil {
		return err
	}

	*c = cell
	return nil
}

// Key returns the normalized cost-line key the cell groups under
func (c *ForecastCell) Key() string {
	return taxonomy.NormalizeKey(c.CostLineID)
}

// HasPositivePlan reports whether the cell carries a positive planned or forecast value
func (c *ForecastCell) HasPositivePlan() bool {
	return c.Planned.IsPositive() || c.Forecast.IsPositive()
}

// AddMatchingIDs adds raw identifiers to the cell, skipping empty and repeated ones
func (c *ForecastCell) AddMatchingIDs(ids ...string) {
	for _, id := range ids {
		if id == "" || c.HasMatchingID(id) {
			continue
		}
		c.MatchingIDs = append(c.MatchingIDs, id)
	}
}

// HasMatchingID reports whether id is one of the raw identifiers of the cell
func (c *ForecastCell) HasMatchingID(id string) bool {
	for _, existing := range c.MatchingIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// Candidates returns the identifiers to resolve the cell by, most structured first
func (c *ForecastCell) Candidates() []string {
	return appendCandidates(nil, c.CostLineID, c.LineItemID, c.Description)
}

// Clone returns a deep copy of the cell
func (c *ForecastCell) Clone() *ForecastCell {
	out := *c
	if c.MatchingIDs != nil {
		out.MatchingIDs = append([]string(nil), c.MatchingIDs...)
	}
	return &out
}

// String returns a string representation of the ForecastCell
func (c *ForecastCell) String() string {
	return fmt.Sprintf("ForecastCell{CostLine: %s, Month: %d, Planned: %s, Forecast: %s, Actual: %s}",
		c.CostLineID, c.Month, c.Planned.String(), c.Forecast.String(), c.Actual.String())
}
