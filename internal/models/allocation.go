package models

import (
	"fmt"

	"github.com/shopspring/decimal"

	"forecast-reconciliation-service/internal/period"
)

// Allocation is a planned amount for one project, cost line and month
type Allocation struct {
	ID         string          `json:"id,omitempty"`
	ProjectID  string          `json:"project_id,omitempty"`
	RubroID    string          `json:"rubro_id"`
	Month      string          `json:"month,omitempty"`
	MonthIndex *int            `json:"month_index,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
}

// UnmarshalJSON accepts the snake and camel case spellings used upstream
func (a *Allocation) UnmarshalJSON(data []byte) error {
	r, err := decodeRaw(data)
	if err != nil {
		return err
	}

	alloc := Allocation{
		ID:        r.str("id", "allocation_id", "allocationId"),
		ProjectID: r.str("project_id", "projectId"),
		RubroID:   r.str("rubro_id", "rubroId", "line_item_id", "lineItemId"),
		Month:     r.str("month", "calendar_month", "calendarMonth"),
	}

	amount, err := r.amount("amount", "monto")
	if err != nil {
		return err
	}
	if !amount.Valid {
		return fmt.Errorf("allocation %s has no amount", alloc.ID)
	}
	alloc.Amount = amount.Decimal

	if alloc.MonthIndex, err = r.integer("month_index", "monthIndex"); err != nil {
		return err
	}

	*a = alloc
	return nil
}

// Period returns the contract month of the allocation. An explicit month
// index always wins over the calendar string; 0 means no valid month.
func (a *Allocation) Period() int {
	if a.MonthIndex != nil {
		return period.Normalize(*a.MonthIndex)
	}
	return period.Normalize(a.Month)
}

// Candidates returns the identifiers to resolve the allocation by
func (a *Allocation) Candidates() []string {
	return appendCandidates(nil, a.RubroID)
}
