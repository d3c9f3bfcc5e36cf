package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// BudgetLine is a planned cost component of a project (a rubro)
type BudgetLine struct {
	ID          string                `json:"id"`
	ProjectID   string                `json:"project_id,omitempty"`
	Description string                `json:"description,omitempty"`
	Category    string                `json:"category,omitempty"`
	UnitCost    decimal.Decimal       `json:"unit_cost"`
	Qty         decimal.Decimal       `json:"qty"`
	TotalCost   decimal.NullDecimal   `json:"total_cost"`
	Currency    string                `json:"currency,omitempty"`
	StartMonth  int                   `json:"start_month"`
	EndMonth    int                   `json:"end_month"`
	Monthly     []decimal.NullDecimal `json:"monthly,omitempty"`
}

// UnmarshalJSON accepts the snake and camel case spellings used upstream
func (b *BudgetLine) UnmarshalJSON(data []byte) error {
	r, err := decodeRaw(data)
	if err != nil {
		return err
	}

	line := BudgetLine{
		ID:          r.str("id", "line_item_id", "lineItemId", "rubroId", "rubro_id"),
		ProjectID:   r.str("project_id", "projectId"),
		Description: r.str("description", "descripcion", "name"),
		Category:    r.str("category", "categoria"),
		Currency:    r.str("currency", "moneda"),
	}

	if line.UnitCost, err = r.amountOrZero("unit_cost", "unitCost"); err != nil {
		return err
	}
	if line.Qty, err = r.amountOrZero("qty", "quantity"); err != nil {
		return err
	}
	if line.TotalCost, err = r.amount("total_cost", "totalCost", "total"); err != nil {
		return err
	}
	if line.Monthly, err = r.amounts("monthly"); err != nil {
		return err
	}

	start, err := r.integer("start_month", "startMonth")
	if err != nil {
		return err
	}
	if start != nil {
		line.StartMonth = *start
	}
	end, err := r.integer("end_month", "endMonth")
	if err != nil {
		return err
	}
	if end != nil {
		line.EndMonth = *end
	}

	*b = line
	return nil
}

// Validate performs basic validation on the BudgetLine
func (b *BudgetLine) Validate() error {
	if strings.TrimSpace(b.ID) == "" && strings.TrimSpace(b.Description) == "" {
		return fmt.Errorf("budget line needs an id or a description")
	}
	if b.EndMonth > 0 && b.StartMonth > b.EndMonth {
		return fmt.Errorf("budget line %s ends (%d) before it starts (%d)", b.ID, b.EndMonth, b.StartMonth)
	}
	return nil
}

// Total returns the explicit total cost, or unit cost times quantity.
// A zero quantity counts as one unit.
func (b *BudgetLine) Total() decimal.Decimal {
	if b.TotalCost.Valid {
		return b.TotalCost.Decimal
	}
	qty := b.Qty
	if qty.IsZero() {
		qty = decimal.NewFromInt(1)
	}
	return b.UnitCost.Mul(qty)
}

// MonthlyOverride returns the per-month value for month m, if one was given
func (b *BudgetLine) MonthlyOverride(m int) (decimal.Decimal, bool) {
	if m < 1 || m > len(b.Monthly) {
		return decimal.Zero, false
	}
	v := b.Monthly[m-1]
	return v.Decimal, v.Valid
}

// Candidates returns the identifiers to resolve the line by, most structured first
func (b *BudgetLine) Candidates() []string {
	return appendCandidates(nil, b.ID, b.Description)
}

// String returns a string representation of the BudgetLine
func (b *BudgetLine) String() string {
	return fmt.Sprintf("BudgetLine{ID: %s, Total: %s, Months: %d-%d}", b.ID, b.Total().String(), b.StartMonth, b.EndMonth)
}
