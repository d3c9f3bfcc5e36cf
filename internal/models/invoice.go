package models

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"forecast-reconciliation-service/internal/period"
)

// Invoice is an external financial record posted against forecast cells.
// Invoices are read-only for the engine.
type Invoice struct {
	ID          string              `json:"id,omitempty"`
	ProjectID   string              `json:"projectId,omitempty"`
	Amount      decimal.NullDecimal `json:"amount"`
	Period      interface{}         `json:"month,omitempty"`
	Status      string              `json:"status,omitempty"`
	RubroID     string              `json:"rubroId,omitempty"`
	RubroIDAlt  string              `json:"rubro_id,omitempty"`
	LineItemID  string              `json:"line_item_id,omitempty"`
	LineaCodigo string              `json:"linea_codigo,omitempty"`
	LineaID     string              `json:"linea_id,omitempty"`
	Description string              `json:"description,omitempty"`
	Currency    string              `json:"currency,omitempty"`
}

// UnmarshalJSON accepts every alias upstream invoice sources use. A missing
// amount is left null; the matcher counts such invoices as malformed.
func (inv *Invoice) UnmarshalJSON(data []byte) error {
	r, err := decodeRaw(data)
	if err != nil {
		return err
	}

	invoice := Invoice{
		ID:          r.str("id", "invoice_id", "invoiceId", "number"),
		ProjectID:   r.str("projectId", "project_id"),
		Status:      r.str("status", "invoice_status", "state"),
		RubroID:     r.str("rubroId"),
		RubroIDAlt:  r.str("rubro_id"),
		LineItemID:  r.str("line_item_id", "lineItemId"),
		LineaCodigo: r.str("linea_codigo", "lineaCodigo"),
		LineaID:     r.str("linea_id", "lineaId"),
		Description: r.str("description", "descripcion"),
		Currency:    r.str("currency", "moneda"),
	}

	if v := r.value("month_index", "monthIndex"); v != nil {
		invoice.Period = v
	} else {
		invoice.Period = r.value("month", "calendar_month", "period")
	}

	if invoice.Amount, err = r.amount("amount", "total", "monto"); err != nil {
		return err
	}

	*inv = invoice
	return nil
}

// Month returns the normalized period of the invoice; 0 means no valid month
func (inv *Invoice) Month() int {
	return period.Normalize(inv.Period)
}

// Identifiers returns the structured identifiers of the invoice, most
// structured first. Free text is not included.
func (inv *Invoice) Identifiers() []string {
	return appendCandidates(nil, inv.LineaCodigo, inv.LineItemID, inv.RubroID, inv.RubroIDAlt, inv.LineaID)
}

// Candidates returns the identifiers to resolve the invoice by, with the
// description last
func (inv *Invoice) Candidates() []string {
	return appendCandidates(inv.Identifiers(), inv.Description)
}

// Validate checks that the invoice can be posted at all
func (inv *Invoice) Validate() error {
	if !inv.Amount.Valid {
		return fmt.Errorf("invoice %s has no amount", inv.ID)
	}
	if len(inv.Candidates()) == 0 {
		return fmt.Errorf("invoice %s has no identifier or description", inv.ID)
	}
	return nil
}

// NormalizedStatus returns the status lowercased and trimmed
func (inv *Invoice) NormalizedStatus() string {
	return strings.ToLower(strings.TrimSpace(inv.Status))
}

// String returns a string representation of the Invoice
func (inv *Invoice) String() string {
	amount := "-"
	if inv.Amount.Valid {
		amount = inv.Amount.Decimal.String()
	}
	return fmt.Sprintf("Invoice{ID: %s, Amount: %s, Period: %v, Status: %s}", inv.ID, amount, inv.Period, inv.Status)
}
