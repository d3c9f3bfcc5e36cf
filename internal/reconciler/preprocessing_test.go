package reconciler

import (
	"testing"

	"github.com/shopspring/decimal"

	"forecast-reconciliation-service/internal/models"
)

func TestPreprocessInvoices(t *testing.T) {
	invoices := []*models.Invoice{
		{ID: " F-1 ", Amount: decimal.NewNullDecimal(decimal.RequireFromString("10.005")), Period: 1, Status: " paid ", RubroID: " MOD-ING "},
		{ID: "F-1", Amount: decimal.NewNullDecimal(decimal.RequireFromString("10.01")), Period: 1, Status: "paid", RubroID: "MOD-ING"},
		{ID: "F-1", Amount: decimal.NewNullDecimal(decimal.RequireFromString("10.01")), Period: 2, Status: "paid", RubroID: "MOD-ING"},
		{Amount: decimal.NewNullDecimal(decimal.NewFromInt(5)), Period: 1, Status: "paid", RubroID: "X"},
		{Amount: decimal.NewNullDecimal(decimal.NewFromInt(5)), Period: 1, Status: "paid", RubroID: "X"},
		nil,
	}

	tests := []struct {
		name        string
		config      *PreprocessingConfig
		wantOutput  int
		wantDups    int
		wantRounded int
		wantFirstID string
	}{
		{
			name:        "default trims only",
			config:      nil,
			wantOutput:  6,
			wantFirstID: "F-1",
		},
		{
			name:        "rounding and duplicates",
			config:      &PreprocessingConfig{TrimWhitespace: true, NormalizeDecimalPlaces: 2, RemoveDuplicates: true},
			wantOutput:  5,
			wantDups:    1,
			wantRounded: 1,
			wantFirstID: "F-1",
		},
		{
			name:        "no trimming",
			config:      &PreprocessingConfig{NormalizeDecimalPlaces: -1},
			wantOutput:  6,
			wantFirstID: " F-1 ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, stats := NewInvoicePreprocessor(tt.config).PreprocessInvoices(invoices)

			if stats.Input != 6 || stats.Output != tt.wantOutput || len(out) != tt.wantOutput {
				t.Errorf("unexpected stats %+v (len %d)", stats, len(out))
			}
			if stats.DuplicatesRemoved != tt.wantDups {
				t.Errorf("expected %d duplicates, got %d", tt.wantDups, stats.DuplicatesRemoved)
			}
			if stats.Rounded != tt.wantRounded {
				t.Errorf("expected %d rounded, got %d", tt.wantRounded, stats.Rounded)
			}
			if out[0].ID != tt.wantFirstID {
				t.Errorf("expected first id %q, got %q", tt.wantFirstID, out[0].ID)
			}
		})
	}

	if invoices[0].ID != " F-1 " {
		t.Error("expected input invoices to be left untouched")
	}
}
