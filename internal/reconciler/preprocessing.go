package reconciler

import (
	"fmt"
	"strings"

	"forecast-reconciliation-service/internal/models"
)

// InvoicePreprocessor cleans invoices before matching
type InvoicePreprocessor struct {
	config *PreprocessingConfig
}

// PreprocessingConfig contains configuration for invoice preprocessing
type PreprocessingConfig struct {
	// TrimWhitespace trims identifiers, status and description
	TrimWhitespace bool `json:"trim_whitespace" mapstructure:"trim_whitespace"`

	// NormalizeDecimalPlaces rounds amounts; -1 keeps them as delivered
	NormalizeDecimalPlaces int `json:"normalize_decimal_places" mapstructure:"normalize_decimal_places"`

	// RemoveDuplicates drops repeated invoices with the same id, amount and
	// period, as produced when an upstream page is delivered twice
	RemoveDuplicates bool `json:"remove_duplicates" mapstructure:"remove_duplicates"`
}

// PreprocessingStats contains statistics about preprocessing
type PreprocessingStats struct {
	Input             int `json:"input"`
	Output            int `json:"output"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	Rounded           int `json:"rounded"`
}

// DefaultPreprocessingConfig returns a default preprocessing configuration
func DefaultPreprocessingConfig() *PreprocessingConfig {
	return &PreprocessingConfig{
		TrimWhitespace:         true,
		NormalizeDecimalPlaces: -1,
		RemoveDuplicates:       false,
	}
}

// Validate checks the preprocessing configuration
func (c *PreprocessingConfig) Validate() error {
	if c.NormalizeDecimalPlaces < -1 || c.NormalizeDecimalPlaces > 8 {
		return fmt.Errorf("normalize decimal places must be between -1 and 8, got %d", c.NormalizeDecimalPlaces)
	}
	return nil
}

// NewInvoicePreprocessor creates a preprocessor. A nil config uses
// DefaultPreprocessingConfig.
func NewInvoicePreprocessor(config *PreprocessingConfig) *InvoicePreprocessor {
	if config == nil {
		config = DefaultPreprocessingConfig()
	}
	return &InvoicePreprocessor{config: config}
}

// PreprocessInvoices returns cleaned copies of invoices. Malformed invoices
// are passed through for the matcher to count; nil entries are kept too.
func (p *InvoicePreprocessor) PreprocessInvoices(invoices []*models.Invoice) ([]*models.Invoice, PreprocessingStats) {
	stats := PreprocessingStats{Input: len(invoices)}
	out := make([]*models.Invoice, 0, len(invoices))
	seen := make(map[string]struct{})

	for _, inv := range invoices {
		if inv == nil {
			out = append(out, nil)
			continue
		}
		cleaned := *inv

		if p.config.TrimWhitespace {
			cleaned.ID = strings.TrimSpace(cleaned.ID)
			cleaned.ProjectID = strings.TrimSpace(cleaned.ProjectID)
			cleaned.Status = strings.TrimSpace(cleaned.Status)
			cleaned.RubroID = strings.TrimSpace(cleaned.RubroID)
			cleaned.RubroIDAlt = strings.TrimSpace(cleaned.RubroIDAlt)
			cleaned.LineItemID = strings.TrimSpace(cleaned.LineItemID)
			cleaned.LineaCodigo = strings.TrimSpace(cleaned.LineaCodigo)
			cleaned.LineaID = strings.TrimSpace(cleaned.LineaID)
			cleaned.Description = strings.TrimSpace(cleaned.Description)
		}

		if p.config.NormalizeDecimalPlaces >= 0 && cleaned.Amount.Valid {
			rounded := cleaned.Amount.Decimal.Round(int32(p.config.NormalizeDecimalPlaces))
			if !rounded.Equal(cleaned.Amount.Decimal) {
				stats.Rounded++
			}
			cleaned.Amount.Decimal = rounded
		}

		if p.config.RemoveDuplicates && cleaned.ID != "" {
			key := fmt.Sprintf("%s_%s_%d", cleaned.ID, cleaned.Amount.Decimal.String(), cleaned.Month())
			if _, dup := seen[key]; dup {
				stats.DuplicatesRemoved++
				continue
			}
			seen[key] = struct{}{}
		}

		out = append(out, &cleaned)
	}

	stats.Output = len(out)
	return out, stats
}
