// Package reporter renders reconciliation results as console tables, JSON,
// CSV or spreadsheets.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"forecast-reconciliation-service/internal/reconciler"
)

// OutputFormat represents the different output formats available
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// String returns the string representation of the output format
func (f OutputFormat) String() string {
	return string(f)
}

// IsValid checks if the output format is valid
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// IsBinary reports whether the format should not be written to a terminal
func (f OutputFormat) IsBinary() bool {
	return f == FormatXLSX
}

// ParseOutputFormat parses a format name, accepting any case
func ParseOutputFormat(s string) (OutputFormat, error) {
	f := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if f == "excel" {
		f = FormatXLSX
	}
	if !f.IsValid() {
		return "", fmt.Errorf("invalid output format: %s", s)
	}
	return f, nil
}

// ReportConfig contains configuration options for report generation
type ReportConfig struct {
	Format   OutputFormat `json:"format" mapstructure:"format"`
	Currency string       `json:"currency" mapstructure:"currency"`

	IncludeCells       bool `json:"include_cells" mapstructure:"include_cells"`
	IncludeUnmatched   bool `json:"include_unmatched" mapstructure:"include_unmatched"`
	IncludeDiagnostics bool `json:"include_diagnostics" mapstructure:"include_diagnostics"`

	// OnlyVariances limits the cell listing to cells with a non-zero variance
	OnlyVariances bool `json:"only_variances" mapstructure:"only_variances"`

	// Console options
	UseColors     bool `json:"use_colors" mapstructure:"use_colors"`
	TableMaxWidth int  `json:"table_max_width" mapstructure:"table_max_width"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default configuration for report generation
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:             FormatConsole,
		Currency:           "USD",
		IncludeCells:       true,
		IncludeUnmatched:   true,
		IncludeDiagnostics: true,
		UseColors:          true,
		TableMaxWidth:      120,
		CSVDelimiter:       ',',
		CSVHeaders:         true,
	}
}

// Validate validates the report configuration
func (rc *ReportConfig) Validate() error {
	if !rc.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", rc.Format)
	}
	if strings.TrimSpace(rc.Currency) == "" {
		return fmt.Errorf("currency is required")
	}
	if rc.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters")
	}
	if rc.CSVDelimiter == 0 || rc.CSVDelimiter == '\n' || rc.CSVDelimiter == '"' {
		return fmt.Errorf("invalid CSV delimiter: %q", rc.CSVDelimiter)
	}
	return nil
}

// ReportGenerator handles generation of reconciliation reports
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the given configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}
	return &ReportGenerator{config: config}, nil
}

// Config returns the generator configuration
func (rg *ReportGenerator) Config() *ReportConfig {
	return rg.config
}

// GenerateReport writes a report for one reconciliation result
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}
	if writer == nil {
		return fmt.Errorf("writer cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.encodeJSON(rg.filterResultForOutput(result), writer)
	case FormatCSV:
		return rg.generateCSVReport([]*reconciler.Result{result}, writer)
	case FormatXLSX:
		return rg.generateSpreadsheet([]*reconciler.Result{result}, nil, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// GenerateBatchReport writes a report covering every project of a batch
func (rg *ReportGenerator) GenerateBatchReport(batch *reconciler.BatchResult, writer io.Writer) error {
	if batch == nil {
		return fmt.Errorf("batch result cannot be nil")
	}
	if writer == nil {
		return fmt.Errorf("writer cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleBatchReport(batch, writer)
	case FormatJSON:
		filtered := *batch
		filtered.Outcomes = make([]*reconciler.ProjectOutcome, len(batch.Outcomes))
		for i, o := range batch.Outcomes {
			copied := *o
			if o.Result != nil {
				copied.Result = rg.filterResultForOutput(o.Result)
			}
			filtered.Outcomes[i] = &copied
		}
		return rg.encodeJSON(&filtered, writer)
	case FormatCSV:
		return rg.generateCSVReport(batchResults(batch), writer)
	case FormatXLSX:
		return rg.generateSpreadsheet(batchResults(batch), batch, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) encodeJSON(v interface{}, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// filterResultForOutput drops the sections the configuration excludes
func (rg *ReportGenerator) filterResultForOutput(result *reconciler.Result) *reconciler.Result {
	filtered := *result
	filtered.Cells = rg.selectCells(result)
	if !rg.config.IncludeCells {
		filtered.Cells = nil
	}
	if !rg.config.IncludeUnmatched {
		filtered.UnmatchedInvoices = nil
	}
	if !rg.config.IncludeDiagnostics {
		filtered.Diagnostics = nil
	}
	return &filtered
}

func batchResults(batch *reconciler.BatchResult) []*reconciler.Result {
	results := make([]*reconciler.Result, 0, len(batch.Outcomes))
	for _, o := range batch.Outcomes {
		if o.Result != nil {
			results = append(results, o.Result)
		}
	}
	return results
}
