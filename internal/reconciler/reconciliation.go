// Package reconciler runs a forecast reconciliation for one project: it
// fetches the upstream records, derives the forecast, merges duplicate cells,
// posts invoice actuals and computes variances.
//
// Every run is request scoped. The taxonomy table is shared and read only;
// the resolver and its cache are created per run. A Sequencer makes sure a
// run that was overtaken by a newer run of the same project never publishes.
//
// Example usage:
//
//	svc, err := reconciler.NewService(src, table, reconciler.DefaultConfig())
//	result, err := svc.Reconcile(ctx, &reconciler.Request{ProjectID: "P-1"})
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"forecast-reconciliation-service/internal/forecast"
	"forecast-reconciliation-service/internal/matcher"
	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/internal/source"
	"forecast-reconciliation-service/internal/taxonomy"
	"forecast-reconciliation-service/pkg/errors"
	"forecast-reconciliation-service/pkg/logger"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	Forecast      *forecast.Config        `json:"forecast" mapstructure:"forecast"`
	Matching      *matcher.MatchingConfig `json:"matching" mapstructure:"matching"`
	Preprocessing *PreprocessingConfig    `json:"preprocessing" mapstructure:"preprocessing"`

	// FetchTimeout bounds the upstream fetches; zero means no bound
	FetchTimeout time.Duration `json:"fetch_timeout" mapstructure:"fetch_timeout"`

	// MaxRecordErrors bounds the record errors kept per run
	MaxRecordErrors int `json:"max_record_errors" mapstructure:"max_record_errors"`

	// DiscardStale drops the result of a run overtaken by a newer one
	DiscardStale bool `json:"discard_stale" mapstructure:"discard_stale"`
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Forecast:        forecast.DefaultConfig(),
		Matching:        matcher.DefaultMatchingConfig(),
		Preprocessing:   DefaultPreprocessingConfig(),
		FetchTimeout:    30 * time.Second,
		MaxRecordErrors: 100,
		DiscardStale:    true,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Forecast == nil || c.Matching == nil || c.Preprocessing == nil {
		return fmt.Errorf("forecast, matching and preprocessing configurations are required")
	}
	if err := c.Forecast.Validate(); err != nil {
		return fmt.Errorf("forecast: %w", err)
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if err := c.Preprocessing.Validate(); err != nil {
		return fmt.Errorf("preprocessing: %w", err)
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("fetch timeout cannot be negative: %s", c.FetchTimeout)
	}
	if c.MaxRecordErrors < 0 {
		return fmt.Errorf("max record errors cannot be negative: %d", c.MaxRecordErrors)
	}
	return nil
}

// Request represents a request for reconciliation
type Request struct {
	ProjectID string `json:"project_id"`
}

// Validate validates the reconciliation request
func (r *Request) Validate() error {
	if r == nil || strings.TrimSpace(r.ProjectID) == "" {
		return fmt.Errorf("project id is required")
	}
	return nil
}

// Result contains the complete results of one reconciliation run
type Result struct {
	ProjectID  string                 `json:"project_id"`
	RunID      string                 `json:"run_id"`
	Sequence   uint64                 `json:"sequence"`
	DataSource models.DataSource      `json:"data_source"`
	Cells      []*models.ForecastCell `json:"cells"`

	Matches           []*matcher.MatchResult `json:"-"`
	UnmatchedInvoices []*models.Invoice      `json:"unmatched_invoices,omitempty"`

	Diagnostics *Diagnostics   `json:"diagnostics"`
	Summary     *ResultSummary `json:"summary"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// Diagnostics collects what happened along the pipeline
type Diagnostics struct {
	Forecast      forecast.Diagnostics   `json:"forecast"`
	Dedup         matcher.DedupStats     `json:"dedup"`
	Preprocessing PreprocessingStats     `json:"preprocessing"`
	Matching      matcher.MatchSummary   `json:"matching"`
	SourceErrors  map[source.Kind]string `json:"source_errors,omitempty"`

	RecordErrorCount int                   `json:"record_error_count"`
	RecordErrors     []*errors.RecordError `json:"record_errors,omitempty"`
}

// Totals sums the monetary fields of a set of cells
type Totals struct {
	Cells    int             `json:"cells"`
	Planned  decimal.Decimal `json:"planned"`
	Forecast decimal.Decimal `json:"forecast"`
	Actual   decimal.Decimal `json:"actual"`
}

// ResultSummary provides a high-level overview of a run
type ResultSummary struct {
	Total    Totals `json:"total"`
	Labor    Totals `json:"labor"`
	NonLabor Totals `json:"non_labor"`

	FirstMonth int `json:"first_month"`
	LastMonth  int `json:"last_month"`

	MatchedAmount   decimal.Decimal `json:"matched_amount"`
	UnmatchedAmount decimal.Decimal `json:"unmatched_amount"`

	ProcessingDuration time.Duration `json:"processing_duration"`
}

// Service orchestrates a reconciliation run
type Service struct {
	source       source.Source
	table        *taxonomy.Table
	resolverOpts []taxonomy.ResolverOption
	config       *Config
	deriver      *forecast.Deriver
	matcher      *matcher.InvoiceMatcher
	preprocessor *InvoicePreprocessor
	sequencer    *Sequencer
	logger       logger.Logger
}

// ServiceOption customizes NewService
type ServiceOption func(*Service)

// WithResolverOptions passes options to the per-run resolver
func WithResolverOptions(opts ...taxonomy.ResolverOption) ServiceOption {
	return func(s *Service) {
		s.resolverOpts = append(s.resolverOpts, opts...)
	}
}

// WithSequencer shares a sequencer between services
func WithSequencer(seq *Sequencer) ServiceOption {
	return func(s *Service) {
		if seq != nil {
			s.sequencer = seq
		}
	}
}

// WithLogger sets the service logger
func WithLogger(log logger.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// NewService creates a new reconciliation service. A nil table uses the
// built-in reference taxonomy; a nil config uses DefaultConfig.
func NewService(src source.Source, table *taxonomy.Table, config *Config, opts ...ServiceOption) (*Service, error) {
	if src == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "source", nil, nil).
			WithSuggestion("provide a data directory or a database")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", err.Error(), err)
	}
	if table == nil {
		table = taxonomy.BuildTable(taxonomy.DefaultReference())
	}

	s := &Service{
		source:    src,
		table:     table,
		config:    config,
		sequencer: NewSequencer(),
		logger:    logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("reconciler")
	s.deriver = forecast.NewDeriver(config.Forecast, s.logger)
	s.matcher = matcher.NewInvoiceMatcher(config.Matching, s.logger)
	s.preprocessor = NewInvoicePreprocessor(config.Preprocessing)

	return s, nil
}

// Config returns the service configuration
func (s *Service) Config() *Config {
	return s.config
}

// Sequencer returns the sequencer guarding publication
func (s *Service) Sequencer() *Sequencer {
	return s.sequencer
}

// Table returns the taxonomy table
func (s *Service) Table() *taxonomy.Table {
	return s.table
}

// Reconcile performs a complete reconciliation for one project. Source
// failures fall through to the next forecast tier; only tier exhaustion,
// cancellation and staleness are returned as errors, and no partial result
// is returned with them.
func (s *Service) Reconcile(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "project_id", "", err).
			WithSuggestion("pass --project")
	}
	projectID := strings.TrimSpace(req.ProjectID)

	startTime := time.Now()
	seq := s.sequencer.Begin(projectID)
	runID := uuid.NewString()

	op := logger.NewOperationLogger("reconcile", s.logger).WithFields(logger.Fields{
		"project_id": projectID,
		"run_id":     runID,
		"sequence":   seq,
	})

	// Step 1: fetch upstream records concurrently
	collector := errors.NewRecordErrorCollector(s.config.MaxRecordErrors)
	data, err := s.fetch(source.WithRecordErrors(ctx, collector), projectID)
	if err != nil {
		op.Error(err, "Fetch failed")
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.RequestError(errors.CodeCanceled, projectID, seq, err)
	}
	op.Step("fetch", logger.Fields{
		"budget_lines":    len(data.budgetLines),
		"allocations":     len(data.allocations),
		"server_forecast": len(data.serverForecast),
		"invoices":        len(data.invoices),
		"source_errors":   len(data.errs),
	})

	// Step 2: derive the forecast from the first populated tier
	resolver := taxonomy.NewResolver(s.table, s.resolverOpts...)
	derived, err := s.deriver.Derive(forecast.Input{
		ProjectID:      projectID,
		ServerForecast: data.serverForecast,
		Allocations:    data.allocations,
		BudgetLines:    data.budgetLines,
		SourceErrors:   data.tierErrors(),
	}, resolver)
	if err != nil {
		op.Error(err, "Forecast derivation failed")
		return nil, err
	}
	op.Step("derive", logger.Fields{"data_source": derived.DataSource, "cells": len(derived.Cells)})

	// Step 3: merge duplicate cells
	cells, dedupStats := matcher.Deduplicate(derived.Cells)
	op.Step("dedup", logger.Fields{"merged_groups": dedupStats.Merged, "skipped": dedupStats.Skipped})

	// Step 4: clean and match invoices
	invoices, prepStats := s.preprocessor.PreprocessInvoices(data.invoices)
	report := s.matcher.Match(invoices, cells, resolver)
	op.Step("match", logger.Fields{"matched": report.Summary.Matched, "unmatched": report.Summary.Unmatched})

	// Step 5: variances
	matcher.ApplyVariance(cells)

	if err := ctx.Err(); err != nil {
		return nil, errors.RequestError(errors.CodeCanceled, projectID, seq, err)
	}
	if s.config.DiscardStale && !s.sequencer.IsCurrent(projectID, seq) {
		err := errors.RequestError(errors.CodeStaleRequest, projectID, seq, nil)
		op.Warning("Discarding superseded result", logger.Fields{"latest": s.sequencer.Latest(projectID)})
		return nil, err
	}

	diagnostics := &Diagnostics{
		Forecast:         derived.Diagnostics,
		Dedup:            dedupStats,
		Preprocessing:    prepStats,
		Matching:         report.Summary,
		SourceErrors:     data.errorMessages(),
		RecordErrorCount: collector.Count(),
		RecordErrors:     collector.GetErrors(),
	}
	diagnostics.Forecast.Resolution = resolver.Stats()
	diagnostics.RecordErrors = append(diagnostics.RecordErrors, report.Errors...)
	diagnostics.RecordErrorCount += report.Summary.Malformed

	result := &Result{
		ProjectID:         projectID,
		RunID:             runID,
		Sequence:          seq,
		DataSource:        derived.DataSource,
		Cells:             cells,
		Matches:           report.Matches,
		UnmatchedInvoices: report.Unmatched,
		Diagnostics:       diagnostics,
		Summary:           buildSummary(cells, report),
		ProcessedAt:       startTime,
	}
	result.Summary.ProcessingDuration = time.Since(startTime)

	op.WithFields(logger.Fields{
		"data_source": result.DataSource,
		"cells":       len(cells),
	}).Success("Reconciliation completed")
	return result, nil
}
