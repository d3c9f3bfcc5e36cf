package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategorySource        ErrorCategory = "source"
	CategoryTaxonomy      ErrorCategory = "taxonomy"
	CategoryPeriod        ErrorCategory = "period"
	CategoryForecast      ErrorCategory = "forecast"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryValidation    ErrorCategory = "validation"
	CategoryRequest       ErrorCategory = "request"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Source errors
	CodeSourceUnavailable ErrorCode = "source_unavailable"
	CodeSourceNotFound    ErrorCode = "source_not_found"
	CodeDecodeFailed      ErrorCode = "decode_failed"
	CodeStoreFailed       ErrorCode = "store_failed"

	// Taxonomy errors
	CodeReferenceInvalid ErrorCode = "reference_invalid"
	CodeUnsupportedFile  ErrorCode = "unsupported_file"

	// Period errors
	CodeInvalidPeriod ErrorCode = "invalid_period"

	// Forecast errors
	CodeNoForecastData ErrorCode = "no_forecast_data"

	// Validation errors
	CodeInvalidAmount ErrorCode = "invalid_amount"
	CodeMissingField  ErrorCode = "missing_field"
	CodeOutOfRange    ErrorCode = "out_of_range"

	// Configuration errors
	CodeInvalidConfig  ErrorCode = "invalid_config"
	CodeMissingConfig  ErrorCode = "missing_config"
	CodeConfigConflict ErrorCode = "config_conflict"

	// Request errors
	CodeCanceled     ErrorCode = "canceled"
	CodeStaleRequest ErrorCode = "stale_request"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// ReconcilerError is the base error type for all application errors
type ReconcilerError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *ReconcilerError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *ReconcilerError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a ReconcilerError with the same category and code.
// It lets callers compare against the sentinel values declared in this package.
func (e *ReconcilerError) Is(target error) bool {
	t, ok := target.(*ReconcilerError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// GetExitCode returns an appropriate exit code for the error
func (e *ReconcilerError) GetExitCode() int {
	switch e.Category {
	case CategorySource:
		return 2
	case CategoryValidation, CategoryPeriod, CategoryTaxonomy:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryForecast, CategoryInternal:
		return 5
	case CategoryRequest:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *ReconcilerError) WithContext(key string, value interface{}) *ReconcilerError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *ReconcilerError) WithSuggestion(suggestion string) *ReconcilerError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ReconcilerError
func New(category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with ReconcilerError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	return &ReconcilerError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Sentinels for errors.Is comparisons. Only Category and Code are compared.
var (
	ErrNoForecastData = &ReconcilerError{Category: CategoryForecast, Code: CodeNoForecastData}
	ErrCanceled       = &ReconcilerError{Category: CategoryRequest, Code: CodeCanceled}
	ErrStaleRequest   = &ReconcilerError{Category: CategoryRequest, Code: CodeStaleRequest}
)

// Specific error constructors

// SourceError creates an upstream data source error
func SourceError(code ErrorCode, source string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeSourceUnavailable:
		message = fmt.Sprintf("data source unavailable: %s", source)
		suggestion = "the next forecast tier is used when a source fails; check the source if results look incomplete"
	case CodeSourceNotFound:
		message = fmt.Sprintf("data source not found: %s", source)
		suggestion = "check the data directory or database path"
	case CodeStoreFailed:
		message = fmt.Sprintf("store operation failed: %s", source)
		suggestion = "verify the database file is writable and not locked by another process"
	default:
		message = fmt.Sprintf("data source error: %s", source)
		suggestion = "check the source and try again"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategorySource, code, message)
	} else {
		result = New(CategorySource, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("source", source)
}

// TaxonomyError creates an error for reference taxonomy loading
func TaxonomyError(code ErrorCode, path string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeUnsupportedFile:
		message = fmt.Sprintf("unsupported taxonomy file: %s", path)
		suggestion = "use a .yaml, .yml or .toml reference file"
	case CodeReferenceInvalid:
		message = fmt.Sprintf("invalid taxonomy reference: %s", path)
		suggestion = "every entry needs at least an id and a category"
	default:
		message = fmt.Sprintf("taxonomy error: %s", path)
		suggestion = "check the reference file"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryTaxonomy, code, message)
	} else {
		result = New(CategoryTaxonomy, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("path", path)
}

// ForecastError creates a forecast derivation error
func ForecastError(code ErrorCode, projectID string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeNoForecastData:
		message = fmt.Sprintf("no forecast data available for project %s", projectID)
		suggestion = "the baseline may not be materialized yet; load a forecast, allocations or budget lines"
	default:
		message = fmt.Sprintf("forecast error for project %s", projectID)
		suggestion = "review the project's planning data"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryForecast, code, message)
	} else {
		result = New(CategoryForecast, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("project_id", projectID)
}

// ValidationError creates a validation-related error
func ValidationError(code ErrorCode, field string, value interface{}, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidAmount:
		message = fmt.Sprintf("invalid amount in field '%s': %v", field, value)
		suggestion = "ensure amounts are valid decimal numbers (e.g., '12.34')"
	case CodeInvalidPeriod:
		message = fmt.Sprintf("invalid period in field '%s': %v", field, value)
		suggestion = "use a month index 1-60, YYYY-MM, an ISO date or M<n>"
	case CodeMissingField:
		message = fmt.Sprintf("required field '%s' is missing or empty", field)
		suggestion = "provide a value for this required field"
	case CodeOutOfRange:
		message = fmt.Sprintf("value out of range in field '%s': %v", field, value)
		suggestion = "ensure the value is within the acceptable range"
	default:
		message = fmt.Sprintf("validation error in field '%s': %v", field, value)
		suggestion = "check the field value and format"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryValidation, code, message)
	} else {
		result = New(CategoryValidation, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	case CodeMissingConfig:
		message = fmt.Sprintf("missing required configuration: %s", setting)
		suggestion = "provide this configuration setting or use a config file"
	case CodeConfigConflict:
		message = fmt.Sprintf("configuration conflict with setting '%s': %v", setting, value)
		suggestion = "resolve the conflicting settings or use default values"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryConfiguration, code, message)
	} else {
		result = New(CategoryConfiguration, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// RequestError creates an error for a reconciliation request that did not
// produce a publishable result.
func RequestError(code ErrorCode, projectID string, sequence uint64, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeCanceled:
		message = fmt.Sprintf("reconciliation for project %s was canceled", projectID)
		suggestion = "retry the request if the result is still needed"
	case CodeStaleRequest:
		message = fmt.Sprintf("reconciliation %d for project %s was superseded by a newer request", sequence, projectID)
		suggestion = "use the result of the latest request"
	default:
		message = fmt.Sprintf("request error for project %s", projectID)
		suggestion = "retry the request"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryRequest, code, message)
	} else {
		result = New(CategoryRequest, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("project_id", projectID).
		WithContext("sequence", sequence)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *ReconcilerError {
	var message string
	var suggestion string

	switch code {
	case CodeUnexpectedError:
		message = fmt.Sprintf("unexpected error during %s", operation)
		suggestion = "this is likely a bug - please report it with the error details"
	default:
		message = fmt.Sprintf("internal error during %s", operation)
		suggestion = "try again or contact support if the problem persists"
	}

	var result *ReconcilerError
	if err != nil {
		result = Wrap(err, CategoryInternal, code, message)
	} else {
		result = New(CategoryInternal, code, message)
	}

	return result.
		WithSuggestion(suggestion).
		WithContext("operation", operation)
}

// ErrorSummary provides a summary of multiple errors
type ErrorSummary struct {
	Total        int                   `json:"total"`
	ByCategory   map[ErrorCategory]int `json:"by_category"`
	ByCode       map[ErrorCode]int     `json:"by_code"`
	Errors       []*ReconcilerError    `json:"errors"`
	SampleErrors []*ReconcilerError    `json:"sample_errors,omitempty"`
}

// NewErrorSummary creates a new error summary
func NewErrorSummary(errs []*ReconcilerError) *ErrorSummary {
	summary := &ErrorSummary{
		Total:      len(errs),
		ByCategory: make(map[ErrorCategory]int),
		ByCode:     make(map[ErrorCode]int),
		Errors:     errs,
	}
	if len(errs) == 0 {
		summary.Errors = []*ReconcilerError{}
		return summary
	}

	for _, err := range errs {
		summary.ByCategory[err.Category]++
		summary.ByCode[err.Code]++
	}

	// Include sample errors (max 5)
	maxSamples := 5
	if len(errs) > maxSamples {
		summary.SampleErrors = errs[:maxSamples]
	} else {
		summary.SampleErrors = errs
	}

	return summary
}

// Error returns a formatted error message for the summary
func (es *ErrorSummary) Error() string {
	if es.Total == 0 {
		return "no errors"
	}

	if es.Total == 1 {
		return es.Errors[0].Error()
	}

	var categories []string
	for category, count := range es.ByCategory {
		categories = append(categories, fmt.Sprintf("%s: %d", category, count))
	}
	sort.Strings(categories)

	return fmt.Sprintf("%d errors occurred (%s)", es.Total, strings.Join(categories, ", "))
}

// HasCategory checks if the summary contains errors of the given category
func (es *ErrorSummary) HasCategory(category ErrorCategory) bool {
	return es.ByCategory[category] > 0
}

// HasCode checks if the summary contains errors with the given code
func (es *ErrorSummary) HasCode(code ErrorCode) bool {
	return es.ByCode[code] > 0
}

// GetExitCode returns the highest priority exit code from all errors
func (es *ErrorSummary) GetExitCode() int {
	if es.Total == 0 {
		return 0
	}

	maxCode := 1
	for _, err := range es.Errors {
		if code := err.GetExitCode(); code > maxCode {
			maxCode = code
		}
	}

	return maxCode
}

// Utility functions

// IsReconcilerError checks if an error is a ReconcilerError
func IsReconcilerError(err error) bool {
	_, ok := err.(*ReconcilerError)
	return ok
}

// AsReconcilerError extracts a ReconcilerError from an error chain
func AsReconcilerError(err error) (*ReconcilerError, bool) {
	var reconcilerErr *ReconcilerError
	if errors.As(err, &reconcilerErr) {
		return reconcilerErr, true
	}
	return nil, false
}

// WrapIfNeeded wraps an error if it's not already a ReconcilerError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *ReconcilerError {
	if err == nil {
		return nil
	}

	if reconcilerErr, ok := AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return Wrap(err, category, code, message)
}
