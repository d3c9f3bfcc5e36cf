package errors

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// RecordContext locates a single upstream record that could not be used.
type RecordContext struct {
	Source string `json:"source"`
	Index  int    `json:"index"`
	Field  string `json:"field,omitempty"`
	Value  string `json:"value,omitempty"`
}

// RecordError describes a malformed upstream record. Record errors are
// collected and counted; they never abort a batch.
type RecordError struct {
	*ReconcilerError
	Record *RecordContext `json:"record"`
}

// Error implements the error interface with the record location appended
func (e *RecordError) Error() string {
	if e.Record == nil {
		return e.ReconcilerError.Error()
	}
	location := fmt.Sprintf("at %s[%d]", filepath.Base(e.Record.Source), e.Record.Index)
	if e.Record.Field != "" {
		location += fmt.Sprintf(" field '%s'", e.Record.Field)
	}
	return e.ReconcilerError.Error() + " " + location
}

// DecodeError creates an error for a record that failed to decode
func DecodeError(source string, index int, cause error) *RecordError {
	base := Wrap(cause, CategorySource, CodeDecodeFailed, fmt.Sprintf("cannot decode record from %s", source))
	if base == nil {
		base = New(CategorySource, CodeDecodeFailed, fmt.Sprintf("cannot decode record from %s", source))
	}
	base.WithSuggestion("check the record's field types; amounts may be numbers or quoted decimals").
		WithContext("source", source).
		WithContext("index", index)

	return &RecordError{
		ReconcilerError: base,
		Record:          &RecordContext{Source: source, Index: index},
	}
}

// InvalidRecordError creates an error for a decoded record with an unusable field
func InvalidRecordError(code ErrorCode, source string, index int, field, value string) *RecordError {
	base := ValidationError(code, field, value, nil).
		WithContext("source", source).
		WithContext("index", index)

	return &RecordError{
		ReconcilerError: base,
		Record:          &RecordContext{Source: source, Index: index, Field: field, Value: value},
	}
}

// RecordErrorCollector collects record errors up to a limit. It is safe for
// concurrent use.
type RecordErrorCollector struct {
	mu        sync.Mutex
	errors    []*RecordError
	maxErrors int
	dropped   int
}

// NewRecordErrorCollector creates a collector keeping at most maxErrors errors.
// Errors beyond the limit are counted but not retained.
func NewRecordErrorCollector(maxErrors int) *RecordErrorCollector {
	if maxErrors <= 0 {
		maxErrors = 100
	}
	return &RecordErrorCollector{
		errors:    make([]*RecordError, 0),
		maxErrors: maxErrors,
	}
}

// Add adds an error to the collector
func (c *RecordErrorCollector) Add(err *RecordError) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.errors) >= c.maxErrors {
		c.dropped++
		return
	}
	c.errors = append(c.errors, err)
}

// Count returns the total number of errors added, including dropped ones
func (c *RecordErrorCollector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errors) + c.dropped
}

// HasErrors returns true if any errors have been collected
func (c *RecordErrorCollector) HasErrors() bool {
	return c.Count() > 0
}

// GetErrors returns the retained errors
func (c *RecordErrorCollector) GetErrors() []*RecordError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*RecordError(nil), c.errors...)
}

// GetSummary returns an error summary for the retained errors
func (c *RecordErrorCollector) GetSummary() *ErrorSummary {
	errs := c.GetErrors()
	result := make([]*ReconcilerError, len(errs))
	for i, err := range errs {
		result[i] = err.ReconcilerError
	}
	return NewErrorSummary(result)
}

// FormatRecordErrorsForUser formats record errors grouped by source
func FormatRecordErrorsForUser(errs []*RecordError) string {
	if len(errs) == 0 {
		return "No record errors"
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Skipped %d malformed records:", len(errs)))

	bySource := make(map[string][]*RecordError)
	var order []string
	for _, err := range errs {
		source := "unknown"
		if err.Record != nil {
			source = filepath.Base(err.Record.Source)
		}
		if _, seen := bySource[source]; !seen {
			order = append(order, source)
		}
		bySource[source] = append(bySource[source], err)
	}

	maxDetailed := 3
	for _, source := range order {
		sourceErrs := bySource[source]
		lines = append(lines, fmt.Sprintf("  %s (%d)", source, len(sourceErrs)))
		for i, err := range sourceErrs {
			if i == maxDetailed {
				lines = append(lines, fmt.Sprintf("    ... and %d more", len(sourceErrs)-maxDetailed))
				break
			}
			lines = append(lines, "    • "+err.Error())
		}
	}

	return strings.Join(lines, "\n")
}
