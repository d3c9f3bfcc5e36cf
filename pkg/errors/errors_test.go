package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestReconcilerError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "source error",
			category:   CategorySource,
			code:       CodeSourceUnavailable,
			message:    "allocations unavailable",
			cause:      errors.New("connection reset"),
			expectCode: 2,
		},
		{
			name:       "period error",
			category:   CategoryPeriod,
			code:       CodeInvalidPeriod,
			message:    "invalid period",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
		{
			name:       "forecast error",
			category:   CategoryForecast,
			code:       CodeNoForecastData,
			message:    "no data",
			cause:      nil,
			expectCode: 5,
		},
		{
			name:       "request error",
			category:   CategoryRequest,
			code:       CodeStaleRequest,
			message:    "stale",
			cause:      nil,
			expectCode: 6,
		},
		{
			name:       "internal error",
			category:   CategoryInternal,
			code:       CodeUnexpectedError,
			message:    "bug",
			cause:      nil,
			expectCode: 5,
		},
		{
			name:       "unknown category",
			category:   ErrorCategory("matching"),
			code:       ErrorCode("matching_failed"),
			message:    "no such category",
			cause:      nil,
			expectCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *ReconcilerError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, CategoryInternal, CodeUnexpectedError, "x") != nil {
		t.Error("expected Wrap(nil) to return nil")
	}
	if WrapIfNeeded(nil, CategoryInternal, CodeUnexpectedError, "x") != nil {
		t.Error("expected WrapIfNeeded(nil) to return nil")
	}
}

func TestReconcilerErrorWithContext(t *testing.T) {
	err := New(CategorySource, CodeSourceNotFound, "test error").
		WithContext("source", "allocations.json").
		WithContext("index", 42).
		WithSuggestion("check data dir")

	if err.Context["source"] != "allocations.json" {
		t.Errorf("expected source context, got %v", err.Context["source"])
	}
	if err.Context["index"] != 42 {
		t.Errorf("expected index context 42, got %v", err.Context["index"])
	}

	expected := "test error (suggestion: check data dir)"
	if err.Error() != expected {
		t.Errorf("expected error string '%s', got '%s'", expected, err.Error())
	}
}

func TestSentinelComparison(t *testing.T) {
	err := ForecastError(CodeNoForecastData, "P-1", nil)
	wrapped := fmt.Errorf("reconcile: %w", err)

	if !errors.Is(wrapped, ErrNoForecastData) {
		t.Error("expected wrapped forecast error to match ErrNoForecastData")
	}
	if errors.Is(wrapped, ErrStaleRequest) {
		t.Error("did not expect forecast error to match ErrStaleRequest")
	}

	stale := RequestError(CodeStaleRequest, "P-1", 3, nil)
	if !errors.Is(stale, ErrStaleRequest) {
		t.Error("expected stale request error to match ErrStaleRequest")
	}
	if stale.Context["sequence"] != uint64(3) {
		t.Errorf("expected sequence context 3, got %v", stale.Context["sequence"])
	}
}

func TestSpecificErrorConstructors(t *testing.T) {
	t.Run("SourceError", func(t *testing.T) {
		cause := errors.New("timeout")
		err := SourceError(CodeSourceUnavailable, "allocations", cause)

		if err.Category != CategorySource {
			t.Errorf("expected source category, got %s", err.Category)
		}
		if err.Context["source"] != "allocations" {
			t.Errorf("expected source context, got %v", err.Context["source"])
		}
		if err.Suggestion == "" {
			t.Error("expected suggestion to be set")
		}
		if err.Cause != cause {
			t.Errorf("expected cause to be %v, got %v", cause, err.Cause)
		}
	})

	t.Run("TaxonomyError", func(t *testing.T) {
		err := TaxonomyError(CodeUnsupportedFile, "ref.json", nil)
		if err.Category != CategoryTaxonomy {
			t.Errorf("expected taxonomy category, got %s", err.Category)
		}
		if err.Context["path"] != "ref.json" {
			t.Errorf("expected path context, got %v", err.Context["path"])
		}
	})

	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError(CodeInvalidAmount, "amount", "abc", nil)

		if err.Category != CategoryValidation {
			t.Errorf("expected validation category, got %s", err.Category)
		}
		if err.Context["field"] != "amount" {
			t.Errorf("expected field context, got %v", err.Context["field"])
		}
	})

	t.Run("ForecastError", func(t *testing.T) {
		err := ForecastError(CodeNoForecastData, "P-9", nil)
		if !strings.Contains(err.Message, "P-9") {
			t.Errorf("expected project in message, got %s", err.Message)
		}
		if err.GetExitCode() != 5 {
			t.Errorf("expected exit code 5, got %d", err.GetExitCode())
		}
	})
}

func TestErrorSummary(t *testing.T) {
	errs := []*ReconcilerError{
		New(CategorySource, CodeSourceNotFound, "error 1"),
		New(CategorySource, CodeDecodeFailed, "error 2"),
		New(CategoryValidation, CodeInvalidAmount, "error 3"),
		New(CategoryValidation, CodeMissingField, "error 4"),
		New(CategoryConfiguration, CodeInvalidConfig, "error 5"),
		New(CategoryForecast, CodeNoForecastData, "error 6"),
	}

	summary := NewErrorSummary(errs)

	if summary.Total != 6 {
		t.Errorf("expected total 6, got %d", summary.Total)
	}
	if summary.ByCategory[CategorySource] != 2 {
		t.Errorf("expected 2 source errors, got %d", summary.ByCategory[CategorySource])
	}
	if !summary.HasCode(CodeNoForecastData) {
		t.Error("expected no_forecast_data code")
	}
	if summary.HasCategory(CategoryRequest) {
		t.Error("did not expect request category")
	}
	if len(summary.SampleErrors) != 5 {
		t.Errorf("expected 5 sample errors, got %d", len(summary.SampleErrors))
	}
	if summary.GetExitCode() != 5 {
		t.Errorf("expected exit code 5, got %d", summary.GetExitCode())
	}
	if NewErrorSummary(nil).Error() != "no errors" {
		t.Error("expected empty summary message")
	}
}

func TestRecordErrorCollector(t *testing.T) {
	collector := NewRecordErrorCollector(2)

	collector.Add(DecodeError("data/invoices.json", 0, errors.New("bad json")))
	collector.Add(InvalidRecordError(CodeInvalidAmount, "data/invoices.json", 3, "amount", "x"))
	collector.Add(InvalidRecordError(CodeMissingField, "data/allocations.json", 1, "rubroId", ""))
	collector.Add(nil)

	if collector.Count() != 3 {
		t.Errorf("expected count 3, got %d", collector.Count())
	}
	if len(collector.GetErrors()) != 2 {
		t.Errorf("expected 2 retained errors, got %d", len(collector.GetErrors()))
	}

	msg := collector.GetErrors()[1].Error()
	if !strings.Contains(msg, "invoices.json[3]") || !strings.Contains(msg, "field 'amount'") {
		t.Errorf("expected record location in message, got %s", msg)
	}

	formatted := FormatRecordErrorsForUser(collector.GetErrors())
	if !strings.Contains(formatted, "invoices.json (2)") {
		t.Errorf("expected grouped output, got %s", formatted)
	}

	if collector.GetSummary().ByCategory[CategorySource] != 1 {
		t.Error("expected one source error in summary")
	}
}
