package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"forecast-reconciliation-service/internal/forecast"
	"forecast-reconciliation-service/internal/matcher"
	"forecast-reconciliation-service/internal/reporter"
	"forecast-reconciliation-service/internal/source"
	"forecast-reconciliation-service/internal/store"
	"forecast-reconciliation-service/pkg/errors"
	"forecast-reconciliation-service/pkg/logger"
)

func TestCreateLoggerConfig(t *testing.T) {
	tests := []struct {
		name        string
		verbose     bool
		level       string
		format      string
		expected    logger.Level
		expectError bool
	}{
		{"default", false, "", "", logger.WarnLevel, false},
		{"verbose", true, "", "", logger.DebugLevel, false},
		{"explicit level wins", true, "INFO", "json", logger.InfoLevel, false},
		{"invalid level", false, "loud", "", "", true},
		{"invalid format", false, "", "xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := CreateLoggerConfig(tt.verbose, tt.level, tt.format)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.Level != tt.expected {
				t.Errorf("expected level %s, got %s", tt.expected, config.Level)
			}
			if config.Output != logger.StderrOutput {
				t.Errorf("expected stderr output, got %s", config.Output)
			}
		})
	}
}

func TestCreateForecastConfig(t *testing.T) {
	tests := []struct {
		name        string
		horizon     int
		expected    int
		expectError bool
	}{
		{"default horizon", 0, forecast.DefaultHorizon, false},
		{"custom horizon", 48, 48, false},
		{"upper bound", 60, 60, false},
		{"beyond five years", 61, 0, true},
		{"negative", -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := CreateForecastConfig(tt.horizon)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.Horizon != tt.expected {
				t.Errorf("expected horizon %d, got %d", tt.expected, config.Horizon)
			}
		})
	}
}

func TestCreateMatchingConfig(t *testing.T) {
	config, err := CreateMatchingConfig(nil, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(config.AcceptedStatuses) != len(matcher.DefaultAcceptedStatuses) {
		t.Errorf("expected default statuses, got %v", config.AcceptedStatuses)
	}
	if !config.EnableDescriptionMatching || !config.EnableTaxonomyMatching {
		t.Errorf("expected every rule enabled")
	}

	config, err = CreateMatchingConfig([]string{" paid ", "", "approved"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(config.AcceptedStatuses) != 2 || config.AcceptedStatuses[0] != "paid" {
		t.Errorf("expected [paid approved], got %v", config.AcceptedStatuses)
	}
	if config.EnableDescriptionMatching || config.EnableTaxonomyMatching {
		t.Errorf("strict config should disable free-text rules")
	}

	if _, err := CreateMatchingConfig([]string{" "}, false); err == nil {
		t.Errorf("expected error for blank statuses")
	}
}

func TestCreateReconcilerConfig(t *testing.T) {
	fc, _ := CreateForecastConfig(24)
	mc, _ := CreateMatchingConfig(nil, true)

	config, err := CreateReconcilerConfig(fc, mc, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if config.Forecast.Horizon != 24 {
		t.Errorf("expected horizon 24, got %d", config.Forecast.Horizon)
	}
	if config.Matching.EnableDescriptionMatching {
		t.Errorf("expected strict matching config")
	}
	if config.FetchTimeout != 5*time.Second {
		t.Errorf("expected fetch timeout 5s, got %s", config.FetchTimeout)
	}

	if _, err := CreateReconcilerConfig(nil, nil, -time.Second); err == nil {
		t.Errorf("expected error for negative timeout")
	}
}

func TestCreateReportConfig(t *testing.T) {
	tests := []struct {
		format      string
		currency    string
		expected    reporter.OutputFormat
		expectError bool
	}{
		{"console", "", reporter.FormatConsole, false},
		{"json", "eur", reporter.FormatJSON, false},
		{"csv", "", reporter.FormatCSV, false},
		{"xlsx", "", reporter.FormatXLSX, false},
		{"pdf", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			config, err := CreateReportConfig(tt.format, tt.currency)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if config.Format != tt.expected {
				t.Errorf("expected format %s, got %s", tt.expected, config.Format)
			}
			if tt.currency != "" && config.Currency != "EUR" {
				t.Errorf("expected currency EUR, got %s", config.Currency)
			}
			if tt.expected == reporter.FormatCSV && config.IncludeDiagnostics {
				t.Errorf("CSV output should not include diagnostics")
			}
		})
	}
}

func TestLoadTaxonomy(t *testing.T) {
	table, opts, err := LoadTaxonomy("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() == 0 {
		t.Errorf("expected built-in reference entries")
	}
	if len(opts) == 0 {
		t.Errorf("expected legacy alias option from the built-in reference")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "taxonomy.yaml")
	content := "entries:\n  - id: OPS-1\n    category: Operaciones\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write reference: %v", err)
	}
	table, _, err = LoadTaxonomy(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := table.Find("ops-1"); !ok {
		t.Errorf("expected OPS-1 in loaded table")
	}

	if _, _, err := LoadTaxonomy(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestOpenSource(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "reconciler.db")
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	st.Close()

	tests := []struct {
		name     string
		dataDir  string
		dbPath   string
		wantCode errors.ErrorCode
		wantType string
	}{
		{name: "data dir", dataDir: dir, wantType: "file"},
		{name: "database", dbPath: dbPath, wantType: "store"},
		{name: "both", dataDir: dir, dbPath: dbPath, wantCode: errors.CodeConfigConflict},
		{name: "neither", wantCode: errors.CodeMissingConfig},
		{name: "missing database", dbPath: filepath.Join(dir, "nope.db"), wantCode: errors.CodeSourceNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, closeFn, err := OpenSource(tt.dataDir, tt.dbPath, logger.Discard())
			if closeFn == nil {
				t.Fatalf("close function must never be nil")
			}
			defer closeFn()

			if tt.wantCode != "" {
				rerr, ok := errors.AsReconcilerError(err)
				if !ok || rerr.Code != tt.wantCode {
					t.Errorf("expected code %s, got %v", tt.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			switch tt.wantType {
			case "file":
				if _, ok := src.(*source.FileSource); !ok {
					t.Errorf("expected *source.FileSource, got %T", src)
				}
			case "store":
				if _, ok := src.(*store.Store); !ok {
					t.Errorf("expected *store.Store, got %T", src)
				}
			}
		})
	}
}
