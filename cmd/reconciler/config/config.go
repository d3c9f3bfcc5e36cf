package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"forecast-reconciliation-service/internal/forecast"
	"forecast-reconciliation-service/internal/matcher"
	"forecast-reconciliation-service/internal/reconciler"
	"forecast-reconciliation-service/internal/reporter"
	"forecast-reconciliation-service/internal/source"
	"forecast-reconciliation-service/internal/store"
	"forecast-reconciliation-service/internal/taxonomy"
	"forecast-reconciliation-service/pkg/errors"
	"forecast-reconciliation-service/pkg/logger"
)

// CreateLoggerConfig creates the logger configuration for the CLI. Logs go
// to stderr so they never mix with a report written to stdout.
func CreateLoggerConfig(verbose bool, level, format string) (*logger.Config, error) {
	config := logger.DefaultConfig()
	if verbose {
		config = logger.DebugConfig()
	}
	if level != "" {
		config.Level = logger.Level(strings.ToLower(level))
	}
	if format != "" {
		config.Format = logger.Format(strings.ToLower(format))
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "log", level+"/"+format, err)
	}
	return config, nil
}

// CreateForecastConfig creates a derivation configuration with the given horizon
func CreateForecastConfig(horizon int) (*forecast.Config, error) {
	config := forecast.DefaultConfig()
	if horizon != 0 {
		config.Horizon = horizon
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "horizon", horizon, err)
	}
	return config, nil
}

// CreateMatchingConfig creates a matching configuration. An empty statuses
// list keeps the default accepted statuses; strict disables the taxonomy
// and description rules.
func CreateMatchingConfig(statuses []string, strict bool) (*matcher.MatchingConfig, error) {
	config := matcher.DefaultMatchingConfig()
	if strict {
		config = matcher.StrictMatchingConfig()
	}

	var accepted []string
	for _, s := range statuses {
		if s = strings.TrimSpace(s); s != "" {
			accepted = append(accepted, s)
		}
	}
	if len(statuses) > 0 {
		config.AcceptedStatuses = accepted
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "statuses", strings.Join(statuses, ","), err)
	}
	return config, nil
}

// CreateReconcilerConfig assembles the service configuration
func CreateReconcilerConfig(forecastConfig *forecast.Config, matchingConfig *matcher.MatchingConfig, fetchTimeout time.Duration) (*reconciler.Config, error) {
	config := reconciler.DefaultConfig()
	if forecastConfig != nil {
		config.Forecast = forecastConfig
	}
	if matchingConfig != nil {
		config.Matching = matchingConfig
	}
	if fetchTimeout != 0 {
		config.FetchTimeout = fetchTimeout
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", fetchTimeout.String(), err)
	}
	return config, nil
}

// CreateReportConfig creates a report configuration for the specified output format
func CreateReportConfig(format, currency string) (*reporter.ReportConfig, error) {
	outputFormat, err := reporter.ParseOutputFormat(format)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", format, err).
			WithSuggestion("Valid formats: console, json, csv, xlsx")
	}

	config := reporter.DefaultReportConfig()
	config.Format = outputFormat
	if currency != "" {
		config.Currency = strings.ToUpper(currency)
	}

	switch outputFormat {
	case reporter.FormatConsole:
		config.UseColors = true
		config.OnlyVariances = false
	case reporter.FormatJSON:
		config.UseColors = false
	case reporter.FormatCSV:
		config.CSVHeaders = true
		config.CSVDelimiter = ','
		config.IncludeDiagnostics = false
	case reporter.FormatXLSX:
		config.UseColors = false
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "report", format, err)
	}
	return config, nil
}

// LoadTaxonomy builds the taxonomy table from a reference file, or from the
// built-in reference when path is empty
func LoadTaxonomy(path string) (*taxonomy.Table, []taxonomy.ResolverOption, error) {
	ref := taxonomy.DefaultReferenceSet()
	if path != "" {
		loaded, err := taxonomy.LoadReferenceFile(path)
		if err != nil {
			return nil, nil, err
		}
		ref = loaded
	}
	return ref.Build(), ref.ResolverOptions(), nil
}

// OpenSource opens the upstream source: a fixture directory or a SQLite
// store. Exactly one must be given. The returned close function is never nil.
func OpenSource(dataDir, dbPath string, log logger.Logger) (source.Source, func() error, error) {
	noop := func() error { return nil }

	switch {
	case dataDir != "" && dbPath != "":
		return nil, noop, errors.ConfigurationError(errors.CodeConfigConflict, "data-dir/db", dataDir+" "+dbPath, nil).
			WithSuggestion("Use either --data-dir or --db, not both")
	case dataDir != "":
		src, err := source.NewFileSource(dataDir, log)
		if err != nil {
			return nil, noop, err
		}
		return src, noop, nil
	case dbPath != "":
		if _, err := os.Stat(dbPath); err != nil {
			return nil, noop, errors.SourceError(errors.CodeSourceNotFound, dbPath, err).
				WithSuggestion("Run 'reconciler import' to create the database")
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return nil, noop, err
		}
		return st, st.Close, nil
	default:
		return nil, noop, errors.ConfigurationError(errors.CodeMissingConfig, "data-dir/db", nil, fmt.Errorf("no source configured")).
			WithSuggestion("Pass --data-dir with JSON fixtures or --db with an imported database")
	}
}
