package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"forecast-reconciliation-service/cmd/reconciler/config"
	"forecast-reconciliation-service/internal/reconciler"
	"forecast-reconciliation-service/internal/reporter"
	"forecast-reconciliation-service/pkg/errors"
	"forecast-reconciliation-service/pkg/logger"
)

// Flags for the reconcile command
var (
	projects       []string
	dataDir        string
	dbPath         string
	taxonomyFile   string
	horizon        int
	statuses       []string
	strictMatching bool
	outputFormat   string
	outputFile     string
	currency       string
	onlyVariances  bool
	concurrency    int
	fetchTimeout   time.Duration
	showProgress   bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile project forecasts with invoice actuals",
	Long: `Reconcile derives the monthly forecast of each project from the best
available source (server forecast, then allocations, then budget lines),
merges duplicate cells, posts eligible invoices as actuals and computes
variances.

Data is read from a directory of JSON files (budget_lines.json,
allocations.json, forecast.json, invoices.json) or from a database
created with 'reconciler import'.

Examples:
  # Single project from JSON fixtures
  reconciler reconcile --project P-1 --data-dir ./fixtures

  # Several projects from the database, JSON output
  reconciler reconcile --project P-1 --project P-2 --db reconciler.db -f json

  # Custom taxonomy, five year horizon, only paid invoices
  reconciler reconcile --project P-1 --data-dir ./fixtures \
    --taxonomy taxonomy.yaml --horizon 60 --statuses paid

  # Spreadsheet with variances only
  reconciler reconcile --project P-1 --db reconciler.db \
    -f xlsx -o forecast.xlsx --only-variances`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Required flags
	reconcileCmd.Flags().StringSliceVarP(&projects, "project", "p", []string{}, "project id to reconcile, repeatable (required)")

	// Source flags
	reconcileCmd.Flags().StringVar(&dataDir, "data-dir", "", "directory with JSON source files")
	reconcileCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database created by 'reconciler import'")
	reconcileCmd.Flags().StringVar(&taxonomyFile, "taxonomy", "", "taxonomy reference file (.yaml, .toml or .json)")
	reconcileCmd.Flags().DurationVar(&fetchTimeout, "fetch-timeout", 30*time.Second, "timeout for loading project data")

	// Derivation and matching flags
	reconcileCmd.Flags().IntVar(&horizon, "horizon", 0, "forecast horizon in months (default 36)")
	reconcileCmd.Flags().StringSliceVar(&statuses, "statuses", []string{}, "invoice statuses that post actuals (default: matched, paid, approved, posted, received, validated)")
	reconcileCmd.Flags().BoolVar(&strictMatching, "strict", false, "match invoices on identifiers only")

	// Output flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv, xlsx")
	reconcileCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	reconcileCmd.Flags().StringVar(&currency, "currency", "USD", "currency used to display amounts")
	reconcileCmd.Flags().BoolVar(&onlyVariances, "only-variances", false, "list only cells with a variance")

	// Batch flags
	reconcileCmd.Flags().IntVar(&concurrency, "concurrency", 4, "projects reconciled in parallel")
	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")

	// Mark required flags
	reconcileCmd.MarkFlagRequired("project")

	// Bind flags to viper
	for _, name := range []string{
		"project", "data-dir", "db", "taxonomy", "fetch-timeout", "horizon", "statuses", "strict",
		"output-format", "output-file", "currency", "only-variances", "concurrency", "progress",
	} {
		viper.BindPFlag(name, reconcileCmd.Flags().Lookup(name))
	}
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	projects = viper.GetStringSlice("project")
	dataDir = viper.GetString("data-dir")
	dbPath = viper.GetString("db")
	taxonomyFile = viper.GetString("taxonomy")
	fetchTimeout = viper.GetDuration("fetch-timeout")
	horizon = viper.GetInt("horizon")
	statuses = viper.GetStringSlice("statuses")
	strictMatching = viper.GetBool("strict")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	currency = viper.GetString("currency")
	onlyVariances = viper.GetBool("only-variances")
	concurrency = viper.GetInt("concurrency")
	showProgress = viper.GetBool("progress")

	return validateReconcileOptions()
}

func validateReconcileOptions() error {
	var cleaned []string
	for _, p := range projects {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	projects = cleaned
	if len(projects) == 0 {
		return errors.ValidationError(errors.CodeMissingField, "project", nil, nil).
			WithSuggestion("Pass --project with the project id to reconcile")
	}

	if dataDir == "" && dbPath == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "data-dir/db", nil, fmt.Errorf("no source configured")).
			WithSuggestion("Pass --data-dir with JSON files or --db with an imported database")
	}
	if dataDir != "" && dbPath != "" {
		return errors.ConfigurationError(errors.CodeConfigConflict, "data-dir/db", nil, nil).
			WithSuggestion("Use either --data-dir or --db, not both")
	}
	if dataDir != "" {
		if err := validateDirExists(dataDir, "data directory"); err != nil {
			return err
		}
	}
	if dbPath != "" {
		if err := validateFileExists(dbPath, "database"); err != nil {
			return err
		}
	}
	if taxonomyFile != "" {
		if err := validateFileExists(taxonomyFile, "taxonomy file"); err != nil {
			return err
		}
	}

	format, err := reporter.ParseOutputFormat(outputFormat)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output-format", outputFormat, err).
			WithSuggestion("Valid formats: console, json, csv, xlsx")
	}
	if format.IsBinary() && outputFile == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "output-file", nil, fmt.Errorf("%s output cannot be written to the terminal", format)).
			WithSuggestion("Pass --output-file for spreadsheet output")
	}

	if horizon < 0 || horizon > 60 {
		return errors.ValidationError(errors.CodeOutOfRange, "horizon", horizon, nil).
			WithSuggestion("Horizon must be between 1 and 60 months")
	}
	if concurrency < 1 {
		return errors.ValidationError(errors.CodeOutOfRange, "concurrency", concurrency, nil).
			WithSuggestion("Concurrency must be at least 1")
	}
	if fetchTimeout < 0 {
		return errors.ValidationError(errors.CodeOutOfRange, "fetch-timeout", fetchTimeout.String(), nil)
	}

	// Validate output file directory exists if specified
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.ValidationError(errors.CodeMissingField, "output-file", outputFile, err).
					WithSuggestion(fmt.Sprintf("Create the output directory %s first", dir))
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.SourceError(errors.CodeSourceNotFound, filePath, err).
			WithContext("description", description)
	}
	if err != nil {
		return errors.SourceError(errors.CodeSourceUnavailable, filePath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return errors.SourceError(errors.CodeSourceUnavailable, filePath, err)
	}
	file.Close()

	return nil
}

func validateDirExists(dirPath, description string) error {
	info, err := os.Stat(dirPath)
	if os.IsNotExist(err) {
		return errors.SourceError(errors.CodeSourceNotFound, dirPath, err).
			WithContext("description", description)
	}
	if err != nil {
		return errors.SourceError(errors.CodeSourceUnavailable, dirPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory: %s", description, dirPath)
	}
	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger().WithComponent("cli")
	log.WithFields(logger.Fields{
		"projects": strings.Join(projects, ","),
		"data_dir": dataDir,
		"db":       dbPath,
		"format":   outputFormat,
	}).Info("Starting reconciliation")

	src, closeSource, err := config.OpenSource(dataDir, dbPath, log)
	if err != nil {
		return err
	}
	defer closeSource()

	table, resolverOpts, err := config.LoadTaxonomy(taxonomyFile)
	if err != nil {
		return err
	}

	forecastConfig, err := config.CreateForecastConfig(horizon)
	if err != nil {
		return err
	}
	matchingConfig, err := config.CreateMatchingConfig(statuses, strictMatching)
	if err != nil {
		return err
	}
	reconcilerConfig, err := config.CreateReconcilerConfig(forecastConfig, matchingConfig, fetchTimeout)
	if err != nil {
		return err
	}

	service, err := reconciler.NewService(src, table, reconcilerConfig,
		reconciler.WithResolverOptions(resolverOpts...),
		reconciler.WithLogger(log),
	)
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(outputFormat, currency)
	if err != nil {
		return err
	}
	reportConfig.OnlyVariances = onlyVariances
	if outputFile != "" {
		reportConfig.UseColors = false
	}
	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}

	// Determine output destination
	var output io.Writer = cmd.OutOrStdout()
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			return errors.SourceError(errors.CodeSourceUnavailable, outputFile, err).
				WithSuggestion("Check that the output location is writable")
		}
		defer file.Close()
		output = file
	}

	if len(projects) == 1 {
		result, err := service.Reconcile(ctx, &reconciler.Request{ProjectID: projects[0]})
		if err != nil {
			return err
		}
		if err := generator.GenerateReportSafely(result, output); err != nil {
			return err
		}
		printCompletion(cmd, result)
		return nil
	}

	orchestrator, err := reconciler.NewOrchestrator(service, concurrency)
	if err != nil {
		return err
	}
	if showProgress {
		orchestrator.AddProgressCallback(func(p reconciler.BatchProgress) {
			fmt.Fprintf(cmd.ErrOrStderr(), "\r[%d/%d] %s (%.1f%% complete)",
				p.Completed, p.TotalProjects, p.LastProject, p.PercentComplete)
		})
	}

	batch := orchestrator.ReconcileAll(ctx, projects)
	if showProgress {
		fmt.Fprintln(cmd.ErrOrStderr())
	}
	if err := generator.GenerateBatchReportSafely(batch, output); err != nil {
		return err
	}

	if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nReconciled %d projects: %d succeeded, %d failed in %s\n",
			len(batch.Outcomes), batch.Succeeded, batch.Failed, batch.Duration)
	}

	// The batch fails only when no project could be reconciled
	if batch.Succeeded == 0 {
		if errs := batch.Errors(); len(errs) > 0 {
			return errors.NewErrorSummary(errs)
		}
		return fmt.Errorf("no project could be reconciled")
	}
	return nil
}

func printCompletion(cmd *cobra.Command, result *reconciler.Result) {
	if !verbose || result.Summary == nil {
		return
	}
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "\nReconciliation of %s completed (%s).\n", result.ProjectID, result.DataSource)
	fmt.Fprintf(w, "Cells: %d, months M%d-M%d\n", result.Summary.Total.Cells, result.Summary.FirstMonth, result.Summary.LastMonth)
	if d := result.Diagnostics; d != nil {
		fmt.Fprintf(w, "Invoices matched: %d, unmatched: %d, malformed: %d\n",
			d.Matching.Matched, d.Matching.Unmatched, d.Matching.Malformed)
		if d.RecordErrorCount > 0 {
			fmt.Fprintf(w, "%s\n", errors.FormatRecordErrorsForUser(d.RecordErrors))
		}
	}
	fmt.Fprintf(w, "Processing time: %v\n", result.Summary.ProcessingDuration)
}
