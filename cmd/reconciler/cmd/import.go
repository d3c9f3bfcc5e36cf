package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"forecast-reconciliation-service/internal/source"
	"forecast-reconciliation-service/internal/store"
	"forecast-reconciliation-service/pkg/errors"
	"forecast-reconciliation-service/pkg/logger"
)

// Flags for the import command
var (
	importDataDir  string
	importDB       string
	importProjects []string
	importReplace  bool
)

// importCmd loads JSON fixtures into the SQLite store
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load JSON source files into the database",
	Long: `Import reads budget_lines.json, allocations.json, forecast.json and
invoices.json from a directory and stores the records of the given projects
in a SQLite database that 'reconciler reconcile --db' can read.

Records are upserted by id. With --replace the project's previous records
are removed first.

Examples:
  reconciler import --data-dir ./fixtures --db reconciler.db --project P-1
  reconciler import --data-dir ./fixtures --db reconciler.db -p P-1 -p P-2 --replace`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importDataDir, "data-dir", "", "directory with JSON source files (required)")
	importCmd.Flags().StringVar(&importDB, "db", "reconciler.db", "SQLite database to write")
	importCmd.Flags().StringSliceVarP(&importProjects, "project", "p", []string{}, "project id to import, repeatable (required)")
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "remove the project's stored records first")

	importCmd.MarkFlagRequired("data-dir")
	importCmd.MarkFlagRequired("project")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.GetGlobalLogger().WithComponent("import")

	src, err := source.NewFileSource(importDataDir, log)
	if err != nil {
		return err
	}
	st, err := store.Open(importDB)
	if err != nil {
		return err
	}
	defer st.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-16s %12s %12s %12s %12s %8s\n", "PROJECT", "BUDGET", "ALLOCATIONS", "FORECAST", "INVOICES", "ERRORS")

	for _, project := range importProjects {
		project = strings.TrimSpace(project)
		if project == "" {
			continue
		}

		collector := errors.NewRecordErrorCollector(100)
		projectCtx := source.WithRecordErrors(ctx, collector)
		err := logger.TimedOperation("import "+project, log, func() error {
			return importProject(projectCtx, src, st, project)
		})
		if err != nil {
			return err
		}

		counts, err := st.Counts(ctx, project)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%-16s %12d %12d %12d %12d %8d\n", project,
			counts[source.KindBudgetLines], counts[source.KindAllocations],
			counts[source.KindServerForecast], counts[source.KindInvoices],
			collector.Count())

		if collector.HasErrors() {
			log.WithFields(logger.Fields{
				"project": project,
				"errors":  collector.Count(),
			}).Warn("Skipped malformed records")
			if verbose {
				fmt.Fprintln(cmd.ErrOrStderr(), errors.FormatRecordErrorsForUser(collector.GetErrors()))
			}
		}
	}

	fmt.Fprintf(out, "\nDatabase: %s\n", st.Path())
	return nil
}

func importProject(ctx context.Context, src *source.FileSource, st *store.Store, project string) error {
	if importReplace {
		removed, err := st.DeleteProject(ctx, project)
		if err != nil {
			return err
		}
		logger.WithFields(logger.Fields{"project": project, "removed": removed}).Debug("Cleared stored records")
	}

	lines, err := src.BudgetLines(ctx, project)
	if err != nil {
		return err
	}
	if err := st.PutBudgetLines(ctx, project, lines); err != nil {
		return err
	}

	allocations, err := src.Allocations(ctx, project)
	if err != nil {
		return err
	}
	if err := st.PutAllocations(ctx, project, allocations); err != nil {
		return err
	}

	cells, err := src.ServerForecast(ctx, project)
	if err != nil {
		return err
	}
	if err := st.PutServerForecast(ctx, project, cells); err != nil {
		return err
	}

	invoices, err := src.Invoices(ctx, project)
	if err != nil {
		return err
	}
	return st.PutInvoices(ctx, project, invoices)
}
