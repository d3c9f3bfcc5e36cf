package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"forecast-reconciliation-service/cmd/reconciler/config"
	"forecast-reconciliation-service/internal/taxonomy"
)

var referenceFile string

// taxonomyCmd groups the taxonomy debugging commands
var taxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Inspect the cost-line taxonomy",
}

var taxonomyResolveCmd = &cobra.Command{
	Use:   "resolve <id>...",
	Short: "Show how identifiers resolve against the taxonomy",
	Long: `Resolve looks every identifier up the way the reconciler does: legacy
aliases, exact key, labor override and tolerant match. Unmapped identifiers
get the closest known key as a suggestion.

Examples:
  reconciler taxonomy resolve MOD-ING "Project Manager" INFRA-001
  reconciler taxonomy resolve --reference taxonomy.yaml OPS-1`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTaxonomyResolve,
}

var taxonomyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the taxonomy entries",
	RunE:  runTaxonomyList,
}

func init() {
	rootCmd.AddCommand(taxonomyCmd)
	taxonomyCmd.AddCommand(taxonomyResolveCmd, taxonomyListCmd)

	taxonomyCmd.PersistentFlags().StringVar(&referenceFile, "reference", "", "taxonomy reference file (.yaml, .toml or .json)")
}

func runTaxonomyResolve(cmd *cobra.Command, args []string) error {
	table, opts, err := config.LoadTaxonomy(referenceFile)
	if err != nil {
		return err
	}
	writeResolutions(cmd.OutOrStdout(), taxonomy.NewResolver(table, opts...), args)
	return nil
}

func writeResolutions(w io.Writer, resolver *taxonomy.Resolver, ids []string) {
	fmt.Fprintf(w, "%-28s %-16s %-14s %-32s %s\n", "INPUT", "ENTRY", "STEP", "CATEGORY", "LABOR")
	for _, id := range ids {
		entry := resolver.ResolveOne(id)
		if entry == nil {
			line := fmt.Sprintf("%-28s %-16s %-14s", id, "-", resolver.LastStep())
			if suggestion := resolver.Table().Suggest(id); suggestion != "" {
				line += fmt.Sprintf(" did you mean %s?", suggestion)
			}
			fmt.Fprintln(w, line)
			continue
		}
		fmt.Fprintf(w, "%-28s %-16s %-14s %-32s %t\n", id, entry.ID, resolver.LastStep(), entry.Category, entry.IsLabor)
	}
}

func runTaxonomyList(cmd *cobra.Command, args []string) error {
	table, _, err := config.LoadTaxonomy(referenceFile)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-16s %-16s %-32s %-6s %s\n", "ID", "ALT CODE", "CATEGORY", "LABOR", "DESCRIPTION")
	for _, e := range table.Entries() {
		fmt.Fprintf(w, "%-16s %-16s %-32s %-6t %s\n", e.ID, e.AltCode, e.Category, e.IsLabor, e.Description)
	}
	fmt.Fprintf(w, "\n%d entries, %d keys, %d labor keys\n", len(table.Entries()), table.Len(), len(table.LaborKeys()))
	return nil
}
