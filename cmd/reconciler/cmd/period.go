package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"forecast-reconciliation-service/internal/period"
)

// periodCmd normalizes period values the way source records are read
var periodCmd = &cobra.Command{
	Use:   "period <value>...",
	Short: "Normalize period values to month indexes",
	Long: `Period shows the month index each value normalizes to: numbers in
[1,60], calendar year-months ("2025-07"), ISO dates, month tokens ("M13")
and numeric strings. Rejected values print the reason.

Example:
  reconciler period 2025-07 M13 13 2025-07-15T10:00:00Z M61`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPeriod,
}

func init() {
	rootCmd.AddCommand(periodCmd)
}

func runPeriod(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	for _, value := range args {
		m, err := period.Parse(value)
		if err != nil {
			reason := err.Error()
			if perr, ok := err.(*period.Error); ok {
				reason = string(perr.Reason)
			}
			fmt.Fprintf(w, "%-28s invalid (%s)\n", value, reason)
			continue
		}
		fmt.Fprintf(w, "%-28s M%d\n", value, m)
	}
	return nil
}
