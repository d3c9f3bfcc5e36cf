package reporter

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/internal/reconciler"
	"forecast-reconciliation-service/internal/source"
)

// Theme colors
var (
	colorBorder = lipgloss.Color("#575653")
	colorText   = lipgloss.Color("#FFFCF0")
	colorAccent = lipgloss.Color("#3AA99F")
	colorGreen  = lipgloss.Color("#879A39")
	colorOrange = lipgloss.Color("#DA702C")
	colorRed    = lipgloss.Color("#D14D41")
)

type styles struct {
	title  lipgloss.Style
	header lipgloss.Style
	border lipgloss.Style
	good   lipgloss.Style
	warn   lipgloss.Style
	bad    lipgloss.Style
	plain  lipgloss.Style
}

func newStyles(colors bool) styles {
	if !colors {
		plain := lipgloss.NewStyle()
		return styles{
			title:  plain.Bold(true),
			header: plain,
			border: plain,
			good:   plain,
			warn:   plain,
			bad:    plain,
			plain:  plain,
		}
	}
	return styles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(colorText),
		header: lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		border: lipgloss.NewStyle().Foreground(colorBorder),
		good:   lipgloss.NewStyle().Foreground(colorGreen),
		warn:   lipgloss.NewStyle().Foreground(colorOrange),
		bad:    lipgloss.NewStyle().Foreground(colorRed),
		plain:  lipgloss.NewStyle(),
	}
}

// table is a bordered text table
type table struct {
	Title      string
	Headers    []string
	Rows       [][]string
	RightAlign map[int]bool
}

func (s styles) renderTitle(title string, width int) string {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorBorder).
		Width(width).
		Align(lipgloss.Center).
		Padding(0, 1)
	return box.Render(s.title.Render(title))
}

// renderTable renders t with box-drawing borders. Cells wider than maxCell
// are truncated.
func (s styles) renderTable(t table, maxCell int) string {
	numCols := len(t.Headers)
	if numCols == 0 {
		return ""
	}

	rows := make([][]string, len(t.Rows))
	for r, row := range t.Rows {
		rows[r] = make([]string, numCols)
		for i := 0; i < numCols && i < len(row); i++ {
			rows[r][i] = truncate(row[i], maxCell)
		}
	}

	widths := make([]int, numCols)
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	if t.Title != "" {
		b.WriteString(s.header.Render(t.Title))
		b.WriteString("\n")
	}

	line := func(left, mid, right string) {
		b.WriteString(s.border.Render(left))
		for i, w := range widths {
			b.WriteString(s.border.Render(strings.Repeat("─", w+2)))
			if i < numCols-1 {
				b.WriteString(s.border.Render(mid))
			}
		}
		b.WriteString(s.border.Render(right))
		b.WriteString("\n")
	}
	row := func(cells []string, style lipgloss.Style) {
		b.WriteString(s.border.Render("│"))
		for i, cell := range cells {
			b.WriteString(style.Render(" " + pad(cell, widths[i], t.RightAlign[i]) + " "))
			b.WriteString(s.border.Render("│"))
		}
		b.WriteString("\n")
	}

	line("╭", "┬", "╮")
	row(t.Headers, s.header)
	line("├", "┼", "┤")
	for _, r := range rows {
		row(r, s.plain)
	}
	line("╰", "┴", "╯")
	return b.String()
}

func pad(s string, width int, right bool) string {
	gap := width - lipgloss.Width(s)
	if gap <= 0 {
		return s
	}
	if right {
		return strings.Repeat(" ", gap) + s
	}
	return s + strings.Repeat(" ", gap)
}

func truncate(s string, max int) string {
	if max <= 0 || lipgloss.Width(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) > max-1 {
		runes = runes[:max-1]
	}
	return string(runes) + "…"
}

// generateConsoleReport generates a human-readable report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.Result, writer io.Writer) error {
	s := newStyles(rg.config.UseColors)
	cur := rg.config.Currency

	var b strings.Builder
	b.WriteString(s.renderTitle("FORECAST RECONCILIATION · "+result.ProjectID, 60))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Run:         %s (#%d)\n", result.RunID, result.Sequence)
	fmt.Fprintf(&b, "Data source: %s\n", result.DataSource)
	if !result.ProcessedAt.IsZero() {
		fmt.Fprintf(&b, "Processed:   %s\n", result.ProcessedAt.Format("2006-01-02 15:04:05"))
	}
	if sum := result.Summary; sum != nil {
		if sum.FirstMonth > 0 {
			fmt.Fprintf(&b, "Months:      M%d - M%d\n", sum.FirstMonth, sum.LastMonth)
		}
		fmt.Fprintf(&b, "Duration:    %s\n", sum.ProcessingDuration)
		b.WriteString("\n")

		b.WriteString(s.renderTable(table{
			Title:      "=== SUMMARY ===",
			Headers:    []string{"Group", "Cells", "Planned", "Forecast", "Actual"},
			RightAlign: map[int]bool{1: true, 2: true, 3: true, 4: true},
			Rows: [][]string{
				totalsRow("Labor", sum.Labor, cur),
				totalsRow("Non-labor", sum.NonLabor, cur),
				totalsRow("Total", sum.Total, cur),
			},
		}, rg.config.TableMaxWidth))
		b.WriteString("\n")
	}

	if diag := result.Diagnostics; diag != nil {
		m := diag.Matching
		fmt.Fprintf(&b, "%s\n", s.header.Render("=== INVOICE MATCHING ==="))
		fmt.Fprintf(&b, "Invoices:  %d total, %d eligible, %d ineligible, %d malformed\n",
			m.TotalInvoices, m.Eligible, m.Ineligible, m.Malformed)
		fmt.Fprintf(&b, "Matched:   %s (%s)\n",
			s.good.Render(fmt.Sprintf("%d (%.1f%%)", m.Matched, percentage(m.Matched, m.Eligible))),
			FormatAmount(m.AmountMatched, cur))
		unmatched := fmt.Sprintf("%d (%.1f%%)", m.Unmatched, percentage(m.Unmatched, m.Eligible))
		if m.Unmatched > 0 {
			unmatched = s.warn.Render(unmatched)
		}
		fmt.Fprintf(&b, "Unmatched: %s (%s)\n", unmatched, FormatAmount(m.AmountUnmatched, cur))
		if len(m.ByRule) > 0 {
			rules := make([]string, 0, len(m.ByRule))
			for rule := range m.ByRule {
				rules = append(rules, rule)
			}
			sort.Strings(rules)
			for _, rule := range rules {
				fmt.Fprintf(&b, "  %-16s %d\n", rule, m.ByRule[rule])
			}
		}
		b.WriteString("\n")
	}

	if rg.config.IncludeCells {
		cells := rg.selectCells(result)
		if len(cells) > 0 {
			b.WriteString(s.renderTable(rg.cellTable(cells), rg.config.TableMaxWidth/4))
			b.WriteString("\n")
		}
	}

	if rg.config.IncludeUnmatched && len(result.UnmatchedInvoices) > 0 {
		b.WriteString(s.renderTable(rg.unmatchedTable(result.UnmatchedInvoices), rg.config.TableMaxWidth/4))
		b.WriteString("\n")
	}

	if rg.config.IncludeDiagnostics && result.Diagnostics != nil {
		rg.writeDiagnostics(&b, s, result.Diagnostics)
	}

	_, err := io.WriteString(writer, b.String())
	return err
}

// generateConsoleBatchReport lists one row per project of a batch
func (rg *ReportGenerator) generateConsoleBatchReport(batch *reconciler.BatchResult, writer io.Writer) error {
	s := newStyles(rg.config.UseColors)
	cur := rg.config.Currency

	var b strings.Builder
	b.WriteString(s.renderTitle("FORECAST RECONCILIATION BATCH", 60))
	b.WriteString("\n\n")

	var grand reconciler.Totals
	rows := make([][]string, 0, len(batch.Outcomes))
	for _, o := range batch.Outcomes {
		if o.Result == nil || o.Result.Summary == nil {
			rows = append(rows, []string{o.ProjectID, s.bad.Render("failed"), "-", "-", "-", "-", "-", o.Error})
			continue
		}
		t := o.Result.Summary.Total
		grand.Cells += t.Cells
		grand.Planned = grand.Planned.Add(t.Planned)
		grand.Forecast = grand.Forecast.Add(t.Forecast)
		grand.Actual = grand.Actual.Add(t.Actual)
		rows = append(rows, []string{
			o.ProjectID,
			s.good.Render("ok"),
			string(o.Result.DataSource),
			strconv.Itoa(t.Cells),
			FormatAmount(t.Planned, cur),
			FormatAmount(t.Forecast, cur),
			FormatAmount(t.Actual, cur),
			"",
		})
	}
	rows = append(rows, []string{
		"TOTAL", "", "", strconv.Itoa(grand.Cells),
		FormatAmount(grand.Planned, cur),
		FormatAmount(grand.Forecast, cur),
		FormatAmount(grand.Actual, cur),
		"",
	})

	b.WriteString(s.renderTable(table{
		Title:      "=== PROJECTS ===",
		Headers:    []string{"Project", "Status", "Source", "Cells", "Planned", "Forecast", "Actual", "Error"},
		Rows:       rows,
		RightAlign: map[int]bool{3: true, 4: true, 5: true, 6: true},
	}, rg.config.TableMaxWidth/2))
	fmt.Fprintf(&b, "\nSucceeded: %d  Failed: %d  Duration: %s\n", batch.Succeeded, batch.Failed, batch.Duration)

	_, err := io.WriteString(writer, b.String())
	return err
}

func (rg *ReportGenerator) cellTable(cells []*models.ForecastCell) table {
	cur := rg.config.Currency
	rows := make([][]string, 0, len(cells))
	for _, c := range cells {
		rows = append(rows, []string{
			c.CostLineID,
			"M" + strconv.Itoa(c.Month),
			c.Category,
			c.Description,
			FormatAmount(c.Planned, cur),
			FormatAmount(c.Forecast, cur),
			FormatAmount(c.Actual, cur),
			FormatAmount(c.Variance, cur),
		})
	}
	return table{
		Title:      fmt.Sprintf("=== FORECAST CELLS (%d) ===", len(cells)),
		Headers:    []string{"Rubro", "Month", "Category", "Description", "Planned", "Forecast", "Actual", "Variance"},
		Rows:       rows,
		RightAlign: map[int]bool{1: true, 4: true, 5: true, 6: true, 7: true},
	}
}

func (rg *ReportGenerator) unmatchedTable(invoices []*models.Invoice) table {
	rows := make([][]string, 0, len(invoices))
	for _, inv := range invoices {
		month := "-"
		if m := inv.Month(); m > 0 {
			month = "M" + strconv.Itoa(m)
		}
		rows = append(rows, []string{
			inv.ID,
			strings.Join(inv.Identifiers(), ", "),
			month,
			FormatNullAmount(inv.Amount, invoiceCurrency(inv, rg.config.Currency)),
			inv.Status,
			inv.Description,
		})
	}
	return table{
		Title:      fmt.Sprintf("=== UNMATCHED INVOICES (%d) ===", len(invoices)),
		Headers:    []string{"Invoice", "Identifiers", "Month", "Amount", "Status", "Description"},
		Rows:       rows,
		RightAlign: map[int]bool{2: true, 3: true},
	}
}

func (rg *ReportGenerator) writeDiagnostics(b *strings.Builder, s styles, diag *reconciler.Diagnostics) {
	fmt.Fprintf(b, "%s\n", s.header.Render("=== DIAGNOSTICS ==="))
	for _, skip := range diag.Forecast.TiersSkipped {
		fmt.Fprintf(b, "Tier skipped:     %s (%s) %s\n", skip.Tier, skip.Reason, skip.Detail)
	}
	kinds := make([]string, 0, len(diag.SourceErrors))
	for kind := range diag.SourceErrors {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(b, "Source error:     %s: %s\n", kind, s.bad.Render(diag.SourceErrors[source.Kind(kind)]))
	}
	fmt.Fprintf(b, "Duplicate cells:  %d groups merged, %d absorbed\n", diag.Dedup.Merged, diag.Dedup.Absorbed)
	fmt.Fprintf(b, "Invalid months:   %d\n", diag.Forecast.InvalidMonths)
	fmt.Fprintf(b, "Skipped lines:    %d\n", diag.Forecast.SkippedLines)
	r := diag.Forecast.Resolution
	fmt.Fprintf(b, "Taxonomy lookups: %d exact, %d labor override, %d tolerant, %d unmapped, %d cached\n",
		r.Exact, r.Labor, r.Tolerant, r.Unmapped, r.Cache)
	for _, u := range diag.Forecast.Unmapped {
		line := fmt.Sprintf("  unmapped %s (%s)", u.ID, u.Source)
		if u.Suggestion != "" {
			line += fmt.Sprintf(", did you mean %s?", u.Suggestion)
		}
		fmt.Fprintf(b, "%s\n", s.warn.Render(line))
	}
	if diag.RecordErrorCount > 0 {
		fmt.Fprintf(b, "Record errors:    %s\n", s.warn.Render(strconv.Itoa(diag.RecordErrorCount)))
		for _, e := range diag.RecordErrors {
			fmt.Fprintf(b, "  %s\n", e.Error())
		}
	}
}

// selectCells applies the OnlyVariances filter
func (rg *ReportGenerator) selectCells(result *reconciler.Result) []*models.ForecastCell {
	if !rg.config.OnlyVariances {
		return result.Cells
	}
	out := make([]*models.ForecastCell, 0, len(result.Cells))
	for _, c := range result.Cells {
		if !c.Variance.IsZero() {
			out = append(out, c)
		}
	}
	return out
}

func totalsRow(label string, t reconciler.Totals, currency string) []string {
	return []string{
		label,
		strconv.Itoa(t.Cells),
		FormatAmount(t.Planned, currency),
		FormatAmount(t.Forecast, currency),
		FormatAmount(t.Actual, currency),
	}
}

func invoiceCurrency(inv *models.Invoice, fallback string) string {
	if c := strings.ToUpper(strings.TrimSpace(inv.Currency)); c != "" {
		return c
	}
	return fallback
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
