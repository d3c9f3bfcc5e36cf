package matcher

import (
	"github.com/shopspring/decimal"

	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/internal/taxonomy"
	"forecast-reconciliation-service/pkg/errors"
	"forecast-reconciliation-service/pkg/logger"
)

// InvoiceMatcher credits invoice amounts to forecast cells. It holds no
// per-run state; the resolver passed to Match does.
type InvoiceMatcher struct {
	Config *MatchingConfig
	logger logger.Logger
}

// MatchResult pairs an invoice with the cell it was credited to
type MatchResult struct {
	Invoice *models.Invoice
	Cell    *models.ForecastCell
	Rule    MatchRule
	Month   int
}

// MatchReport is the outcome of matching a batch of invoices
type MatchReport struct {
	Matches   []*MatchResult
	Unmatched []*models.Invoice
	Errors    []*errors.RecordError
	Summary   MatchSummary
}

// MatchSummary provides aggregate statistics about invoice matching
type MatchSummary struct {
	TotalInvoices   int             `json:"total_invoices"`
	Eligible        int             `json:"eligible"`
	Ineligible      int             `json:"ineligible"`
	Malformed       int             `json:"malformed"`
	InvalidPeriod   int             `json:"invalid_period"`
	Matched         int             `json:"matched"`
	Unmatched       int             `json:"unmatched"`
	ByRule          map[string]int  `json:"by_rule"`
	AmountMatched   decimal.Decimal `json:"amount_matched"`
	AmountUnmatched decimal.Decimal `json:"amount_unmatched"`
}

// invoiceKeys carries the comparison keys of one invoice
type invoiceKeys struct {
	project   string
	idKeys    map[string]struct{}
	rawIDs    []string
	canonical map[string]struct{}
	entryID   string
	text      string
}

// NewInvoiceMatcher creates a matcher. A nil config uses DefaultMatchingConfig.
func NewInvoiceMatcher(config *MatchingConfig, log logger.Logger) *InvoiceMatcher {
	if config == nil {
		config = DefaultMatchingConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &InvoiceMatcher{
		Config: config,
		logger: log.WithComponent("matcher"),
	}
}

// Match credits each eligible invoice to at most one cell, adding its amount
// to the cell's Actual. Malformed and ineligible invoices are counted and
// skipped; they never stop the batch.
func (im *InvoiceMatcher) Match(invoices []*models.Invoice, cells []*models.ForecastCell, resolver *taxonomy.Resolver) *MatchReport {
	if resolver == nil {
		resolver = taxonomy.NewResolver(nil)
	}

	report := &MatchReport{
		Summary: MatchSummary{
			TotalInvoices:   len(invoices),
			ByRule:          make(map[string]int),
			AmountMatched:   decimal.Zero,
			AmountUnmatched: decimal.Zero,
		},
	}
	collector := errors.NewRecordErrorCollector(im.Config.MaxRecordErrors)
	index := NewCellIndex(cells, resolver)
	im.logger.WithFields(logger.Fields(index.GetStats())).Debug("Built cell index")
	rules := im.Config.Rules()

	for i, inv := range invoices {
		if inv == nil {
			report.Summary.Malformed++
			collector.Add(errors.InvalidRecordError(errors.CodeMissingField, "invoices", i, "invoice", ""))
			continue
		}
		if err := inv.Validate(); err != nil {
			report.Summary.Malformed++
			field := "amount"
			if inv.Amount.Valid {
				field = "rubroId"
			}
			collector.Add(errors.InvalidRecordError(errors.CodeMissingField, "invoices", i, field, inv.ID))
			continue
		}
		if !im.Config.IsAccepted(inv.Status) {
			report.Summary.Ineligible++
			continue
		}
		report.Summary.Eligible++

		amount := inv.Amount.Decimal
		month := inv.Month()
		if month == 0 {
			report.Summary.InvalidPeriod++
			im.unmatched(report, inv, amount)
			continue
		}

		keys := newInvoiceKeys(inv, resolver)
		candidates := index.cellsFor(month)
		cell, rule := im.findCell(keys, candidates, rules)
		if cell == nil {
			im.unmatched(report, inv, amount)
			continue
		}

		cell.Actual = cell.Actual.Add(amount)
		report.Matches = append(report.Matches, &MatchResult{Invoice: inv, Cell: cell, Rule: rule, Month: month})
		report.Summary.Matched++
		report.Summary.ByRule[rule.String()]++
		report.Summary.AmountMatched = report.Summary.AmountMatched.Add(amount)
	}

	report.Errors = collector.GetErrors()

	im.logger.WithFields(logger.Fields{
		"invoices":  report.Summary.TotalInvoices,
		"matched":   report.Summary.Matched,
		"unmatched": report.Summary.Unmatched,
		"malformed": report.Summary.Malformed,
	}).Debug("Invoice matching completed")

	return report
}

func (im *InvoiceMatcher) unmatched(report *MatchReport, inv *models.Invoice, amount decimal.Decimal) {
	report.Unmatched = append(report.Unmatched, inv)
	report.Summary.Unmatched++
	report.Summary.AmountUnmatched = report.Summary.AmountUnmatched.Add(amount)
}

// findCell applies the rules in priority order, each across every candidate
// that passes the project guard
func (im *InvoiceMatcher) findCell(keys *invoiceKeys, candidates []*indexedCell, rules []MatchRule) (*models.ForecastCell, MatchRule) {
	eligible := make([]*indexedCell, 0, len(candidates))
	for _, ic := range candidates {
		if keys.project != "" && ic.project != "" && keys.project != ic.project {
			continue
		}
		eligible = append(eligible, ic)
	}
	if len(eligible) == 0 {
		return nil, RuleNone
	}

	for _, rule := range rules {
		for _, ic := range eligible {
			if matchesRule(rule, keys, ic) {
				return ic.cell, rule
			}
		}
	}
	return nil, RuleNone
}

func matchesRule(rule MatchRule, keys *invoiceKeys, ic *indexedCell) bool {
	switch rule {
	case RuleLineItemID:
		return intersects(keys.idKeys, ic.idKeys)
	case RuleMatchingIDs:
		for _, raw := range keys.rawIDs {
			if _, ok := ic.rawIDs[raw]; ok {
				return true
			}
		}
		return intersects(keys.idKeys, ic.matchKeys)
	case RuleCanonicalID:
		return intersects(keys.canonical, ic.canonical)
	case RuleTaxonomyEntry:
		return keys.entryID != "" && keys.entryID == ic.entryID
	case RuleDescription:
		return keys.text != "" && keys.text == ic.text
	}
	return false
}

func newInvoiceKeys(inv *models.Invoice, resolver *taxonomy.Resolver) *invoiceKeys {
	ids := inv.Identifiers()
	keys := &invoiceKeys{
		project:   projectKey(inv.ProjectID),
		idKeys:    keySet(ids...),
		rawIDs:    ids,
		canonical: make(map[string]struct{}),
		text:      taxonomy.NormalizeText(inv.Description),
	}
	for _, raw := range ids {
		if id := resolver.CanonicalID(raw); id != "" {
			keys.canonical[id] = struct{}{}
		}
	}
	if entry := resolver.Resolve(inv.Candidates()); entry != nil {
		keys.entryID = taxonomy.NormalizeKey(entry.ID)
	}
	return keys
}
