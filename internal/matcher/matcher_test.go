package matcher

import (
	"testing"

	"github.com/shopspring/decimal"

	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/internal/taxonomy"
	"forecast-reconciliation-service/pkg/logger"
)

func newTestResolver() *taxonomy.Resolver {
	return taxonomy.NewResolver(taxonomy.BuildTable(taxonomy.DefaultReference()))
}

func newTestMatcher(config *MatchingConfig) *InvoiceMatcher {
	return NewInvoiceMatcher(config, logger.Discard())
}

func amount(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func createMatchingCells() []*models.ForecastCell {
	return []*models.ForecastCell{
		{ProjectID: "P-1", CostLineID: "MOD-ING", LineItemID: "MOD-ING", Month: 1, Description: "Ingenieros de soporte", MatchingIDs: []string{"MOD-ING", "LINEITEM#legacy-eng"}},
		{ProjectID: "P-1", CostLineID: "MOD-LEAD", LineItemID: "MOD-LEAD", Month: 1, Description: "Coordinación", MatchingIDs: []string{"MOD-LEAD"}},
		{ProjectID: "P-1", CostLineID: "INF-CLOUD", LineItemID: "INF-CLOUD", Month: 1, Description: "Servicios cloud", MatchingIDs: []string{"INF-CLOUD"}},
		{ProjectID: "P-1", CostLineID: "XYZ-LOCAL", LineItemID: "XYZ-LOCAL", Month: 1, Description: "Gastos varios de oficina"},
		{ProjectID: "P-1", CostLineID: "MOD-ING", LineItemID: "MOD-ING", Month: 13, Description: "Ingenieros de soporte", MatchingIDs: []string{"MOD-ING"}},
	}
}

func TestMatchRules(t *testing.T) {
	tests := []struct {
		name     string
		invoice  *models.Invoice
		wantCell int
		wantRule MatchRule
	}{
		{
			name:     "direct line item id",
			invoice:  &models.Invoice{Amount: amount(10), Period: "2025-01", Status: "paid", LineItemID: "mod-ing"},
			wantCell: 0,
			wantRule: RuleLineItemID,
		},
		{
			name:     "line item id from composite key",
			invoice:  &models.Invoice{Amount: amount(10), Period: "2025-01", Status: "paid", RubroID: "PROJECT#P-1#LINEITEM#INF-CLOUD"},
			wantCell: 2,
			wantRule: RuleLineItemID,
		},
		{
			name:     "matching ids raw",
			invoice:  &models.Invoice{Amount: amount(10), Period: "2025-01", Status: "paid", LineaCodigo: "LINEITEM#legacy-eng"},
			wantCell: 0,
			wantRule: RuleMatchingIDs,
		},
		{
			name:     "matching ids normalized",
			invoice:  &models.Invoice{Amount: amount(10), Period: "2025-01", Status: "paid", LineaID: "Legacy Eng"},
			wantCell: 0,
			wantRule: RuleMatchingIDs,
		},
		{
			name:     "legacy alias to lead",
			invoice:  &models.Invoice{Amount: amount(10), Period: "2025-01", Status: "paid", RubroIDAlt: "Project Manager"},
			wantCell: 1,
			wantRule: RuleCanonicalID,
		},
		{
			name:     "alternate code",
			invoice:  &models.Invoice{Amount: amount(10), Period: "2025-01", Status: "paid", RubroID: "INFRA-001"},
			wantCell: 2,
			wantRule: RuleCanonicalID,
		},
		{
			name:     "taxonomy entry through description",
			invoice:  &models.Invoice{Amount: amount(10), Period: "2025-01", Status: "paid", Description: "servicios clou"},
			wantCell: 2,
			wantRule: RuleTaxonomyEntry,
		},
		{
			name:     "description",
			invoice:  &models.Invoice{Amount: amount(10), Period: "2025-01", Status: "paid", Description: "GASTOS  varios de OFICINA"},
			wantCell: 3,
			wantRule: RuleDescription,
		},
		{
			name:     "multi-year month",
			invoice:  &models.Invoice{Amount: amount(10), Period: "M13", Status: "paid", LineItemID: "MOD-ING"},
			wantCell: 4,
			wantRule: RuleLineItemID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := createMatchingCells()
			report := newTestMatcher(nil).Match([]*models.Invoice{tt.invoice}, cells, newTestResolver())

			if len(report.Matches) != 1 {
				t.Fatalf("expected one match, got %d (summary %+v)", len(report.Matches), report.Summary)
			}
			match := report.Matches[0]
			if match.Cell != cells[tt.wantCell] {
				t.Errorf("expected cell %d, got %s", tt.wantCell, match.Cell)
			}
			if match.Rule != tt.wantRule {
				t.Errorf("expected rule %s, got %s", tt.wantRule, match.Rule)
			}
			if !cells[tt.wantCell].Actual.Equal(decimal.NewFromInt(10)) {
				t.Errorf("expected actual 10, got %s", cells[tt.wantCell].Actual)
			}
		})
	}
}

func TestMatchPriorityIDOverDescription(t *testing.T) {
	cells := createMatchingCells()
	inv := &models.Invoice{Amount: amount(10), Period: "2025-01", Status: "paid", LineItemID: "INF-CLOUD", Description: "Ingenieros de soporte"}

	report := newTestMatcher(nil).Match([]*models.Invoice{inv}, cells, newTestResolver())
	if len(report.Matches) != 1 || report.Matches[0].Cell != cells[2] {
		t.Fatalf("expected id match on INF-CLOUD, got %+v", report.Matches)
	}
	if !cells[0].Actual.IsZero() {
		t.Error("description match must not credit a second cell")
	}
}

func TestMatchRuleMajorOrder(t *testing.T) {
	// the first cell only matches by description, the second by id
	cells := []*models.ForecastCell{
		{CostLineID: "A-1", Month: 1, Description: "Horas extra"},
		{CostLineID: "B-2", Month: 1, Description: "Otra cosa"},
	}
	inv := &models.Invoice{Amount: amount(10), Period: 1, Status: "paid", LineItemID: "B-2", Description: "horas extra"}

	report := newTestMatcher(nil).Match([]*models.Invoice{inv}, cells, newTestResolver())
	if report.Matches[0].Cell != cells[1] {
		t.Errorf("expected id match on the later cell, got %s", report.Matches[0].Cell)
	}
}

func TestMatchProjectGuard(t *testing.T) {
	cells := []*models.ForecastCell{{ProjectID: "P-1", CostLineID: "MOD-ING", Month: 1, Description: "x"}}
	inv := &models.Invoice{ProjectID: "P-2", Amount: amount(10), Period: 1, Status: "paid", LineItemID: "MOD-ING", Description: "x"}

	report := newTestMatcher(nil).Match([]*models.Invoice{inv}, cells, newTestResolver())
	if report.Summary.Matched != 0 || report.Summary.Unmatched != 1 {
		t.Errorf("expected guard to block the match, got %+v", report.Summary)
	}
	if !cells[0].Actual.IsZero() {
		t.Error("expected no actual on a guarded cell")
	}

	// an invoice without a project is not guarded
	inv.ProjectID = ""
	report = newTestMatcher(nil).Match([]*models.Invoice{inv}, cells, newTestResolver())
	if report.Summary.Matched != 1 {
		t.Errorf("expected match without project, got %+v", report.Summary)
	}
}

func TestMatchProjectGuardKeepsCompositeIDs(t *testing.T) {
	tests := []struct {
		name        string
		cellProject string
		invProject  string
		wantMatched int
	}{
		{"different tenant same suffix", "ACME#P-1", "OTHER#P-1", 0},
		{"case and space folded", "ACME#P-1", " acme#p-1 ", 1},
		{"suffix only", "ACME#P-1", "P-1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := []*models.ForecastCell{{ProjectID: tt.cellProject, CostLineID: "MOD-ING", Month: 1}}
			inv := &models.Invoice{ProjectID: tt.invProject, Amount: amount(10), Period: 1, Status: "paid", LineItemID: "MOD-ING"}

			report := newTestMatcher(nil).Match([]*models.Invoice{inv}, cells, newTestResolver())
			if report.Summary.Matched != tt.wantMatched {
				t.Errorf("expected %d matched, got %+v", tt.wantMatched, report.Summary)
			}
		})
	}
}

func TestMatchMonthMustAgree(t *testing.T) {
	cells := createMatchingCells()
	invoices := []*models.Invoice{
		{Amount: amount(10), Period: "2025-02", Status: "paid", LineItemID: "MOD-ING"},
		{Amount: amount(10), Period: "2025-13", Status: "paid", LineItemID: "MOD-ING"},
		{Amount: amount(10), Period: nil, Status: "paid", LineItemID: "MOD-ING"},
	}

	report := newTestMatcher(nil).Match(invoices, cells, newTestResolver())
	if report.Summary.Matched != 0 || report.Summary.Unmatched != 3 {
		t.Errorf("expected all unmatched, got %+v", report.Summary)
	}
	if report.Summary.InvalidPeriod != 2 {
		t.Errorf("expected 2 invalid periods, got %d", report.Summary.InvalidPeriod)
	}
	if !report.Summary.AmountUnmatched.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected 30 unmatched, got %s", report.Summary.AmountUnmatched)
	}
}

func TestMatchEligibilityAndMalformed(t *testing.T) {
	cells := createMatchingCells()
	invoices := []*models.Invoice{
		{Amount: amount(1), Period: 1, Status: "Pagada", LineItemID: "MOD-ING"},
		{Amount: amount(2), Period: 1, Status: " APPROVED ", LineItemID: "MOD-ING"},
		{Amount: amount(4), Period: 1, Status: "draft", LineItemID: "MOD-ING"},
		{Amount: amount(8), Period: 1, Status: "", LineItemID: "MOD-ING"},
		{Period: 1, Status: "paid", LineItemID: "MOD-ING"},
		{Amount: amount(16), Period: 1, Status: "paid"},
		nil,
	}

	report := newTestMatcher(nil).Match(invoices, cells, newTestResolver())
	s := report.Summary
	if s.TotalInvoices != 7 || s.Eligible != 2 || s.Ineligible != 2 || s.Malformed != 3 || s.Matched != 2 {
		t.Errorf("unexpected summary %+v", s)
	}
	if len(report.Errors) != 3 {
		t.Errorf("expected 3 record errors, got %d", len(report.Errors))
	}
	if !cells[0].Actual.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected actual 3, got %s", cells[0].Actual)
	}
}

func TestMatchAccumulatesOnce(t *testing.T) {
	cells := createMatchingCells()
	invoices := []*models.Invoice{
		{Amount: amount(10), Period: 1, Status: "paid", LineItemID: "MOD-ING"},
		{Amount: amount(15), Period: 1, Status: "paid", LineItemID: "MOD-ING"},
	}

	report := newTestMatcher(nil).Match(invoices, cells, newTestResolver())
	if !cells[0].Actual.Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected actual 25, got %s", cells[0].Actual)
	}
	if report.Summary.ByRule[RuleLineItemID.String()] != 2 {
		t.Errorf("expected two line item matches, got %v", report.Summary.ByRule)
	}
}

func TestStrictConfigSkipsFreeText(t *testing.T) {
	cells := createMatchingCells()
	inv := &models.Invoice{Amount: amount(10), Period: 1, Status: "paid", Description: "Gastos varios de oficina"}

	report := newTestMatcher(StrictMatchingConfig()).Match([]*models.Invoice{inv}, cells, newTestResolver())
	if report.Summary.Matched != 0 {
		t.Errorf("expected strict config not to match on description, got %+v", report.Summary)
	}
}

func TestMatchingConfig(t *testing.T) {
	config := DefaultMatchingConfig()
	if err := config.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	for _, status := range []string{"matched", "PAID", "Validada", "recibida", "conciliada"} {
		if !config.IsAccepted(status) {
			t.Errorf("expected %q to be accepted", status)
		}
	}
	for _, status := range []string{"", "draft", "cancelada"} {
		if config.IsAccepted(status) {
			t.Errorf("expected %q to be rejected", status)
		}
	}

	clone := config.Clone()
	clone.AcceptedStatuses[0] = "other"
	if config.AcceptedStatuses[0] != "matched" {
		t.Error("expected clone not to share statuses")
	}

	config.AcceptedStatuses = nil
	if err := config.Validate(); err == nil {
		t.Error("expected error for empty statuses")
	}

	if len(StrictMatchingConfig().Rules()) != 3 {
		t.Error("expected three identifier rules in strict config")
	}
}
