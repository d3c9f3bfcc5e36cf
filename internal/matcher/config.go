// Package matcher posts invoices against forecast cells and finalizes the
// cell set.
//
// This package covers the steps between forecast derivation and output:
//   - Cell deduplication: rows keyed to the same cost line and month merge
//   - Invoice matching: each eligible invoice credits at most one cell
//   - Variance: plan, forecast and actual deltas per cell
//
// Invoice matching tries a fixed rule order. Every rule is evaluated against
// all cells of the invoice's month before the next rule is tried, so a
// higher rule on any cell beats a lower rule on an earlier cell:
//  1. Project guard: cells of a different project are never candidates
//  2. Direct line-item id equality
//  3. Membership in the cell's matching ids
//  4. Canonical cost-line id through the legacy alias map
//  5. Same taxonomy entry
//  6. Same normalized description
//
// Example usage:
//
//	cells, stats := matcher.Deduplicate(cells)
//
//	m := matcher.NewInvoiceMatcher(matcher.DefaultMatchingConfig(), log)
//	report := m.Match(invoices, cells, resolver)
//
//	matcher.ApplyVariance(cells)
package matcher

import (
	"fmt"

	"forecast-reconciliation-service/internal/taxonomy"
)

// MatchRule identifies the rule that paired an invoice with a cell
type MatchRule int

const (
	// RuleLineItemID matches the invoice's identifiers against the cell's
	// line-item and cost-line ids after key normalization.
	RuleLineItemID MatchRule = iota + 1

	// RuleMatchingIDs matches against every raw identifier known to denote
	// the cell, both raw and normalized.
	RuleMatchingIDs

	// RuleCanonicalID maps both sides through the legacy alias map and the
	// exact taxonomy lookup.
	RuleCanonicalID

	// RuleTaxonomyEntry resolves both sides with the taxonomy resolver and
	// compares entry ids.
	RuleTaxonomyEntry

	// RuleDescription compares free-text descriptions ignoring case,
	// whitespace and diacritics.
	RuleDescription

	// RuleNone indicates no rule matched
	RuleNone
)

// String returns the string representation of MatchRule
func (r MatchRule) String() string {
	switch r {
	case RuleLineItemID:
		return "line_item_id"
	case RuleMatchingIDs:
		return "matching_ids"
	case RuleCanonicalID:
		return "canonical_id"
	case RuleTaxonomyEntry:
		return "taxonomy_entry"
	case RuleDescription:
		return "description"
	case RuleNone:
		return "none"
	default:
		return "unknown"
	}
}

// DefaultAcceptedStatuses are the invoice statuses that post actuals
var DefaultAcceptedStatuses = []string{"matched", "paid", "approved", "posted", "received", "validated"}

// defaultStatusAliases maps Spanish status spellings to their accepted form
var defaultStatusAliases = map[string]string{
	"conciliada":    "matched",
	"conciliado":    "matched",
	"pagada":        "paid",
	"pagado":        "paid",
	"aprobada":      "approved",
	"aprobado":      "approved",
	"contabilizada": "posted",
	"contabilizado": "posted",
	"recibida":      "received",
	"recibido":      "received",
	"validada":      "validated",
	"validado":      "validated",
}

// MatchingConfig holds configuration parameters for invoice matching.
//
// Use the provided factory functions for common scenarios:
//   - DefaultMatchingConfig(): every rule enabled
//   - StrictMatchingConfig(): identifier rules only, no taxonomy or free text
type MatchingConfig struct {
	// AcceptedStatuses lists the normalized statuses eligible to post actuals
	AcceptedStatuses []string `json:"accepted_statuses" mapstructure:"accepted_statuses"`

	// StatusAliases maps alternative spellings onto accepted statuses
	StatusAliases map[string]string `json:"status_aliases" mapstructure:"status_aliases"`

	// EnableTaxonomyMatching enables the taxonomy-entry rule
	EnableTaxonomyMatching bool `json:"enable_taxonomy_matching" mapstructure:"enable_taxonomy_matching"`

	// EnableDescriptionMatching enables the free-text description rule
	EnableDescriptionMatching bool `json:"enable_description_matching" mapstructure:"enable_description_matching"`

	// MaxRecordErrors bounds the malformed invoice errors kept in a report.
	// The count is always exact.
	MaxRecordErrors int `json:"max_record_errors" mapstructure:"max_record_errors"`
}

// DefaultMatchingConfig returns a configuration with every rule enabled
func DefaultMatchingConfig() *MatchingConfig {
	return &MatchingConfig{
		AcceptedStatuses:          append([]string(nil), DefaultAcceptedStatuses...),
		StatusAliases:             copyAliases(defaultStatusAliases),
		EnableTaxonomyMatching:    true,
		EnableDescriptionMatching: true,
		MaxRecordErrors:           100,
	}
}

// StrictMatchingConfig returns a configuration that only matches on identifiers
func StrictMatchingConfig() *MatchingConfig {
	config := DefaultMatchingConfig()
	config.EnableTaxonomyMatching = false
	config.EnableDescriptionMatching = false
	return config
}

// Validate checks if the matching configuration is valid
func (mc *MatchingConfig) Validate() error {
	if len(mc.AcceptedStatuses) == 0 {
		return fmt.Errorf("at least one accepted status is required")
	}
	for _, status := range mc.AcceptedStatuses {
		if normalizeStatus(status) == "" {
			return fmt.Errorf("accepted statuses cannot contain blanks")
		}
	}
	if mc.MaxRecordErrors < 0 {
		return fmt.Errorf("max record errors cannot be negative: %d", mc.MaxRecordErrors)
	}
	return nil
}

// Clone creates a deep copy of the matching configuration
func (mc *MatchingConfig) Clone() *MatchingConfig {
	if mc == nil {
		return nil
	}
	clone := *mc
	clone.AcceptedStatuses = append([]string(nil), mc.AcceptedStatuses...)
	clone.StatusAliases = copyAliases(mc.StatusAliases)
	return &clone
}

// Rules returns the enabled rules in priority order
func (mc *MatchingConfig) Rules() []MatchRule {
	rules := []MatchRule{RuleLineItemID, RuleMatchingIDs, RuleCanonicalID}
	if mc.EnableTaxonomyMatching {
		rules = append(rules, RuleTaxonomyEntry)
	}
	if mc.EnableDescriptionMatching {
		rules = append(rules, RuleDescription)
	}
	return rules
}

// IsAccepted reports whether an invoice status makes the invoice eligible
func (mc *MatchingConfig) IsAccepted(status string) bool {
	s := normalizeStatus(status)
	if s == "" {
		return false
	}
	for alias, target := range mc.StatusAliases {
		if normalizeStatus(alias) == s {
			s = normalizeStatus(target)
			break
		}
	}
	for _, accepted := range mc.AcceptedStatuses {
		if normalizeStatus(accepted) == s {
			return true
		}
	}
	return false
}

func normalizeStatus(status string) string {
	return taxonomy.NormalizeText(status)
}

func copyAliases(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
