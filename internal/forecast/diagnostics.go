package forecast

import (
	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/internal/taxonomy"
)

// SkipReason explains why a tier did not produce the forecast
type SkipReason string

const (
	ReasonEmpty          SkipReason = "empty"
	ReasonAllZero        SkipReason = "all_zero"
	ReasonNoValidMonths  SkipReason = "no_valid_months"
	ReasonSourceFailed   SkipReason = "source_failed"
	ReasonOutsideHorizon SkipReason = "outside_horizon"
)

// TierSkip records a tier that was passed over
type TierSkip struct {
	Tier   models.DataSource `json:"tier"`
	Reason SkipReason        `json:"reason"`
	Detail string            `json:"detail,omitempty"`
}

// Unmapped is an identifier no taxonomy entry could be found for
type Unmapped struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Diagnostics describes how a forecast was derived
type Diagnostics struct {
	TiersSkipped []TierSkip `json:"tiers_skipped,omitempty"`

	// InvalidMonths counts allocations discarded for a month outside [1,60]
	InvalidMonths int `json:"invalid_months"`

	// SkippedLines counts budget lines that were malformed or fell entirely
	// beyond the horizon
	SkippedLines int `json:"skipped_lines"`

	UnmappedCount int            `json:"unmapped_count"`
	Unmapped      []Unmapped     `json:"unmapped,omitempty"`
	Resolution    taxonomy.Stats `json:"resolution"`
}

// Skip records that tier was not used
func (d *Diagnostics) Skip(tier models.DataSource, reason SkipReason, detail string) {
	d.TiersSkipped = append(d.TiersSkipped, TierSkip{Tier: tier, Reason: reason, Detail: detail})
}

// Skipped reports whether tier was passed over
func (d *Diagnostics) Skipped(tier models.DataSource) bool {
	for _, skip := range d.TiersSkipped {
		if skip.Tier == tier {
			return true
		}
	}
	return false
}

type unmappedTracker struct {
	diag  *Diagnostics
	table *taxonomy.Table
	max   int
	seen  map[string]struct{}
	hint  bool
}

func newUnmappedTracker(diag *Diagnostics, table *taxonomy.Table, config *Config) *unmappedTracker {
	return &unmappedTracker{
		diag:  diag,
		table: table,
		max:   config.MaxUnmappedSamples,
		seen:  make(map[string]struct{}),
		hint:  config.SuggestUnmapped,
	}
}

func (u *unmappedTracker) add(source, id string) {
	key := taxonomy.NormalizeKey(id)
	if _, ok := u.seen[key]; ok {
		return
	}
	u.seen[key] = struct{}{}
	u.diag.UnmappedCount++
	if len(u.diag.Unmapped) >= u.max {
		return
	}

	entry := Unmapped{ID: id, Source: source}
	if u.hint && u.table != nil {
		entry.Suggestion = u.table.Suggest(id)
	}
	u.diag.Unmapped = append(u.diag.Unmapped, entry)
}
