package forecast

import (
	"fmt"

	"github.com/shopspring/decimal"

	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/internal/period"
	"forecast-reconciliation-service/internal/taxonomy"
	"forecast-reconciliation-service/pkg/errors"
	"forecast-reconciliation-service/pkg/logger"
)

// Input is everything derivation may draw from for one project. A nil slice
// and an empty one mean the same thing. SourceErrors names the inputs whose
// fetch failed; those tiers are skipped with ReasonSourceFailed.
type Input struct {
	ProjectID      string
	ServerForecast []*models.ForecastCell
	Allocations    []*models.Allocation
	BudgetLines    []*models.BudgetLine
	SourceErrors   map[models.DataSource]error
}

// Result is the derived forecast and how it was obtained
type Result struct {
	DataSource  models.DataSource      `json:"data_source"`
	Cells       []*models.ForecastCell `json:"cells"`
	Diagnostics Diagnostics            `json:"diagnostics"`
}

// Deriver selects a tier and builds the forecast cells. A Deriver holds no
// per-run state and may be shared.
type Deriver struct {
	config *Config
	logger logger.Logger
}

// NewDeriver creates a deriver. A nil config uses DefaultConfig.
func NewDeriver(config *Config, log logger.Logger) *Deriver {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Deriver{
		config: config,
		logger: log.WithComponent("forecast"),
	}
}

// Derive produces the forecast for in using the first tier that has data.
// When no tier has data it returns an error matching errors.ErrNoForecastData.
func (d *Deriver) Derive(in Input, resolver *taxonomy.Resolver) (*Result, error) {
	if resolver == nil {
		resolver = taxonomy.NewResolver(nil)
	}

	result := &Result{}
	unmapped := newUnmappedTracker(&result.Diagnostics, resolver.Table(), d.config)
	log := d.logger.WithField("project_id", in.ProjectID)

	tiers := []struct {
		source models.DataSource
		derive func(Input, *taxonomy.Resolver, *Diagnostics, *unmappedTracker) []*models.ForecastCell
	}{
		{models.DataSourceServerForecast, d.fromServerForecast},
		{models.DataSourceAllocations, d.fromAllocations},
		{models.DataSourceBudgetLines, d.fromBudgetLines},
	}

	for _, tier := range tiers {
		if err := in.SourceErrors[tier.source]; err != nil {
			result.Diagnostics.Skip(tier.source, ReasonSourceFailed, err.Error())
			log.WithError(err).WithField("tier", tier.source).Warn("Source failed, trying next tier")
			continue
		}

		cells := tier.derive(in, resolver, &result.Diagnostics, unmapped)
		if len(cells) == 0 {
			continue
		}

		result.DataSource = tier.source
		result.Cells = cells
		result.Diagnostics.Resolution = resolver.Stats()

		log.WithFields(logger.Fields{
			"data_source": tier.source,
			"cells":       len(cells),
			"skipped":     len(result.Diagnostics.TiersSkipped),
		}).Debug("Forecast derived")
		return result, nil
	}

	return nil, errors.ForecastError(errors.CodeNoForecastData, in.ProjectID, nil).
		WithContext("tiers_skipped", len(result.Diagnostics.TiersSkipped))
}

// fromServerForecast keeps the server rows as delivered. It is used only when
// one row has a positive planned or forecast value.
func (d *Deriver) fromServerForecast(in Input, resolver *taxonomy.Resolver, diag *Diagnostics, unmapped *unmappedTracker) []*models.ForecastCell {
	if len(in.ServerForecast) == 0 {
		diag.Skip(models.DataSourceServerForecast, ReasonEmpty, "")
		return nil
	}

	positive := false
	for _, cell := range in.ServerForecast {
		if cell != nil && cell.HasPositivePlan() {
			positive = true
			break
		}
	}
	if !positive {
		diag.Skip(models.DataSourceServerForecast, ReasonAllZero, fmt.Sprintf("%d cells", len(in.ServerForecast)))
		return nil
	}

	cells := make([]*models.ForecastCell, 0, len(in.ServerForecast))
	for _, src := range in.ServerForecast {
		if src == nil {
			continue
		}
		cell := src.Clone()
		if cell.ProjectID == "" {
			cell.ProjectID = in.ProjectID
		}
		cell.DataSource = models.DataSourceServerForecast
		cell.AddMatchingIDs(cell.CostLineID, cell.LineItemID)

		entry := resolver.Resolve(cell.Candidates())
		switch {
		case entry != nil:
			cell.IsLabor = cell.IsLabor || entry.IsLabor
			if cell.Category == "" {
				cell.Category = entry.Category
			}
			if cell.Description == "" {
				cell.Description = entry.Description
			}
		case cell.Category == "":
			cell.Category = taxonomy.UnmappedCategory
			unmapped.add(string(models.DataSourceServerForecast), cell.CostLineID)
		}

		cells = append(cells, cell)
	}
	return cells
}

type allocationGroup struct {
	cell  *models.ForecastCell
	entry *taxonomy.Entry
}

// fromAllocations sums allocations per canonical cost line and month. An
// explicit month index beats the calendar month. Allocations without a
// valid month are dropped and counted.
func (d *Deriver) fromAllocations(in Input, resolver *taxonomy.Resolver, diag *Diagnostics, unmapped *unmappedTracker) []*models.ForecastCell {
	if len(in.Allocations) == 0 {
		diag.Skip(models.DataSourceAllocations, ReasonEmpty, "")
		return nil
	}

	lines := newBudgetLineIndex(in.BudgetLines, resolver)

	groups := make(map[string]*allocationGroup)
	var order []string
	invalid := 0

	for _, alloc := range in.Allocations {
		if alloc == nil {
			continue
		}
		month := alloc.Period()
		if !period.Valid(month) {
			invalid++
			continue
		}

		entry := resolver.Resolve(alloc.Candidates())
		costLine := alloc.RubroID
		if entry != nil {
			costLine = entry.ID
		} else if alloc.RubroID != "" {
			unmapped.add(string(models.DataSourceAllocations), alloc.RubroID)
		}

		key := fmt.Sprintf("%s|%d", taxonomy.NormalizeKey(costLine), month)
		group, ok := groups[key]
		if !ok {
			projectID := alloc.ProjectID
			if projectID == "" {
				projectID = in.ProjectID
			}
			group = &allocationGroup{
				entry: entry,
				cell: &models.ForecastCell{
					ProjectID:  projectID,
					CostLineID: costLine,
					LineItemID: alloc.RubroID,
					Month:      month,
					DataSource: models.DataSourceAllocations,
				},
			}
			groups[key] = group
			order = append(order, key)
		}

		group.cell.Planned = group.cell.Planned.Add(alloc.Amount)
		group.cell.AddMatchingIDs(alloc.RubroID)
	}

	diag.InvalidMonths += invalid

	cells := make([]*models.ForecastCell, 0, len(order))
	for _, key := range order {
		group := groups[key]
		cell := group.cell
		cell.Forecast = cell.Planned
		cell.AddMatchingIDs(cell.CostLineID)

		if line := lines.find(cell.LineItemID, group.entry); line != nil {
			cell.Description = line.Description
			cell.Category = line.Category
			cell.AddMatchingIDs(line.ID)
		}
		if group.entry != nil {
			cell.IsLabor = group.entry.IsLabor
			if cell.Description == "" {
				cell.Description = group.entry.Description
			}
			if cell.Category == "" {
				cell.Category = group.entry.Category
			}
		}
		if cell.Description == "" {
			cell.Description = "Allocation " + cell.LineItemID
		}
		if cell.Category == "" {
			cell.Category = "Allocations"
		}

		cells = append(cells, cell)
	}

	if len(cells) == 0 {
		diag.Skip(models.DataSourceAllocations, ReasonNoValidMonths, fmt.Sprintf("%d allocations discarded", invalid))
	}
	return cells
}

// fromBudgetLines spreads each line's total evenly over its active months.
// A per-month override replaces the even share for its month.
func (d *Deriver) fromBudgetLines(in Input, resolver *taxonomy.Resolver, diag *Diagnostics, unmapped *unmappedTracker) []*models.ForecastCell {
	if len(in.BudgetLines) == 0 {
		diag.Skip(models.DataSourceBudgetLines, ReasonEmpty, "")
		return nil
	}

	horizon := d.config.Horizon
	var cells []*models.ForecastCell

	for _, line := range in.BudgetLines {
		if line == nil || line.Validate() != nil {
			diag.SkippedLines++
			continue
		}

		start := line.StartMonth
		if start < period.MinMonth {
			start = period.MinMonth
		}
		end := line.EndMonth
		if end <= 0 || end > horizon {
			end = horizon
		}
		if start > end {
			diag.SkippedLines++
			continue
		}

		entry := resolver.Resolve(line.Candidates())
		costLine := line.ID
		if entry != nil {
			costLine = entry.ID
		} else {
			unmapped.add(string(models.DataSourceBudgetLines), firstNonEmpty(line.ID, line.Description))
		}
		if costLine == "" {
			costLine = line.Description
		}

		description, category := line.Description, line.Category
		isLabor := false
		if entry != nil {
			isLabor = entry.IsLabor
			description = firstNonEmpty(description, entry.Description)
			category = firstNonEmpty(category, entry.Category)
		}
		description = firstNonEmpty(description, line.ID)
		category = firstNonEmpty(category, taxonomy.UnmappedCategory)

		projectID := firstNonEmpty(line.ProjectID, in.ProjectID)
		share := line.Total().Div(decimal.NewFromInt(int64(end - start + 1)))

		for m := start; m <= end; m++ {
			amount := share
			if override, ok := line.MonthlyOverride(m); ok {
				amount = override
			}
			cell := &models.ForecastCell{
				ProjectID:   projectID,
				CostLineID:  costLine,
				LineItemID:  line.ID,
				Month:       m,
				Planned:     amount,
				Forecast:    amount,
				Description: description,
				Category:    category,
				IsLabor:     isLabor,
				DataSource:  models.DataSourceBudgetLines,
			}
			cell.AddMatchingIDs(costLine, line.ID)
			cells = append(cells, cell)
		}
	}

	if len(cells) == 0 {
		diag.Skip(models.DataSourceBudgetLines, ReasonOutsideHorizon, fmt.Sprintf("%d lines skipped", diag.SkippedLines))
	}
	return cells
}

// budgetLineIndex finds the budget line an allocation group belongs to
type budgetLineIndex struct {
	byKey map[string]*models.BudgetLine
}

func newBudgetLineIndex(lines []*models.BudgetLine, resolver *taxonomy.Resolver) *budgetLineIndex {
	idx := &budgetLineIndex{byKey: make(map[string]*models.BudgetLine)}
	for _, line := range lines {
		if line == nil {
			continue
		}
		idx.put(taxonomy.NormalizeKey(line.ID), line)
		if entry := resolver.Resolve(line.Candidates()); entry != nil {
			idx.put(taxonomy.NormalizeKey(entry.ID), line)
		}
	}
	return idx
}

func (idx *budgetLineIndex) put(key string, line *models.BudgetLine) {
	if key == "" {
		return
	}
	if _, taken := idx.byKey[key]; !taken {
		idx.byKey[key] = line
	}
}

func (idx *budgetLineIndex) find(rawID string, entry *taxonomy.Entry) *models.BudgetLine {
	if line, ok := idx.byKey[taxonomy.NormalizeKey(rawID)]; ok {
		return line
	}
	if entry != nil {
		if line, ok := idx.byKey[taxonomy.NormalizeKey(entry.ID)]; ok {
			return line
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
