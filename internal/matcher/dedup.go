package matcher

import (
	"fmt"

	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/internal/period"
)

// DuplicateGroup describes cells that were merged into one
type DuplicateGroup struct {
	GroupID string
	Key     string
	Month   int
	Members int
}

// DedupStats reports what deduplication did
type DedupStats struct {
	Input    int              `json:"input"`
	Output   int              `json:"output"`
	Merged   int              `json:"merged_groups"`
	Absorbed int              `json:"absorbed"`
	Skipped  int              `json:"skipped"`
	Groups   []DuplicateGroup `json:"-"`
}

// Deduplicate merges cells that share a normalized cost line and month.
//
// Numeric fields are summed and variance is recomputed as forecast minus
// planned. Description, notes, category and variance reason come from the
// most recently updated member that has a value; ties go to the earlier
// member. Matching ids are unioned in first-seen order. Cells with an
// invalid month or an empty cost line are passed through and counted as
// skipped. Output order follows first occurrence, and cells without a
// duplicate are returned as is, so running Deduplicate on its own output
// changes nothing.
func Deduplicate(cells []*models.ForecastCell) ([]*models.ForecastCell, DedupStats) {
	stats := DedupStats{Input: len(cells)}

	type slot struct {
		key     string
		members []*models.ForecastCell
	}
	var slots []*slot
	byKey := make(map[string]*slot)

	for _, cell := range cells {
		if cell == nil {
			continue
		}
		key := cell.Key()
		if key == "" || !period.Valid(cell.Month) {
			stats.Skipped++
			slots = append(slots, &slot{members: []*models.ForecastCell{cell}})
			continue
		}

		groupKey := fmt.Sprintf("%s|%d", key, cell.Month)
		if s, ok := byKey[groupKey]; ok {
			s.members = append(s.members, cell)
			continue
		}
		s := &slot{key: groupKey, members: []*models.ForecastCell{cell}}
		byKey[groupKey] = s
		slots = append(slots, s)
	}

	out := make([]*models.ForecastCell, 0, len(slots))
	for _, s := range slots {
		if len(s.members) == 1 {
			out = append(out, s.members[0])
			continue
		}

		merged := mergeCells(s.members)
		out = append(out, merged)
		stats.Merged++
		stats.Absorbed += len(s.members) - 1
		stats.Groups = append(stats.Groups, DuplicateGroup{
			GroupID: s.key,
			Key:     merged.Key(),
			Month:   merged.Month,
			Members: len(s.members),
		})
	}

	stats.Output = len(out)
	return out, stats
}

func mergeCells(members []*models.ForecastCell) *models.ForecastCell {
	merged := members[0].Clone()
	merged.MatchingIDs = nil

	for i, m := range members {
		if i > 0 {
			merged.Planned = merged.Planned.Add(m.Planned)
			merged.Forecast = merged.Forecast.Add(m.Forecast)
			merged.Actual = merged.Actual.Add(m.Actual)
			merged.IsLabor = merged.IsLabor || m.IsLabor
			if m.LastUpdated.After(merged.LastUpdated) {
				merged.LastUpdated = m.LastUpdated
			}
			if merged.ProjectID == "" {
				merged.ProjectID = m.ProjectID
			}
		}
		merged.AddMatchingIDs(m.MatchingIDs...)
		merged.AddMatchingIDs(m.CostLineID, m.LineItemID)
	}

	merged.Variance = merged.Forecast.Sub(merged.Planned)
	merged.VarianceForecast = merged.Variance

	merged.Description = latestText(members, func(c *models.ForecastCell) string { return c.Description })
	merged.Notes = latestText(members, func(c *models.ForecastCell) string { return c.Notes })
	merged.Category = latestText(members, func(c *models.ForecastCell) string { return c.Category })
	merged.VarianceReason = latestText(members, func(c *models.ForecastCell) string { return c.VarianceReason })

	return merged
}

// latestText returns the non-empty value of the most recently updated member
func latestText(members []*models.ForecastCell, field func(*models.ForecastCell) string) string {
	var best *models.ForecastCell
	value := ""
	for _, m := range members {
		v := field(m)
		if v == "" {
			continue
		}
		if best == nil || m.LastUpdated.After(best.LastUpdated) {
			best = m
			value = v
		}
	}
	return value
}
