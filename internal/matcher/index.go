package matcher

import (
	"strings"

	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/internal/taxonomy"
)

// indexedCell carries the comparison keys of a cell, computed once per run
type indexedCell struct {
	cell      *models.ForecastCell
	project   string
	idKeys    map[string]struct{}
	rawIDs    map[string]struct{}
	matchKeys map[string]struct{}
	canonical map[string]struct{}
	entryID   string
	text      string
}

// CellIndex groups cells by month for invoice matching
type CellIndex struct {
	byMonth map[int][]*indexedCell
	size    int
}

// NewCellIndex indexes cells with a valid month. The resolver supplies the
// canonical and taxonomy keys used by the lower-priority rules.
func NewCellIndex(cells []*models.ForecastCell, resolver *taxonomy.Resolver) *CellIndex {
	idx := &CellIndex{byMonth: make(map[int][]*indexedCell)}

	for _, cell := range cells {
		if cell == nil || cell.Month == 0 {
			continue
		}

		ic := &indexedCell{
			cell:      cell,
			project:   projectKey(cell.ProjectID),
			idKeys:    keySet(cell.LineItemID, cell.CostLineID),
			rawIDs:    make(map[string]struct{}, len(cell.MatchingIDs)),
			matchKeys: keySet(cell.MatchingIDs...),
			canonical: make(map[string]struct{}),
			text:      taxonomy.NormalizeText(cell.Description),
		}
		for _, id := range cell.MatchingIDs {
			if id != "" {
				ic.rawIDs[id] = struct{}{}
			}
		}
		for _, raw := range append([]string{cell.CostLineID, cell.LineItemID}, cell.MatchingIDs...) {
			if id := resolver.CanonicalID(raw); id != "" {
				ic.canonical[id] = struct{}{}
			}
		}
		if entry := resolver.Resolve(cell.Candidates()); entry != nil {
			ic.entryID = taxonomy.NormalizeKey(entry.ID)
		}

		idx.byMonth[cell.Month] = append(idx.byMonth[cell.Month], ic)
		idx.size++
	}

	return idx
}

// cellsFor returns the indexed cells for month m in insertion order
func (idx *CellIndex) cellsFor(m int) []*indexedCell {
	return idx.byMonth[m]
}

// GetStats returns statistics about the index
func (idx *CellIndex) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"total_cells":   idx.size,
		"unique_months": len(idx.byMonth),
	}
}

// projectKey folds a project id for the project guard. Unlike cost-line keys,
// composite ids keep every segment: ACME#P-1 and OTHER#P-1 differ.
func projectKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func keySet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if key := taxonomy.NormalizeKey(v); key != "" {
			set[key] = struct{}{}
		}
	}
	return set
}

func intersects(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
