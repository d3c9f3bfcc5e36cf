// Package scenarios builds JSON source fixtures for tests. Each scenario
// exercises one forecast tier or a set of invoice matching edge cases, and
// its directory reads like any other --data-dir.
package scenarios

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"

	"forecast-reconciliation-service/internal/source"
	"forecast-reconciliation-service/pkg/errors"
)

// Scenario names
const (
	ServerForecast = "server-forecast"
	Allocations    = "allocations"
	BudgetLines    = "budget-lines"
	EdgeCases      = "edge-cases"
	Performance    = "performance"
)

// Names lists the scenarios in generation order
func Names() []string {
	return []string{ServerForecast, Allocations, BudgetLines, EdgeCases, Performance}
}

// record is one JSON object of a source file
type record map[string]interface{}

// Dataset holds the records of the four source files
type Dataset struct {
	BudgetLines    []record
	Allocations    []record
	ServerForecast []record
	Invoices       []record
}

// Generator creates scenario datasets
type Generator struct {
	Seed      int64
	OutputDir string
	// Projects is the number of projects of the performance scenario
	Projects int
	// Months is the contract length used by the performance scenario
	Months int

	rng *rand.Rand
}

// NewGenerator creates a generator writing below outputDir
func NewGenerator(outputDir string, seed int64) *Generator {
	return &Generator{
		Seed:      seed,
		OutputDir: outputDir,
		Projects:  20,
		Months:    12,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Generate writes the named scenario, or every scenario for "all", and
// returns the directories written.
func (g *Generator) Generate(name string) ([]string, error) {
	names := []string{name}
	if name == "all" {
		names = Names()
	}

	var dirs []string
	for _, n := range names {
		ds, err := g.Build(n)
		if err != nil {
			return dirs, err
		}
		dir := filepath.Join(g.OutputDir, n)
		if err := ds.Write(dir); err != nil {
			return dirs, err
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

// Build returns the dataset of a scenario without writing it
func (g *Generator) Build(name string) (*Dataset, error) {
	switch name {
	case ServerForecast:
		return g.serverForecastScenario(), nil
	case Allocations:
		return g.allocationsScenario(), nil
	case BudgetLines:
		return g.budgetLinesScenario(), nil
	case EdgeCases:
		return g.edgeCaseScenario(), nil
	case Performance:
		return g.performanceScenario(), nil
	}
	return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "scenario", name, fmt.Errorf("unknown scenario")).
		WithSuggestion(fmt.Sprintf("Use one of: all, %v", Names()))
}

// serverForecastScenario has a materialized forecast with actuals already
// posted for some months, plus invoices for the rest.
func (g *Generator) serverForecastScenario() *Dataset {
	ds := &Dataset{}
	project := "SF-001"

	for month := 1; month <= 6; month++ {
		ds.ServerForecast = append(ds.ServerForecast,
			record{"projectId": project, "rubroId": "MOD-ING", "month": month,
				"planned": 20000, "forecast": 21000, "actual": 0, "isLabor": true},
			record{"projectId": project, "rubroId": "INF-CLOUD", "month": month,
				"planned": 5000, "forecast": 5000, "actual": 0},
		)
	}

	// Invoices address the cost lines through every identifier shape
	ds.Invoices = []record{
		{"id": "SF-INV-1", "projectId": project, "rubroId": "MOD-ING", "month": 1, "amount": 20500, "status": "paid"},
		{"id": "SF-INV-2", "projectId": project, "rubro_id": "INFRA-001", "month": "2025-02", "amount": 4800, "status": "Aprobada"},
		{"id": "SF-INV-3", "projectId": project, "line_item_id": "ingenieros", "month": "M3", "amount": 19000, "status": "approved"},
		{"id": "SF-INV-4", "projectId": project, "rubroId": "INF-CLOUD", "month": 4, "amount": 5200, "status": "pending"},
		{"id": "SF-INV-5", "projectId": project, "rubroId": "SEC-SOC", "month": 5, "amount": 900, "status": "paid"},
	}
	return ds
}

// allocationsScenario has no forecast, so allocations drive the cells.
func (g *Generator) allocationsScenario() *Dataset {
	ds := &Dataset{}
	project := "AL-001"

	ds.BudgetLines = []record{
		{"id": "MOD-LEAD", "project_id": project, "description": "Coordinador", "category": "Mano de Obra Directa",
			"unit_cost": "12000", "qty": 1, "start_month": 1, "end_month": 12},
		{"id": "TEC-ITSM", "project_id": project, "unit_cost": "3000", "qty": 1, "start_month": 1, "end_month": 12},
	}

	for month := 1; month <= 12; month++ {
		ds.Allocations = append(ds.Allocations,
			record{"id": fmt.Sprintf("AL-A-%02d", month), "projectId": project, "rubroId": "MOD-LEAD",
				"month_index": month, "amount": 12000},
			record{"id": fmt.Sprintf("AL-B-%02d", month), "projectId": project, "rubroId": "TEC-002",
				"month": fmt.Sprintf("2025-%02d", month), "amount": 3000},
		)
	}

	for month := 1; month <= 3; month++ {
		ds.Invoices = append(ds.Invoices, record{
			"id": fmt.Sprintf("AL-INV-%d", month), "projectId": project, "rubroId": "MOD-LEAD",
			"month": month, "amount": 11800 + month*100, "status": "posted",
		})
	}
	return ds
}

// budgetLinesScenario only has budget lines, which are spread over their
// active months.
func (g *Generator) budgetLinesScenario() *Dataset {
	ds := &Dataset{}
	project := "BL-001"

	ds.BudgetLines = []record{
		{"id": "MOD-SDM", "project_id": project, "unit_cost": "8000", "qty": 1, "start_month": 1, "end_month": 12},
		{"id": "INF-DC", "project_id": project, "total_cost": "24000", "start_month": 1, "end_month": 6},
		{"id": "VIA-NAC", "project_id": project, "monthly": []float64{0, 1500, 0, 1500}},
		{"id": "CTR-FEE", "project_id": project, "total_cost": "10000"},
	}
	ds.Invoices = []record{
		{"id": "BL-INV-1", "projectId": project, "rubroId": "MOD-SDM", "month": 1, "amount": 8000, "status": "Pagada"},
		{"id": "BL-INV-2", "projectId": project, "linea_codigo": "INFRA-002", "month": 2, "amount": 4000, "status": "validated"},
	}
	return ds
}

// edgeCaseScenario mixes valid records with malformed ones, unknown
// identifiers and duplicates.
func (g *Generator) edgeCaseScenario() *Dataset {
	ds := &Dataset{}
	project := "EC-001"

	ds.Allocations = []record{
		{"id": "EC-A-1", "projectId": project, "rubroId": "MOD-ING", "month_index": 1, "amount": 1000},
		{"id": "EC-A-2", "projectId": project, "rubroId": "MOD-ING", "month_index": 1, "amount": 500},
		{"id": "EC-A-3", "projectId": project, "rubroId": "MOD-ING", "month": "M61", "amount": 700},
		{"id": "EC-A-4", "projectId": project, "rubroId": "XYZ-999", "month_index": 2, "amount": 300},
		{"id": "EC-A-5", "projectId": project, "rubroId": "MOD-ING", "month_index": 3},
		{"id": "EC-A-6", "projectId": project, "rubroId": "Project Manager", "month_index": 2, "amount": 900},
	}
	ds.Invoices = []record{
		{"id": "EC-INV-1", "projectId": project, "rubroId": "MOD-ING", "month": 1, "amount": 1500, "status": "paid"},
		{"id": "EC-INV-1", "projectId": project, "rubroId": "MOD-ING", "month": 1, "amount": 1500, "status": "paid"},
		{"id": "EC-INV-2", "projectId": project, "rubroId": "MOD-ING", "month": "not-a-month", "amount": 200, "status": "paid"},
		{"id": "EC-INV-3", "projectId": project, "rubroId": "XYZ-999", "month": 2, "amount": 300, "status": "paid"},
		{"id": "EC-INV-4", "projectId": project, "description": "Servicios cloud", "month": 2, "amount": 50, "status": "paid"},
		{"id": "EC-INV-5", "projectId": project, "rubroId": "MOD-ING", "month": 1, "amount": "abc", "status": "paid"},
	}
	return ds
}

// performanceScenario generates random allocations and invoices for many
// projects. The same seed always produces the same dataset.
func (g *Generator) performanceScenario() *Dataset {
	ds := &Dataset{}
	costLines := []string{"MOD-ING", "MOD-LEAD", "GSV-REU", "INF-CLOUD", "TEC-LIC-MON", "SEC-SOC"}
	statuses := []string{"paid", "approved", "pending", "Pagada"}

	for p := 1; p <= g.Projects; p++ {
		project := ProjectID(p)
		for _, line := range costLines {
			base := decimal.NewFromInt(int64(1000 + g.rng.Intn(20000)))
			for month := 1; month <= g.Months; month++ {
				amount := base.Mul(decimal.NewFromFloat(0.9 + g.rng.Float64()*0.2)).Round(2)
				ds.Allocations = append(ds.Allocations, record{
					"id": fmt.Sprintf("%s-%s-%02d", project, line, month), "projectId": project,
					"rubroId": line, "month_index": month, "amount": amount.String(),
				})
				if g.rng.Float64() < 0.6 {
					actual := amount.Mul(decimal.NewFromFloat(0.85 + g.rng.Float64()*0.3)).Round(2)
					ds.Invoices = append(ds.Invoices, record{
						"id": fmt.Sprintf("%s-INV-%s-%02d", project, line, month), "projectId": project,
						"rubroId": line, "month": month, "amount": actual.String(),
						"status": statuses[g.rng.Intn(len(statuses))],
					})
				}
			}
		}
	}
	return ds
}

// ProjectID returns the id of the n-th performance project
func ProjectID(n int) string {
	return fmt.Sprintf("PF-%03d", n)
}

// Projects returns the distinct project ids of the dataset in sorted order
func (ds *Dataset) Projects() []string {
	seen := make(map[string]bool)
	for _, set := range [][]record{ds.BudgetLines, ds.Allocations, ds.ServerForecast, ds.Invoices} {
		for _, r := range set {
			for _, key := range []string{"projectId", "project_id"} {
				if id, ok := r[key].(string); ok && id != "" {
					seen[id] = true
				}
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Write stores the dataset in dir using the default file names. Empty
// record sets are not written, which the file source reads as absent.
func (ds *Dataset) Write(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.SourceError(errors.CodeSourceUnavailable, dir, err)
	}

	names := source.DefaultFileNames()
	sets := map[source.Kind][]record{
		source.KindBudgetLines:    ds.BudgetLines,
		source.KindAllocations:    ds.Allocations,
		source.KindServerForecast: ds.ServerForecast,
		source.KindInvoices:       ds.Invoices,
	}
	for kind, records := range sets {
		if len(records) == 0 {
			continue
		}
		// The forecast endpoint wraps its rows in a data envelope
		var payload interface{} = records
		if kind == source.KindServerForecast {
			payload = map[string]interface{}{"data": records}
		}
		if err := writeJSON(filepath.Join(dir, names[kind]), payload); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode fixture", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.SourceError(errors.CodeSourceUnavailable, path, err)
	}
	return nil
}
