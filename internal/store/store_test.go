package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/internal/source"
	"forecast-reconciliation-service/pkg/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "reconciler.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func intPtr(v int) *int {
	return &v
}

func TestKeys(t *testing.T) {
	if got := ProjectKey(" P-1 "); got != "PROJECT#P-1" {
		t.Errorf("unexpected project key %s", got)
	}
	if got := SortKey(source.KindAllocations, "A1"); got != "ALLOCATION#A1" {
		t.Errorf("unexpected sort key %s", got)
	}
	if got := SortKey(source.KindInvoices, "F-1"); got != "INVOICE#F-1" {
		t.Errorf("unexpected sort key %s", got)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	lines := []*models.BudgetLine{
		{ID: "MOD-ING", Description: "Ingenieros", UnitCost: decimal.NewFromInt(1000), Qty: decimal.NewFromInt(2), StartMonth: 1, EndMonth: 12},
		{ID: "VIA-INT", TotalCost: decimal.NewNullDecimal(decimal.NewFromInt(500)), StartMonth: 2, EndMonth: 2,
			Monthly: []decimal.NullDecimal{{}, decimal.NewNullDecimal(decimal.NewFromInt(450))}},
	}
	allocs := []*models.Allocation{
		{ID: "A1", RubroID: "MOD-ING", Month: "2025-01", Amount: decimal.RequireFromString("120000.50")},
		{ID: "A2", RubroID: "MOD-ING", MonthIndex: intPtr(13), Amount: decimal.NewFromInt(5)},
	}
	updated := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	cells := []*models.ForecastCell{
		{CostLineID: "MOD-ING", LineItemID: "MOD-ING", Month: 13, Planned: decimal.NewFromInt(10), Forecast: decimal.NewFromInt(12), MatchingIDs: []string{"a"}, LastUpdated: updated},
	}
	invoices := []*models.Invoice{
		{ID: "F-1", Amount: decimal.NewNullDecimal(decimal.NewFromInt(100)), Period: "2025-01", Status: "paid", RubroID: "MOD-ING"},
		{ID: "F-2", Amount: decimal.NewNullDecimal(decimal.NewFromInt(50)), Period: 2, Status: "paid", LineItemID: "MOD-ING"},
	}

	if err := s.PutBudgetLines(ctx, "P-1", lines); err != nil {
		t.Fatalf("PutBudgetLines: %v", err)
	}
	if err := s.PutAllocations(ctx, "P-1", allocs); err != nil {
		t.Fatalf("PutAllocations: %v", err)
	}
	if err := s.PutServerForecast(ctx, "P-1", cells); err != nil {
		t.Fatalf("PutServerForecast: %v", err)
	}
	if err := s.PutInvoices(ctx, "P-1", invoices); err != nil {
		t.Fatalf("PutInvoices: %v", err)
	}

	gotLines, err := s.BudgetLines(ctx, "P-1")
	if err != nil || len(gotLines) != 2 {
		t.Fatalf("expected 2 budget lines, got %d, %v", len(gotLines), err)
	}
	if !gotLines[0].Total().Equal(decimal.NewFromInt(2000)) {
		t.Errorf("expected total 2000, got %s", gotLines[0].Total())
	}
	if v, ok := gotLines[1].MonthlyOverride(2); !ok || !v.Equal(decimal.NewFromInt(450)) {
		t.Errorf("expected monthly override 450, got %s %v", v, ok)
	}
	if _, ok := gotLines[1].MonthlyOverride(1); ok {
		t.Error("expected null monthly value to stay null")
	}

	gotAllocs, err := s.Allocations(ctx, "P-1")
	if err != nil || len(gotAllocs) != 2 {
		t.Fatalf("expected 2 allocations, got %d, %v", len(gotAllocs), err)
	}
	if gotAllocs[0].Period() != 1 || gotAllocs[1].Period() != 13 {
		t.Errorf("unexpected periods %d, %d", gotAllocs[0].Period(), gotAllocs[1].Period())
	}
	if !gotAllocs[0].Amount.Equal(decimal.RequireFromString("120000.50")) {
		t.Errorf("expected amount preserved, got %s", gotAllocs[0].Amount)
	}

	gotCells, err := s.ServerForecast(ctx, "P-1")
	if err != nil || len(gotCells) != 1 {
		t.Fatalf("expected 1 cell, got %d, %v", len(gotCells), err)
	}
	if gotCells[0].Month != 13 || !gotCells[0].Forecast.Equal(decimal.NewFromInt(12)) || !gotCells[0].LastUpdated.Equal(updated) {
		t.Errorf("unexpected cell %s", gotCells[0])
	}
	if gotCells[0].ProjectID != "P-1" {
		t.Errorf("expected project id to be stamped, got %q", gotCells[0].ProjectID)
	}

	gotInvoices, err := s.Invoices(ctx, "P-1")
	if err != nil || len(gotInvoices) != 2 {
		t.Fatalf("expected 2 invoices, got %d, %v", len(gotInvoices), err)
	}
	if gotInvoices[0].Month() != 1 || gotInvoices[1].Month() != 2 {
		t.Errorf("unexpected invoice months %d, %d", gotInvoices[0].Month(), gotInvoices[1].Month())
	}

	other, err := s.Invoices(ctx, "P-2")
	if err != nil || len(other) != 0 {
		t.Errorf("expected no invoices for another project, got %d, %v", len(other), err)
	}
}

func TestStoreUpsertAndCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := []*models.Invoice{
		{ID: "F-1", Amount: decimal.NewNullDecimal(decimal.NewFromInt(100)), Period: 1, RubroID: "X"},
		{Amount: decimal.NewNullDecimal(decimal.NewFromInt(1)), Period: 1, RubroID: "X"},
		{Amount: decimal.NewNullDecimal(decimal.NewFromInt(2)), Period: 1, RubroID: "X"},
	}
	if err := s.PutInvoices(ctx, "P-1", first); err != nil {
		t.Fatalf("PutInvoices: %v", err)
	}
	replaced := []*models.Invoice{{ID: "F-1", Amount: decimal.NewNullDecimal(decimal.NewFromInt(300)), Period: 1, RubroID: "X"}}
	if err := s.PutInvoices(ctx, "P-1", replaced); err != nil {
		t.Fatalf("PutInvoices: %v", err)
	}
	if err := s.PutAllocations(ctx, "P-2", []*models.Allocation{{ID: "A1", RubroID: "X", Month: "1", Amount: decimal.NewFromInt(1)}}); err != nil {
		t.Fatalf("PutAllocations: %v", err)
	}

	counts, err := s.Counts(ctx, "P-1")
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[source.KindInvoices] != 3 {
		t.Errorf("expected 3 invoices (ids kept unique), got %d", counts[source.KindInvoices])
	}

	invoices, _ := s.Invoices(ctx, "P-1")
	var total decimal.Decimal
	for _, inv := range invoices {
		total = total.Add(inv.Amount.Decimal)
	}
	if !total.Equal(decimal.NewFromInt(303)) {
		t.Errorf("expected upsert to replace F-1, total %s", total)
	}

	projects, err := s.Projects(ctx)
	if err != nil || len(projects) != 2 || projects[0] != "P-1" {
		t.Errorf("unexpected projects %v, %v", projects, err)
	}

	removed, err := s.DeleteProject(ctx, "P-1")
	if err != nil || removed != 3 {
		t.Errorf("expected 3 removed, got %d, %v", removed, err)
	}
	counts, _ = s.Counts(ctx, "P-1")
	if len(counts) != 0 {
		t.Errorf("expected empty project, got %v", counts)
	}
}

func TestStoreReportsBrokenPayloads(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.db.Exec(`INSERT INTO items (pk, sk, kind, project_id, payload, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ProjectKey("P-1"), SortKey(source.KindAllocations, "BAD"), string(source.KindAllocations), "P-1", `{"id":"BAD","rubroId":"X"}`, "now")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	collector := errors.NewRecordErrorCollector(10)
	allocs, err := s.Allocations(source.WithRecordErrors(ctx, collector), "P-1")
	if err != nil {
		t.Fatalf("Allocations: %v", err)
	}
	if len(allocs) != 0 || collector.Count() != 1 {
		t.Errorf("expected the broken record to be skipped and reported, got %d records, %d errors", len(allocs), collector.Count())
	}
	if collector.GetErrors()[0].Record.Source != "store:allocations" {
		t.Errorf("unexpected source %s", collector.GetErrors()[0].Record.Source)
	}
}

func TestStoreCanceledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.BudgetLines(ctx, "P-1"); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestStoreKeepsRepeatedRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cells := []*models.ForecastCell{
		{CostLineID: "MOD-ING", Month: 1, Planned: decimal.NewFromInt(100), Forecast: decimal.NewFromInt(100)},
		{CostLineID: "MOD-ING", Month: 1, Planned: decimal.NewFromInt(50), Forecast: decimal.NewFromInt(50)},
	}
	invoices := []*models.Invoice{
		{ID: "F-1", Amount: decimal.NewNullDecimal(decimal.NewFromInt(10)), Period: 1, RubroID: "MOD-ING"},
		{ID: "F-1", Amount: decimal.NewNullDecimal(decimal.NewFromInt(20)), Period: 1, RubroID: "MOD-ING"},
	}

	// Writing the same batch twice must not add rows
	for i := 0; i < 2; i++ {
		if err := s.PutServerForecast(ctx, "P-1", cells); err != nil {
			t.Fatalf("PutServerForecast: %v", err)
		}
		if err := s.PutInvoices(ctx, "P-1", invoices); err != nil {
			t.Fatalf("PutInvoices: %v", err)
		}
	}

	counts, err := s.Counts(ctx, "P-1")
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts[source.KindServerForecast] != 2 || counts[source.KindInvoices] != 2 {
		t.Errorf("expected 2 cells and 2 invoices, got %v", counts)
	}

	stored, err := s.ServerForecast(ctx, "P-1")
	if err != nil {
		t.Fatalf("ServerForecast: %v", err)
	}
	planned := decimal.Zero
	for _, c := range stored {
		planned = planned.Add(c.Planned)
	}
	if !planned.Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected planned 150, got %s", planned)
	}

	storedInvoices, err := s.Invoices(ctx, "P-1")
	if err != nil {
		t.Fatalf("Invoices: %v", err)
	}
	actual := decimal.Zero
	for _, inv := range storedInvoices {
		actual = actual.Add(inv.Amount.Decimal)
	}
	if !actual.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected invoice total 30, got %s", actual)
	}
}

func TestUniqueSortKeys(t *testing.T) {
	items := []item{{sk: "INVOICE#F-1"}, {sk: "INVOICE#F-2"}, {sk: "INVOICE#F-1"}, {sk: "INVOICE#F-1"}}
	want := []string{"INVOICE#F-1", "INVOICE#F-2", "INVOICE#F-1#2", "INVOICE#F-1#3"}

	got := uniqueSortKeys(items)
	for i, k := range got {
		if k.key != want[i] {
			t.Errorf("key %d = %s, want %s", i, k.key, want[i])
		}
	}
}
