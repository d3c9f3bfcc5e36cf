package reconciler

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"forecast-reconciliation-service/internal/forecast"
	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/internal/source"
	"forecast-reconciliation-service/pkg/errors"
	"forecast-reconciliation-service/pkg/logger"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func amount(v int64) decimal.NullDecimal { return decimal.NewNullDecimal(dec(v)) }

// fixture is the upstream data of one project
type fixture struct {
	budgetLines    []*models.BudgetLine
	allocations    []*models.Allocation
	serverForecast []*models.ForecastCell
	invoices       []*models.Invoice
	errs           map[source.Kind]error
	panicOn        source.Kind
	recordErrors   int
}

// stubSource serves fixtures by project id. When gate is set, the first
// budget line fetch blocks until gate is closed and signals entered.
type stubSource struct {
	projects map[string]*fixture

	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (s *stubSource) fixture(ctx context.Context, projectID string, kind source.Kind) (*fixture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, ok := s.projects[projectID]
	if !ok {
		return &fixture{}, nil
	}
	if f.panicOn == kind {
		panic(fmt.Sprintf("%s exploded", kind))
	}
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	return f, nil
}

func (s *stubSource) BudgetLines(ctx context.Context, projectID string) ([]*models.BudgetLine, error) {
	if s.gate != nil {
		blocked := false
		s.once.Do(func() { blocked = true })
		if blocked {
			close(s.entered)
			<-s.gate
		}
	}
	f, err := s.fixture(ctx, projectID, source.KindBudgetLines)
	if err != nil {
		return nil, err
	}
	return f.budgetLines, nil
}

func (s *stubSource) Allocations(ctx context.Context, projectID string) ([]*models.Allocation, error) {
	f, err := s.fixture(ctx, projectID, source.KindAllocations)
	if err != nil {
		return nil, err
	}
	if collector := source.RecordErrorsFrom(ctx); collector != nil {
		for i := 0; i < f.recordErrors; i++ {
			collector.Add(errors.DecodeError("allocations.json", i, fmt.Errorf("bad record")))
		}
	}
	return f.allocations, nil
}

func (s *stubSource) ServerForecast(ctx context.Context, projectID string) ([]*models.ForecastCell, error) {
	f, err := s.fixture(ctx, projectID, source.KindServerForecast)
	if err != nil {
		return nil, err
	}
	return f.serverForecast, nil
}

func (s *stubSource) Invoices(ctx context.Context, projectID string) ([]*models.Invoice, error) {
	f, err := s.fixture(ctx, projectID, source.KindInvoices)
	if err != nil {
		return nil, err
	}
	return f.invoices, nil
}

// createAllocationFixture is the allocations scenario: January totals
// 120000 across two cost lines and February 105000
func createAllocationFixture() *fixture {
	return &fixture{
		allocations: []*models.Allocation{
			{ProjectID: "P-1", Month: "2025-01", Amount: dec(100000), RubroID: "MOD-001"},
			{ProjectID: "P-1", Month: "2025-01", Amount: dec(20000), RubroID: "INFRA-001"},
			{ProjectID: "P-1", Month: "2025-02", Amount: dec(105000), RubroID: "MOD-001"},
		},
		invoices: []*models.Invoice{
			{ID: "F-1", Amount: amount(90000), Period: "2025-01", Status: "Pagada", RubroID: "MOD-ING"},
			{ID: "F-2", Amount: amount(15000), Period: 1, Status: "paid", LineaCodigo: "INFRA-001"},
			{ID: "F-3", Amount: amount(10), Period: 2, Status: "draft", RubroID: "MOD-ING"},
			{ID: "F-4", Amount: amount(7), Period: 3, Status: "paid", RubroID: "MOD-ING"},
			{ID: "F-5", Period: 1, Status: "paid", RubroID: "MOD-ING"},
		},
	}
}

func newTestService(t *testing.T, src source.Source, opts ...ServiceOption) *Service {
	t.Helper()
	opts = append([]ServiceOption{WithLogger(logger.Discard())}, opts...)
	svc, err := NewService(src, nil, DefaultConfig(), opts...)
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return svc
}

func findCell(cells []*models.ForecastCell, costLine string, month int) *models.ForecastCell {
	for _, c := range cells {
		if c.CostLineID == costLine && c.Month == month {
			return c
		}
	}
	return nil
}

func TestReconcileAllocations(t *testing.T) {
	src := &stubSource{projects: map[string]*fixture{"P-1": createAllocationFixture()}}
	svc := newTestService(t, src)

	result, err := svc.Reconcile(context.Background(), &Request{ProjectID: "P-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.DataSource != models.DataSourceAllocations {
		t.Errorf("expected allocations fallback, got %s", result.DataSource)
	}
	if result.Sequence != 1 {
		t.Errorf("expected sequence 1, got %d", result.Sequence)
	}
	if _, err := uuid.Parse(result.RunID); err != nil {
		t.Errorf("expected uuid run id, got %q", result.RunID)
	}
	if len(result.Cells) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(result.Cells))
	}

	jan := findCell(result.Cells, "MOD-ING", 1)
	if jan == nil {
		t.Fatal("expected a January MOD-ING cell")
	}
	if !jan.Actual.Equal(dec(90000)) {
		t.Errorf("expected actual 90000, got %s", jan.Actual)
	}
	if !jan.VarianceActual.Valid || !jan.VarianceActual.Decimal.Equal(dec(-10000)) {
		t.Errorf("expected variance actual -10000, got %v", jan.VarianceActual)
	}

	cloud := findCell(result.Cells, "INF-CLOUD", 1)
	if cloud == nil || !cloud.Actual.Equal(dec(15000)) {
		t.Errorf("expected INF-CLOUD actual 15000, got %v", cloud)
	}

	feb := findCell(result.Cells, "MOD-ING", 2)
	if feb == nil || feb.VarianceActual.Valid {
		t.Errorf("expected February without actual to have null variance, got %v", feb)
	}

	s := result.Summary
	if !s.Total.Planned.Equal(dec(225000)) || !s.Total.Actual.Equal(dec(105000)) {
		t.Errorf("unexpected totals %+v", s.Total)
	}
	if !s.Labor.Planned.Equal(dec(205000)) || !s.NonLabor.Planned.Equal(dec(20000)) {
		t.Errorf("unexpected labor split %+v / %+v", s.Labor, s.NonLabor)
	}
	if !s.UnmatchedAmount.Equal(dec(7)) || !s.MatchedAmount.Equal(dec(105000)) {
		t.Errorf("unexpected matched/unmatched %s/%s", s.MatchedAmount, s.UnmatchedAmount)
	}
	if s.FirstMonth != 1 || s.LastMonth != 2 {
		t.Errorf("unexpected month range %d-%d", s.FirstMonth, s.LastMonth)
	}

	d := result.Diagnostics
	if d.Matching.Ineligible != 1 || d.Matching.Malformed != 1 || d.Matching.Unmatched != 1 {
		t.Errorf("unexpected matching diagnostics %+v", d.Matching)
	}
	if d.RecordErrorCount != 1 {
		t.Errorf("expected the malformed invoice in record errors, got %d", d.RecordErrorCount)
	}
	if len(result.UnmatchedInvoices) != 1 || result.UnmatchedInvoices[0].ID != "F-4" {
		t.Errorf("expected F-4 unmatched, got %v", result.UnmatchedInvoices)
	}
	if d.Forecast.Resolution.Exact == 0 {
		t.Errorf("expected resolver stats, got %+v", d.Forecast.Resolution)
	}
}

func TestReconcileSourceFailureFallsThrough(t *testing.T) {
	f := &fixture{
		serverForecast: []*models.ForecastCell{{CostLineID: "MOD-ING", Month: 1, Planned: dec(1)}},
		allocations:    []*models.Allocation{{Month: "1", Amount: dec(1), RubroID: "MOD-ING"}},
		budgetLines:    []*models.BudgetLine{{ID: "VIA-INT", TotalCost: amount(300), StartMonth: 1, EndMonth: 3}},
		errs: map[source.Kind]error{
			source.KindServerForecast: stderrors.New("timeout"),
			source.KindAllocations:    stderrors.New("connection reset"),
			source.KindInvoices:       stderrors.New("unavailable"),
		},
	}
	svc := newTestService(t, &stubSource{projects: map[string]*fixture{"P-1": f}})

	result, err := svc.Reconcile(context.Background(), &Request{ProjectID: "P-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DataSource != models.DataSourceBudgetLines {
		t.Errorf("expected budget line fallback, got %s", result.DataSource)
	}
	if len(result.Cells) != 3 {
		t.Errorf("expected 3 monthly cells, got %d", len(result.Cells))
	}
	if len(result.Diagnostics.SourceErrors) != 3 {
		t.Errorf("expected 3 source errors, got %v", result.Diagnostics.SourceErrors)
	}
	if !result.Diagnostics.Forecast.Skipped(models.DataSourceAllocations) {
		t.Error("expected allocations tier to be recorded as skipped")
	}
}

func TestReconcileNoData(t *testing.T) {
	svc := newTestService(t, &stubSource{})

	result, err := svc.Reconcile(context.Background(), &Request{ProjectID: "P-404"})
	if result != nil {
		t.Error("expected no result")
	}
	if !stderrors.Is(err, errors.ErrNoForecastData) {
		t.Errorf("expected no forecast data, got %v", err)
	}
}

func TestReconcileInvalidRequest(t *testing.T) {
	svc := newTestService(t, &stubSource{})

	for _, req := range []*Request{nil, {ProjectID: "  "}} {
		if _, err := svc.Reconcile(context.Background(), req); err == nil {
			t.Errorf("expected error for request %v", req)
		}
	}
}

func TestReconcileCanceled(t *testing.T) {
	svc := newTestService(t, &stubSource{projects: map[string]*fixture{"P-1": createAllocationFixture()}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Reconcile(ctx, &Request{ProjectID: "P-1"})
	if result != nil || !stderrors.Is(err, errors.ErrCanceled) {
		t.Errorf("expected canceled error and no result, got %v", err)
	}
}

func TestReconcileStaleResultDiscarded(t *testing.T) {
	src := &stubSource{
		projects: map[string]*fixture{"P-1": createAllocationFixture()},
		gate:     make(chan struct{}),
		entered:  make(chan struct{}),
	}
	svc := newTestService(t, src)

	type outcome struct {
		result *Result
		err    error
	}
	first := make(chan outcome, 1)
	go func() {
		r, err := svc.Reconcile(context.Background(), &Request{ProjectID: "P-1"})
		first <- outcome{r, err}
	}()

	select {
	case <-src.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started fetching")
	}

	second, err := svc.Reconcile(context.Background(), &Request{ProjectID: "P-1"})
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.Sequence != 2 {
		t.Errorf("expected sequence 2, got %d", second.Sequence)
	}

	close(src.gate)
	got := <-first
	if got.result != nil || !stderrors.Is(got.err, errors.ErrStaleRequest) {
		t.Errorf("expected the first run to be stale, got %v", got.err)
	}
}

func TestReconcileSourcePanic(t *testing.T) {
	f := createAllocationFixture()
	f.panicOn = source.KindInvoices
	svc := newTestService(t, &stubSource{projects: map[string]*fixture{"P-1": f}})

	_, err := svc.Reconcile(context.Background(), &Request{ProjectID: "P-1"})
	re, ok := errors.AsReconcilerError(err)
	if !ok || re.Category != errors.CategoryInternal {
		t.Errorf("expected internal error, got %v", err)
	}
}

func TestReconcileCollectsRecordErrors(t *testing.T) {
	f := createAllocationFixture()
	f.recordErrors = 2
	svc := newTestService(t, &stubSource{projects: map[string]*fixture{"P-1": f}})

	result, err := svc.Reconcile(context.Background(), &Request{ProjectID: "P-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Diagnostics.RecordErrorCount != 3 {
		t.Errorf("expected 2 decode errors plus 1 malformed invoice, got %d", result.Diagnostics.RecordErrorCount)
	}
}

func TestReconcileServerForecastDeduplicated(t *testing.T) {
	f := &fixture{
		serverForecast: []*models.ForecastCell{
			{CostLineID: "MOD-ING", Month: 1, Planned: dec(100), Forecast: dec(100), MatchingIDs: []string{"legacy-1"}},
			{CostLineID: "PROJECT#P-1#LINEITEM#mod-ing", Month: 1, Planned: dec(50), Forecast: dec(60)},
		},
		invoices: []*models.Invoice{
			{ID: "F-1", Amount: amount(40), Period: 1, Status: "paid", LineaCodigo: "legacy-1"},
		},
	}
	svc := newTestService(t, &stubSource{projects: map[string]*fixture{"P-1": f}})

	result, err := svc.Reconcile(context.Background(), &Request{ProjectID: "P-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Cells) != 1 {
		t.Fatalf("expected duplicates merged into 1 cell, got %d", len(result.Cells))
	}
	cell := result.Cells[0]
	if !cell.Planned.Equal(dec(150)) || !cell.Actual.Equal(dec(40)) {
		t.Errorf("unexpected merged cell %s", cell)
	}
	if !cell.VarianceForecast.Equal(dec(10)) {
		t.Errorf("expected variance forecast 10, got %s", cell.VarianceForecast)
	}
	if result.Diagnostics.Dedup.Merged != 1 {
		t.Errorf("expected one merged group, got %d", result.Diagnostics.Dedup.Merged)
	}
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(nil, nil, nil); err == nil {
		t.Error("expected error for nil source")
	}

	config := DefaultConfig()
	config.Forecast.Horizon = 0
	if _, err := NewService(&stubSource{}, nil, config); err == nil {
		t.Error("expected error for invalid forecast config")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "default", modify: func(*Config) {}},
		{name: "missing matching", modify: func(c *Config) { c.Matching = nil }, wantErr: true},
		{name: "negative timeout", modify: func(c *Config) { c.FetchTimeout = -time.Second }, wantErr: true},
		{name: "negative record errors", modify: func(c *Config) { c.MaxRecordErrors = -1 }, wantErr: true},
		{name: "bad rounding", modify: func(c *Config) { c.Preprocessing.NormalizeDecimalPlaces = 12 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSequencer(t *testing.T) {
	seq := NewSequencer()

	a := seq.Begin("P-1")
	b := seq.Begin("p-1 ")
	c := seq.Begin("P-2")

	if a != 1 || b != 2 || c != 1 {
		t.Errorf("unexpected sequences %d %d %d", a, b, c)
	}
	if seq.IsCurrent("P-1", a) {
		t.Error("expected first run of P-1 to be stale")
	}
	if !seq.IsCurrent("P-1", b) || !seq.IsCurrent("P-2", c) {
		t.Error("expected latest runs to be current")
	}
}

func TestReconcileEmptyForecastEnvelope(t *testing.T) {
	for _, payload := range []string{`{}`, `{"data": null}`} {
		t.Run(payload, func(t *testing.T) {
			dir := t.TempDir()
			files := map[string]string{
				"forecast.json":    payload,
				"allocations.json": `[{"id":"A1","projectId":"P-1","rubroId":"MOD-ING","month_index":1,"amount":100}]`,
			}
			for name, content := range files {
				if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
					t.Fatalf("failed to write %s: %v", name, err)
				}
			}
			src, err := source.NewFileSource(dir, logger.Discard())
			if err != nil {
				t.Fatalf("NewFileSource() error = %v", err)
			}

			result, err := newTestService(t, src).Reconcile(context.Background(), &Request{ProjectID: "P-1"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.DataSource != models.DataSourceAllocations {
				t.Errorf("expected allocations tier, got %s", result.DataSource)
			}
			if len(result.Diagnostics.SourceErrors) != 0 {
				t.Errorf("expected no source errors, got %v", result.Diagnostics.SourceErrors)
			}
			skips := result.Diagnostics.Forecast.TiersSkipped
			if len(skips) != 1 || skips[0].Tier != models.DataSourceServerForecast || skips[0].Reason != forecast.ReasonEmpty {
				t.Errorf("expected server forecast skipped as empty, got %+v", skips)
			}
		})
	}
}
