// Package store provides a SQLite-backed item store for upstream records.
// It implements source.Source so a reconciliation can run against a local
// database instead of a directory of JSON files.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register sqlite driver

	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/internal/source"
	"forecast-reconciliation-service/pkg/errors"
)

const (
	projectPrefix = "PROJECT#"
	keySeparator  = "#"
)

var sortPrefixes = map[source.Kind]string{
	source.KindBudgetLines:    "BUDGETLINE",
	source.KindAllocations:    "ALLOCATION",
	source.KindServerForecast: "FORECAST",
	source.KindInvoices:       "INVOICE",
}

var _ source.Source = (*Store)(nil)

// Store provides SQLite-backed record storage
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the store database at the given path
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.SourceError(errors.CodeStoreFailed, dbPath, fmt.Errorf("creating store dir: %w", err))
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.SourceError(errors.CodeStoreFailed, dbPath, fmt.Errorf("opening store db: %w", err))
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.SourceError(errors.CodeStoreFailed, dbPath, fmt.Errorf("creating schema: %w", err))
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the store database
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// ProjectKey returns the partition key of a project
func ProjectKey(projectID string) string {
	return projectPrefix + strings.TrimSpace(projectID)
}

// SortKey returns the sort key of a record of kind with the given id
func SortKey(kind source.Kind, id string) string {
	return sortPrefixes[kind] + keySeparator + id
}

// item is one row to write
type item struct {
	sk      string
	payload []byte
}

// PutBudgetLines upserts budget lines under projectID
func (s *Store) PutBudgetLines(ctx context.Context, projectID string, lines []*models.BudgetLine) error {
	items := make([]item, 0, len(lines))
	for _, line := range lines {
		if line.ProjectID == "" {
			line.ProjectID = projectID
		}
		it, err := newItem(source.KindBudgetLines, line.ID, line)
		if err != nil {
			return err
		}
		items = append(items, it)
	}
	return s.put(ctx, projectID, source.KindBudgetLines, items)
}

// PutAllocations upserts allocations under projectID
func (s *Store) PutAllocations(ctx context.Context, projectID string, allocs []*models.Allocation) error {
	items := make([]item, 0, len(allocs))
	for _, alloc := range allocs {
		if alloc.ProjectID == "" {
			alloc.ProjectID = projectID
		}
		it, err := newItem(source.KindAllocations, alloc.ID, alloc)
		if err != nil {
			return err
		}
		items = append(items, it)
	}
	return s.put(ctx, projectID, source.KindAllocations, items)
}

// PutServerForecast upserts server forecast cells under projectID. A cell is
// keyed by its cost line and month; repeated rows are all kept.
func (s *Store) PutServerForecast(ctx context.Context, projectID string, cells []*models.ForecastCell) error {
	items := make([]item, 0, len(cells))
	for _, cell := range cells {
		if cell.ProjectID == "" {
			cell.ProjectID = projectID
		}
		id := ""
		if cell.CostLineID != "" {
			id = fmt.Sprintf("%s%sM%d", cell.CostLineID, keySeparator, cell.Month)
		}
		it, err := newItem(source.KindServerForecast, id, cell)
		if err != nil {
			return err
		}
		items = append(items, it)
	}
	return s.put(ctx, projectID, source.KindServerForecast, items)
}

// PutInvoices upserts invoices under projectID
func (s *Store) PutInvoices(ctx context.Context, projectID string, invoices []*models.Invoice) error {
	items := make([]item, 0, len(invoices))
	for _, inv := range invoices {
		if inv.ProjectID == "" {
			inv.ProjectID = projectID
		}
		it, err := newItem(source.KindInvoices, inv.ID, inv)
		if err != nil {
			return err
		}
		items = append(items, it)
	}
	return s.put(ctx, projectID, source.KindInvoices, items)
}

// newItem encodes a record. Records without an id get a random one so they
// never overwrite each other.
func newItem(kind source.Kind, id string, record interface{}) (item, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return item{}, errors.Wrap(err, errors.CategorySource, errors.CodeStoreFailed, "cannot encode record").
			WithContext("kind", string(kind)).
			WithContext("id", id)
	}
	return item{sk: SortKey(kind, id), payload: payload}, nil
}

func (s *Store) put(ctx context.Context, projectID string, kind source.Kind, items []item) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.SourceError(errors.CodeStoreFailed, s.path, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339)
	pk := ProjectKey(projectID)
	for _, sk := range uniqueSortKeys(items) {
		it := sk.item
		_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO items
			(pk, sk, kind, project_id, payload, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			pk, sk.key, string(kind), strings.TrimSpace(projectID), string(it.payload), now,
		)
		if err != nil {
			return errors.SourceError(errors.CodeStoreFailed, s.path, err).WithContext("sk", sk.key)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.SourceError(errors.CodeStoreFailed, s.path, err)
	}
	return nil
}

type keyedItem struct {
	key  string
	item item
}

// uniqueSortKeys gives repeated keys of one batch an ordinal suffix
// (<sk>#2, <sk>#3, ...). Rows sharing an id or a (cost line, month) are
// distinct facts; merging them is left to the deduplicator. The suffix
// depends only on batch order, so writing the same batch again replaces
// the same rows.
func uniqueSortKeys(items []item) []keyedItem {
	seen := make(map[string]int, len(items))
	out := make([]keyedItem, 0, len(items))
	for _, it := range items {
		seen[it.sk]++
		key := it.sk
		if n := seen[it.sk]; n > 1 {
			key = fmt.Sprintf("%s%s%d", it.sk, keySeparator, n)
		}
		out = append(out, keyedItem{key: key, item: it})
	}
	return out
}

// DeleteProject removes every record of projectID and returns the number removed
func (s *Store) DeleteProject(ctx context.Context, projectID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE pk = ?", ProjectKey(projectID))
	if err != nil {
		return 0, errors.SourceError(errors.CodeStoreFailed, s.path, err)
	}
	return res.RowsAffected()
}

// Counts returns the number of stored records of projectID per kind
func (s *Store) Counts(ctx context.Context, projectID string) (map[source.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT kind, COUNT(*) FROM items WHERE pk = ? GROUP BY kind", ProjectKey(projectID))
	if err != nil {
		return nil, errors.SourceError(errors.CodeStoreFailed, s.path, err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[source.Kind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, errors.SourceError(errors.CodeStoreFailed, s.path, err)
		}
		counts[source.Kind(kind)] = n
	}
	return counts, rows.Err()
}

// Projects lists the project ids present in the store
func (s *Store) Projects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT project_id FROM items ORDER BY project_id")
	if err != nil {
		return nil, errors.SourceError(errors.CodeStoreFailed, s.path, err)
	}
	defer func() { _ = rows.Close() }()

	var projects []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.SourceError(errors.CodeStoreFailed, s.path, err)
		}
		projects = append(projects, id)
	}
	return projects, rows.Err()
}

// BudgetLines implements source.Source
func (s *Store) BudgetLines(ctx context.Context, projectID string) ([]*models.BudgetLine, error) {
	items, err := s.load(ctx, projectID, source.KindBudgetLines)
	if err != nil {
		return nil, err
	}
	return source.DecodeBudgetLines(ctx, storeSource(source.KindBudgetLines), items, projectID), nil
}

// Allocations implements source.Source
func (s *Store) Allocations(ctx context.Context, projectID string) ([]*models.Allocation, error) {
	items, err := s.load(ctx, projectID, source.KindAllocations)
	if err != nil {
		return nil, err
	}
	return source.DecodeAllocations(ctx, storeSource(source.KindAllocations), items, projectID), nil
}

// ServerForecast implements source.Source
func (s *Store) ServerForecast(ctx context.Context, projectID string) ([]*models.ForecastCell, error) {
	items, err := s.load(ctx, projectID, source.KindServerForecast)
	if err != nil {
		return nil, err
	}
	return source.DecodeForecastCells(ctx, storeSource(source.KindServerForecast), items, projectID), nil
}

// Invoices implements source.Source
func (s *Store) Invoices(ctx context.Context, projectID string) ([]*models.Invoice, error) {
	items, err := s.load(ctx, projectID, source.KindInvoices)
	if err != nil {
		return nil, err
	}
	return source.DecodeInvoices(ctx, storeSource(source.KindInvoices), items, projectID), nil
}

// load reads the payloads of one kind in write order
func (s *Store) load(ctx context.Context, projectID string, kind source.Kind) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload FROM items WHERE pk = ? AND kind = ? ORDER BY rowid",
		ProjectKey(projectID), string(kind))
	if err != nil {
		return nil, errors.SourceError(errors.CodeSourceUnavailable, storeSource(kind), err)
	}
	defer func() { _ = rows.Close() }()

	var items []json.RawMessage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.SourceError(errors.CodeSourceUnavailable, storeSource(kind), err)
		}
		items = append(items, json.RawMessage(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.SourceError(errors.CodeSourceUnavailable, storeSource(kind), err)
	}
	return items, nil
}

func storeSource(kind source.Kind) string {
	return "store:" + string(kind)
}
