package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"forecast-reconciliation-service/internal/models"
	"forecast-reconciliation-service/pkg/errors"
	"forecast-reconciliation-service/pkg/logger"
)

// FileNames maps each record set to its file inside a data directory
type FileNames map[Kind]string

// DefaultFileNames returns the conventional file name of each record set
func DefaultFileNames() FileNames {
	return FileNames{
		KindBudgetLines:    "budget_lines.json",
		KindAllocations:    "allocations.json",
		KindServerForecast: "forecast.json",
		KindInvoices:       "invoices.json",
	}
}

// FileSource reads upstream records from JSON files in a directory. A
// missing file is an empty record set, not an error.
type FileSource struct {
	dir    string
	files  FileNames
	paths  []string
	logger logger.Logger
}

// FileSourceOption customizes NewFileSource
type FileSourceOption func(*FileSource)

// WithFileNames overrides the file name of some record sets
func WithFileNames(files FileNames) FileSourceOption {
	return func(fs *FileSource) {
		for kind, name := range files {
			if name != "" {
				fs.files[kind] = name
			}
		}
	}
}

// WithRecordPaths overrides the JSONPath expressions used to unwrap payloads
func WithRecordPaths(paths ...string) FileSourceOption {
	return func(fs *FileSource) {
		fs.paths = append([]string(nil), paths...)
	}
}

// NewFileSource creates a source over dir. The directory must exist.
func NewFileSource(dir string, log logger.Logger, opts ...FileSourceOption) (*FileSource, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.SourceError(errors.CodeSourceNotFound, dir, err)
	}
	if !info.IsDir() {
		return nil, errors.SourceError(errors.CodeSourceNotFound, dir, nil).
			WithSuggestion("--data-dir must point to a directory")
	}

	fs := &FileSource{
		dir:    dir,
		files:  DefaultFileNames(),
		paths:  DefaultRecordPaths,
		logger: log.WithComponent("file_source"),
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

// Dir returns the data directory
func (fs *FileSource) Dir() string {
	return fs.dir
}

// Path returns the file read for kind
func (fs *FileSource) Path(kind Kind) string {
	return filepath.Join(fs.dir, fs.files[kind])
}

// BudgetLines implements Source
func (fs *FileSource) BudgetLines(ctx context.Context, projectID string) ([]*models.BudgetLine, error) {
	items, err := fs.read(ctx, KindBudgetLines)
	if err != nil {
		return nil, err
	}
	return DecodeBudgetLines(ctx, fs.files[KindBudgetLines], items, projectID), nil
}

// Allocations implements Source
func (fs *FileSource) Allocations(ctx context.Context, projectID string) ([]*models.Allocation, error) {
	items, err := fs.read(ctx, KindAllocations)
	if err != nil {
		return nil, err
	}
	return DecodeAllocations(ctx, fs.files[KindAllocations], items, projectID), nil
}

// ServerForecast implements Source
func (fs *FileSource) ServerForecast(ctx context.Context, projectID string) ([]*models.ForecastCell, error) {
	items, err := fs.read(ctx, KindServerForecast)
	if err != nil {
		return nil, err
	}
	return DecodeForecastCells(ctx, fs.files[KindServerForecast], items, projectID), nil
}

// Invoices implements Source
func (fs *FileSource) Invoices(ctx context.Context, projectID string) ([]*models.Invoice, error) {
	items, err := fs.read(ctx, KindInvoices)
	if err != nil {
		return nil, err
	}
	return DecodeInvoices(ctx, fs.files[KindInvoices], items, projectID), nil
}

func (fs *FileSource) read(ctx context.Context, kind Kind) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := fs.Path(kind)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fs.logger.WithField("file_path", path).Debug("Source file missing, treating as empty")
			return nil, nil
		}
		return nil, errors.SourceError(errors.CodeSourceUnavailable, path, err)
	}

	items, err := ExtractRecords(data, fs.paths)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategorySource, errors.CodeDecodeFailed, "cannot read records from "+path).
			WithContext("source", path)
	}

	fs.logger.WithFields(logger.Fields{
		"file_path": path,
		"records":   len(items),
	}).Debug("Read source file")
	return items, nil
}
