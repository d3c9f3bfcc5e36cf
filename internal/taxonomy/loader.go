package taxonomy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"forecast-reconciliation-service/pkg/errors"
)

// Reference is the on-disk form of a taxonomy: the catalog itself plus
// optional labor keys and legacy aliases. Empty optional sections keep the
// built-in defaults.
type Reference struct {
	Entries       []Entry           `json:"entries" yaml:"entries" toml:"entries"`
	LaborKeys     []string          `json:"labor_keys,omitempty" yaml:"labor_keys,omitempty" toml:"labor_keys"`
	LegacyAliases map[string]string `json:"legacy_aliases,omitempty" yaml:"legacy_aliases,omitempty" toml:"legacy_aliases"`
}

// DefaultReferenceSet returns the built-in catalog with default labor keys
// and aliases
func DefaultReferenceSet() *Reference {
	return &Reference{
		Entries:       DefaultReference(),
		LaborKeys:     append([]string(nil), DefaultLaborKeys...),
		LegacyAliases: DefaultLegacyAliases(),
	}
}

// LoadReferenceFile reads a taxonomy reference from a .yaml, .yml, .toml or
// .json file.
func LoadReferenceFile(path string) (*Reference, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.SourceError(errors.CodeSourceNotFound, path, err)
		}
		return nil, errors.SourceError(errors.CodeSourceUnavailable, path, err)
	}

	var ref Reference
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		err = decoder.Decode(&ref)
	case ".toml":
		_, err = toml.Decode(string(data), &ref)
	case ".json":
		err = json.Unmarshal(data, &ref)
	default:
		return nil, errors.TaxonomyError(errors.CodeUnsupportedFile, path, nil)
	}
	if err != nil {
		return nil, errors.TaxonomyError(errors.CodeReferenceInvalid, path, err)
	}

	if err := ref.Validate(); err != nil {
		return nil, errors.TaxonomyError(errors.CodeReferenceInvalid, path, err)
	}

	return &ref, nil
}

// Validate checks that every entry carries an id and a category
func (r *Reference) Validate() error {
	if len(r.Entries) == 0 {
		return fmt.Errorf("reference has no entries")
	}
	for i, entry := range r.Entries {
		if strings.TrimSpace(entry.ID) == "" {
			return fmt.Errorf("entry %d: id is required", i)
		}
		if strings.TrimSpace(entry.Category) == "" {
			return fmt.Errorf("entry %d (%s): category is required", i, entry.ID)
		}
	}
	return nil
}

// Build creates the table described by the reference
func (r *Reference) Build(opts ...TableOption) *Table {
	if len(r.LaborKeys) > 0 {
		opts = append([]TableOption{WithLaborKeys(r.LaborKeys...)}, opts...)
	}
	return BuildTable(r.Entries, opts...)
}

// ResolverOptions returns the resolver options the reference implies
func (r *Reference) ResolverOptions() []ResolverOption {
	if len(r.LegacyAliases) == 0 {
		return nil
	}
	return []ResolverOption{WithLegacyAliases(r.LegacyAliases)}
}
