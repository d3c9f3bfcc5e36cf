// Package taxonomy maps the many raw spellings of a cost line onto one
// canonical taxonomy entry.
package taxonomy

import (
	"strings"

	"github.com/schollz/closestmatch"
)

const (
	// LaborCategory is the canonical category of direct-labor cost lines
	LaborCategory = "Mano de Obra Directa"
	// UnmappedCategory labels cost lines no taxonomy entry could be found for
	UnmappedCategory = "UNMAPPED"
)

// Entry is a canonical cost-line record
type Entry struct {
	ID          string `json:"id" yaml:"id" toml:"id"`
	AltCode     string `json:"alt_code,omitempty" yaml:"alt_code,omitempty" toml:"alt_code"`
	Category    string `json:"category" yaml:"category" toml:"category"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description"`
	IsLabor     bool   `json:"is_labor" yaml:"is_labor" toml:"is_labor"`

	// Synthetic is set on entries produced by the labor override rather
	// than read from reference data.
	Synthetic bool `json:"synthetic,omitempty" yaml:"-" toml:"-"`
}

// DefaultLaborKeys are role names and legacy codes that always classify as
// direct labor, whether or not a reference entry spells them.
var DefaultLaborKeys = []string{
	"mod",
	"mod-ing",
	"mod-lead",
	"mod-sdm",
	"mod-ot",
	"mod-cont",
	"mod-ext",
	"mod-pm",
	"mod-pmo",
	"mod-sdl",
	"mod-lead-ingeniero-delivery",
	"mod-ingeniero-delivery",
	"ingeniero-delivery",
	"ingeniero-soporte",
	"ingenieros",
	"ingeniero-lider",
	"lider-tecnico",
	"project-manager",
	"service-delivery-manager",
	"service-delivery-lead",
	"mano-de-obra-directa",
	"horas-extra",
	"guardias",
	"contratistas",
}

// Table is the immutable canonical lookup. It is safe for concurrent readers.
type Table struct {
	byKey     map[string]*Entry
	keys      []string
	entries   []*Entry
	labor     map[string]struct{}
	laborKeys []string
	matcher   *closestmatch.ClosestMatch
}

type tableOptions struct {
	laborKeys []string
	suggest   bool
}

// TableOption customizes BuildTable
type TableOption func(*tableOptions)

// WithLaborKeys replaces the default labor-canonical key set
func WithLaborKeys(keys ...string) TableOption {
	return func(o *tableOptions) {
		o.laborKeys = keys
	}
}

// WithoutSuggestions skips building the closest-match index used by Suggest
func WithoutSuggestions() TableOption {
	return func(o *tableOptions) {
		o.suggest = false
	}
}

// BuildTable indexes every reference entry under the normalized form of its
// ID, alternate code and description. The first entry to claim a key keeps
// it. Key insertion order is retained and drives tolerant matching.
func BuildTable(ref []Entry, opts ...TableOption) *Table {
	options := tableOptions{laborKeys: DefaultLaborKeys, suggest: true}
	for _, opt := range opts {
		opt(&options)
	}

	t := &Table{
		byKey: make(map[string]*Entry),
		labor: make(map[string]struct{}),
	}

	for i := range ref {
		entry := ref[i]
		entry.Synthetic = false
		e := &entry
		t.entries = append(t.entries, e)

		for _, raw := range []string{e.ID, e.AltCode, e.Description} {
			key := NormalizeKey(raw)
			if key == "" {
				continue
			}
			if _, taken := t.byKey[key]; taken {
				continue
			}
			t.byKey[key] = e
			t.keys = append(t.keys, key)
		}
	}

	for _, raw := range options.laborKeys {
		key := NormalizeKey(raw)
		if key == "" {
			continue
		}
		if _, seen := t.labor[key]; seen {
			continue
		}
		t.labor[key] = struct{}{}
		t.laborKeys = append(t.laborKeys, key)
	}

	if options.suggest && len(t.keys) > 0 {
		t.matcher = closestmatch.New(t.keys, []int{3, 4})
	}

	return t
}

// Lookup returns the entry indexed under an already-normalized key
func (t *Table) Lookup(key string) (*Entry, bool) {
	if key == "" {
		return nil, false
	}
	e, ok := t.byKey[key]
	return e, ok
}

// Find normalizes raw and looks it up
func (t *Table) Find(raw string) (*Entry, bool) {
	return t.Lookup(NormalizeKey(raw))
}

// IsLaborKey reports whether an already-normalized key is labor-canonical
func (t *Table) IsLaborKey(key string) bool {
	if key == "" {
		return false
	}
	_, ok := t.labor[key]
	return ok
}

// Keys returns the indexed keys in insertion order
func (t *Table) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// LaborKeys returns the labor-canonical key set in insertion order
func (t *Table) LaborKeys() []string {
	out := make([]string, len(t.laborKeys))
	copy(out, t.laborKeys)
	return out
}

// Entries returns the reference entries in the order they were supplied
func (t *Table) Entries() []*Entry {
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of indexed keys
func (t *Table) Len() int {
	return len(t.keys)
}

// Suggest returns the indexed key closest to raw, or "" when nothing is close.
// It is only used for diagnostics and never affects resolution.
func (t *Table) Suggest(raw string) string {
	if t.matcher == nil {
		return ""
	}
	key := NormalizeKey(raw)
	if key == "" {
		return ""
	}
	match := t.matcher.Closest(key)
	if strings.TrimSpace(match) == "" {
		return ""
	}
	return match
}
