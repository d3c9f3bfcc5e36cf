package taxonomy

import (
	"strings"
)

const (
	tolerantMinLength = 3
	tolerantMinRatio  = 0.6
)

// Step identifies which resolution step produced a result
type Step string

const (
	StepNone     Step = ""
	StepCache    Step = "cache"
	StepExact    Step = "exact"
	StepLabor    Step = "labor_override"
	StepTolerant Step = "tolerant"
	StepUnmapped Step = "unmapped"
)

// Stats counts resolution outcomes per step
type Stats struct {
	Cache    int `json:"cache"`
	Exact    int `json:"exact"`
	Labor    int `json:"labor_override"`
	Tolerant int `json:"tolerant"`
	Unmapped int `json:"unmapped"`
}

// Resolver finds the taxonomy entry for a set of candidate identifiers.
// A Resolver carries a result cache and belongs to a single reconciliation
// run; it is not safe for concurrent use.
type Resolver struct {
	table     *Table
	aliases   map[string]string
	cache     map[string]*Entry
	synthetic map[string]*Entry
	stats     Stats
	last      Step
}

// ResolverOption customizes NewResolver
type ResolverOption func(*Resolver)

// WithLegacyAliases replaces the built-in legacy alias map
func WithLegacyAliases(aliases map[string]string) ResolverOption {
	return func(r *Resolver) {
		r.aliases = normalizeAliases(aliases)
	}
}

// NewResolver creates a resolver with an empty cache over table
func NewResolver(table *Table, opts ...ResolverOption) *Resolver {
	if table == nil {
		table = BuildTable(nil)
	}
	r := &Resolver{
		table:     table,
		aliases:   normalizeAliases(defaultLegacyAliases),
		cache:     make(map[string]*Entry),
		synthetic: make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Table returns the table the resolver reads from
func (r *Resolver) Table() *Table {
	return r.table
}

// Resolve returns the taxonomy entry for candidates, ordered most structured
// first. It tries an exact match, then the labor override, then tolerant
// substring matching. nil means unmapped. Whatever the outcome, it is cached
// under every normalized candidate.
func (r *Resolver) Resolve(candidates []string) *Entry {
	keys := candidateKeys(candidates)
	if len(keys) == 0 {
		r.record(StepUnmapped)
		return nil
	}

	negative := 0
	for _, key := range keys {
		if cached, ok := r.cache[key]; ok {
			if cached != nil {
				r.store(keys, cached)
				r.record(StepCache)
				return cached
			}
			negative++
			continue
		}
		if entry, ok := r.table.Lookup(key); ok {
			r.store(keys, entry)
			r.record(StepExact)
			return entry
		}
	}
	if negative == len(keys) {
		r.record(StepCache)
		return nil
	}

	for _, key := range keys {
		if r.table.IsLaborKey(key) {
			entry := r.laborEntry(key)
			r.store(keys, entry)
			r.record(StepLabor)
			return entry
		}
	}

	for _, key := range keys {
		if entry := r.tolerant(key); entry != nil {
			r.store(keys, entry)
			r.record(StepTolerant)
			return entry
		}
	}

	r.store(keys, nil)
	r.record(StepUnmapped)
	return nil
}

// ResolveOne is Resolve for a single identifier
func (r *Resolver) ResolveOne(raw string) *Entry {
	return r.Resolve([]string{raw})
}

// LastStep returns the step that settled the most recent Resolve call
func (r *Resolver) LastStep() Step {
	return r.last
}

// Stats returns the per-step counters accumulated so far
func (r *Resolver) Stats() Stats {
	return r.stats
}

// CanonicalID maps raw to a canonical cost-line id through the legacy alias
// map, then through an exact table lookup. It returns "" when neither knows
// the identifier. No labor synthesis or tolerant matching happens here.
func (r *Resolver) CanonicalID(raw string) string {
	key := NormalizeKey(raw)
	if key == "" {
		return ""
	}
	if id, ok := r.aliases[key]; ok {
		return NormalizeKey(id)
	}
	if entry, ok := r.table.Lookup(key); ok {
		return NormalizeKey(entry.ID)
	}
	return ""
}

func (r *Resolver) tolerant(key string) *Entry {
	if len(key) < tolerantMinLength {
		return nil
	}
	for _, candidate := range r.table.keys {
		if len(candidate) < tolerantMinLength {
			continue
		}
		short, long := len(key), len(candidate)
		if short > long {
			short, long = long, short
		}
		if float64(short)/float64(long) < tolerantMinRatio {
			continue
		}
		if strings.Contains(candidate, key) || strings.Contains(key, candidate) {
			entry, _ := r.table.Lookup(candidate)
			return entry
		}
	}
	return nil
}

func (r *Resolver) laborEntry(key string) *Entry {
	if entry, ok := r.synthetic[key]; ok {
		return entry
	}
	entry := &Entry{
		ID:          strings.ToUpper(key),
		Category:    LaborCategory,
		Description: LaborCategory,
		IsLabor:     true,
		Synthetic:   true,
	}
	r.synthetic[key] = entry
	return entry
}

func (r *Resolver) store(keys []string, entry *Entry) {
	for _, key := range keys {
		r.cache[key] = entry
	}
}

func (r *Resolver) record(step Step) {
	r.last = step
	switch step {
	case StepCache:
		r.stats.Cache++
	case StepExact:
		r.stats.Exact++
	case StepLabor:
		r.stats.Labor++
	case StepTolerant:
		r.stats.Tolerant++
	case StepUnmapped:
		r.stats.Unmapped++
	}
}

// candidateKeys normalizes candidates, dropping empty and repeated keys
func candidateKeys(candidates []string) []string {
	keys := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, raw := range candidates {
		key := NormalizeKey(raw)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}
