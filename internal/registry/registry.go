// Package registry holds alias-keyed implementation registries. One registry is
// built per kind family during startup and handed to the components that
// resolve aliases stored on persisted rows.
package registry

import (
	"log/slog"
	"sort"
	"sync"
)

// Details is the human-readable description every registered kind exposes.
type Details struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Kind interface {
	Details() Details
}

type Entry[K Kind] struct {
	Owner string
	Alias string
	Kind  K
}

type Registry[K Kind] struct {
	family  string
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]Entry[K]
}

func New[K Kind](family string, logger *slog.Logger) *Registry[K] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry[K]{
		family:  family,
		logger:  logger,
		entries: make(map[string]Entry[K]),
	}
}

// Register adds every alias in kinds under owner. An alias that is already
// registered is replaced: the last registrant wins.
func (r *Registry[K]) Register(owner string, kinds map[string]K) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for alias, kind := range kinds {
		if prev, exists := r.entries[alias]; exists && prev.Owner != owner {
			r.logger.Warn("kind alias overridden",
				"family", r.family,
				"alias", alias,
				"previous_owner", prev.Owner,
				"owner", owner)
		}
		r.entries[alias] = Entry[K]{Owner: owner, Alias: alias, Kind: kind}
	}

	r.logger.Debug("kinds registered", "family", r.family, "owner", owner, "count", len(kinds))
}

func (r *Registry[K]) Find(alias string) (K, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[alias]
	return entry.Kind, ok
}

// List returns all entries ordered by display name, then alias.
func (r *Registry[K]) List() []Entry[K] {
	r.mu.RLock()
	out := make([]Entry[K], 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ni, nj := out[i].Kind.Details().Name, out[j].Kind.Details().Name
		if ni != nj {
			return ni < nj
		}
		return out[i].Alias < out[j].Alias
	})
	return out
}

func (r *Registry[K]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
