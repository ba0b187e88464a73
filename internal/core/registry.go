package core

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

var ttlPattern = regexp.MustCompile(`(?i)^([1-9][0-9]*)([smh])$`)

// ParseTTL parses durations of the form "30s", "10m" or "2h".
func ParseTTL(s string) (time.Duration, error) {
	m := ttlPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid ttl %q: expected a positive integer followed by s, m or h", s)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ttl %q: %w", s, err)
	}

	unit := time.Second
	switch strings.ToLower(m[2]) {
	case "m":
		unit = time.Minute
	case "h":
		unit = time.Hour
	}
	return time.Duration(n) * unit, nil
}

// Registry owns the set of live tables and their lifetimes.
// One mutex guards the map and is held for the whole of a sweep.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	tables map[string]*Table
}

// NewRegistry returns an empty registry that evicts tables idle for longer
// than ttl. A nil clock means time.Now.
func NewRegistry(ttl time.Duration, clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{
		ttl:    ttl,
		now:    clock,
		tables: make(map[string]*Table),
	}
}

// TTL returns the idle time after which tables are evicted.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Register stores table under id. An existing entry is only replaced when
// allowReplace is set.
func (r *Registry) Register(id string, table *Table, allowReplace bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tables[id]; exists && !allowReplace {
		return newError("register", ErrDuplicateID, "id %s", id)
	}
	r.tables[id] = table
	return nil
}

// Unregister removes id and reports whether it was present.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tables[id]; !exists {
		return false
	}
	delete(r.tables, id)
	return true
}

// Lookup returns the table registered under id.
func (r *Registry) Lookup(id string) (*Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tables[id]
	if !ok {
		return nil, newError("lookup", ErrTableNotFound, "id %s", id)
	}
	return t, nil
}

// IDs returns the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.tables))
	for id := range r.tables {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Tables returns the registered tables sorted by id.
func (r *Registry) Tables() []*Table {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *Table) int { return strings.Compare(a.ID(), b.ID()) })
	return out
}

// Len returns the number of registered tables.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tables)
}

// ReleaseAt is when table becomes eligible for eviction if left untouched.
func (r *Registry) ReleaseAt(t *Table) time.Time {
	return t.LastAccessed().Add(r.ttl)
}

// Sweep removes every table that has been idle for longer than the TTL and
// returns the evicted tables. Evicted tables' row locks are not taken.
func (r *Registry) Sweep() []*Table {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var evicted []*Table
	for id, t := range r.tables {
		if now.Sub(t.LastAccessed()) > r.ttl {
			delete(r.tables, id)
			evicted = append(evicted, t)
		}
	}
	slices.SortFunc(evicted, func(a, b *Table) int { return strings.Compare(a.ID(), b.ID()) })
	return evicted
}
