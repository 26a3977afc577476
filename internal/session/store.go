// Package session implements the two-tier key/value storage that workflow
// steps read and write: an actor-scoped store private to one workflow
// execution and shared stores visible to every pipeline of the run.
package session

import (
	"sync"
)

// Scope selects the store a step reads from or writes to.
type Scope int

const (
	// ScopeActor is private to one actor's workflow execution.
	ScopeActor Scope = iota
	// ScopeSimulation is shared by every pipeline resolving the same owner.
	ScopeSimulation
)

func (s Scope) String() string {
	switch s {
	case ScopeActor:
		return "actor"
	case ScopeSimulation:
		return "simulation"
	default:
		return "unknown"
	}
}

// ParseScope maps the configuration names to a Scope.
func ParseScope(name string) (Scope, bool) {
	switch name {
	case "", "actor", "user":
		return ScopeActor, true
	case "simulation", "shared", "global":
		return ScopeSimulation, true
	default:
		return ScopeActor, false
	}
}

// Store is a concurrency-safe string-keyed map with opaque values.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[string]any)}
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Add stores value under key, replacing any previous value.
func (s *Store) Add(key string, value any) *Store {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return s
}

// Delete removes key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
}

// List returns the append-only list stored under key, creating it when the
// key is absent. A non-list value under key is replaced.
func (s *Store) List(key string) *List {
	s.mu.RLock()
	l, ok := s.values[key].(*List)
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.values[key].(*List); ok {
		return l
	}
	l = &List{}
	s.values[key] = l
	return l
}

// Len returns the number of keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Snapshot returns a shallow copy of the stored values. Lists are flattened
// into slices.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		if l, ok := v.(*List); ok {
			out[k] = l.Snapshot()
			continue
		}
		out[k] = v
	}
	return out
}

// Clone returns an independent copy of the store. Lists are copied too so
// appends to the clone are not visible in the original.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &Store{values: make(map[string]any, len(s.values))}
	for k, v := range s.values {
		if l, ok := v.(*List); ok {
			c.values[k] = &List{items: l.Snapshot()}
			continue
		}
		c.values[k] = v
	}
	return c
}

// List is an append-only sequence safe for concurrent appenders.
type List struct {
	mu    sync.Mutex
	items []any
}

// Append adds v at the end of the list.
func (l *List) Append(v any) {
	l.mu.Lock()
	l.items = append(l.items, v)
	l.mu.Unlock()
}

// Len returns the number of items.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Snapshot returns a copy of the items in append order.
func (l *List) Snapshot() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]any(nil), l.items...)
}

// Registry holds the shared stores of one run, one per owning identity.
type Registry struct {
	stores sync.Map
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// For returns the shared store of owner, creating it on first use.
func (r *Registry) For(owner string) *Store {
	if s, ok := r.stores.Load(owner); ok {
		return s.(*Store)
	}
	s, _ := r.stores.LoadOrStore(owner, NewStore())
	return s.(*Store)
}

// Owners returns the identities that own a shared store.
func (r *Registry) Owners() []string {
	var owners []string
	r.stores.Range(func(k, _ any) bool {
		owners = append(owners, k.(string))
		return true
	})
	return owners
}
