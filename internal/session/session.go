package session

import (
	"github.com/wesleyorama2/rhino/internal/actor"
)

// GlobalOwner identifies the run-wide shared store.
const GlobalOwner = ""

// Session is the state threaded through one actor's workflow execution.
//
// The actor-scoped store belongs to this session alone. Shared stores are
// resolved through the run's Registry using the session's owner.
type Session struct {
	actor  actor.Actor
	local  *Store
	shared *Registry
	owner  string
}

// New creates a session for a with an empty actor-scoped store. A nil
// registry gets a private one.
func New(a actor.Actor, shared *Registry) *Session {
	if shared == nil {
		shared = NewRegistry()
	}
	return &Session{actor: a, local: NewStore(), shared: shared, owner: GlobalOwner}
}

// Actor returns the actor driving this session.
func (s *Session) Actor() actor.Actor { return s.actor }

// Owner returns the identity used to resolve shared stores.
func (s *Session) Owner() string { return s.owner }

// Get reads key from the actor-scoped store.
func (s *Session) Get(key string) (any, bool) {
	return s.local.Get(key)
}

// Add writes key into the actor-scoped store and returns the session.
func (s *Session) Add(key string, value any) *Session {
	s.local.Add(key, value)
	return s
}

// Store resolves the store for scope.
func (s *Session) Store(scope Scope) *Store {
	if scope == ScopeSimulation {
		return s.shared.For(s.owner)
	}
	return s.local
}

// Shared returns the shared store of the session's owner.
func (s *Session) Shared() *Store {
	return s.Store(ScopeSimulation)
}

// Registry returns the run's shared store registry.
func (s *Session) Registry() *Registry { return s.shared }

// WithOwner returns a view of the session whose shared scope resolves to
// owner. The actor-scoped store is the same.
func (s *Session) WithOwner(owner string) *Session {
	c := *s
	c.owner = owner
	return &c
}

// Fork returns a session for the same actor seeded with a copy of this
// session's actor-scoped values.
func (s *Session) Fork() *Session {
	return &Session{actor: s.actor, local: s.local.Clone(), shared: s.shared, owner: s.owner}
}

// Lookup reads key, falling back from the actor scope to the shared scope.
func (s *Session) Lookup(key string) (any, bool) {
	if v, ok := s.local.Get(key); ok {
		return v, true
	}
	return s.Shared().Get(key)
}

// Value reads key from the actor scope as a T.
func Value[T any](s *Session, key string) (T, bool) {
	var zero T
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
