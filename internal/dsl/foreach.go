package dsl

import (
	"fmt"

	"github.com/wesleyorama2/rhino/internal/session"
	"github.com/wesleyorama2/rhino/internal/simerr"
)

// ForEachBuilder builds ForEach nodes over elements of type E.
type ForEachBuilder[E any] struct {
	name     string
	iterable func(s *session.Session) ([]E, error)
	exec     func(E) Builder
	saveTo   string
	scope    session.Scope
}

// ForEach iterates over the elements iterable resolves from the session.
// Elements run sequentially, in order, each to completion.
func ForEach[E any](name string, iterable func(s *session.Session) ([]E, error)) *ForEachBuilder[E] {
	return &ForEachBuilder[E]{name: name, iterable: iterable}
}

// Exec sets the factory producing the step for one element.
func (f *ForEachBuilder[E]) Exec(fn func(E) Builder) *ForEachBuilder[E] {
	f.exec = fn
	return f
}

// SaveTo collects the results of every element step, in element order, into
// the list under key.
func (f *ForEachBuilder[E]) SaveTo(key string, scope ...session.Scope) *ForEachBuilder[E] {
	f.saveTo = key
	f.scope = scopeOf(scope)
	return f
}

func (f *ForEachBuilder[E]) Build() (*Node, error) {
	if f.name == "" {
		return nil, simerr.Invalid("forEach", "name", "must not be empty")
	}
	if f.iterable == nil {
		return nil, simerr.Invalid(f.name, "iterable", "must not be nil")
	}
	if f.exec == nil {
		return nil, simerr.Invalid(f.name, "exec", "must not be nil")
	}

	iterable, exec, name := f.iterable, f.exec, f.name
	resolve := func(s *session.Session) ([]any, error) {
		elems, err := iterable(s)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(elems))
		for i, e := range elems {
			out[i] = e
		}
		return out, nil
	}
	factory := func(elem any) Builder {
		e, ok := elem.(E)
		if !ok {
			return buildFunc(func() (*Node, error) {
				return nil, fmt.Errorf("forEach %s: element of type %T", name, elem)
			})
		}
		return exec(e)
	}

	return &Node{
		kind:     KindForEach,
		name:     f.name,
		saveTo:   f.saveTo,
		scope:    f.scope,
		iterable: resolve,
		factory:  factory,
	}, nil
}

// Items iterates over a fixed list.
func Items[E any](items ...E) func(*session.Session) ([]E, error) {
	list := append([]E(nil), items...)
	return func(*session.Session) ([]E, error) { return list, nil }
}

// FromSession iterates over the actor session value under key. The value may
// be a []E, a []any holding E values, or a session list.
func FromSession[E any](key string) func(*session.Session) ([]E, error) {
	return func(s *session.Session) ([]E, error) {
		v, ok := s.Lookup(key)
		if !ok {
			return nil, fmt.Errorf("no session value under %q", key)
		}

		var raw []any
		switch t := v.(type) {
		case []E:
			return t, nil
		case *session.List:
			raw = t.Snapshot()
		case []any:
			raw = t
		default:
			return nil, fmt.Errorf("session value %q is %T, not a list", key, v)
		}

		out := make([]E, 0, len(raw))
		for i, r := range raw {
			e, ok := r.(E)
			if !ok {
				return nil, fmt.Errorf("session value %q[%d] is %T", key, i, r)
			}
			out = append(out, e)
		}
		return out, nil
	}
}
