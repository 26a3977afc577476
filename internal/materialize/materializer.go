// Package materialize turns a workflow node tree into a runnable Step.
//
// Dispatch is a switch over the node kind. Containers fold their children
// left to right, threading the session; every step of one actor pipeline
// runs sequentially on the caller's goroutine. The resolution context an
// enclosing node imposes on its descendants (workflow name, measure tag,
// ForEach collector) is passed down explicitly as a frame.
package materialize

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/rhino/internal/dsl"
	"github.com/wesleyorama2/rhino/internal/events"
	"github.com/wesleyorama2/rhino/internal/session"
	"github.com/wesleyorama2/rhino/internal/simerr"
	"github.com/wesleyorama2/rhino/internal/transport"
)

// Step runs a materialized node against a session and returns the session
// for the next step.
type Step func(ctx context.Context, s *session.Session) (*session.Session, error)

// Materializer converts nodes into Steps. It holds only collaborators and is
// safe to share between actor pipelines.
type Materializer struct {
	transport  transport.Transport
	dispatcher events.Dispatcher
	log        zerolog.Logger
	runID      string
	now        func() time.Time
}

// Option configures a Materializer.
type Option func(*Materializer)

// WithDispatcher sets where timing events go. The default discards them.
func WithDispatcher(d events.Dispatcher) Option {
	return func(m *Materializer) {
		if d != nil {
			m.dispatcher = d
		}
	}
}

// WithLogger sets the logger for dropped branches and recoverable errors.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Materializer) {
		m.log = log
	}
}

// WithRunID stamps events with the run identifier.
func WithRunID(id string) Option {
	return func(m *Materializer) {
		m.runID = id
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Materializer) {
		m.now = now
	}
}

// New creates a Materializer issuing requests through t.
func New(t transport.Transport, opts ...Option) *Materializer {
	m := &Materializer{
		transport:  t,
		dispatcher: events.Discard,
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// frame is the resolution context of a node: what its ancestors imposed.
type frame struct {
	workflow string
	measure  string
	collect  *session.List
}

// Materialize returns the Step for n and its static subtree. The returned
// Step may be run concurrently for different sessions.
func (m *Materializer) Materialize(n *dsl.Node) Step {
	return m.step(n, frame{workflow: n.Name()})
}

// Run materializes n and runs it against s.
func (m *Materializer) Run(ctx context.Context, n *dsl.Node, s *session.Session) (*session.Session, error) {
	return m.Materialize(n)(ctx, s)
}

func (m *Materializer) step(n *dsl.Node, f frame) Step {
	switch n.Kind() {
	case dsl.KindWorkflow:
		return m.sequence(n, f)
	case dsl.KindHTTP:
		return m.http(n, f)
	case dsl.KindWait:
		return m.wait(n)
	case dsl.KindForEach:
		return m.forEach(n, f)
	case dsl.KindRunUntil:
		return m.runUntil(n, f)
	case dsl.KindAsLongAs:
		return m.asLongAs(n, f)
	case dsl.KindConditional:
		return m.conditional(n, f)
	case dsl.KindSession:
		return m.session(n)
	case dsl.KindMapper:
		return m.mapper(n)
	case dsl.KindEnsure:
		return m.ensure(n)
	case dsl.KindExpression:
		return m.expression(n, f)
	case dsl.KindMeasure, dsl.KindGauge:
		return m.measure(n, f)
	default:
		return func(_ context.Context, s *session.Session) (*session.Session, error) {
			return s, fmt.Errorf("unsupported node kind %s", n.Kind())
		}
	}
}

func (m *Materializer) sequence(n *dsl.Node, f frame) Step {
	children := n.Children()
	steps := make([]Step, len(children))
	for i, c := range children {
		steps[i] = m.step(c, f)
	}

	return func(ctx context.Context, s *session.Session) (*session.Session, error) {
		var err error
		for _, step := range steps {
			if err = ctx.Err(); err != nil {
				return s, err
			}
			if s, err = step(ctx, s); err != nil {
				return s, err
			}
		}
		return s, nil
	}
}

func (m *Materializer) wait(n *dsl.Node) Step {
	d := n.Duration()
	return func(ctx context.Context, s *session.Session) (*session.Session, error) {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return s, ctx.Err()
		case <-timer.C:
			return s, nil
		}
	}
}

func (m *Materializer) conditional(n *dsl.Node, f frame) Step {
	pred := n.Predicate()
	child := m.step(n.Child(), f)
	return func(ctx context.Context, s *session.Session) (*session.Session, error) {
		if !pred(s) {
			return s, nil
		}
		return child(ctx, s)
	}
}

func (m *Materializer) runUntil(n *dsl.Node, f frame) Step {
	pred, limit := n.Predicate(), n.MaxRepeat()
	child := m.step(n.Child(), f)

	return func(ctx context.Context, s *session.Session) (*session.Session, error) {
		var err error
		for i := 1; ; i++ {
			if s, err = child(ctx, s); err != nil {
				return s, err
			}
			if pred != nil && pred(s) {
				return s, nil
			}
			if limit > 0 && i >= limit {
				return s, nil
			}
			if err = ctx.Err(); err != nil {
				return s, err
			}
		}
	}
}

func (m *Materializer) asLongAs(n *dsl.Node, f frame) Step {
	pred, limit := n.Predicate(), n.MaxRepeat()
	child := m.step(n.Child(), f)

	return func(ctx context.Context, s *session.Session) (*session.Session, error) {
		var err error
		for i := 0; pred(s); i++ {
			if limit > 0 && i >= limit {
				break
			}
			if err = ctx.Err(); err != nil {
				return s, err
			}
			if s, err = child(ctx, s); err != nil {
				return s, err
			}
		}
		return s, nil
	}
}

func (m *Materializer) session(n *dsl.Node) Step {
	key, supplier := n.Key(), n.Supplier()
	return func(_ context.Context, s *session.Session) (*session.Session, error) {
		return s.Add(key, supplier(s)), nil
	}
}

func (m *Materializer) ensure(n *dsl.Node) Step {
	pred, reason := n.Predicate(), n.Reason()
	return func(_ context.Context, s *session.Session) (*session.Session, error) {
		if !pred(s) {
			return s, &simerr.SimulationTerminationError{Reason: reason}
		}
		return s, nil
	}
}

func (m *Materializer) expression(n *dsl.Node, f frame) Step {
	expr := n.Expression()
	return func(_ context.Context, s *session.Session) (*session.Session, error) {
		v, err := expr(s)
		if err != nil {
			return s, fmt.Errorf("%s: %w", n.Name(), err)
		}
		record(f, n, s, v)
		return s, nil
	}
}

// mapper applies the mapping function to the actor session value under the
// source key, element-wise for slices. A missing source or a failing
// function is logged and leaves the session unchanged.
func (m *Materializer) mapper(n *dsl.Node) Step {
	fn := n.MapFunc()
	return func(_ context.Context, s *session.Session) (*session.Session, error) {
		v, ok := s.Get(n.Source())
		if !ok {
			m.log.Error().Str("key", n.Source()).Str("actor", s.Actor().ID).Msg("no session value to map")
			return s, nil
		}

		mapped, err := mapValue(v, fn)
		if err != nil {
			m.log.Error().Err(err).Str("key", n.Source()).Str("actor", s.Actor().ID).Msg("mapping failed")
			return s, nil
		}

		s.Store(n.Scope()).Add(n.SaveTo(), mapped)
		return s, nil
	}
}

func mapValue(v any, fn dsl.MapFunc) (any, error) {
	if l, ok := v.(*session.List); ok {
		v = l.Snapshot()
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return fn(v)
	}

	out := make([]any, rv.Len())
	for i := range out {
		r, err := fn(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

// forEach runs the factory-built step of each element in order, each to
// completion before the next starts. When the node saves its results,
// descendants append their results to one collector list instead of their
// own keys.
func (m *Materializer) forEach(n *dsl.Node, f frame) Step {
	iterable, factory := n.Iterable(), n.Factory()

	return func(ctx context.Context, s *session.Session) (*session.Session, error) {
		elems, err := iterable(s)
		if err != nil {
			m.log.Warn().Err(err).Str("step", n.Name()).Str("actor", s.Actor().ID).Msg("forEach iterable failed, dropping branch")
			return s, &simerr.BranchDroppedError{Node: n.Name(), Cause: err}
		}

		inner := f
		var nested *session.List
		switch {
		case n.SaveTo() != "" && f.collect != nil:
			nested = &session.List{}
			inner.collect = nested
		case n.SaveTo() != "":
			inner.collect = s.Store(n.Scope()).List(n.SaveTo())
		}

		for _, elem := range elems {
			if err := ctx.Err(); err != nil {
				return s, err
			}

			node, err := factory(elem).Build()
			if err != nil {
				return s, fmt.Errorf("%s: %w", n.Name(), err)
			}
			if s, err = m.step(node, inner)(ctx, s); err != nil {
				return s, err
			}
		}

		if nested != nil {
			f.collect.Append(nested.Snapshot())
		}
		return s, nil
	}
}

// measure times the wrapped node and reports one start/end pair tagged with
// the node's label, whatever the outcome.
func (m *Materializer) measure(n *dsl.Node, f frame) Step {
	inner := f
	inner.measure = n.Tag()
	child := m.step(n.Child(), inner)

	return func(ctx context.Context, s *session.Session) (*session.Session, error) {
		base := events.Event{
			Kind:     events.KindMeasure,
			RunID:    m.runID,
			Scenario: n.Tag(),
			Step:     f.workflow,
			ActorID:  s.Actor().ID,
		}

		start := m.now()
		startEvent := base
		startEvent.Type = events.TypeStart
		startEvent.Start = start
		m.dispatcher.Dispatch(startEvent)

		out, err := child(ctx, s)

		base.Status = events.StatusCompleted
		switch {
		case simerr.IsTermination(err):
			base.Status, base.Failed = events.StatusTerminated, true
		case simerr.IsDropped(err):
			base.Status, base.Failed = events.StatusDropped, true
		case err != nil:
			base.Status, base.Failed = events.StatusFailed, true
		}
		_, end := events.Pair(base, start, m.now())
		m.dispatcher.Dispatch(end)

		return out, err
	}
}

// record routes a step result: into the enclosing ForEach collector when
// there is one, otherwise under the node's own key.
func record(f frame, n *dsl.Node, s *session.Session, v any) {
	if f.collect != nil {
		f.collect.Append(v)
		return
	}
	if n.SaveTo() == "" {
		return
	}
	s.Store(n.Scope()).Add(n.SaveTo(), v)
}
