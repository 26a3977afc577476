package dsl

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/rhino/internal/session"
	"github.com/wesleyorama2/rhino/internal/simerr"
)

type buildFunc func() (*Node, error)

func (f buildFunc) Build() (*Node, error) { return f() }

// WorkflowBuilder assembles a sequential container of steps.
type WorkflowBuilder struct {
	name  string
	steps []Builder
}

// Workflow starts a named workflow.
func Workflow(name string) *WorkflowBuilder {
	return &WorkflowBuilder{name: name}
}

// Run appends any step.
func (w *WorkflowBuilder) Run(b Builder) *WorkflowBuilder {
	w.steps = append(w.steps, b)
	return w
}

// Wait appends a fixed delay.
func (w *WorkflowBuilder) Wait(d time.Duration) *WorkflowBuilder {
	return w.Run(Wait(d))
}

// Session appends a write of supplier's value into the actor session.
func (w *WorkflowBuilder) Session(key string, supplier Supplier) *WorkflowBuilder {
	return w.Run(Session(key, supplier))
}

// SessionValue appends a write of a constant into the actor session.
func (w *WorkflowBuilder) SessionValue(key string, value any) *WorkflowBuilder {
	return w.Run(SessionValue(key, value))
}

// Until appends a loop running b until pred holds.
func (w *WorkflowBuilder) Until(pred Predicate, b Builder) *WorkflowBuilder {
	return w.Run(Until(pred, b))
}

// AsLongAs appends a loop running b while pred holds.
func (w *WorkflowBuilder) AsLongAs(pred Predicate, b Builder) *WorkflowBuilder {
	return w.Run(AsLongAs(pred, b))
}

// Repeat appends b to be run n times.
func (w *WorkflowBuilder) Repeat(n int, b Builder) *WorkflowBuilder {
	return w.Run(Repeat(n, b))
}

// RunIf appends b guarded by pred.
func (w *WorkflowBuilder) RunIf(pred Predicate, b Builder) *WorkflowBuilder {
	return w.Run(RunIf(pred, b))
}

// Ensure appends an assertion. A false predicate ends the current execution.
func (w *WorkflowBuilder) Ensure(pred Predicate, reason ...string) *WorkflowBuilder {
	return w.Run(Ensure(pred, reason...))
}

// Measure appends b wrapped in a timing measurement.
func (w *WorkflowBuilder) Measure(tag string, b Builder) *WorkflowBuilder {
	return w.Run(Measure(tag, b))
}

// Map appends a mapper step.
func (w *WorkflowBuilder) Map(m *MapperBuilder) *WorkflowBuilder {
	return w.Run(m)
}

// Build validates every step and returns the workflow node.
func (w *WorkflowBuilder) Build() (*Node, error) {
	if w.name == "" {
		return nil, simerr.Invalid("workflow", "name", "must not be empty")
	}
	if len(w.steps) == 0 {
		return nil, simerr.Invalid(w.name, "steps", "workflow has no steps")
	}

	children := make([]*Node, 0, len(w.steps))
	for i, step := range w.steps {
		if step == nil {
			return nil, simerr.Invalid(w.name, fmt.Sprintf("steps[%d]", i), "must not be nil")
		}
		n, err := step.Build()
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	return &Node{kind: KindWorkflow, name: w.name, children: children}, nil
}

// Wait creates a fixed delay step.
func Wait(d time.Duration) Builder {
	return buildFunc(func() (*Node, error) {
		if d <= 0 {
			return nil, simerr.Invalid("wait", "duration", "must be positive")
		}
		return &Node{kind: KindWait, name: "wait", duration: d}, nil
	})
}

// Session creates a step writing supplier's value under key in the actor
// session.
func Session(key string, supplier Supplier) Builder {
	return buildFunc(func() (*Node, error) {
		if key == "" {
			return nil, simerr.Invalid("session", "key", "must not be empty")
		}
		if supplier == nil {
			return nil, simerr.Invalid("session", "supplier", "must not be nil")
		}
		return &Node{kind: KindSession, name: "session", key: key, supplier: supplier}, nil
	})
}

// SessionValue creates a step writing a constant under key.
func SessionValue(key string, value any) Builder {
	if value == nil {
		return buildFunc(func() (*Node, error) {
			return nil, simerr.Invalid("session", "value", "must not be nil")
		})
	}
	return Session(key, func(*session.Session) any { return value })
}

// LoopBuilder builds RunUntil and AsLongAs nodes.
type LoopBuilder struct {
	kind  Kind
	pred  Predicate
	child Builder
	max   int
}

// Until repeats child, do-while style, until pred is true.
func Until(pred Predicate, child Builder) *LoopBuilder {
	return &LoopBuilder{kind: KindRunUntil, pred: pred, child: child}
}

// AsLongAs repeats child while pred is true. The predicate is checked
// before every iteration.
func AsLongAs(pred Predicate, child Builder) *LoopBuilder {
	return &LoopBuilder{kind: KindAsLongAs, pred: pred, child: child}
}

// Repeat runs child exactly n times.
func Repeat(n int, child Builder) Builder {
	return buildFunc(func() (*Node, error) {
		if n <= 0 {
			return nil, simerr.Invalid("repeat", "times", "repeat count must be > 0")
		}
		c, err := buildChild("repeat", child)
		if err != nil {
			return nil, err
		}
		return &Node{kind: KindRunUntil, name: "repeat", maxRepeat: n, children: []*Node{c}}, nil
	})
}

// Max caps the number of iterations.
func (l *LoopBuilder) Max(n int) *LoopBuilder {
	l.max = n
	return l
}

func (l *LoopBuilder) Build() (*Node, error) {
	name := l.kind.String()
	if l.pred == nil {
		return nil, simerr.Invalid(name, "predicate", "must not be nil")
	}
	if l.max < 0 {
		return nil, simerr.Invalid(name, "max", "must not be negative")
	}
	c, err := buildChild(name, l.child)
	if err != nil {
		return nil, err
	}
	return &Node{kind: l.kind, name: name, predicate: l.pred, maxRepeat: l.max, children: []*Node{c}}, nil
}

// RunIf runs child only when pred holds; otherwise the step is a no-op.
func RunIf(pred Predicate, child Builder) Builder {
	return buildFunc(func() (*Node, error) {
		if pred == nil {
			return nil, simerr.Invalid("conditional", "predicate", "must not be nil")
		}
		c, err := buildChild("conditional", child)
		if err != nil {
			return nil, err
		}
		return &Node{kind: KindConditional, name: "conditional", predicate: pred, children: []*Node{c}}, nil
	})
}

// Ensure asserts pred. The optional reason is reported on failure.
func Ensure(pred Predicate, reason ...string) Builder {
	return buildFunc(func() (*Node, error) {
		if pred == nil {
			return nil, simerr.Invalid("ensure", "predicate", "must not be nil")
		}
		r := "ensure failed"
		if len(reason) > 0 && reason[0] != "" {
			r = reason[0]
		}
		return &Node{kind: KindEnsure, name: "ensure", predicate: pred, reason: r}, nil
	})
}

// Measure times child as one interval reported under tag.
func Measure(tag string, child Builder) Builder {
	return measure(KindMeasure, tag, child)
}

// Gauge is an alias of Measure.
func Gauge(tag string, child Builder) Builder {
	return measure(KindGauge, tag, child)
}

func measure(kind Kind, tag string, child Builder) Builder {
	return buildFunc(func() (*Node, error) {
		if tag == "" {
			return nil, simerr.Invalid(kind.String(), "tag", "must not be empty")
		}
		c, err := buildChild(tag, child)
		if err != nil {
			return nil, err
		}
		return &Node{kind: kind, name: tag, tag: tag, children: []*Node{c}}, nil
	})
}

// ExpressionBuilder builds Some nodes.
type ExpressionBuilder struct {
	name   string
	fn     Expression
	saveTo string
	scope  session.Scope
}

// Some runs an arbitrary function over the session. Its result is saved when
// SaveTo is set, or collected by an enclosing ForEach.
func Some(name string, fn Expression) *ExpressionBuilder {
	return &ExpressionBuilder{name: name, fn: fn}
}

// SaveTo stores the result under key in the given scope (actor by default).
func (e *ExpressionBuilder) SaveTo(key string, scope ...session.Scope) *ExpressionBuilder {
	e.saveTo = key
	e.scope = scopeOf(scope)
	return e
}

func (e *ExpressionBuilder) Build() (*Node, error) {
	if e.name == "" {
		return nil, simerr.Invalid("expression", "name", "must not be empty")
	}
	if e.fn == nil {
		return nil, simerr.Invalid(e.name, "function", "must not be nil")
	}
	return &Node{kind: KindExpression, name: e.name, expr: e.fn, saveTo: e.saveTo, scope: e.scope}, nil
}

// MapperBuilder builds Mapper nodes.
type MapperBuilder struct {
	source string
	fn     MapFunc
	saveTo string
	scope  session.Scope
}

// Map starts a mapper over the actor session value under source. Slice
// values are mapped element by element.
func Map(source string) *MapperBuilder {
	return &MapperBuilder{source: source}
}

// DoMap sets the mapping function.
func (m *MapperBuilder) DoMap(fn MapFunc) *MapperBuilder {
	m.fn = fn
	return m
}

// SaveTo sets the destination key; it defaults to the source key.
func (m *MapperBuilder) SaveTo(key string, scope ...session.Scope) *MapperBuilder {
	m.saveTo = key
	m.scope = scopeOf(scope)
	return m
}

func (m *MapperBuilder) Build() (*Node, error) {
	if m.source == "" {
		return nil, simerr.Invalid("mapper", "source", "must not be empty")
	}
	if m.fn == nil {
		return nil, simerr.Invalid("mapper", "function", "must not be nil")
	}
	saveTo := m.saveTo
	if saveTo == "" {
		saveTo = m.source
	}
	return &Node{kind: KindMapper, name: "map:" + m.source, source: m.source, mapFn: m.fn, saveTo: saveTo, scope: m.scope}, nil
}

func buildChild(parent string, b Builder) (*Node, error) {
	if b == nil {
		return nil, simerr.Invalid(parent, "node", "must not be nil")
	}
	return b.Build()
}

func scopeOf(scope []session.Scope) session.Scope {
	if len(scope) > 0 {
		return scope[0]
	}
	return session.ScopeActor
}
