// Package dsl is the declarative workflow model: a tree of immutable nodes
// assembled bottom-up with builders and validated when built.
//
// A built tree carries no execution state. The same *Node may be
// materialized concurrently for any number of actors.
package dsl

import (
	"time"

	"github.com/wesleyorama2/rhino/internal/session"
)

// Kind identifies the variant of a Node.
type Kind int

const (
	KindWorkflow Kind = iota
	KindHTTP
	KindWait
	KindForEach
	KindRunUntil
	KindAsLongAs
	KindConditional
	KindSession
	KindMapper
	KindEnsure
	KindExpression
	KindMeasure
	KindGauge
)

var kindNames = map[Kind]string{
	KindWorkflow:    "workflow",
	KindHTTP:        "http",
	KindWait:        "wait",
	KindForEach:     "forEach",
	KindRunUntil:    "runUntil",
	KindAsLongAs:    "asLongAs",
	KindConditional: "conditional",
	KindSession:     "session",
	KindMapper:      "mapper",
	KindEnsure:      "ensure",
	KindExpression:  "expression",
	KindMeasure:     "measure",
	KindGauge:       "gauge",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Predicate is evaluated against the session produced so far.
type Predicate func(s *session.Session) bool

// Supplier produces a value from the session.
type Supplier func(s *session.Session) any

// Expression is an arbitrary computation over the session.
type Expression func(s *session.Session) (any, error)

// MapFunc transforms one value.
type MapFunc func(v any) (any, error)

// Builder produces a validated node.
type Builder interface {
	Build() (*Node, error)
}

// Node is one declarative step. All fields are set at build time and never
// change afterwards.
type Node struct {
	kind     Kind
	name     string
	children []*Node

	duration time.Duration

	predicate Predicate
	reason    string
	maxRepeat int

	key      string
	supplier Supplier
	expr     Expression

	source string
	mapFn  MapFunc

	saveTo string
	scope  session.Scope

	iterable func(s *session.Session) ([]any, error)
	factory  func(elem any) Builder

	tag  string
	http *HTTPSpec
}

// Build returns the node itself so a built node can be reused as a Builder.
func (n *Node) Build() (*Node, error) { return n, nil }

func (n *Node) Kind() Kind { return n.kind }
func (n *Node) Name() string { return n.name }
func (n *Node) Duration() time.Duration { return n.duration }
func (n *Node) Predicate() Predicate { return n.predicate }
func (n *Node) Reason() string { return n.reason }
func (n *Node) Key() string { return n.key }
func (n *Node) Supplier() Supplier { return n.supplier }
func (n *Node) Expression() Expression { return n.expr }
func (n *Node) Source() string { return n.source }
func (n *Node) MapFunc() MapFunc { return n.mapFn }
func (n *Node) SaveTo() string { return n.saveTo }
func (n *Node) Scope() session.Scope { return n.scope }
func (n *Node) Tag() string { return n.tag }

// MaxRepeat bounds a RunUntil loop. Zero means unbounded.
func (n *Node) MaxRepeat() int { return n.maxRepeat }

// Children returns a copy of the node's children in declaration order.
func (n *Node) Children() []*Node {
	return append([]*Node(nil), n.children...)
}

// Child returns the single wrapped node of a wrapper kind, or nil.
func (n *Node) Child() *Node {
	if len(n.children) == 0 {
		return nil
	}
	return n.children[0]
}

// Iterable resolves the elements a ForEach node iterates over.
func (n *Node) Iterable() func(s *session.Session) ([]any, error) { return n.iterable }

// Factory builds the child node for one ForEach element.
func (n *Node) Factory() func(elem any) Builder { return n.factory }

// HTTP returns the request description of an HTTP node, or nil.
func (n *Node) HTTP() *HTTPSpec { return n.http }

// Walk visits n and its static descendants in pre-order. ForEach children
// are created at run time and are not visited.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}
