/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package expr

// Valuer is the minimal surface the evaluator needs from a record:
// raw access to a named field value. record.Record satisfies it.
type Valuer interface {
	Value(name string) any
}

// Op identifies a comparison or string-pattern operator.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="

	OpStartsWith Op = "startswith"
	OpEndsWith   Op = "endswith"
	OpContains   Op = "contains"
)

// Fn identifies a value-accessor function node.
type Fn string

const (
	FnYear  Fn = "year"
	FnMonth Fn = "month"
	FnDay   Fn = "day"
	FnNow   Fn = "now"
)

// Node is one operator or operand in an expression tree. The concrete
// types are exported so backends can translate trees natively; any node
// a backend does not recognize must be handled by local post-filtering.
type Node interface {
	exact() bool
}

// FieldNode references a field of the Arg'th tuple member. Arg is always
// zero for single-class expressions.
type FieldNode struct {
	Arg  int
	Name string
}

// LitNode is a literal operand, bound at construction time. Expressions
// never carry live references to enclosing scope.
type LitNode struct {
	Value any
}

// CmpNode compares two operands.
type CmpNode struct {
	Op    Op
	Left  Node
	Right Node
}

// AndNode is the conjunction of its members.
type AndNode struct {
	Members []Node
}

// OrNode is the disjunction of its members.
type OrNode struct {
	Members []Node
}

// NotNode negates its operand.
type NotNode struct {
	X Node
}

// InNode tests membership of X in a bound literal set.
type InNode struct {
	X      Node
	Values []any
}

// CallNode applies a known accessor function to its operand (which is
// nil for the zero-argument functions such as now).
type CallNode struct {
	Fn Fn
	X  Node
}

// FuncNode wraps an opaque host-language predicate. It is the adapter
// path for closures: Go offers no portable way to inspect a compiled
// closure, so a raw predicate is carried whole and can only be evaluated
// locally. Any tree containing a FuncNode is imperfect by construction.
type FuncNode struct {
	Pred func(args ...Valuer) bool
}

// TrueNode matches everything. The compilation of a nil predicate.
type TrueNode struct{}

func (*FieldNode) exact() bool { return true }
func (*LitNode) exact() bool   { return true }
func (*TrueNode) exact() bool  { return true }
func (*FuncNode) exact() bool  { return false }

func (n *CmpNode) exact() bool { return n.Left.exact() && n.Right.exact() }
func (n *NotNode) exact() bool { return n.X.exact() }
func (n *InNode) exact() bool  { return n.X.exact() }

func (n *AndNode) exact() bool {
	for _, m := range n.Members {
		if !m.exact() {
			return false
		}
	}
	return true
}

func (n *OrNode) exact() bool {
	for _, m := range n.Members {
		if !m.exact() {
			return false
		}
	}
	return true
}

func (n *CallNode) exact() bool {
	if n.X == nil {
		return true
	}
	return n.X.exact()
}

// Expression is the portable, immutable form of a predicate: an operator
// tree with literals already bound, plus the arity of the record tuple
// it applies to (1 for single-class predicates, >1 for joins).
//
// A perfect expression guarantees that a backend implementing exact
// translation of every node needs no post-filtering. Perfection is a
// property of the whole tree: one inexact node taints the expression.
type Expression struct {
	arity int
	root  Node
}

// New wraps a node tree as an expression of the given arity.
func New(arity int, root Node) *Expression {
	if root == nil {
		root = &TrueNode{}
	}
	if arity < 1 {
		arity = 1
	}
	return &Expression{arity: arity, root: root}
}

// Root returns the tree root for backend translation.
func (e *Expression) Root() Node {
	if e == nil {
		return &TrueNode{}
	}
	return e.root
}

// Arity returns the tuple width the expression was built for.
func (e *Expression) Arity() int {
	if e == nil {
		return 1
	}
	return e.arity
}

// Perfect reports whether every node of the tree translates exactly.
// Imperfect expressions require the caller (or the backend, per the
// storage contract) to re-apply the predicate locally to each candidate.
func (e *Expression) Perfect() bool {
	if e == nil {
		return true
	}
	return e.root.exact()
}

// Matches reports whether the expression is the trivial match-all.
func (e *Expression) Matches() bool {
	if e == nil {
		return true
	}
	_, ok := e.root.(*TrueNode)
	return ok
}
