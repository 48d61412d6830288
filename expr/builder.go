/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package expr

import "sort"

// Term is a value-producing operand under construction. Terms are built
// with Field, Arg, Lit and Now, refined with accessor methods, and
// finished with a comparison, which yields an Expression.
type Term struct {
	node  Node
	arity int
}

// Field references a field of the (single) predicate argument.
func Field(name string) Term {
	return Term{node: &FieldNode{Arg: 0, Name: name}, arity: 1}
}

// ArgRef names one member of a join tuple.
type ArgRef struct {
	i int
}

// Arg selects the i'th class of a join predicate (zero-based).
func Arg(i int) ArgRef {
	return ArgRef{i: i}
}

// Field references a field of the selected tuple member.
func (a ArgRef) Field(name string) Term {
	return Term{node: &FieldNode{Arg: a.i, Name: name}, arity: a.i + 1}
}

// Lit binds a literal operand.
func Lit(v any) Term {
	return Term{node: &LitNode{Value: v}, arity: 1}
}

// Now produces the evaluation-time timestamp.
func Now() Term {
	return Term{node: &CallNode{Fn: FnNow}, arity: 1}
}

// Year extracts the year of a date/datetime term.
func (t Term) Year() Term {
	return Term{node: &CallNode{Fn: FnYear, X: t.node}, arity: t.arity}
}

// Month extracts the month of a date/datetime term.
func (t Term) Month() Term {
	return Term{node: &CallNode{Fn: FnMonth, X: t.node}, arity: t.arity}
}

// Day extracts the day of a date/datetime term.
func (t Term) Day() Term {
	return Term{node: &CallNode{Fn: FnDay, X: t.node}, arity: t.arity}
}

func operand(v any) (Node, int) {
	if t, ok := v.(Term); ok {
		return t.node, t.arity
	}
	return &LitNode{Value: canonical(v)}, 1
}

func (t Term) cmp(op Op, v any) *Expression {
	right, rarity := operand(v)
	arity := t.arity
	if rarity > arity {
		arity = rarity
	}
	return New(arity, &CmpNode{Op: op, Left: t.node, Right: right})
}

// Eq compares for equality against a literal or another Term.
func (t Term) Eq(v any) *Expression { return t.cmp(OpEq, v) }

// Ne compares for inequality.
func (t Term) Ne(v any) *Expression { return t.cmp(OpNe, v) }

// Lt compares with <.
func (t Term) Lt(v any) *Expression { return t.cmp(OpLt, v) }

// Le compares with <=.
func (t Term) Le(v any) *Expression { return t.cmp(OpLe, v) }

// Gt compares with >.
func (t Term) Gt(v any) *Expression { return t.cmp(OpGt, v) }

// Ge compares with >=.
func (t Term) Ge(v any) *Expression { return t.cmp(OpGe, v) }

// In tests membership in a bound set of literals.
func (t Term) In(vals ...any) *Expression {
	bound := make([]any, len(vals))
	for i, v := range vals {
		bound[i] = canonical(v)
	}
	return New(t.arity, &InNode{X: t.node, Values: bound})
}

// StartsWith tests a string-prefix pattern.
func (t Term) StartsWith(prefix string) *Expression {
	return t.cmp(OpStartsWith, prefix)
}

// EndsWith tests a string-suffix pattern.
func (t Term) EndsWith(suffix string) *Expression {
	return t.cmp(OpEndsWith, suffix)
}

// Contains tests a substring pattern.
func (t Term) Contains(sub string) *Expression {
	return t.cmp(OpContains, sub)
}

// And combines expressions conjunctively. A nil member is match-all and
// is dropped.
func And(exprs ...*Expression) *Expression {
	arity := 1
	var members []Node
	for _, e := range exprs {
		if e == nil || e.Matches() {
			continue
		}
		if e.arity > arity {
			arity = e.arity
		}
		members = append(members, e.root)
	}
	return fromMembers(arity, members, func(ms []Node) Node { return &AndNode{Members: ms} })
}

// Or combines expressions disjunctively. A nil member is match-all, and
// a single match-all disjunct makes the whole disjunction match-all.
func Or(exprs ...*Expression) *Expression {
	arity := 1
	matchAll := false
	var members []Node
	for _, e := range exprs {
		if e != nil && e.arity > arity {
			arity = e.arity
		}
		if e == nil || e.Matches() {
			matchAll = true
			continue
		}
		members = append(members, e.root)
	}
	if matchAll {
		return New(arity, &TrueNode{})
	}
	return fromMembers(arity, members, func(ms []Node) Node { return &OrNode{Members: ms} })
}

func fromMembers(arity int, members []Node, wrap func([]Node) Node) *Expression {
	switch len(members) {
	case 0:
		return New(arity, &TrueNode{})
	case 1:
		return New(arity, members[0])
	default:
		return New(arity, wrap(members))
	}
}

// Not negates an expression.
func Not(e *Expression) *Expression {
	if e == nil {
		e = New(1, &TrueNode{})
	}
	return New(e.arity, &NotNode{X: e.root})
}

// FromFunc wraps an opaque predicate over an arity-wide record tuple.
// This is the closure adapter: the resulting expression is always
// imperfect, so backends fetch a candidate superset and the predicate is
// re-applied locally to discard false positives.
func FromFunc(arity int, pred func(args ...Valuer) bool) *Expression {
	return New(arity, &FuncNode{Pred: pred})
}

// Match builds an equality conjunction from field name/value pairs, the
// shorthand used for recall-by-identity. Field order is normalized so
// equal maps compile to equal trees.
func Match(fields map[string]any) *Expression {
	if len(fields) == 0 {
		return New(1, &TrueNode{})
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	exprs := make([]*Expression, len(names))
	for i, name := range names {
		exprs[i] = Field(name).Eq(fields[name])
	}
	return And(exprs...)
}

// True is the match-all expression.
func True() *Expression {
	return New(1, &TrueNode{})
}
