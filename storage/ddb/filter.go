/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package ddb

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/recallkit/recallkit/expr"
	"github.com/recallkit/recallkit/record"
)

// compileFilter turns e into a DynamoDB filter condition covering as
// much of the expression as the condition grammar can express. The
// returned condition always matches a superset of the true results;
// exact reports whether it matches them precisely, so the caller knows
// whether to re-apply the expression locally.
func compileFilter(cls *record.Class, e *expr.Expression) (string, map[string]string, map[string]types.AttributeValue, bool) {
	if e == nil || e.Matches() {
		return "", nil, nil, true
	}
	if e.Arity() != 1 {
		return "", nil, nil, false
	}
	c := &filterCompiler{
		cls:    cls,
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
	cond, exact, ok := c.compile(e.Root())
	if !ok {
		return "", nil, nil, false
	}
	return cond, c.names, c.values, exact && e.Perfect()
}

type filterCompiler struct {
	cls    *record.Class
	names  map[string]string
	values map[string]types.AttributeValue
	n      int
}

func (c *filterCompiler) fieldRef(name string) (string, bool) {
	if c.cls.Field(name) == nil {
		return "", false
	}
	ph := fmt.Sprintf("#f%d", c.n)
	c.names[ph] = name
	return ph, true
}

func (c *filterCompiler) valueRef(field string, v any) (string, bool) {
	f := c.cls.Field(field)
	if f == nil {
		return "", false
	}
	wire, err := record.Encode(f, v)
	if err != nil {
		return "", false
	}
	av, err := attributevalue.Marshal(wire)
	if err != nil {
		return "", false
	}
	ph := fmt.Sprintf(":v%d", c.n)
	c.values[ph] = av
	return ph, true
}

// compile returns the condition for node, whether it is exact, and
// whether the node could be expressed at all. An inexpressible node
// inside a conjunction degrades to inexact; anywhere else it makes the
// whole compile fail so the caller falls back to a plain class scan.
func (c *filterCompiler) compile(node expr.Node) (string, bool, bool) {
	switch n := node.(type) {
	case *expr.TrueNode:
		return "", true, true

	case *expr.AndNode:
		var parts []string
		exact := true
		for _, m := range n.Members {
			// Each conjunct compiles into a scratch compiler: a member
			// that fails partway may already have registered
			// placeholders, and DynamoDB rejects requests whose
			// ExpressionAttributeNames/Values carry unused entries.
			child := &filterCompiler{
				cls:    c.cls,
				names:  make(map[string]string),
				values: make(map[string]types.AttributeValue),
				n:      c.n,
			}
			cond, sub, ok := child.compile(m)
			if !ok {
				// A dropped conjunct only widens the candidate set.
				exact = false
				continue
			}
			for k, v := range child.names {
				c.names[k] = v
			}
			for k, v := range child.values {
				c.values[k] = v
			}
			c.n = child.n
			exact = exact && sub
			if cond != "" {
				parts = append(parts, cond)
			}
		}
		if len(parts) == 0 {
			return "", exact, true
		}
		return "(" + strings.Join(parts, " AND ") + ")", exact, true

	case *expr.OrNode:
		// Dropping a disjunct would narrow the candidate set, so every
		// member must translate.
		var parts []string
		exact := true
		for _, m := range n.Members {
			cond, sub, ok := c.compile(m)
			if !ok || cond == "" {
				return "", false, false
			}
			exact = exact && sub
			parts = append(parts, cond)
		}
		return "(" + strings.Join(parts, " OR ") + ")", exact, true

	case *expr.NotNode:
		cond, sub, ok := c.compile(n.X)
		if !ok || !sub || cond == "" {
			// Negating an inexact superset would exclude true matches.
			return "", false, false
		}
		return "(NOT " + cond + ")", true, true

	case *expr.CmpNode:
		return c.compileCmp(n)

	case *expr.InNode:
		f, ok := n.X.(*expr.FieldNode)
		if !ok {
			return "", false, false
		}
		if len(n.Values) == 0 {
			// "IN ()" is not valid in the condition grammar; the local
			// evaluator handles the match-nothing case.
			return "", false, false
		}
		ref, ok := c.fieldRef(f.Name)
		if !ok {
			return "", false, false
		}
		var vals []string
		for _, v := range n.Values {
			c.n++
			vr, ok := c.valueRef(f.Name, v)
			if !ok {
				return "", false, false
			}
			vals = append(vals, vr)
		}
		c.n++
		return fmt.Sprintf("%s IN (%s)", ref, strings.Join(vals, ", ")), true, true

	default:
		// Function calls and opaque predicates have no condition form.
		return "", false, false
	}
}

// orderedWire reports whether the wire form of the field type compares
// the same way the value does: numbers stored as numbers, or strings
// whose lexicographic order matches value order. Integers and decimals
// travel as decimal strings, so "10" < "9" would lose true matches;
// datetimes use a trimmed fraction with the same hazard.
func orderedWire(t record.FieldType) bool {
	switch t {
	case record.FieldFloat, record.FieldString, record.FieldDate:
		return true
	}
	return false
}

func (c *filterCompiler) compileCmp(n *expr.CmpNode) (string, bool, bool) {
	f, ok := n.Left.(*expr.FieldNode)
	if !ok {
		return "", false, false
	}
	lit, ok := n.Right.(*expr.LitNode)
	if !ok {
		return "", false, false
	}
	fld := c.cls.Field(f.Name)
	if fld == nil {
		return "", false, false
	}

	switch n.Op {
	case expr.OpLt, expr.OpLe, expr.OpGt, expr.OpGe:
		if !orderedWire(fld.Type) {
			return "", false, false
		}
	case expr.OpStartsWith, expr.OpEndsWith, expr.OpContains:
		if fld.Type != record.FieldString {
			return "", false, false
		}
	}

	ref, ok := c.fieldRef(f.Name)
	if !ok {
		return "", false, false
	}
	vr, ok := c.valueRef(f.Name, lit.Value)
	if !ok {
		return "", false, false
	}
	c.n++

	switch n.Op {
	case expr.OpEq:
		return fmt.Sprintf("%s = %s", ref, vr), true, true
	case expr.OpNe:
		return fmt.Sprintf("%s <> %s", ref, vr), true, true
	case expr.OpLt:
		return fmt.Sprintf("%s < %s", ref, vr), true, true
	case expr.OpLe:
		return fmt.Sprintf("%s <= %s", ref, vr), true, true
	case expr.OpGt:
		return fmt.Sprintf("%s > %s", ref, vr), true, true
	case expr.OpGe:
		return fmt.Sprintf("%s >= %s", ref, vr), true, true
	case expr.OpStartsWith:
		return fmt.Sprintf("begins_with(%s, %s)", ref, vr), true, true
	case expr.OpContains:
		return fmt.Sprintf("contains(%s, %s)", ref, vr), true, true
	case expr.OpEndsWith:
		// No native suffix predicate; a contains scan over-matches and
		// the local evaluator trims it.
		return fmt.Sprintf("contains(%s, %s)", ref, vr), false, true
	default:
		return "", false, false
	}
}
