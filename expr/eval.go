/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package expr

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Eval applies a single-class expression to one record. It is the
// reference semantics for every backend: a backend's native filtering,
// plus its local post-filter, must agree with Eval.
func (e *Expression) Eval(v Valuer) (bool, error) {
	return e.EvalTuple([]Valuer{v})
}

// EvalTuple applies the expression to a tuple of records, one per join
// class, in class order.
func (e *Expression) EvalTuple(args []Valuer) (bool, error) {
	if e == nil {
		return true, nil
	}
	if len(args) < e.arity {
		return false, fmt.Errorf("expression needs %d argument(s), got %d", e.arity, len(args))
	}
	return evalBool(e.root, args)
}

func evalBool(n Node, args []Valuer) (bool, error) {
	switch t := n.(type) {
	case *TrueNode:
		return true, nil
	case *FuncNode:
		return t.Pred(args...), nil
	case *NotNode:
		b, err := evalBool(t.X, args)
		return !b, err
	case *AndNode:
		for _, m := range t.Members {
			b, err := evalBool(m, args)
			if err != nil || !b {
				return false, err
			}
		}
		return true, nil
	case *OrNode:
		for _, m := range t.Members {
			b, err := evalBool(m, args)
			if err != nil {
				return false, err
			}
			if b {
				return true, nil
			}
		}
		return false, nil
	case *InNode:
		x, err := evalValue(t.X, args)
		if err != nil {
			return false, err
		}
		for _, v := range t.Values {
			if eq, err := equal(x, v); err == nil && eq {
				return true, nil
			}
		}
		return false, nil
	case *CmpNode:
		left, err := evalValue(t.Left, args)
		if err != nil {
			return false, err
		}
		right, err := evalValue(t.Right, args)
		if err != nil {
			return false, err
		}
		return compare(t.Op, left, right)
	default:
		return false, fmt.Errorf("node %T is not a predicate", n)
	}
}

func evalValue(n Node, args []Valuer) (any, error) {
	switch t := n.(type) {
	case *LitNode:
		return t.Value, nil
	case *FieldNode:
		if t.Arg >= len(args) {
			return nil, fmt.Errorf("field %s references argument %d of %d", t.Name, t.Arg, len(args))
		}
		return canonical(args[t.Arg].Value(t.Name)), nil
	case *CallNode:
		switch t.Fn {
		case FnNow:
			return time.Now(), nil
		case FnYear, FnMonth, FnDay:
			x, err := evalValue(t.X, args)
			if err != nil {
				return nil, err
			}
			tv, ok := x.(time.Time)
			if !ok {
				if x == nil {
					return nil, nil
				}
				return nil, fmt.Errorf("%s() needs a time value, got %T", t.Fn, x)
			}
			switch t.Fn {
			case FnYear:
				return int64(tv.Year()), nil
			case FnMonth:
				return int64(tv.Month()), nil
			default:
				return int64(tv.Day()), nil
			}
		}
		return nil, fmt.Errorf("unknown function %q", t.Fn)
	default:
		return nil, fmt.Errorf("node %T is not a value", n)
	}
}

// canonical widens builder-supplied literals and record values to the
// canonical scalar forms the comparator understands.
func canonical(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

func compare(op Op, left, right any) (bool, error) {
	switch op {
	case OpEq:
		return equal(left, right)
	case OpNe:
		eq, err := equal(left, right)
		return !eq, err
	case OpStartsWith, OpEndsWith, OpContains:
		ls, lok := left.(string)
		rs, rok := right.(string)
		if !lok || !rok {
			if left == nil || right == nil {
				return false, nil
			}
			return false, fmt.Errorf("%s needs string operands, got %T and %T", op, left, right)
		}
		switch op {
		case OpStartsWith:
			return strings.HasPrefix(ls, rs), nil
		case OpEndsWith:
			return strings.HasSuffix(ls, rs), nil
		default:
			return strings.Contains(ls, rs), nil
		}
	}

	// Ordered comparison. Null never orders against anything.
	if left == nil || right == nil {
		return false, nil
	}
	c, err := order(left, right)
	if err != nil {
		return false, err
	}
	switch op {
	case OpLt:
		return c < 0, nil
	case OpLe:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	case OpGe:
		return c >= 0, nil
	}
	return false, fmt.Errorf("unknown operator %q", op)
}

func equal(left, right any) (bool, error) {
	if left == nil || right == nil {
		return left == nil && right == nil, nil
	}
	if lb, ok := left.([]byte); ok {
		rb, ok := right.([]byte)
		return ok && bytes.Equal(lb, rb), nil
	}
	if lb, ok := left.(bool); ok {
		rb, ok := right.(bool)
		return ok && lb == rb, nil
	}
	c, err := order(left, right)
	if err != nil {
		// Unorderable but present values are simply unequal.
		return false, nil
	}
	return c == 0, nil
}

// order compares two canonical scalars, mixing integer and float
// operands numerically.
func order(left, right any) (int, error) {
	switch l := left.(type) {
	case int64:
		switch r := right.(type) {
		case int64:
			return cmpOrdered(l, r), nil
		case float64:
			return cmpOrdered(float64(l), r), nil
		case *big.Int:
			return big.NewInt(l).Cmp(r), nil
		case *big.Rat:
			return new(big.Rat).SetInt64(l).Cmp(r), nil
		}
	case float64:
		switch r := right.(type) {
		case float64:
			return cmpOrdered(l, r), nil
		case int64:
			return cmpOrdered(l, float64(r)), nil
		case *big.Rat:
			lr := new(big.Rat).SetFloat64(l)
			if lr == nil {
				return 0, fmt.Errorf("cannot compare non-finite float")
			}
			return lr.Cmp(r), nil
		}
	case string:
		if r, ok := right.(string); ok {
			return cmpOrdered(l, r), nil
		}
	case time.Time:
		if r, ok := right.(time.Time); ok {
			return l.Compare(r), nil
		}
	case time.Duration:
		if r, ok := right.(time.Duration); ok {
			return cmpOrdered(l, r), nil
		}
	case *big.Int:
		switch r := right.(type) {
		case *big.Int:
			return l.Cmp(r), nil
		case int64:
			return l.Cmp(big.NewInt(r)), nil
		}
	case *big.Rat:
		switch r := right.(type) {
		case *big.Rat:
			return l.Cmp(r), nil
		case int64:
			return l.Cmp(new(big.Rat).SetInt64(r)), nil
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", left, right)
}

func cmpOrdered[T int64 | float64 | string | time.Duration](l, r T) int {
	switch {
	case l < r:
		return -1
	case l > r:
		return 1
	default:
		return 0
	}
}
