/*
Package expr builds and evaluates portable predicate expressions.

An Expression is an immutable operator tree with literal operands bound at
construction. The same Expression can be handed to any storage backend: a
backend translates the nodes it understands natively and, whenever the
expression is imperfect (or contains nodes the backend cannot express),
fetches a candidate superset and re-applies the expression locally through
Eval.

The typed builder is the primary path:

	e := expr.And(
	    expr.Field("Size").Gt(10),
	    expr.Field("Name").StartsWith("Z"),
	)
	e.Perfect() // true

Opaque predicates are the isolated adapter path for ergonomics. Go cannot
inspect a compiled closure, so a raw func is carried whole and marks the
expression imperfect:

	e := expr.FromFunc(1, func(args ...expr.Valuer) bool {
	    name, _ := args[0].Value("Name").(string)
	    return strings.Count(name, "o") > 1
	})
	e.Perfect() // false; backends must post-filter

Join predicates address tuple members by position:

	e := expr.Arg(0).Field("ZooID").Eq(expr.Arg(1).Field("ID"))
*/
package expr
