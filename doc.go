/*
Package recallkit is a data-mapper persistence layer for Go applications:
typed record classes, portable query expressions, identity-mapped
sessions and chainable storage backends.

The library separates the three concerns a persistence layer tends to
tangle:
  - Model: record.Class describes fields, identifiers, hooks and
    associations; record.Record is one live instance.
  - Session: sandbox.Sandbox is the identity map for one unit of work,
    keeping at most one live instance per identity; resident instances
    shadow stale storage state.
  - Storage: storage.Backend is the contract shared by terminal stores
    (ram, ddb) and wrapping nodes (caches, the vertical partitioner),
    which compose into chains.

Basic Usage:

	// Describe a class
	user := record.NewClass("User")
	user.DefineFields(
	    record.Field{Name: "ID", Type: record.FieldInt},
	    record.Field{Name: "Name", Type: record.FieldString},
	)
	user.Identify("ID")

	// Build a store over a backend chain
	store := recallkit.New(cache.NewPassthrough(ram.New(nil)))
	store.RegisterClass(user)
	store.Map(ctx, user, errors.ConflictError)

	// Work inside a sandbox
	box := store.NewSandbox()
	u := user.New()
	u.Set("Name", "Ada")
	box.Memorize(ctx, u)
	box.FlushAll(ctx)

	// Query with portable expressions
	adas, _ := box.Recall(ctx, user, expr.Field("Name").Eq("Ada"))

Backends report whether they translated an expression exactly; whenever
native filtering is imperfect the local evaluator re-applies the full
expression, so results are identical across backends.

For more information, see the documentation at https://github.com/recallkit/recallkit
*/
package recallkit
