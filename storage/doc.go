/*
Package storage defines the contract between the persistence core and
every storage backend.

The main interface is Backend, implemented by terminal stores and by
wrapping nodes alike:

	type Backend interface {
	    Register(cls *record.Class) error
	    Reserve(ctx context.Context, rec *record.Record) error
	    Save(ctx context.Context, rec *record.Record) error
	    Destroy(ctx context.Context, rec *record.Record) error
	    Recall(ctx context.Context, cls *record.Class, e *expr.Expression) ([]*record.Record, error)
	    Distinct(ctx context.Context, cls *record.Class, fields []string, e *expr.Expression) ([][]any, error)
	    MultiRecall(ctx context.Context, classes []*record.Class, e *expr.Expression) ([][]*record.Record, error)
	    CreateStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error
	    HasStorage(ctx context.Context, cls *record.Class) (bool, error)
	    DropStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error
	    Shutdown(ctx context.Context) error
	}

Backends compose into chains: each wrapping node holds a "next" backend
reference, so a session sees a single Backend regardless of how many
cache or partitioning layers sit between it and the terminal store.

Implementations in this repository:
  - ram: terminal in-memory store
  - cache: pass-through, aged and preload cache nodes
  - partition: vertical partitioner across named stores
  - ddb: DynamoDB terminal store

The package also provides the shared fallbacks: FilterLocal for
imperfect native filtering, NestedJoin for stores without a native join,
DistinctRows for stores without native projection.
*/
package storage
