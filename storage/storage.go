/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package storage

import (
	"context"

	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/expr"
	"github.com/recallkit/recallkit/record"
)

// Config carries backend construction options as string key/value pairs.
// Recognized keys are backend-specific; the core imposes none.
type Config map[string]string

// Get returns the value for key, or def when absent or empty.
func (c Config) Get(key, def string) string {
	if v, ok := c[key]; ok && v != "" {
		return v
	}
	return def
}

// Backend is the contract every storage node satisfies, terminal stores
// and wrapping nodes (caches, partitioners) alike. Registration of a
// class must propagate through the whole chain before any operation on
// that class is valid.
type Backend interface {
	// Register prepares the backend to handle the class. Idempotent.
	Register(cls *record.Class) error

	// Reserve allocates an identity for the record if it lacks one and
	// stores its initial state. Identity allocation is mutually exclusive
	// per class under concurrent callers.
	Reserve(ctx context.Context, rec *record.Record) error

	// Save persists the record's field values. A clean record is a no-op.
	// On success the record is cleansed; on failure the dirty flag is
	// left untouched so the caller can retry.
	Save(ctx context.Context, rec *record.Record) error

	// Destroy removes the stored data for the record's identity.
	Destroy(ctx context.Context, rec *record.Record) error

	// Recall returns every stored record of cls matching e (all records
	// when e is nil or match-all). When native filtering is imperfect for
	// e, the backend applies local post-filtering itself before
	// returning.
	Recall(ctx context.Context, cls *record.Class, e *expr.Expression) ([]*record.Record, error)

	// Distinct returns the distinct value tuples of the named fields
	// among matching records.
	Distinct(ctx context.Context, cls *record.Class, fields []string, e *expr.Expression) ([][]any, error)

	// MultiRecall returns matching record tuples across classes, in the
	// given class order.
	MultiRecall(ctx context.Context, classes []*record.Class, e *expr.Expression) ([][]*record.Record, error)

	// CreateStorage creates the internal structures for cls. Model/storage
	// discrepancies are dispatched through the handler, which carries the
	// conflict mode and collects the warning batch under the warn mode.
	// A nil handler means the default error mode.
	CreateStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error

	// HasStorage reports whether internal structures exist for cls.
	HasStorage(ctx context.Context, cls *record.Class) (bool, error)

	// DropStorage destroys the internal structures for cls.
	DropStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error

	// Shutdown releases backend resources.
	Shutdown(ctx context.Context) error
}

// Handler normalizes a possibly-nil conflict handler to the default
// error mode.
func Handler(h *errors.ConflictHandler) *errors.ConflictHandler {
	if h == nil {
		return errors.NewConflictHandler(errors.ConflictError)
	}
	return h
}

// ForceSaver is an optional interface for backends that can store a clean
// record's state. Cache nodes use it to populate their internal cache
// with records that were just cleansed by the terminal store.
type ForceSaver interface {
	ForceSave(ctx context.Context, rec *record.Record) error
}

// ForceSave writes rec through b even when clean, using ForceSave where
// the backend offers it and falling back to Save otherwise.
func ForceSave(ctx context.Context, b Backend, rec *record.Record) error {
	if fs, ok := b.(ForceSaver); ok {
		return fs.ForceSave(ctx, rec)
	}
	return b.Save(ctx, rec)
}

// FilterLocal applies e to each record and keeps the matches. It is the
// universal fallback for backends whose native filtering is imperfect.
func FilterLocal(recs []*record.Record, e *expr.Expression) ([]*record.Record, error) {
	if e == nil || e.Matches() {
		return recs, nil
	}
	out := recs[:0:0]
	for _, r := range recs {
		ok, err := e.Eval(r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// DistinctRows projects the named fields of each record and removes
// duplicate tuples, preserving first-seen order.
func DistinctRows(recs []*record.Record, fields []string) [][]any {
	seen := make(map[string]struct{})
	var out [][]any
	for _, r := range recs {
		row := make([]any, len(fields))
		for i, f := range fields {
			row[i] = r.Value(f)
		}
		key := record.KeyString(row)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, row)
	}
	return out
}
