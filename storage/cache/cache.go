/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

// Package cache provides wrapping backends that keep recently seen
// records in an internal store in front of a slower next backend.
//
// Three flavors exist. Passthrough forwards every operation and keeps a
// write-through copy; Aged adds recall timestamps and sweepable
// expiry; Burned preloads a whole class on first recall and serves all
// later recalls locally.
package cache

import (
	"context"

	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/expr"
	"github.com/recallkit/recallkit/record"
	"github.com/recallkit/recallkit/storage"
	"github.com/recallkit/recallkit/storage/ram"
)

// Passthrough is a write-through cache node. Reads that pin a full
// identity are served from the internal store on a hit; everything else
// goes to the next backend and refreshes the cache on the way back.
type Passthrough struct {
	next  storage.Backend
	cache storage.Backend
}

// NewPassthrough wraps next with a fresh in-memory cache.
func NewPassthrough(next storage.Backend) *Passthrough {
	return NewPassthroughOver(next, ram.New(nil))
}

// NewPassthroughOver wraps next with an explicit cache backend. The
// cache backend should implement storage.ForceSaver, or clean records
// recalled from next cannot be retained.
func NewPassthroughOver(next, cache storage.Backend) *Passthrough {
	return &Passthrough{next: next, cache: cache}
}

// Next returns the wrapped backend.
func (p *Passthrough) Next() storage.Backend { return p.next }

// Register registers cls with the next backend and the cache.
func (p *Passthrough) Register(cls *record.Class) error {
	if err := p.next.Register(cls); err != nil {
		return err
	}
	return p.cache.Register(cls)
}

// Reserve lets the next backend allocate the identity, then retains the
// reserved state in the cache.
func (p *Passthrough) Reserve(ctx context.Context, rec *record.Record) error {
	if err := p.next.Reserve(ctx, rec); err != nil {
		return err
	}
	return storage.ForceSave(ctx, p.cache, rec)
}

// Save writes through: the next backend persists first, and only a
// successful save refreshes the cache.
func (p *Passthrough) Save(ctx context.Context, rec *record.Record) error {
	if !rec.Dirty() {
		return nil
	}
	return p.ForceSave(ctx, rec)
}

// ForceSave persists the record through the next backend regardless of
// dirtiness and refreshes the cached copy.
func (p *Passthrough) ForceSave(ctx context.Context, rec *record.Record) error {
	if err := storage.ForceSave(ctx, p.next, rec); err != nil {
		return err
	}
	return storage.ForceSave(ctx, p.cache, rec)
}

// Destroy removes the record from the next backend and invalidates the
// cached copy.
func (p *Passthrough) Destroy(ctx context.Context, rec *record.Record) error {
	if err := p.next.Destroy(ctx, rec); err != nil {
		return err
	}
	return p.cache.Destroy(ctx, rec)
}

// Recall serves identity-pinned expressions from the cache on a hit.
// All other recalls (and identity misses) go to the next backend, and
// the results refresh the cache.
func (p *Passthrough) Recall(ctx context.Context, cls *record.Class, e *expr.Expression) ([]*record.Record, error) {
	if pinsIdentity(cls, e) {
		hits, err := p.cache.Recall(ctx, cls, e)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}
	recs, err := p.next.Recall(ctx, cls, e)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if err := storage.ForceSave(ctx, p.cache, r); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// Distinct bypasses the cache; projections always reflect the next
// backend.
func (p *Passthrough) Distinct(ctx context.Context, cls *record.Class, fields []string, e *expr.Expression) ([][]any, error) {
	return p.next.Distinct(ctx, cls, fields, e)
}

// MultiRecall bypasses the cache and joins against the next backend.
func (p *Passthrough) MultiRecall(ctx context.Context, classes []*record.Class, e *expr.Expression) ([][]*record.Record, error) {
	return p.next.MultiRecall(ctx, classes, e)
}

// CreateStorage creates storage in the next backend and mirrors the
// structure in the cache. Cache-side conflicts are internal bookkeeping
// and never surface.
func (p *Passthrough) CreateStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error {
	if err := p.next.CreateStorage(ctx, cls, conflicts); err != nil {
		return err
	}
	return p.cache.CreateStorage(ctx, cls, errors.NewConflictHandler(errors.ConflictIgnore))
}

// HasStorage reports whether the next backend has storage for cls.
func (p *Passthrough) HasStorage(ctx context.Context, cls *record.Class) (bool, error) {
	return p.next.HasStorage(ctx, cls)
}

// DropStorage drops storage in the next backend and clears the cache.
func (p *Passthrough) DropStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error {
	if err := p.next.DropStorage(ctx, cls, conflicts); err != nil {
		return err
	}
	return p.cache.DropStorage(ctx, cls, errors.NewConflictHandler(errors.ConflictIgnore))
}

// Shutdown releases the cache, then the next backend.
func (p *Passthrough) Shutdown(ctx context.Context) error {
	if err := p.cache.Shutdown(ctx); err != nil {
		return err
	}
	return p.next.Shutdown(ctx)
}

// pinsIdentity reports whether e constrains every identifier of cls
// with a literal equality, so at most one stored record can match and a
// cache hit is authoritative. Extra conjuncts are fine: the cache store
// evaluates the full expression locally anyway.
func pinsIdentity(cls *record.Class, e *expr.Expression) bool {
	if e == nil || e.Arity() != 1 || !cls.HasIdentifiers() {
		return false
	}
	var conjuncts []expr.Node
	switch n := e.Root().(type) {
	case *expr.AndNode:
		conjuncts = n.Members
	default:
		conjuncts = []expr.Node{n}
	}
	pinned := make(map[string]bool)
	for _, c := range conjuncts {
		cmp, ok := c.(*expr.CmpNode)
		if !ok || cmp.Op != expr.OpEq {
			continue
		}
		f, ok := cmp.Left.(*expr.FieldNode)
		if !ok {
			continue
		}
		if _, ok := cmp.Right.(*expr.LitNode); !ok {
			continue
		}
		pinned[f.Name] = true
	}
	for _, id := range cls.Identifiers() {
		if !pinned[id] {
			return false
		}
	}
	return true
}
