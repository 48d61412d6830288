/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/expr"
	"github.com/recallkit/recallkit/record"
	"github.com/recallkit/recallkit/storage"
)

// Aged is a Passthrough whose entries expire. Every recall or write of
// a record stamps its last-use time; Sweep evicts entries idle longer
// than Lifetime. Eviction is driven externally (a timer, a maintenance
// goroutine); the node never spawns one itself.
type Aged struct {
	*Passthrough

	// Lifetime is the maximum idle age before Sweep evicts an entry.
	Lifetime time.Duration

	mu   sync.Mutex
	seen map[string]map[string]agedEntry // class -> identity key -> entry
}

type agedEntry struct {
	last time.Time
	id   map[string]any // identifier snapshot, enough to rebuild for Destroy
}

// NewAged wraps next with an expiring in-memory cache.
func NewAged(next storage.Backend, lifetime time.Duration) *Aged {
	return &Aged{
		Passthrough: NewPassthrough(next),
		Lifetime:    lifetime,
		seen:        make(map[string]map[string]agedEntry),
	}
}

func (a *Aged) touch(rec *record.Record) {
	if !rec.Class().HasIdentifiers() || !rec.HasIdentity() {
		return
	}
	cls := rec.Class()
	id := make(map[string]any, len(cls.Identifiers()))
	for _, name := range cls.Identifiers() {
		id[name] = rec.Value(name)
	}
	a.mu.Lock()
	byKey := a.seen[cls.Name()]
	if byKey == nil {
		byKey = make(map[string]agedEntry)
		a.seen[cls.Name()] = byKey
	}
	byKey[rec.IdentityKey()] = agedEntry{last: time.Now(), id: id}
	a.mu.Unlock()
}

func (a *Aged) untouch(rec *record.Record) {
	a.mu.Lock()
	if byKey := a.seen[rec.Class().Name()]; byKey != nil {
		delete(byKey, rec.IdentityKey())
	}
	a.mu.Unlock()
}

// Reserve reserves through the chain and stamps the new identity.
func (a *Aged) Reserve(ctx context.Context, rec *record.Record) error {
	if err := a.Passthrough.Reserve(ctx, rec); err != nil {
		return err
	}
	a.touch(rec)
	return nil
}

// Save writes through and stamps the record.
func (a *Aged) Save(ctx context.Context, rec *record.Record) error {
	if !rec.Dirty() {
		return nil
	}
	return a.ForceSave(ctx, rec)
}

// ForceSave writes through and stamps the record.
func (a *Aged) ForceSave(ctx context.Context, rec *record.Record) error {
	if err := a.Passthrough.ForceSave(ctx, rec); err != nil {
		return err
	}
	a.touch(rec)
	return nil
}

// Destroy destroys through the chain and forgets the stamp.
func (a *Aged) Destroy(ctx context.Context, rec *record.Record) error {
	if err := a.Passthrough.Destroy(ctx, rec); err != nil {
		return err
	}
	a.untouch(rec)
	return nil
}

// Recall recalls through the chain and stamps every record returned, so
// recently read records survive the next sweep.
func (a *Aged) Recall(ctx context.Context, cls *record.Class, e *expr.Expression) ([]*record.Record, error) {
	recs, err := a.Passthrough.Recall(ctx, cls, e)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		a.touch(r)
	}
	return recs, nil
}

// DropStorage drops through the chain and forgets every stamp for cls.
func (a *Aged) DropStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error {
	if err := a.Passthrough.DropStorage(ctx, cls, conflicts); err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.seen, cls.Name())
	a.mu.Unlock()
	return nil
}

// Sweep evicts every cached record of cls idle longer than Lifetime.
// Stale identities are collected under the stamp lock, then removed
// from the cache store, which serializes with concurrent writes on its
// own per-class lock.
func (a *Aged) Sweep(ctx context.Context, cls *record.Class) error {
	cutoff := time.Now().Add(-a.Lifetime)

	a.mu.Lock()
	var stale []map[string]any
	for key, en := range a.seen[cls.Name()] {
		if en.last.Before(cutoff) {
			stale = append(stale, en.id)
			delete(a.seen[cls.Name()], key)
		}
	}
	a.mu.Unlock()

	for _, id := range stale {
		rec, err := record.Materialize(cls, id)
		if err != nil {
			return err
		}
		if err := a.cache.Destroy(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// SweepAll sweeps every class that has stamped entries.
func (a *Aged) SweepAll(ctx context.Context, classes []*record.Class) error {
	for _, cls := range classes {
		if err := a.Sweep(ctx, cls); err != nil {
			return err
		}
	}
	return nil
}
