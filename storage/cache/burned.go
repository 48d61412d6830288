/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package cache

import (
	"context"
	"sync"

	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/expr"
	"github.com/recallkit/recallkit/record"
	"github.com/recallkit/recallkit/storage"
)

// Burned is a Passthrough that preloads a whole class from the next
// backend on its first recall and serves every later recall from the
// cache alone. Writes still propagate to the next backend, so the cache
// stays the authoritative read copy for preloaded classes. Suited to
// small, read-heavy reference classes.
type Burned struct {
	*Passthrough

	mu     sync.Mutex
	burned map[string]bool
}

// NewBurned wraps next with a preloading in-memory cache.
func NewBurned(next storage.Backend) *Burned {
	return &Burned{
		Passthrough: NewPassthrough(next),
		burned:      make(map[string]bool),
	}
}

// burn preloads cls from the next backend once. Concurrent first
// recalls serialize on the node lock; the loser sees the class already
// burned and loads nothing.
func (b *Burned) burn(ctx context.Context, cls *record.Class) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.burned[cls.Name()] {
		return nil
	}
	recs, err := b.next.Recall(ctx, cls, nil)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := storage.ForceSave(ctx, b.cache, r); err != nil {
			return err
		}
	}
	b.burned[cls.Name()] = true
	return nil
}

// Recall preloads cls on first use and answers from the cache.
func (b *Burned) Recall(ctx context.Context, cls *record.Class, e *expr.Expression) ([]*record.Record, error) {
	if err := b.burn(ctx, cls); err != nil {
		return nil, err
	}
	return b.cache.Recall(ctx, cls, e)
}

// Distinct projects over the preloaded copy.
func (b *Burned) Distinct(ctx context.Context, cls *record.Class, fields []string, e *expr.Expression) ([][]any, error) {
	if err := b.burn(ctx, cls); err != nil {
		return nil, err
	}
	return b.cache.Distinct(ctx, cls, fields, e)
}

// DropStorage drops through the chain and unburns the class, so the
// next recall reloads from scratch.
func (b *Burned) DropStorage(ctx context.Context, cls *record.Class, conflicts *errors.ConflictHandler) error {
	if err := b.Passthrough.DropStorage(ctx, cls, conflicts); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.burned, cls.Name())
	b.mu.Unlock()
	return nil
}
