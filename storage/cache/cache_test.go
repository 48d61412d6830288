/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/recallkit/recallkit/expr"
	"github.com/recallkit/recallkit/record"
	"github.com/recallkit/recallkit/storage"
	"github.com/recallkit/recallkit/storage/ram"
)

// countingStore wraps the RAM store and counts recalls reaching it.
type countingStore struct {
	*ram.Store
	recalls int
}

func (c *countingStore) Recall(ctx context.Context, cls *record.Class, e *expr.Expression) ([]*record.Record, error) {
	c.recalls++
	return c.Store.Recall(ctx, cls, e)
}

func userClass(t *testing.T) *record.Class {
	t.Helper()
	cls := record.NewClass("User")
	if err := cls.DefineFields(
		record.Field{Name: "ID", Type: record.FieldInt},
		record.Field{Name: "Name", Type: record.FieldString},
	); err != nil {
		t.Fatalf("define fields: %v", err)
	}
	if err := cls.Identify("ID"); err != nil {
		t.Fatalf("identify: %v", err)
	}
	return cls
}

func setup(t *testing.T, wrap func(storage.Backend) storage.Backend) (storage.Backend, *countingStore, *record.Class) {
	t.Helper()
	cls := userClass(t)
	next := &countingStore{Store: ram.New(nil)}
	node := wrap(next)
	if err := node.Register(cls); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := node.CreateStorage(context.Background(), cls, nil); err != nil {
		t.Fatalf("create storage: %v", err)
	}
	return node, next, cls
}

func reserve(t *testing.T, b storage.Backend, cls *record.Class, name string) *record.Record {
	t.Helper()
	rec := cls.New()
	if err := rec.Set("Name", name); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := b.Reserve(context.Background(), rec); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return rec
}

func idExpr(rec *record.Record) *expr.Expression {
	return expr.Field("ID").Eq(rec.Identity()[0])
}

func TestPassthroughWriteThrough(t *testing.T) {
	node, next, cls := setup(t, func(n storage.Backend) storage.Backend { return NewPassthrough(n) })
	ctx := context.Background()

	rec := reserve(t, node, cls, "Ada")
	if next.Count(cls) != 1 {
		t.Fatal("reserve must reach the next backend")
	}

	rec.Set("Name", "Ada L.")
	if err := node.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	// The write must land in the next backend, not only the cache.
	recs, err := next.Store.Recall(ctx, cls, nil)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if v, _ := recs[0].Get("Name"); v != "Ada L." {
		t.Errorf("next backend holds %v", v)
	}
}

func TestPassthroughIdentityFastPath(t *testing.T) {
	node, next, cls := setup(t, func(n storage.Backend) storage.Backend { return NewPassthrough(n) })
	ctx := context.Background()

	rec := reserve(t, node, cls, "Ada")
	before := next.recalls

	recs, err := node.Recall(ctx, cls, idExpr(rec))
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if next.recalls != before {
		t.Error("an identity hit must be served from the cache")
	}
}

func TestPassthroughMissFallsThrough(t *testing.T) {
	cls := userClass(t)
	next := &countingStore{Store: ram.New(nil)}
	node := NewPassthrough(next)
	ctx := context.Background()
	node.Register(cls)
	node.CreateStorage(ctx, cls, nil)

	// Populate the next backend directly, behind the cache's back.
	rec := cls.New()
	rec.Set("Name", "Ada")
	if err := next.Reserve(ctx, rec); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	recs, err := node.Recall(ctx, cls, idExpr(rec))
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("cache miss must fall through, got %d records", len(recs))
	}

	// The miss populated the cache; the same lookup is now local.
	before := next.recalls
	if _, err := node.Recall(ctx, cls, idExpr(rec)); err != nil {
		t.Fatalf("recall: %v", err)
	}
	if next.recalls != before {
		t.Error("repeat identity lookup must be served from the cache")
	}
}

func TestPassthroughNonIdentityGoesToNext(t *testing.T) {
	node, next, cls := setup(t, func(n storage.Backend) storage.Backend { return NewPassthrough(n) })
	ctx := context.Background()

	reserve(t, node, cls, "Ada")
	before := next.recalls
	if _, err := node.Recall(ctx, cls, expr.Field("Name").Eq("Ada")); err != nil {
		t.Fatalf("recall: %v", err)
	}
	if next.recalls == before {
		t.Error("non-identity recalls must consult the next backend")
	}
}

func TestPassthroughDestroyInvalidates(t *testing.T) {
	node, next, cls := setup(t, func(n storage.Backend) storage.Backend { return NewPassthrough(n) })
	ctx := context.Background()

	rec := reserve(t, node, cls, "Ada")
	if err := node.Destroy(ctx, rec); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if next.Count(cls) != 0 {
		t.Error("destroy must reach the next backend")
	}
	recs, err := node.Recall(ctx, cls, idExpr(rec))
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(recs) != 0 {
		t.Error("destroyed record must not be served from the cache")
	}
}

func TestAgedSweep(t *testing.T) {
	cls := userClass(t)
	next := &countingStore{Store: ram.New(nil)}
	node := NewAged(next, 10*time.Millisecond)
	ctx := context.Background()
	node.Register(cls)
	node.CreateStorage(ctx, cls, nil)

	rec := cls.New()
	rec.Set("Name", "Ada")
	if err := node.Reserve(ctx, rec); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	// Fresh entry: identity lookup is served locally.
	before := next.recalls
	if _, err := node.Recall(ctx, cls, idExpr(rec)); err != nil {
		t.Fatalf("recall: %v", err)
	}
	if next.recalls != before {
		t.Fatal("fresh entry must be a cache hit")
	}

	time.Sleep(20 * time.Millisecond)
	if err := node.Sweep(ctx, cls); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// Swept entry: the next lookup must go through.
	before = next.recalls
	recs, err := node.Recall(ctx, cls, idExpr(rec))
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if next.recalls == before {
		t.Error("swept entry must force a next-backend recall")
	}
	if len(recs) != 1 {
		t.Errorf("record must still exist in the next backend, got %d", len(recs))
	}
}

func TestAgedRecallRefreshesStamp(t *testing.T) {
	cls := userClass(t)
	node := NewAged(ram.New(nil), 30*time.Millisecond)
	ctx := context.Background()
	node.Register(cls)
	node.CreateStorage(ctx, cls, nil)

	rec := cls.New()
	rec.Set("Name", "Ada")
	node.Reserve(ctx, rec)

	// Keep the entry warm across what would otherwise be its lifetime.
	time.Sleep(20 * time.Millisecond)
	if _, err := node.Recall(ctx, cls, idExpr(rec)); err != nil {
		t.Fatalf("recall: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := node.Sweep(ctx, cls); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	node.mu.Lock()
	_, alive := node.seen[cls.Name()][rec.IdentityKey()]
	node.mu.Unlock()
	if !alive {
		t.Error("a recently recalled entry must survive the sweep")
	}
}

func TestBurnedPreloads(t *testing.T) {
	cls := userClass(t)
	next := &countingStore{Store: ram.New(nil)}
	node := NewBurned(next)
	ctx := context.Background()
	node.Register(cls)
	node.CreateStorage(ctx, cls, nil)

	for _, name := range []string{"Ada", "Bob", "Eve"} {
		rec := cls.New()
		rec.Set("Name", name)
		if err := next.Reserve(ctx, rec); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}

	// First recall burns the class in.
	recs, err := node.Recall(ctx, cls, nil)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}

	// Every later recall, filtered or not, is served locally.
	before := next.recalls
	recs, err = node.Recall(ctx, cls, expr.Field("Name").Eq("Bob"))
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if next.recalls != before {
		t.Error("burned class must be served from the cache")
	}
	if len(recs) != 1 {
		t.Errorf("expected 1 record, got %d", len(recs))
	}

	// Writes still propagate.
	rec := cls.New()
	rec.Set("Name", "Zoe")
	if err := node.Reserve(ctx, rec); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if next.Count(cls) != 4 {
		t.Error("writes must reach the next backend")
	}
	recs, _ = node.Recall(ctx, cls, nil)
	if len(recs) != 4 {
		t.Errorf("cache must see the new record, got %d", len(recs))
	}
}
