/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package partition

import (
	"context"
	"testing"

	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/expr"
	"github.com/recallkit/recallkit/record"
	"github.com/recallkit/recallkit/storage/ram"
)

func classes(t *testing.T) (user, order, audit *record.Class) {
	t.Helper()
	user = record.NewClass("User")
	if err := user.DefineFields(
		record.Field{Name: "ID", Type: record.FieldInt},
		record.Field{Name: "Name", Type: record.FieldString},
	); err != nil {
		t.Fatalf("define: %v", err)
	}
	user.Identify("ID")

	order = record.NewClass("Order")
	if err := order.DefineFields(
		record.Field{Name: "ID", Type: record.FieldInt},
		record.Field{Name: "UserID", Type: record.FieldInt},
	); err != nil {
		t.Fatalf("define: %v", err)
	}
	order.Identify("ID")

	audit = record.NewClass("Audit")
	if err := audit.DefineFields(
		record.Field{Name: "ID", Type: record.FieldInt},
		record.Field{Name: "Note", Type: record.FieldString},
	); err != nil {
		t.Fatalf("define: %v", err)
	}
	audit.Identify("ID")

	if _, err := record.Associate(user, "ID", order, "UserID", record.OneToMany); err != nil {
		t.Fatalf("associate: %v", err)
	}
	return user, order, audit
}

func setup(t *testing.T) (*Vertical, *ram.Store, *ram.Store, *record.Class, *record.Class, *record.Class) {
	t.Helper()
	user, order, audit := classes(t)

	main := ram.New(nil)
	side := ram.New(nil)
	v := NewVertical()
	if err := v.AddStore("main", main); err != nil {
		t.Fatalf("add store: %v", err)
	}
	if err := v.AddStore("side", side); err != nil {
		t.Fatalf("add store: %v", err)
	}
	if err := v.MapClass("User", "main"); err != nil {
		t.Fatalf("map: %v", err)
	}
	if err := v.MapClass("Order", "main"); err != nil {
		t.Fatalf("map: %v", err)
	}
	if err := v.MapClass("Audit", "side"); err != nil {
		t.Fatalf("map: %v", err)
	}

	ctx := context.Background()
	for _, cls := range []*record.Class{user, order, audit} {
		if err := v.Register(cls); err != nil {
			t.Fatalf("register: %v", err)
		}
		if err := v.CreateStorage(ctx, cls, nil); err != nil {
			t.Fatalf("create storage: %v", err)
		}
	}
	return v, main, side, user, order, audit
}

func TestRoutingIsolation(t *testing.T) {
	v, main, side, user, _, audit := setup(t)
	ctx := context.Background()

	u := user.New()
	u.Set("Name", "Ada")
	if err := v.Reserve(ctx, u); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	a := audit.New()
	a.Set("Note", "created")
	if err := v.Reserve(ctx, a); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if main.Count(user) != 1 || side.Count(user) != 0 {
		t.Error("User rows must live only in the main store")
	}
	if side.Count(audit) != 1 || main.Count(audit) != 0 {
		t.Error("Audit rows must live only in the side store")
	}

	recs, err := v.Recall(ctx, user, nil)
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("expected 1 user, got %d", len(recs))
	}
}

func TestUnmappedClassFails(t *testing.T) {
	v := NewVertical()
	v.AddStore("main", ram.New(nil))
	stray := record.NewClass("Stray")
	stray.DefineField(record.Field{Name: "ID", Type: record.FieldInt})
	stray.Identify("ID")
	if err := v.Register(stray); err == nil {
		t.Error("expected an error for an unmapped class")
	}
}

func TestJoinWithinOneStore(t *testing.T) {
	v, _, _, user, order, _ := setup(t)
	ctx := context.Background()

	u := user.New()
	u.Set("Name", "Ada")
	v.Reserve(ctx, u)
	o := order.New()
	o.Set("UserID", u.Identity()[0])
	v.Reserve(ctx, o)

	rows, err := v.MultiRecall(ctx, []*record.Class{user, order}, nil)
	if err != nil {
		t.Fatalf("multirecall: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 tuple, got %d", len(rows))
	}
}

func TestUncoveredJoinFails(t *testing.T) {
	v, _, _, user, _, audit := setup(t)

	_, err := v.MultiRecall(context.Background(), []*record.Class{user, audit}, nil)
	if !errors.IsUnsupportedJoin(err) {
		t.Fatalf("expected an unsupported join error, got %v", err)
	}
}

func TestJoinOverride(t *testing.T) {
	user, order, _ := classes(t)

	main := ram.New(nil)
	side := ram.New(nil)
	v := NewVertical()
	v.AddStore("main", main)
	v.AddStore("side", side)
	// Both classes live in both stores; the override pins the join.
	v.MapClass("User", "main", "side")
	v.MapClass("Order", "main", "side")
	if err := v.OverrideJoin("side", "User", "Order"); err != nil {
		t.Fatalf("override: %v", err)
	}

	ctx := context.Background()
	for _, cls := range []*record.Class{user, order} {
		v.Register(cls)
		v.CreateStorage(ctx, cls, nil)
	}

	// Data lands in the first mapped store only; the side store stays
	// empty, so a join routed there sees no rows.
	u := user.New()
	u.Set("Name", "Ada")
	v.Reserve(ctx, u)
	o := order.New()
	o.Set("UserID", u.Identity()[0])
	v.Reserve(ctx, o)

	rows, err := v.MultiRecall(ctx, []*record.Class{user, order}, nil)
	if err != nil {
		t.Fatalf("multirecall: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("override must route the join to the side store, got %d tuples", len(rows))
	}
}

func TestDDLFansOut(t *testing.T) {
	user, _, _ := classes(t)

	main := ram.New(nil)
	side := ram.New(nil)
	v := NewVertical()
	v.AddStore("main", main)
	v.AddStore("side", side)
	v.MapClass("User", "main", "side")

	ctx := context.Background()
	if err := v.Register(user); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := v.CreateStorage(ctx, user, nil); err != nil {
		t.Fatalf("create storage: %v", err)
	}

	for name, s := range map[string]*ram.Store{"main": main, "side": side} {
		ok, err := s.HasStorage(ctx, user)
		if err != nil {
			t.Fatalf("%s has storage: %v", name, err)
		}
		if !ok {
			t.Errorf("create storage must fan out to the %s store", name)
		}
	}

	ok, err := v.HasStorage(ctx, user)
	if err != nil || !ok {
		t.Errorf("partitioner must report storage present, got %v/%v", ok, err)
	}

	if err := v.DropStorage(ctx, user, nil); err != nil {
		t.Fatalf("drop: %v", err)
	}
	ok, _ = v.HasStorage(ctx, user)
	if ok {
		t.Error("drop storage must fan out")
	}
}

func TestDistinctRoutes(t *testing.T) {
	v, _, _, user, _, _ := setup(t)
	ctx := context.Background()

	for _, name := range []string{"Ada", "Ada", "Bob"} {
		u := user.New()
		u.Set("Name", name)
		v.Reserve(ctx, u)
	}
	rows, err := v.Distinct(ctx, user, []string{"Name"}, expr.Field("Name").Ne("nobody"))
	if err != nil {
		t.Fatalf("distinct: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 distinct names, got %d", len(rows))
	}
}
