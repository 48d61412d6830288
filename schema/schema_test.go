/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package schema

import (
	"context"
	"testing"

	"github.com/recallkit/recallkit"
	"github.com/recallkit/recallkit/errors"
	"github.com/recallkit/recallkit/record"
	"github.com/recallkit/recallkit/storage/ram"
)

const modelDoc = `
classes:
  - name: User
    fields:
      - name: ID
        type: int
      - name: Name
        type: string
        index: true
      - name: Score
        type: int
        default: 0
    identifiers: [ID]
  - name: Order
    fields:
      - name: ID
        type: int
      - name: UserID
        type: int
      - name: Total
        type: float
    identifiers: [ID]
associations:
  - name: Orders
    near: User
    nearField: ID
    far: Order
    farField: UserID
    cardinality: one-to-many
`

func TestLoadAndBuild(t *testing.T) {
	model, err := Load([]byte(modelDoc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	classes, err := model.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(classes) != 2 {
		t.Fatalf("expected 2 classes, got %d", len(classes))
	}

	user := classes[0]
	if user.Name() != "User" {
		t.Errorf("first class %q", user.Name())
	}
	if got := user.Identifiers(); len(got) != 1 || got[0] != "ID" {
		t.Errorf("identifiers %v", got)
	}
	score := user.Field("Score")
	if score == nil || score.Type != record.FieldInt {
		t.Fatalf("Score field missing or mistyped")
	}
	rec := user.New()
	if v, _ := rec.Get("Score"); v != int64(0) {
		t.Errorf("default not applied: %#v", v)
	}
	if name := user.Field("Name"); name == nil || !name.Index {
		t.Error("index hint lost")
	}
}

func TestRegister(t *testing.T) {
	model, err := Load([]byte(modelDoc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	store := recallkit.New(ram.New(nil))
	classes, err := model.Register(store)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	user, order := classes[0], classes[1]
	if store.Class("User") != user || store.Class("Order") != order {
		t.Error("classes must land in the store registry")
	}
	if user.Association("Order") == nil {
		t.Error("association accessor missing on the near class")
	}
	if order.Association("User") == nil {
		t.Error("inverse accessor missing on the far class")
	}

	if _, err := store.MapAll(context.Background(), errors.ConflictError); err != nil {
		t.Fatalf("map all: %v", err)
	}

	// The model is usable end to end.
	box := store.NewSandbox()
	rec := user.New()
	rec.Set("Name", "Ada")
	if err := box.Memorize(context.Background(), rec); err != nil {
		t.Fatalf("memorize: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("BadYAML", func(t *testing.T) {
		if _, err := Load([]byte("classes: [")); err == nil {
			t.Error("expected a parse error")
		}
	})

	t.Run("UnknownFieldType", func(t *testing.T) {
		model, err := Load([]byte(`
classes:
  - name: C
    fields:
      - name: A
        type: varchar
`))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if _, err := model.Build(); !errors.IsDefinition(err) {
			t.Errorf("expected a definition error, got %v", err)
		}
	})

	t.Run("UnknownCardinality", func(t *testing.T) {
		model, err := Load([]byte(`
classes:
  - name: A
    fields: [{name: ID, type: int}]
    identifiers: [ID]
  - name: B
    fields: [{name: ID, type: int}, {name: AID, type: int}]
    identifiers: [ID]
associations:
  - near: A
    nearField: ID
    far: B
    farField: AID
    cardinality: many-to-many
`))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		store := recallkit.New(ram.New(nil))
		if _, err := model.Register(store); err == nil {
			t.Error("expected an error for the unknown cardinality")
		}
	})

	t.Run("UndeclaredAssociationClass", func(t *testing.T) {
		model, err := Load([]byte(`
classes:
  - name: A
    fields: [{name: ID, type: int}]
    identifiers: [ID]
associations:
  - near: A
    nearField: ID
    far: Ghost
    farField: AID
    cardinality: one-to-many
`))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		store := recallkit.New(ram.New(nil))
		if _, err := model.Register(store); err == nil {
			t.Error("expected an error for the undeclared class")
		}
	})
}
