/*
 * Copyright © 2025 Recallkit Authors, All rights reserved.
 */

package record

import (
	"math/big"
	"testing"
	"time"

	"github.com/recallkit/recallkit/errors"
)

func userClass(t *testing.T) *Class {
	t.Helper()
	cls := NewClass("User")
	err := cls.DefineFields(
		Field{Name: "ID", Type: FieldInt},
		Field{Name: "Name", Type: FieldString},
		Field{Name: "Score", Type: FieldInt, Default: int64(0)},
		Field{Name: "Tags", Type: FieldList},
	)
	if err != nil {
		t.Fatalf("define fields: %v", err)
	}
	if err := cls.Identify("ID"); err != nil {
		t.Fatalf("identify: %v", err)
	}
	return cls
}

func TestClassDefinition(t *testing.T) {
	t.Run("DuplicateField", func(t *testing.T) {
		cls := NewClass("C")
		if err := cls.DefineField(Field{Name: "A", Type: FieldString}); err != nil {
			t.Fatalf("define: %v", err)
		}
		err := cls.DefineField(Field{Name: "A", Type: FieldInt})
		if !errors.IsDefinition(err) {
			t.Errorf("expected a definition error, got %v", err)
		}
	})

	t.Run("EmptyName", func(t *testing.T) {
		cls := NewClass("C")
		if err := cls.DefineField(Field{Type: FieldString}); !errors.IsDefinition(err) {
			t.Errorf("expected a definition error, got %v", err)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		cls := NewClass("C")
		if err := cls.DefineField(Field{Name: "A", Type: "varchar"}); !errors.IsDefinition(err) {
			t.Errorf("expected a definition error, got %v", err)
		}
	})

	t.Run("IdentifierMustExist", func(t *testing.T) {
		cls := NewClass("C")
		if err := cls.Identify("Nope"); !errors.IsDefinition(err) {
			t.Errorf("expected a definition error, got %v", err)
		}
	})

	t.Run("DefaultIsCoerced", func(t *testing.T) {
		cls := NewClass("C")
		if err := cls.DefineField(Field{Name: "N", Type: FieldInt, Default: 7}); err != nil {
			t.Fatalf("define: %v", err)
		}
		rec := cls.New()
		v, err := rec.Get("N")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if v != int64(7) {
			t.Errorf("expected widened default int64(7), got %#v", v)
		}
	})
}

func TestAssignment(t *testing.T) {
	cls := userClass(t)

	t.Run("ExactType", func(t *testing.T) {
		rec := cls.New()
		if err := rec.Set("Name", "Ada"); err != nil {
			t.Fatalf("set: %v", err)
		}
		v, _ := rec.Get("Name")
		if v != "Ada" {
			t.Errorf("got %v", v)
		}
	})

	t.Run("NarrowerWidens", func(t *testing.T) {
		rec := cls.New()
		if err := rec.Set("Score", 42); err != nil {
			t.Fatalf("set: %v", err)
		}
		v, _ := rec.Get("Score")
		if v != int64(42) {
			t.Errorf("expected int64(42), got %#v", v)
		}
	})

	t.Run("WrongTypeFails", func(t *testing.T) {
		rec := cls.New()
		err := rec.Set("Score", "many")
		if !errors.IsFieldType(err) {
			t.Errorf("expected a field type error, got %v", err)
		}
	})

	t.Run("NilAlwaysAllowed", func(t *testing.T) {
		rec := cls.New()
		if err := rec.Set("Score", nil); err != nil {
			t.Fatalf("set nil: %v", err)
		}
	})

	t.Run("NoSilentCoercion", func(t *testing.T) {
		rec := cls.New()
		if err := rec.Set("Name", 42); !errors.IsFieldType(err) {
			t.Error("int must not coerce to string")
		}
	})

	t.Run("UnknownField", func(t *testing.T) {
		rec := cls.New()
		if err := rec.Set("Nope", 1); !errors.IsDefinition(err) {
			t.Errorf("expected a definition error, got %v", err)
		}
	})
}

func TestDirtyTracking(t *testing.T) {
	cls := userClass(t)
	rec := cls.New()
	if rec.Dirty() {
		t.Fatal("fresh record must be clean")
	}
	if err := rec.Set("Name", "Ada"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !rec.Dirty() {
		t.Fatal("assignment must dirty the record")
	}
	fields := rec.DirtyFields()
	if len(fields) != 1 || fields[0] != "Name" {
		t.Errorf("unexpected dirty fields %v", fields)
	}
	rec.Cleanse()
	if rec.Dirty() {
		t.Error("cleanse must clear the dirty set")
	}
}

func TestCopyOnRead(t *testing.T) {
	cls := userClass(t)
	rec := cls.New()
	if err := rec.Set("Tags", []any{"a", "b"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	rec.Cleanse()

	got, err := rec.Get("Tags")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.([]any)[0] = "mutated"

	again, _ := rec.Get("Tags")
	if again.([]any)[0] != "a" {
		t.Error("reader aliasing mutated internal state")
	}
	if rec.Dirty() {
		t.Error("reading must not dirty the record")
	}
}

func TestHooks(t *testing.T) {
	t.Run("OrderAndValues", func(t *testing.T) {
		cls := NewClass("C")
		if err := cls.DefineField(Field{Name: "N", Type: FieldInt}); err != nil {
			t.Fatalf("define: %v", err)
		}
		var trace []string
		cls.Hook("N", func(r *Record, field string, next any) error {
			trace = append(trace, "before1")
			return nil
		}, func(r *Record, field string, value any) {
			trace = append(trace, "after1")
		})
		cls.Hook("N", func(r *Record, field string, next any) error {
			trace = append(trace, "before2")
			return nil
		}, nil)

		rec := cls.New()
		if err := rec.Set("N", int64(1)); err != nil {
			t.Fatalf("set: %v", err)
		}
		want := []string{"before1", "before2", "after1"}
		if len(trace) != len(want) {
			t.Fatalf("trace %v", trace)
		}
		for i := range want {
			if trace[i] != want[i] {
				t.Fatalf("trace %v, want %v", trace, want)
			}
		}
	})

	t.Run("BeforeAborts", func(t *testing.T) {
		cls := NewClass("C")
		if err := cls.DefineField(Field{Name: "N", Type: FieldInt}); err != nil {
			t.Fatalf("define: %v", err)
		}
		veto := errors.NewDefinitionError("C", "N", "no negatives")
		cls.Hook("N", func(r *Record, field string, next any) error {
			if v, ok := next.(int64); ok && v < 0 {
				return veto
			}
			return nil
		}, nil)

		rec := cls.New()
		if err := rec.Set("N", int64(-1)); err == nil {
			t.Fatal("expected the before hook to abort")
		}
		if v, _ := rec.Get("N"); v != nil {
			t.Errorf("aborted assignment must not change the value, got %v", v)
		}
		if rec.Dirty() {
			t.Error("aborted assignment must not dirty the record")
		}
	})
}

func TestSetManyDeclarationOrder(t *testing.T) {
	cls := NewClass("C")
	if err := cls.DefineFields(
		Field{Name: "A", Type: FieldInt},
		Field{Name: "B", Type: FieldInt},
	); err != nil {
		t.Fatalf("define: %v", err)
	}
	var order []string
	track := func(r *Record, field string, value any) { order = append(order, field) }
	cls.Hook("A", nil, track)
	cls.Hook("B", nil, track)

	rec := cls.New()
	if err := rec.SetMany(map[string]any{"B": int64(2), "A": int64(1)}); err != nil {
		t.Fatalf("set many: %v", err)
	}
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Errorf("expected declaration order A,B; got %v", order)
	}

	if err := rec.SetMany(map[string]any{"A": int64(1), "Nope": 9}); !errors.IsDefinition(err) {
		t.Errorf("expected a definition error for unknown field, got %v", err)
	}
}

func TestIdentity(t *testing.T) {
	cls := userClass(t)
	rec := cls.New()
	if rec.HasIdentity() {
		t.Fatal("no identity before ID is set")
	}
	if err := rec.Set("ID", int64(7)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !rec.HasIdentity() {
		t.Fatal("expected identity")
	}
	id := rec.Identity()
	if len(id) != 1 || id[0] != int64(7) {
		t.Errorf("identity %v", id)
	}

	other := cls.New()
	other.Set("ID", int64(7))
	if rec.IdentityKey() != other.IdentityKey() {
		t.Error("equal identities must share a key")
	}
	third := cls.New()
	third.Set("ID", int64(8))
	if rec.IdentityKey() == third.IdentityKey() {
		t.Error("distinct identities must not share a key")
	}
}

func TestKeyStringTypeTagged(t *testing.T) {
	// "7" the string and 7 the int must never collide.
	if KeyString([]any{"7"}) == KeyString([]any{int64(7)}) {
		t.Error("string and int key parts collide")
	}
	if KeyString([]any{nil}) == KeyString([]any{""}) {
		t.Error("nil and empty string key parts collide")
	}
}

func TestDestroyedRecord(t *testing.T) {
	cls := userClass(t)
	rec := cls.New()
	rec.MarkDestroyed()

	if _, err := rec.Get("Name"); err != errors.ErrDestroyed {
		t.Errorf("get on destroyed: %v", err)
	}
	if err := rec.Set("Name", "x"); err != errors.ErrDestroyed {
		t.Errorf("set on destroyed: %v", err)
	}
}

func TestMaterialize(t *testing.T) {
	cls := userClass(t)
	rec, err := Materialize(cls, map[string]any{"ID": int64(1), "Name": "Ada"})
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if rec.Dirty() {
		t.Error("materialized records start clean")
	}
	if v, _ := rec.Get("Name"); v != "Ada" {
		t.Errorf("got %v", v)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	cls := NewClass("C")
	if err := cls.DefineFields(
		Field{Name: "I", Type: FieldInt},
		Field{Name: "Big", Type: FieldBigInt},
		Field{Name: "Dec", Type: FieldDecimal, Scale: 2},
		Field{Name: "Bin", Type: FieldBytes},
		Field{Name: "When", Type: FieldDateTime},
		Field{Name: "Day", Type: FieldDate},
		Field{Name: "Span", Type: FieldDuration},
	); err != nil {
		t.Fatalf("define: %v", err)
	}

	rec := cls.New()
	big9 := new(big.Int)
	big9.SetString("123456789012345678901234567890", 10)
	when := time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)
	sets := map[string]any{
		"I":    int64(-42),
		"Big":  big9,
		"Dec":  big.NewRat(314, 100),
		"Bin":  []byte{0x01, 0x02},
		"When": when,
		"Day":  time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC),
		"Span": 90 * time.Minute,
	}
	if err := rec.SetMany(sets); err != nil {
		t.Fatalf("set many: %v", err)
	}

	wire, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	back, err := DecodeRecord(cls, wire)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if v, _ := back.Get("I"); v != int64(-42) {
		t.Errorf("int came back as %#v", v)
	}
	if v, _ := back.Get("Big"); v.(*big.Int).Cmp(big9) != 0 {
		t.Errorf("bigint came back as %v", v)
	}
	if v, _ := back.Get("Dec"); v.(*big.Rat).Cmp(big.NewRat(314, 100)) != 0 {
		t.Errorf("decimal came back as %v", v)
	}
	if v, _ := back.Get("When"); !v.(time.Time).Equal(when) {
		t.Errorf("datetime came back as %v", v)
	}
	if v, _ := back.Get("Span"); v != 90*time.Minute {
		t.Errorf("duration came back as %v", v)
	}
}

func TestDateTruncation(t *testing.T) {
	cls := NewClass("C")
	if err := cls.DefineField(Field{Name: "Day", Type: FieldDate}); err != nil {
		t.Fatalf("define: %v", err)
	}
	rec := cls.New()
	if err := rec.Set("Day", time.Date(2024, 5, 17, 13, 45, 12, 0, time.FixedZone("x", 3600))); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, _ := rec.Get("Day")
	d := v.(time.Time)
	if d.Hour() != 0 || d.Minute() != 0 || d.Location() != time.UTC {
		t.Errorf("date not truncated to midnight UTC: %v", d)
	}
}

type stubBinder struct {
	recs []*Record
	err  error
}

func (s *stubBinder) RelatedRecords(r *Record, a *Association, filter any) ([]*Record, error) {
	return s.recs, s.err
}

func TestAssociations(t *testing.T) {
	user := NewClass("User")
	user.DefineFields(Field{Name: "ID", Type: FieldInt})
	user.Identify("ID")
	order := NewClass("Order")
	order.DefineFields(
		Field{Name: "ID", Type: FieldInt},
		Field{Name: "UserID", Type: FieldInt},
	)
	order.Identify("ID")

	a, err := Associate(user, "ID", order, "UserID", OneToMany)
	if err != nil {
		t.Fatalf("associate: %v", err)
	}
	if a.Cardinality != OneToMany {
		t.Errorf("cardinality %v", a.Cardinality)
	}
	if user.Association("Order") == nil {
		t.Error("near accessor missing")
	}
	inv := order.Association("User")
	if inv == nil {
		t.Fatal("far accessor missing")
	}
	if inv.Cardinality != ManyToOne || !inv.ToOne() {
		t.Errorf("inverse cardinality %v", inv.Cardinality)
	}

	t.Run("UnboundRecordFails", func(t *testing.T) {
		u := user.New()
		u.Set("ID", int64(1))
		if _, err := u.Related("Order", nil); err == nil {
			t.Error("expected an error for a record without a sandbox")
		}
	})

	t.Run("BoundRecordDelegates", func(t *testing.T) {
		o := order.New()
		u := user.New()
		u.Set("ID", int64(1))
		u.Bind(&stubBinder{recs: []*Record{o}})
		got, err := u.Related("Order", nil)
		if err != nil {
			t.Fatalf("related: %v", err)
		}
		if len(got) != 1 || got[0] != o {
			t.Errorf("got %v", got)
		}
	})

	t.Run("NameCollision", func(t *testing.T) {
		c1 := NewClass("A")
		c1.DefineFields(Field{Name: "ID", Type: FieldInt}, Field{Name: "B", Type: FieldInt})
		c2 := NewClass("B")
		c2.DefineFields(Field{Name: "ID", Type: FieldInt}, Field{Name: "AID", Type: FieldInt})
		if _, err := Associate(c1, "ID", c2, "AID", OneToMany); !errors.IsDefinition(err) {
			t.Errorf("expected a definition error for the colliding accessor name, got %v", err)
		}
	})
}
